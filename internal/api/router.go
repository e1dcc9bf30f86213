package api

import (
	"net/http"

	"github.com/ecoverde/compost-service/internal/metrics"
	"github.com/gin-gonic/gin"
)

// NewRouter configura el router principal
func NewRouter(apiHandler *API) *gin.Engine {
	router := gin.New()

	// Middleware global
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Middleware de CORS para desarrollo
	if apiHandler.cfg.IsDevelopment() {
		router.Use(func(c *gin.Context) {
			c.Header("Access-Control-Allow-Origin", "*")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Session-ID")

			if c.Request.Method == "OPTIONS" {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}

			c.Next()
		})
	}

	// Health check
	router.GET("/health", apiHandler.Health)

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/v1")
	{
		// Sesiones
		v1.POST("/sesiones", apiHandler.Login)
		sessions := v1.Group("/sesiones")
		sessions.Use(apiHandler.SessionMiddleware())
		{
			sessions.DELETE("", apiHandler.Logout)
			sessions.GET("/actual", apiHandler.CurrentSession)
		}

		// Diálogo de borrado de cuenta
		owners := v1.Group("/propietarios/:dni")
		owners.Use(apiHandler.SessionMiddleware())
		{
			owners.GET("/eliminacion", apiHandler.GetDeletion)
			owners.POST("/eliminacion", apiHandler.OpenDeletion)
			owners.DELETE("/eliminacion", apiHandler.DismissDeletion)
			owners.POST("/eliminacion/confirmar", apiHandler.ConfirmDeletion)
			owners.POST("/eliminacion/aceptar", apiHandler.AcknowledgeDeletion)
		}

		// Endpoints de operador
		admin := v1.Group("")
		admin.Use(apiHandler.SessionMiddleware(), apiHandler.OperatorOnly())
		{
			admin.DELETE("/propietarios/:dni", apiHandler.DeleteOwner)
			admin.GET("/propietarios/:dni/borrados", apiHandler.ListCascadeRuns)
			admin.GET("/borrados/:id/archivo", apiHandler.GetCascadeArchive)
		}

		// Proxy hacia la API externa
		proxy := v1.Group("/api")
		proxy.Use(apiHandler.RateLimitMiddleware(), apiHandler.OptionalSessionMiddleware())
		{
			proxy.Any("/:resource", apiHandler.Proxy)
			proxy.Any("/:resource/*rest", apiHandler.Proxy)
		}
	}

	return router
}
