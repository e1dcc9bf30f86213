package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/ecoverde/compost-service/internal/models"
	"github.com/ecoverde/compost-service/internal/upstream"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const maxProxyBody = 1 << 20

// proxiedResources son las colecciones de la API externa accesibles desde el front
var proxiedResources = map[string]string{
	"propietarios":    upstream.PathOwners,
	"puntos-recogida": upstream.PathCollectionPoints,
	"contenedores":    upstream.PathContainers,
	"recogidas":       upstream.PathPickupEvents,
	"facturaciones":   upstream.PathBillingRecords,
	"tipos-residuo":   upstream.PathWasteTypes,
	"precios":         upstream.PathPrices,
}

// Proxy reenvía la petición a la API externa. Las lecturas son públicas, las
// escrituras requieren sesión y los DELETE una sesión de operador.
func (api *API) Proxy(c *gin.Context) {
	collection, ok := proxiedResources[c.Param("resource")]
	if !ok {
		c.JSON(http.StatusNotFound, models.NewNotFoundError("Unknown resource"))
		return
	}

	method := c.Request.Method
	session := currentSession(c)
	switch method {
	case http.MethodGet, http.MethodHead:
	case http.MethodDelete:
		if session == nil || session.Role != models.RoleOperator {
			c.JSON(http.StatusForbidden, models.NewForbiddenError("Operator session required"))
			return
		}
	default:
		if session == nil {
			c.JSON(http.StatusUnauthorized, models.NewUnauthorizedError("Valid session required"))
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxProxyBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid request body", []models.ErrorDetail{
			{Field: "body", Issue: err.Error()},
		}))
		return
	}

	rest := c.Param("rest")
	if hasDotSegment(rest) {
		c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid resource path", []models.ErrorDetail{
			{Field: "path", Issue: "Dot segments are not allowed"},
		}))
		return
	}
	if rest == "/" {
		rest = ""
	}
	path := collection + strings.TrimSuffix(rest, "/")

	resp, err := api.upstream.Forward(c.Request.Context(), upstream.ForwardRequest{
		Method:      method,
		Path:        path,
		Query:       c.Request.URL.Query(),
		Body:        body,
		ContentType: c.ContentType(),
	})
	if err != nil {
		api.logger.WithError(err).WithFields(logrus.Fields{
			"method": method,
			"path":   path,
		}).Error("Error forwarding request to upstream")
		c.JSON(http.StatusBadGateway, models.NewUpstreamError("Upstream API unavailable"))
		return
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode, contentType, resp.Body)
}

// hasDotSegment detecta "." o ".." en la ruta, que sacarían la petición de la colección
func hasDotSegment(rest string) bool {
	for _, segment := range strings.Split(rest, "/") {
		if segment == "." || segment == ".." {
			return true
		}
	}
	return false
}
