package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ecoverde/compost-service/internal/config"
	"github.com/ecoverde/compost-service/internal/models"
	"github.com/ecoverde/compost-service/internal/services"
	"github.com/ecoverde/compost-service/internal/upstream"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Forwarder reenvía peticiones a la API externa
type Forwarder interface {
	Forward(ctx context.Context, req upstream.ForwardRequest) (*upstream.ForwardResponse, error)
}

// RunLister lista las ejecuciones auditadas de un propietario
type RunLister interface {
	ListByDNI(dni string) ([]models.CascadeRun, error)
}

// ArchiveReader recupera la copia previa a un borrado
type ArchiveReader interface {
	Get(ctx context.Context, runID uuid.UUID) (*services.CascadeArchive, error)
}

// HealthCheck verifica una dependencia externa
type HealthCheck func() error

// API maneja todos los endpoints de la API
type API struct {
	sessions *services.SessionService
	flows    *services.DeletionFlowService
	cascade  *services.CascadeDeleteService
	upstream Forwarder
	runs     RunLister
	archives ArchiveReader
	checks   map[string]HealthCheck
	cfg      *config.Config
	logger   *logrus.Logger
}

// NewAPI crea una nueva instancia de la API. runs y archives pueden ser nil
// cuando no hay base de datos o storage configurados.
func NewAPI(
	sessions *services.SessionService,
	flows *services.DeletionFlowService,
	cascade *services.CascadeDeleteService,
	forwarder Forwarder,
	runs RunLister,
	archives ArchiveReader,
	cfg *config.Config,
	logger *logrus.Logger,
) *API {
	return &API{
		sessions: sessions,
		flows:    flows,
		cascade:  cascade,
		upstream: forwarder,
		runs:     runs,
		archives: archives,
		checks:   make(map[string]HealthCheck),
		cfg:      cfg,
		logger:   logger,
	}
}

// AddHealthCheck registra una dependencia en /health
func (api *API) AddHealthCheck(name string, check HealthCheck) {
	api.checks[name] = check
}

// Health reporta el estado del servicio y de sus dependencias
func (api *API) Health(c *gin.Context) {
	status := "ok"
	code := http.StatusOK
	components := make(map[string]string, len(api.checks))
	for name, check := range api.checks {
		if err := check(); err != nil {
			api.logger.WithError(err).WithField("component", name).Warn("Health check failed")
			components[name] = "unavailable"
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	c.JSON(code, gin.H{
		"status":     status,
		"timestamp":  time.Now().UTC(),
		"service":    "compost-service",
		"version":    "1.0.0",
		"components": components,
	})
}

// Login crea una sesión de propietario u operador
func (api *API) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid request format", []models.ErrorDetail{
			{Field: "body", Issue: err.Error()},
		}))
		return
	}

	session, err := api.sessions.Login(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, models.NewUnauthorizedError("Invalid credentials"))
			return
		}
		api.logger.WithError(err).Error("Error creating session")
		c.JSON(http.StatusBadGateway, models.NewUpstreamError("Could not verify owner"))
		return
	}

	maxAge := int(time.Until(session.ExpiresAt).Seconds())
	c.SetCookie(api.cfg.Session.CookieName, session.ID.String(), maxAge, "/", "", api.cfg.IsProduction(), true)

	c.JSON(http.StatusCreated, models.LoginResponse{
		SessionID: session.ID.String(),
		Role:      session.Role,
		DNI:       session.DNI,
		ExpiresAt: session.ExpiresAt,
	})
}

// Logout destruye la sesión actual
func (api *API) Logout(c *gin.Context) {
	session := currentSession(c)

	if err := api.sessions.Logout(c.Request.Context(), session); err != nil {
		api.logger.WithError(err).Error("Error closing session")
		c.JSON(http.StatusInternalServerError, models.NewInternalError("Error closing session"))
		return
	}

	c.SetCookie(api.cfg.Session.CookieName, "", -1, "/", "", api.cfg.IsProduction(), true)
	c.Status(http.StatusNoContent)
}

// CurrentSession retorna la sesión del request
func (api *API) CurrentSession(c *gin.Context) {
	c.JSON(http.StatusOK, currentSession(c))
}

// GetDeletion retorna el estado del diálogo de borrado
func (api *API) GetDeletion(c *gin.Context) {
	session, dni, ok := api.ownerTarget(c)
	if !ok {
		return
	}

	flow, err := api.flows.Get(c.Request.Context(), session, dni)
	if err != nil {
		api.writeFlowError(c, err)
		return
	}

	c.JSON(http.StatusOK, flow)
}

// OpenDeletion muestra el diálogo de confirmación
func (api *API) OpenDeletion(c *gin.Context) {
	session, dni, ok := api.ownerTarget(c)
	if !ok {
		return
	}

	var req models.OpenFlowRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid request format", []models.ErrorDetail{
				{Field: "body", Issue: err.Error()},
			}))
			return
		}
	}

	flow, err := api.flows.Open(c.Request.Context(), session, dni, req.Message)
	if err != nil {
		api.writeFlowError(c, err)
		return
	}

	c.JSON(http.StatusOK, flow)
}

// ConfirmDeletion lanza el borrado en cascada en segundo plano
func (api *API) ConfirmDeletion(c *gin.Context) {
	session, dni, ok := api.ownerTarget(c)
	if !ok {
		return
	}

	flow, err := api.flows.Confirm(c.Request.Context(), session, dni)
	if err != nil {
		api.writeFlowError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, flow)
}

// AcknowledgeDeletion cierra el diálogo tras un resultado final
func (api *API) AcknowledgeDeletion(c *gin.Context) {
	session, dni, ok := api.ownerTarget(c)
	if !ok {
		return
	}

	resp, err := api.flows.Acknowledge(c.Request.Context(), session, dni)
	if err != nil {
		api.writeFlowError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// DismissDeletion cancela el diálogo; durante el borrado exige forzar=true
func (api *API) DismissDeletion(c *gin.Context) {
	session, dni, ok := api.ownerTarget(c)
	if !ok {
		return
	}

	force := c.Query("forzar") == "true"
	resp, err := api.flows.Dismiss(c.Request.Context(), session, dni, force)
	if errors.Is(err, models.ErrDismissNeedsConfirmation) {
		c.JSON(http.StatusOK, resp)
		return
	}
	if err != nil {
		api.writeFlowError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// progressLine es una línea del stream NDJSON de DeleteOwner
type progressLine struct {
	Progress models.CascadeProgress `json:"progress"`
	Error    *models.ErrorInfo      `json:"error,omitempty"`
}

// DeleteOwner ejecuta el borrado en cascada sin diálogo (operadores) y
// transmite cada instantánea de progreso como una línea JSON
func (api *API) DeleteOwner(c *gin.Context) {
	session := currentSession(c)
	dni := strings.TrimSpace(c.Param("dni"))

	// el borrado no se cancela si el cliente se desconecta
	ctx := context.WithoutCancel(c.Request.Context())

	err := api.flows.RunExclusive(dni, session.ID.String(), func() {
		c.Header("Content-Type", "application/x-ndjson")
		c.Status(http.StatusOK)
		enc := json.NewEncoder(c.Writer)

		for progress, err := range api.cascade.Stream(ctx, dni) {
			line := progressLine{Progress: progress}
			if err != nil {
				phase := ""
				var cascadeErr *services.CascadeError
				if errors.As(err, &cascadeErr) {
					phase = string(cascadeErr.Phase)
				}
				info := models.NewCascadeError(err.Error(), phase).Error
				line.Error = &info
			}
			if encErr := enc.Encode(line); encErr != nil {
				api.logger.WithError(encErr).WithField("dni", dni).Warn("Client stopped reading cascade progress")
				break
			}
			c.Writer.Flush()
		}
	})
	if err != nil {
		api.writeFlowError(c, err)
	}
}

// ListCascadeRuns lista los borrados auditados de un propietario (operadores)
func (api *API) ListCascadeRuns(c *gin.Context) {
	if api.runs == nil {
		c.JSON(http.StatusNotFound, models.NewNotFoundError("Cascade auditing is not configured"))
		return
	}

	runs, err := api.runs.ListByDNI(strings.TrimSpace(c.Param("dni")))
	if err != nil {
		api.logger.WithError(err).Error("Error listing cascade runs")
		c.JSON(http.StatusInternalServerError, models.NewInternalError("Error retrieving cascade runs"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": runs, "total": len(runs)})
}

// GetCascadeArchive retorna la copia guardada antes de un borrado (operadores)
func (api *API) GetCascadeArchive(c *gin.Context) {
	if api.archives == nil {
		c.JSON(http.StatusNotFound, models.NewNotFoundError("Cascade archive storage is not configured"))
		return
	}

	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid run ID", []models.ErrorDetail{
			{Field: "id", Issue: "Must be a valid UUID"},
		}))
		return
	}

	archive, err := api.archives.Get(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, services.ErrArchiveNotFound) {
			c.JSON(http.StatusNotFound, models.NewNotFoundError("Archive not found"))
			return
		}
		api.logger.WithError(err).Error("Error getting cascade archive")
		c.JSON(http.StatusInternalServerError, models.NewInternalError("Error retrieving archive"))
		return
	}

	c.JSON(http.StatusOK, archive)
}

// ownerTarget obtiene el DNI de la ruta y verifica que la sesión pueda gestionarlo
func (api *API) ownerTarget(c *gin.Context) (*models.Session, string, bool) {
	session := currentSession(c)
	dni := strings.TrimSpace(c.Param("dni"))
	if dni == "" {
		c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid owner", []models.ErrorDetail{
			{Field: "dni", Issue: "Required"},
		}))
		return nil, "", false
	}
	if !session.CanManageOwner(dni) {
		c.JSON(http.StatusForbidden, models.NewForbiddenError("Access denied to this owner"))
		return nil, "", false
	}
	return session, dni, true
}

// writeFlowError traduce los errores del flujo de borrado a respuestas HTTP
func (api *API) writeFlowError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrFlowBusy):
		c.JSON(http.StatusConflict, models.NewConflictError("A deletion is already in progress for this owner"))
	case errors.Is(err, models.ErrInvalidTransition):
		c.JSON(http.StatusConflict, models.NewConflictError(err.Error()))
	default:
		api.logger.WithError(err).Error("Error handling deletion flow")
		c.JSON(http.StatusInternalServerError, models.NewInternalError("Error handling deletion flow"))
	}
}
