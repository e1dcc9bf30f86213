package workflows

import (
	"context"
	"fmt"

	"github.com/ecoverde/compost-service/internal/config"
	"github.com/ecoverde/compost-service/internal/models"
	"github.com/inngest/inngestgo"
	"github.com/sirupsen/logrus"
)

// EventOwnerDeleted se publica cuando un propietario y sus dependientes fueron eliminados
const EventOwnerDeleted = "compost/owner.deleted"

// InngestClient publica eventos de dominio en Inngest
type InngestClient struct {
	client inngestgo.Client
	logger *logrus.Logger
}

// NewInngestClient crea una nueva instancia del cliente
func NewInngestClient(cfg *config.Config, logger *logrus.Logger) (*InngestClient, error) {
	if cfg.Inngest.EventKey == "" {
		return nil, fmt.Errorf("INNGEST_EVENT_KEY not configured")
	}

	dev := cfg.Inngest.Dev
	opts := inngestgo.ClientOpts{
		EventKey: &cfg.Inngest.EventKey,
		AppID:    cfg.Inngest.AppID,
		Dev:      &dev,
	}
	if cfg.Inngest.SigningKey != "" {
		opts.SigningKey = &cfg.Inngest.SigningKey
	}

	client, err := inngestgo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("error creating Inngest client: %w", err)
	}

	return &InngestClient{
		client: client,
		logger: logger,
	}, nil
}

// ownerDeletedData construye el payload del evento a partir del resultado del borrado
func ownerDeletedData(result *models.CascadeResult) map[string]any {
	data := map[string]any{
		"run_id":          result.RunID.String(),
		"dni":             result.DNI,
		"recogidas":       result.PickupEvents,
		"contenedores":    result.Containers,
		"puntos_recogida": result.CollectionPoints,
		"facturaciones":   result.BillingRecords,
		"finished_at":     result.FinishedAt,
	}
	if result.ArchiveURL != nil {
		data["archive_url"] = *result.ArchiveURL
	}
	return data
}

// PublishOwnerDeleted publica el resultado de un borrado en cascada
func (c *InngestClient) PublishOwnerDeleted(ctx context.Context, result *models.CascadeResult) error {
	id, err := c.client.Send(ctx, inngestgo.Event{
		Name: EventOwnerDeleted,
		Data: ownerDeletedData(result),
	})
	if err != nil {
		return fmt.Errorf("error sending %s event: %w", EventOwnerDeleted, err)
	}

	c.logger.WithFields(logrus.Fields{
		"event_id": id,
		"dni":      result.DNI,
	}).Info("Owner deleted event published")

	return nil
}
