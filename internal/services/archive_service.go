package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ecoverde/compost-service/internal/database"
	"github.com/ecoverde/compost-service/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrArchiveNotFound indica que no hay copia guardada para la ejecución
var ErrArchiveNotFound = errors.New("archive not found")

// ObjectStorage es el almacenamiento de objetos donde se guardan los archivos
type ObjectStorage interface {
	UploadFile(ctx context.Context, key string, data []byte, contentType string) (string, error)
	DownloadFile(ctx context.Context, key string) ([]byte, error)
}

// CascadeArchive es la copia de lo que un borrado en cascada iba a eliminar
type CascadeArchive struct {
	RunID            uuid.UUID                `json:"run_id"`
	DNI              string                   `json:"dni"`
	ArchivedAt       time.Time                `json:"archived_at"`
	CollectionPoints []models.CollectionPoint `json:"puntos_recogida"`
	Containers       []models.Container       `json:"contenedores"`
	PickupEvents     []models.PickupEvent     `json:"recogidas"`
	BillingRecords   []models.BillingRecord   `json:"facturaciones"`
}

// ArchiveService guarda en Supabase una copia previa a cada borrado para
// poder reconstruir a mano lo eliminado
type ArchiveService struct {
	storage ObjectStorage
	logger  *logrus.Logger
}

// NewArchiveService crea una nueva instancia del servicio
func NewArchiveService(storage ObjectStorage, logger *logrus.Logger) *ArchiveService {
	return &ArchiveService{
		storage: storage,
		logger:  logger,
	}
}

// ArchiveKey retorna la clave del archivo de una ejecución
func ArchiveKey(runID uuid.UUID) string {
	return fmt.Sprintf("cascade/%s.json", runID)
}

// Archive guarda la resolución de un borrado
func (s *ArchiveService) Archive(ctx context.Context, runID uuid.UUID, dni string, res Resolution) (string, error) {
	archive := CascadeArchive{
		RunID:            runID,
		DNI:              dni,
		ArchivedAt:       time.Now().UTC(),
		CollectionPoints: res.CollectionPoints,
		Containers:       res.Containers,
		PickupEvents:     res.PickupEvents,
		BillingRecords:   res.BillingRecords,
	}

	data, err := json.MarshalIndent(archive, "", "  ")
	if err != nil {
		return "", fmt.Errorf("error encoding archive: %w", err)
	}

	url, err := s.storage.UploadFile(ctx, ArchiveKey(runID), data, "application/json")
	if err != nil {
		return "", fmt.Errorf("error storing archive: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"run_id":  runID,
		"dni":     dni,
		"records": res.Count(),
	}).Info("Cascade archive stored")

	return url, nil
}

// Get recupera el archivo de una ejecución
func (s *ArchiveService) Get(ctx context.Context, runID uuid.UUID) (*CascadeArchive, error) {
	data, err := s.storage.DownloadFile(ctx, ArchiveKey(runID))
	if err != nil {
		if errors.Is(err, database.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: run %s", ErrArchiveNotFound, runID)
		}
		return nil, fmt.Errorf("error downloading archive: %w", err)
	}

	var archive CascadeArchive
	if err := json.Unmarshal(data, &archive); err != nil {
		return nil, fmt.Errorf("error decoding archive: %w", err)
	}
	return &archive, nil
}
