package database

import (
	"fmt"
	"time"

	"github.com/ecoverde/compost-service/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CascadeRunRepository maneja la auditoría de borrados en cascada
type CascadeRunRepository struct {
	db     *DB
	logger *logrus.Logger
}

// NewCascadeRunRepository crea una nueva instancia del repositorio
func NewCascadeRunRepository(db *DB, logger *logrus.Logger) *CascadeRunRepository {
	return &CascadeRunRepository{
		db:     db,
		logger: logger,
	}
}

// Start registra el inicio de una ejecución
func (r *CascadeRunRepository) Start(id uuid.UUID, dni string, startedAt time.Time) error {
	query := `
		INSERT INTO cascade_runs (id, dni, status, deleted, started_at)
		VALUES ($1, $2, $3, 0, $4)
	`

	if _, err := r.db.ExecWithTimeout(query, id, dni, models.CascadeRunRunning, startedAt); err != nil {
		return fmt.Errorf("error creating cascade run: %w", err)
	}
	return nil
}

// Finish registra el resultado de una ejecución
func (r *CascadeRunRepository) Finish(run *models.CascadeRun) error {
	query := `
		UPDATE cascade_runs
		SET status = $1, failed_phase = $2, error_text = $3, deleted = $4,
			archive_url = $5, finished_at = $6
		WHERE id = $7
	`

	result, err := r.db.ExecWithTimeout(query,
		run.Status, run.FailedPhase, run.ErrorText, run.Deleted,
		run.ArchiveURL, run.FinishedAt, run.ID,
	)
	if err != nil {
		return fmt.Errorf("error updating cascade run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("cascade run not found: %s", run.ID)
	}

	return nil
}

// ListByDNI obtiene las ejecuciones de un propietario, la más reciente primero
func (r *CascadeRunRepository) ListByDNI(dni string) ([]models.CascadeRun, error) {
	query := `
		SELECT id, dni, status, failed_phase, error_text, deleted, archive_url,
			   started_at, finished_at
		FROM cascade_runs
		WHERE dni = $1
		ORDER BY started_at DESC
	`

	rows, cancel, err := r.db.QueryWithTimeout(query, dni)
	if err != nil {
		return nil, fmt.Errorf("error querying cascade runs: %w", err)
	}
	defer cancel()
	defer rows.Close()

	var runs []models.CascadeRun
	for rows.Next() {
		var run models.CascadeRun
		err := rows.Scan(
			&run.ID, &run.DNI, &run.Status, &run.FailedPhase, &run.ErrorText,
			&run.Deleted, &run.ArchiveURL, &run.StartedAt, &run.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning cascade run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cascade runs: %w", err)
	}

	return runs, nil
}
