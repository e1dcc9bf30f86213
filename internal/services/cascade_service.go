package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"github.com/ecoverde/compost-service/internal/metrics"
	"github.com/ecoverde/compost-service/internal/models"
	"github.com/ecoverde/compost-service/internal/upstream"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrUnexpected envuelve cualquier fallo no previsto durante la orquestación
	ErrUnexpected = errors.New("unexpected error during cascade deletion")
	// ErrEmptyDNI se retorna cuando no se indica el propietario
	ErrEmptyDNI = errors.New("owner dni is required")
	// ErrStreamConsumed se retorna al recorrer por segunda vez un Stream
	ErrStreamConsumed = errors.New("cascade stream already consumed")
)

// CascadeError identifica la fase (y el recurso, si aplica) donde se abortó el borrado
type CascadeError struct {
	Phase models.PhaseKind
	Path  string
	Err   error
}

func (e *CascadeError) Error() string {
	if errors.Is(e.Err, ErrUnexpected) {
		return fmt.Sprintf("Error inesperado durante la fase %q. Algunos datos pueden haberse eliminado ya.", e.Phase.Label())
	}
	if e.Path != "" {
		return fmt.Sprintf("Error en la fase %q al eliminar %s: %v", e.Phase.Label(), e.Path, e.Err)
	}
	return fmt.Sprintf("Error en la fase %q: %v", e.Phase.Label(), e.Err)
}

func (e *CascadeError) Unwrap() error {
	return e.Err
}

// ProgressFunc recibe una instantánea tras cada cambio de fase o registro eliminado
type ProgressFunc func(models.CascadeProgress)

// Archiver guarda una copia de los registros antes de eliminarlos
type Archiver interface {
	Archive(ctx context.Context, runID uuid.UUID, dni string, res Resolution) (string, error)
}

// CascadeAuditor registra cada ejecución
type CascadeAuditor interface {
	Start(id uuid.UUID, dni string, startedAt time.Time) error
	Finish(run *models.CascadeRun) error
}

// EventPublisher publica el evento de propietario eliminado
type EventPublisher interface {
	PublishOwnerDeleted(ctx context.Context, result *models.CascadeResult) error
}

// Mailer notifica al propietario
type Mailer interface {
	SendAccountDeletedEmail(owner *models.Owner, result *models.CascadeResult) error
}

// CascadeDeleteService elimina un propietario y todos sus dependientes.
// Los borrados son secuenciales, no se reintentan y no se deshacen si uno falla.
type CascadeDeleteService struct {
	client    upstream.ResourceClient
	archiver  Archiver
	auditor   CascadeAuditor
	publisher EventPublisher
	mailer    Mailer
	logger    *logrus.Logger
}

// CascadeOption configura colaboradores opcionales
type CascadeOption func(*CascadeDeleteService)

// WithArchiver activa el archivado previo al borrado
func WithArchiver(a Archiver) CascadeOption {
	return func(s *CascadeDeleteService) { s.archiver = a }
}

// WithAuditor activa la auditoría en base de datos
func WithAuditor(a CascadeAuditor) CascadeOption {
	return func(s *CascadeDeleteService) { s.auditor = a }
}

// WithEventPublisher activa la publicación del evento final
func WithEventPublisher(p EventPublisher) CascadeOption {
	return func(s *CascadeDeleteService) { s.publisher = p }
}

// WithMailer activa el email de confirmación
func WithMailer(m Mailer) CascadeOption {
	return func(s *CascadeDeleteService) { s.mailer = m }
}

// NewCascadeDeleteService crea una nueva instancia del servicio
func NewCascadeDeleteService(client upstream.ResourceClient, logger *logrus.Logger, opts ...CascadeOption) *CascadeDeleteService {
	s := &CascadeDeleteService{
		client: client,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DeleteOwner ejecuta el borrado en cascada. report puede ser nil; si report
// entra en pánico el pánico se propaga tras auditar la ejecución.
func (s *CascadeDeleteService) DeleteOwner(ctx context.Context, dni string, report ProgressFunc) (result *models.CascadeResult, err error) {
	if dni == "" {
		return nil, ErrEmptyDNI
	}

	runID := uuid.New()
	startedAt := time.Now()
	tracker := newProgressTracker(models.PhaseOrder, report)
	current := 0
	deleted := 0
	var archiveURL *string

	log := s.logger.WithFields(logrus.Fields{
		"run_id": runID,
		"dni":    dni,
	})
	log.Info("Starting owner cascade deletion")
	s.auditStart(runID, dni, startedAt)

	defer func() {
		r := recover()
		fromReport := r != nil && tracker.inReport
		if r != nil {
			log.WithField("panic", r).Error("Unexpected failure during cascade deletion")
			if !fromReport {
				tracker.fail(current)
			}
			result = nil
			err = &CascadeError{Phase: models.PhaseOrder[current], Err: fmt.Errorf("%w: %v", ErrUnexpected, r)}
		}
		s.auditFinish(runID, dni, deleted, archiveURL, err)
		if err != nil {
			var cascadeErr *CascadeError
			phase := string(models.PhaseOrder[current])
			if errors.As(err, &cascadeErr) {
				phase = string(cascadeErr.Phase)
			}
			metrics.CascadeFinished(phase)
			log.WithError(err).Error("Owner cascade deletion failed")
		} else {
			metrics.CascadeFinished("")
		}
		if fromReport {
			panic(r)
		}
	}()

	cols, err := s.fetchAll(ctx, tracker)
	if err != nil {
		return nil, err
	}

	res := ResolveOwnership(dni, cols)
	log.WithFields(logrus.Fields{
		"puntos_recogida": len(res.CollectionPoints),
		"contenedores":    len(res.Containers),
		"recogidas":       len(res.PickupEvents),
		"facturaciones":   len(res.BillingRecords),
	}).Info("Owner dependents resolved")

	if s.archiver != nil {
		if url, archiveErr := s.archiver.Archive(ctx, runID, dni, res); archiveErr != nil {
			log.WithError(archiveErr).Warn("Could not archive records before deletion, continuing")
		} else {
			archiveURL = &url
		}
	}

	for i, phase := range PlanDeletion(dni, res) {
		current = i + 1
		tracker.start(current, len(phase.Targets))
		for j, path := range phase.Targets {
			if err := s.client.DeleteResource(ctx, path); err != nil {
				tracker.fail(current)
				return nil, &CascadeError{Phase: phase.Kind, Path: path, Err: err}
			}
			deleted++
			metrics.RecordDeleted(string(phase.Kind))
			tracker.advance(current, j+1)
		}
		tracker.complete(current)
	}

	result = &models.CascadeResult{
		RunID:            runID,
		DNI:              dni,
		PickupEvents:     len(res.PickupEvents),
		Containers:       len(res.Containers),
		CollectionPoints: len(res.CollectionPoints),
		BillingRecords:   len(res.BillingRecords),
		ArchiveURL:       archiveURL,
		StartedAt:        startedAt,
		FinishedAt:       time.Now(),
	}
	log.WithField("deleted", deleted).Info("Owner cascade deletion completed")

	s.notify(ctx, res, result)
	return result, nil
}

// Stream expone el mismo borrado como una secuencia perezosa de instantáneas.
// Sólo puede recorrerse una vez; dejar de recorrerla no detiene el borrado.
// Si falla, el último elemento lleva el error.
func (s *CascadeDeleteService) Stream(ctx context.Context, dni string) iter.Seq2[models.CascadeProgress, error] {
	var consumed atomic.Bool
	return func(yield func(models.CascadeProgress, error) bool) {
		if consumed.Swap(true) {
			yield(models.CascadeProgress{}, ErrStreamConsumed)
			return
		}

		listening := true
		var last models.CascadeProgress
		_, err := s.DeleteOwner(ctx, dni, func(p models.CascadeProgress) {
			last = p
			if listening && !yield(p, nil) {
				listening = false
			}
		})
		if err != nil && listening {
			yield(last, err)
		}
	}
}

// fetchAll lee las cuatro colecciones en una sola fase
func (s *CascadeDeleteService) fetchAll(ctx context.Context, tracker *progressTracker) (Collections, error) {
	var cols Collections
	var err error
	const fetchPhase = 0

	fail := func(path string, err error) (Collections, error) {
		tracker.fail(fetchPhase)
		return Collections{}, &CascadeError{Phase: models.PhaseFetch, Path: path, Err: err}
	}

	tracker.start(fetchPhase, 4)

	if cols.PickupEvents, err = upstream.FetchAs[models.PickupEvent](ctx, s.client, upstream.PathPickupEvents); err != nil {
		return fail(upstream.PathPickupEvents, err)
	}
	tracker.advance(fetchPhase, 1)

	if cols.Containers, err = upstream.FetchAs[models.Container](ctx, s.client, upstream.PathContainers); err != nil {
		return fail(upstream.PathContainers, err)
	}
	tracker.advance(fetchPhase, 2)

	if cols.CollectionPoints, err = upstream.FetchAs[models.CollectionPoint](ctx, s.client, upstream.PathCollectionPoints); err != nil {
		return fail(upstream.PathCollectionPoints, err)
	}
	tracker.advance(fetchPhase, 3)

	if cols.BillingRecords, err = upstream.FetchAs[models.BillingRecord](ctx, s.client, upstream.PathBillingRecords); err != nil {
		return fail(upstream.PathBillingRecords, err)
	}
	tracker.advance(fetchPhase, 4)
	tracker.complete(fetchPhase)

	return cols, nil
}

// notify lanza los efectos posteriores; sus fallos no afectan al resultado
func (s *CascadeDeleteService) notify(ctx context.Context, res Resolution, result *models.CascadeResult) {
	if s.publisher != nil {
		if err := s.publisher.PublishOwnerDeleted(ctx, result); err != nil {
			s.logger.WithError(err).WithField("dni", result.DNI).Warn("Could not publish owner deleted event")
		}
	}

	if s.mailer != nil {
		owner := embeddedOwner(result.DNI, res)
		if owner == nil || owner.Email == "" {
			s.logger.WithField("dni", result.DNI).Debug("Owner email unknown, skipping confirmation email")
			return
		}
		if err := s.mailer.SendAccountDeletedEmail(owner, result); err != nil {
			s.logger.WithError(err).WithField("dni", result.DNI).Warn("Could not send account deletion email")
		}
	}
}

// embeddedOwner busca los datos de contacto del propietario en los registros ya leídos
func embeddedOwner(dni string, res Resolution) *models.Owner {
	for i := range res.CollectionPoints {
		if o := res.CollectionPoints[i].Owner; o != nil && o.DNI == dni && o.Email != "" {
			return o
		}
	}
	for i := range res.BillingRecords {
		if o := res.BillingRecords[i].Owner; o != nil && o.DNI == dni && o.Email != "" {
			return o
		}
	}
	return nil
}

func (s *CascadeDeleteService) auditStart(id uuid.UUID, dni string, startedAt time.Time) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Start(id, dni, startedAt); err != nil {
		s.logger.WithError(err).WithField("run_id", id).Warn("Could not record cascade run start")
	}
}

func (s *CascadeDeleteService) auditFinish(id uuid.UUID, dni string, deleted int, archiveURL *string, runErr error) {
	if s.auditor == nil {
		return
	}

	finishedAt := time.Now()
	run := &models.CascadeRun{
		ID:         id,
		DNI:        dni,
		Status:     models.CascadeRunCompleted,
		Deleted:    deleted,
		ArchiveURL: archiveURL,
		FinishedAt: &finishedAt,
	}
	if runErr != nil {
		run.Status = models.CascadeRunFailed
		text := runErr.Error()
		run.ErrorText = &text
		var cascadeErr *CascadeError
		if errors.As(runErr, &cascadeErr) {
			phase := string(cascadeErr.Phase)
			run.FailedPhase = &phase
		}
	}

	if err := s.auditor.Finish(run); err != nil {
		s.logger.WithError(err).WithField("run_id", id).Warn("Could not record cascade run result")
	}
}

// progressTracker mantiene el estado de las fases y calcula el porcentaje.
// El porcentaje nunca baja y sólo llega a 100 al completar la última fase.
type progressTracker struct {
	steps   []models.CascadeStep
	percent int
	report  ProgressFunc
	// inReport queda a true si report entra en pánico
	inReport bool
}

func newProgressTracker(phases []models.PhaseKind, report ProgressFunc) *progressTracker {
	return &progressTracker{
		steps:  models.PendingProgress(phases).Steps,
		report: report,
	}
}

func (t *progressTracker) start(i, total int) {
	t.steps[i].Status = models.StepProcessing
	t.steps[i].Total = total
	t.steps[i].Done = 0
	t.emit(i)
}

func (t *progressTracker) advance(i, done int) {
	t.steps[i].Done = done
	t.emit(i)
}

func (t *progressTracker) complete(i int) {
	t.steps[i].Status = models.StepCompleted
	t.steps[i].Done = t.steps[i].Total
	t.emit(i)
}

func (t *progressTracker) fail(i int) {
	t.steps[i].Status = models.StepError
	t.emit(i)
}

func (t *progressTracker) emit(i int) {
	n := len(t.steps)
	step := t.steps[i]

	var fraction int
	switch {
	case step.Status == models.StepCompleted:
		fraction = 100
	case step.Total > 0:
		fraction = step.Done * 99 / step.Total
	}

	percent := (i*100 + fraction) / n
	if percent > t.percent {
		t.percent = percent
	}

	if t.report == nil {
		return
	}
	t.inReport = true
	t.report(models.CascadeProgress{
		Percent: t.percent,
		Steps:   append([]models.CascadeStep(nil), t.steps...),
	})
	t.inReport = false
}
