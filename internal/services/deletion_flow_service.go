package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ecoverde/compost-service/internal/database"
	"github.com/ecoverde/compost-service/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrFlowBusy se retorna cuando ya hay un borrado en curso para el propietario
var ErrFlowBusy = errors.New("a deletion is already in progress for this owner")

// DefaultConfirmMessage es el texto mostrado si el cliente no envía uno
const DefaultConfirmMessage = "¿Seguro que quieres eliminar la cuenta? Se borrarán todos los puntos de recogida, contenedores, recogidas y facturaciones asociados. Esta acción no se puede deshacer."

// FlowStore persiste el estado de los diálogos de borrado
type FlowStore interface {
	Save(ctx context.Context, flow *models.DeletionFlow) error
	Get(ctx context.Context, sessionID, dni string) (*models.DeletionFlow, error)
}

// OwnerDeleter ejecuta el borrado en cascada
type OwnerDeleter interface {
	DeleteOwner(ctx context.Context, dni string, report ProgressFunc) (*models.CascadeResult, error)
}

// DeletionFlowService conecta el diálogo de confirmación con el borrado en
// cascada. Sólo puede haber un borrado en curso por propietario.
type DeletionFlowService struct {
	store   FlowStore
	cascade OwnerDeleter
	logger  *logrus.Logger

	mu      sync.Mutex
	running map[string]string
	wg      sync.WaitGroup
}

// NewDeletionFlowService crea una nueva instancia del servicio
func NewDeletionFlowService(store FlowStore, cascade OwnerDeleter, logger *logrus.Logger) *DeletionFlowService {
	return &DeletionFlowService{
		store:   store,
		cascade: cascade,
		logger:  logger,
		running: make(map[string]string),
	}
}

// Get retorna el flujo actual, o uno en idle si no existe
func (s *DeletionFlowService) Get(ctx context.Context, session *models.Session, dni string) (*models.DeletionFlow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, session.ID.String(), dni)
}

// Open muestra el diálogo de confirmación
func (s *DeletionFlowService) Open(ctx context.Context, session *models.Session, dni, message string) (*models.DeletionFlow, error) {
	if strings.TrimSpace(message) == "" {
		message = DefaultConfirmMessage
	}
	return s.update(ctx, session.ID.String(), dni, func(f *models.DeletionFlow) error {
		if f.State == models.FlowProcessing {
			return ErrFlowBusy
		}
		return f.Open(message)
	})
}

// Confirm inicia el borrado en segundo plano y retorna el flujo en processing
func (s *DeletionFlowService) Confirm(ctx context.Context, session *models.Session, dni string) (*models.DeletionFlow, error) {
	sessionID := session.ID.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.reserve(dni, sessionID) {
		return nil, ErrFlowBusy
	}

	flow, err := s.load(ctx, sessionID, dni)
	if err != nil {
		delete(s.running, dni)
		return nil, err
	}
	if flow.State == models.FlowProcessing {
		delete(s.running, dni)
		return nil, ErrFlowBusy
	}
	if err := flow.Confirm(models.PhaseOrder); err != nil {
		delete(s.running, dni)
		return nil, err
	}
	if err := s.store.Save(ctx, flow); err != nil {
		delete(s.running, dni)
		return nil, fmt.Errorf("error saving deletion flow: %w", err)
	}

	s.wg.Add(1)
	go s.run(context.WithoutCancel(ctx), sessionID, dni)

	s.logger.WithFields(logrus.Fields{
		"dni":        dni,
		"session_id": sessionID,
	}).Info("Owner deletion confirmed")

	return flow, nil
}

// Acknowledge cierra el flujo tras verlo terminar
func (s *DeletionFlowService) Acknowledge(ctx context.Context, session *models.Session, dni string) (*models.CloseFlowResponse, error) {
	flow, err := s.update(ctx, session.ID.String(), dni, func(f *models.DeletionFlow) error {
		return f.Acknowledge()
	})
	if err != nil {
		return nil, err
	}
	return &models.CloseFlowResponse{Closed: true, Success: flow.Success}, nil
}

// Dismiss cancela el diálogo. Durante el borrado exige force; aun así el
// borrado continúa en segundo plano.
func (s *DeletionFlowService) Dismiss(ctx context.Context, session *models.Session, dni string, force bool) (*models.CloseFlowResponse, error) {
	flow, err := s.update(ctx, session.ID.String(), dni, func(f *models.DeletionFlow) error {
		return f.Dismiss(force)
	})
	if errors.Is(err, models.ErrDismissNeedsConfirmation) {
		return &models.CloseFlowResponse{Closed: false, Warning: models.CancelWarning}, err
	}
	if err != nil {
		return nil, err
	}

	if flow.Abandoned {
		s.logger.WithFields(logrus.Fields{
			"dni":        dni,
			"session_id": session.ID,
		}).Warn("Deletion dialog abandoned while cascade is still running")
	}

	return &models.CloseFlowResponse{Closed: true, Success: flow.Success, Warning: flow.Warning}, nil
}

// RunExclusive ejecuta fn reservando el propietario, igual que Confirm, para
// borrados lanzados fuera del diálogo
func (s *DeletionFlowService) RunExclusive(dni, holder string, fn func()) error {
	s.mu.Lock()
	ok := s.reserve(dni, holder)
	s.mu.Unlock()
	if !ok {
		return ErrFlowBusy
	}
	defer s.release(dni)

	fn()
	return nil
}

// Wait espera a que terminen los borrados en curso
func (s *DeletionFlowService) Wait() {
	s.wg.Wait()
}

func (s *DeletionFlowService) run(ctx context.Context, sessionID, dni string) {
	defer s.wg.Done()
	defer s.release(dni)

	_, runErr := s.cascade.DeleteOwner(ctx, dni, func(p models.CascadeProgress) {
		if _, err := s.update(ctx, sessionID, dni, func(f *models.DeletionFlow) error {
			f.Report(p)
			return nil
		}); err != nil {
			s.logger.WithError(err).WithField("dni", dni).Warn("Could not store deletion progress")
		}
	})

	if _, err := s.update(ctx, sessionID, dni, func(f *models.DeletionFlow) error {
		return f.Finish(runErr)
	}); err != nil {
		s.logger.WithError(err).WithField("dni", dni).Debug("Deletion finished after the dialog was closed")
	}
}

// reserve debe llamarse con mu tomado
func (s *DeletionFlowService) reserve(dni, holder string) bool {
	if current, busy := s.running[dni]; busy {
		s.logger.WithFields(logrus.Fields{
			"dni":     dni,
			"holder":  holder,
			"running": current,
		}).Warn("Rejected duplicate cascade deletion")
		return false
	}
	s.running[dni] = holder
	return true
}

func (s *DeletionFlowService) release(dni string) {
	s.mu.Lock()
	delete(s.running, dni)
	s.mu.Unlock()
}

func (s *DeletionFlowService) update(ctx context.Context, sessionID, dni string, fn func(*models.DeletionFlow) error) (*models.DeletionFlow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flow, err := s.load(ctx, sessionID, dni)
	if err != nil {
		return nil, err
	}
	if err := fn(flow); err != nil {
		if errors.Is(err, models.ErrDismissNeedsConfirmation) {
			if saveErr := s.store.Save(ctx, flow); saveErr != nil {
				return nil, fmt.Errorf("error saving deletion flow: %w", saveErr)
			}
		}
		return flow, err
	}
	if err := s.store.Save(ctx, flow); err != nil {
		return nil, fmt.Errorf("error saving deletion flow: %w", err)
	}
	return flow, nil
}

// load debe llamarse con mu tomado
func (s *DeletionFlowService) load(ctx context.Context, sessionID, dni string) (*models.DeletionFlow, error) {
	flow, err := s.store.Get(ctx, sessionID, dni)
	if errors.Is(err, database.ErrKeyNotFound) {
		return models.NewDeletionFlow(sessionID, dni), nil
	}
	if err != nil {
		return nil, fmt.Errorf("error loading deletion flow: %w", err)
	}
	return flow, nil
}
