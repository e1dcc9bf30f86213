package models

import (
	"errors"
	"fmt"
	"time"
)

// FlowState representa el estado del diálogo de borrado de cuenta
type FlowState string

const (
	FlowIdle       FlowState = "idle"
	FlowConfirming FlowState = "confirming"
	FlowProcessing FlowState = "processing"
	FlowCompleted  FlowState = "completed"
	FlowError      FlowState = "error"
	FlowClosed     FlowState = "closed"
)

var (
	// ErrInvalidTransition se retorna cuando la acción no aplica al estado actual
	ErrInvalidTransition = errors.New("invalid deletion flow transition")
	// ErrDismissNeedsConfirmation se retorna al cerrar un borrado en curso sin confirmación adicional
	ErrDismissNeedsConfirmation = errors.New("deletion in progress: closing now may leave inconsistent data")
)

// CancelWarning es el aviso mostrado antes de abandonar un borrado en curso
const CancelWarning = "El borrado ya está en curso. Si cierras ahora, los datos eliminados no se recuperarán y la cuenta puede quedar en un estado inconsistente."

// DeletionFlow es la máquina de estados de confirmación y progreso
type DeletionFlow struct {
	DNI       string          `json:"dni"`
	SessionID string          `json:"session_id"`
	State     FlowState       `json:"state"`
	Message   string          `json:"message,omitempty"`
	Progress  CascadeProgress `json:"progress"`
	Error     string          `json:"error,omitempty"`
	Warning   string          `json:"warning,omitempty"`
	Success   bool            `json:"success"`
	Abandoned bool            `json:"abandoned,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewDeletionFlow crea un flujo en estado idle
func NewDeletionFlow(sessionID, dni string) *DeletionFlow {
	return &DeletionFlow{
		DNI:       dni,
		SessionID: sessionID,
		State:     FlowIdle,
		UpdatedAt: time.Now(),
	}
}

// Reset vuelve el flujo a idle descartando todo el estado anterior
func (f *DeletionFlow) Reset() {
	*f = *NewDeletionFlow(f.SessionID, f.DNI)
}

// Open muestra el mensaje de confirmación. Reabrir tras un final reinicia el flujo.
func (f *DeletionFlow) Open(message string) error {
	switch f.State {
	case FlowProcessing:
		return fmt.Errorf("%w: cannot open while %s", ErrInvalidTransition, f.State)
	case FlowCompleted, FlowError, FlowClosed:
		f.Reset()
	}
	f.State = FlowConfirming
	f.Message = message
	f.touch()
	return nil
}

// Confirm pasa a processing; sólo se permite una vez por apertura
func (f *DeletionFlow) Confirm(phases []PhaseKind) error {
	if f.State != FlowIdle && f.State != FlowConfirming {
		return fmt.Errorf("%w: cannot confirm while %s", ErrInvalidTransition, f.State)
	}
	f.State = FlowProcessing
	f.Progress = PendingProgress(phases)
	f.touch()
	return nil
}

// Report actualiza el progreso visible mientras se procesa
func (f *DeletionFlow) Report(progress CascadeProgress) {
	if f.State != FlowProcessing {
		return
	}
	if progress.Percent < f.Progress.Percent {
		progress.Percent = f.Progress.Percent
	}
	f.Progress = progress
	f.touch()
}

// Finish cierra el procesamiento con éxito o con el mensaje del error
func (f *DeletionFlow) Finish(err error) error {
	if f.State != FlowProcessing {
		return fmt.Errorf("%w: cannot finish while %s", ErrInvalidTransition, f.State)
	}
	if err != nil {
		f.State = FlowError
		f.Error = err.Error()
	} else {
		f.State = FlowCompleted
		f.Success = true
	}
	f.touch()
	return nil
}

// Acknowledge cierra el flujo tras un resultado final; no hay cierre automático
func (f *DeletionFlow) Acknowledge() error {
	if f.State != FlowCompleted && f.State != FlowError {
		return fmt.Errorf("%w: cannot acknowledge while %s", ErrInvalidTransition, f.State)
	}
	f.State = FlowClosed
	f.touch()
	return nil
}

// Dismiss cancela el diálogo. Durante processing exige force y el borrado
// sigue ejecutándose; sólo se abandona la vista.
func (f *DeletionFlow) Dismiss(force bool) error {
	switch f.State {
	case FlowIdle, FlowConfirming:
		f.State = FlowClosed
		f.Success = false
	case FlowProcessing:
		if !force {
			f.Warning = CancelWarning
			f.touch()
			return ErrDismissNeedsConfirmation
		}
		f.State = FlowClosed
		f.Abandoned = true
		f.Warning = CancelWarning
	case FlowCompleted, FlowError:
		f.State = FlowClosed
	default:
		return fmt.Errorf("%w: cannot dismiss while %s", ErrInvalidTransition, f.State)
	}
	f.touch()
	return nil
}

func (f *DeletionFlow) touch() {
	f.UpdatedAt = time.Now()
}

// PendingProgress construye el progreso inicial con todas las fases pendientes
func PendingProgress(phases []PhaseKind) CascadeProgress {
	steps := make([]CascadeStep, 0, len(phases))
	for _, phase := range phases {
		steps = append(steps, CascadeStep{
			Phase:  phase,
			Label:  phase.Label(),
			Status: StepPending,
		})
	}
	return CascadeProgress{Steps: steps}
}

// OpenFlowRequest representa el request para abrir el diálogo
type OpenFlowRequest struct {
	Message string `json:"message"`
}

// CloseFlowResponse representa el resultado de cerrar el diálogo
type CloseFlowResponse struct {
	Closed  bool   `json:"closed"`
	Success bool   `json:"success"`
	Warning string `json:"warning,omitempty"`
}
