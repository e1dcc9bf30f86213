package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeletionFlowHappyPath(t *testing.T) {
	f := NewDeletionFlow("session", "12345678A")
	require.Equal(t, FlowIdle, f.State)

	require.NoError(t, f.Open("¿Seguro?"))
	assert.Equal(t, FlowConfirming, f.State)

	require.NoError(t, f.Confirm(PhaseOrder))
	assert.Equal(t, FlowProcessing, f.State)
	require.Len(t, f.Progress.Steps, len(PhaseOrder))
	assert.Equal(t, StepPending, f.Progress.Steps[0].Status)
	assert.Equal(t, "Obteniendo datos", f.Progress.Steps[0].Label)

	f.Report(CascadeProgress{Percent: 50})
	f.Report(CascadeProgress{Percent: 30})
	assert.Equal(t, 50, f.Progress.Percent)

	require.NoError(t, f.Finish(nil))
	assert.Equal(t, FlowCompleted, f.State)
	assert.True(t, f.Success)

	require.NoError(t, f.Acknowledge())
	assert.Equal(t, FlowClosed, f.State)
}

func TestDeletionFlowConfirmOnlyOnce(t *testing.T) {
	f := NewDeletionFlow("session", "12345678A")
	require.NoError(t, f.Confirm(PhaseOrder))

	err := f.Confirm(PhaseOrder)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, f.Open("otra vez"), ErrInvalidTransition)
}

func TestDeletionFlowFailure(t *testing.T) {
	f := NewDeletionFlow("session", "12345678A")
	require.NoError(t, f.Confirm(PhaseOrder))
	require.NoError(t, f.Finish(errors.New("Error en la fase")))

	assert.Equal(t, FlowError, f.State)
	assert.Equal(t, "Error en la fase", f.Error)
	assert.False(t, f.Success)

	// no hay cierre automático: sólo acknowledge o dismiss
	f.Report(CascadeProgress{Percent: 99})
	assert.Equal(t, FlowError, f.State)
	assert.ErrorIs(t, f.Finish(nil), ErrInvalidTransition)
}

func TestDeletionFlowDismiss(t *testing.T) {
	f := NewDeletionFlow("session", "12345678A")
	require.NoError(t, f.Open("¿Seguro?"))
	require.NoError(t, f.Dismiss(false))
	assert.Equal(t, FlowClosed, f.State)
	assert.False(t, f.Success)

	assert.ErrorIs(t, f.Dismiss(false), ErrInvalidTransition)
}

func TestDeletionFlowDismissWhileProcessing(t *testing.T) {
	f := NewDeletionFlow("session", "12345678A")
	require.NoError(t, f.Confirm(PhaseOrder))

	err := f.Dismiss(false)
	assert.ErrorIs(t, err, ErrDismissNeedsConfirmation)
	assert.Equal(t, FlowProcessing, f.State)
	assert.Equal(t, CancelWarning, f.Warning)

	require.NoError(t, f.Dismiss(true))
	assert.Equal(t, FlowClosed, f.State)
	assert.True(t, f.Abandoned)
	assert.ErrorIs(t, f.Finish(nil), ErrInvalidTransition)
}

func TestDeletionFlowReopenResets(t *testing.T) {
	f := NewDeletionFlow("session", "12345678A")
	require.NoError(t, f.Confirm(PhaseOrder))
	require.NoError(t, f.Finish(errors.New("fallo")))

	require.NoError(t, f.Open("¿Reintentar?"))
	assert.Equal(t, FlowConfirming, f.State)
	assert.Empty(t, f.Error)
	assert.Empty(t, f.Progress.Steps)
	assert.Equal(t, "session", f.SessionID)
	assert.Equal(t, "12345678A", f.DNI)
}

func TestPhaseLabelFallback(t *testing.T) {
	assert.Equal(t, "Eliminando propietario", PhaseDeleteOwner.Label())
	assert.Equal(t, "desconocida", PhaseKind("desconocida").Label())
}
