package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/ecoverde/compost-service/internal/models"
	"github.com/ecoverde/compost-service/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCollections(t *testing.T, f *fakeClient, cols Collections) {
	t.Helper()
	encode := func(v interface{}) string {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		return string(data)
	}
	f.collections[upstream.PathCollectionPoints] = encode(cols.CollectionPoints)
	f.collections[upstream.PathContainers] = encode(cols.Containers)
	f.collections[upstream.PathPickupEvents] = encode(cols.PickupEvents)
	f.collections[upstream.PathBillingRecords] = encode(cols.BillingRecords)
}

func collectProgress(out *[]models.CascadeProgress) ProgressFunc {
	return func(p models.CascadeProgress) {
		*out = append(*out, p)
	}
}

func assertMonotonic(t *testing.T, progress []models.CascadeProgress) {
	t.Helper()
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i].Percent, progress[i-1].Percent, "percent decreased at snapshot %d", i)
	}
}

func TestDeleteOwnerKeepsIdentifierVerbatim(t *testing.T) {
	client := newFakeClient()
	client.collections[upstream.PathCollectionPoints] = `[{"id": 10, "propietario": {"dni": "12345678a"}}]`
	client.collections[upstream.PathContainers] = `[{"id": 100, "puntoRecogida": {"id": 10, "propietario": {"dni": "12345678a"}}}]`
	client.collections[upstream.PathPickupEvents] = `[{"id": 1000, "contenedor": {"id": 100, "puntoRecogida": {"id": 10, "propietario": {"dni": "12345678a"}}}}]`
	client.collections[upstream.PathBillingRecords] = `[{"id": 500, "propietario": {"dni": "12345678a"}}, {"id": 501, "propietario": {"dni": "12345678A"}}]`
	svc := NewCascadeDeleteService(client, quietLogger())

	result, err := svc.DeleteOwner(context.Background(), "12345678a", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/recogidas/1000",
		"/contenedores/100",
		"/puntos-recogida/10",
		"/facturaciones/500",
		"/propietarios/12345678a",
	}, client.deletes())
	assert.Equal(t, "12345678a", result.DNI)
}

func TestDeleteOwnerScenario(t *testing.T) {
	client := newFakeClient()
	seedScenario(client)
	svc := NewCascadeDeleteService(client, quietLogger())

	var progress []models.CascadeProgress
	result, err := svc.DeleteOwner(context.Background(), "12345678A", collectProgress(&progress))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/recogidas/1000",
		"/contenedores/100",
		"/puntos-recogida/10",
		"/facturaciones/500",
		"/propietarios/12345678A",
	}, client.deletes())

	// las cuatro lecturas ocurren antes de cualquier borrado
	assert.Equal(t, []string{
		"GET /recogidas",
		"GET /contenedores",
		"GET /puntos-recogida",
		"GET /facturaciones",
	}, client.calls[:4])

	require.NotNil(t, result)
	assert.Equal(t, "12345678A", result.DNI)
	assert.Equal(t, 1, result.PickupEvents)
	assert.Equal(t, 1, result.Containers)
	assert.Equal(t, 1, result.CollectionPoints)
	assert.Equal(t, 1, result.BillingRecords)
	assert.Nil(t, result.ArchiveURL)

	require.NotEmpty(t, progress)
	assertMonotonic(t, progress)

	last := progress[len(progress)-1]
	assert.Equal(t, 100, last.Percent)
	require.Len(t, last.Steps, len(models.PhaseOrder))
	for _, step := range last.Steps {
		assert.Equal(t, models.StepCompleted, step.Status, step.Phase)
	}

	// 100 sólo aparece en la última instantánea
	for _, p := range progress[:len(progress)-1] {
		assert.Less(t, p.Percent, 100)
	}
}

func TestDeleteOwnerReportsEveryPhaseTransition(t *testing.T) {
	client := newFakeClient()
	seedScenario(client)
	svc := NewCascadeDeleteService(client, quietLogger())

	var progress []models.CascadeProgress
	_, err := svc.DeleteOwner(context.Background(), "12345678A", collectProgress(&progress))
	require.NoError(t, err)

	for i, phase := range models.PhaseOrder {
		sawProcessing, sawCompleted := false, false
		for _, p := range progress {
			switch p.Steps[i].Status {
			case models.StepProcessing:
				sawProcessing = true
			case models.StepCompleted:
				sawCompleted = true
			}
		}
		assert.True(t, sawProcessing, "phase %s never entered processing", phase)
		assert.True(t, sawCompleted, "phase %s never completed", phase)
	}
}

func TestDeleteOwnerDeletesDependentsBeforeParents(t *testing.T) {
	client := newFakeClient()
	seedCollections(t, client, twoPointsFixture())
	svc := NewCascadeDeleteService(client, quietLogger())

	_, err := svc.DeleteOwner(context.Background(), "12345678A", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/recogidas/1000",
		"/recogidas/1001",
		"/recogidas/1002",
		"/contenedores/100",
		"/contenedores/101",
		"/contenedores/102",
		"/puntos-recogida/10",
		"/puntos-recogida/11",
		"/facturaciones/500",
		"/propietarios/12345678A",
	}, client.deletes())
}

func TestDeleteOwnerStopsAtFailedContainer(t *testing.T) {
	client := newFakeClient()
	seedCollections(t, client, twoPointsFixture())
	client.deleteErr["/contenedores/101"] = &upstream.DeleteError{Path: "/contenedores/101", StatusCode: http.StatusConflict}
	auditor := &fakeAuditor{}
	svc := NewCascadeDeleteService(client, quietLogger(), WithAuditor(auditor))

	var progress []models.CascadeProgress
	result, err := svc.DeleteOwner(context.Background(), "12345678A", collectProgress(&progress))
	require.Error(t, err)
	assert.Nil(t, result)

	assert.Equal(t, []string{
		"/recogidas/1000",
		"/recogidas/1001",
		"/recogidas/1002",
		"/contenedores/100",
		"/contenedores/101",
	}, client.deletes())

	var cascadeErr *CascadeError
	require.True(t, errors.As(err, &cascadeErr))
	assert.Equal(t, models.PhaseDeleteContainers, cascadeErr.Phase)
	assert.Equal(t, "/contenedores/101", cascadeErr.Path)
	assert.Contains(t, err.Error(), "Eliminando contenedores")

	var deleteErr *upstream.DeleteError
	require.True(t, errors.As(err, &deleteErr))
	assert.Equal(t, http.StatusConflict, deleteErr.StatusCode)

	last := progress[len(progress)-1]
	assert.Less(t, last.Percent, 100)
	assert.Equal(t, models.StepCompleted, last.Steps[1].Status)
	assert.Equal(t, models.StepError, last.Steps[2].Status)
	assert.Equal(t, 1, last.Steps[2].Done)
	assert.Equal(t, 3, last.Steps[2].Total)
	assert.Equal(t, models.StepPending, last.Steps[3].Status)
	assertMonotonic(t, progress)

	require.Len(t, auditor.finished, 1)
	run := auditor.finished[0]
	assert.Equal(t, models.CascadeRunFailed, run.Status)
	require.NotNil(t, run.FailedPhase)
	assert.Equal(t, string(models.PhaseDeleteContainers), *run.FailedPhase)
	assert.Equal(t, 4, run.Deleted)
}

func TestDeleteOwnerFetchErrorDeletesNothing(t *testing.T) {
	client := newFakeClient()
	seedScenario(client)
	client.fetchErr[upstream.PathContainers] = &upstream.FetchError{Path: upstream.PathContainers, StatusCode: http.StatusBadGateway}
	svc := NewCascadeDeleteService(client, quietLogger())

	var progress []models.CascadeProgress
	_, err := svc.DeleteOwner(context.Background(), "12345678A", collectProgress(&progress))
	require.Error(t, err)
	assert.Empty(t, client.deletes())

	var cascadeErr *CascadeError
	require.True(t, errors.As(err, &cascadeErr))
	assert.Equal(t, models.PhaseFetch, cascadeErr.Phase)

	var fetchErr *upstream.FetchError
	assert.True(t, errors.As(err, &fetchErr))

	last := progress[len(progress)-1]
	assert.Equal(t, models.StepError, last.Steps[0].Status)
	for _, step := range last.Steps[1:] {
		assert.Equal(t, models.StepPending, step.Status)
	}
}

func TestDeleteOwnerMalformedRecordFailsFetch(t *testing.T) {
	client := newFakeClient()
	seedScenario(client)
	client.collections[upstream.PathBillingRecords] = `[{"id": 500}, {"total": 3}]`
	svc := NewCascadeDeleteService(client, quietLogger())

	_, err := svc.DeleteOwner(context.Background(), "12345678A", nil)
	require.Error(t, err)
	assert.Empty(t, client.deletes())

	var parseErr *upstream.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, 1, parseErr.Index)
}

func TestDeleteOwnerRecoversPanic(t *testing.T) {
	client := newFakeClient()
	seedScenario(client)
	client.panicOn = "/contenedores/100"
	svc := NewCascadeDeleteService(client, quietLogger())

	var progress []models.CascadeProgress
	result, err := svc.DeleteOwner(context.Background(), "12345678A", collectProgress(&progress))
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrUnexpected)
	assert.Contains(t, err.Error(), "Error inesperado")
	assert.NotContains(t, err.Error(), "boom")

	var cascadeErr *CascadeError
	require.True(t, errors.As(err, &cascadeErr))
	assert.Equal(t, models.PhaseDeleteContainers, cascadeErr.Phase)

	last := progress[len(progress)-1]
	assert.Equal(t, models.StepError, last.Steps[2].Status)
}

func TestDeleteOwnerPropagatesListenerPanic(t *testing.T) {
	client := newFakeClient()
	seedScenario(client)
	auditor := &fakeAuditor{}
	svc := NewCascadeDeleteService(client, quietLogger(), WithAuditor(auditor))

	calls := 0
	assert.PanicsWithValue(t, "listener", func() {
		_, _ = svc.DeleteOwner(context.Background(), "12345678A", func(models.CascadeProgress) {
			calls++
			if calls == 3 {
				panic("listener")
			}
		})
	})
	assert.Equal(t, 3, calls)
	require.Len(t, auditor.finished, 1)
	assert.Equal(t, models.CascadeRunFailed, auditor.finished[0].Status)
}

func TestStreamLoopBodyPanicPropagates(t *testing.T) {
	client := newFakeClient()
	seedScenario(client)
	svc := NewCascadeDeleteService(client, quietLogger())

	seen := 0
	assert.PanicsWithValue(t, "consumer", func() {
		for range svc.Stream(context.Background(), "12345678A") {
			seen++
			panic("consumer")
		}
	})
	assert.Equal(t, 1, seen)
	assert.Empty(t, client.deletes())
}

func TestDeleteOwnerRequiresDNI(t *testing.T) {
	client := newFakeClient()
	svc := NewCascadeDeleteService(client, quietLogger())

	_, err := svc.DeleteOwner(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrEmptyDNI)
	assert.Empty(t, client.calls)
}

func TestDeleteOwnerWithoutDependents(t *testing.T) {
	client := newFakeClient()
	svc := NewCascadeDeleteService(client, quietLogger())

	var progress []models.CascadeProgress
	_, err := svc.DeleteOwner(context.Background(), "12345678A", collectProgress(&progress))
	require.NoError(t, err)

	assert.Equal(t, []string{"/propietarios/12345678A"}, client.deletes())
	assert.Equal(t, 100, progress[len(progress)-1].Percent)
	assertMonotonic(t, progress)
}

func TestDeleteOwnerCollaborators(t *testing.T) {
	client := newFakeClient()
	seedScenario(client)
	archiver := &fakeArchiver{}
	auditor := &fakeAuditor{}
	publisher := &fakePublisher{}
	mailer := &fakeMailer{}

	svc := NewCascadeDeleteService(client, quietLogger(),
		WithArchiver(archiver),
		WithAuditor(auditor),
		WithEventPublisher(publisher),
		WithMailer(mailer),
	)

	result, err := svc.DeleteOwner(context.Background(), "12345678A", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, archiver.calls)
	assert.Equal(t, 4, archiver.res.Count())
	require.NotNil(t, result.ArchiveURL)
	assert.Contains(t, *result.ArchiveURL, result.RunID.String())

	require.Len(t, auditor.started, 1)
	require.Len(t, auditor.finished, 1)
	assert.Equal(t, result.RunID, auditor.started[0])
	assert.Equal(t, models.CascadeRunCompleted, auditor.finished[0].Status)
	assert.Equal(t, 5, auditor.finished[0].Deleted)
	assert.Nil(t, auditor.finished[0].FailedPhase)

	require.Len(t, publisher.results, 1)
	assert.Equal(t, result, publisher.results[0])

	require.Len(t, mailer.owners, 1)
	assert.Equal(t, "ana@example.com", mailer.owners[0].Email)
}

func TestDeleteOwnerSideEffectFailuresDoNotAbort(t *testing.T) {
	client := newFakeClient()
	seedScenario(client)
	archiver := &fakeArchiver{err: errors.New("bucket unavailable")}
	publisher := &fakePublisher{err: errors.New("inngest down")}

	svc := NewCascadeDeleteService(client, quietLogger(),
		WithArchiver(archiver),
		WithEventPublisher(publisher),
	)

	result, err := svc.DeleteOwner(context.Background(), "12345678A", nil)
	require.NoError(t, err)
	assert.Nil(t, result.ArchiveURL)
	assert.Len(t, client.deletes(), 5)
}

func TestDeleteOwnerSkipsMailWithoutEmail(t *testing.T) {
	client := newFakeClient()
	seedCollections(t, client, twoPointsFixture())
	mailer := &fakeMailer{}
	svc := NewCascadeDeleteService(client, quietLogger(), WithMailer(mailer))

	_, err := svc.DeleteOwner(context.Background(), "12345678A", nil)
	require.NoError(t, err)
	assert.Empty(t, mailer.owners)
}

func TestStreamYieldsSnapshots(t *testing.T) {
	client := newFakeClient()
	seedScenario(client)
	svc := NewCascadeDeleteService(client, quietLogger())

	var progress []models.CascadeProgress
	for p, err := range svc.Stream(context.Background(), "12345678A") {
		require.NoError(t, err)
		progress = append(progress, p)
	}

	require.NotEmpty(t, progress)
	assertMonotonic(t, progress)
	assert.Equal(t, 100, progress[len(progress)-1].Percent)
}

func TestStreamEndsWithError(t *testing.T) {
	client := newFakeClient()
	seedScenario(client)
	client.deleteErr["/puntos-recogida/10"] = &upstream.DeleteError{Path: "/puntos-recogida/10", StatusCode: http.StatusInternalServerError}
	svc := NewCascadeDeleteService(client, quietLogger())

	var lastErr error
	var last models.CascadeProgress
	for p, err := range svc.Stream(context.Background(), "12345678A") {
		last, lastErr = p, err
	}

	require.Error(t, lastErr)
	var cascadeErr *CascadeError
	require.True(t, errors.As(lastErr, &cascadeErr))
	assert.Equal(t, models.PhaseDeletePoints, cascadeErr.Phase)
	assert.Equal(t, models.StepError, last.Steps[3].Status)
}

func TestStreamIsNotRestartable(t *testing.T) {
	client := newFakeClient()
	seedScenario(client)
	svc := NewCascadeDeleteService(client, quietLogger())

	stream := svc.Stream(context.Background(), "12345678A")
	for range stream {
	}

	var errs []error
	for _, err := range stream {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrStreamConsumed)
	assert.Len(t, client.deletes(), 5)
}

func TestStreamBreakDoesNotCancelDeletion(t *testing.T) {
	client := newFakeClient()
	seedScenario(client)
	svc := NewCascadeDeleteService(client, quietLogger())

	seen := 0
	for range svc.Stream(context.Background(), "12345678A") {
		seen++
		break
	}

	assert.Equal(t, 1, seen)
	assert.Len(t, client.deletes(), 5)
}
