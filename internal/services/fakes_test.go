package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ecoverde/compost-service/internal/models"
	"github.com/ecoverde/compost-service/internal/upstream"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeClient responde colecciones fijas y registra el orden de las llamadas
type fakeClient struct {
	mu          sync.Mutex
	collections map[string]string
	fetchErr    map[string]error
	deleteErr   map[string]error
	owners      map[string]models.Owner
	panicOn     string
	calls       []string
	deleted     []string
	deleteHook  func(path string)
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		collections: map[string]string{},
		fetchErr:    map[string]error{},
		deleteErr:   map[string]error{},
		owners:      map[string]models.Owner{},
	}
}

func (f *fakeClient) FetchCollection(_ context.Context, path string) ([]json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "GET "+path)
	err := f.fetchErr[path]
	body, ok := f.collections[path]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok {
		body = "[]"
	}
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, &upstream.ParseError{Path: path, Index: -1, Err: err}
	}
	return raw, nil
}

func (f *fakeClient) DeleteResource(_ context.Context, path string) error {
	if f.panicOn == path {
		panic("boom")
	}
	f.mu.Lock()
	f.calls = append(f.calls, "DELETE "+path)
	err := f.deleteErr[path]
	hook := f.deleteHook
	if err == nil {
		f.deleted = append(f.deleted, path)
	}
	f.mu.Unlock()

	if hook != nil {
		hook(path)
	}
	return err
}

func (f *fakeClient) FetchOne(_ context.Context, path string, out interface{}) error {
	owner, ok := f.owners[path]
	if !ok {
		return fmt.Errorf("error fetching %s: %w", path, upstream.ErrNotFound)
	}
	o, isOwner := out.(*models.Owner)
	if !isOwner {
		return errors.New("unexpected target type")
	}
	*o = owner
	return nil
}

func (f *fakeClient) deletes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if len(c) > 7 && c[:7] == "DELETE " {
			out = append(out, c[7:])
		}
	}
	return out
}

// seedScenario carga el propietario 12345678A con un punto, un contenedor,
// una recogida y una facturación, más registros de otro propietario
func seedScenario(f *fakeClient) {
	f.collections[upstream.PathCollectionPoints] = `[
		{"id": 10, "direccion": "Rúa Nova 1", "propietario": {"dni": "12345678A", "nombre": "Ana", "email": "ana@example.com"}},
		{"id": 11, "direccion": "Rúa Vella 2", "propietario": {"dni": "87654321B"}}
	]`
	f.collections[upstream.PathContainers] = `[
		{"id": 100, "capacidad": 160, "puntoRecogida": {"id": 10, "propietario": {"dni": "12345678A"}}},
		{"id": 101, "capacidad": 240, "puntoRecogida": {"id": 11, "propietario": {"dni": "87654321B"}}}
	]`
	f.collections[upstream.PathPickupEvents] = `[
		{"id": 1000, "contenedor": {"id": 100, "puntoRecogida": {"id": 10, "propietario": {"dni": "12345678A"}}}},
		{"id": 1001, "contenedor": {"id": 101, "puntoRecogida": {"id": 11, "propietario": {"dni": "87654321B"}}}},
		{"id": 1002}
	]`
	f.collections[upstream.PathBillingRecords] = `[
		{"id": 500, "total": 42.5, "propietario": {"dni": "12345678A"}},
		{"id": 501, "total": 10, "propietario": {"dni": "87654321B"}}
	]`
}

type fakeArchiver struct {
	calls int
	err   error
	res   Resolution
}

func (a *fakeArchiver) Archive(_ context.Context, runID uuid.UUID, _ string, res Resolution) (string, error) {
	a.calls++
	a.res = res
	if a.err != nil {
		return "", a.err
	}
	return "https://storage.example.com/" + ArchiveKey(runID), nil
}

type fakeAuditor struct {
	mu       sync.Mutex
	started  []uuid.UUID
	finished []models.CascadeRun
}

func (a *fakeAuditor) Start(id uuid.UUID, _ string, _ time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = append(a.started, id)
	return nil
}

func (a *fakeAuditor) Finish(run *models.CascadeRun) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finished = append(a.finished, *run)
	return nil
}

type fakePublisher struct {
	results []*models.CascadeResult
	err     error
}

func (p *fakePublisher) PublishOwnerDeleted(_ context.Context, result *models.CascadeResult) error {
	p.results = append(p.results, result)
	return p.err
}

type fakeMailer struct {
	owners []*models.Owner
}

func (m *fakeMailer) SendAccountDeletedEmail(owner *models.Owner, _ *models.CascadeResult) error {
	m.owners = append(m.owners, owner)
	return nil
}
