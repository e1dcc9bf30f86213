package database

import (
	"context"
	"sync"
	"time"

	"github.com/ecoverde/compost-service/internal/models"
	"github.com/google/uuid"
)

// MemorySessionStore es el store de sesiones usado cuando Redis no está disponible
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]models.Session
}

// NewMemorySessionStore crea un store en memoria
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[uuid.UUID]models.Session)}
}

// Save guarda una copia de la sesión y descarta las expiradas
func (s *MemorySessionStore) Save(_ context.Context, session *models.Session) error {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, stored := range s.sessions {
		if stored.Expired(now) {
			delete(s.sessions, id)
		}
	}
	s.sessions[session.ID] = *session
	return nil
}

// Get obtiene la sesión si no expiró
func (s *MemorySessionStore) Get(_ context.Context, id uuid.UUID) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrKeyNotFound
	}
	if session.Expired(time.Now()) {
		delete(s.sessions, id)
		return nil, ErrKeyNotFound
	}
	return &session, nil
}

// Delete elimina una sesión
func (s *MemorySessionStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// MemoryFlowStore es el store de flujos en memoria
type MemoryFlowStore struct {
	mu    sync.RWMutex
	flows map[string]models.DeletionFlow
}

// NewMemoryFlowStore crea un store de flujos en memoria
func NewMemoryFlowStore() *MemoryFlowStore {
	return &MemoryFlowStore{flows: make(map[string]models.DeletionFlow)}
}

// Save guarda una copia del flujo
func (s *MemoryFlowStore) Save(_ context.Context, flow *models.DeletionFlow) error {
	copied := *flow
	copied.Progress.Steps = append([]models.CascadeStep(nil), flow.Progress.Steps...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[flowKey(flow.SessionID, flow.DNI)] = copied
	return nil
}

// Get obtiene una copia del flujo
func (s *MemoryFlowStore) Get(_ context.Context, sessionID, dni string) (*models.DeletionFlow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	flow, ok := s.flows[flowKey(sessionID, dni)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	flow.Progress.Steps = append([]models.CascadeStep(nil), flow.Progress.Steps...)
	return &flow, nil
}
