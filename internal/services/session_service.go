package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ecoverde/compost-service/internal/database"
	"github.com/ecoverde/compost-service/internal/metrics"
	"github.com/ecoverde/compost-service/internal/models"
	"github.com/ecoverde/compost-service/internal/upstream"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidCredentials se retorna cuando el login no es válido
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionNotFound se retorna cuando la sesión no existe o expiró
	ErrSessionNotFound = errors.New("session not found")
)

// SessionStore persiste sesiones
type SessionStore interface {
	Save(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// OwnerLookup confirma que un propietario existe en la API externa
type OwnerLookup interface {
	FetchOne(ctx context.Context, path string, out interface{}) error
}

// SessionService crea y destruye el contexto de sesión
type SessionService struct {
	store        SessionStore
	owners       OwnerLookup
	operatorHash [32]byte
	hasOperator  bool
	ttl          time.Duration
	logger       *logrus.Logger
}

// NewSessionService crea una nueva instancia del servicio
func NewSessionService(store SessionStore, owners OwnerLookup, operatorKey string, ttl time.Duration, logger *logrus.Logger) *SessionService {
	s := &SessionService{
		store:  store,
		owners: owners,
		ttl:    ttl,
		logger: logger,
	}
	if operatorKey != "" {
		s.operatorHash = sha256.Sum256([]byte(operatorKey))
		s.hasOperator = true
	}
	return s
}

// Login crea una sesión nueva
func (s *SessionService) Login(ctx context.Context, req *models.LoginRequest) (*models.Session, error) {
	now := time.Now()
	session := &models.Session{
		ID:        uuid.New(),
		Role:      req.Role,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	switch req.Role {
	case models.RoleOwner:
		dni := strings.TrimSpace(req.DNI)
		if dni == "" {
			return nil, fmt.Errorf("%w: dni is required", ErrInvalidCredentials)
		}
		var owner models.Owner
		if err := s.owners.FetchOne(ctx, OwnerPath(dni), &owner); err != nil {
			if errors.Is(err, upstream.ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown owner", ErrInvalidCredentials)
			}
			return nil, fmt.Errorf("error verifying owner: %w", err)
		}
		// el DNI canónico es el que guarda la API externa
		session.DNI = owner.DNI
		if session.DNI == "" {
			session.DNI = dni
		}
		session.Name = owner.Name
	case models.RoleOperator:
		if !s.validOperatorKey(req.APIKey) {
			return nil, fmt.Errorf("%w: invalid operator key", ErrInvalidCredentials)
		}
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidCredentials, req.Role)
	}

	if err := s.store.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("error saving session: %w", err)
	}
	metrics.SessionOpened()

	s.logger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"role":       session.Role,
		"dni":        session.DNI,
	}).Info("Session created")

	return session, nil
}

// Resolve obtiene una sesión vigente
func (s *SessionService) Resolve(ctx context.Context, rawID string) (*models.Session, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	session, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrKeyNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("error loading session: %w", err)
	}
	if session.Expired(time.Now()) {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Logout destruye la sesión
func (s *SessionService) Logout(ctx context.Context, session *models.Session) error {
	if err := s.store.Delete(ctx, session.ID); err != nil {
		return fmt.Errorf("error deleting session: %w", err)
	}
	metrics.SessionClosed()

	s.logger.WithField("session_id", session.ID).Info("Session closed")
	return nil
}

func (s *SessionService) validOperatorKey(key string) bool {
	if !s.hasOperator || key == "" {
		return false
	}
	hash := sha256.Sum256([]byte(key))
	return subtle.ConstantTimeCompare(hash[:], s.operatorHash[:]) == 1
}
