package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ecoverde/compost-service/internal/config"
	"github.com/ecoverde/compost-service/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrKeyNotFound se retorna cuando la clave no existe o expiró
var ErrKeyNotFound = errors.New("key not found")

// Redis representa la conexión a Redis
type Redis struct {
	*redis.Client
}

// ConnectRedis establece la conexión a Redis
func ConnectRedis(cfg *config.Config) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("error pinging Redis: %w", err)
	}

	return &Redis{client}, nil
}

// Close cierra la conexión a Redis
func (r *Redis) Close() error {
	return r.Client.Close()
}

// HealthCheck verifica la salud de Redis
func (r *Redis) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return r.Ping(ctx).Err()
}

// SetJSON guarda un valor serializado con TTL (0 = sin expiración)
func (r *Redis) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("error encoding %s: %w", key, err)
	}
	return r.Client.Set(ctx, key, data, ttl).Err()
}

// GetJSON lee y deserializa un valor
func (r *Redis) GetJSON(ctx context.Context, key string, out interface{}) error {
	data, err := r.Client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrKeyNotFound
		}
		return fmt.Errorf("error reading %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("error decoding %s: %w", key, err)
	}
	return nil
}

// SessionStore guarda sesiones en Redis con expiración
type SessionStore struct {
	redis  *Redis
	logger *logrus.Logger
}

// NewSessionStore crea el store de sesiones
func NewSessionStore(r *Redis, logger *logrus.Logger) *SessionStore {
	return &SessionStore{redis: r, logger: logger}
}

func sessionKey(id uuid.UUID) string {
	return "session:" + id.String()
}

// Save guarda la sesión hasta su expiración
func (s *SessionStore) Save(ctx context.Context, session *models.Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", session.ID)
	}
	return s.redis.SetJSON(ctx, sessionKey(session.ID), session, ttl)
}

// Get obtiene una sesión
func (s *SessionStore) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var session models.Session
	if err := s.redis.GetJSON(ctx, sessionKey(id), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Delete elimina una sesión
func (s *SessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.redis.Del(ctx, sessionKey(id)).Err()
}

// FlowStore guarda el estado de los diálogos de borrado
type FlowStore struct {
	redis *Redis
	ttl   time.Duration
}

// NewFlowStore crea el store de flujos; ttl limita cuánto sobrevive un flujo inactivo
func NewFlowStore(r *Redis, ttl time.Duration) *FlowStore {
	return &FlowStore{redis: r, ttl: ttl}
}

func flowKey(sessionID, dni string) string {
	return "deletion-flow:" + sessionID + ":" + dni
}

// Save guarda el flujo
func (s *FlowStore) Save(ctx context.Context, flow *models.DeletionFlow) error {
	return s.redis.SetJSON(ctx, flowKey(flow.SessionID, flow.DNI), flow, s.ttl)
}

// Get obtiene el flujo de una sesión para un propietario
func (s *FlowStore) Get(ctx context.Context, sessionID, dni string) (*models.DeletionFlow, error) {
	var flow models.DeletionFlow
	if err := s.redis.GetJSON(ctx, flowKey(sessionID, dni), &flow); err != nil {
		return nil, err
	}
	return &flow, nil
}
