package models

import (
	"time"

	"github.com/google/uuid"
)

// Role representa el tipo de usuario de una sesión
type Role string

const (
	RoleOwner    Role = "propietario"
	RoleOperator Role = "operador"
)

// Session es el contexto explícito de un usuario autenticado
type Session struct {
	ID        uuid.UUID `json:"id"`
	Role      Role      `json:"rol"`
	DNI       string    `json:"dni,omitempty"`
	Name      string    `json:"nombre,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired indica si la sesión ya no es válida
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// CanManageOwner indica si la sesión puede actuar sobre la cuenta de un propietario
func (s *Session) CanManageOwner(dni string) bool {
	if s.Role == RoleOperator {
		return true
	}
	return s.Role == RoleOwner && s.DNI == dni
}

// LoginRequest representa el request de inicio de sesión
type LoginRequest struct {
	Role   Role   `json:"rol" binding:"required,oneof=propietario operador"`
	DNI    string `json:"dni"`
	APIKey string `json:"api_key"`
}

// LoginResponse representa la respuesta de inicio de sesión
type LoginResponse struct {
	SessionID string    `json:"session_id"`
	Role      Role      `json:"rol"`
	DNI       string    `json:"dni,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}
