package services

import (
	"context"
	"testing"
	"time"

	"github.com/ecoverde/compost-service/internal/database"
	"github.com/ecoverde/compost-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessionService(ttl time.Duration) (*SessionService, *fakeClient) {
	client := newFakeClient()
	client.owners["/propietarios/12345678A"] = models.Owner{DNI: "12345678A", Name: "Ana"}
	svc := NewSessionService(database.NewMemorySessionStore(), client, "operator-secret", ttl, quietLogger())
	return svc, client
}

func TestLoginOwner(t *testing.T) {
	svc, _ := newSessionService(time.Hour)
	ctx := context.Background()

	session, err := svc.Login(ctx, &models.LoginRequest{Role: models.RoleOwner, DNI: " 12345678A "})
	require.NoError(t, err)
	assert.Equal(t, "12345678A", session.DNI)
	assert.Equal(t, "Ana", session.Name)
	assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, 5*time.Second)

	resolved, err := svc.Resolve(ctx, session.ID.String())
	require.NoError(t, err)
	assert.Equal(t, session.ID, resolved.ID)
	assert.True(t, resolved.CanManageOwner("12345678A"))
	assert.False(t, resolved.CanManageOwner("87654321B"))
}

func TestLoginOwnerKeepsUpstreamDNI(t *testing.T) {
	svc, client := newSessionService(time.Hour)
	client.owners["/propietarios/12345678a"] = models.Owner{DNI: "12345678a", Name: "Berta"}
	ctx := context.Background()

	session, err := svc.Login(ctx, &models.LoginRequest{Role: models.RoleOwner, DNI: "12345678a"})
	require.NoError(t, err)
	assert.Equal(t, "12345678a", session.DNI)
	assert.True(t, session.CanManageOwner("12345678a"))
	assert.False(t, session.CanManageOwner("12345678A"))
}

func TestLoginOwnerUnknownCasing(t *testing.T) {
	svc, _ := newSessionService(time.Hour)

	_, err := svc.Login(context.Background(), &models.LoginRequest{Role: models.RoleOwner, DNI: "12345678a"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUnknownOwner(t *testing.T) {
	svc, _ := newSessionService(time.Hour)

	_, err := svc.Login(context.Background(), &models.LoginRequest{Role: models.RoleOwner, DNI: "00000000Z"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginOwnerRequiresDNI(t *testing.T) {
	svc, _ := newSessionService(time.Hour)

	_, err := svc.Login(context.Background(), &models.LoginRequest{Role: models.RoleOwner})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginOperator(t *testing.T) {
	svc, _ := newSessionService(time.Hour)
	ctx := context.Background()

	_, err := svc.Login(ctx, &models.LoginRequest{Role: models.RoleOperator, APIKey: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	session, err := svc.Login(ctx, &models.LoginRequest{Role: models.RoleOperator, APIKey: "operator-secret"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleOperator, session.Role)
	assert.True(t, session.CanManageOwner("87654321B"))
}

func TestLoginOperatorDisabledWithoutKey(t *testing.T) {
	svc := NewSessionService(database.NewMemorySessionStore(), newFakeClient(), "", time.Hour, quietLogger())

	_, err := svc.Login(context.Background(), &models.LoginRequest{Role: models.RoleOperator, APIKey: ""})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogoutDestroysSession(t *testing.T) {
	svc, _ := newSessionService(time.Hour)
	ctx := context.Background()

	session, err := svc.Login(ctx, &models.LoginRequest{Role: models.RoleOwner, DNI: "12345678A"})
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, session))

	_, err = svc.Resolve(ctx, session.ID.String())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestResolveRejectsExpiredAndMalformed(t *testing.T) {
	svc, _ := newSessionService(-time.Minute)
	ctx := context.Background()

	session, err := svc.Login(ctx, &models.LoginRequest{Role: models.RoleOwner, DNI: "12345678A"})
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, session.ID.String())
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.Resolve(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
