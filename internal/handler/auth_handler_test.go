package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/result-distribution-api/internal/middleware"
	"github.com/noah-isme/result-distribution-api/internal/models"
	appErrors "github.com/noah-isme/result-distribution-api/pkg/errors"
)

type authServiceMock struct {
	lastLogin models.LoginRequest
	revoked   string
}

func (m *authServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	m.lastLogin = req
	if req.Password != "secret123" {
		return nil, appErrors.ErrInvalidCredentials
	}
	return &models.LoginResponse{AccessToken: "token", Session: &models.Session{ID: "s-1"}}, nil
}

func (m *authServiceMock) Logout(ctx context.Context, session *models.Session) error {
	m.revoked = session.ID
	return nil
}

func TestAuthHandlerLogin(t *testing.T) {
	svc := &authServiceMock{}
	h := NewAuthHandler(svc)

	c, w := jsonContext(http.MethodPost, "/auth/login", `{"email":"admin@example.com","password":"secret123"}`)
	c.Request.Header.Set("User-Agent", "test-agent")
	h.Login(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"access_token":"token"`)
	assert.Equal(t, "test-agent", svc.lastLogin.UserAgent)

	c, w = jsonContext(http.MethodPost, "/auth/login", `{"email":"admin@example.com","password":"nope"}`)
	h.Login(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = jsonContext(http.MethodPost, "/auth/login", `{"email":`)
	h.Login(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandlerLogoutAndMe(t *testing.T) {
	svc := &authServiceMock{}
	h := NewAuthHandler(svc)

	c, w := jsonContext(http.MethodPost, "/auth/logout", "")
	h.Logout(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = jsonContext(http.MethodPost, "/auth/logout", "")
	c.Set(middleware.ContextSessionKey, &models.Session{ID: "s-9", UserID: "u-1"})
	h.Logout(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "s-9", svc.revoked)

	c, w = jsonContext(http.MethodGet, "/auth/me", "")
	c.Set(middleware.ContextSessionKey, &models.Session{ID: "s-9", UserID: "u-1", Role: models.RoleAdmin})
	h.Me(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"ADMIN"`)
}
