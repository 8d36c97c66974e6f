package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/result-distribution-api/internal/models"
	appErrors "github.com/noah-isme/result-distribution-api/pkg/errors"
	"github.com/noah-isme/result-distribution-api/pkg/logger"
)

type stubAuthenticator map[string]*models.Session

func (s stubAuthenticator) Authenticate(ctx context.Context, token string) (*models.Session, error) {
	session, ok := s[token]
	if !ok {
		return nil, appErrors.ErrSessionExpired
	}
	return session, nil
}

func newSessionRouter(roles ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	auth := stubAuthenticator{
		"admin-token": {ID: "s-1", UserID: "u-1", Role: models.RoleAdmin, ExpiresAt: time.Now().Add(time.Hour)},
		"staff-token": {ID: "s-2", UserID: "u-2", Role: models.RoleStaff, ExpiresAt: time.Now().Add(time.Hour)},
		"root-token":  {ID: "s-3", UserID: "u-3", Role: models.RoleSuperAdmin, ExpiresAt: time.Now().Add(time.Hour)},
	}
	r := gin.New()
	handlers := []gin.HandlerFunc{Session(auth)}
	if len(roles) > 0 {
		handlers = append(handlers, RequireRoles(roles...))
	}
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": SessionFrom(c).UserID, "actor": c.GetString(logger.ActorKey)})
	})
	r.GET("/protected", handlers...)
	return r
}

func doGet(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSessionMiddleware(t *testing.T) {
	r := newSessionRouter()

	assert.Equal(t, http.StatusUnauthorized, doGet(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, doGet(r, "Token admin-token").Code)
	assert.Equal(t, http.StatusUnauthorized, doGet(r, "Bearer revoked").Code)

	w := doGet(r, "Bearer admin-token")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"u-1","actor":"u-1"}`, w.Body.String())
}

func TestRequireRoles(t *testing.T) {
	r := newSessionRouter(models.RoleAdmin)

	assert.Equal(t, http.StatusOK, doGet(r, "Bearer admin-token").Code)
	assert.Equal(t, http.StatusOK, doGet(r, "Bearer root-token").Code)
	assert.Equal(t, http.StatusForbidden, doGet(r, "Bearer staff-token").Code)
}

func TestRBACWithoutSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, doGet(r, "").Code)
}
