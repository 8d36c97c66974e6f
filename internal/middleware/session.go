package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/result-distribution-api/internal/models"
	appErrors "github.com/noah-isme/result-distribution-api/pkg/errors"
	"github.com/noah-isme/result-distribution-api/pkg/logger"
	"github.com/noah-isme/result-distribution-api/pkg/response"
)

// ContextSessionKey is the gin context key storing the active *models.Session.
const ContextSessionKey = "currentSession"

// SessionAuthenticator resolves a bearer token into a live session.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Session, error)
}

// Session protects routes by requiring a bearer token bound to an active session.
func Session(auth SessionAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		session, err := auth.Authenticate(c.Request.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		session.IPAddress = c.ClientIP()
		session.UserAgent = c.GetHeader("User-Agent")
		c.Set(ContextSessionKey, session)
		c.Set(logger.ActorKey, session.UserID)
		c.Next()
	}
}

// SessionFrom returns the session stored by Session, or nil.
func SessionFrom(c *gin.Context) *models.Session {
	value, exists := c.Get(ContextSessionKey)
	if !exists {
		return nil
	}
	session, ok := value.(*models.Session)
	if !ok {
		return nil
	}
	return session
}
