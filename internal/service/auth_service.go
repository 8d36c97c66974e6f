package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/result-distribution-api/internal/models"
	"github.com/noah-isme/result-distribution-api/internal/repository"
	appErrors "github.com/noah-isme/result-distribution-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
}

type sessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, id string) (*models.Session, error)
	Revoke(ctx context.Context, id string, at time.Time) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	SessionTTL        time.Duration
	Issuer            string
}

// AuthService opens, resolves and closes operator sessions. The bearer token only carries the
// session id; a revoked or expired session invalidates the token immediately.
type AuthService struct {
	users     authUserRepository
	sessions  sessionStore
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users authUserRepository, sessions sessionStore, audit auditRecorder, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 12 * time.Hour
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = config.AccessTokenExpiry
	}
	return &AuthService{users: users, sessions: sessions, audit: audit, validator: validate, logger: logger, config: config, now: func() time.Time { return time.Now().UTC() }}
}

// Login verifies credentials, opens a session and issues a token bound to it.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return nil, storageError(err, "failed to fetch user")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}

	now := s.now()
	expiresAt := now.Add(s.config.SessionTTL)
	session := &models.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		Role:      user.Role,
		IPAddress: req.IP,
		UserAgent: req.UserAgent,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, storageError(err, "failed to open session")
	}

	tokenExpiry := now.Add(s.config.AccessTokenExpiry)
	if tokenExpiry.After(expiresAt) {
		tokenExpiry = expiresAt
	}
	token, err := s.signToken(session, now, tokenExpiry)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}
	recordAudit(ctx, s.audit, s.logger, session, models.AuditActionLogin, "session", session.ID, map[string]string{"status": "success"})

	return &models.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(tokenExpiry.Sub(now).Seconds()),
		Session:     session,
		IssuedAt:    now,
	}, nil
}

// Logout revokes the session.
func (s *AuthService) Logout(ctx context.Context, session *models.Session) error {
	if session == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "no active session")
	}
	if err := s.sessions.Revoke(ctx, session.ID, s.now()); err != nil {
		return storageError(err, "failed to revoke session")
	}
	recordAudit(ctx, s.audit, s.logger, session, models.AuditActionLogout, "session", session.ID, nil)
	return nil
}

// Authenticate resolves a bearer token to its live session.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.Session, error) {
	claims, err := s.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	session, err := s.sessions.FindByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrSessionExpired, "session not found")
		}
		return nil, storageError(err, "failed to load session")
	}
	if !session.Active(s.now()) {
		return nil, appErrors.ErrSessionExpired
	}
	return session, nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

func (s *AuthService) signToken(session *models.Session, issuedAt, expiresAt time.Time) (string, error) {
	claims := models.JWTClaims{
		SessionID: session.ID,
		UserID:    session.UserID,
		Role:      session.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   session.UserID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.AccessTokenSecret))
}

// storageError turns a repository failure into an API error, surfacing connectivity problems as
// retryable STORAGE_UNAVAILABLE.
func storageError(err error, message string) *appErrors.Error {
	if errors.Is(err, repository.ErrUnavailable) {
		return appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, appErrors.ErrStorageUnavailable.Message)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
