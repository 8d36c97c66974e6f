package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the bearer token bound to a freshly opened session.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	Session     *Session  `json:"session"`
	IssuedAt    time.Time `json:"issued_at"`
}

// JWTClaims is the token payload. sid points at the server-side session that must still be live.
type JWTClaims struct {
	SessionID string   `json:"sid"`
	UserID    string   `json:"user_id"`
	Role      UserRole `json:"role"`
	jwt.RegisteredClaims
}
