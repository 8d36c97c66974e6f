package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/result-distribution-api/internal/models"
)

// SessionRepository persists login sessions.
type SessionRepository struct {
	db *sqlx.DB
}

func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores a new session, assigning an id when empty.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO sessions (id, user_id, email, full_name, role, ip_address, user_agent, expires_at, revoked_at, created_at) VALUES (:id, :user_id, :email, :full_name, :role, :ip_address, :user_agent, :expires_at, :revoked_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", Classify(err))
	}
	return nil
}

// FindByID loads a session regardless of its state. sql.ErrNoRows is returned unwrapped.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	const query = `SELECT id, user_id, email, full_name, role, ip_address, user_agent, expires_at, revoked_at, created_at FROM sessions WHERE id = $1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find session: %w", Classify(err))
	}
	return &session, nil
}

// Revoke marks the session revoked. Revoking twice keeps the first timestamp.
func (r *SessionRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("revoke session: %w", Classify(err))
	}
	return nil
}

// DeleteExpired removes sessions that expired before cutoff and reports how many were dropped.
func (r *SessionRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM sessions WHERE expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", Classify(err))
	}
	n, _ := res.RowsAffected()
	return n, nil
}
