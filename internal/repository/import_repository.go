package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/result-distribution-api/internal/models"
)

// ImportRepository stores the log of roster imports.
type ImportRepository struct {
	db *sqlx.DB
}

func NewImportRepository(db *sqlx.DB) *ImportRepository {
	return &ImportRepository{db: db}
}

// Create persists an import operation.
func (r *ImportRepository) Create(ctx context.Context, op *models.ImportOperation) error {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	const query = `INSERT INTO import_operations (id, batch_id, program_id, actor_id, file_name, total_rows, accepted_count, rejected, outcome, started_at, finished_at)
VALUES (:id, :batch_id, :program_id, :actor_id, :file_name, :total_rows, :accepted_count, :rejected, :outcome, :started_at, :finished_at)`
	if _, err := r.db.NamedExecContext(ctx, query, op); err != nil {
		return fmt.Errorf("create import operation: %w", Classify(err))
	}
	return nil
}

// FindByID returns an import operation. sql.ErrNoRows is returned unwrapped.
func (r *ImportRepository) FindByID(ctx context.Context, id string) (*models.ImportOperation, error) {
	const query = `SELECT id, batch_id, program_id, actor_id, file_name, total_rows, accepted_count, rejected, outcome, started_at, finished_at FROM import_operations WHERE id = $1`
	var op models.ImportOperation
	if err := r.db.GetContext(ctx, &op, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find import operation: %w", Classify(err))
	}
	return &op, nil
}
