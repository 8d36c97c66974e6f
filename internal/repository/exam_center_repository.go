package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/result-distribution-api/internal/models"
)

// ErrConditionNotMet is returned when a guarded ledger statement matched no row: either the
// key does not exist or the guard (capacity bound) rejected the change.
var ErrConditionNotMet = errors.New("ledger condition not met")

const ledgerSelect = `SELECT ec.college_id, ec.batch_id, ec.program_id, c.code AS college_code, c.name AS college_name,
	ec.capacity, ec.allocated_count, ec.created_at, ec.updated_at
FROM exam_centers ec
JOIN colleges c ON c.id = ec.college_id`

// ExamCenterRepository owns the exam_centers ledger rows. Every mutation is a single guarded
// statement so concurrent writers can never push allocated_count past capacity.
type ExamCenterRepository struct {
	db *sqlx.DB
}

func NewExamCenterRepository(db *sqlx.DB) *ExamCenterRepository {
	return &ExamCenterRepository{db: db}
}

// Upsert sets the capacity for key, flags the college as a center and returns the stored row. A
// capacity below the current allocated_count leaves the row untouched and returns ErrConditionNotMet.
func (r *ExamCenterRepository) Upsert(ctx context.Context, key models.CenterKey, capacity int) (row *models.CenterCapacity, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin capacity transaction: %w", Classify(err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const upsertQuery = `WITH up AS (
	INSERT INTO exam_centers (college_id, batch_id, program_id, capacity, allocated_count, created_at, updated_at)
	VALUES ($1, $2, $3, $4, 0, $5, $5)
	ON CONFLICT (college_id, batch_id, program_id)
	DO UPDATE SET capacity = EXCLUDED.capacity, updated_at = EXCLUDED.updated_at
	WHERE exam_centers.allocated_count <= EXCLUDED.capacity
	RETURNING college_id, batch_id, program_id, capacity, allocated_count, created_at, updated_at
)
SELECT up.college_id, up.batch_id, up.program_id, c.code AS college_code, c.name AS college_name,
	up.capacity, up.allocated_count, up.created_at, up.updated_at
FROM up
JOIN colleges c ON c.id = up.college_id`
	var stored models.CenterCapacity
	if err = tx.GetContext(ctx, &stored, upsertQuery, key.CollegeID, key.BatchID, key.ProgramID, capacity, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrConditionNotMet
			return nil, err
		}
		return nil, fmt.Errorf("upsert capacity: %w", Classify(err))
	}

	const flagQuery = `UPDATE colleges SET is_center = TRUE, updated_at = $2 WHERE id = $1 AND is_center = FALSE`
	if _, err = tx.ExecContext(ctx, flagQuery, key.CollegeID, now); err != nil {
		return nil, fmt.Errorf("flag exam center: %w", Classify(err))
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit capacity: %w", Classify(err))
	}
	return &stored, nil
}

// Allocate adds count seats when they fit. ErrConditionNotMet means no row was changed.
func (r *ExamCenterRepository) Allocate(ctx context.Context, key models.CenterKey, count int) (*models.CenterCapacity, error) {
	const query = `UPDATE exam_centers SET allocated_count = allocated_count + $4, updated_at = $5
WHERE college_id = $1 AND batch_id = $2 AND program_id = $3 AND allocated_count + $4 <= capacity
RETURNING college_id, batch_id, program_id, capacity, allocated_count, created_at, updated_at`
	return r.mutate(ctx, "allocate seats", query, key, count)
}

// Release returns count seats, flooring allocated_count at zero.
func (r *ExamCenterRepository) Release(ctx context.Context, key models.CenterKey, count int) (*models.CenterCapacity, error) {
	const query = `UPDATE exam_centers SET allocated_count = GREATEST(allocated_count - $4, 0), updated_at = $5
WHERE college_id = $1 AND batch_id = $2 AND program_id = $3
RETURNING college_id, batch_id, program_id, capacity, allocated_count, created_at, updated_at`
	return r.mutate(ctx, "release seats", query, key, count)
}

func (r *ExamCenterRepository) mutate(ctx context.Context, op, query string, key models.CenterKey, count int) (*models.CenterCapacity, error) {
	var row models.CenterCapacity
	err := r.db.GetContext(ctx, &row, query, key.CollegeID, key.BatchID, key.ProgramID, count, time.Now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConditionNotMet
		}
		return nil, fmt.Errorf("%s: %w", op, Classify(err))
	}
	return &row, nil
}

// Get returns one ledger row. sql.ErrNoRows is returned unwrapped.
func (r *ExamCenterRepository) Get(ctx context.Context, key models.CenterKey) (*models.CenterCapacity, error) {
	query := ledgerSelect + ` WHERE ec.college_id = $1 AND ec.batch_id = $2 AND ec.program_id = $3`
	var row models.CenterCapacity
	if err := r.db.GetContext(ctx, &row, query, key.CollegeID, key.BatchID, key.ProgramID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get capacity: %w", Classify(err))
	}
	return &row, nil
}

// ListByCycle returns the ledger rows of a (batch, program) cycle ordered by college id.
func (r *ExamCenterRepository) ListByCycle(ctx context.Context, batchID, programID string) ([]models.CenterCapacity, error) {
	query := ledgerSelect + ` WHERE ec.batch_id = $1 AND ec.program_id = $2 ORDER BY ec.college_id ASC`
	var rows []models.CenterCapacity
	if err := r.db.SelectContext(ctx, &rows, query, batchID, programID); err != nil {
		return nil, fmt.Errorf("list capacity: %w", Classify(err))
	}
	return rows, nil
}
