package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/result-distribution-api/internal/models"
)

// StudentRepository persists roster entries and their center placement.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a student repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// ExistingIdentifiers returns which of the given symbol and registration numbers are already
// persisted. Only the supplied values are queried, so the cost scales with the upload.
func (r *StudentRepository) ExistingIdentifiers(ctx context.Context, symbols, registrations []string) (map[string]struct{}, map[string]struct{}, error) {
	symbolSet := make(map[string]struct{})
	registrationSet := make(map[string]struct{})

	if len(symbols) > 0 {
		var found []string
		const query = `SELECT symbol_number FROM students WHERE symbol_number = ANY($1)`
		if err := r.db.SelectContext(ctx, &found, query, pq.Array(symbols)); err != nil {
			return nil, nil, fmt.Errorf("load existing symbol numbers: %w", Classify(err))
		}
		for _, s := range found {
			symbolSet[s] = struct{}{}
		}
	}

	if len(registrations) > 0 {
		var found []string
		const query = `SELECT registration_number FROM students WHERE registration_number = ANY($1)`
		if err := r.db.SelectContext(ctx, &found, query, pq.Array(registrations)); err != nil {
			return nil, nil, fmt.Errorf("load existing registration numbers: %w", Classify(err))
		}
		for _, s := range found {
			registrationSet[s] = struct{}{}
		}
	}

	return symbolSet, registrationSet, nil
}

// Insert persists one student. Unique violations surface as ErrDuplicateSymbolNumber or
// ErrDuplicateRegistrationNumber.
func (r *StudentRepository) Insert(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	if student.CurrentSemester < 1 {
		student.CurrentSemester = 1
	}
	if student.Status == "" {
		student.Status = models.StudentStatusActive
	}

	const query = `INSERT INTO students (id, full_name, symbol_number, registration_number, batch_id, program_id, college_id, center_id, current_semester, status, created_at, updated_at)
VALUES (:id, :full_name, :symbol_number, :registration_number, :batch_id, :program_id, :college_id, :center_id, :current_semester, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("insert student: %w", Classify(err))
	}
	return nil
}

// ListUnassigned returns the active students of a cycle without a center, in enrollment order.
func (r *StudentRepository) ListUnassigned(ctx context.Context, batchID, programID string) ([]models.Student, error) {
	const query = `SELECT id, full_name, symbol_number, registration_number, batch_id, program_id, college_id, center_id, current_semester, status, created_at, updated_at
FROM students
WHERE batch_id = $1 AND program_id = $2 AND status = 'active' AND center_id IS NULL
ORDER BY created_at ASC, symbol_number ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, batchID, programID); err != nil {
		return nil, fmt.Errorf("list unassigned students: %w", Classify(err))
	}
	return students, nil
}

// AssignCenter sets center_id on the given students that are still unplaced and returns the ids
// actually updated.
func (r *StudentRepository) AssignCenter(ctx context.Context, centerID string, studentIDs []string) ([]string, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	const query = `UPDATE students SET center_id = $1, updated_at = $2 WHERE id = ANY($3) AND center_id IS NULL RETURNING id`
	var updated []string
	if err := r.db.SelectContext(ctx, &updated, query, centerID, time.Now().UTC(), pq.Array(studentIDs)); err != nil {
		return nil, fmt.Errorf("assign center: %w", Classify(err))
	}
	return updated, nil
}

// ClearCenters removes the center placement of every student in a cycle and returns how many
// students were cleared per center.
func (r *StudentRepository) ClearCenters(ctx context.Context, batchID, programID string) (map[string]int, error) {
	const query = `WITH cleared AS (
	SELECT id, center_id FROM students
	WHERE batch_id = $1 AND program_id = $2 AND center_id IS NOT NULL
	FOR UPDATE
)
UPDATE students s SET center_id = NULL, updated_at = $3
FROM cleared
WHERE s.id = cleared.id
RETURNING cleared.center_id`
	var centers []string
	if err := r.db.SelectContext(ctx, &centers, query, batchID, programID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("clear centers: %w", Classify(err))
	}
	counts := make(map[string]int)
	for _, id := range centers {
		counts[id]++
	}
	return counts, nil
}

// SheetRows returns the printable assignment rows of a cycle, grouped by center.
func (r *StudentRepository) SheetRows(ctx context.Context, batchID, programID string) ([]models.SheetRow, error) {
	const query = `SELECT s.symbol_number, s.registration_number, s.full_name,
	COALESCE(home.name, '') AS college_name, ctr.code AS center_code, ctr.name AS center_name
FROM students s
JOIN colleges ctr ON ctr.id = s.center_id
LEFT JOIN colleges home ON home.id = s.college_id
WHERE s.batch_id = $1 AND s.program_id = $2
ORDER BY ctr.code ASC, s.symbol_number ASC`
	var rows []models.SheetRow
	if err := r.db.SelectContext(ctx, &rows, query, batchID, programID); err != nil {
		return nil, fmt.Errorf("load assignment sheet rows: %w", Classify(err))
	}
	return rows, nil
}
