package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/result-distribution-api/internal/models"
)

const collegeColumns = `id, code, name, address, latitude, longitude, is_center, created_at, updated_at`

// CollegeRepository manages colleges and their exam-center flag.
type CollegeRepository struct {
	db *sqlx.DB
}

func NewCollegeRepository(db *sqlx.DB) *CollegeRepository {
	return &CollegeRepository{db: db}
}

// FindByID returns a college. sql.ErrNoRows is returned unwrapped.
func (r *CollegeRepository) FindByID(ctx context.Context, id string) (*models.College, error) {
	query := `SELECT ` + collegeColumns + ` FROM colleges WHERE id = $1`
	var college models.College
	if err := r.db.GetContext(ctx, &college, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find college: %w", Classify(err))
	}
	return &college, nil
}

type collegeRef struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

// ResolveReferences maps each reference (a college id or a case-insensitive college name) to a
// college id. References that match nothing are absent from the result.
func (r *CollegeRepository) ResolveReferences(ctx context.Context, refs []string) (map[string]string, error) {
	resolved := make(map[string]string, len(refs))
	if len(refs) == 0 {
		return resolved, nil
	}
	lowered := make([]string, len(refs))
	for i, ref := range refs {
		lowered[i] = strings.ToLower(ref)
	}

	const query = `SELECT id, name FROM colleges WHERE id::text = ANY($1) OR LOWER(name) = ANY($2)`
	var rows []collegeRef
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(refs), pq.Array(lowered)); err != nil {
		return nil, fmt.Errorf("resolve college references: %w", Classify(err))
	}

	byName := make(map[string]string, len(rows))
	ids := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		ids[row.ID] = struct{}{}
		byName[strings.ToLower(row.Name)] = row.ID
	}
	for _, ref := range refs {
		if _, ok := ids[ref]; ok {
			resolved[ref] = ref
			continue
		}
		if id, ok := byName[strings.ToLower(ref)]; ok {
			resolved[ref] = id
		}
	}
	return resolved, nil
}

// Create inserts a college, returning ErrDuplicateCollegeCode when the code is taken.
func (r *CollegeRepository) Create(ctx context.Context, college *models.College) error {
	if college.ID == "" {
		college.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	college.CreatedAt = now
	college.UpdatedAt = now
	const query = `INSERT INTO colleges (id, code, name, address, latitude, longitude, is_center, created_at, updated_at) VALUES (:id, :code, :name, :address, :latitude, :longitude, :is_center, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, college); err != nil {
		return fmt.Errorf("create college: %w", Classify(err))
	}
	return nil
}

// ListCenters returns every college flagged as an exam center.
func (r *CollegeRepository) ListCenters(ctx context.Context) ([]models.College, error) {
	query := `SELECT ` + collegeColumns + ` FROM colleges WHERE is_center = TRUE ORDER BY id`
	var colleges []models.College
	if err := r.db.SelectContext(ctx, &colleges, query); err != nil {
		return nil, fmt.Errorf("list centers: %w", Classify(err))
	}
	return colleges, nil
}
