package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/result-distribution-api/internal/models"
)

// CatalogRepository reads batches, programs, semesters and courses.
type CatalogRepository struct {
	db *sqlx.DB
}

func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// BatchExists reports whether a batch with id exists.
func (r *CatalogRepository) BatchExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM batches WHERE id = $1)`, id, "batch")
}

// ProgramExists reports whether a program with id exists.
func (r *CatalogRepository) ProgramExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM programs WHERE id = $1)`, id, "program")
}

func (r *CatalogRepository) exists(ctx context.Context, query, id, noun string) (bool, error) {
	var ok bool
	if err := r.db.GetContext(ctx, &ok, query, id); err != nil {
		return false, fmt.Errorf("check %s exists: %w", noun, Classify(err))
	}
	return ok, nil
}

// ListBatches returns every batch, newest year first.
func (r *CatalogRepository) ListBatches(ctx context.Context) ([]models.Batch, error) {
	const query = `SELECT id, year, created_at FROM batches ORDER BY year DESC`
	var batches []models.Batch
	if err := r.db.SelectContext(ctx, &batches, query); err != nil {
		return nil, fmt.Errorf("list batches: %w", Classify(err))
	}
	return batches, nil
}

// ListPrograms returns programs ordered by name.
func (r *CatalogRepository) ListPrograms(ctx context.Context) ([]models.Program, error) {
	const query = `SELECT id, name, created_at FROM programs ORDER BY name`
	var programs []models.Program
	if err := r.db.SelectContext(ctx, &programs, query); err != nil {
		return nil, fmt.Errorf("list programs: %w", Classify(err))
	}
	return programs, nil
}

// ListSemesters returns the semesters of a program in ordinal order.
func (r *CatalogRepository) ListSemesters(ctx context.Context, programID string) ([]models.Semester, error) {
	const query = `SELECT id, program_id, ordinal, name FROM semesters WHERE program_id = $1 ORDER BY ordinal`
	var semesters []models.Semester
	if err := r.db.SelectContext(ctx, &semesters, query, programID); err != nil {
		return nil, fmt.Errorf("list semesters: %w", Classify(err))
	}
	return semesters, nil
}

// ListCourses returns the courses of one semester of a program.
func (r *CatalogRepository) ListCourses(ctx context.Context, programID, semesterID string) ([]models.Course, error) {
	const query = `SELECT id, program_id, semester_id, code, name FROM courses WHERE program_id = $1 AND semester_id = $2 ORDER BY code`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, programID, semesterID); err != nil {
		return nil, fmt.Errorf("list courses: %w", Classify(err))
	}
	return courses, nil
}
