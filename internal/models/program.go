package models

import "time"

// Program is an academic program students enroll in.
type Program struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Semester belongs to a program.
type Semester struct {
	ID        string `db:"id" json:"id"`
	ProgramID string `db:"program_id" json:"program_id"`
	Ordinal   int    `db:"ordinal" json:"ordinal"`
	Name      string `db:"name" json:"name"`
}

// Course is taught in one semester of a program.
type Course struct {
	ID         string `db:"id" json:"id"`
	ProgramID  string `db:"program_id" json:"program_id"`
	SemesterID string `db:"semester_id" json:"semester_id"`
	Code       string `db:"code" json:"code"`
	Name       string `db:"name" json:"name"`
}

// CatalogView is the result of resolving the program → semester → course graph for one request.
type CatalogView struct {
	Batches   []Batch    `json:"batches,omitempty"`
	Programs  []Program  `json:"programs,omitempty"`
	Semesters []Semester `json:"semesters,omitempty"`
	Courses   []Course   `json:"courses,omitempty"`
	Fetched   []string   `json:"fetched"`
}
