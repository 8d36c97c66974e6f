package models

import "time"

// StudentStatus is the lifecycle state of a student record.
type StudentStatus string

const (
	StudentStatusActive    StudentStatus = "active"
	StudentStatusInactive  StudentStatus = "inactive"
	StudentStatusGraduated StudentStatus = "graduated"
)

// Student is a persisted roster entry. SymbolNumber and RegistrationNumber are unique.
type Student struct {
	ID                 string        `db:"id" json:"id"`
	FullName           string        `db:"full_name" json:"full_name"`
	SymbolNumber       string        `db:"symbol_number" json:"symbol_number"`
	RegistrationNumber string        `db:"registration_number" json:"registration_number"`
	BatchID            string        `db:"batch_id" json:"batch_id"`
	ProgramID          string        `db:"program_id" json:"program_id"`
	CollegeID          *string       `db:"college_id" json:"college_id,omitempty"`
	CenterID           *string       `db:"center_id" json:"center_id,omitempty"`
	CurrentSemester    int           `db:"current_semester" json:"current_semester"`
	Status             StudentStatus `db:"status" json:"status"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}

// StudentCandidate is one raw upload row, before normalization.
type StudentCandidate struct {
	RowIndex           int    `json:"row_index"`
	FullName           string `json:"full_name"`
	SymbolNumber       string `json:"symbol_number"`
	RegistrationNumber string `json:"registration_number"`
	College            string `json:"college,omitempty"`
}

// StudentDraft is a normalized candidate that passed validation and is ready to persist.
type StudentDraft struct {
	RowIndex           int
	FullName           string
	SymbolNumber       string
	RegistrationNumber string
	CollegeID          *string
}
