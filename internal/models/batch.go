package models

import "time"

// Batch is an intake cohort identified by its year.
type Batch struct {
	ID        string    `db:"id" json:"id"`
	Year      int       `db:"year" json:"year"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
