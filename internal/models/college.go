package models

import "time"

// College is an affiliated institution; colleges flagged IsCenter host examinations.
type College struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Address   string    `db:"address" json:"address"`
	Latitude  float64   `db:"latitude" json:"latitude"`
	Longitude float64   `db:"longitude" json:"longitude"`
	IsCenter  bool      `db:"is_center" json:"is_center"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NearbyCenter is an exam center with its distance from a reference college.
type NearbyCenter struct {
	College
	DistanceKm float64 `json:"distance_km"`
}

// CollegeRejection explains why a college import row was skipped.
type CollegeRejection struct {
	RowIndex int    `json:"row_index"`
	Code     string `json:"code,omitempty"`
	Reason   string `json:"reason"`
}

// CollegeImportResult summarizes a college roster upload.
type CollegeImportResult struct {
	TotalRows    int                `json:"total_rows"`
	CreatedCount int                `json:"created_count"`
	Skipped      []CollegeRejection `json:"skipped"`
}
