package models

import "time"

// CenterKey identifies one ledger row: a center's seats for a (batch, program) cycle.
type CenterKey struct {
	CollegeID string `db:"college_id" json:"center_id" validate:"required"`
	BatchID   string `db:"batch_id" json:"batch_id" validate:"required"`
	ProgramID string `db:"program_id" json:"program_id" validate:"required"`
}

// CenterCapacity is a ledger row. AllocatedCount never exceeds Capacity.
type CenterCapacity struct {
	CenterKey
	CollegeCode    string    `db:"college_code" json:"college_code"`
	CollegeName    string    `db:"college_name" json:"college_name"`
	Capacity       int       `db:"capacity" json:"capacity"`
	AllocatedCount int       `db:"allocated_count" json:"allocated_count"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// CapacityDeclaration is one row of a bulk center declaration, before the college is resolved.
// IsCenter is nil when the uploaded flag could not be read.
type CapacityDeclaration struct {
	RowIndex int
	College  string
	IsCenter *bool
	Capacity string
}

// CapacityDeclarationResult reports a bulk declaration. AcceptedCount + len(Rejected) == TotalRows.
type CapacityDeclarationResult struct {
	TotalRows     int              `json:"total_rows"`
	AcceptedCount int              `json:"accepted_count"`
	Rejected      []RejectedRecord `json:"rejected"`
	Centers       []CenterCapacity `json:"centers"`
}

// Remaining returns the seats still free.
func (c CenterCapacity) Remaining() int {
	if c.AllocatedCount >= c.Capacity {
		return 0
	}
	return c.Capacity - c.AllocatedCount
}
