package dto

// DeclareCapacityRequest sets the seat count of a center for a cycle.
type DeclareCapacityRequest struct {
	CenterID  string `json:"center_id" validate:"required"`
	BatchID   string `json:"batch_id" validate:"required"`
	ProgramID string `json:"program_id" validate:"required"`
	Capacity  *int   `json:"capacity" validate:"required,min=0"`
}

// SeatRequest allocates or releases seats directly on the ledger.
type SeatRequest struct {
	CenterID  string `json:"center_id" validate:"required"`
	BatchID   string `json:"batch_id" validate:"required"`
	ProgramID string `json:"program_id" validate:"required"`
	Count     int    `json:"count" validate:"required,min=1"`
}

// CycleQuery selects a (batch, program) cycle.
type CycleQuery struct {
	BatchID   string `form:"batch_id" json:"batch_id" validate:"required"`
	ProgramID string `form:"program_id" json:"program_id" validate:"required"`
}

// CapacityRecord declares one college's seats in a bulk request. College accepts an id or a
// name; college_name is kept for older clients. A missing is_center counts as true.
type CapacityRecord struct {
	College     string `json:"college"`
	CollegeName string `json:"college_name"`
	IsCenter    *bool  `json:"is_center"`
	Capacity    *int   `json:"capacity"`
}

// BulkCapacityRequest declares centers and capacities for a cycle in one call.
type BulkCapacityRequest struct {
	BatchID   string           `json:"batch_id" validate:"required"`
	ProgramID string           `json:"program_id" validate:"required"`
	Records   []CapacityRecord `json:"records" validate:"required,min=1,max=5000"`
}
