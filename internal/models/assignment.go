package models

// AssignmentStatus is the overall outcome of resolving a cycle's center assignment.
type AssignmentStatus string

const (
	AssignmentOK                   AssignmentStatus = "ok"
	AssignmentCapacityExceeded     AssignmentStatus = "capacity_exceeded"
	AssignmentInsufficientCapacity AssignmentStatus = "insufficient_capacity"
)

// Assignment places one student at one center.
type Assignment struct {
	StudentID string `db:"student_id" json:"student_id"`
	CenterID  string `db:"center_id" json:"center_id"`
}

// AssignmentResult reports a resolve run.
type AssignmentResult struct {
	BatchID     string           `json:"batch_id"`
	ProgramID   string           `json:"program_id"`
	Status      AssignmentStatus `json:"status"`
	Assignments []Assignment     `json:"assignments"`
	Unplaced    []string         `json:"unplaced"`
	Detail      string           `json:"detail,omitempty"`
}

// UnassignResult reports seats returned to the ledger.
type UnassignResult struct {
	Cleared  int            `json:"cleared"`
	Released map[string]int `json:"released"`
}

// SheetRow is one line of the printable assignment sheet.
type SheetRow struct {
	SymbolNumber       string `db:"symbol_number"`
	RegistrationNumber string `db:"registration_number"`
	FullName           string `db:"full_name"`
	CollegeName        string `db:"college_name"`
	CenterCode         string `db:"center_code"`
	CenterName         string `db:"center_name"`
}
