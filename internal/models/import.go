package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// RejectionReason classifies why an upload row was not persisted.
type RejectionReason string

const (
	RejectMissingField                RejectionReason = "MissingField"
	RejectDuplicateSymbolNumber       RejectionReason = "DuplicateSymbolNumber"
	RejectDuplicateRegistrationNumber RejectionReason = "DuplicateRegistrationNumber"
	RejectUnknownBatch                RejectionReason = "UnknownBatch"
	RejectUnknownProgram              RejectionReason = "UnknownProgram"
	RejectUnknownCollege              RejectionReason = "UnknownCollege"
	RejectInvalidCapacity             RejectionReason = "InvalidCapacity"
	RejectCancelled                   RejectionReason = "Cancelled"
)

// RejectedRecord pairs an upload row with its rejection reason.
type RejectedRecord struct {
	RowIndex int             `json:"row_index"`
	Reason   RejectionReason `json:"reason"`
}

// ImportOutcome summarizes how an import ended.
type ImportOutcome string

const (
	ImportCommitted ImportOutcome = "committed"
	ImportPartial   ImportOutcome = "partial"
	ImportAborted   ImportOutcome = "aborted"
)

// ImportResult is returned to the caller. AcceptedCount + len(Rejected) == TotalRows always holds.
type ImportResult struct {
	OperationID   string           `json:"operation_id"`
	TotalRows     int              `json:"total_rows"`
	AcceptedCount int              `json:"accepted_count"`
	Rejected      []RejectedRecord `json:"rejected"`
	Outcome       ImportOutcome    `json:"outcome"`
}

// ImportOperation is the persisted log of an import.
type ImportOperation struct {
	ID            string         `db:"id" json:"id"`
	BatchID       string         `db:"batch_id" json:"batch_id"`
	ProgramID     string         `db:"program_id" json:"program_id"`
	ActorID       string         `db:"actor_id" json:"actor_id"`
	FileName      string         `db:"file_name" json:"file_name"`
	TotalRows     int            `db:"total_rows" json:"total_rows"`
	AcceptedCount int            `db:"accepted_count" json:"accepted_count"`
	Rejected      types.JSONText `db:"rejected" json:"rejected"`
	Outcome       ImportOutcome  `db:"outcome" json:"outcome"`
	StartedAt     time.Time      `db:"started_at" json:"started_at"`
	FinishedAt    time.Time      `db:"finished_at" json:"finished_at"`
}
