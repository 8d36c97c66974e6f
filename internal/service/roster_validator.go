package service

import (
	"strings"

	"github.com/noah-isme/result-distribution-api/internal/models"
)

// ValidationSnapshot is everything the validator needs to know about persisted state. It is
// loaded once per import so validation itself performs no I/O.
type ValidationSnapshot struct {
	BatchExists           bool
	ProgramExists         bool
	ExistingSymbols       map[string]struct{}
	ExistingRegistrations map[string]struct{}
	// Colleges maps a raw college reference (id or name) to a college id.
	Colleges map[string]string
}

// ValidationOutcome partitions candidates into persistable drafts and rejections, both in
// input order.
type ValidationOutcome struct {
	Drafts   []models.StudentDraft
	Rejected []models.RejectedRecord
}

// RosterValidator normalizes and validates roster rows.
type RosterValidator struct{}

// NewRosterValidator constructs a validator.
func NewRosterValidator() *RosterValidator { return &RosterValidator{} }

// Validate applies the rules to each candidate in order; the first failing rule decides the
// rejection. Identifiers are reserved only by accepted rows, so the first valid occurrence of a
// symbol or registration number wins.
func (v *RosterValidator) Validate(candidates []models.StudentCandidate, snapshot ValidationSnapshot) ValidationOutcome {
	out := ValidationOutcome{}
	seenSymbols := make(map[string]struct{}, len(candidates))
	seenRegistrations := make(map[string]struct{}, len(candidates))

	for _, c := range candidates {
		candidate := NormalizeCandidate(c)
		reject := func(reason models.RejectionReason) {
			out.Rejected = append(out.Rejected, models.RejectedRecord{RowIndex: candidate.RowIndex, Reason: reason})
		}

		switch {
		case !snapshot.BatchExists:
			reject(models.RejectUnknownBatch)
			continue
		case !snapshot.ProgramExists:
			reject(models.RejectUnknownProgram)
			continue
		case candidate.FullName == "" || candidate.SymbolNumber == "" || candidate.RegistrationNumber == "":
			reject(models.RejectMissingField)
			continue
		}

		if _, taken := snapshot.ExistingSymbols[candidate.SymbolNumber]; taken {
			reject(models.RejectDuplicateSymbolNumber)
			continue
		}
		if _, taken := seenSymbols[candidate.SymbolNumber]; taken {
			reject(models.RejectDuplicateSymbolNumber)
			continue
		}
		if _, taken := snapshot.ExistingRegistrations[candidate.RegistrationNumber]; taken {
			reject(models.RejectDuplicateRegistrationNumber)
			continue
		}
		if _, taken := seenRegistrations[candidate.RegistrationNumber]; taken {
			reject(models.RejectDuplicateRegistrationNumber)
			continue
		}

		var collegeID *string
		if candidate.College != "" {
			id, ok := snapshot.Colleges[candidate.College]
			if !ok {
				reject(models.RejectUnknownCollege)
				continue
			}
			collegeID = &id
		}

		seenSymbols[candidate.SymbolNumber] = struct{}{}
		seenRegistrations[candidate.RegistrationNumber] = struct{}{}
		out.Drafts = append(out.Drafts, models.StudentDraft{
			RowIndex:           candidate.RowIndex,
			FullName:           candidate.FullName,
			SymbolNumber:       candidate.SymbolNumber,
			RegistrationNumber: candidate.RegistrationNumber,
			CollegeID:          collegeID,
		})
	}
	return out
}

// NormalizeCandidate trims every field, collapses whitespace in the name and upper-cases the
// identifiers.
func NormalizeCandidate(c models.StudentCandidate) models.StudentCandidate {
	c.FullName = strings.Join(strings.Fields(c.FullName), " ")
	c.SymbolNumber = strings.ToUpper(strings.TrimSpace(c.SymbolNumber))
	c.RegistrationNumber = strings.ToUpper(strings.TrimSpace(c.RegistrationNumber))
	c.College = strings.TrimSpace(c.College)
	return c
}
