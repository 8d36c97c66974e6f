package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/result-distribution-api/internal/models"
)

func openSnapshot() ValidationSnapshot {
	return ValidationSnapshot{
		BatchExists:           true,
		ProgramExists:         true,
		ExistingSymbols:       map[string]struct{}{},
		ExistingRegistrations: map[string]struct{}{},
		Colleges:              map[string]string{},
	}
}

func TestValidateNormalizesAccepted(t *testing.T) {
	out := NewRosterValidator().Validate([]models.StudentCandidate{
		{RowIndex: 1, FullName: "  Asha   Kumari  Rai ", SymbolNumber: " s-1 ", RegistrationNumber: "r-1"},
	}, openSnapshot())

	require.Len(t, out.Drafts, 1)
	assert.Empty(t, out.Rejected)
	assert.Equal(t, "Asha Kumari Rai", out.Drafts[0].FullName)
	assert.Equal(t, "S-1", out.Drafts[0].SymbolNumber)
	assert.Equal(t, "R-1", out.Drafts[0].RegistrationNumber)
	assert.Nil(t, out.Drafts[0].CollegeID)
}

func TestValidateDuplicateSymbolWithinFile(t *testing.T) {
	out := NewRosterValidator().Validate([]models.StudentCandidate{
		{RowIndex: 1, FullName: "A", SymbolNumber: "S1", RegistrationNumber: "R1"},
		{RowIndex: 2, FullName: "B", SymbolNumber: "s1", RegistrationNumber: "R2"},
		{RowIndex: 3, FullName: "C", SymbolNumber: "S3", RegistrationNumber: "R3"},
	}, openSnapshot())

	assert.Len(t, out.Drafts, 2)
	assert.Equal(t, []models.RejectedRecord{{RowIndex: 2, Reason: models.RejectDuplicateSymbolNumber}}, out.Rejected)
}

func TestValidateAgainstPersistedIdentifiers(t *testing.T) {
	snapshot := openSnapshot()
	snapshot.ExistingSymbols["S1"] = struct{}{}
	snapshot.ExistingRegistrations["R2"] = struct{}{}

	out := NewRosterValidator().Validate([]models.StudentCandidate{
		{RowIndex: 1, FullName: "A", SymbolNumber: "S1", RegistrationNumber: "R1"},
		{RowIndex: 2, FullName: "B", SymbolNumber: "S2", RegistrationNumber: "R2"},
	}, snapshot)

	assert.Empty(t, out.Drafts)
	assert.Equal(t, []models.RejectedRecord{
		{RowIndex: 1, Reason: models.RejectDuplicateSymbolNumber},
		{RowIndex: 2, Reason: models.RejectDuplicateRegistrationNumber},
	}, out.Rejected)
}

func TestValidateRejectedRowDoesNotReserveIdentifiers(t *testing.T) {
	out := NewRosterValidator().Validate([]models.StudentCandidate{
		{RowIndex: 1, FullName: "", SymbolNumber: "S1", RegistrationNumber: "R1"},
		{RowIndex: 2, FullName: "B", SymbolNumber: "S1", RegistrationNumber: "R1"},
	}, openSnapshot())

	require.Len(t, out.Drafts, 1)
	assert.Equal(t, 2, out.Drafts[0].RowIndex)
	assert.Equal(t, []models.RejectedRecord{{RowIndex: 1, Reason: models.RejectMissingField}}, out.Rejected)
}

func TestValidateRuleOrder(t *testing.T) {
	snapshot := openSnapshot()
	snapshot.BatchExists = false
	out := NewRosterValidator().Validate([]models.StudentCandidate{{RowIndex: 1}}, snapshot)
	assert.Equal(t, models.RejectUnknownBatch, out.Rejected[0].Reason)

	snapshot = openSnapshot()
	snapshot.ProgramExists = false
	out = NewRosterValidator().Validate([]models.StudentCandidate{{RowIndex: 1}}, snapshot)
	assert.Equal(t, models.RejectUnknownProgram, out.Rejected[0].Reason)

	snapshot = openSnapshot()
	snapshot.ExistingSymbols["S1"] = struct{}{}
	snapshot.ExistingRegistrations["R1"] = struct{}{}
	out = NewRosterValidator().Validate([]models.StudentCandidate{{RowIndex: 1, FullName: "A", SymbolNumber: "S1", RegistrationNumber: "R1"}}, snapshot)
	assert.Equal(t, models.RejectDuplicateSymbolNumber, out.Rejected[0].Reason)
}

func TestValidateCollegeReference(t *testing.T) {
	snapshot := openSnapshot()
	snapshot.Colleges["Patan Campus"] = "c2"

	out := NewRosterValidator().Validate([]models.StudentCandidate{
		{RowIndex: 1, FullName: "A", SymbolNumber: "S1", RegistrationNumber: "R1", College: " Patan Campus "},
		{RowIndex: 2, FullName: "B", SymbolNumber: "S2", RegistrationNumber: "R2", College: "Nowhere"},
	}, snapshot)

	require.Len(t, out.Drafts, 1)
	require.NotNil(t, out.Drafts[0].CollegeID)
	assert.Equal(t, "c2", *out.Drafts[0].CollegeID)
	assert.Equal(t, []models.RejectedRecord{{RowIndex: 2, Reason: models.RejectUnknownCollege}}, out.Rejected)
}
