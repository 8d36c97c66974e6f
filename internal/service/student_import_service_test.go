package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/result-distribution-api/internal/dto"
	"github.com/noah-isme/result-distribution-api/internal/models"
	"github.com/noah-isme/result-distribution-api/internal/repository"
	appErrors "github.com/noah-isme/result-distribution-api/pkg/errors"
	"github.com/noah-isme/result-distribution-api/pkg/limiter"
)

type memoryStudentStore struct {
	mu        sync.Mutex
	bySymbol  map[string]*models.Student
	byReg     map[string]struct{}
	insertErr func(n int, s *models.Student) error
	inserts   int
	// raceSymbols are claimed by another writer after the snapshot was taken.
	raceSymbols map[string]struct{}
}

func newMemoryStudentStore() *memoryStudentStore {
	return &memoryStudentStore{bySymbol: map[string]*models.Student{}, byReg: map[string]struct{}{}}
}

func (m *memoryStudentStore) ExistingIdentifiers(ctx context.Context, symbols, registrations []string) (map[string]struct{}, map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	syms := map[string]struct{}{}
	regs := map[string]struct{}{}
	for _, s := range symbols {
		if _, ok := m.bySymbol[s]; ok {
			syms[s] = struct{}{}
		}
	}
	for _, r := range registrations {
		if _, ok := m.byReg[r]; ok {
			regs[r] = struct{}{}
		}
	}
	return syms, regs, nil
}

func (m *memoryStudentStore) Insert(ctx context.Context, s *models.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if m.insertErr != nil {
		if err := m.insertErr(m.inserts, s); err != nil {
			return err
		}
	}
	if _, ok := m.raceSymbols[s.SymbolNumber]; ok {
		return fmt.Errorf("insert student: %w", repository.ErrDuplicateSymbolNumber)
	}
	if _, ok := m.bySymbol[s.SymbolNumber]; ok {
		return fmt.Errorf("insert student: %w", repository.ErrDuplicateSymbolNumber)
	}
	if _, ok := m.byReg[s.RegistrationNumber]; ok {
		return fmt.Errorf("insert student: %w", repository.ErrDuplicateRegistrationNumber)
	}
	m.bySymbol[s.SymbolNumber] = s
	m.byReg[s.RegistrationNumber] = struct{}{}
	return nil
}

type stubCatalog struct {
	batches  map[string]bool
	programs map[string]bool
}

func (s stubCatalog) BatchExists(ctx context.Context, id string) (bool, error) {
	return s.batches[id], nil
}

func (s stubCatalog) ProgramExists(ctx context.Context, id string) (bool, error) {
	return s.programs[id], nil
}

type stubColleges map[string]string

func (s stubColleges) ResolveReferences(ctx context.Context, refs []string) (map[string]string, error) {
	out := map[string]string{}
	for _, r := range refs {
		if id, ok := s[r]; ok {
			out[r] = id
		}
	}
	return out, nil
}

type memoryOperations struct {
	mu  sync.Mutex
	ops map[string]*models.ImportOperation
	// ctxErr captures whether the log was written with a live context.
	ctxErr error
}

func (m *memoryOperations) Create(ctx context.Context, op *models.ImportOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ops == nil {
		m.ops = map[string]*models.ImportOperation{}
	}
	m.ctxErr = ctx.Err()
	m.ops[op.ID] = op
	return nil
}

func (m *memoryOperations) FindByID(ctx context.Context, id string) (*models.ImportOperation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.ops[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return op, nil
}

type importFixture struct {
	svc      *StudentImportService
	students *memoryStudentStore
	ops      *memoryOperations
	audit    *mockAudit
}

func newImportFixture(t *testing.T, slots uploadSlots) *importFixture {
	t.Helper()
	f := &importFixture{
		students: newMemoryStudentStore(),
		ops:      &memoryOperations{},
		audit:    &mockAudit{},
	}
	f.svc = NewStudentImportService(StudentImportDeps{
		Students:   f.students,
		Catalog:    stubCatalog{batches: map[string]bool{"b-2081": true}, programs: map[string]bool{"p-bsc": true}},
		Colleges:   stubColleges{"c-1": "c-1", "Central College": "c-1"},
		Operations: f.ops,
		Audit:      f.audit,
		Slots:      slots,
		Metrics:    NewMetricsService(),
	}, nil, nil)
	return f
}

func rosterRequest(body string) ImportRequest {
	return ImportRequest{BatchID: "b-2081", ProgramID: "p-bsc", FileName: "roster.csv", Body: strings.NewReader(body)}
}

func assertCounts(t *testing.T, res *models.ImportResult) {
	t.Helper()
	assert.Equal(t, res.TotalRows, res.AcceptedCount+len(res.Rejected))
	indexes := map[int]struct{}{}
	for i, r := range res.Rejected {
		_, dup := indexes[r.RowIndex]
		assert.False(t, dup, "row %d rejected twice", r.RowIndex)
		indexes[r.RowIndex] = struct{}{}
		if i > 0 {
			assert.Less(t, res.Rejected[i-1].RowIndex, r.RowIndex)
		}
	}
}

func TestImportCommitsCleanRoster(t *testing.T) {
	f := newImportFixture(t, nil)
	body := "full_name,symbol_number,registration_number,college\n" +
		"Asha Rai,s-001,r-001,Central College\n" +
		"Bikash  Thapa ,S-002,R-002,\n"

	res, err := f.svc.Import(context.Background(), &models.Session{UserID: "u-1"}, rosterRequest(body))
	require.NoError(t, err)
	assertCounts(t, res)
	assert.Equal(t, 2, res.AcceptedCount)
	assert.Empty(t, res.Rejected)
	assert.Equal(t, models.ImportCommitted, res.Outcome)

	stored := f.students.bySymbol["S-001"]
	require.NotNil(t, stored)
	require.NotNil(t, stored.CollegeID)
	assert.Equal(t, "c-1", *stored.CollegeID)
	assert.Equal(t, "Bikash Thapa", f.students.bySymbol["S-002"].FullName)

	op, err := f.svc.GetOperation(context.Background(), res.OperationID)
	require.NoError(t, err)
	assert.Equal(t, "u-1", op.ActorID)
	assert.Equal(t, models.ImportCommitted, op.Outcome)
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, models.AuditActionStudentImport, f.audit.entries[0].Action)
}

func TestImportReportsEveryRejectedRow(t *testing.T) {
	f := newImportFixture(t, nil)
	f.students.bySymbol["S-900"] = &models.Student{SymbolNumber: "S-900"}
	body := "full_name\tsymbol_number\tregistration_number\tcollege\n" +
		"A\tS-1\tR-1\t\n" +
		"\tS-2\tR-2\t\n" +
		"C\tS-1\tR-3\t\n" +
		"D\tS-900\tR-4\t\n" +
		"E\tS-5\tR-1\t\n" +
		"F\tS-6\tR-6\tNowhere\n"

	res, err := f.svc.Import(context.Background(), nil, rosterRequest(body))
	require.NoError(t, err)
	assertCounts(t, res)
	assert.Equal(t, 6, res.TotalRows)
	assert.Equal(t, 1, res.AcceptedCount)
	assert.Equal(t, models.ImportPartial, res.Outcome)
	assert.Equal(t, []models.RejectedRecord{
		{RowIndex: 2, Reason: models.RejectMissingField},
		{RowIndex: 3, Reason: models.RejectDuplicateSymbolNumber},
		{RowIndex: 4, Reason: models.RejectDuplicateSymbolNumber},
		{RowIndex: 5, Reason: models.RejectDuplicateRegistrationNumber},
		{RowIndex: 6, Reason: models.RejectUnknownCollege},
	}, res.Rejected)
}

func TestImportTenRowsWithBlankSymbolAndRepeatedRegistration(t *testing.T) {
	f := newImportFixture(t, nil)
	var b strings.Builder
	b.WriteString("full_name,symbol_number,registration_number\n")
	for i := 1; i <= 10; i++ {
		symbol := fmt.Sprintf("S-%02d", i)
		reg := fmt.Sprintf("R-%02d", i)
		switch i {
		case 4:
			symbol = ""
		case 7:
			reg = "R-02"
		}
		fmt.Fprintf(&b, "Student %d,%s,%s\n", i, symbol, reg)
	}

	res, err := f.svc.Import(context.Background(), nil, rosterRequest(b.String()))
	require.NoError(t, err)
	assertCounts(t, res)
	assert.Equal(t, 10, res.TotalRows)
	assert.Equal(t, 8, res.AcceptedCount)
	assert.Equal(t, models.ImportPartial, res.Outcome)
	assert.Equal(t, []models.RejectedRecord{
		{RowIndex: 4, Reason: models.RejectMissingField},
		{RowIndex: 7, Reason: models.RejectDuplicateRegistrationNumber},
	}, res.Rejected)
	assert.Len(t, f.students.bySymbol, 8)
}

func TestImportUnknownBatchRejectsAllRows(t *testing.T) {
	f := newImportFixture(t, nil)
	req := rosterRequest("full_name,symbol_number,registration_number\nA,S-1,R-1\nB,S-2,R-2\n")
	req.BatchID = "b-missing"

	res, err := f.svc.Import(context.Background(), nil, req)
	require.NoError(t, err)
	assertCounts(t, res)
	assert.Zero(t, res.AcceptedCount)
	for _, r := range res.Rejected {
		assert.Equal(t, models.RejectUnknownBatch, r.Reason)
	}
	assert.Zero(t, f.students.inserts)
}

func TestImportMissingRequiredColumnIsMalformed(t *testing.T) {
	f := newImportFixture(t, nil)
	_, err := f.svc.Import(context.Background(), nil, rosterRequest("full_name,symbol_number\nA,S-1\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrMalformedInput))
	assert.Empty(t, f.ops.ops)
}

func TestImportReimportRejectsEverything(t *testing.T) {
	f := newImportFixture(t, nil)
	body := "full_name,symbol_number,registration_number\nA,S-1,R-1\nB,S-2,R-2\n"

	first, err := f.svc.Import(context.Background(), nil, rosterRequest(body))
	require.NoError(t, err)
	assert.Equal(t, 2, first.AcceptedCount)

	second, err := f.svc.Import(context.Background(), nil, rosterRequest(body))
	require.NoError(t, err)
	assertCounts(t, second)
	assert.Zero(t, second.AcceptedCount)
	for _, r := range second.Rejected {
		assert.Equal(t, models.RejectDuplicateSymbolNumber, r.Reason)
	}
}

func TestImportConcurrentClaimBecomesRejection(t *testing.T) {
	f := newImportFixture(t, nil)
	f.students.raceSymbols = map[string]struct{}{"S-2": {}}

	res, err := f.svc.Import(context.Background(), nil, rosterRequest("full_name,symbol_number,registration_number\nA,S-1,R-1\nB,S-2,R-2\nC,S-3,R-3\n"))
	require.NoError(t, err)
	assertCounts(t, res)
	assert.Equal(t, 2, res.AcceptedCount)
	assert.Equal(t, []models.RejectedRecord{{RowIndex: 2, Reason: models.RejectDuplicateSymbolNumber}}, res.Rejected)
}

func TestImportCancelledMidwayMarksRemainingRows(t *testing.T) {
	f := newImportFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	f.students.insertErr = func(n int, s *models.Student) error {
		if n == 2 {
			cancel()
			return fmt.Errorf("insert student: %w", context.Canceled)
		}
		return nil
	}

	res, err := f.svc.Import(ctx, nil, rosterRequest("full_name,symbol_number,registration_number\nA,S-1,R-1\nB,S-2,R-2\nC,S-3,R-3\n"))
	require.NoError(t, err)
	assertCounts(t, res)
	assert.Equal(t, 1, res.AcceptedCount)
	assert.Equal(t, models.ImportAborted, res.Outcome)
	assert.Equal(t, []models.RejectedRecord{
		{RowIndex: 2, Reason: models.RejectCancelled},
		{RowIndex: 3, Reason: models.RejectCancelled},
	}, res.Rejected)

	require.Contains(t, f.ops.ops, res.OperationID)
	assert.NoError(t, f.ops.ctxErr)
}

func TestImportCancelledBeforeWritesReturnsContextError(t *testing.T) {
	f := newImportFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Import(ctx, nil, rosterRequest("full_name,symbol_number,registration_number\nA,S-1,R-1\n"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.students.inserts)
}

func TestImportStorageFailureIsRetryable(t *testing.T) {
	f := newImportFixture(t, nil)
	f.students.insertErr = func(n int, s *models.Student) error {
		if n == 2 {
			return fmt.Errorf("insert student: %w", repository.ErrUnavailable)
		}
		return nil
	}

	_, err := f.svc.Import(context.Background(), nil, rosterRequest("full_name,symbol_number,registration_number\nA,S-1,R-1\nB,S-2,R-2\n"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrStorageUnavailable.Code, appErr.Code)
	assert.True(t, appErr.Retryable())
	assert.Len(t, f.students.bySymbol, 1)
}

func TestImportRejectsWhenSlotsExhausted(t *testing.T) {
	slots := limiter.New(1, 20*time.Millisecond)
	require.NoError(t, slots.Acquire(context.Background()))
	defer slots.Release()

	f := newImportFixture(t, slots)
	_, err := f.svc.Import(context.Background(), nil, rosterRequest("full_name,symbol_number,registration_number\nA,S-1,R-1\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrTooManyUploads))
}

func TestBulkImportUsesArrayPositions(t *testing.T) {
	f := newImportFixture(t, nil)
	res, err := f.svc.BulkImport(context.Background(), nil, dto.BulkImportRequest{
		BatchID:   "b-2081",
		ProgramID: "p-bsc",
		Students: []dto.BulkStudent{
			{FullName: "A", SymbolNumber: "S-1", RegistrationNumber: "R-1"},
			{FullName: "B", SymbolNumber: "S-1", RegistrationNumber: "R-2"},
		},
	})
	require.NoError(t, err)
	assertCounts(t, res)
	assert.Equal(t, []models.RejectedRecord{{RowIndex: 2, Reason: models.RejectDuplicateSymbolNumber}}, res.Rejected)
}

func TestGetOperationNotFound(t *testing.T) {
	f := newImportFixture(t, nil)
	_, err := f.svc.GetOperation(context.Background(), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
