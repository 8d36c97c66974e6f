package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/result-distribution-api/internal/dto"
	"github.com/noah-isme/result-distribution-api/internal/models"
	"github.com/noah-isme/result-distribution-api/internal/repository"
	appErrors "github.com/noah-isme/result-distribution-api/pkg/errors"
	"github.com/noah-isme/result-distribution-api/pkg/limiter"
	"github.com/noah-isme/result-distribution-api/pkg/tabular"
)

// StudentRosterSchema describes the columns accepted in a roster upload.
var StudentRosterSchema = tabular.Schema{
	Columns:  []string{"full_name", "symbol_number", "registration_number", "college"},
	Required: []string{"full_name", "symbol_number", "registration_number"},
	Aliases: map[string][]string{
		"full_name":           {"fullname", "name"},
		"registration_number": {"regd_number"},
		"college":             {"college_id", "college_name"},
	},
}

const operationLogTimeout = 5 * time.Second

type importStudentStore interface {
	ExistingIdentifiers(ctx context.Context, symbols, registrations []string) (map[string]struct{}, map[string]struct{}, error)
	Insert(ctx context.Context, student *models.Student) error
}

type importCatalog interface {
	BatchExists(ctx context.Context, id string) (bool, error)
	ProgramExists(ctx context.Context, id string) (bool, error)
}

type collegeResolver interface {
	ResolveReferences(ctx context.Context, refs []string) (map[string]string, error)
}

type importOperationStore interface {
	Create(ctx context.Context, op *models.ImportOperation) error
	FindByID(ctx context.Context, id string) (*models.ImportOperation, error)
}

type uploadSlots interface {
	Acquire(ctx context.Context) error
	Release()
	Status() limiter.Status
}

// ImportRequest is a roster upload for one (batch, program) cycle.
type ImportRequest struct {
	BatchID   string    `validate:"required"`
	ProgramID string    `validate:"required"`
	FileName  string    `validate:"max=255"`
	Body      io.Reader `validate:"required"`
}

// StudentImportService turns an uploaded roster into persisted students, reporting every row
// that could not be enrolled.
type StudentImportService struct {
	students   importStudentStore
	catalog    importCatalog
	colleges   collegeResolver
	operations importOperationStore
	audit      auditRecorder
	slots      uploadSlots
	validator  *RosterValidator
	validate   *validator.Validate
	metrics    *MetricsService
	logger     *zap.Logger
}

// StudentImportDeps groups the collaborators of StudentImportService.
type StudentImportDeps struct {
	Students   importStudentStore
	Catalog    importCatalog
	Colleges   collegeResolver
	Operations importOperationStore
	Audit      auditRecorder
	Slots      uploadSlots
	Metrics    *MetricsService
}

// NewStudentImportService constructs the import coordinator.
func NewStudentImportService(deps StudentImportDeps, validate *validator.Validate, logger *zap.Logger) *StudentImportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Slots == nil {
		deps.Slots = limiter.New(limiter.DefaultMaxConcurrent, limiter.DefaultMaxWait)
	}
	return &StudentImportService{
		students:   deps.Students,
		catalog:    deps.Catalog,
		colleges:   deps.Colleges,
		operations: deps.Operations,
		audit:      deps.Audit,
		slots:      deps.Slots,
		validator:  NewRosterValidator(),
		validate:   validate,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// Import parses an uploaded roster and enrolls every valid row.
func (s *StudentImportService) Import(ctx context.Context, session *models.Session, req ImportRequest) (*models.ImportResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "batch_id, program_id and file are required")
	}
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	reader, err := tabular.NewReader(req.Body, StudentRosterSchema, tabular.Options{})
	if err != nil {
		return nil, malformed(err)
	}
	var candidates []models.StudentCandidate
	for {
		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, malformed(err)
		}
		candidates = append(candidates, models.StudentCandidate{
			RowIndex:           row.Index,
			FullName:           row.Fields["full_name"],
			SymbolNumber:       row.Fields["symbol_number"],
			RegistrationNumber: row.Fields["registration_number"],
			College:            row.Fields["college"],
		})
	}

	return s.enroll(ctx, session, req.BatchID, req.ProgramID, req.FileName, candidates)
}

// BulkImport enrolls students supplied as JSON. Row indexes are 1-based positions in the array.
func (s *StudentImportService) BulkImport(ctx context.Context, session *models.Session, req dto.BulkImportRequest) (*models.ImportResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk import payload")
	}
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	candidates := make([]models.StudentCandidate, len(req.Students))
	for i, st := range req.Students {
		candidates[i] = models.StudentCandidate{
			RowIndex:           i + 1,
			FullName:           st.FullName,
			SymbolNumber:       st.SymbolNumber,
			RegistrationNumber: st.RegistrationNumber,
			College:            st.College,
		}
	}
	return s.enroll(ctx, session, req.BatchID, req.ProgramID, "bulk.json", candidates)
}

// GetOperation returns a persisted import log.
func (s *StudentImportService) GetOperation(ctx context.Context, id string) (*models.ImportOperation, error) {
	op, err := s.operations.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "import operation not found")
		}
		return nil, storageError(err, "failed to load import operation")
	}
	return op, nil
}

func (s *StudentImportService) acquire(ctx context.Context) (func(), error) {
	if err := s.slots.Acquire(ctx); err != nil {
		if errors.Is(err, limiter.ErrTooManyUploads) {
			return nil, appErrors.ErrTooManyUploads
		}
		return nil, err
	}
	s.metrics.SetUploadsActive(s.slots.Status().Active)
	return func() {
		s.slots.Release()
		s.metrics.SetUploadsActive(s.slots.Status().Active)
	}, nil
}

func (s *StudentImportService) enroll(ctx context.Context, session *models.Session, batchID, programID, fileName string, candidates []models.StudentCandidate) (*models.ImportResult, error) {
	started := time.Now().UTC()

	snapshot, err := s.loadSnapshot(ctx, batchID, programID, candidates)
	if err != nil {
		return nil, err
	}
	outcome := s.validator.Validate(candidates, snapshot)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rejected := outcome.Rejected
	accepted := 0
	cancelled := false
	for i, draft := range outcome.Drafts {
		if ctx.Err() != nil {
			cancelled = true
			rejected = appendCancelled(rejected, outcome.Drafts[i:])
			break
		}

		student := &models.Student{
			ID:                 uuid.NewString(),
			FullName:           draft.FullName,
			SymbolNumber:       draft.SymbolNumber,
			RegistrationNumber: draft.RegistrationNumber,
			BatchID:            batchID,
			ProgramID:          programID,
			CollegeID:          draft.CollegeID,
			CurrentSemester:    1,
			Status:             models.StudentStatusActive,
		}
		err := s.students.Insert(ctx, student)
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, repository.ErrDuplicateSymbolNumber):
			s.logger.Warn("symbol number claimed concurrently", zap.Int("row_index", draft.RowIndex), zap.String("symbol_number", draft.SymbolNumber))
			rejected = append(rejected, models.RejectedRecord{RowIndex: draft.RowIndex, Reason: models.RejectDuplicateSymbolNumber})
		case errors.Is(err, repository.ErrDuplicateRegistrationNumber):
			s.logger.Warn("registration number claimed concurrently", zap.Int("row_index", draft.RowIndex), zap.String("registration_number", draft.RegistrationNumber))
			rejected = append(rejected, models.RejectedRecord{RowIndex: draft.RowIndex, Reason: models.RejectDuplicateRegistrationNumber})
		case ctx.Err() != nil:
			cancelled = true
			rejected = appendCancelled(rejected, outcome.Drafts[i:])
		case errors.Is(err, repository.ErrMissingReference):
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "batch, program or college removed during import")
		default:
			s.logger.Error("import aborted by storage failure", zap.Int("row_index", draft.RowIndex), zap.Int("accepted_before_failure", accepted), zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "storage failed mid-import; committed rows are kept, resubmit to continue")
		}
		if cancelled {
			break
		}
	}

	sort.SliceStable(rejected, func(i, j int) bool { return rejected[i].RowIndex < rejected[j].RowIndex })
	if rejected == nil {
		rejected = []models.RejectedRecord{}
	}

	result := &models.ImportResult{
		OperationID:   uuid.NewString(),
		TotalRows:     len(candidates),
		AcceptedCount: accepted,
		Rejected:      rejected,
		Outcome:       importOutcome(cancelled, len(rejected)),
	}

	s.recordOperation(ctx, session, batchID, programID, fileName, started, result)
	s.metrics.RecordImportRows(result.AcceptedCount, len(result.Rejected))
	s.logger.Info("student import finished",
		zap.String("operation_id", result.OperationID),
		zap.String("batch_id", batchID),
		zap.String("program_id", programID),
		zap.Int("total_rows", result.TotalRows),
		zap.Int("accepted", result.AcceptedCount),
		zap.Int("rejected", len(result.Rejected)),
		zap.String("outcome", string(result.Outcome)),
		zap.Duration("duration", time.Since(started)),
	)
	return result, nil
}

func (s *StudentImportService) loadSnapshot(ctx context.Context, batchID, programID string, candidates []models.StudentCandidate) (ValidationSnapshot, error) {
	snapshot := ValidationSnapshot{}
	var err error
	if snapshot.BatchExists, err = s.catalog.BatchExists(ctx, batchID); err != nil {
		return snapshot, storageError(err, "failed to check batch")
	}
	if snapshot.ProgramExists, err = s.catalog.ProgramExists(ctx, programID); err != nil {
		return snapshot, storageError(err, "failed to check program")
	}

	symbols := make([]string, 0, len(candidates))
	registrations := make([]string, 0, len(candidates))
	refs := make([]string, 0)
	seenRef := make(map[string]struct{})
	for _, c := range candidates {
		n := NormalizeCandidate(c)
		if n.SymbolNumber != "" {
			symbols = append(symbols, n.SymbolNumber)
		}
		if n.RegistrationNumber != "" {
			registrations = append(registrations, n.RegistrationNumber)
		}
		if n.College != "" {
			if _, ok := seenRef[n.College]; !ok {
				seenRef[n.College] = struct{}{}
				refs = append(refs, n.College)
			}
		}
	}

	if snapshot.ExistingSymbols, snapshot.ExistingRegistrations, err = s.students.ExistingIdentifiers(ctx, symbols, registrations); err != nil {
		return snapshot, storageError(err, "failed to load existing identifiers")
	}
	if snapshot.Colleges, err = s.colleges.ResolveReferences(ctx, refs); err != nil {
		return snapshot, storageError(err, "failed to resolve colleges")
	}
	return snapshot, nil
}

func (s *StudentImportService) recordOperation(ctx context.Context, session *models.Session, batchID, programID, fileName string, started time.Time, result *models.ImportResult) {
	rejected, err := json.Marshal(result.Rejected)
	if err != nil {
		rejected = []byte("[]")
	}
	op := &models.ImportOperation{
		ID:            result.OperationID,
		BatchID:       batchID,
		ProgramID:     programID,
		ActorID:       actorID(session),
		FileName:      fileName,
		TotalRows:     result.TotalRows,
		AcceptedCount: result.AcceptedCount,
		Rejected:      types.JSONText(rejected),
		Outcome:       result.Outcome,
		StartedAt:     started,
		FinishedAt:    time.Now().UTC(),
	}

	// The caller may already be gone when the import was cancelled; the log is still written.
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), operationLogTimeout)
	defer cancel()
	if err := s.operations.Create(logCtx, op); err != nil {
		s.logger.Warn("failed to persist import operation", zap.String("operation_id", op.ID), zap.Error(err))
	}
	recordAudit(logCtx, s.audit, s.logger, session, models.AuditActionStudentImport, "import_operation", op.ID, map[string]interface{}{
		"batch_id":       batchID,
		"program_id":     programID,
		"accepted_count": result.AcceptedCount,
		"rejected_count": len(result.Rejected),
		"outcome":        result.Outcome,
	})
}

func appendCancelled(rejected []models.RejectedRecord, drafts []models.StudentDraft) []models.RejectedRecord {
	for _, d := range drafts {
		rejected = append(rejected, models.RejectedRecord{RowIndex: d.RowIndex, Reason: models.RejectCancelled})
	}
	return rejected
}

func importOutcome(cancelled bool, rejected int) models.ImportOutcome {
	switch {
	case cancelled:
		return models.ImportAborted
	case rejected == 0:
		return models.ImportCommitted
	default:
		return models.ImportPartial
	}
}

func malformed(err error) error {
	if errors.Is(err, tabular.ErrMalformedInput) {
		return appErrors.Wrap(err, appErrors.ErrMalformedInput.Code, appErrors.ErrMalformedInput.Status, err.Error())
	}
	return appErrors.Wrap(err, appErrors.ErrMalformedInput.Code, appErrors.ErrMalformedInput.Status, "could not read upload")
}
