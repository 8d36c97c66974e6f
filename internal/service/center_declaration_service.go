package service

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/result-distribution-api/internal/dto"
	"github.com/noah-isme/result-distribution-api/internal/models"
	appErrors "github.com/noah-isme/result-distribution-api/pkg/errors"
	"github.com/noah-isme/result-distribution-api/pkg/tabular"
)

// CenterCapacitySchema describes the columns of a center and capacity upload.
var CenterCapacitySchema = tabular.Schema{
	Columns:  []string{"college", "is_center", "capacity"},
	Required: []string{"college"},
	Aliases: map[string][]string{
		"college":   {"college_name", "college_id", "center", "center_id"},
		"is_center": {"center_flag"},
	},
}

type capacityDeclarer interface {
	DeclareCapacity(ctx context.Context, session *models.Session, key models.CenterKey, capacity int) (*models.CenterCapacity, error)
}

// CenterDeclarationService declares many centers for one cycle, reporting the rows it could not apply.
type CenterDeclarationService struct {
	ledger   capacityDeclarer
	catalog  importCatalog
	colleges collegeResolver
	validate *validator.Validate
	logger   *zap.Logger
}

// NewCenterDeclarationService constructs the service.
func NewCenterDeclarationService(ledger capacityDeclarer, catalog importCatalog, colleges collegeResolver, validate *validator.Validate, logger *zap.Logger) *CenterDeclarationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CenterDeclarationService{ledger: ledger, catalog: catalog, colleges: colleges, validate: validate, logger: logger}
}

// DeclareBulk applies a JSON list of declarations. Row indexes are 1-based positions in the array.
func (s *CenterDeclarationService) DeclareBulk(ctx context.Context, session *models.Session, req dto.BulkCapacityRequest) (*models.CapacityDeclarationResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "batch_id, program_id and records are required")
	}
	rows := make([]models.CapacityDeclaration, len(req.Records))
	for i, rec := range req.Records {
		college := rec.College
		if strings.TrimSpace(college) == "" {
			college = rec.CollegeName
		}
		isCenter := rec.IsCenter == nil || *rec.IsCenter
		row := models.CapacityDeclaration{RowIndex: i + 1, College: college, IsCenter: &isCenter}
		if rec.Capacity != nil {
			row.Capacity = strconv.Itoa(*rec.Capacity)
		}
		rows[i] = row
	}
	return s.declare(ctx, session, req.BatchID, req.ProgramID, rows)
}

// DeclareUpload applies a TSV or CSV upload shaped by CenterCapacitySchema.
func (s *CenterDeclarationService) DeclareUpload(ctx context.Context, session *models.Session, batchID, programID string, body io.Reader) (*models.CapacityDeclarationResult, error) {
	if strings.TrimSpace(batchID) == "" || strings.TrimSpace(programID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "batch_id and program_id are required")
	}
	reader, err := tabular.NewReader(body, CenterCapacitySchema, tabular.Options{})
	if err != nil {
		return nil, malformed(err)
	}
	var rows []models.CapacityDeclaration
	for {
		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, malformed(err)
		}
		rows = append(rows, models.CapacityDeclaration{
			RowIndex: row.Index,
			College:  row.Fields["college"],
			IsCenter: parseCenterFlag(row.Fields["is_center"]),
			Capacity: row.Fields["capacity"],
		})
	}
	return s.declare(ctx, session, batchID, programID, rows)
}

func (s *CenterDeclarationService) declare(ctx context.Context, session *models.Session, batchID, programID string, rows []models.CapacityDeclaration) (*models.CapacityDeclarationResult, error) {
	result := &models.CapacityDeclarationResult{
		TotalRows: len(rows),
		Rejected:  []models.RejectedRecord{},
		Centers:   []models.CenterCapacity{},
	}
	reject := func(row models.CapacityDeclaration, reason models.RejectionReason) {
		result.Rejected = append(result.Rejected, models.RejectedRecord{RowIndex: row.RowIndex, Reason: reason})
	}

	batchOK, err := s.catalog.BatchExists(ctx, batchID)
	if err != nil {
		return nil, storageError(err, "failed to check batch")
	}
	programOK, err := s.catalog.ProgramExists(ctx, programID)
	if err != nil {
		return nil, storageError(err, "failed to check program")
	}
	if !batchOK || !programOK {
		reason := models.RejectUnknownBatch
		if batchOK {
			reason = models.RejectUnknownProgram
		}
		for _, row := range rows {
			reject(row, reason)
		}
		return result, nil
	}

	refs := make([]string, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		ref := strings.TrimSpace(row.College)
		if ref == "" {
			continue
		}
		if _, ok := seen[ref]; !ok {
			seen[ref] = struct{}{}
			refs = append(refs, ref)
		}
	}
	resolved, err := s.colleges.ResolveReferences(ctx, refs)
	if err != nil {
		return nil, storageError(err, "failed to resolve colleges")
	}

	for i, row := range rows {
		if ctx.Err() != nil {
			for _, rest := range rows[i:] {
				reject(rest, models.RejectCancelled)
			}
			break
		}

		ref := strings.TrimSpace(row.College)
		if ref == "" {
			reject(row, models.RejectMissingField)
			continue
		}
		collegeID, ok := resolved[ref]
		if !ok {
			reject(row, models.RejectUnknownCollege)
			continue
		}
		capacity, reason := declaredSeats(row)
		if reason != "" {
			reject(row, reason)
			continue
		}

		key := models.CenterKey{CollegeID: collegeID, BatchID: batchID, ProgramID: programID}
		stored, err := s.ledger.DeclareCapacity(ctx, session, key, capacity)
		switch {
		case err == nil:
			result.AcceptedCount++
			result.Centers = append(result.Centers, *stored)
		case errors.Is(err, appErrors.ErrInvalidCapacity):
			reject(row, models.RejectInvalidCapacity)
		case errors.Is(err, appErrors.ErrNotFound):
			reject(row, models.RejectUnknownCollege)
		default:
			return nil, err
		}
	}

	s.logger.Info("center declaration finished",
		zap.String("batch_id", batchID),
		zap.String("program_id", programID),
		zap.Int("total_rows", result.TotalRows),
		zap.Int("accepted", result.AcceptedCount),
		zap.Int("rejected", len(result.Rejected)),
	)
	return result, nil
}

// declaredSeats reads the capacity of a row. A college that is not a center offers no seats.
func declaredSeats(row models.CapacityDeclaration) (int, models.RejectionReason) {
	if row.IsCenter == nil {
		return 0, models.RejectInvalidCapacity
	}
	if !*row.IsCenter {
		return 0, ""
	}
	raw := strings.TrimSpace(row.Capacity)
	if raw == "" {
		return 0, models.RejectMissingField
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, models.RejectInvalidCapacity
	}
	return n, ""
}

// parseCenterFlag reads an is_center cell. A blank cell means the college is a center.
func parseCenterFlag(raw string) *bool {
	raw = strings.ToLower(strings.TrimSpace(raw))
	var v bool
	switch raw {
	case "", "yes", "y":
		v = true
	case "no", "n":
		v = false
	default:
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return nil
		}
		v = parsed
	}
	return &v
}
