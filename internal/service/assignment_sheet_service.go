package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/result-distribution-api/internal/models"
	appErrors "github.com/noah-isme/result-distribution-api/pkg/errors"
	"github.com/noah-isme/result-distribution-api/pkg/export"
	"github.com/noah-isme/result-distribution-api/pkg/jobs"
	"github.com/noah-isme/result-distribution-api/pkg/storage"
)

// SheetJobType identifies assignment sheet jobs on the queue.
const SheetJobType = "assignment_sheet"

type sheetSource interface {
	SheetRows(ctx context.Context, batchID, programID string) ([]models.SheetRow, error)
}

type sheetStorage interface {
	Save(name string, data []byte) error
	Read(name string) ([]byte, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// SheetCycle is the payload of an assignment sheet job.
type SheetCycle struct {
	BatchID   string
	ProgramID string
}

// SheetFile is a rendered assignment sheet ready for download.
type SheetFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// AssignmentSheetService renders the printable list of students and their exam centers.
type AssignmentSheetService struct {
	source    sheetSource
	storage   sheetStorage
	queue     jobEnqueuer
	renderers map[string]export.Renderer
	logger    *zap.Logger
}

// NewAssignmentSheetService constructs the service. Renderers default to CSV and PDF.
func NewAssignmentSheetService(source sheetSource, store sheetStorage, logger *zap.Logger, renderers ...export.Renderer) *AssignmentSheetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(renderers) == 0 {
		renderers = []export.Renderer{export.NewCSVRenderer(), export.NewPDFRenderer()}
	}
	byFormat := make(map[string]export.Renderer, len(renderers))
	for _, r := range renderers {
		byFormat[r.Extension()] = r
	}
	return &AssignmentSheetService{source: source, storage: store, renderers: byFormat, logger: logger}
}

// UseQueue routes Schedule through q. Without a queue sheets are rendered inline.
func (s *AssignmentSheetService) UseQueue(q jobEnqueuer) {
	s.queue = q
}

// Schedule requests a fresh sheet for the cycle.
func (s *AssignmentSheetService) Schedule(ctx context.Context, batchID, programID string) error {
	if s.queue == nil {
		return s.Generate(ctx, batchID, programID)
	}
	return s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    SheetJobType,
		Payload: SheetCycle{BatchID: batchID, ProgramID: programID},
	})
}

// HandleJob is the queue handler for sheet jobs.
func (s *AssignmentSheetService) HandleJob(ctx context.Context, job jobs.Job) error {
	cycle, ok := job.Payload.(SheetCycle)
	if !ok {
		return fmt.Errorf("job %s: unexpected payload %T", job.ID, job.Payload)
	}
	return s.Generate(ctx, cycle.BatchID, cycle.ProgramID)
}

// Generate renders every configured format for the cycle and stores the files.
func (s *AssignmentSheetService) Generate(ctx context.Context, batchID, programID string) error {
	rows, err := s.source.SheetRows(ctx, batchID, programID)
	if err != nil {
		return fmt.Errorf("load sheet rows: %w", err)
	}

	data := export.Dataset{
		Title:   fmt.Sprintf("Exam center assignments: batch %s, program %s", batchID, programID),
		Headers: []string{"Symbol No.", "Registration No.", "Name", "College", "Center Code", "Center"},
	}
	for _, r := range rows {
		data.Append(r.SymbolNumber, r.RegistrationNumber, r.FullName, r.CollegeName, r.CenterCode, r.CenterName)
	}

	for format, renderer := range s.renderers {
		payload, err := renderer.Render(data)
		if err != nil {
			return fmt.Errorf("render %s sheet: %w", format, err)
		}
		if err := s.storage.Save(sheetFileName(batchID, programID, format), payload); err != nil {
			return fmt.Errorf("store %s sheet: %w", format, err)
		}
	}
	s.logger.Info("assignment sheet generated", zap.String("batch_id", batchID), zap.String("program_id", programID), zap.Int("rows", len(rows)))
	return nil
}

// Download returns the stored sheet, rendering it on demand when none exists yet.
func (s *AssignmentSheetService) Download(ctx context.Context, batchID, programID, format string) (*SheetFile, error) {
	if format == "" {
		format = "csv"
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	name := sheetFileName(batchID, programID, format)

	data, err := s.storage.Read(name)
	if errors.Is(err, storage.ErrNotFound) {
		if genErr := s.Generate(ctx, batchID, programID); genErr != nil {
			return nil, storageError(genErr, "failed to generate assignment sheet")
		}
		data, err = s.storage.Read(name)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read assignment sheet")
	}
	return &SheetFile{Name: name, ContentType: renderer.ContentType(), Data: data}, nil
}

func sheetFileName(batchID, programID, ext string) string {
	return fmt.Sprintf("center_assignments_%s_%s.%s", sanitizeFilename(batchID), sanitizeFilename(programID), ext)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
