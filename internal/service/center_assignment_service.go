package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/result-distribution-api/internal/models"
	appErrors "github.com/noah-isme/result-distribution-api/pkg/errors"
)

const releaseTimeout = 5 * time.Second

type assignmentRoster interface {
	ListUnassigned(ctx context.Context, batchID, programID string) ([]models.Student, error)
	AssignCenter(ctx context.Context, centerID string, studentIDs []string) ([]string, error)
	ClearCenters(ctx context.Context, batchID, programID string) (map[string]int, error)
}

type seatLedger interface {
	ListFresh(ctx context.Context, batchID, programID string) ([]models.CenterCapacity, error)
	Get(ctx context.Context, key models.CenterKey) (*models.CenterCapacity, error)
	Allocate(ctx context.Context, session *models.Session, key models.CenterKey, count int) (*models.CenterCapacity, error)
	Release(ctx context.Context, session *models.Session, key models.CenterKey, count int) (*models.CenterCapacity, error)
}

type sheetScheduler interface {
	Schedule(ctx context.Context, batchID, programID string) error
}

// CenterAssignmentService places a cycle's unassigned students into exam centers, filling
// centers in id order.
type CenterAssignmentService struct {
	roster  assignmentRoster
	ledger  seatLedger
	sheets  sheetScheduler
	audit   auditRecorder
	metrics *MetricsService
	logger  *zap.Logger
}

// NewCenterAssignmentService constructs the resolver. sheets may be nil.
func NewCenterAssignmentService(roster assignmentRoster, ledger seatLedger, sheets sheetScheduler, audit auditRecorder, metrics *MetricsService, logger *zap.Logger) *CenterAssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CenterAssignmentService{roster: roster, ledger: ledger, sheets: sheets, audit: audit, metrics: metrics, logger: logger}
}

// Resolve assigns every unassigned active student of the cycle, or none when the declared
// seats cannot hold them all.
func (s *CenterAssignmentService) Resolve(ctx context.Context, session *models.Session, batchID, programID string) (*models.AssignmentResult, error) {
	if batchID == "" || programID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "batch_id and program_id are required")
	}
	started := time.Now()

	students, err := s.roster.ListUnassigned(ctx, batchID, programID)
	if err != nil {
		return nil, storageError(err, "failed to load roster")
	}
	centers, err := s.ledger.ListFresh(ctx, batchID, programID)
	if err != nil {
		return nil, err
	}

	result := &models.AssignmentResult{
		BatchID:     batchID,
		ProgramID:   programID,
		Status:      models.AssignmentOK,
		Assignments: []models.Assignment{},
		Unplaced:    []string{},
	}

	total := 0
	for _, c := range centers {
		total += c.Remaining()
	}
	if total < len(students) {
		for _, st := range students[total:] {
			result.Unplaced = append(result.Unplaced, st.ID)
		}
		result.Status = models.AssignmentInsufficientCapacity
		result.Detail = fmt.Sprintf("%s: %d students, %d seats free", appErrors.ErrInsufficientCapacity.Message, len(students), total)
		s.finish(ctx, session, result, len(students), started)
		return result, nil
	}

	pool := make([]string, len(students))
	for i, st := range students {
		pool[i] = st.ID
	}

	for _, center := range centers {
		if len(pool) == 0 {
			break
		}
		want := min(center.Remaining(), len(pool))
		if want == 0 {
			continue
		}
		placed, claimed, err := s.fill(ctx, center.CenterKey, pool[:want])
		if err != nil {
			s.logger.Error("center assignment aborted", zap.String("batch_id", batchID), zap.String("program_id", programID),
				zap.String("center_id", center.CollegeID), zap.Int("assigned_before_failure", len(result.Assignments)), zap.Error(err))
			return nil, err
		}

		done := make(map[string]struct{}, len(placed)+len(claimed))
		for _, id := range placed {
			done[id] = struct{}{}
			result.Assignments = append(result.Assignments, models.Assignment{StudentID: id, CenterID: center.CollegeID})
		}
		for _, id := range claimed {
			done[id] = struct{}{}
		}
		rest := make([]string, 0, len(pool))
		for _, id := range pool[:want] {
			if _, ok := done[id]; !ok {
				rest = append(rest, id)
			}
		}
		pool = append(rest, pool[want:]...)
	}

	if len(pool) > 0 {
		result.Unplaced = pool
		result.Status = models.AssignmentCapacityExceeded
		result.Detail = fmt.Sprintf("%s: %d students could not be placed", appErrors.ErrCapacityExceeded.Message, len(pool))
	}
	s.finish(ctx, session, result, len(students), started)

	if len(result.Assignments) > 0 && s.sheets != nil {
		if err := s.sheets.Schedule(ctx, batchID, programID); err != nil {
			s.logger.Warn("failed to schedule assignment sheet", zap.String("batch_id", batchID), zap.String("program_id", programID), zap.Error(err))
		}
	}
	return result, nil
}

// fill allocates seats at one center and persists the placements. It returns the students placed
// here and the students another run placed in the meantime; the seats held for the latter are
// returned to the ledger.
func (s *CenterAssignmentService) fill(ctx context.Context, key models.CenterKey, ids []string) ([]string, []string, error) {
	count := len(ids)
	_, err := s.ledger.Allocate(ctx, nil, key, count)
	if errors.Is(err, appErrors.ErrCapacityExceeded) {
		fresh, getErr := s.ledger.Get(ctx, key)
		if getErr != nil {
			return nil, nil, getErr
		}
		count = min(fresh.Remaining(), count)
		s.logger.Warn("center filled concurrently", zap.String("center_id", key.CollegeID), zap.Int("requested", len(ids)), zap.Int("remaining", count))
		if count == 0 {
			return nil, nil, nil
		}
		_, err = s.ledger.Allocate(ctx, nil, key, count)
		if errors.Is(err, appErrors.ErrCapacityExceeded) {
			return nil, nil, nil
		}
	}
	if err != nil {
		return nil, nil, err
	}

	attempted := ids[:count]
	assigned, err := s.roster.AssignCenter(ctx, key.CollegeID, attempted)
	if err != nil {
		s.release(ctx, key, count)
		return nil, nil, storageError(err, "failed to persist center assignments")
	}
	if unused := count - len(assigned); unused > 0 {
		s.release(ctx, key, unused)
	}

	updated := make(map[string]struct{}, len(assigned))
	for _, id := range assigned {
		updated[id] = struct{}{}
	}
	var claimed []string
	for _, id := range attempted {
		if _, ok := updated[id]; !ok {
			claimed = append(claimed, id)
		}
	}
	if len(claimed) > 0 {
		s.logger.Info("students placed by a concurrent run", zap.String("center_id", key.CollegeID), zap.Strings("student_ids", claimed))
	}
	return assigned, claimed, nil
}

// Unassign clears the cycle's placements and returns their seats to the ledger. Students are
// cleared first, so a failed release leaves the ledger over-counted rather than over-booked.
func (s *CenterAssignmentService) Unassign(ctx context.Context, session *models.Session, batchID, programID string) (*models.UnassignResult, error) {
	if batchID == "" || programID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "batch_id and program_id are required")
	}
	released, err := s.roster.ClearCenters(ctx, batchID, programID)
	if err != nil {
		return nil, storageError(err, "failed to clear center assignments")
	}

	result := &models.UnassignResult{Released: map[string]int{}}
	centerIDs := make([]string, 0, len(released))
	for id := range released {
		centerIDs = append(centerIDs, id)
	}
	sort.Strings(centerIDs)

	var firstErr error
	for _, id := range centerIDs {
		n := released[id]
		result.Cleared += n
		key := models.CenterKey{CollegeID: id, BatchID: batchID, ProgramID: programID}
		if _, err := s.ledger.Release(ctx, nil, key, n); err != nil {
			s.logger.Error("failed to release seats", zap.String("center_id", id), zap.Int("count", n), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		result.Released[id] = n
	}

	recordAudit(ctx, s.audit, s.logger, session, models.AuditActionCenterUnassign, "assignment", batchID+":"+programID, result)
	if firstErr != nil {
		return result, firstErr
	}
	return result, nil
}

func (s *CenterAssignmentService) release(ctx context.Context, key models.CenterKey, count int) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if _, err := s.ledger.Release(releaseCtx, nil, key, count); err != nil {
		s.logger.Error("failed to return unused seats", zap.String("center_id", key.CollegeID), zap.Int("count", count), zap.Error(err))
	}
}

func (s *CenterAssignmentService) finish(ctx context.Context, session *models.Session, result *models.AssignmentResult, roster int, started time.Time) {
	s.metrics.RecordAssignmentRun(result.Status)
	recordAudit(ctx, s.audit, s.logger, session, models.AuditActionCenterAssign, "assignment", result.BatchID+":"+result.ProgramID, map[string]interface{}{
		"status":   result.Status,
		"assigned": len(result.Assignments),
		"unplaced": len(result.Unplaced),
	})
	s.logger.Info("center assignment finished",
		zap.String("batch_id", result.BatchID),
		zap.String("program_id", result.ProgramID),
		zap.String("status", string(result.Status)),
		zap.Int("roster", roster),
		zap.Int("assigned", len(result.Assignments)),
		zap.Int("unplaced", len(result.Unplaced)),
		zap.Duration("duration", time.Since(started)),
	)
}
