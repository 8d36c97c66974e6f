package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/result-distribution-api/internal/models"
	"github.com/noah-isme/result-distribution-api/internal/repository"
	appErrors "github.com/noah-isme/result-distribution-api/pkg/errors"
)

const centersCachePrefix = "centers"

type capacityStore interface {
	Upsert(ctx context.Context, key models.CenterKey, capacity int) (*models.CenterCapacity, error)
	Allocate(ctx context.Context, key models.CenterKey, count int) (*models.CenterCapacity, error)
	Release(ctx context.Context, key models.CenterKey, count int) (*models.CenterCapacity, error)
	Get(ctx context.Context, key models.CenterKey) (*models.CenterCapacity, error)
	ListByCycle(ctx context.Context, batchID, programID string) ([]models.CenterCapacity, error)
}

// CapacityLedger tracks declared and allocated seats per exam center and cycle. Every
// mutation is delegated to a single guarded statement in the store.
type CapacityLedger struct {
	store    capacityStore
	cache    *CacheService
	audit    auditRecorder
	metrics  *MetricsService
	validate *validator.Validate
	logger   *zap.Logger
	ttl      time.Duration
}

// NewCapacityLedger wires the ledger. cache and metrics may be nil.
func NewCapacityLedger(store capacityStore, cache *CacheService, audit auditRecorder, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, ttl time.Duration) *CapacityLedger {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CapacityLedger{store: store, cache: cache, audit: audit, metrics: metrics, validate: validate, logger: logger, ttl: ttl}
}

// DeclareCapacity sets the seats a center offers for a cycle and marks the college as a center.
// Shrinking below the seats already allocated fails with ErrInvalidCapacity and changes nothing.
func (l *CapacityLedger) DeclareCapacity(ctx context.Context, session *models.Session, key models.CenterKey, capacity int) (*models.CenterCapacity, error) {
	if err := l.validate.Struct(key); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "center_id, batch_id and program_id are required")
	}
	if capacity < 0 {
		l.metrics.RecordLedgerOperation("declare", "invalid")
		return nil, appErrors.Clone(appErrors.ErrInvalidCapacity, "capacity must not be negative")
	}

	row, err := l.store.Upsert(ctx, key, capacity)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrConditionNotMet), errors.Is(err, repository.ErrCapacityInvariant):
			l.metrics.RecordLedgerOperation("declare", "invalid")
			return nil, appErrors.Clone(appErrors.ErrInvalidCapacity, fmt.Sprintf("capacity %d is below the seats already allocated", capacity))
		case errors.Is(err, repository.ErrMissingReference):
			l.metrics.RecordLedgerOperation("declare", "not_found")
			return nil, appErrors.Clone(appErrors.ErrNotFound, "college, batch or program not found")
		default:
			l.metrics.RecordLedgerOperation("declare", "error")
			return nil, storageError(err, "failed to declare capacity")
		}
	}
	l.invalidate(ctx, key)
	l.metrics.RecordLedgerOperation("declare", "ok")
	recordAudit(ctx, l.audit, l.logger, session, models.AuditActionCapacityDeclare, "exam_center", key.CollegeID, map[string]interface{}{
		"batch_id":   key.BatchID,
		"program_id": key.ProgramID,
		"capacity":   capacity,
	})
	return row, nil
}

// Allocate reserves count seats. When they do not fit nothing changes and ErrCapacityExceeded
// is returned.
func (l *CapacityLedger) Allocate(ctx context.Context, session *models.Session, key models.CenterKey, count int) (*models.CenterCapacity, error) {
	if err := l.checkSeatRequest(key, count); err != nil {
		return nil, err
	}
	row, err := l.store.Allocate(ctx, key, count)
	if err != nil {
		if errors.Is(err, repository.ErrConditionNotMet) || errors.Is(err, repository.ErrCapacityInvariant) {
			return nil, l.explainRejectedAllocation(ctx, key, count)
		}
		l.metrics.RecordLedgerOperation("allocate", "error")
		return nil, storageError(err, "failed to allocate seats")
	}
	l.invalidate(ctx, key)
	l.metrics.RecordLedgerOperation("allocate", "ok")
	if session != nil {
		recordAudit(ctx, l.audit, l.logger, session, models.AuditActionCenterAllocate, "exam_center", key.CollegeID, seatPayload(key, count))
	}
	return row, nil
}

// Release returns count seats; the allocated count never drops below zero.
func (l *CapacityLedger) Release(ctx context.Context, session *models.Session, key models.CenterKey, count int) (*models.CenterCapacity, error) {
	if err := l.checkSeatRequest(key, count); err != nil {
		return nil, err
	}
	row, err := l.store.Release(ctx, key, count)
	if err != nil {
		if errors.Is(err, repository.ErrConditionNotMet) {
			l.metrics.RecordLedgerOperation("release", "not_found")
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam center not declared for this cycle")
		}
		l.metrics.RecordLedgerOperation("release", "error")
		return nil, storageError(err, "failed to release seats")
	}
	l.invalidate(ctx, key)
	l.metrics.RecordLedgerOperation("release", "ok")
	if session != nil {
		recordAudit(ctx, l.audit, l.logger, session, models.AuditActionCenterRelease, "exam_center", key.CollegeID, seatPayload(key, count))
	}
	return row, nil
}

// Get reads one ledger row straight from storage.
func (l *CapacityLedger) Get(ctx context.Context, key models.CenterKey) (*models.CenterCapacity, error) {
	row, err := l.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam center not declared for this cycle")
		}
		return nil, storageError(err, "failed to load exam center")
	}
	return row, nil
}

// List returns the cycle's ledger rows ordered by center id, served from cache when possible.
func (l *CapacityLedger) List(ctx context.Context, batchID, programID string) ([]models.CenterCapacity, error) {
	if batchID == "" || programID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "batch_id and program_id are required")
	}
	cacheKey := cycleCacheKey(batchID, programID)
	var cached []models.CenterCapacity
	if l.cache.Get(ctx, cacheKey, &cached) {
		return cached, nil
	}

	rows, err := l.ListFresh(ctx, batchID, programID)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []models.CenterCapacity{}
	}
	l.cache.Set(ctx, cacheKey, rows, l.ttl)
	return rows, nil
}

// ListFresh reads the cycle's ledger rows bypassing the cache.
func (l *CapacityLedger) ListFresh(ctx context.Context, batchID, programID string) ([]models.CenterCapacity, error) {
	rows, err := l.store.ListByCycle(ctx, batchID, programID)
	if err != nil {
		return nil, storageError(err, "failed to list exam centers")
	}
	return rows, nil
}

func (l *CapacityLedger) checkSeatRequest(key models.CenterKey, count int) error {
	if err := l.validate.Struct(key); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "center_id, batch_id and program_id are required")
	}
	if count <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, "count must be positive")
	}
	return nil
}

// explainRejectedAllocation tells a missing ledger row apart from a full one.
func (l *CapacityLedger) explainRejectedAllocation(ctx context.Context, key models.CenterKey, count int) error {
	row, err := l.store.Get(ctx, key)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		l.metrics.RecordLedgerOperation("allocate", "not_found")
		return appErrors.Clone(appErrors.ErrNotFound, "exam center not declared for this cycle")
	case err != nil:
		l.metrics.RecordLedgerOperation("allocate", "error")
		return storageError(err, "failed to load exam center")
	}
	l.metrics.RecordLedgerOperation("allocate", "exceeded")
	return appErrors.Clone(appErrors.ErrCapacityExceeded,
		fmt.Sprintf("center %s has %d of %d seats free, %d requested", key.CollegeID, row.Remaining(), row.Capacity, count))
}

func (l *CapacityLedger) invalidate(ctx context.Context, key models.CenterKey) {
	l.cache.Invalidate(ctx, cycleCacheKey(key.BatchID, key.ProgramID))
}

func cycleCacheKey(batchID, programID string) string {
	return fmt.Sprintf("%s:%s:%s", centersCachePrefix, batchID, programID)
}

func seatPayload(key models.CenterKey, count int) map[string]interface{} {
	return map[string]interface{}{
		"batch_id":   key.BatchID,
		"program_id": key.ProgramID,
		"count":      count,
	}
}
