// Package limiter bounds how many uploads are processed at once.
package limiter

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTooManyUploads is returned when no slot frees up within the configured wait.
var ErrTooManyUploads = errors.New("too many concurrent uploads, please try again later")

const (
	DefaultMaxConcurrent = 5
	DefaultMaxWait       = 30 * time.Second
)

// UploadLimiter is a weighted semaphore with a bounded wait.
type UploadLimiter struct {
	sem     *semaphore.Weighted
	max     int64
	maxWait time.Duration
	active  atomic.Int64
}

// Status is a point-in-time view of the limiter.
type Status struct {
	Active        int64 `json:"active"`
	MaxConcurrent int64 `json:"max_concurrent"`
}

func New(maxConcurrent int, maxWait time.Duration) *UploadLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &UploadLimiter{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		max:     int64(maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire waits up to maxWait for a slot. A cancelled ctx returns ctx.Err(); an expired wait
// returns ErrTooManyUploads. Callers must Release after a nil return.
func (l *UploadLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyUploads
	}
	l.active.Add(1)
	return nil
}

func (l *UploadLimiter) Release() {
	l.active.Add(-1)
	l.sem.Release(1)
}

func (l *UploadLimiter) Status() Status {
	return Status{Active: l.active.Load(), MaxConcurrent: l.max}
}

// WaitForDrain blocks until every slot is free or ctx ends.
func (l *UploadLimiter) WaitForDrain(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, l.max); err != nil {
		return err
	}
	l.sem.Release(l.max)
	return nil
}
