package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireTimesOutWhenFull(t *testing.T) {
	l := New(1, 20*time.Millisecond)
	require.NoError(t, l.Acquire(context.Background()))
	defer l.Release()

	err := l.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrTooManyUploads)
	assert.Equal(t, int64(1), l.Status().Active)
}

func TestAcquireHonoursCancellation(t *testing.T) {
	l := New(1, time.Second)
	require.NoError(t, l.Acquire(context.Background()))
	defer l.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Acquire(ctx), context.Canceled)
}

func TestReleaseFreesSlot(t *testing.T) {
	l := New(1, 50*time.Millisecond)
	require.NoError(t, l.Acquire(context.Background()))
	l.Release()
	require.NoError(t, l.Acquire(context.Background()))
	l.Release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, l.WaitForDrain(ctx))
	assert.Equal(t, int64(0), l.Status().Active)
}
