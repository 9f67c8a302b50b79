package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalSchedulerNeverOverlaps(t *testing.T) {
	t.Parallel()

	s := NewIntervalScheduler(5 * time.Millisecond)
	var running, maxRunning, runs atomic.Int32

	job := func(context.Context, time.Time) {
		n := running.Add(1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		running.Add(-1)
		runs.Add(1)
	}

	require.NoError(t, s.Start(context.Background(), job))
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	assert.Equal(t, int32(1), maxRunning.Load())
}

func TestIntervalSchedulerStopHaltsTicks(t *testing.T) {
	t.Parallel()

	s := NewIntervalScheduler(time.Millisecond)
	var runs atomic.Int32
	require.NoError(t, s.Start(context.Background(), func(context.Context, time.Time) { runs.Add(1) }))
	require.Eventually(t, func() bool { return runs.Load() > 0 }, time.Second, time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))
	after := runs.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, after, runs.Load())

	assert.NoError(t, s.Stop(context.Background()), "second stop is a no-op")
}

func TestIntervalSchedulerRejectsBadInterval(t *testing.T) {
	t.Parallel()

	err := NewIntervalScheduler(0).Start(context.Background(), func(context.Context, time.Time) {})
	assert.Error(t, err)
}
