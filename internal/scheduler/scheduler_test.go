package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingRunner struct {
	calls       atomic.Int32
	active      atomic.Int32
	maxActive   atomic.Int32
	cycleLength time.Duration
	err         error
	panics      bool
	sawDeadline atomic.Bool
}

func (r *countingRunner) RunCycle(ctx context.Context) error {
	r.calls.Add(1)
	active := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		max := r.maxActive.Load()
		if active <= max || r.maxActive.CompareAndSwap(max, active) {
			break
		}
	}
	if _, ok := ctx.Deadline(); ok {
		r.sawDeadline.Store(true)
	}
	if r.cycleLength > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(r.cycleLength):
		}
	}
	if r.panics {
		panic("cycle blew up")
	}
	return r.err
}

func runScheduler(t *testing.T, runner *countingRunner, interval time.Duration, wait time.Duration) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(runner, interval, time.Minute, zap.NewNop()).Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return runner.calls.Load() >= 1
	}, time.Second, 5*time.Millisecond, "first cycle should run immediately")

	time.Sleep(wait)
	cancel()
	require.NoError(t, <-done)
}

func TestRun_ImmediateThenInterval(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{}
	// Intervals below one second round up to one second, so the test runs
	// at that granularity.
	runScheduler(t, runner, time.Second, 2500*time.Millisecond)

	// One immediate run plus at least two ticks.
	assert.GreaterOrEqual(t, runner.calls.Load(), int32(3))
	assert.True(t, runner.sawDeadline.Load(), "cycles should run under a deadline")
}

func TestRun_FailingCycleDoesNotStopSchedule(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{err: errors.New("db down")}
	runScheduler(t, runner, time.Second, 1500*time.Millisecond)

	assert.GreaterOrEqual(t, runner.calls.Load(), int32(2))
}

func TestRun_PanickingCycleDoesNotStopSchedule(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{panics: true}
	runScheduler(t, runner, time.Second, 1500*time.Millisecond)

	assert.GreaterOrEqual(t, runner.calls.Load(), int32(2))
}

func TestRun_SlowCyclesNeverOverlap(t *testing.T) {
	t.Parallel()

	// Each cycle outlives the interval; later ticks must wait for the
	// running cycle instead of starting a concurrent one.
	runner := &countingRunner{cycleLength: 2500 * time.Millisecond}
	runScheduler(t, runner, time.Second, 5*time.Second)

	assert.GreaterOrEqual(t, runner.calls.Load(), int32(2))
	assert.Equal(t, int32(1), runner.maxActive.Load(), "cycles ran concurrently")
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(runner, time.Hour, time.Minute, zap.NewNop()).Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return runner.calls.Load() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	assert.Equal(t, int32(1), runner.calls.Load())
}
