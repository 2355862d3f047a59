// Package scheduler drives the ingestion pipeline on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CycleRunner is one full prune+fetch+commit cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) error
}

// Scheduler invokes the runner immediately and then on every interval tick.
// A failed or panicking cycle is logged and isolated; the next tick always
// runs. Cycles never overlap: a tick that fires while a cycle is still
// running waits for it to finish.
type Scheduler struct {
	runner       CycleRunner
	interval     time.Duration
	cycleTimeout time.Duration
	logger       *zap.Logger
}

// New builds a Scheduler.
func New(runner CycleRunner, interval, cycleTimeout time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		runner:       runner,
		interval:     interval,
		cycleTimeout: cycleTimeout,
		logger:       logger,
	}
}

// Run blocks until ctx finishes, executing cycles on the configured interval.
func (s *Scheduler) Run(ctx context.Context) error {
	s.runCycle(ctx)

	// Cycles must never overlap: a cycle that outlives the interval makes
	// the next tick wait its turn instead of double-fetching every source.
	cronLog := &cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.DelayIfStillRunning(cronLog)),
	)
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.runCycle(ctx)
	}); err != nil {
		return fmt.Errorf("schedule cycles: %w", err)
	}
	c.Start()

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	return nil
}

// runCycle executes one cycle under its deadline, absorbing errors and
// panics so the schedule keeps going.
func (s *Scheduler) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	cycleCtx := ctx
	if s.cycleTimeout > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, s.cycleTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("cycle panicked, next cycle will still run",
				zap.Any("panic", r),
			)
		}
	}()
	if err := s.runner.RunCycle(cycleCtx); err != nil {
		s.logger.Error("cycle failed, next cycle will still run", zap.Error(err))
	}
}

// cronLogger adapts zap to the cron.Logger interface.
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Sugar().Infow(msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
