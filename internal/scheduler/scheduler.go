// Package scheduler drives periodic fetch cycles through one of two
// backends: a durable Redis-backed queue, or an in-process timer fallback.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// CycleFunc executes one full fetch-and-evaluate cycle.
type CycleFunc func(ctx context.Context) error

// Backend runs cycles on a fixed interval until the context is cancelled.
// Implementations guarantee cycles never overlap.
type Backend interface {
	Name() string
	Run(ctx context.Context, cycle CycleFunc) error
}

// TimerOptions tune the in-process backend.
type TimerOptions struct {
	Interval     time.Duration
	StartupDelay time.Duration
}

// Timer is the in-process fallback backend: a single goroutine running one
// cycle per interval. Single-flight is inherent in the loop.
type Timer struct {
	opts   TimerOptions
	logger zerolog.Logger
}

// NewTimer constructs the timer backend.
func NewTimer(opts TimerOptions, logger zerolog.Logger) *Timer {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Timer{opts: opts, logger: logger.With().Str("component", "scheduler_timer").Logger()}
}

// Name identifies the backend in logs.
func (t *Timer) Name() string { return "timer" }

// Run blocks, executing one cycle immediately and then one per interval
// until ctx is cancelled. Cycle errors are logged, never fatal.
func (t *Timer) Run(ctx context.Context, cycle CycleFunc) error {
	if t.opts.StartupDelay > 0 {
		timer := time.NewTimer(t.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	t.runCycle(ctx, cycle)

	ticker := time.NewTicker(t.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.runCycle(ctx, cycle)
		}
	}
}

func (t *Timer) runCycle(ctx context.Context, cycle CycleFunc) {
	t.logger.Info().Msg("executing scheduled cycle")
	if err := cycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
		t.logger.Error().Err(err).Msg("cycle execution failed")
	}
}
