package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ErrStop is returned by a StepFunc to end the loop cleanly.
var ErrStop = errors.New("scheduler: stop")

// StepFunc runs one tick and returns how long to wait before the next one.
type StepFunc func(ctx context.Context, tick int64) (time.Duration, error)

// Sleeper blocks for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// TimerSleeper sleeps on a real timer.
type TimerSleeper struct{}

// Sleep implements Sleeper.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Options tune scheduler behaviour.
type Options struct {
	StartupDelay time.Duration
	Sleeper      Sleeper
}

// Scheduler drives the heartbeat loop. Sleeping is its only suspension point.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Sleeper == nil {
		opts.Sleeper = TimerSleeper{}
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run invokes step with an increasing tick counter until step returns an
// error or ctx is cancelled. ErrStop ends the loop with a nil error.
func (s *Scheduler) Run(ctx context.Context, step StepFunc) error {
	if s.opts.StartupDelay > 0 {
		s.logger.Debug().Dur("delay", s.opts.StartupDelay).Msg("waiting before first tick")
		if err := s.opts.Sleeper.Sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	for tick := int64(1); ; tick++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		delay, err := step(ctx, tick)
		if errors.Is(err, ErrStop) {
			return nil
		}
		if err != nil {
			return err
		}

		s.logger.Debug().Int64("tick", tick).Dur("delay", delay).Msg("sleeping until next tick")
		if err := s.opts.Sleeper.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}
