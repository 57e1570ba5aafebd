package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleeper struct {
	slept []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.slept = append(r.slept, d)
	return ctx.Err()
}

func TestRunStopsOnErrStop(t *testing.T) {
	sleeper := &recordingSleeper{}
	s := New(Options{StartupDelay: time.Second, Sleeper: sleeper}, zerolog.Nop())

	var ticks []int64
	err := s.Run(context.Background(), func(ctx context.Context, tick int64) (time.Duration, error) {
		ticks = append(ticks, tick)
		if tick == 3 {
			return 0, ErrStop
		}
		return time.Duration(tick) * time.Minute, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ticks)
	assert.Equal(t, []time.Duration{time.Second, time.Minute, 2 * time.Minute}, sleeper.slept)
}

func TestRunReturnsStepError(t *testing.T) {
	boom := errors.New("boom")
	s := New(Options{Sleeper: &recordingSleeper{}}, zerolog.Nop())

	err := s.Run(context.Background(), func(ctx context.Context, tick int64) (time.Duration, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestRunCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(Options{}, zerolog.Nop())

	calls := 0
	err := s.Run(ctx, func(ctx context.Context, tick int64) (time.Duration, error) {
		calls++
		cancel()
		return time.Hour, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestTimerSleeperReturnsAfterDelay(t *testing.T) {
	start := time.Now()
	require.NoError(t, TimerSleeper{}.Sleep(context.Background(), 10*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}
