package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	t := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestThresholds(t *testing.T) {
	h := New(3, 5, WithClock(fixedClock()))

	for i := 0; i < 3; i++ {
		h.RecordFailure("rpc down")
	}
	assert.True(t, h.ShouldPause())
	assert.False(t, h.ShouldHalt())

	h.RecordFailure("rpc down")
	h.RecordFailure("rpc down")
	assert.True(t, h.ShouldPause())
	assert.True(t, h.ShouldHalt())

	h.RecordSuccess()
	assert.Equal(t, 0, h.ConsecutiveFailures())
	assert.False(t, h.ShouldPause())
	assert.False(t, h.ShouldHalt())
}

func TestRecordFailureDoesNotPause(t *testing.T) {
	h := New(1, 2)
	h.RecordFailure("boom")

	snap := h.Snapshot()
	assert.False(t, snap.Paused)
	assert.False(t, snap.Halted)
	assert.False(t, snap.Healthy)
	assert.Equal(t, "boom", snap.LastError)
	assert.Equal(t, StatusDegraded, snap.Status)
}

func TestSuccessClearsPause(t *testing.T) {
	h := New(1, 3)
	h.RecordFailure("boom")
	require.True(t, h.ShouldPause())
	h.EnterPause()
	require.Equal(t, StatusPaused, h.Status())

	h.RecordSuccess()
	snap := h.Snapshot()
	assert.False(t, snap.Paused)
	assert.True(t, snap.Healthy)
	assert.Empty(t, snap.LastError)
	assert.Equal(t, StatusHealthy, snap.Status)
}

func TestEnterHaltClearsPause(t *testing.T) {
	h := New(1, 1)
	h.EnterPause()
	h.EnterHalt()
	assert.False(t, h.Paused())
	assert.True(t, h.Halted())
	assert.Equal(t, StatusHalted, h.Status())

	fresh := New(1, 1)
	fresh.EnterHalt()
	assert.False(t, fresh.Paused())
}

func TestSnapshotIdempotent(t *testing.T) {
	h := New(2, 4, WithClock(fixedClock()))
	h.RecordFailure("x")
	h.RecordWarning("skew")

	first := h.Snapshot()
	second := h.Snapshot()
	assert.Equal(t, first, second)
	assert.Equal(t, 1, first.TotalWarnings)
	assert.Equal(t, "skew", first.LastWarning)
	assert.NotNil(t, first.LastFailureAt)
	assert.Nil(t, first.LastSuccessAt)
}

func TestFailureClearsWarning(t *testing.T) {
	h := New(2, 4)
	h.RecordWarning("skew")
	h.RecordFailure("down")

	snap := h.Snapshot()
	assert.Empty(t, snap.LastWarning)
	assert.Equal(t, 1, snap.TotalWarnings)
	assert.Equal(t, 1, snap.TotalChecks)
}
