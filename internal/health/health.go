package health

import (
	"sync"
	"time"
)

// Status is the derived runtime state.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusPaused   Status = "paused"
	StatusHalted   Status = "halted"
)

// Snapshot is a point-in-time copy of the runtime health counters.
type Snapshot struct {
	Status              Status     `json:"status"`
	Healthy             bool       `json:"healthy"`
	Paused              bool       `json:"paused"`
	Halted              bool       `json:"halted"`
	TotalChecks         int        `json:"total_checks"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	TotalWarnings       int        `json:"total_warnings"`
	LastError           string     `json:"last_error,omitempty"`
	LastWarning         string     `json:"last_warning,omitempty"`
	StartTime           time.Time  `json:"start_time"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	PauseAfterFailures  int        `json:"pause_after_failures"`
	HaltAfterFailures   int        `json:"halt_after_failures"`
}

// Option customises a RuntimeHealth.
type Option func(*RuntimeHealth)

// WithClock overrides the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *RuntimeHealth) {
		h.now = now
	}
}

// RuntimeHealth converts per-tick outcomes into pause and halt decisions.
//
// The evaluation loop is the only writer. Readers such as the status server
// take snapshots concurrently, hence the lock.
type RuntimeHealth struct {
	mu  sync.RWMutex
	now func() time.Time

	startTime     time.Time
	lastSuccessAt time.Time
	lastFailureAt time.Time

	totalChecks         int
	consecutiveFailures int
	totalWarnings       int

	healthy bool
	paused  bool
	halted  bool

	lastError   string
	lastWarning string

	pauseAfterFailures int
	haltAfterFailures  int
}

// New builds a healthy RuntimeHealth with the given thresholds.
func New(pauseAfterFailures, haltAfterFailures int, opts ...Option) *RuntimeHealth {
	h := &RuntimeHealth{
		now:                time.Now,
		healthy:            true,
		pauseAfterFailures: pauseAfterFailures,
		haltAfterFailures:  haltAfterFailures,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.startTime = h.now()
	return h
}

// RecordSuccess marks an evaluation cycle as successful and clears any pause.
func (h *RuntimeHealth) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.totalChecks++
	h.lastSuccessAt = h.now()
	h.consecutiveFailures = 0
	h.lastError = ""
	h.healthy = true
	if h.paused {
		h.clearPauseLocked()
	}
}

// RecordFailure marks an evaluation cycle as failed. Pause and halt are left
// to the caller via ShouldPause and ShouldHalt.
func (h *RuntimeHealth) RecordFailure(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.totalChecks++
	h.lastFailureAt = h.now()
	h.consecutiveFailures++
	h.lastError = reason
	h.healthy = false
	h.lastWarning = ""
}

// RecordWarning notes a non-fatal issue.
func (h *RuntimeHealth) RecordWarning(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.totalWarnings++
	h.lastWarning = msg
}

// ShouldPause reports whether consecutive failures reached the pause threshold.
func (h *RuntimeHealth) ShouldPause() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.consecutiveFailures >= h.pauseAfterFailures
}

// ShouldHalt reports whether consecutive failures reached the halt threshold.
// Callers check this before ShouldPause.
func (h *RuntimeHealth) ShouldHalt() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.consecutiveFailures >= h.haltAfterFailures
}

// EnterPause moves the runtime into the paused state.
func (h *RuntimeHealth) EnterPause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.paused = true
	h.healthy = false
}

// ClearPause leaves the paused state and marks the runtime healthy.
func (h *RuntimeHealth) ClearPause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clearPauseLocked()
}

func (h *RuntimeHealth) clearPauseLocked() {
	h.paused = false
	h.healthy = true
}

// EnterHalt moves the runtime into the terminal halted state. Halt supersedes pause.
func (h *RuntimeHealth) EnterHalt() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.halted = true
	h.healthy = false
	h.paused = false
}

// Paused reports whether the runtime is paused.
func (h *RuntimeHealth) Paused() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.paused
}

// Halted reports whether the runtime is halted.
func (h *RuntimeHealth) Halted() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.halted
}

// ConsecutiveFailures returns the current failure streak.
func (h *RuntimeHealth) ConsecutiveFailures() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.consecutiveFailures
}

// Status derives the runtime state from the flags.
func (h *RuntimeHealth) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.statusLocked()
}

func (h *RuntimeHealth) statusLocked() Status {
	switch {
	case h.halted:
		return StatusHalted
	case h.paused:
		return StatusPaused
	case !h.healthy:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Uptime returns the time elapsed since the state was created.
func (h *RuntimeHealth) Uptime() time.Duration {
	return h.now().Sub(h.startTime)
}

// Snapshot returns a copy of the current state.
func (h *RuntimeHealth) Snapshot() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return Snapshot{
		Status:              h.statusLocked(),
		Healthy:             h.healthy,
		Paused:              h.paused,
		Halted:              h.halted,
		TotalChecks:         h.totalChecks,
		ConsecutiveFailures: h.consecutiveFailures,
		TotalWarnings:       h.totalWarnings,
		LastError:           h.lastError,
		LastWarning:         h.lastWarning,
		StartTime:           h.startTime,
		LastSuccessAt:       optionalTime(h.lastSuccessAt),
		LastFailureAt:       optionalTime(h.lastFailureAt),
		PauseAfterFailures:  h.pauseAfterFailures,
		HaltAfterFailures:   h.haltAfterFailures,
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
