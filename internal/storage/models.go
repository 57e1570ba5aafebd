package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TickRecord is one persisted evaluation tick.
type TickRecord struct {
	ID                  int64
	RunID               string
	Tick                int64
	ObservedAt          time.Time
	Outcome             string
	FailureReason       *string
	HealthStatus        string
	ConsecutiveFailures int
	OraclePrice         decimal.NullDecimal
	OracleLatencyMs     *int64
	SkewSec             *int64
	ReconcileStatus     *string
	Chains              json.RawMessage
	CreatedAt           time.Time
}
