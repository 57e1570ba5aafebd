// Package reconcile compares chain block time against oracle time.
package reconcile

import "chain-watchdog/internal/probe"

// Status classifies a reconciliation.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
)

// Degraded reasons.
const (
	ReasonMissingTimestampEpoch = "missing_timestamp_epoch"
	ReasonOracleTimeSkew        = "oracle_time_skew"
)

// Config bounds the acceptable skew. A nil MaxTimeSkewSec is treated as missing.
type Config struct {
	MaxTimeSkewSec *int64
}

// Result is the outcome of comparing one chain/oracle pair.
type Result struct {
	ChainEpoch  *int64 `json:"chain_timestamp_epoch"`
	OracleEpoch *int64 `json:"oracle_timestamp_epoch"`
	DeltaSec    *int64 `json:"delta_sec"`
	Status      Status `json:"status"`
	Reason      string `json:"reason,omitempty"`
}

// Reconcile classifies the chain/oracle timestamp pair. It performs no I/O.
func Reconcile(chain probe.OrientationSnapshot, oracle probe.OracleSnapshot, cfg Config) Result {
	return Epochs(chain.TimestampEpoch, oracle.TimestampEpoch, cfg)
}

// Epochs classifies raw epoch values.
func Epochs(chainEpoch, oracleEpoch *int64, cfg Config) Result {
	res := Result{
		ChainEpoch:  chainEpoch,
		OracleEpoch: oracleEpoch,
	}
	if cfg.MaxTimeSkewSec == nil || chainEpoch == nil || oracleEpoch == nil {
		res.Status = StatusDegraded
		res.Reason = ReasonMissingTimestampEpoch
		return res
	}

	delta := *oracleEpoch - *chainEpoch
	if delta < 0 {
		delta = -delta
	}
	res.DeltaSec = &delta
	if delta <= *cfg.MaxTimeSkewSec {
		res.Status = StatusOK
		return res
	}
	res.Status = StatusDegraded
	res.Reason = ReasonOracleTimeSkew
	return res
}
