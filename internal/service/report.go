package service

import (
	"time"

	"chain-watchdog/internal/probe"
	"chain-watchdog/internal/reconcile"
)

// Tick outcomes as recorded in metrics and history.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePaused  = "paused"
)

// ChainResult is what one allowed chain produced during a tick.
type ChainResult struct {
	Name           string                     `json:"name"`
	Reachability   probe.ChainSnapshot        `json:"reachability"`
	Orientation    *probe.OrientationSnapshot `json:"orientation,omitempty"`
	Reconciliation *reconcile.Result          `json:"reconciliation,omitempty"`
}

// TickReport aggregates one evaluation.
type TickReport struct {
	Tick          int64                `json:"tick"`
	ObservedAt    time.Time            `json:"observed_at"`
	Success       bool                 `json:"success"`
	FailureReason string               `json:"failure_reason,omitempty"`
	Chains        []ChainResult        `json:"chains"`
	Oracle        probe.OracleSnapshot `json:"oracle"`
	Warnings      []string             `json:"warnings,omitempty"`
}

func (r *TickReport) fail(reason string) {
	if r.Success {
		r.Success = false
		r.FailureReason = reason
	}
}

func (r *TickReport) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// FirstSkew returns the first reconciliation that carried a delta, if any.
func (r *TickReport) FirstSkew() *reconcile.Result {
	var first *reconcile.Result
	for _, chain := range r.Chains {
		if chain.Reconciliation == nil {
			continue
		}
		if first == nil {
			first = chain.Reconciliation
		}
		if chain.Reconciliation.DeltaSec != nil {
			return chain.Reconciliation
		}
	}
	return first
}
