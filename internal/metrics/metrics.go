package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"chain-watchdog/internal/health"
)

var (
	// RPCCallsTotal counts JSON-RPC probe calls by method and outcome.
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchdog_rpc_calls_total",
			Help: "Total number of JSON-RPC probe calls",
		},
		[]string{"method", "status"},
	)

	// RPCLatency tracks JSON-RPC probe latency.
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watchdog_rpc_latency_seconds",
			Help:    "JSON-RPC probe latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// OracleRequestsTotal counts oracle snapshot requests by outcome.
	OracleRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchdog_oracle_requests_total",
			Help: "Total number of oracle snapshot requests",
		},
		[]string{"provider", "status"},
	)

	// OracleLatency tracks oracle request latency.
	OracleLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "watchdog_oracle_latency_seconds",
			Help:    "Oracle request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// TicksTotal counts evaluation loop ticks by outcome.
	TicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchdog_ticks_total",
			Help: "Total number of evaluation ticks",
		},
		[]string{"outcome"},
	)

	// ChainReachable is 1 when the chain's primary endpoint answered.
	ChainReachable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watchdog_chain_reachable",
			Help: "Whether the chain RPC endpoint answered the last probe",
		},
		[]string{"chain"},
	)

	// ChainBlockHeight tracks the latest observed block height.
	ChainBlockHeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watchdog_chain_block_height",
			Help: "Latest block height observed per chain",
		},
		[]string{"chain"},
	)

	// ChainGasPrice tracks the latest observed gas price in the smallest unit.
	ChainGasPrice = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watchdog_chain_gas_price",
			Help: "Latest gas price observed per chain",
		},
		[]string{"chain"},
	)

	// ReconcileSkew tracks the absolute chain/oracle time delta.
	ReconcileSkew = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watchdog_reconcile_skew_seconds",
			Help: "Absolute delta between chain block time and oracle time",
		},
		[]string{"chain"},
	)

	// ReconcileDegradedTotal counts degraded reconciliations by reason.
	ReconcileDegradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchdog_reconcile_degraded_total",
			Help: "Total number of degraded reconciliations",
		},
		[]string{"chain", "reason"},
	)

	// HealthConsecutiveFailures mirrors the runtime failure streak.
	HealthConsecutiveFailures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watchdog_health_consecutive_failures",
			Help: "Current number of consecutive failed ticks",
		},
	)

	// HealthState is 1 for the current runtime state and 0 otherwise.
	HealthState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watchdog_health_state",
			Help: "Current runtime health state",
		},
		[]string{"state"},
	)
)

var allStates = []health.Status{
	health.StatusHealthy,
	health.StatusDegraded,
	health.StatusPaused,
	health.StatusHalted,
}

// ObserveHealth publishes a health snapshot to the gauges.
func ObserveHealth(snap health.Snapshot) {
	HealthConsecutiveFailures.Set(float64(snap.ConsecutiveFailures))
	for _, state := range allStates {
		value := 0.0
		if state == snap.Status {
			value = 1
		}
		HealthState.WithLabelValues(string(state)).Set(value)
	}
}

// BoolGauge converts a flag into a gauge value.
func BoolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
