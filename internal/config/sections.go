package config

import (
	"fmt"
	"strings"
	"time"
)

// Endpoint selection policies accepted by runtime.endpoint_policy.
const (
	EndpointPolicyFirst      = "first"
	EndpointPolicyRoundRobin = "round_robin"
)

// DefaultRPCTimeout applies when a network omits rpc_timeout_sec.
const DefaultRPCTimeout = 5 * time.Second

// RuntimeConfig governs the evaluation loop.
type RuntimeConfig struct {
	Mode                   string   `mapstructure:"mode"`
	ExecutionEnabled       bool     `mapstructure:"execution_enabled"`
	AllowedChains          []string `mapstructure:"allowed_chains"`
	MinExpectedGainPct     float64  `mapstructure:"min_expected_gain_pct"`
	RespectFees            bool     `mapstructure:"respect_fees"`
	AllowDiscovery         bool     `mapstructure:"allow_discovery"`
	AllowStrategySwitching bool     `mapstructure:"allow_strategy_switching"`
	StrictValidation       bool     `mapstructure:"strict_validation"`
	EvaluationIntervalSec  int      `mapstructure:"evaluation_interval_sec"`
	MaxRuntimeSec          int      `mapstructure:"max_runtime_sec"`
	PauseAfterFailures     int      `mapstructure:"pause_after_failures"`
	HaltAfterFailures      int      `mapstructure:"halt_after_failures"`
	PauseRecheckTicks      int      `mapstructure:"pause_recheck_ticks"`
	EndpointPolicy         string   `mapstructure:"endpoint_policy"`
	StartupDelaySec        int      `mapstructure:"startup_delay_sec"`
}

// EvaluationInterval is the sleep between healthy ticks.
func (r RuntimeConfig) EvaluationInterval() time.Duration {
	return time.Duration(r.EvaluationIntervalSec) * time.Second
}

// MaxRuntime bounds the run; zero means unbounded.
func (r RuntimeConfig) MaxRuntime() time.Duration {
	return time.Duration(r.MaxRuntimeSec) * time.Second
}

// StartupDelay is waited once before the first tick.
func (r RuntimeConfig) StartupDelay() time.Duration {
	return time.Duration(r.StartupDelaySec) * time.Second
}

// ChainConfig describes one chain and its networks.
type ChainConfig struct {
	Description    string                   `mapstructure:"description"`
	DefaultNetwork string                   `mapstructure:"default_network"`
	Networks       map[string]NetworkConfig `mapstructure:"networks"`
}

// Network resolves a network by name, ignoring case.
func (c ChainConfig) Network(name string) (NetworkConfig, bool) {
	if name == "" {
		return NetworkConfig{}, false
	}
	if network, ok := c.Networks[name]; ok {
		return network, true
	}
	network, ok := c.Networks[strings.ToLower(name)]
	return network, ok
}

// NetworkConfig describes how to reach one network of a chain. Exactly one of
// ChainID or Cluster identifies it.
type NetworkConfig struct {
	Description   string   `mapstructure:"description"`
	RPCEndpoints  []string `mapstructure:"rpc_endpoints"`
	RPCTimeoutSec int      `mapstructure:"rpc_timeout_sec"`
	ChainID       *int64   `mapstructure:"chain_id"`
	Cluster       *string  `mapstructure:"cluster"`
}

// RPCTimeout returns the per-call timeout for this network.
func (n NetworkConfig) RPCTimeout() time.Duration {
	if n.RPCTimeoutSec <= 0 {
		return DefaultRPCTimeout
	}
	return time.Duration(n.RPCTimeoutSec) * time.Second
}

// Identity returns the tagged network identity, or nil when neither or both
// identifiers are configured.
func (n NetworkConfig) Identity() NetworkIdentity {
	switch {
	case n.ChainID != nil && n.Cluster == nil:
		return ChainID(*n.ChainID)
	case n.Cluster != nil && n.ChainID == nil:
		return Cluster(*n.Cluster)
	default:
		return nil
	}
}

// NetworkIdentity is either a ChainID (EVM) or a Cluster (non-EVM).
type NetworkIdentity interface {
	fmt.Stringer
	networkIdentity()
}

// ChainID identifies an EVM-style network.
type ChainID int64

func (ChainID) networkIdentity() {}

func (c ChainID) String() string { return fmt.Sprintf("chain_id=%d", int64(c)) }

// Cluster identifies a non-EVM network.
type Cluster string

func (Cluster) networkIdentity() {}

func (c Cluster) String() string { return "cluster=" + string(c) }

// OracleConfig describes the price oracle endpoint.
type OracleConfig struct {
	Provider    string `mapstructure:"provider"`
	EndpointURL string `mapstructure:"endpoint_url"`
	AssetPair   string `mapstructure:"asset_pair"`
	TimeoutSec  int    `mapstructure:"timeout_sec"`
	UserAgent   string `mapstructure:"user_agent"`
}

// Timeout returns the HTTP timeout for oracle requests.
func (o OracleConfig) Timeout() time.Duration {
	if o.TimeoutSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(o.TimeoutSec) * time.Second
}

// ReconciliationConfig bounds acceptable chain/oracle clock skew.
type ReconciliationConfig struct {
	MaxTimeSkewSec *int64 `mapstructure:"max_time_skew_sec"`
}

// RiskConfig holds risk limits that must be declared before any run.
type RiskConfig struct {
	MaxDrawdownPct         float64 `mapstructure:"max_drawdown_pct"`
	DailyLossPct           float64 `mapstructure:"daily_loss_pct"`
	MaxTradeLossPct        float64 `mapstructure:"max_trade_loss_pct"`
	MaxPositionPct         float64 `mapstructure:"max_position_pct"`
	MaxConcurrentPositions int     `mapstructure:"max_concurrent_positions"`
}

// StrategiesConfig holds the declared strategy envelope.
type StrategiesConfig struct {
	AllowedClasses  []string          `mapstructure:"allowed_classes"`
	AllowedHorizons []string          `mapstructure:"allowed_horizons"`
	Switching       SwitchingConfig   `mapstructure:"switching"`
	DataSources     DataSourcesConfig `mapstructure:"data_sources"`
}

// SwitchingConfig limits strategy switching.
type SwitchingConfig struct {
	MinDwellTimeSec   int `mapstructure:"min_dwell_time_sec"`
	MaxSwitchesPerDay int `mapstructure:"max_switches_per_day"`
}

// DataSourcesConfig lists which data sources strategies may consume.
type DataSourcesConfig struct {
	AllowPriceData         bool `mapstructure:"allow_price_data"`
	AllowVolumeData        bool `mapstructure:"allow_volume_data"`
	AllowOnchainData       bool `mapstructure:"allow_onchain_data"`
	AllowExternalSentiment bool `mapstructure:"allow_external_sentiment"`
}
