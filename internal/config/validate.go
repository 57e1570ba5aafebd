package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// SupportedOracleProvider is the only oracle provider the snapshot parser understands.
const SupportedOracleProvider = "coinbase"

// AssetPairPlaceholder must appear in oracle.endpoint_url.
const AssetPairPlaceholder = "{asset_pair}"

var requiredKeys = map[string][]string{
	"risk": {
		"max_drawdown_pct",
		"daily_loss_pct",
		"max_trade_loss_pct",
		"max_position_pct",
		"max_concurrent_positions",
	},
	"runtime": {
		"mode",
		"execution_enabled",
		"allowed_chains",
		"min_expected_gain_pct",
		"respect_fees",
		"allow_discovery",
		"allow_strategy_switching",
		"evaluation_interval_sec",
		"max_runtime_sec",
		"strict_validation",
	},
	"strategies": {
		"allowed_classes",
		"allowed_horizons",
		"switching.min_dwell_time_sec",
		"switching.max_switches_per_day",
		"data_sources.allow_price_data",
		"data_sources.allow_volume_data",
		"data_sources.allow_onchain_data",
		"data_sources.allow_external_sentiment",
	},
	"oracle": {
		"provider",
		"endpoint_url",
		"asset_pair",
		"timeout_sec",
	},
}

var sectionOrder = []string{"risk", "runtime", "strategies", "chains", "oracle"}

func missingKeys(v *viper.Viper) []error {
	var errs []error
	for _, section := range sectionOrder {
		if section == "chains" {
			errs = append(errs, missingChainKeys(v)...)
			continue
		}
		if !v.IsSet(section) {
			errs = append(errs, fmt.Errorf("missing required top-level key: '%s'", section))
			continue
		}
		for _, key := range requiredKeys[section] {
			if !v.IsSet(section + "." + key) {
				errs = append(errs, fmt.Errorf("%s missing required field: '%s'", section, key))
			}
		}
	}
	return errs
}

func missingChainKeys(v *viper.Viper) []error {
	if !v.IsSet("chains") {
		return []error{errors.New("missing required top-level key: 'chains'")}
	}
	chains, ok := v.Get("chains").(map[string]any)
	if !ok {
		return []error{errors.New("chains must be a mapping")}
	}

	var errs []error
	for _, name := range sortedKeys(chains) {
		prefix := "chains." + name
		if _, ok := chains[name].(map[string]any); !ok {
			errs = append(errs, fmt.Errorf("chain '%s' must be a mapping", name))
			continue
		}
		for _, key := range []string{"description", "default_network", "networks"} {
			if !v.IsSet(prefix + "." + key) {
				errs = append(errs, fmt.Errorf("chain '%s' missing required field: '%s'", name, key))
			}
		}
		networks, ok := v.Get(prefix + ".networks").(map[string]any)
		if !ok {
			continue
		}
		for _, net := range sortedKeys(networks) {
			if !v.IsSet(prefix + ".networks." + net + ".rpc_endpoints") {
				errs = append(errs, fmt.Errorf("chain '%s' network '%s' missing or invalid 'rpc_endpoints'", name, net))
			}
		}
	}
	return errs
}

// Validate performs sanity checks on decoded configuration values.
func (c *Config) Validate() error {
	return errors.Join(c.validate()...)
}

func (c *Config) validate() []error {
	var errs []error

	rt := c.Runtime
	if rt.EvaluationIntervalSec <= 0 {
		errs = append(errs, errors.New("runtime.evaluation_interval_sec must be greater than zero"))
	}
	if rt.MaxRuntimeSec < 0 {
		errs = append(errs, errors.New("runtime.max_runtime_sec cannot be negative"))
	}
	if rt.PauseAfterFailures < 1 {
		errs = append(errs, errors.New("runtime.pause_after_failures must be at least 1"))
	}
	if rt.HaltAfterFailures < rt.PauseAfterFailures {
		errs = append(errs, errors.New("runtime.halt_after_failures must be >= runtime.pause_after_failures"))
	}
	if rt.PauseRecheckTicks < 0 {
		errs = append(errs, errors.New("runtime.pause_recheck_ticks cannot be negative"))
	}
	if rt.StartupDelaySec < 0 {
		errs = append(errs, errors.New("runtime.startup_delay_sec cannot be negative"))
	}
	switch rt.EndpointPolicy {
	case EndpointPolicyFirst, EndpointPolicyRoundRobin:
	default:
		errs = append(errs, fmt.Errorf("runtime.endpoint_policy must be '%s' or '%s'", EndpointPolicyFirst, EndpointPolicyRoundRobin))
	}

	for _, name := range sortedKeys(c.Chains) {
		chain := c.Chains[name]
		if strings.TrimSpace(chain.Description) == "" {
			errs = append(errs, fmt.Errorf("chain '%s' missing or invalid 'description'", name))
		}
		for _, netName := range sortedKeys(chain.Networks) {
			network := chain.Networks[netName]
			if strings.TrimSpace(network.Description) == "" {
				errs = append(errs, fmt.Errorf("chain '%s' network '%s' missing or invalid 'description'", name, netName))
			}
			if network.Identity() == nil {
				errs = append(errs, fmt.Errorf("chain '%s' network '%s' must define exactly one of 'chain_id' (int) or 'cluster' (str)", name, netName))
			}
			if network.RPCTimeoutSec < 0 {
				errs = append(errs, fmt.Errorf("chain '%s' network '%s' rpc_timeout_sec cannot be negative", name, netName))
			}
		}
	}

	o := c.Oracle
	if o.Provider != "" && o.Provider != SupportedOracleProvider {
		errs = append(errs, fmt.Errorf("oracle.provider must be '%s'", SupportedOracleProvider))
	}
	if o.EndpointURL != "" && !strings.Contains(o.EndpointURL, AssetPairPlaceholder) {
		errs = append(errs, fmt.Errorf("oracle.endpoint_url must include '%s'", AssetPairPlaceholder))
	}
	if o.TimeoutSec < 0 {
		errs = append(errs, errors.New("oracle.timeout_sec cannot be negative"))
	}

	if c.Reconciliation.MaxTimeSkewSec != nil && *c.Reconciliation.MaxTimeSkewSec < 0 {
		errs = append(errs, errors.New("reconciliation.max_time_skew_sec cannot be negative"))
	}

	if c.Export.MaxDataPoints <= 0 {
		errs = append(errs, errors.New("export.max_data_points must be greater than zero"))
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			errs = append(errs, errors.New("alerting.telegram.bot_token 必须配置"))
		}
		if c.Alerting.Telegram.ChatID == "" {
			errs = append(errs, errors.New("alerting.telegram.chat_id 必须配置"))
		}
	}
	return errs
}

// UnknownAllowedChains lists allowed chains with no definition under chains.
func (c *Config) UnknownAllowedChains() []string {
	var unknown []string
	for _, name := range c.Runtime.AllowedChains {
		if _, ok := c.Chain(name); !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
