package probe

import (
	"context"
	"math/big"
	"time"

	"chain-watchdog/internal/config"
)

// Orientation failure reasons name the RPC method that failed.
const (
	MethodChainID        = "eth_chainId"
	MethodBlockNumber    = "eth_blockNumber"
	MethodGetBlockByNum  = "eth_getBlockByNumber"
	MethodGasPrice       = "eth_gasPrice"
	errNetworkUnresolved = "default_network missing or invalid"
	errNoEndpoints       = "no rpc_endpoints configured"
)

// Oracle failure reasons.
const (
	ReasonInvalidEndpointURL = "invalid_endpoint_url"
	ReasonMissingAssetPair   = "missing_asset_pair"
	ReasonMissingPrice       = "missing_price"
	ReasonInvalidPriceType   = "invalid_price_type"
)

// isoLayout renders UTC instants as ISO-8601 with a literal Z suffix.
const isoLayout = "2006-01-02T15:04:05.000000Z"

// ChainSnapshot records whether a chain's primary endpoint answered.
type ChainSnapshot struct {
	Chain     string `json:"chain"`
	Network   string `json:"network,omitempty"`
	RPC       string `json:"rpc,omitempty"`
	Reachable bool   `json:"reachable"`
	Timestamp int64  `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

// OrientationSnapshot captures block height, block time and gas price.
type OrientationSnapshot struct {
	Chain           string   `json:"chain"`
	Network         string   `json:"network,omitempty"`
	RPC             string   `json:"rpc,omitempty"`
	Success         bool     `json:"success"`
	ReportedChainID *uint64  `json:"reported_chain_id,omitempty"`
	BlockHeight     uint64   `json:"block_height,omitempty"`
	BlockTimestamp  int64    `json:"block_timestamp,omitempty"`
	GasPrice        *big.Int `json:"gas_price,omitempty"`
	ObservedAt      string   `json:"observed_at"`
	TimestampEpoch  *int64   `json:"timestamp_epoch,omitempty"`
	FailureReason   string   `json:"failure_reason,omitempty"`
}

// OracleSnapshot captures one price observation. Price is kept verbatim.
type OracleSnapshot struct {
	Source          string `json:"source"`
	Asset           string `json:"asset"`
	Price           string `json:"price,omitempty"`
	Success         bool   `json:"success"`
	LatencyMs       *int64 `json:"latency_ms,omitempty"`
	ObservedAt      string `json:"observed_at"`
	SourceTimestamp string `json:"source_timestamp"`
	TimestampEpoch  *int64 `json:"timestamp_epoch,omitempty"`
	FailureReason   string `json:"failure_reason,omitempty"`
}

// ReachabilityChecker answers whether a chain's primary endpoint is alive.
type ReachabilityChecker interface {
	Check(ctx context.Context, name string, chain config.ChainConfig) ChainSnapshot
}

// OrientationCollector gathers block height, block time and gas price.
type OrientationCollector interface {
	Collect(ctx context.Context, name string, chain config.ChainConfig) OrientationSnapshot
}

// OracleCollector gathers a price snapshot.
type OracleCollector interface {
	Collect(ctx context.Context, cfg config.OracleConfig) OracleSnapshot
}

func formatISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

func parseISOEpoch(s string) (int64, bool) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, false
	}
	return t.Unix(), true
}
