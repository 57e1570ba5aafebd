package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"chain-watchdog/internal/config"
)

// ChainOptions parameterise the chain prober.
type ChainOptions struct {
	Caller   Caller
	Selector EndpointSelector
	Now      func() time.Time
}

// Chain probes chain liveness and orientation over JSON-RPC.
type Chain struct {
	caller   Caller
	selector EndpointSelector
	now      func() time.Time
	logger   zerolog.Logger
}

// NewChain builds a chain prober.
func NewChain(opts ChainOptions, logger zerolog.Logger) *Chain {
	selector := opts.Selector
	if selector == nil {
		selector = FirstEndpoint{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Chain{
		caller:   opts.Caller,
		selector: selector,
		now:      now,
		logger:   logger.With().Str("component", "chain_probe").Logger(),
	}
}

type target struct {
	network  string
	endpoint string
	timeout  time.Duration
}

// resolve picks the default network and its endpoint. problem is non-empty
// when no RPC call should be attempted.
func (c *Chain) resolve(name string, chain config.ChainConfig) (target, string) {
	network, ok := chain.Network(chain.DefaultNetwork)
	if !ok {
		return target{}, errNetworkUnresolved
	}
	t := target{network: chain.DefaultNetwork, timeout: network.RPCTimeout()}
	if len(network.RPCEndpoints) == 0 {
		return t, errNoEndpoints
	}
	t.endpoint = c.selector.Select(name, network.RPCEndpoints)
	return t, ""
}

// Check issues a single eth_chainId probe against the chain's selected endpoint.
func (c *Chain) Check(ctx context.Context, name string, chain config.ChainConfig) ChainSnapshot {
	t, problem := c.resolve(name, chain)
	snap := ChainSnapshot{
		Chain:   name,
		Network: t.network,
		RPC:     t.endpoint,
	}
	if problem != "" {
		snap.Timestamp = c.now().Unix()
		snap.Error = problem
		return snap
	}

	_, err := c.caller.Call(ctx, t.endpoint, MethodChainID, t.timeout)
	snap.Timestamp = c.now().Unix()
	if err != nil {
		snap.Error = err.Error()
		return snap
	}
	snap.Reachable = true
	return snap
}

// Collect issues eth_chainId, eth_blockNumber, eth_getBlockByNumber and
// eth_gasPrice in sequence, stopping at the first failure.
func (c *Chain) Collect(ctx context.Context, name string, chain config.ChainConfig) OrientationSnapshot {
	snap := OrientationSnapshot{
		Chain:      name,
		ObservedAt: formatISO(c.now()),
	}

	t, problem := c.resolve(name, chain)
	snap.Network = t.network
	snap.RPC = t.endpoint
	if problem != "" {
		snap.FailureReason = MethodChainID
		return snap
	}

	raw, err := c.caller.Call(ctx, t.endpoint, MethodChainID, t.timeout)
	if err != nil {
		return c.fail(snap, MethodChainID, err)
	}
	if id, err := decodeQuantity(raw); err == nil && id.IsUint64() {
		v := id.Uint64()
		snap.ReportedChainID = &v
	}

	raw, err = c.caller.Call(ctx, t.endpoint, MethodBlockNumber, t.timeout)
	if err != nil {
		return c.fail(snap, MethodBlockNumber, err)
	}
	height, err := decodeQuantity(raw)
	if err != nil || !height.IsUint64() {
		return c.fail(snap, MethodBlockNumber, errors.Join(errors.New("invalid block number"), err))
	}

	raw, err = c.caller.Call(ctx, t.endpoint, MethodGetBlockByNum, t.timeout, "latest", false)
	if err != nil {
		return c.fail(snap, MethodGetBlockByNum, err)
	}
	blockTime, err := decodeBlockTimestamp(raw)
	if err != nil {
		return c.fail(snap, MethodGetBlockByNum, err)
	}

	raw, err = c.caller.Call(ctx, t.endpoint, MethodGasPrice, t.timeout)
	if err != nil {
		return c.fail(snap, MethodGasPrice, err)
	}
	gasPrice, err := decodeQuantity(raw)
	if err != nil {
		return c.fail(snap, MethodGasPrice, err)
	}

	snap.BlockHeight = height.Uint64()
	snap.BlockTimestamp = blockTime
	snap.GasPrice = gasPrice
	epoch := blockTime
	snap.TimestampEpoch = &epoch
	snap.Success = true
	return snap
}

func (c *Chain) fail(snap OrientationSnapshot, method string, err error) OrientationSnapshot {
	c.logger.Debug().Err(err).Str("chain", snap.Chain).Str("method", method).Msg("orientation call failed")
	snap.FailureReason = method
	return snap
}

func decodeBlockTimestamp(raw json.RawMessage) (int64, error) {
	var block map[string]json.RawMessage
	if err := json.Unmarshal(raw, &block); err != nil {
		return 0, fmt.Errorf("invalid block response: %w", err)
	}
	ts, ok := block["timestamp"]
	if !ok {
		return 0, errors.New("invalid block response: missing timestamp")
	}
	value, err := decodeQuantity(ts)
	if err != nil {
		return 0, err
	}
	if !value.IsInt64() {
		return 0, errors.New("invalid block response: timestamp out of range")
	}
	return value.Int64(), nil
}

// decodeQuantity parses a JSON string holding a base-16 quantity. Leading
// zeros are tolerated.
func decodeQuantity(raw json.RawMessage) (*big.Int, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("expected hex string: %w", err)
	}
	value, err := hexutil.DecodeBig(s)
	if err == nil {
		return value, nil
	}
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if v, ok := new(big.Int).SetString(digits, 16); ok && digits != "" {
		return v, nil
	}
	return nil, err
}

var (
	_ ReachabilityChecker  = (*Chain)(nil)
	_ OrientationCollector = (*Chain)(nil)
)
