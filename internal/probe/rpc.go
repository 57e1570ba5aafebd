package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-http-utils/headers"
	"github.com/rs/zerolog"

	"chain-watchdog/internal/metrics"
)

const defaultUserAgent = "chain-watchdog/1.0"

var errMissingResult = errors.New("invalid RPC response: missing result")

// TransportError reports a failed JSON-RPC call: HTTP status, timeout,
// connection failure, malformed JSON or a response without a result.
type TransportError struct {
	Method string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Method, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Caller issues single JSON-RPC 2.0 calls with a bounded timeout. It never
// retries; retry policy belongs to the evaluation loop.
type Caller interface {
	Call(ctx context.Context, endpoint, method string, timeout time.Duration, params ...any) (json.RawMessage, error)
}

// RPCClient is a Caller backed by go-ethereum rpc clients. Each call dials a
// fresh client over a shared http.Client, so every request carries id 1.
type RPCClient struct {
	userAgent  string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewRPCClient constructs a Caller.
func NewRPCClient(userAgent string, logger zerolog.Logger) *RPCClient {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &RPCClient{
		userAgent:  userAgent,
		httpClient: &http.Client{},
		logger:     logger.With().Str("component", "rpc_probe").Logger(),
	}
}

// Call performs method against endpoint, bounded by timeout.
func (c *RPCClient) Call(ctx context.Context, endpoint, method string, timeout time.Duration, params ...any) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := c.call(ctx, endpoint, method, params)
	metrics.RPCLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RPCCallsTotal.WithLabelValues(method, "error").Inc()
		c.logger.Debug().Err(err).Str("method", method).Str("rpc", endpoint).Msg("rpc call failed")
		return nil, &TransportError{Method: method, Err: err}
	}
	metrics.RPCCallsTotal.WithLabelValues(method, "ok").Inc()
	return result, nil
}

func (c *RPCClient) call(ctx context.Context, endpoint, method string, params []any) (json.RawMessage, error) {
	client, err := c.dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	// A nil slice would drop "params" from the request body.
	if params == nil {
		params = []any{}
	}

	var result json.RawMessage
	if err := client.CallContext(ctx, &result, method, params...); err != nil {
		if errors.Is(err, rpc.ErrNoResult) {
			return nil, errMissingResult
		}
		return nil, err
	}
	if len(result) == 0 {
		return nil, errMissingResult
	}
	return result, nil
}

func (c *RPCClient) dial(ctx context.Context, endpoint string) (*rpc.Client, error) {
	client, err := rpc.DialOptions(ctx, endpoint,
		rpc.WithHTTPClient(c.httpClient),
		rpc.WithHeader(headers.UserAgent, c.userAgent),
	)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return client, nil
}

// Close drops idle keep-alive connections.
func (c *RPCClient) Close() {
	c.httpClient.CloseIdleConnections()
}

var _ Caller = (*RPCClient)(nil)
