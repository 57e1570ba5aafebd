package probe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"chain-watchdog/internal/config"
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

// fakeNode answers JSON-RPC methods from a table. A nil entry makes the
// method respond with HTTP 500; a missing entry omits the result field.
type fakeNode struct {
	mu      sync.Mutex
	results map[string]any
	calls   map[string]int
}

func newFakeNode(results map[string]any) *fakeNode {
	return &fakeNode{results: results, calls: make(map[string]int)}
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	n.calls[req.Method]++
	result, ok := n.results[req.Method]
	n.mu.Unlock()

	if ok && result == nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if ok {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (n *fakeNode) count(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func healthyResults() map[string]any {
	return map[string]any{
		MethodChainID:       "0x1",
		MethodBlockNumber:   "0x10",
		MethodGetBlockByNum: map[string]any{"number": "0x10", "timestamp": "0x5f5e100"},
		MethodGasPrice:      "0x3b9aca00",
	}
}

func chainFor(urls ...string) config.ChainConfig {
	id := int64(1)
	return config.ChainConfig{
		Description:    "test chain",
		DefaultNetwork: "mainnet",
		Networks: map[string]config.NetworkConfig{
			"mainnet": {Description: "main", RPCEndpoints: urls, RPCTimeoutSec: 2, ChainID: &id},
		},
	}
}

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

// countingCaller fails the test when a call happens.
type countingCaller struct {
	calls int
}

func (c *countingCaller) Call(ctx context.Context, endpoint, method string, timeout time.Duration, params ...any) (json.RawMessage, error) {
	c.calls++
	return json.RawMessage(`"0x1"`), nil
}

func TestChainWithoutEndpointsMakesNoCalls(t *testing.T) {
	caller := &countingCaller{}
	c := NewChain(ChainOptions{Caller: caller}, noopLogger())

	snap := c.Check(context.Background(), "ethereum", chainFor())
	if snap.Reachable || snap.Error != errNoEndpoints {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	orient := c.Collect(context.Background(), "ethereum", chainFor())
	if orient.Success || orient.FailureReason != MethodChainID {
		t.Fatalf("unexpected orientation: %+v", orient)
	}
	if caller.calls != 0 {
		t.Fatalf("expected no rpc calls, got %d", caller.calls)
	}
}

func TestChainUnknownDefaultNetwork(t *testing.T) {
	caller := &countingCaller{}
	c := NewChain(ChainOptions{Caller: caller}, noopLogger())
	cfg := chainFor("http://localhost:1")
	cfg.DefaultNetwork = "testnet"

	snap := c.Check(context.Background(), "ethereum", cfg)
	if snap.Reachable || snap.Error != errNetworkUnresolved || snap.Network != "" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if caller.calls != 0 {
		t.Fatal("no call expected for an unresolved network")
	}
}

func TestCheckReachable(t *testing.T) {
	node := newFakeNode(healthyResults())
	srv := httptest.NewServer(node)
	defer srv.Close()

	client := NewRPCClient("test", noopLogger())
	defer client.Close()
	c := NewChain(ChainOptions{Caller: client}, noopLogger())

	snap := c.Check(context.Background(), "ethereum", chainFor(srv.URL, "http://unused.invalid"))
	if !snap.Reachable {
		t.Fatalf("expected reachable, got %+v", snap)
	}
	if snap.RPC != srv.URL || snap.Network != "mainnet" {
		t.Fatalf("first endpoint should be probed: %+v", snap)
	}
	if node.count(MethodChainID) != 1 {
		t.Fatal("expected exactly one eth_chainId call")
	}
}

func TestCheckHTTPError(t *testing.T) {
	srv := httptest.NewServer(newFakeNode(map[string]any{MethodChainID: nil}))
	defer srv.Close()

	client := NewRPCClient("test", noopLogger())
	defer client.Close()
	c := NewChain(ChainOptions{Caller: client}, noopLogger())

	snap := c.Check(context.Background(), "ethereum", chainFor(srv.URL))
	if snap.Reachable || snap.Error == "" {
		t.Fatalf("HTTP 500 should mark the chain unreachable: %+v", snap)
	}
}

func TestCollectSuccess(t *testing.T) {
	srv := httptest.NewServer(newFakeNode(healthyResults()))
	defer srv.Close()

	client := NewRPCClient("test", noopLogger())
	defer client.Close()
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	c := NewChain(ChainOptions{Caller: client, Now: func() time.Time { return now }}, noopLogger())

	snap := c.Collect(context.Background(), "ethereum", chainFor(srv.URL))
	if !snap.Success {
		t.Fatalf("expected success, got %+v", snap)
	}
	if snap.BlockHeight != 16 || snap.BlockTimestamp != 100000000 {
		t.Fatalf("unexpected block fields: %+v", snap)
	}
	if snap.GasPrice == nil || snap.GasPrice.Int64() != 1000000000 {
		t.Fatalf("unexpected gas price: %v", snap.GasPrice)
	}
	if snap.TimestampEpoch == nil || *snap.TimestampEpoch != snap.BlockTimestamp {
		t.Fatal("epoch should mirror the block timestamp")
	}
	if snap.ObservedAt != "2025-01-02T03:04:05.000000Z" {
		t.Fatalf("unexpected observed_at %s", snap.ObservedAt)
	}
	if snap.ReportedChainID == nil || *snap.ReportedChainID != 1 {
		t.Fatal("reported chain id should be recorded")
	}
}

func TestCollectShortCircuits(t *testing.T) {
	order := []string{MethodChainID, MethodBlockNumber, MethodGetBlockByNum, MethodGasPrice}

	for i, failing := range order {
		t.Run(failing, func(t *testing.T) {
			results := healthyResults()
			results[failing] = nil
			node := newFakeNode(results)
			srv := httptest.NewServer(node)
			defer srv.Close()

			client := NewRPCClient("test", noopLogger())
			defer client.Close()
			c := NewChain(ChainOptions{Caller: client}, noopLogger())

			snap := c.Collect(context.Background(), "ethereum", chainFor(srv.URL))
			if snap.Success || snap.FailureReason != failing {
				t.Fatalf("expected failure at %s, got %+v", failing, snap)
			}
			if snap.TimestampEpoch != nil {
				t.Fatal("failed orientation must not carry an epoch")
			}
			for _, later := range order[i+1:] {
				if node.count(later) != 0 {
					t.Fatalf("%s should not be called after %s failed", later, failing)
				}
			}
		})
	}
}

func TestCollectBlockWithoutTimestamp(t *testing.T) {
	results := healthyResults()
	results[MethodGetBlockByNum] = map[string]any{"number": "0x10"}
	srv := httptest.NewServer(newFakeNode(results))
	defer srv.Close()

	client := NewRPCClient("test", noopLogger())
	defer client.Close()
	c := NewChain(ChainOptions{Caller: client}, noopLogger())

	snap := c.Collect(context.Background(), "ethereum", chainFor(srv.URL))
	if snap.FailureReason != MethodGetBlockByNum {
		t.Fatalf("expected %s failure, got %+v", MethodGetBlockByNum, snap)
	}
}

func TestCollectMissingResult(t *testing.T) {
	results := healthyResults()
	delete(results, MethodBlockNumber)
	srv := httptest.NewServer(newFakeNode(results))
	defer srv.Close()

	client := NewRPCClient("test", noopLogger())
	defer client.Close()
	c := NewChain(ChainOptions{Caller: client}, noopLogger())

	snap := c.Collect(context.Background(), "ethereum", chainFor(srv.URL))
	if snap.FailureReason != MethodBlockNumber {
		t.Fatalf("a response without result should fail, got %+v", snap)
	}
}

func TestRPCClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client := NewRPCClient("test", noopLogger())
	defer client.Close()

	start := time.Now()
	_, err := client.Call(context.Background(), srv.URL, MethodChainID, 100*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if _, ok := err.(*TransportError); !ok {
		t.Fatalf("expected TransportError, got %T", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("call should be bounded by its timeout")
	}
}

func TestRoundRobinRotatesPerTick(t *testing.T) {
	rr := NewRoundRobin()
	endpoints := []string{"a", "b"}
	if rr.Select("x", endpoints) != "a" || rr.Select("x", endpoints) != "a" {
		t.Fatal("selection must be stable within a tick")
	}
	rr.Rotate()
	if rr.Select("x", endpoints) != "b" {
		t.Fatal("rotate should move to the next endpoint")
	}
	rr.Rotate()
	if rr.Select("x", endpoints) != "a" {
		t.Fatal("rotation should wrap around")
	}
}

func TestDecodeQuantityLeadingZero(t *testing.T) {
	v, err := decodeQuantity(json.RawMessage(`"0x0a"`))
	if err != nil || v.Int64() != 10 {
		t.Fatalf("expected 10, got %v (%v)", v, err)
	}
	if _, err := decodeQuantity(json.RawMessage(`12`)); err == nil {
		t.Fatal("non-string quantity should fail")
	}
}

func TestRPCClientRequestEnvelope(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []map[string]json.RawMessage
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x1"}`))
	}))
	defer srv.Close()

	client := NewRPCClient("test", noopLogger())
	defer client.Close()

	for i := 0; i < 2; i++ {
		if _, err := client.Call(context.Background(), srv.URL, MethodChainID, time.Second); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(bodies))
	}
	for i, body := range bodies {
		if string(body["jsonrpc"]) != `"2.0"` {
			t.Fatalf("request %d: jsonrpc = %s", i, body["jsonrpc"])
		}
		if string(body["method"]) != `"eth_chainId"` {
			t.Fatalf("request %d: method = %s", i, body["method"])
		}
		if string(body["params"]) != "[]" {
			t.Fatalf("request %d: params must be an empty array, got %q", i, body["params"])
		}
		if string(body["id"]) != "1" {
			t.Fatalf("request %d: id = %s", i, body["id"])
		}
	}
}
