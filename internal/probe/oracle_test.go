package probe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chain-watchdog/internal/config"
)

func fixedNow() time.Time {
	return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
}

func oracleCfg(url string) config.OracleConfig {
	return config.OracleConfig{
		Provider:    "coinbase",
		EndpointURL: url + "/v2/prices/{asset_pair}/spot",
		AssetPair:   "ETH-USD",
		TimeoutSec:  2,
	}
}

func TestOracleConfigShortCircuits(t *testing.T) {
	o := NewOracle(OracleOptions{Now: fixedNow}, noopLogger())

	snap := o.Collect(context.Background(), config.OracleConfig{EndpointURL: "http://x/prices", AssetPair: "ETH-USD"})
	if snap.Success || snap.FailureReason != ReasonInvalidEndpointURL {
		t.Fatalf("placeholder missing should fail: %+v", snap)
	}
	if snap.LatencyMs != nil {
		t.Fatal("no request should be made")
	}

	snap = o.Collect(context.Background(), config.OracleConfig{EndpointURL: "http://x/{asset_pair}"})
	if snap.FailureReason != ReasonMissingAssetPair {
		t.Fatalf("missing asset pair should fail: %+v", snap)
	}
}

func TestOracleSuccessUsesDateHeader(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Date", "Wed, 21 Oct 2015 07:28:00 GMT")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"amount": "3150.123456789012345678", "base": "ETH"},
		})
	}))
	defer srv.Close()

	o := NewOracle(OracleOptions{Now: fixedNow}, noopLogger())
	snap := o.Collect(context.Background(), oracleCfg(srv.URL))
	if !snap.Success {
		t.Fatalf("expected success: %+v", snap)
	}
	if gotPath != "/v2/prices/ETH-USD/spot" {
		t.Fatalf("asset pair not substituted: %s", gotPath)
	}
	if snap.Price != "3150.123456789012345678" {
		t.Fatalf("price must be kept verbatim, got %s", snap.Price)
	}
	if snap.SourceTimestamp != "2015-10-21T07:28:00.000000Z" {
		t.Fatalf("unexpected source timestamp %s", snap.SourceTimestamp)
	}
	if snap.TimestampEpoch == nil || *snap.TimestampEpoch != 1445412480 {
		t.Fatalf("unexpected epoch %v", snap.TimestampEpoch)
	}
	if snap.LatencyMs == nil || *snap.LatencyMs < 0 {
		t.Fatal("latency should be recorded")
	}
	if snap.Source != "coinbase" || snap.Asset != "ETH-USD" {
		t.Fatalf("unexpected source fields: %+v", snap)
	}
}

func TestOracleFallsBackToObservedAt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Date", "not a date")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"amount": "1.5"}})
	}))
	defer srv.Close()

	o := NewOracle(OracleOptions{Now: fixedNow}, noopLogger())
	snap := o.Collect(context.Background(), oracleCfg(srv.URL))
	if !snap.Success {
		t.Fatalf("expected success: %+v", snap)
	}
	if snap.SourceTimestamp != snap.ObservedAt {
		t.Fatalf("source timestamp should default to observed_at: %+v", snap)
	}
	if snap.TimestampEpoch == nil || *snap.TimestampEpoch != 1735787045 {
		t.Fatalf("unexpected epoch %v", snap.TimestampEpoch)
	}
}

func TestOraclePriceFailures(t *testing.T) {
	cases := map[string]struct {
		body   any
		reason string
	}{
		"missing data":   {body: map[string]any{"other": 1}, reason: ReasonMissingPrice},
		"missing amount": {body: map[string]any{"data": map[string]any{"base": "ETH"}}, reason: ReasonMissingPrice},
		"numeric amount": {body: map[string]any{"data": map[string]any{"amount": 3150.12}}, reason: ReasonInvalidPriceType},
		"null amount":    {body: map[string]any{"data": map[string]any{"amount": nil}}, reason: ReasonInvalidPriceType},
		"array body":     {body: []int{1, 2}, reason: ReasonMissingPrice},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(tc.body)
			}))
			defer srv.Close()

			o := NewOracle(OracleOptions{Now: fixedNow}, noopLogger())
			snap := o.Collect(context.Background(), oracleCfg(srv.URL))
			if snap.Success || snap.FailureReason != tc.reason {
				t.Fatalf("expected %s, got %+v", tc.reason, snap)
			}
			if snap.TimestampEpoch != nil {
				t.Fatal("failed snapshot must not carry an epoch")
			}
		})
	}
}

func TestOracleHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	o := NewOracle(OracleOptions{Now: fixedNow}, noopLogger())
	snap := o.Collect(context.Background(), oracleCfg(srv.URL))
	if snap.Success || !strings.Contains(snap.FailureReason, "404") {
		t.Fatalf("HTTP 404 should surface in failure_reason: %+v", snap)
	}
	if snap.LatencyMs == nil {
		t.Fatal("latency is recorded on failure too")
	}
}

func TestOracleMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	o := NewOracle(OracleOptions{Now: fixedNow}, noopLogger())
	snap := o.Collect(context.Background(), oracleCfg(srv.URL))
	if snap.Success || snap.FailureReason == "" {
		t.Fatalf("malformed body should fail: %+v", snap)
	}
}

func TestOracleRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"amount":"1"},"pad":"` + strings.Repeat("x", maxOracleBody) + `"}`))
	}))
	defer srv.Close()

	o := NewOracle(OracleOptions{Now: fixedNow}, noopLogger())
	snap := o.Collect(context.Background(), oracleCfg(srv.URL))
	if snap.Success {
		t.Fatal("oversized response must fail")
	}
	if !strings.Contains(snap.FailureReason, "exceeds") {
		t.Fatalf("unexpected failure reason %q", snap.FailureReason)
	}
}
