package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/go-http-utils/headers"
	"github.com/rs/zerolog"

	"chain-watchdog/internal/config"
	"chain-watchdog/internal/metrics"
)

// headerDate is not among the go-http-utils/headers constants.
const headerDate = "Date"

// maxOracleBody caps how much of an oracle response is read.
const maxOracleBody = 1 << 20

// OracleOptions parameterise the oracle prober.
type OracleOptions struct {
	UserAgent string
	Now       func() time.Time
}

// Oracle fetches price snapshots from a templated HTTP endpoint.
type Oracle struct {
	client    *http.Client
	userAgent string
	now       func() time.Time
	logger    zerolog.Logger
}

// NewOracle constructs an oracle prober.
func NewOracle(opts OracleOptions, logger zerolog.Logger) *Oracle {
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Oracle{
		client:    &http.Client{},
		userAgent: ua,
		now:       now,
		logger:    logger.With().Str("component", "oracle_probe").Logger(),
	}
}

// Collect issues one GET against the configured endpoint and extracts
// data.amount. Failures are reported in the snapshot, never as errors.
func (o *Oracle) Collect(ctx context.Context, cfg config.OracleConfig) OracleSnapshot {
	observedAt := formatISO(o.now())
	snap := OracleSnapshot{
		Source:          cfg.Provider,
		Asset:           cfg.AssetPair,
		ObservedAt:      observedAt,
		SourceTimestamp: observedAt,
	}

	if cfg.EndpointURL == "" || !strings.Contains(cfg.EndpointURL, config.AssetPairPlaceholder) {
		snap.FailureReason = ReasonInvalidEndpointURL
		return snap
	}
	if cfg.AssetPair == "" {
		snap.FailureReason = ReasonMissingAssetPair
		return snap
	}

	url := strings.ReplaceAll(cfg.EndpointURL, config.AssetPairPlaceholder, cfg.AssetPair)

	start := time.Now()
	resp, body, err := o.get(ctx, url, cfg.Timeout())
	elapsed := time.Since(start)
	latency := elapsed.Milliseconds()
	snap.LatencyMs = &latency
	metrics.OracleLatency.Observe(elapsed.Seconds())

	if err != nil {
		metrics.OracleRequestsTotal.WithLabelValues(cfg.Provider, "error").Inc()
		snap.FailureReason = err.Error()
		return snap
	}

	if parsed, ok := parseHTTPDate(resp.Header.Get(headerDate)); ok {
		snap.SourceTimestamp = formatISO(parsed)
	}

	price, reason := extractPrice(body)
	if reason != "" {
		metrics.OracleRequestsTotal.WithLabelValues(cfg.Provider, "invalid").Inc()
		snap.FailureReason = reason
		return snap
	}
	metrics.OracleRequestsTotal.WithLabelValues(cfg.Provider, "ok").Inc()

	epoch, ok := parseISOEpoch(snap.SourceTimestamp)
	if !ok {
		epoch, ok = parseISOEpoch(snap.ObservedAt)
	}
	if ok {
		snap.TimestampEpoch = &epoch
	}

	snap.Price = price
	snap.Success = true
	return snap
}

func (o *Oracle) get(ctx context.Context, url string, timeout time.Duration) (*http.Response, any, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set(headers.Accept, "application/json")
	req.Header.Set(headers.UserAgent, o.userAgent)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxOracleBody+1))
	if err != nil {
		return nil, nil, err
	}
	if len(payload) > maxOracleBody {
		return nil, nil, fmt.Errorf("oracle response exceeds %d bytes", maxOracleBody)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("%d %s for url: %s", resp.StatusCode, http.StatusText(resp.StatusCode), url)
	}

	var body any
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, nil, fmt.Errorf("decode oracle response: %w", err)
	}
	return resp, body, nil
}

// extractPrice reads data.amount, which must be a JSON string.
func extractPrice(body any) (string, string) {
	root, ok := body.(map[string]any)
	if !ok {
		return "", ReasonMissingPrice
	}
	data, ok := root["data"].(map[string]any)
	if !ok {
		return "", ReasonMissingPrice
	}
	amount, ok := data["amount"]
	if !ok {
		return "", ReasonMissingPrice
	}
	price, ok := amount.(string)
	if !ok {
		return "", ReasonInvalidPriceType
	}
	return price, ""
}

// parseHTTPDate parses an RFC 2822 / RFC 1123 date header into UTC.
func parseHTTPDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if t, err := mail.ParseDate(value); err == nil {
		return t.UTC(), true
	}
	if t, err := http.ParseTime(value); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

var _ OracleCollector = (*Oracle)(nil)
