package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"chain-watchdog/internal/alerting"
	"chain-watchdog/internal/config"
	"chain-watchdog/internal/health"
	"chain-watchdog/internal/metrics"
	"chain-watchdog/internal/probe"
	"chain-watchdog/internal/reconcile"
	"chain-watchdog/internal/scheduler"
	"chain-watchdog/internal/storage"
)

// ErrHalted reports that the run ended because the halt threshold was reached.
var ErrHalted = errors.New("runtime halted")

// Dependencies are the collaborators of the evaluation loop. Store and
// Notifier are optional.
type Dependencies struct {
	Scheduler    *scheduler.Scheduler
	Reachability probe.ReachabilityChecker
	Orientation  probe.OrientationCollector
	Oracle       probe.OracleCollector
	Selector     probe.EndpointSelector
	Health       *health.RuntimeHealth
	Store        storage.TickStore
	Notifier     alerting.Notifier
	Out          io.Writer
	Now          func() time.Time
	RunID        string
}

// Service runs the evaluation loop.
type Service struct {
	cfg       *config.Config
	scheduler *scheduler.Scheduler
	reach     probe.ReachabilityChecker
	orient    probe.OrientationCollector
	oracle    probe.OracleCollector
	selector  probe.EndpointSelector
	health    *health.RuntimeHealth
	store     storage.TickStore
	notifier  alerting.Notifier
	out       io.Writer
	now       func() time.Time
	runID     string
	logger    zerolog.Logger

	interval     time.Duration
	maxRuntime   time.Duration
	recheckEvery int
	skew         reconcile.Config

	startedAt   time.Time
	pausedTicks int
}

// New constructs the evaluation loop.
func New(cfg *config.Config, deps Dependencies, logger zerolog.Logger) *Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	out := deps.Out
	if out == nil {
		out = io.Discard
	}
	h := deps.Health
	if h == nil {
		h = health.New(cfg.Runtime.PauseAfterFailures, cfg.Runtime.HaltAfterFailures, health.WithClock(now))
	}
	sched := deps.Scheduler
	if sched == nil {
		sched = scheduler.New(scheduler.Options{StartupDelay: cfg.Runtime.StartupDelay()}, logger)
	}

	l := logger.With().Str("component", "service")
	if deps.RunID != "" {
		l = l.Str("run_id", deps.RunID)
	}

	return &Service{
		cfg:          cfg,
		scheduler:    sched,
		reach:        deps.Reachability,
		orient:       deps.Orientation,
		oracle:       deps.Oracle,
		selector:     deps.Selector,
		health:       h,
		store:        deps.Store,
		notifier:     deps.Notifier,
		out:          out,
		now:          now,
		runID:        deps.RunID,
		logger:       l.Logger(),
		interval:     cfg.Runtime.EvaluationInterval(),
		maxRuntime:   cfg.Runtime.MaxRuntime(),
		recheckEvery: cfg.Runtime.PauseRecheckTicks,
		skew:         reconcile.Config{MaxTimeSkewSec: cfg.Reconciliation.MaxTimeSkewSec},
	}
}

// Health exposes the runtime health for status readers.
func (s *Service) Health() *health.RuntimeHealth {
	return s.health
}

// Run drives ticks until max runtime, halt, or ctx cancellation. Cancellation
// is a clean exit; a halt returns ErrHalted.
func (s *Service) Run(ctx context.Context) error {
	if s.reach == nil || s.orient == nil || s.oracle == nil {
		return errors.New("probes not configured")
	}
	s.startedAt = s.now()
	s.logger.Info().
		Int64("interval_sec", int64(s.interval.Seconds())).
		Int64("max_runtime_sec", int64(s.maxRuntime.Seconds())).
		Strs("allowed_chains", s.cfg.Runtime.AllowedChains).
		Msg("runtime loop started")

	err := s.scheduler.Run(ctx, s.step)
	switch {
	case err == nil:
		s.logger.Info().Msg("runtime exited cleanly")
		return nil
	case errors.Is(err, context.Canceled):
		s.logger.Info().Msg("runtime interrupted by user")
		fmt.Fprintln(s.out, "[!] Runtime interrupted by user.")
		return nil
	case errors.Is(err, ErrHalted):
		return err
	default:
		return fmt.Errorf("runtime loop: %w", err)
	}
}

// step 执行单个 tick 的评估与控制决策，返回下一次休眠时长。
func (s *Service) step(ctx context.Context, tick int64) (time.Duration, error) {
	now := s.now()
	elapsed := now.Sub(s.startedAt)

	s.logger.Info().
		Int64("tick", tick).
		Int64("elapsed_sec", int64(elapsed.Seconds())).
		Int64("interval_sec", int64(s.interval.Seconds())).
		Msg("heartbeat")

	wasPaused := s.health.Paused()
	if wasPaused {
		s.pausedTicks++
		if !s.recheckDue() {
			s.logger.Warn().Int64("tick", tick).
				Int("consecutive_failures", s.health.ConsecutiveFailures()).
				Msg("runtime paused, evaluation skipped")
			s.record(ctx, tick, now, nil, OutcomePaused)
			if s.maxRuntimeReached(elapsed) {
				return 0, s.stopForMaxRuntime()
			}
			return 2 * s.interval, nil
		}
		s.logger.Info().Int64("tick", tick).Msg("rechecking while paused")
	}

	report := s.Evaluate(ctx, tick)
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if rotator, ok := s.selector.(probe.Rotator); ok {
		rotator.Rotate()
	}

	outcome := OutcomeSuccess
	if report.Success {
		s.health.RecordSuccess()
	} else {
		outcome = OutcomeFailure
		s.health.RecordFailure(report.FailureReason)
	}
	for _, warning := range report.Warnings {
		s.health.RecordWarning(warning)
	}

	if wasPaused && report.Success {
		s.logger.Info().Int64("tick", tick).Msg("runtime recovered from pause")
		fmt.Fprintln(s.out, "[+] Runtime recovered, evaluation resumed.")
		s.notify(ctx, alerting.EventRecovered, tick, "")
	}

	if s.health.ShouldHalt() {
		s.health.EnterHalt()
		snap := s.health.Snapshot()
		s.logger.Error().
			Int64("tick", tick).
			Int("consecutive_failures", snap.ConsecutiveFailures).
			Int("total_checks", snap.TotalChecks).
			Int("total_warnings", snap.TotalWarnings).
			Str("last_error", snap.LastError).
			Msg("halt threshold reached, runtime halted")
		fmt.Fprintf(s.out, "[!] Runtime halted after %d consecutive failures: %s\n", snap.ConsecutiveFailures, snap.LastError)
		s.notify(ctx, alerting.EventHalted, tick, snap.LastError)
		s.record(ctx, tick, now, &report, outcome)
		return 0, ErrHalted
	}

	if s.health.ShouldPause() && !wasPaused {
		s.health.EnterPause()
		s.pausedTicks = 0
		failures := s.health.ConsecutiveFailures()
		s.logger.Warn().
			Int64("tick", tick).
			Int("consecutive_failures", failures).
			Dur("sleep", 2*s.interval).
			Msg("pause threshold reached, runtime paused")
		fmt.Fprintf(s.out, "[!] Runtime paused after %d consecutive failures.\n", failures)
		s.notify(ctx, alerting.EventPaused, tick, report.FailureReason)
	}

	s.record(ctx, tick, now, &report, outcome)

	if s.maxRuntimeReached(elapsed) {
		return 0, s.stopForMaxRuntime()
	}
	if s.health.Paused() {
		return 2 * s.interval, nil
	}
	return s.interval, nil
}

func (s *Service) recheckDue() bool {
	return s.recheckEvery > 0 && s.pausedTicks%s.recheckEvery == 0
}

func (s *Service) maxRuntimeReached(elapsed time.Duration) bool {
	return s.maxRuntime > 0 && elapsed >= s.maxRuntime
}

func (s *Service) stopForMaxRuntime() error {
	s.logger.Info().Msg("max runtime reached, exiting runtime loop")
	fmt.Fprintln(s.out, "[+] Max runtime reached, exiting.")
	return scheduler.ErrStop
}

// Evaluate probes every allowed chain and the oracle once. It does not touch
// runtime health.
func (s *Service) Evaluate(ctx context.Context, tick int64) TickReport {
	report := TickReport{
		Tick:       tick,
		ObservedAt: s.now().UTC(),
		Success:    true,
		Chains:     make([]ChainResult, 0, len(s.cfg.Runtime.AllowedChains)),
	}
	s.logger.Info().Int64("tick", tick).Msg("evaluation phase started")

	for _, name := range s.cfg.Runtime.AllowedChains {
		chainCfg, ok := s.cfg.Chain(name)
		if !ok {
			msg := fmt.Sprintf("allowed chain %q not found in chain configuration", name)
			s.logger.Warn().Str("chain", name).Msg(msg)
			report.warn(msg)
			continue
		}
		report.Chains = append(report.Chains, s.evaluateChain(ctx, name, chainCfg, &report))
	}

	report.Oracle = s.oracle.Collect(ctx, s.cfg.Oracle)
	if report.Oracle.Success {
		s.logger.Info().
			Str("source", report.Oracle.Source).
			Str("asset", report.Oracle.Asset).
			Str("price", report.Oracle.Price).
			Str("source_timestamp", report.Oracle.SourceTimestamp).
			Msg("oracle snapshot collected")
	} else {
		s.logger.Warn().
			Str("source", report.Oracle.Source).
			Str("failure_reason", report.Oracle.FailureReason).
			Msg("oracle snapshot failed")
	}

	for i := range report.Chains {
		chain := &report.Chains[i]
		if chain.Orientation == nil || !chain.Orientation.Success {
			continue
		}
		res := reconcile.Reconcile(*chain.Orientation, report.Oracle, s.skew)
		chain.Reconciliation = &res
		s.observeReconcile(chain.Name, res, &report)
	}

	level := zerolog.InfoLevel
	if !report.Success {
		level = zerolog.WarnLevel
	}
	s.logger.WithLevel(level).
		Int64("tick", tick).
		Bool("success", report.Success).
		Str("failure_reason", report.FailureReason).
		Msg("evaluation phase complete")
	return report
}

func (s *Service) evaluateChain(ctx context.Context, name string, chainCfg config.ChainConfig, report *TickReport) ChainResult {
	result := ChainResult{Name: name}

	snap := s.reach.Check(ctx, name, chainCfg)
	result.Reachability = snap
	metrics.ChainReachable.WithLabelValues(name).Set(metrics.BoolGauge(snap.Reachable))
	if !snap.Reachable {
		s.logger.Warn().Str("chain", name).Str("rpc", snap.RPC).Str("error", snap.Error).Msg("chain unreachable")
		report.fail(fmt.Sprintf("%s unreachable: %s", name, snap.Error))
		return result
	}
	s.logger.Info().Str("chain", name).Str("network", snap.Network).Str("rpc", snap.RPC).Msg("chain reachable")

	orient := s.orient.Collect(ctx, name, chainCfg)
	result.Orientation = &orient
	if !orient.Success {
		s.logger.Warn().Str("chain", name).Str("failure_reason", orient.FailureReason).Msg("orientation failed")
		report.fail(fmt.Sprintf("%s orientation failed: %s", name, orient.FailureReason))
		return result
	}

	metrics.ChainBlockHeight.WithLabelValues(name).Set(float64(orient.BlockHeight))
	if orient.GasPrice != nil {
		gas, _ := new(big.Float).SetInt(orient.GasPrice).Float64()
		metrics.ChainGasPrice.WithLabelValues(name).Set(gas)
	}
	s.logger.Info().
		Str("chain", name).
		Uint64("block_height", orient.BlockHeight).
		Int64("block_timestamp", orient.BlockTimestamp).
		Stringer("gas_price", orient.GasPrice).
		Msg("orientation collected")

	if msg, mismatch := chainIDMismatch(name, chainCfg, orient); mismatch {
		s.logger.Warn().Str("chain", name).Msg(msg)
		report.warn(msg)
	}
	return result
}

func chainIDMismatch(name string, chainCfg config.ChainConfig, orient probe.OrientationSnapshot) (string, bool) {
	if orient.ReportedChainID == nil {
		return "", false
	}
	network, ok := chainCfg.Network(orient.Network)
	if !ok {
		return "", false
	}
	want, ok := network.Identity().(config.ChainID)
	if !ok || int64(want) < 0 || uint64(want) == *orient.ReportedChainID {
		return "", false
	}
	return fmt.Sprintf("chain %s reported chain id %d, configured %d", name, *orient.ReportedChainID, int64(want)), true
}

func (s *Service) observeReconcile(chain string, res reconcile.Result, report *TickReport) {
	if res.DeltaSec != nil {
		metrics.ReconcileSkew.WithLabelValues(chain).Set(float64(*res.DeltaSec))
	}
	level := zerolog.InfoLevel
	if res.Status == reconcile.StatusDegraded {
		level = zerolog.WarnLevel
		metrics.ReconcileDegradedTotal.WithLabelValues(chain, res.Reason).Inc()
		report.warn(fmt.Sprintf("reconciliation degraded for %s: %s", chain, res.Reason))
	}
	event := s.logger.WithLevel(level).Str("chain", chain).Str("status", string(res.Status))
	if res.Reason != "" {
		event = event.Str("reason", res.Reason)
	}
	if res.DeltaSec != nil {
		event = event.Int64("delta_sec", *res.DeltaSec)
	}
	event.Msg("reconciliation result")
}

func (s *Service) notify(ctx context.Context, event alerting.Event, tick int64, reason string) {
	if s.notifier == nil {
		return
	}
	note := alerting.Notification{
		Event:    event,
		RunID:    s.runID,
		Tick:     tick,
		At:       s.now(),
		Reason:   reason,
		Health:   s.health.Snapshot(),
		Channels: s.cfg.Alerting.Channels,
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("event", string(event)).Msg("failed to dispatch notification")
	}
}

func (s *Service) record(ctx context.Context, tick int64, observedAt time.Time, report *TickReport, outcome string) {
	snap := s.health.Snapshot()
	metrics.TicksTotal.WithLabelValues(outcome).Inc()
	metrics.ObserveHealth(snap)

	if s.store == nil {
		return
	}

	rec := storage.TickRecord{
		RunID:               s.runID,
		Tick:                tick,
		ObservedAt:          observedAt.UTC(),
		Outcome:             outcome,
		HealthStatus:        string(snap.Status),
		ConsecutiveFailures: snap.ConsecutiveFailures,
	}
	if report != nil {
		fillRecord(&rec, report, s.logger)
	}

	if err := s.store.InsertTick(ctx, rec); err != nil {
		s.logger.Error().Err(err).Int64("tick", tick).Msg("failed to persist tick")
	}
}

func fillRecord(rec *storage.TickRecord, report *TickReport, logger zerolog.Logger) {
	if report.FailureReason != "" {
		reason := report.FailureReason
		rec.FailureReason = &reason
	}
	if report.Oracle.Success {
		price, err := storage.ParseNullDecimal(&report.Oracle.Price)
		if err != nil {
			logger.Warn().Err(err).Str("price", report.Oracle.Price).Msg("oracle price is not a decimal, not persisted")
		}
		rec.OraclePrice = price
	}
	rec.OracleLatencyMs = report.Oracle.LatencyMs
	if res := report.FirstSkew(); res != nil {
		status := string(res.Status)
		rec.ReconcileStatus = &status
		rec.SkewSec = res.DeltaSec
	}
	if chains, err := json.Marshal(report.Chains); err == nil {
		rec.Chains = chains
	}
}
