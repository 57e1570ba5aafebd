package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chain-watchdog/internal/alerting"
	"chain-watchdog/internal/config"
	"chain-watchdog/internal/health"
	"chain-watchdog/internal/metrics"
	"chain-watchdog/internal/probe"
	"chain-watchdog/internal/service"
	"chain-watchdog/internal/storage"
	"chain-watchdog/internal/version"
)

// ErrCheckFailed reports a single evaluation that did not succeed.
var ErrCheckFailed = errors.New("evaluation failed")

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

type probes struct {
	client   *probe.RPCClient
	selector probe.EndpointSelector
	chain    *probe.Chain
	oracle   *probe.Oracle
}

func (p *probes) close() {
	p.client.Close()
}

func (a *App) userAgent() string {
	if a.Config.Oracle.UserAgent != "" {
		return a.Config.Oracle.UserAgent
	}
	return "chain-watchdog/" + version.Version
}

func (a *App) newProbes() *probes {
	client := probe.NewRPCClient(a.userAgent(), a.Logger)
	selector := probe.NewSelector(a.Config.Runtime.EndpointPolicy)
	return &probes{
		client:   client,
		selector: selector,
		chain:    probe.NewChain(probe.ChainOptions{Caller: client, Selector: selector}, a.Logger),
		oracle:   probe.NewOracle(probe.OracleOptions{UserAgent: a.userAgent()}, a.Logger),
	}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) startStatusServer(source metrics.SnapshotSource) func() {
	if !a.Config.Metrics.Enabled {
		return func() {}
	}

	srv := metrics.NewServer(a.Config.Metrics.ListenAddr, source, a.Logger)
	go func() {
		if err := srv.Start(); err != nil {
			a.Logger.Error().Err(err).Msg("status server stopped")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("status server shutdown")
		}
	}
}

// Run executes the evaluation loop until max runtime, halt, or interrupt.
func (a *App) Run(ctx context.Context, out io.Writer) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := uuid.NewString()
	fmt.Fprint(out, version.Banner())

	for _, name := range a.Config.UnknownAllowedChains() {
		a.Logger.Warn().Str("chain", name).Msg("allowed chain has no chain definition")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	var tickStore storage.TickStore
	if store == nil {
		a.Logger.Info().Msg("database.dsn not configured; tick history disabled")
	} else {
		tickStore = store
	}
	if closeStore != nil {
		defer closeStore()
	}

	p := a.newProbes()
	defer p.close()

	runtimeCfg := a.Config.Runtime
	hlth := health.New(runtimeCfg.PauseAfterFailures, runtimeCfg.HaltAfterFailures)
	stopStatus := a.startStatusServer(hlth)
	defer stopStatus()

	svc := service.New(a.Config, service.Dependencies{
		Reachability: p.chain,
		Orientation:  p.chain,
		Oracle:       p.oracle,
		Selector:     p.selector,
		Health:       hlth,
		Store:        tickStore,
		Notifier:     a.newNotifier(),
		Out:          out,
		RunID:        runID,
	}, a.Logger)

	a.Logger.Info().Str("run_id", runID).Str("mode", runtimeCfg.Mode).Msg("initialization complete")
	err = svc.Run(ctx)
	if err != nil {
		if !errors.Is(err, service.ErrHalted) {
			a.Logger.Error().Err(err).Msg("runtime terminated with error")
		}
		return err
	}

	a.Logger.Info().Str("run_id", runID).Msg("runtime stopped")
	return nil
}

// Check runs a single evaluation and prints the report as JSON.
func (a *App) Check(ctx context.Context, out io.Writer) error {
	p := a.newProbes()
	defer p.close()

	svc := service.New(a.Config, service.Dependencies{
		Reachability: p.chain,
		Orientation:  p.chain,
		Oracle:       p.oracle,
		Selector:     p.selector,
	}, a.Logger)

	report := svc.Evaluate(ctx, 1)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if !report.Success {
		return fmt.Errorf("%w: %s", ErrCheckFailed, report.FailureReason)
	}
	return nil
}

// Validate reports on a configuration that already passed loading.
func (a *App) Validate(out io.Writer) error {
	cfg := a.Config
	fmt.Fprintln(out, "[+] Configuration valid.")
	fmt.Fprintf(out, "    mode: %s, execution_enabled: %t\n", cfg.Runtime.Mode, cfg.Runtime.ExecutionEnabled)
	fmt.Fprintf(out, "    evaluation_interval_sec: %d, max_runtime_sec: %d\n", cfg.Runtime.EvaluationIntervalSec, cfg.Runtime.MaxRuntimeSec)
	fmt.Fprintf(out, "    pause_after_failures: %d, halt_after_failures: %d\n", cfg.Runtime.PauseAfterFailures, cfg.Runtime.HaltAfterFailures)
	for _, name := range cfg.Runtime.AllowedChains {
		chain, ok := cfg.Chain(name)
		if !ok {
			fmt.Fprintf(out, "[!] allowed chain %q has no chain definition\n", name)
			continue
		}
		network, _ := chain.Network(chain.DefaultNetwork)
		identity := "unidentified"
		if id := network.Identity(); id != nil {
			identity = id.String()
		}
		fmt.Fprintf(out, "    chain %s: network %s (%s), %d endpoint(s)\n", name, chain.DefaultNetwork, identity, len(network.RPCEndpoints))
	}
	fmt.Fprintf(out, "    oracle: %s %s\n", cfg.Oracle.Provider, cfg.Oracle.AssetPair)
	return nil
}

// ExportOptions hold parameters for exporting tick history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
