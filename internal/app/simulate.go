package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chain-watchdog/internal/alerting"
	"chain-watchdog/internal/health"
)

// SimulateOptions describe a synthetic runtime transition.
type SimulateOptions struct {
	Event    alerting.Event
	Failures int
	Reason   string
}

// SimulateAlert 构造一次模拟的暂停/熔断/恢复事件并走一遍告警流程。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}
	return a.simulateAlert(ctx, notifier, opts, time.Now)
}

func (a *App) simulateAlert(ctx context.Context, notifier alerting.Notifier, opts SimulateOptions, now func() time.Time) error {
	runtimeCfg := a.Config.Runtime
	hlth := health.New(runtimeCfg.PauseAfterFailures, runtimeCfg.HaltAfterFailures, health.WithClock(now))

	reason := opts.Reason
	if reason == "" {
		reason = "simulated failure"
	}

	switch opts.Event {
	case alerting.EventPaused, alerting.EventHalted:
		failures := opts.Failures
		if failures <= 0 {
			failures = runtimeCfg.PauseAfterFailures
			if opts.Event == alerting.EventHalted {
				failures = runtimeCfg.HaltAfterFailures
			}
		}
		for i := 0; i < failures; i++ {
			hlth.RecordFailure(reason)
		}
		if opts.Event == alerting.EventHalted {
			hlth.EnterHalt()
		} else {
			hlth.EnterPause()
		}
	case alerting.EventRecovered:
		reason = ""
		hlth.RecordSuccess()
	default:
		return fmt.Errorf("unknown event %q", opts.Event)
	}

	notification := alerting.Notification{
		Event:    opts.Event,
		RunID:    "simulated-" + uuid.NewString()[:8],
		At:       now().UTC(),
		Reason:   reason,
		Health:   hlth.Snapshot(),
		Channels: a.Config.Alerting.Channels,
	}

	a.Logger.Info().Str("event", string(opts.Event)).Int("consecutive_failures", notification.Health.ConsecutiveFailures).Msg("sending simulated alert")
	if err := notifier.Notify(ctx, notification); err != nil {
		return fmt.Errorf("send simulated alert: %w", err)
	}
	return nil
}
