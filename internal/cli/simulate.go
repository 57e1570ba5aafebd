package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"chain-watchdog/internal/alerting"
	"chain-watchdog/internal/app"
)

var (
	simulateEvent    string
	simulateFailures int
	simulateReason   string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次暂停/熔断/恢复事件并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateFailures < 0 {
			return errors.New("--failures 不能为负数")
		}
		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			Event:    alerting.Event(simulateEvent),
			Failures: simulateFailures,
			Reason:   simulateReason,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateEvent, "event", string(alerting.EventPaused), "模拟的事件: paused、halted 或 recovered")
	simulateCmd.Flags().IntVar(&simulateFailures, "failures", 0, "连续失败次数 (默认取配置中的阈值)")
	simulateCmd.Flags().StringVar(&simulateReason, "reason", "", "告警中附带的失败原因")
}
