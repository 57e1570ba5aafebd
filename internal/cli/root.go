package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"chain-watchdog/internal/app"
	"chain-watchdog/internal/config"
	"chain-watchdog/internal/logging"
	"chain-watchdog/internal/service"
)

// Process exit codes.
const (
	exitOK               = 0
	exitError            = 1
	exitValidationFailed = 5
	exitHalted           = 6
)

var (
	cfgFile   string
	logLevel  string
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:           "watchdog",
	Short:         "Watch chain RPC endpoints and a price oracle, pausing or halting on sustained failure",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		logger, logPath, err := logging.NewLogger(cfg.Logging)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		if logPath != "" {
			logger.Info().Str("path", logPath).Msg("writing run log")
		}
		appHandle = app.NewApp(cfg, logger)
		return nil
	},
}

// Execute runs the root command and exits with a status that reflects the outcome.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(report(os.Stderr, err))
	}
	os.Exit(exitOK)
}

// report prints err for the operator and maps it to an exit code.
func report(w io.Writer, err error) int {
	var verr *config.ValidationError
	switch {
	case errors.As(err, &verr):
		fmt.Fprintln(w, "[!] Configuration validation failed:")
		for _, e := range verr.Errors {
			fmt.Fprintf(w, "    - %s\n", e)
		}
		return exitValidationFailed
	case errors.Is(err, service.ErrHalted):
		fmt.Fprintln(w, "[!] Runtime halted; operator restart required.")
		return exitHalted
	default:
		fmt.Fprintf(w, "[!] %v\n", err)
		return exitError
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a configuration file or directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
