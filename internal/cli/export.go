package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"chain-watchdog/internal/app"
)

var (
	exportFrom      string
	exportTo        string
	exportLast      time.Duration
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export tick history as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to, err := exportWindow(exportFrom, exportTo, exportLast, time.Now())
		if err != nil {
			return err
		}

		opts := app.ExportOptions{
			From:      from,
			To:        to,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}
		return getApp().Export(cmd.Context(), opts)
	},
}

// exportWindow resolves the export flags. A nil bound falls back to the
// default window derived from config.
func exportWindow(fromFlag, toFlag string, last time.Duration, now time.Time) (*time.Time, *time.Time, error) {
	if last < 0 {
		return nil, nil, errors.New("--last cannot be negative")
	}
	if last > 0 && fromFlag != "" {
		return nil, nil, errors.New("--last and --from are mutually exclusive")
	}

	var from, to *time.Time
	if toFlag != "" {
		parsed, err := time.Parse(time.RFC3339, toFlag)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --to value: %w", err)
		}
		to = &parsed
	}
	if fromFlag != "" {
		parsed, err := time.Parse(time.RFC3339, fromFlag)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --from value: %w", err)
		}
		from = &parsed
	}
	if last > 0 {
		end := now
		if to != nil {
			end = *to
		}
		start := end.Add(-last)
		from = &start
	}
	return from, to, nil
}

func init() {
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Start timestamp (RFC3339, inclusive)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "End timestamp (RFC3339, exclusive)")
	exportCmd.Flags().DurationVar(&exportLast, "last", 0, "Export this much history before --to or now, e.g. 6h")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum ticks to export (defaults to export.max_data_points)")
}
