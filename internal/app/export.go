package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"chain-watchdog/internal/storage"
)

// Export renders tick history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Runtime.EvaluationInterval())
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	ticks, err := store.ListTicksBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(ticks) == 0 {
		a.Logger.Info().Msg("no ticks found for export window")
		return nil
	}

	downsampled := downsampleTicks(ticks, opts.MaxPoints)
	a.Logger.Info().Int("total", len(ticks)).Int("exported", len(downsampled)).Msg("exporting ticks")

	if opts.CSVPath != "" {
		if err := writeTicksCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeTicksPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleTicks(ticks []storage.TickRecord, max int) []storage.TickRecord {
	if max <= 0 || len(ticks) <= max {
		return ticks
	}
	if max == 1 {
		return ticks[len(ticks)-1:]
	}

	result := make([]storage.TickRecord, 0, max)
	step := float64(len(ticks)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(ticks) {
			idx = len(ticks) - 1
		}
		result = append(result, ticks[idx])
	}
	return result
}

func writeTicksCSV(path string, ticks []storage.TickRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"observed_at", "run_id", "tick", "outcome", "health_status", "consecutive_failures", "oracle_price", "oracle_latency_ms", "skew_sec", "reconcile_status", "failure_reason"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, tick := range ticks {
		price := ""
		if tick.OraclePrice.Valid {
			price = tick.OraclePrice.Decimal.String()
		}
		record := []string{
			tick.ObservedAt.UTC().Format(time.RFC3339),
			tick.RunID,
			strconv.FormatInt(tick.Tick, 10),
			tick.Outcome,
			tick.HealthStatus,
			strconv.Itoa(tick.ConsecutiveFailures),
			price,
			csvInt(tick.OracleLatencyMs),
			csvInt(tick.SkewSec),
			optionalString(tick.ReconcileStatus),
			optionalString(tick.FailureReason),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func csvInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func writeTicksPNG(path string, ticks []storage.TickRecord) error {
	var (
		priceX []time.Time
		price  []float64
		skewX  []time.Time
		skew   []float64
	)
	for _, tick := range ticks {
		if tick.OraclePrice.Valid {
			priceX = append(priceX, tick.ObservedAt)
			price = append(price, tick.OraclePrice.Decimal.InexactFloat64())
		}
		if tick.SkewSec != nil {
			skewX = append(skewX, tick.ObservedAt)
			skew = append(skew, float64(*tick.SkewSec))
		}
	}

	series := make([]chart.Series, 0, 2)
	if len(price) > 0 {
		series = append(series, chart.TimeSeries{
			Name:    "Oracle price",
			XValues: priceX,
			YValues: price,
		})
	}
	if len(skew) > 0 {
		series = append(series, chart.TimeSeries{
			Name:    "Skew (s)",
			XValues: skewX,
			YValues: skew,
			YAxis:   chart.YAxisSecondary,
		})
	}
	if len(series) == 0 {
		return errors.New("no price or skew data to plot")
	}

	if err := ensureDir(path); err != nil {
		return err
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Skew (s)",
			ValueFormatter: priceFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
