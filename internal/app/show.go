package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"chain-watchdog/internal/storage"
)

// Show prints recent ticks.
func (a *App) Show(ctx context.Context, out io.Writer, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show ticks")
	}
	if closeStore != nil {
		defer closeStore()
	}

	ticks, err := store.ListRecentTicks(ctx, opts.Limit)
	if err != nil {
		return err
	}
	return renderTicks(out, ticks)
}

func renderTicks(out io.Writer, ticks []storage.TickRecord) error {
	if len(ticks) == 0 {
		fmt.Fprintln(out, "no ticks found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tRun\tTick\tOutcome\tHealth\tFailures\tPrice\tLatency ms\tSkew s\tReason")

	for _, tick := range ticks {
		price := "-"
		if tick.OraclePrice.Valid {
			price = formatDecimal(tick.OraclePrice.Decimal, 4)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%d\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			tick.ObservedAt.UTC().Format(time.RFC3339),
			shortRunID(tick.RunID),
			tick.Tick,
			tick.Outcome,
			tick.HealthStatus,
			tick.ConsecutiveFailures,
			price,
			optionalInt(tick.OracleLatencyMs),
			optionalInt(tick.SkewSec),
			sanitizeInline(optionalString(tick.FailureReason)),
		)
	}

	return writer.Flush()
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func optionalInt(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10)
}

func optionalString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
