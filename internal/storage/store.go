package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertTickSQL = `INSERT INTO watchdog_ticks (
        run_id,
        tick,
        observed_at,
        outcome,
        failure_reason,
        health_status,
        consecutive_failures,
        oracle_price,
        oracle_latency_ms,
        skew_sec,
        reconcile_status,
        chains
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    )
    ON CONFLICT (run_id, tick) DO NOTHING;`

	tickColumns = `id,
        run_id,
        tick,
        observed_at,
        outcome,
        failure_reason,
        health_status,
        consecutive_failures,
        oracle_price::text,
        oracle_latency_ms,
        skew_sec,
        reconcile_status,
        chains,
        created_at`

	listTicksBetweenSQL = `SELECT ` + tickColumns + `
    FROM watchdog_ticks
    WHERE observed_at >= $1
      AND observed_at < $2
    ORDER BY observed_at;`

	listRecentTicksSQL = `SELECT ` + tickColumns + `
    FROM watchdog_ticks
    ORDER BY observed_at DESC
    LIMIT $1;`

	countTicksSQL = `SELECT COUNT(*) FROM watchdog_ticks;`
)

// TickStore persists evaluation ticks.
type TickStore interface {
	InsertTick(ctx context.Context, rec TickRecord) error
}

// TickReader reads tick history back for reporting.
type TickReader interface {
	ListRecentTicks(ctx context.Context, limit int) ([]TickRecord, error)
	ListTicksBetween(ctx context.Context, from, to time.Time) ([]TickRecord, error)
	CountTicks(ctx context.Context) (int64, error)
}

// Store is the PostgreSQL tick history.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertTick stores one tick. Re-inserting the same run/tick is a no-op.
func (s *Store) InsertTick(ctx context.Context, rec TickRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var price interface{}
	if rec.OraclePrice.Valid {
		price = rec.OraclePrice.Decimal.String()
	}

	chains := rec.Chains
	if len(chains) == 0 {
		chains = json.RawMessage("[]")
	}

	_, execErr := pool.Exec(ctx, insertTickSQL,
		rec.RunID,
		rec.Tick,
		rec.ObservedAt,
		rec.Outcome,
		rec.FailureReason,
		rec.HealthStatus,
		rec.ConsecutiveFailures,
		price,
		rec.OracleLatencyMs,
		rec.SkewSec,
		rec.ReconcileStatus,
		[]byte(chains),
	)
	if execErr != nil {
		return fmt.Errorf("insert tick: %w", execErr)
	}
	return nil
}

// ListTicksBetween lists ticks observed within [from, to) in chronological order.
func (s *Store) ListTicksBetween(ctx context.Context, from, to time.Time) ([]TickRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listTicksBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list ticks between: %w", queryErr)
	}
	return collectTicks(rows)
}

// ListRecentTicks lists the most recent ticks, newest first.
func (s *Store) ListRecentTicks(ctx context.Context, limit int) ([]TickRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentTicksSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent ticks: %w", queryErr)
	}
	return collectTicks(rows)
}

// CountTicks counts stored ticks.
func (s *Store) CountTicks(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countTicksSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count ticks: %w", scanErr)
	}
	return count, nil
}

func collectTicks(rows pgx.Rows) ([]TickRecord, error) {
	defer rows.Close()

	ticks := make([]TickRecord, 0)
	for rows.Next() {
		rec, err := scanTick(rows)
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return ticks, nil
}

func scanTick(rows pgx.Rows) (TickRecord, error) {
	var (
		rec      TickRecord
		priceStr *string
		chains   []byte
	)

	if err := rows.Scan(
		&rec.ID,
		&rec.RunID,
		&rec.Tick,
		&rec.ObservedAt,
		&rec.Outcome,
		&rec.FailureReason,
		&rec.HealthStatus,
		&rec.ConsecutiveFailures,
		&priceStr,
		&rec.OracleLatencyMs,
		&rec.SkewSec,
		&rec.ReconcileStatus,
		&chains,
		&rec.CreatedAt,
	); err != nil {
		return TickRecord{}, err
	}

	price, err := ParseNullDecimal(priceStr)
	if err != nil {
		return TickRecord{}, fmt.Errorf("parse oracle price: %w", err)
	}
	rec.OraclePrice = price
	rec.Chains = json.RawMessage(chains)
	return rec, nil
}

// ParseNullDecimal converts an optional decimal string.
func ParseNullDecimal(s *string) (decimal.NullDecimal, error) {
	if s == nil || *s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

var (
	_ TickStore  = (*Store)(nil)
	_ TickReader = (*Store)(nil)
)
