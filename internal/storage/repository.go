package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"price-alert-bot/internal/ledger"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createPriceAlertsSQL = `CREATE TABLE IF NOT EXISTS price_alerts (
        id          BIGSERIAL PRIMARY KEY,
        alert_ts    TIMESTAMPTZ NOT NULL,
        pair        TEXT        NOT NULL,
        prev_price  NUMERIC     NOT NULL,
        curr_price  NUMERIC     NOT NULL,
        pct_change  NUMERIC     NOT NULL,
        volume      NUMERIC     NOT NULL,
        created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	insertPriceAlertSQL = `INSERT INTO price_alerts (
        alert_ts,
        pair,
        prev_price,
        curr_price,
        pct_change,
        volume
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    );`

	listRecentPriceAlertsSQL = `SELECT
        alert_ts,
        pair,
        prev_price::text,
        curr_price::text,
        pct_change::text,
        volume::text
    FROM price_alerts
    ORDER BY id DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Store is the PostgreSQL alert ledger.
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

// EnsureSchema creates the price_alerts table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createPriceAlertsSQL); err != nil {
		return fmt.Errorf("create price_alerts: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort: the session lock also drops when the connection closes
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Append persists one alert row.
func (s *Store) Append(ctx context.Context, row ledger.Row) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertPriceAlertSQL,
		row.Time.UTC(),
		row.Pair,
		row.Previous.String(),
		row.Current.String(),
		row.PctChange.String(),
		row.Volume.String(),
	)
	if execErr != nil {
		return fmt.Errorf("insert price alert: %w", execErr)
	}
	return nil
}

// Recent lists the most recent rows, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]ledger.Row, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentPriceAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent price alerts: %w", queryErr)
	}
	defer rows.Close()

	out := make([]ledger.Row, 0, limit)
	for rows.Next() {
		row, scanErr := scanRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanRow(rows pgx.Rows) (ledger.Row, error) {
	var (
		alertTS time.Time
		pair    string
		prevStr string
		currStr string
		pctStr  string
		volStr  string
	)

	if err := rows.Scan(&alertTS, &pair, &prevStr, &currStr, &pctStr, &volStr); err != nil {
		return ledger.Row{}, err
	}

	prev, err := decimal.NewFromString(prevStr)
	if err != nil {
		return ledger.Row{}, fmt.Errorf("parse previous price: %w", err)
	}
	curr, err := decimal.NewFromString(currStr)
	if err != nil {
		return ledger.Row{}, fmt.Errorf("parse current price: %w", err)
	}
	pct, err := decimal.NewFromString(pctStr)
	if err != nil {
		return ledger.Row{}, fmt.Errorf("parse pct change: %w", err)
	}
	vol, err := decimal.NewFromString(volStr)
	if err != nil {
		return ledger.Row{}, fmt.Errorf("parse volume: %w", err)
	}

	return ledger.Row{
		Time:      alertTS.UTC(),
		Pair:      pair,
		Previous:  prev,
		Current:   curr,
		PctChange: pct,
		Volume:    vol,
	}, nil
}

var (
	_ ledger.Ledger = (*Store)(nil)
	_ ledger.Reader = (*Store)(nil)
)
