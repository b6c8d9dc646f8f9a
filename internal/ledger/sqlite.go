package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const (
	createSQLiteTableSQL = `CREATE TABLE IF NOT EXISTS price_alerts (
        id          INTEGER PRIMARY KEY AUTOINCREMENT,
        alert_ts    TEXT NOT NULL,
        pair        TEXT NOT NULL,
        prev_price  TEXT NOT NULL,
        curr_price  TEXT NOT NULL,
        pct_change  TEXT NOT NULL,
        volume      TEXT NOT NULL,
        created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
    );`

	insertSQLiteRowSQL = `INSERT INTO price_alerts (alert_ts, pair, prev_price, curr_price, pct_change, volume)
    VALUES (?, ?, ?, ?, ?, ?);`

	recentSQLiteRowsSQL = `SELECT alert_ts, pair, prev_price, curr_price, pct_change, volume
    FROM price_alerts
    ORDER BY id DESC
    LIMIT ?;`
)

// SQLite stores rows in a local database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the ledger file and its table.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, createSQLiteTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create price_alerts table: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Append inserts row.
func (s *SQLite) Append(ctx context.Context, row Row) error {
	_, err := s.db.ExecContext(ctx, insertSQLiteRowSQL,
		row.Time.UTC().Format(time.RFC3339),
		row.Pair,
		row.Previous.String(),
		row.Current.String(),
		row.PctChange.String(),
		row.Volume.String(),
	)
	if err != nil {
		return fmt.Errorf("insert price alert: %w", err)
	}
	return nil
}

// Recent lists up to limit rows, newest first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, recentSQLiteRowsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list price alerts: %w", err)
	}
	defer rows.Close()

	out := make([]Row, 0, limit)
	for rows.Next() {
		var ts, pair, prev, curr, pct, vol string
		if err := rows.Scan(&ts, &pair, &prev, &curr, &pct, &vol); err != nil {
			return nil, err
		}
		row, err := parseRow(ts, pair, prev, curr, pct, vol)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func parseRow(ts, pair, prev, curr, pct, vol string) (Row, error) {
	at, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return Row{}, fmt.Errorf("parse alert time %q: %w", ts, err)
	}
	nums := make([]decimal.Decimal, 4)
	for i, raw := range []string{prev, curr, pct, vol} {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return Row{}, fmt.Errorf("parse ledger number %q: %w", raw, err)
		}
		nums[i] = d
	}
	return Row{Time: at, Pair: pair, Previous: nums[0], Current: nums[1], PctChange: nums[2], Volume: nums[3]}, nil
}

var (
	_ Ledger = (*SQLite)(nil)
	_ Reader = (*SQLite)(nil)
)
