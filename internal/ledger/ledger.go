package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"price-alert-bot/internal/alerting"
)

// Row is one alert entry: [timestamp, pair, previous, current, pct_change, volume].
type Row struct {
	Time      time.Time
	Pair      string
	Previous  decimal.Decimal
	Current   decimal.Decimal
	PctChange decimal.Decimal
	Volume    decimal.Decimal
}

// RowFromAlert copies the alert fields into ledger order.
func RowFromAlert(a alerting.Alert) Row {
	return Row{
		Time:      a.Time,
		Pair:      a.Pair,
		Previous:  a.Previous,
		Current:   a.Current,
		PctChange: a.PctChange,
		Volume:    a.Volume,
	}
}

// Timestamp formats Time the way rows are written.
func (r Row) Timestamp() string {
	return r.Time.UTC().Format(alerting.TimeLayout)
}

// Values returns the positional cells; numbers stay numeric so spreadsheets can sort them.
func (r Row) Values() []interface{} {
	return []interface{}{
		r.Timestamp(),
		r.Pair,
		r.Previous.InexactFloat64(),
		r.Current.InexactFloat64(),
		r.PctChange.InexactFloat64(),
		r.Volume.InexactFloat64(),
	}
}

// Ledger appends alert rows to a durable sink.
type Ledger interface {
	Append(ctx context.Context, row Row) error
}

// Reader lists the most recent rows, newest first.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]Row, error)
}
