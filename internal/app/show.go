package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"price-alert-bot/internal/alerting"
	"price-alert-bot/internal/ledger"
)

// Show prints recent ledger rows.
func (a *App) Show(ctx context.Context, out io.Writer, opts ShowOptions) error {
	handle, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	defer handle.close()

	if handle.reader == nil {
		return fmt.Errorf("ledger backend %q cannot be listed; use postgres or sqlite", a.Config.Ledger.Backend)
	}

	rows, err := handle.reader.Recent(ctx, opts.Limit)
	if err != nil {
		return err
	}
	return renderRows(out, rows)
}

var errNoRows = errors.New("no alerts recorded")

func renderRows(out io.Writer, rows []ledger.Row) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(out, errNoRows.Error())
		return err
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Time (UTC)", "Pair", "Previous", "Current", "Change %", "Volume"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, row := range rows {
		table.Append([]string{
			row.Timestamp(),
			row.Pair,
			alerting.FormatAmount(row.Previous),
			alerting.FormatAmount(row.Current),
			alerting.FormatAmount(row.PctChange.Shift(2)),
			alerting.FormatVolume(row.Volume),
		})
	}
	table.Render()
	return nil
}
