package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsOptions identify the spreadsheet ledger.
type SheetsOptions struct {
	SpreadsheetID   string
	Worksheet       string
	CredentialsFile string
}

// Sheets appends rows to a Google Sheets worksheet.
type Sheets struct {
	opts    SheetsOptions
	service *sheets.Service
	logger  zerolog.Logger
}

// NewSheets authorises with a service-account key file. Extra client options replace
// the key file when given (tests point the client at a fake endpoint).
func NewSheets(ctx context.Context, opts SheetsOptions, logger zerolog.Logger, extra ...option.ClientOption) (*Sheets, error) {
	if opts.SpreadsheetID == "" || opts.Worksheet == "" {
		return nil, errors.New("spreadsheet id and worksheet are required")
	}

	clientOpts := extra
	if len(clientOpts) == 0 {
		clientOpts = []option.ClientOption{
			option.WithCredentialsFile(opts.CredentialsFile),
			option.WithScopes(sheets.SpreadsheetsScope),
		}
	}

	service, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Sheets{
		opts:    opts,
		service: service,
		logger:  logger.With().Str("component", "ledger_sheets").Str("worksheet", opts.Worksheet).Logger(),
	}, nil
}

// Append adds row below the last filled row of the worksheet.
func (s *Sheets) Append(ctx context.Context, row Row) error {
	values := &sheets.ValueRange{Values: [][]interface{}{row.Values()}}

	resp, err := s.service.Spreadsheets.Values.
		Append(s.opts.SpreadsheetID, s.opts.Worksheet, values).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append sheet row: %w", err)
	}

	updated := ""
	if resp.Updates != nil {
		updated = resp.Updates.UpdatedRange
	}
	s.logger.Debug().Str("range", updated).Msg("row appended")
	return nil
}

var _ Ledger = (*Sheets)(nil)
