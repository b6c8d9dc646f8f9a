package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"price-alert-bot/internal/alerting"
)

func sampleRow(at time.Time, current string) Row {
	alert := alerting.NewAlert(at, "BTC/USDC",
		decimal.RequireFromString("100"),
		decimal.RequireFromString(current),
		decimal.RequireFromString("2500000"))
	return RowFromAlert(alert)
}

func TestRowValues(t *testing.T) {
	row := sampleRow(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), "100.2")
	require.Equal(t, []interface{}{"2024/05/01 12:00:00", "BTC/USDC", 100.0, 100.2, 0.002, 2500000.0}, row.Values())
}

func TestSheetsAppend(t *testing.T) {
	var (
		path string
		body struct {
			Values [][]interface{} `json:"values"`
		}
		query string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		query = r.URL.RawQuery
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"spreadsheetId": "sheet-1",
			"updates":       map[string]any{"updatedRange": "Alerts!A2:F2"},
		})
	}))
	defer srv.Close()

	ctx := context.Background()
	ledger, err := NewSheets(ctx, SheetsOptions{SpreadsheetID: "sheet-1", Worksheet: "Alerts"}, zerolog.Nop(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)

	row := sampleRow(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), "100.2")
	require.NoError(t, ledger.Append(ctx, row))

	require.Contains(t, path, "/spreadsheets/sheet-1/values/")
	require.True(t, strings.HasSuffix(path, ":append"), path)
	require.Contains(t, query, "valueInputOption=USER_ENTERED")
	require.Len(t, body.Values, 1)
	require.Equal(t, "2024/05/01 12:00:00", body.Values[0][0])
	require.Equal(t, "BTC/USDC", body.Values[0][1])
	require.Equal(t, 100.2, body.Values[0][3])
}

func TestSheetsRequiresIdentity(t *testing.T) {
	_, err := NewSheets(context.Background(), SheetsOptions{Worksheet: "Alerts"}, zerolog.Nop())
	require.Error(t, err)
}

func TestSQLiteAppendAndRecent(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer db.Close()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.Append(ctx, sampleRow(base, "100.2")))
	require.NoError(t, db.Append(ctx, sampleRow(base.Add(30*time.Second), "99.5")))

	rows, err := db.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.True(t, rows[0].Time.Equal(base.Add(30*time.Second)))
	require.Equal(t, "99.5", rows[0].Current.String())
	require.Equal(t, "0.005", rows[0].PctChange.String())
	require.True(t, rows[1].Time.Equal(base))

	limited, err := db.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}
