package alerting

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNewAlertIncrease(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	alert := NewAlert(at, "BTC/USDC", dec("100"), dec("100.2"), dec("512345678.9"))

	require.True(t, alert.PctChange.Equal(dec("0.002")))
	require.Equal(t, DirectionIncreased, alert.Direction())

	want := "Time: 2024/05/01 12:00:00\n" +
		"<b>BTC/USDC</b> Price <b>⬆️increased</b> by\n" +
		"<b>0.20%</b>\n" +
		"Trading Volume: <u>512.35M</u>\n\n" +
		"Previous Price: 100.00\n" +
		"Current Price: <b>100.20</b>"
	require.Equal(t, want, alert.Render())
}

func TestNewAlertDecrease(t *testing.T) {
	alert := NewAlert(time.Now(), "BTC/USDC", dec("64000"), dec("63000"), dec("999999.99"))

	require.Equal(t, DirectionDecreased, alert.Direction())
	require.True(t, alert.PctChange.Equal(dec("0.015625")))

	rendered := alert.Render()
	require.Contains(t, rendered, "🔻decreased")
	require.Contains(t, rendered, "<b>1.56%</b>")
	require.Contains(t, rendered, "Trading Volume: <u>999,999.99</u>")
	require.Contains(t, rendered, "Previous Price: 64,000.00")
	require.Contains(t, rendered, "Current Price: <b>63,000.00</b>")
}

func TestFormatting(t *testing.T) {
	require.Equal(t, "1,234.50", FormatAmount(dec("1234.5")))
	require.Equal(t, "0.00", FormatAmount(decimal.Zero))
	require.Equal(t, "1.00M", FormatVolume(dec("1000000")))
	require.Equal(t, "1,500.25M", FormatVolume(dec("1500250000")))
	require.Equal(t, "12.00", FormatVolume(dec("12")))
}

func TestErrorReportEscapesDetail(t *testing.T) {
	msg := ErrorReport("BTC/USDC", 5, `network error: dial tcp: <nil> & "x"`)
	require.Contains(t, msg, "failed after 5 attempts")
	require.Contains(t, msg, "&lt;nil&gt; &amp;")
	require.NotContains(t, msg, "<nil>")
}
