package alerting

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// TimeLayout is shared by alert messages and ledger rows.
const TimeLayout = "2006/01/02 15:04:05"

const (
	DirectionIncreased = "increased"
	DirectionDecreased = "decreased"
)

var (
	million = decimal.NewFromInt(1_000_000)
	hundred = decimal.NewFromInt(100)
	printer = message.NewPrinter(language.English)
)

// Alert 描述一次价格变动告警。
type Alert struct {
	Time      time.Time
	Pair      string
	Previous  decimal.Decimal
	Current   decimal.Decimal
	PctChange decimal.Decimal
	Volume    decimal.Decimal
}

// NewAlert derives the relative change between previous and current.
// previous must be positive.
func NewAlert(at time.Time, pair string, previous, current, volume decimal.Decimal) Alert {
	return Alert{
		Time:      at,
		Pair:      pair,
		Previous:  previous,
		Current:   current,
		PctChange: current.Sub(previous).Abs().Div(previous),
		Volume:    volume,
	}
}

// Direction is "increased" when the price went up, otherwise "decreased".
func (a Alert) Direction() string {
	if a.Current.GreaterThan(a.Previous) {
		return DirectionIncreased
	}
	return DirectionDecreased
}

// Render builds the HTML-flavoured chat message.
func (a Alert) Render() string {
	arrow := "🔻"
	if a.Direction() == DirectionIncreased {
		arrow = "⬆️"
	}

	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("Time: %s\n", a.Time.UTC().Format(TimeLayout)))
	builder.WriteString(fmt.Sprintf("<b>%s</b> Price <b>%s%s</b> by\n", html.EscapeString(a.Pair), arrow, a.Direction()))
	builder.WriteString(fmt.Sprintf("<b>%s%%</b>\n", FormatAmount(a.PctChange.Mul(hundred))))
	builder.WriteString(fmt.Sprintf("Trading Volume: <u>%s</u>\n\n", FormatVolume(a.Volume)))
	builder.WriteString(fmt.Sprintf("Previous Price: %s\n", FormatAmount(a.Previous)))
	builder.WriteString(fmt.Sprintf("Current Price: <b>%s</b>", FormatAmount(a.Current)))
	return builder.String()
}

// FormatAmount renders d with thousands separators and two decimals.
func FormatAmount(d decimal.Decimal) string {
	return printer.Sprintf("%.2f", d.Round(2).InexactFloat64())
}

// FormatVolume abbreviates volumes of a million or more ("512.35M").
func FormatVolume(v decimal.Decimal) string {
	if v.GreaterThanOrEqual(million) {
		return FormatAmount(v.Div(million).Round(2)) + "M"
	}
	return FormatAmount(v)
}

// ErrorReport renders an escalation message; detail is escaped for HTML parse mode.
func ErrorReport(pair string, attempts int, detail string) string {
	return fmt.Sprintf("PriceAlertBot - <b>%s</b> price check failed after %d attempts\n%s",
		html.EscapeString(pair), attempts, html.EscapeString(detail))
}
