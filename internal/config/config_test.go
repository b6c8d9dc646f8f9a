package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
market:
  pair: ETH/USDC
alerting:
  threshold: 0.002
  reset_after: 2m
retry:
  escalation_delay: 1d
notify:
  alerts:
    channel: telegram
    telegram:
      bot_token: alert-token
      chat_id: "100"
  errors:
    channel: slack
    slack:
      token: xoxb-1
      channel: C42
ledger:
  backend: sqlite
  sqlite:
    path: /tmp/ledger.db
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	require.Equal(t, "ETH/USDC", cfg.Market.Pair)
	require.Equal(t, SourceBinance, cfg.Market.Source)
	require.Equal(t, "futures", cfg.Binance.Market)
	require.Equal(t, 2*time.Minute, cfg.Alerting.ResetAfter)
	require.Equal(t, 24*time.Hour, cfg.Retry.EscalationDelay)
	require.Equal(t, 5, cfg.Retry.MaxAttempts)
	require.Equal(t, time.Second, cfg.Retry.BaseDelay)
	require.Equal(t, 30*time.Second, cfg.Scheduler.Interval)
	require.True(t, cfg.Scheduler.RunImmediately)
	require.Equal(t, "C42", cfg.Notify.Errors.Slack.Channel)
	require.Equal(t, "0.002", cfg.Threshold().String())
}

func TestLoadLegacyEnvironment(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "legacy-token")
	t.Setenv("TELEGRAM_CHAT_ID", "7")
	t.Setenv("GOOGLE_SHEET_ID", "sheet-1")
	t.Setenv("GOOGLE_WORKSHEET_NAME", "Alerts")
	t.Setenv("PRICEALERT_MARKET_PAIR", "SOL/USDC")

	cfg, err := Load(writeConfig(t, "notify:\n  errors:\n    channel: none\n"))
	require.NoError(t, err)

	require.Equal(t, "legacy-token", cfg.Notify.Alerts.Telegram.BotToken)
	require.Equal(t, "7", cfg.Notify.Alerts.Telegram.ChatID)
	require.Equal(t, LedgerSheets, cfg.Ledger.Backend)
	require.Equal(t, "sheet-1", cfg.Ledger.Sheets.SpreadsheetID)
	require.Equal(t, "Alerts", cfg.Ledger.Sheets.Worksheet)
	require.Equal(t, "SOL/USDC", cfg.Market.Pair)
}

func TestPrefixedEnvironmentWinsOverLegacy(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "legacy-token")
	t.Setenv("PRICEALERT_NOTIFY_ALERTS_TELEGRAM_BOT_TOKEN", "new-token")
	t.Setenv("TELEGRAM_CHAT_ID", "7")

	cfg, err := Load(writeConfig(t, "notify:\n  errors:\n    channel: none\nledger:\n  backend: sqlite\n"))
	require.NoError(t, err)
	require.Equal(t, "new-token", cfg.Notify.Alerts.Telegram.BotToken)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Market:    MarketConfig{Pair: "BTC/USDC", Source: SourceBinance},
			Binance:   BinanceConfig{Market: "futures"},
			Alerting:  AlertingConfig{Threshold: 0.001, ResetAfter: time.Minute},
			Retry:     RetryConfig{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Minute},
			Scheduler: SchedulerConfig{Interval: 30 * time.Second},
			Notify: NotifyConfig{
				Alerts: ChannelConfig{Channel: ChannelTelegram, Telegram: TelegramConfig{BotToken: "t", ChatID: "c"}},
			},
			Ledger: LedgerConfig{Backend: LedgerSQLite, SQLite: SQLiteConfig{Path: "x.db"}},
			State:  StateConfig{Backend: StateMemory},
		}
	}

	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Config){
		"zero threshold":      func(c *Config) { c.Alerting.Threshold = 0 },
		"unknown source":      func(c *Config) { c.Market.Source = "kraken" },
		"chainlink no rpc":    func(c *Config) { c.Market.Source = SourceChainlink },
		"spot typo":           func(c *Config) { c.Binance.Market = "margin" },
		"no attempts":         func(c *Config) { c.Retry.MaxAttempts = 0 },
		"max below base":      func(c *Config) { c.Retry.MaxDelay = time.Millisecond },
		"alerts unset":        func(c *Config) { c.Notify.Alerts.Channel = "" },
		"slack missing token": func(c *Config) { c.Notify.Errors = ChannelConfig{Channel: ChannelSlack} },
		"postgres no dsn":     func(c *Config) { c.Ledger.Backend = LedgerPostgres },
		"sheets no id":        func(c *Config) { c.Ledger.Backend = LedgerSheets },
		"unknown state":       func(c *Config) { c.State.Backend = "etcd" },
		"no cadence":          func(c *Config) { c.Scheduler.Interval = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}

	t.Run("cron without interval", func(t *testing.T) {
		cfg := valid()
		cfg.Scheduler.Interval = 0
		cfg.Scheduler.Cron = "*/30 * * * * *"
		require.NoError(t, cfg.Validate())
	})
}
