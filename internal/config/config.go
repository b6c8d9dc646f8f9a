package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/xhit/go-str2duration/v2"

	"price-alert-bot/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Market    MarketConfig    `mapstructure:"market"`
	Binance   BinanceConfig   `mapstructure:"binance"`
	Chainlink ChainlinkConfig `mapstructure:"chainlink"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	State     StateConfig     `mapstructure:"state"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// MarketConfig selects the watched pair and where its price comes from.
type MarketConfig struct {
	Pair   string `mapstructure:"pair"`
	Source string `mapstructure:"source"`
}

// BinanceConfig covers the exchange REST client.
type BinanceConfig struct {
	Market         string        `mapstructure:"market"`
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ChainlinkConfig covers on-chain price feed access.
type ChainlinkConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	FeedAddress    string        `mapstructure:"feed_address"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AlertingConfig defines the change threshold and the post-alert quiet window.
type AlertingConfig struct {
	// Threshold is a fraction: 0.001 means 0.1%.
	Threshold  float64       `mapstructure:"threshold"`
	ResetAfter time.Duration `mapstructure:"reset_after"`
}

// RetryConfig governs the per-cycle retry budget.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	BaseDelay       time.Duration `mapstructure:"base_delay"`
	MaxDelay        time.Duration `mapstructure:"max_delay"`
	EscalationDelay time.Duration `mapstructure:"escalation_delay"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	RunImmediately  bool          `mapstructure:"run_immediately"`
	Cron            string        `mapstructure:"cron"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// NotifyConfig holds the two independent outbound channels.
type NotifyConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Alerts  ChannelConfig `mapstructure:"alerts"`
	Errors  ChannelConfig `mapstructure:"errors"`
}

// ChannelConfig describes one notification destination.
type ChannelConfig struct {
	Channel  string         `mapstructure:"channel"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Slack    SlackConfig    `mapstructure:"slack"`
}

// TelegramConfig 描述 Telegram 推送参数。
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// SlackConfig describes a Slack bot destination.
type SlackConfig struct {
	Token   string `mapstructure:"token"`
	Channel string `mapstructure:"channel"`
	APIURL  string `mapstructure:"api_url"`
}

// LedgerConfig selects where alert rows are appended.
type LedgerConfig struct {
	Backend string       `mapstructure:"backend"`
	Sheets  SheetsConfig `mapstructure:"sheets"`
	SQLite  SQLiteConfig `mapstructure:"sqlite"`
}

// SheetsConfig identifies the Google spreadsheet ledger.
type SheetsConfig struct {
	SpreadsheetID   string `mapstructure:"spreadsheet_id"`
	Worksheet       string `mapstructure:"worksheet"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// SQLiteConfig locates the local ledger file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// StateConfig selects where the last observed price survives restarts.
type StateConfig struct {
	Backend string       `mapstructure:"backend"`
	BuntDB  BuntDBConfig `mapstructure:"buntdb"`
	Redis   RedisConfig  `mapstructure:"redis"`
}

// BuntDBConfig locates the embedded snapshot file.
type BuntDBConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig covers the shared snapshot store.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

const (
	SourceBinance   = "binance"
	SourceChainlink = "chainlink"

	ChannelTelegram = "telegram"
	ChannelSlack    = "slack"
	ChannelNone     = "none"

	LedgerSheets   = "sheets"
	LedgerPostgres = "postgres"
	LedgerSQLite   = "sqlite"

	StateMemory = "memory"
	StateBuntDB = "buntdb"
	StateRedis  = "redis"
)

// legacyEnv keeps the environment names of the original .env layout working.
var legacyEnv = map[string]string{
	"notify.alerts.telegram.bot_token": "TELEGRAM_BOT_TOKEN",
	"notify.alerts.telegram.chat_id":   "TELEGRAM_CHAT_ID",
	"notify.errors.telegram.bot_token": "ERROR_REPORT_BOT_TOKEN",
	"notify.errors.telegram.chat_id":   "ERROR_REPORT_CHAT_ID",
	"ledger.sheets.spreadsheet_id":     "GOOGLE_SHEET_ID",
	"ledger.sheets.worksheet":          "GOOGLE_WORKSHEET_NAME",
}

const envPrefix = "PRICEALERT"

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func bindLegacyEnv(v *viper.Viper) error {
	for key, legacy := range legacyEnv {
		primary := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, primary, legacy); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pricealert")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("market.pair", "BTC/USDC")
	v.SetDefault("market.source", SourceBinance)

	v.SetDefault("binance.market", "futures")
	v.SetDefault("binance.base_url", "")
	v.SetDefault("binance.request_timeout", "10s")

	v.SetDefault("chainlink.rpc_url", "")
	v.SetDefault("chainlink.feed_address", "")
	v.SetDefault("chainlink.request_timeout", "10s")

	v.SetDefault("alerting.threshold", 0.001)
	v.SetDefault("alerting.reset_after", "60s")

	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.max_delay", "5m")
	v.SetDefault("retry.escalation_delay", "10s")

	v.SetDefault("scheduler.interval", "30s")
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.run_immediately", true)
	v.SetDefault("scheduler.cron", "")
	v.SetDefault("scheduler.advisory_lock_key", int64(0))

	v.SetDefault("notify.timeout", "10s")
	v.SetDefault("notify.alerts.channel", ChannelTelegram)
	v.SetDefault("notify.alerts.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("notify.errors.channel", ChannelTelegram)
	v.SetDefault("notify.errors.telegram.api_base", "https://api.telegram.org")
	for _, ch := range []string{"alerts", "errors"} {
		v.SetDefault("notify."+ch+".slack.token", "")
		v.SetDefault("notify."+ch+".slack.channel", "")
		v.SetDefault("notify."+ch+".slack.api_url", "")
	}

	v.SetDefault("ledger.backend", LedgerSheets)
	v.SetDefault("ledger.sheets.credentials_file", "credentials.json")
	v.SetDefault("ledger.sqlite.path", "pricealert.db")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("state.backend", StateMemory)
	v.SetDefault("state.buntdb.path", "pricealert-state.db")
	v.SetDefault("state.redis.addr", "localhost:6379")
	v.SetDefault("state.redis.password", "")
	v.SetDefault("state.redis.db", 0)
	v.SetDefault("state.redis.key_prefix", "pricealert:")

	v.SetDefault("metrics.listen", "")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			stringToDurationHook(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// stringToDurationHook accepts Go durations plus day and week units ("1d12h", "2w").
func stringToDurationHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return time.Duration(0), nil
		}
		return str2duration.ParseDuration(raw)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Market.Pair) == "" {
		return errors.New("market.pair is required")
	}
	if !lo.Contains([]string{SourceBinance, SourceChainlink}, c.Market.Source) {
		return fmt.Errorf("market.source %q is not supported", c.Market.Source)
	}
	switch c.Market.Source {
	case SourceBinance:
		if !lo.Contains([]string{"futures", "spot"}, c.Binance.Market) {
			return fmt.Errorf("binance.market %q must be futures or spot", c.Binance.Market)
		}
	case SourceChainlink:
		if c.Chainlink.RPCURL == "" || c.Chainlink.FeedAddress == "" {
			return errors.New("chainlink.rpc_url and chainlink.feed_address are required")
		}
	}

	if c.Alerting.Threshold <= 0 {
		return errors.New("alerting.threshold must be greater than zero")
	}
	if c.Alerting.ResetAfter <= 0 {
		return errors.New("alerting.reset_after must be greater than zero")
	}

	if c.Retry.MaxAttempts <= 0 {
		return errors.New("retry.max_attempts must be greater than zero")
	}
	if c.Retry.BaseDelay <= 0 {
		return errors.New("retry.base_delay must be greater than zero")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return errors.New("retry.max_delay cannot be below retry.base_delay")
	}
	if c.Retry.EscalationDelay < 0 {
		return errors.New("retry.escalation_delay cannot be negative")
	}

	if c.Scheduler.Interval <= 0 && c.Scheduler.Cron == "" {
		return errors.New("scheduler.interval must be greater than zero")
	}

	if err := c.Notify.Alerts.validate("notify.alerts", false); err != nil {
		return err
	}
	if err := c.Notify.Errors.validate("notify.errors", true); err != nil {
		return err
	}

	switch c.Ledger.Backend {
	case LedgerSheets:
		if c.Ledger.Sheets.SpreadsheetID == "" || c.Ledger.Sheets.Worksheet == "" {
			return errors.New("ledger.sheets.spreadsheet_id and ledger.sheets.worksheet are required")
		}
	case LedgerPostgres:
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for the postgres ledger")
		}
	case LedgerSQLite:
		if c.Ledger.SQLite.Path == "" {
			return errors.New("ledger.sqlite.path is required")
		}
	default:
		return fmt.Errorf("ledger.backend %q is not supported", c.Ledger.Backend)
	}

	if !lo.Contains([]string{StateMemory, StateBuntDB, StateRedis}, c.State.Backend) {
		return fmt.Errorf("state.backend %q is not supported", c.State.Backend)
	}
	return nil
}

func (ch ChannelConfig) validate(prefix string, optional bool) error {
	switch ch.Channel {
	case ChannelTelegram:
		if ch.Telegram.BotToken == "" {
			return fmt.Errorf("%s.telegram.bot_token 必须配置", prefix)
		}
		if ch.Telegram.ChatID == "" {
			return fmt.Errorf("%s.telegram.chat_id 必须配置", prefix)
		}
	case ChannelSlack:
		if ch.Slack.Token == "" || ch.Slack.Channel == "" {
			return fmt.Errorf("%s.slack.token and %s.slack.channel are required", prefix, prefix)
		}
	case ChannelNone, "":
		if !optional {
			return fmt.Errorf("%s.channel must be configured", prefix)
		}
	default:
		return fmt.Errorf("%s.channel %q is not supported", prefix, ch.Channel)
	}
	return nil
}

// Threshold returns the alert threshold as a decimal fraction.
func (c *Config) Threshold() decimal.Decimal {
	return decimal.NewFromFloat(c.Alerting.Threshold)
}
