package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"price-alert-bot/internal/alerting"
	"price-alert-bot/internal/config"
	"price-alert-bot/internal/engine"
	"price-alert-bot/internal/fetcher"
	"price-alert-bot/internal/ledger"
	"price-alert-bot/internal/metrics"
	"price-alert-bot/internal/scheduler"
	"price-alert-bot/internal/state"
	"price-alert-bot/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newSource() fetcher.MarketDataSource {
	if a.Config.Market.Source == config.SourceChainlink {
		return fetcher.NewChainlink(fetcher.ChainlinkOptions{
			RPCURL:      a.Config.Chainlink.RPCURL,
			FeedAddress: a.Config.Chainlink.FeedAddress,
			Timeout:     a.Config.Chainlink.RequestTimeout,
		}, a.Logger)
	}

	return fetcher.NewBinance(fetcher.BinanceOptions{
		Market:  a.Config.Binance.Market,
		BaseURL: a.Config.Binance.BaseURL,
		Timeout: a.Config.Binance.RequestTimeout,
	}, a.Logger)
}

// newNotifier returns nil when the channel is disabled.
func (a *App) newNotifier(name string, ch config.ChannelConfig) alerting.Notifier {
	switch ch.Channel {
	case config.ChannelTelegram:
		return alerting.NewTelegramNotifier(name, ch.Telegram.BotToken, ch.Telegram.ChatID, ch.Telegram.APIBase, a.Config.Notify.Timeout, a.Logger)
	case config.ChannelSlack:
		return alerting.NewSlackNotifier(name, ch.Slack.Token, ch.Slack.Channel, ch.Slack.APIURL, a.Logger)
	default:
		return nil
	}
}

// ledgerHandle bundles the configured ledger with its optional reader and locker.
type ledgerHandle struct {
	ledger ledger.Ledger
	reader ledger.Reader
	locker engine.Locker
	close  func()
}

func (a *App) openLedger(ctx context.Context) (*ledgerHandle, error) {
	switch a.Config.Ledger.Backend {
	case config.LedgerPostgres:
		pool, err := storage.NewPool(ctx, a.Config.Database)
		if err != nil {
			return nil, err
		}
		store := storage.NewStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return &ledgerHandle{ledger: store, reader: store, locker: store, close: store.Close}, nil

	case config.LedgerSQLite:
		db, err := ledger.OpenSQLite(ctx, a.Config.Ledger.SQLite.Path)
		if err != nil {
			return nil, err
		}
		closer := func() {
			if err := db.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("close sqlite ledger")
			}
		}
		return &ledgerHandle{ledger: db, reader: db, close: closer}, nil

	default:
		cfg := a.Config.Ledger.Sheets
		sheet, err := ledger.NewSheets(ctx, ledger.SheetsOptions{
			SpreadsheetID:   cfg.SpreadsheetID,
			Worksheet:       cfg.Worksheet,
			CredentialsFile: cfg.CredentialsFile,
		}, a.Logger)
		if err != nil {
			return nil, err
		}
		return &ledgerHandle{ledger: sheet, close: func() {}}, nil
	}
}

func (a *App) openStateStore(ctx context.Context) (state.Store, error) {
	switch a.Config.State.Backend {
	case config.StateBuntDB:
		return state.NewBuntStore(a.Config.State.BuntDB.Path)
	case config.StateRedis:
		cfg := a.Config.State.Redis
		return state.NewRedisStore(ctx, state.RedisOptions{
			Addr:      cfg.Addr,
			Password:  cfg.Password,
			DB:        cfg.DB,
			KeyPrefix: cfg.KeyPrefix,
		})
	default:
		return nil, nil
	}
}

func (a *App) engineOptions() engine.Options {
	return engine.Options{
		Pair:            a.Config.Market.Pair,
		Threshold:       a.Config.Threshold(),
		ResetAfter:      a.Config.Alerting.ResetAfter,
		MaxAttempts:     a.Config.Retry.MaxAttempts,
		BaseDelay:       a.Config.Retry.BaseDelay,
		MaxDelay:        a.Config.Retry.MaxDelay,
		EscalationDelay: a.Config.Retry.EscalationDelay,
		LockKey:         a.Config.Scheduler.AdvisoryLockKey,
	}
}

// Run executes the long-running polling service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	handle, err := a.openLedger(ctx)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer handle.close()

	store, err := a.openStateStore(ctx)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("close state store")
			}
		}()
	}

	sched, err := scheduler.New(scheduler.Options{
		Interval:       a.Config.Scheduler.Interval,
		AlignToStart:   a.Config.Scheduler.AlignToBucket,
		StartupDelay:   a.Config.Scheduler.StartupDelay,
		RunImmediately: a.Config.Scheduler.RunImmediately,
		Cron:           a.Config.Scheduler.Cron,
	}, a.Logger)
	if err != nil {
		return err
	}

	m := metrics.New(nil)
	if a.Config.Metrics.Listen != "" {
		go func() {
			if err := m.Serve(ctx, a.Config.Metrics.Listen, a.Logger); err != nil {
				a.Logger.Error().Err(err).Msg("metrics endpoint stopped")
			}
		}()
	}

	errs := a.newNotifier("errors", a.Config.Notify.Errors)
	if errs == nil {
		a.Logger.Warn().Msg("error channel disabled; escalations will only be logged")
	}

	options := []engine.Option{engine.WithMetrics(m)}
	if store != nil {
		options = append(options, engine.WithSnapshotStore(store))
	}
	if handle.locker != nil {
		options = append(options, engine.WithLocker(handle.locker))
	}

	eng := engine.New(a.engineOptions(), state.New(), a.newSource(), handle.ledger,
		a.newNotifier("alerts", a.Config.Notify.Alerts), errs, a.Logger, options...)

	if price, err := eng.Restore(ctx); err == nil {
		a.Logger.Info().Str("last_price", price.String()).Msg("restored last price from snapshot")
	} else if !errors.Is(err, engine.ErrNoPrice) {
		a.Logger.Warn().Err(err).Msg("snapshot restore failed; starting without baseline")
	}

	a.Logger.Info().
		Str("pair", a.Config.Market.Pair).
		Str("source", a.Config.Market.Source).
		Str("ledger", a.Config.Ledger.Backend).
		Msg("starting price alert service")

	err = sched.Run(ctx, eng.Tick)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("price alert service stopped")
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
