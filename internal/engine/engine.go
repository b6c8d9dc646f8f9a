// Package engine runs one price check cycle: fetch, compare, alert, retry and escalate.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-alert-bot/internal/alerting"
	"price-alert-bot/internal/fetcher"
	"price-alert-bot/internal/ledger"
	"price-alert-bot/internal/metrics"
	"price-alert-bot/internal/state"
)

// Outcome summarises one Check invocation.
type Outcome string

const (
	OutcomeAlert     Outcome = "alert"
	OutcomeQuiet     Outcome = "quiet"
	OutcomeEscalated Outcome = "escalated"
	// OutcomeSkipped is only returned when another instance holds the advisory lock.
	OutcomeSkipped Outcome = "skipped"
)

const (
	channelAlerts = "alerts"
	channelErrors = "errors"
)

// Locker serialises cycles across processes.
type Locker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error)
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// AfterFunc runs f once after d on its own goroutine.
type AfterFunc func(d time.Duration, f func())

// Options tune the engine.
type Options struct {
	Pair      string
	Threshold decimal.Decimal
	// ResetAfter is how long alert_sent_recently stays raised after an alert.
	ResetAfter      time.Duration
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	EscalationDelay time.Duration
	LockKey         int64
}

// Engine orchestrates fetching, ledger writes, and notifications.
type Engine struct {
	opts    Options
	state   *state.State
	source  fetcher.MarketDataSource
	ledger  ledger.Ledger
	alerts  alerting.Notifier
	errs    alerting.Notifier
	store   state.Store
	locker  Locker
	metrics *metrics.Metrics
	logger  zerolog.Logger

	backoff *backoff.Backoff
	sleep   SleepFunc
	after   AfterFunc
}

// Option customises an Engine.
type Option func(*Engine)

// WithSnapshotStore persists last_price after every successful fetch.
func WithSnapshotStore(store state.Store) Option {
	return func(e *Engine) { e.store = store }
}

// WithLocker enables the cross-process advisory lock when Options.LockKey is non-zero.
func WithLocker(locker Locker) Option {
	return func(e *Engine) { e.locker = locker }
}

// WithMetrics records cycle, fetch, alert and escalation metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithSleep replaces the backoff sleep.
func WithSleep(fn SleepFunc) Option {
	return func(e *Engine) { e.sleep = fn }
}

// WithAfter replaces the detached timer used for flag resets and escalations.
func WithAfter(fn AfterFunc) Option {
	return func(e *Engine) { e.after = fn }
}

// New constructs the engine. errs may be nil, in which case escalations are only logged.
func New(opts Options, st *state.State, source fetcher.MarketDataSource, led ledger.Ledger, alerts, errs alerting.Notifier, logger zerolog.Logger, options ...Option) *Engine {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 5 * time.Minute
	}
	if st == nil {
		st = state.New()
	}

	e := &Engine{
		opts:   opts,
		state:  st,
		source: source,
		ledger: led,
		alerts: alerts,
		errs:   errs,
		logger: logger.With().Str("component", "engine").Str("pair", opts.Pair).Logger(),
		backoff: &backoff.Backoff{
			Min:    opts.BaseDelay,
			Max:    opts.MaxDelay,
			Factor: 2,
		},
		sleep: sleepContext,
		after: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// State exposes the shared state owned by the engine.
func (e *Engine) State() *state.State {
	return e.state
}

// Tick adapts Check to the scheduler callback.
func (e *Engine) Tick(ctx context.Context, _ time.Time) error {
	_, err := e.Check(ctx)
	return err
}

// Check runs one full price check cycle.
func (e *Engine) Check(ctx context.Context) (Outcome, error) {
	log := e.logger.With().Str("cycle_id", uuid.NewString()).Logger()

	unlock, proceed, err := e.acquireLock(ctx)
	if err != nil {
		return "", err
	}
	if !proceed {
		log.Debug().Msg("skip cycle because advisory lock held elsewhere")
		e.metrics.ObserveCycle(string(OutcomeSkipped))
		return OutcomeSkipped, nil
	}
	if unlock != nil {
		defer unlock()
	}

	retries := 0
	var lastErr error
	for retries < e.opts.MaxAttempts {
		sample, fetchErr := e.source.Fetch(ctx, e.opts.Pair)
		if fetchErr == nil {
			outcome := e.handleSample(ctx, log, sample)
			e.metrics.ObserveCycle(string(outcome))
			return outcome, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		lastErr = fetchErr
		kind := fetcher.Classify(fetchErr)
		e.metrics.ObserveFetchFailure(kind.String())

		var wait time.Duration
		if kind == fetcher.KindRateLimited {
			wait = e.backoff.ForAttempt(float64(retries))
			retries++
		} else {
			retries++
			wait = e.backoff.ForAttempt(float64(retries))
		}

		log.Warn().Err(fetchErr).
			Str("kind", kind.String()).
			Int("attempt", retries).
			Dur("wait", wait).
			Msg("fetch failed, retrying after backoff")

		if err := e.sleep(ctx, wait); err != nil {
			return "", err
		}
	}

	e.escalate(log, retries, lastErr)
	e.metrics.ObserveCycle(string(OutcomeEscalated))
	return OutcomeEscalated, nil
}

func (e *Engine) handleSample(ctx context.Context, log zerolog.Logger, sample fetcher.PriceSample) Outcome {
	outcome := OutcomeQuiet

	at := sample.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}

	previous, ok := e.state.LastPrice()
	if ok && previous.IsPositive() {
		alert := alerting.NewAlert(at, e.opts.Pair, previous, sample.Price, sample.Volume)
		if alert.PctChange.GreaterThanOrEqual(e.opts.Threshold) {
			e.fire(ctx, log, alert)
			outcome = OutcomeAlert
		} else {
			log.Debug().
				Str("previous", previous.String()).
				Str("current", sample.Price.String()).
				Str("pct_change", alert.PctChange.String()).
				Msg("change below threshold")
		}
	}

	e.state.SetLastPrice(sample.Price)
	e.metrics.ObservePrice(sample.Price.InexactFloat64(), at)
	if e.store != nil {
		if err := e.store.Save(ctx, e.opts.Pair, sample.Price); err != nil {
			log.Error().Err(err).Msg("failed to snapshot last price")
		}
	}

	log.Info().Str("price", sample.Price.String()).Str("outcome", string(outcome)).Msg("check complete")
	return outcome
}

func (e *Engine) fire(ctx context.Context, log zerolog.Logger, alert alerting.Alert) {
	e.metrics.ObserveAlert()
	log.Info().
		Str("direction", alert.Direction()).
		Str("pct_change", alert.PctChange.String()).
		Msg("price change crossed threshold")

	if e.ledger != nil {
		if err := e.ledger.Append(ctx, ledger.RowFromAlert(alert)); err != nil {
			e.metrics.ObserveLedgerFailure()
			log.Error().Err(err).Msg("failed to append ledger row")
		}
	}

	if e.alerts != nil {
		if err := e.alerts.Send(ctx, alert.Render()); err != nil {
			e.metrics.ObserveNotifyFailure(channelAlerts)
			log.Error().Err(err).Msg("failed to dispatch alert")
		}
	}

	e.state.MarkAlertSent()
	e.after(e.opts.ResetAfter, e.state.ClearAlertSent)
}

// escalate schedules the error report. The flag is checked when the timer fires; nothing cancels it.
func (e *Engine) escalate(log zerolog.Logger, attempts int, cause error) {
	detail := "no error recorded"
	if cause != nil {
		detail = cause.Error()
	}
	log.Error().Err(cause).Int("attempts", attempts).Dur("delay", e.opts.EscalationDelay).Msg("retries exhausted, escalation scheduled")

	text := alerting.ErrorReport(e.opts.Pair, attempts, detail)
	e.after(e.opts.EscalationDelay, func() {
		if e.state.AlertSentRecently() {
			e.metrics.ObserveEscalation(false)
			log.Info().Msg("escalation suppressed, alert sent recently")
			return
		}
		e.metrics.ObserveEscalation(true)
		if e.errs == nil {
			log.Warn().Msg("no error channel configured, escalation dropped")
			return
		}
		if err := e.errs.Send(context.Background(), text); err != nil {
			e.metrics.ObserveNotifyFailure(channelErrors)
			log.Error().Err(err).Msg("failed to send error report")
		}
	})
}

func (e *Engine) acquireLock(ctx context.Context) (func(), bool, error) {
	if e.opts.LockKey == 0 || e.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := e.locker.TryAdvisoryLock(ctx, e.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ErrNoPrice is returned by Restore when the snapshot store holds nothing for the pair.
var ErrNoPrice = errors.New("engine: no snapshot for pair")

// Restore seeds last_price from the snapshot store.
func (e *Engine) Restore(ctx context.Context) (decimal.Decimal, error) {
	if e.store == nil {
		return decimal.Zero, ErrNoPrice
	}
	price, err := e.store.Load(ctx, e.opts.Pair)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load last price: %w", err)
	}
	if !price.Valid {
		return decimal.Zero, ErrNoPrice
	}
	e.state.SetLastPrice(price.Decimal)
	return price.Decimal, nil
}
