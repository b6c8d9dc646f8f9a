// Package metrics exposes Prometheus instruments for the check loop.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "pricealert"

// Metrics groups every instrument the engine updates. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	cycles              *prometheus.CounterVec
	fetchFailures       *prometheus.CounterVec
	alerts              prometheus.Counter
	escalationsSent     prometheus.Counter
	escalationsSkipped  prometheus.Counter
	ledgerFailures      prometheus.Counter
	notifyFailures      *prometheus.CounterVec
	lastPrice           prometheus.Gauge
	lastSuccessUnixSecs prometheus.Gauge
}

// New registers all instruments on reg. A nil reg gets a fresh registry with Go runtime collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		registry: reg,
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "check_cycles_total",
			Help:      "Check cycles by outcome.",
		}, []string{"outcome"}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Failed price fetches by error kind.",
		}, []string{"kind"}),
		alerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Threshold crossings that produced an alert.",
		}),
		escalationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_sent_total",
			Help:      "Error reports delivered after exhausted retries.",
		}),
		escalationsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_suppressed_total",
			Help:      "Error reports dropped because an alert was sent recently.",
		}),
		ledgerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_failures_total",
			Help:      "Ledger appends that failed.",
		}),
		notifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_failures_total",
			Help:      "Notification sends that failed, by channel.",
		}, []string{"channel"}),
		lastPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_price",
			Help:      "Last observed price of the watched pair.",
		}),
		lastSuccessUnixSecs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful fetch.",
		}),
	}

	reg.MustRegister(
		m.cycles,
		m.fetchFailures,
		m.alerts,
		m.escalationsSent,
		m.escalationsSkipped,
		m.ledgerFailures,
		m.notifyFailures,
		m.lastPrice,
		m.lastSuccessUnixSecs,
	)
	return m
}

// Registry returns the registry the instruments live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveCycle(outcome string) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveFetchFailure(kind string) {
	if m == nil {
		return
	}
	m.fetchFailures.WithLabelValues(kind).Inc()
}

// ObservePrice records a successful fetch.
func (m *Metrics) ObservePrice(price float64, at time.Time) {
	if m == nil {
		return
	}
	m.lastPrice.Set(price)
	m.lastSuccessUnixSecs.Set(float64(at.Unix()))
}

func (m *Metrics) ObserveAlert() {
	if m == nil {
		return
	}
	m.alerts.Inc()
}

// ObserveEscalation counts a fired escalation timer; sent is false when it was suppressed.
func (m *Metrics) ObserveEscalation(sent bool) {
	if m == nil {
		return
	}
	if sent {
		m.escalationsSent.Inc()
		return
	}
	m.escalationsSkipped.Inc()
}

func (m *Metrics) ObserveLedgerFailure() {
	if m == nil {
		return
	}
	m.ledgerFailures.Inc()
}

func (m *Metrics) ObserveNotifyFailure(channel string) {
	if m == nil {
		return
	}
	m.notifyFailures.WithLabelValues(channel).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	log := logger.With().Str("component", "metrics").Logger()

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", addr).Msg("metrics endpoint started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
