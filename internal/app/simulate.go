package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"price-alert-bot/internal/engine"
	"price-alert-bot/internal/fetcher"
	"price-alert-bot/internal/state"
)

// SimulateAlert 以给定的前值/现值跑一次检查周期, 走真实的账本与告警通道。
func (a *App) SimulateAlert(ctx context.Context, previous, current decimal.Decimal) (engine.Outcome, error) {
	alerts := a.newNotifier("alerts", a.Config.Notify.Alerts)
	if alerts == nil {
		return "", errors.New("未配置告警通道")
	}

	handle, err := a.openLedger(ctx)
	if err != nil {
		return "", err
	}
	defer handle.close()

	st := state.New()
	st.SetLastPrice(previous)

	src := &staticSource{price: current}
	// the reset timer outlives the command; nothing waits for it
	eng := engine.New(a.engineOptions(), st, src, handle.ledger, alerts, nil, a.Logger)
	return eng.Check(ctx)
}

type staticSource struct {
	price decimal.Decimal
}

func (s *staticSource) Fetch(ctx context.Context, pair string) (fetcher.PriceSample, error) {
	return fetcher.PriceSample{
		Pair:      pair,
		Price:     s.price,
		Volume:    decimal.Zero,
		Timestamp: time.Now().UTC(),
	}, nil
}

var _ fetcher.MarketDataSource = (*staticSource)(nil)
