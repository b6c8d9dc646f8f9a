// Package state holds the mutable values shared between check cycles and their background timers.
package state

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// State carries the last observed price and the recent-alert flag.
// The price is touched only by the polling loop; the flag is also read and written by timers.
type State struct {
	mu        sync.Mutex
	lastPrice decimal.NullDecimal

	alertSentRecently atomic.Bool
}

// New returns a State with no price observed and the flag cleared.
func New() *State {
	return &State{}
}

// LastPrice returns the last observed price and whether one is set.
func (s *State) LastPrice() (decimal.Decimal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPrice.Decimal, s.lastPrice.Valid
}

// SetLastPrice overwrites the last observed price.
func (s *State) SetLastPrice(p decimal.Decimal) {
	s.mu.Lock()
	s.lastPrice = decimal.NewNullDecimal(p)
	s.mu.Unlock()
}

// AlertSentRecently reports the flag.
func (s *State) AlertSentRecently() bool {
	return s.alertSentRecently.Load()
}

// MarkAlertSent raises the flag.
func (s *State) MarkAlertSent() {
	s.alertSentRecently.Store(true)
}

// ClearAlertSent lowers the flag. Called by the reset timer; a newer alert's flag is cleared too.
func (s *State) ClearAlertSent() {
	s.alertSentRecently.Store(false)
}

// Store persists the last observed price of a pair across restarts.
type Store interface {
	Load(ctx context.Context, pair string) (decimal.NullDecimal, error)
	Save(ctx context.Context, pair string, price decimal.Decimal) error
	Close() error
}
