package state

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestStateLastPrice(t *testing.T) {
	s := New()
	_, ok := s.LastPrice()
	require.False(t, ok)

	s.SetLastPrice(decimal.RequireFromString("100.05"))
	price, ok := s.LastPrice()
	require.True(t, ok)
	require.Equal(t, "100.05", price.String())
}

func TestStateAlertFlagConcurrentAccess(t *testing.T) {
	s := New()
	require.False(t, s.AlertSentRecently())

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); s.MarkAlertSent() }()
		go func() { defer wg.Done(); _ = s.AlertSentRecently() }()
	}
	wg.Wait()
	require.True(t, s.AlertSentRecently())

	s.ClearAlertSent()
	require.False(t, s.AlertSentRecently())
}

func TestBuntStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	store, err := NewBuntStore(path)
	require.NoError(t, err)

	got, err := store.Load(ctx, "BTC/USDC")
	require.NoError(t, err)
	require.False(t, got.Valid)

	require.NoError(t, store.Save(ctx, "BTC/USDC", decimal.RequireFromString("64123.45")))
	require.NoError(t, store.Close())

	reopened, err := NewBuntStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err = reopened.Load(ctx, "BTC/USDC")
	require.NoError(t, err)
	require.True(t, got.Valid)
	require.Equal(t, "64123.45", got.Decimal.String())

	other, err := reopened.Load(ctx, "ETH/USDC")
	require.NoError(t, err)
	require.False(t, other.Valid)
}
