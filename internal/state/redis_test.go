package state

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(context.Background(), RedisOptions{Addr: mr.Addr(), KeyPrefix: "pricealert:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	price, err := store.Load(ctx, "BTC/USDC")
	require.NoError(t, err)
	require.False(t, price.Valid)

	require.NoError(t, store.Save(ctx, "BTC/USDC", decimal.RequireFromString("64123.45")))

	raw, err := mr.Get("pricealert:last_price:BTC/USDC")
	require.NoError(t, err)
	require.Equal(t, "64123.45", raw)
	require.Zero(t, mr.TTL("pricealert:last_price:BTC/USDC"))

	price, err = store.Load(ctx, "BTC/USDC")
	require.NoError(t, err)
	require.True(t, price.Valid)
	require.Equal(t, "64123.45", price.Decimal.String())

	other, err := store.Load(ctx, "ETH/USDC")
	require.NoError(t, err)
	require.False(t, other.Valid)
}

func TestRedisStoreCorruptValue(t *testing.T) {
	store, mr := newTestRedisStore(t)
	require.NoError(t, mr.Set("pricealert:last_price:BTC/USDC", "n/a"))

	_, err := store.Load(context.Background(), "BTC/USDC")
	require.Error(t, err)
}

func TestNewRedisStoreUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(context.Background(), RedisOptions{Addr: addr})
	require.Error(t, err)
}
