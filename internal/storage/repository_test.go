package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"price-alert-bot/internal/config"
	"price-alert-bot/internal/ledger"
)

func TestStoreWithoutPool(t *testing.T) {
	var store *Store
	ctx := context.Background()

	require.True(t, errors.Is(store.Append(ctx, ledger.Row{Time: time.Now()}), ErrNotConfigured))
	_, err := store.Recent(ctx, 5)
	require.ErrorIs(t, err, ErrNotConfigured)
	_, _, err = NewStore(nil).TryAdvisoryLock(ctx, 1)
	require.ErrorIs(t, err, ErrNotConfigured)
	require.ErrorIs(t, NewStore(nil).EnsureSchema(ctx), ErrNotConfigured)
	store.Close()
}

func TestNewPoolRequiresDSN(t *testing.T) {
	_, err := NewPool(context.Background(), config.DatabaseConfig{})
	require.Error(t, err)

	_, err = NewPool(context.Background(), config.DatabaseConfig{DSN: "::not a dsn::"})
	require.Error(t, err)
}
