package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tidwall/buntdb"
)

const lastPriceKeyPrefix = "last_price:"

// BuntStore keeps the last price in an embedded BuntDB file.
type BuntStore struct {
	db *buntdb.DB
}

// NewBuntStore opens path; ":memory:" keeps everything in memory.
func NewBuntStore(path string) (*BuntStore, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}
	return &BuntStore{db: db}, nil
}

// Load returns the stored price for pair; Valid is false when none was saved.
func (b *BuntStore) Load(_ context.Context, pair string) (decimal.NullDecimal, error) {
	var raw string
	err := b.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(lastPriceKeyPrefix + pair)
		if err != nil {
			return err
		}
		raw = v
		return nil
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return decimal.NullDecimal{}, nil
	}
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("load last price: %w", err)
	}

	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parse stored price %q: %w", raw, err)
	}
	return decimal.NewNullDecimal(price), nil
}

// Save overwrites the stored price for pair.
func (b *BuntStore) Save(_ context.Context, pair string, price decimal.Decimal) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		if _, _, err := tx.Set(lastPriceKeyPrefix+pair, price.String(), nil); err != nil {
			return fmt.Errorf("failed to store last price: %w", err)
		}
		return nil
	})
}

// Close flushes and closes the database file.
func (b *BuntStore) Close() error {
	return b.db.Close()
}

var _ Store = (*BuntStore)(nil)
