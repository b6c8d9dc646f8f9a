package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RedisStore keeps the last price in Redis so replacements of the process share a baseline.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisOptions configure the Redis connection.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedisStore connects and pings Redis.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return &RedisStore{client: client, prefix: opts.KeyPrefix}, nil
}

func (r *RedisStore) key(pair string) string {
	return r.prefix + lastPriceKeyPrefix + pair
}

// Load returns the stored price for pair; Valid is false when none was saved.
func (r *RedisStore) Load(ctx context.Context, pair string) (decimal.NullDecimal, error) {
	raw, err := r.client.Get(ctx, r.key(pair)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.NullDecimal{}, nil
	}
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("redis get: %w", err)
	}

	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parse stored price %q: %w", raw, err)
	}
	return decimal.NewNullDecimal(price), nil
}

// Save overwrites the stored price for pair without expiry.
func (r *RedisStore) Save(ctx context.Context, pair string, price decimal.Decimal) error {
	if err := r.client.Set(ctx, r.key(pair), price.String(), 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

var _ Store = (*RedisStore)(nil)
