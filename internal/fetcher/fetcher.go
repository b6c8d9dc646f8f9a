package fetcher

import (
	"context"
	"errors"
	"net"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNetwork marks transport failures: DNS, connect, timeouts.
	ErrNetwork = errors.New("network error")
	// ErrExchange marks errors reported by the exchange or feed itself.
	ErrExchange = errors.New("exchange error")
	// ErrRateLimited marks request-weight or order-rate rejections.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Kind is the retry classification of a fetch failure.
type Kind int

const (
	KindUnexpected Kind = iota
	KindNetwork
	KindExchange
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindExchange:
		return "exchange"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "unexpected"
	}
}

// Classify maps an error returned by a MarketDataSource to its Kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnexpected
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrExchange):
		return KindExchange
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	default:
		return KindUnexpected
	}
}

// PriceSample is one observation of the watched pair.
type PriceSample struct {
	Pair      string
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Timestamp time.Time
}

// MarketDataSource retrieves the latest price of a pair. Implementations never retry.
type MarketDataSource interface {
	Fetch(ctx context.Context, pair string) (PriceSample, error)
}

// isTransport reports whether err came from the transport layer rather than a response.
func isTransport(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
