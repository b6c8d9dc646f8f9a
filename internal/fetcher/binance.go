package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	// MarketFutures is the USDⓈ-M perpetual futures venue.
	MarketFutures = "futures"
	// MarketSpot is the spot venue.
	MarketSpot = "spot"
)

// Binance API error codes that mean "slow down".
const (
	codeTooManyRequests = -1003
	codeTooManyOrders   = -1015
)

// BinanceOptions parameterise the exchange fetcher.
type BinanceOptions struct {
	Market  string
	BaseURL string
	Timeout time.Duration
}

// ticker is the subset of the 24h statistics we read from either venue.
type ticker struct {
	LastPrice   string
	QuoteVolume string
	CloseTime   int64
}

type tickerFunc func(ctx context.Context, symbol string) ([]ticker, error)

// Binance fetches the 24h ticker of a pair from Binance.
type Binance struct {
	opts   BinanceOptions
	logger zerolog.Logger
	fetch  tickerFunc
}

// NewBinance constructs an exchange fetcher for the configured venue.
func NewBinance(opts BinanceOptions, logger zerolog.Logger) *Binance {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	baseURL := strings.TrimRight(opts.BaseURL, "/")

	b := &Binance{
		opts:   opts,
		logger: logger.With().Str("component", "binance_fetcher").Str("market", opts.Market).Logger(),
	}

	if opts.Market == MarketSpot {
		client := binance.NewClient("", "")
		client.HTTPClient = httpClient
		if baseURL != "" {
			client.BaseURL = baseURL
		}
		b.fetch = func(ctx context.Context, symbol string) ([]ticker, error) {
			stats, err := client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
			if err != nil {
				return nil, err
			}
			out := make([]ticker, 0, len(stats))
			for _, s := range stats {
				out = append(out, ticker{LastPrice: s.LastPrice, QuoteVolume: s.QuoteVolume, CloseTime: s.CloseTime})
			}
			return out, nil
		}
		return b
	}

	client := futures.NewClient("", "")
	client.HTTPClient = httpClient
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	b.fetch = func(ctx context.Context, symbol string) ([]ticker, error) {
		stats, err := client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]ticker, 0, len(stats))
		for _, s := range stats {
			out = append(out, ticker{LastPrice: s.LastPrice, QuoteVolume: s.QuoteVolume, CloseTime: s.CloseTime})
		}
		return out, nil
	}
	return b
}

// Fetch retrieves last price, quote volume and close time for pair.
func (b *Binance) Fetch(ctx context.Context, pair string) (PriceSample, error) {
	symbol := Symbol(pair)
	if symbol == "" {
		return PriceSample{}, errors.New("pair must not be empty")
	}

	stats, err := b.fetch(ctx, symbol)
	if err != nil {
		return PriceSample{}, classifyBinanceError(symbol, err)
	}
	if len(stats) == 0 {
		return PriceSample{}, fmt.Errorf("%w: no ticker returned for %s", ErrExchange, symbol)
	}

	t := stats[0]
	price, err := decimal.NewFromString(t.LastPrice)
	if err != nil {
		return PriceSample{}, fmt.Errorf("parse last price %q: %w", t.LastPrice, err)
	}
	volume, err := decimal.NewFromString(t.QuoteVolume)
	if err != nil {
		return PriceSample{}, fmt.Errorf("parse quote volume %q: %w", t.QuoteVolume, err)
	}

	ts := time.Now().UTC()
	if t.CloseTime > 0 {
		ts = time.UnixMilli(t.CloseTime).UTC()
	}

	b.logger.Debug().Str("symbol", symbol).Str("price", price.String()).Msg("ticker fetched")

	return PriceSample{Pair: pair, Price: price, Volume: volume, Timestamp: ts}, nil
}

// Symbol converts a display pair ("BTC/USDC", "btc-usdc") into an exchange symbol ("BTCUSDC").
func Symbol(pair string) string {
	replacer := strings.NewReplacer("/", "", "-", "", "_", "", " ", "")
	return strings.ToUpper(replacer.Replace(strings.TrimSpace(pair)))
}

func classifyBinanceError(symbol string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case codeTooManyRequests, codeTooManyOrders:
			return fmt.Errorf("%w: binance %s: %s", ErrRateLimited, symbol, apiErr.Message)
		}
		return fmt.Errorf("%w: binance %s: code %d: %s", ErrExchange, symbol, apiErr.Code, apiErr.Message)
	}
	if isTransport(err) {
		return fmt.Errorf("%w: binance %s: %v", ErrNetwork, symbol, err)
	}
	return fmt.Errorf("binance %s: %w", symbol, err)
}

var _ MarketDataSource = (*Binance)(nil)
