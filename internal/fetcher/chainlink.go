package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	aggregatorV3ABIJSON = `[
{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}
]`
)

var (
	aggregatorV3ABI abi.ABI
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(aggregatorV3ABIJSON))
	if err != nil {
		panic("failed to parse AggregatorV3 ABI: " + err.Error())
	}
	aggregatorV3ABI = parsed
}

// ChainlinkOptions parameterise the on-chain fetcher.
type ChainlinkOptions struct {
	RPCURL      string
	FeedAddress string
	Timeout     time.Duration
}

// Chainlink reads the pair price from a Chainlink AggregatorV3 feed via Ethereum RPC.
// Feeds carry no volume, so samples report zero.
type Chainlink struct {
	opts      ChainlinkOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex

	decimals int32
	decOnce  bool
}

// NewChainlink builds a new feed fetcher.
func NewChainlink(opts ChainlinkOptions, logger zerolog.Logger) *Chainlink {
	return &Chainlink{opts: opts, logger: logger.With().Str("component", "chainlink_fetcher").Logger()}
}

// Fetch retrieves the latest round answer of the configured feed.
func (c *Chainlink) Fetch(ctx context.Context, pair string) (PriceSample, error) {
	if c.opts.RPCURL == "" {
		return PriceSample{}, errors.New("ethereum rpc url not configured")
	}
	if c.opts.FeedAddress == "" {
		return PriceSample{}, errors.New("chainlink feed address not configured")
	}

	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return PriceSample{}, fmt.Errorf("%w: dial rpc: %v", ErrNetwork, err)
	}

	feed := common.HexToAddress(c.opts.FeedAddress)

	decimals, err := c.feedDecimals(ctx, client, feed)
	if err != nil {
		return PriceSample{}, err
	}

	outputs, err := c.call(ctx, client, feed, "latestRoundData")
	if err != nil {
		return PriceSample{}, err
	}
	if len(outputs) != 5 {
		return PriceSample{}, errors.New("unexpected latestRoundData response")
	}

	answer, ok := outputs[1].(*big.Int)
	if !ok {
		return PriceSample{}, errors.New("failed to decode latestRoundData answer")
	}
	updatedAt, ok := outputs[3].(*big.Int)
	if !ok {
		return PriceSample{}, errors.New("failed to decode latestRoundData updatedAt")
	}
	if answer.Sign() <= 0 {
		return PriceSample{}, fmt.Errorf("%w: feed %s answered %s", ErrExchange, feed.Hex(), answer.String())
	}

	price := decimal.NewFromBigInt(answer, -decimals)
	ts := time.Unix(updatedAt.Int64(), 0).UTC()

	c.logger.Debug().Str("pair", pair).Str("price", price.String()).Time("updated_at", ts).Msg("feed round fetched")

	return PriceSample{Pair: pair, Price: price, Volume: decimal.Zero, Timestamp: ts}, nil
}

func (c *Chainlink) feedDecimals(ctx context.Context, client *ethclient.Client, feed common.Address) (int32, error) {
	c.clientMux.Lock()
	if c.decOnce {
		d := c.decimals
		c.clientMux.Unlock()
		return d, nil
	}
	c.clientMux.Unlock()

	outputs, err := c.call(ctx, client, feed, "decimals")
	if err != nil {
		return 0, err
	}
	if len(outputs) != 1 {
		return 0, errors.New("unexpected decimals response")
	}
	d, ok := outputs[0].(uint8)
	if !ok {
		return 0, errors.New("failed to decode decimals output")
	}

	c.clientMux.Lock()
	c.decimals, c.decOnce = int32(d), true
	c.clientMux.Unlock()
	return int32(d), nil
}

func (c *Chainlink) call(ctx context.Context, client *ethclient.Client, feed common.Address, method string) ([]interface{}, error) {
	payload, err := aggregatorV3ABI.Pack(method)
	if err != nil {
		return nil, err
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &feed, Data: payload}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: call %s: %v", ErrNetwork, method, err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%w: %s returned no data (is %s a feed?)", ErrExchange, method, feed.Hex())
	}

	return aggregatorV3ABI.Unpack(method, res)
}

func (c *Chainlink) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

var _ MarketDataSource = (*Chainlink)(nil)
