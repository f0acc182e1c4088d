package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/ethpandaops/dexindexer/clients/execution"
	"github.com/ethpandaops/dexindexer/indexer/contracts"
	"github.com/ethpandaops/dexindexer/utils"
)

var (
	ErrUnknownChain = errors.New("chain not registered with the oracle client")
	ErrNoOracle     = errors.New("no oracle configured for chain")
)

type Currency string

const (
	USD Currency = "usd"
	ETH Currency = "eth"
)

func (c Currency) method() string {
	if c == ETH {
		return "getAverageValueInETH"
	}
	return "getAverageValueInUSD"
}

// PriceCache stores recently fetched prices. TieredCache satisfies it.
type PriceCache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, returnValue interface{}) (interface{}, error)
}

type chainOracle struct {
	reader  execution.ChainReader
	address common.Address
	enabled bool
}

// Client reads token prices from the per-chain price oracle contract. Without a price cache
// every call hits the chain.
type Client struct {
	logger   logrus.FieldLogger
	chains   *xsync.Map[uint64, *chainOracle]
	decimals *xsync.Map[string, uint8]
	cache    PriceCache
	cacheTtl time.Duration
	flight   singleflight.Group
}

// NewClient creates the oracle client. priceCache may be nil to disable price caching.
func NewClient(logger logrus.FieldLogger, priceCache PriceCache, cacheTtl time.Duration) *Client {
	if cacheTtl <= 0 {
		priceCache = nil
	}
	return &Client{
		logger:   logger.WithField("module", "oracle"),
		chains:   xsync.NewMap[uint64, *chainOracle](),
		decimals: xsync.NewMap[string, uint8](),
		cache:    priceCache,
		cacheTtl: cacheTtl,
	}
}

// AddChain registers the oracle of a chain. An empty address registers the chain without oracle.
func (c *Client) AddChain(chainId uint64, reader execution.ChainReader, oracleAddress string) error {
	oracle := &chainOracle{
		reader: reader,
	}
	if oracleAddress != "" {
		if !common.IsHexAddress(oracleAddress) {
			return fmt.Errorf("invalid oracle address %q for chain %v", oracleAddress, chainId)
		}
		oracle.address = common.HexToAddress(oracleAddress)
		oracle.enabled = true
	}
	c.chains.Store(chainId, oracle)
	return nil
}

func (c *Client) getChain(chainId uint64) (*chainOracle, error) {
	oracle, ok := c.chains.Load(chainId)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownChain, chainId)
	}
	return oracle, nil
}

// GetDecimals returns the token's decimals. The value is read from the chain once and kept.
func (c *Client) GetDecimals(ctx context.Context, token string, chainId uint64) (uint8, error) {
	key := fmt.Sprintf("%v:%v", chainId, strings.ToLower(token))
	if decimals, ok := c.decimals.Load(key); ok {
		return decimals, nil
	}

	oracle, err := c.getChain(chainId)
	if err != nil {
		return 0, err
	}

	res, err, _ := c.flight.Do("decimals:"+key, func() (interface{}, error) {
		return contracts.GetTokenDecimals(ctx, oracle.reader, common.HexToAddress(token))
	})
	if err != nil {
		return 0, err
	}

	decimals := res.(uint8)
	c.decimals.Store(key, decimals)
	return decimals, nil
}

// SetDecimals seeds the decimals cache with a known value.
func (c *Client) SetDecimals(token string, chainId uint64, decimals uint8) {
	c.decimals.Store(fmt.Sprintf("%v:%v", chainId, strings.ToLower(token)), decimals)
}

func (c *Client) GetPriceInUSD(ctx context.Context, token string, chainId uint64) (decimal.Decimal, error) {
	return c.GetPrice(ctx, token, chainId, USD)
}

func (c *Client) GetPriceInETH(ctx context.Context, token string, chainId uint64) (decimal.Decimal, error) {
	return c.GetPrice(ctx, token, chainId, ETH)
}

// GetPrice returns the oracle value of one whole token unit in currency.
func (c *Client) GetPrice(ctx context.Context, token string, chainId uint64, currency Currency) (decimal.Decimal, error) {
	oracle, err := c.getChain(chainId)
	if err != nil {
		return decimal.Zero, err
	}
	if !oracle.enabled {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrNoOracle, chainId)
	}

	cacheKey := fmt.Sprintf("price:%v:%v:%v", currency, chainId, strings.ToLower(token))
	if c.cache != nil {
		var cached decimal.Decimal
		if _, err := c.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	res, err, _ := c.flight.Do(cacheKey, func() (interface{}, error) {
		return c.fetchPrice(ctx, oracle, token, chainId, currency)
	})
	if err != nil {
		return decimal.Zero, err
	}
	price := res.(decimal.Decimal)

	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey, price, c.cacheTtl); err != nil {
			c.logger.Warnf("error caching price %v: %v", cacheKey, err)
		}
	}

	return price, nil
}

func (c *Client) fetchPrice(ctx context.Context, oracle *chainOracle, token string, chainId uint64, currency Currency) (decimal.Decimal, error) {
	decimals, err := c.GetDecimals(ctx, token, chainId)
	if err != nil {
		return decimal.Zero, fmt.Errorf("error loading decimals of %v: %w", token, err)
	}

	value, err := contracts.GetOracleValue(ctx, oracle.reader, oracle.address, currency.method(), common.HexToAddress(token), utils.OneUnit(decimals))
	if err != nil {
		return decimal.Zero, err
	}

	return utils.FormatUnits(value, 18), nil
}
