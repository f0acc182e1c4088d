package watchers

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/dexindexer/chain"
	"github.com/ethpandaops/dexindexer/indexer/aggregation"
	"github.com/ethpandaops/dexindexer/indexer/correlation"
	"github.com/ethpandaops/dexindexer/indexer/cursor"
	"github.com/ethpandaops/dexindexer/types"
)

// PriceSource returns oracle derived unit prices. oracle.Client satisfies it.
type PriceSource interface {
	GetPriceInUSD(ctx context.Context, token string, chainId uint64) (decimal.Decimal, error)
	GetPriceInETH(ctx context.Context, token string, chainId uint64) (decimal.Decimal, error)
}

// WatcherCtx holds everything the watchers of one chain share.
type WatcherCtx struct {
	Access      *chain.Access
	Cursors     *cursor.Store
	Correlation *correlation.Cache
	Prices      PriceSource
	Engine      *aggregation.Engine
	Counters    *EventCounters
	Config      *types.IndexerConfig

	chainLabel string
}

func NewWatcherCtx(access *chain.Access, cursors *cursor.Store, correlationCache *correlation.Cache, prices PriceSource, engine *aggregation.Engine, config *types.IndexerConfig) *WatcherCtx {
	return &WatcherCtx{
		Access:      access,
		Cursors:     cursors,
		Correlation: correlationCache,
		Prices:      prices,
		Engine:      engine,
		Counters:    NewEventCounters(),
		Config:      config,
		chainLabel:  strconv.FormatUint(access.ChainId, 10),
	}
}

func (wc *WatcherCtx) ChainId() uint64 {
	return wc.Access.ChainId
}

func (wc *WatcherCtx) logger() logrus.FieldLogger {
	return wc.Access.Logger
}

func (wc *WatcherCtx) cycleInterval() time.Duration {
	if wc.Config.CycleInterval > 0 {
		return wc.Config.CycleInterval
	}
	return 5 * time.Second
}

func (wc *WatcherCtx) resolverInterval() time.Duration {
	if wc.Config.ResolverInterval > 0 {
		return wc.Config.ResolverInterval
	}
	return 5 * time.Second
}
