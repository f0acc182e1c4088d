package watchers

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ethpandaops/dexindexer/indexer/cursor"
	"github.com/ethpandaops/dexindexer/metrics"
	"github.com/ethpandaops/dexindexer/utils"
)

// eventHandler processes the logs of one event of a contract. Every handler owns a cursor.
type eventHandler struct {
	event  string
	topic  common.Hash
	handle func(ctx context.Context, log *types.Log) error
}

type cycleOptions struct {
	watcher     string
	contract    common.Address
	deployBlock uint64
	handlers    []*eventHandler
}

// runCycle claims the chain lock and moves every handler's cursor one range forward.
// Handlers run in declaration order. A failing handler aborts the cycle with its cursor untouched.
func (wc *WatcherCtx) runCycle(ctx context.Context, options *cycleOptions) (int, error) {
	processed := 0

	err := wc.Access.WithLock(ctx, func(ctx context.Context) error {
		latestBlock, err := wc.Access.Reader.GetLatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("error fetching latest block: %w", err)
		}

		for _, handler := range options.handlers {
			count, err := wc.runHandler(ctx, options, handler, latestBlock)
			processed += count
			if err != nil {
				return fmt.Errorf("%v handler: %w", handler.event, err)
			}
		}
		return nil
	})

	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case processed == 0:
		result = "idle"
	}
	metrics.Cycles.WithLabelValues(wc.chainLabel, options.watcher, result).Inc()

	if processed > 0 {
		wc.Counters.Add(options.watcher, uint64(processed))
	}
	return processed, err
}

func (wc *WatcherCtx) runHandler(ctx context.Context, options *cycleOptions, handler *eventHandler, latestBlock uint64) (int, error) {
	contract := options.contract.Hex()
	status, err := wc.Cursors.GetOrCreate(ctx, handler.event, contract, wc.ChainId(), options.deployBlock)
	if err != nil {
		return 0, err
	}

	fromBlock, ok := cursor.NextBlock(status.LastBlockNumber, latestBlock)
	if !ok {
		return 0, nil
	}

	query := ethereum.FilterQuery{
		Addresses: []common.Address{options.contract},
		Topics:    [][]common.Hash{{handler.topic}},
	}
	logRange, err := wc.Access.Reader.FilterLogsInRange(ctx, query, fromBlock, latestBlock, wc.Access.DefaultRange)
	if err != nil {
		return 0, err
	}

	if wc.Config.LogSettleDelay > 0 && !utils.Sleep(ctx, wc.Config.LogSettleDelay) {
		return 0, ctx.Err()
	}

	for i := range logRange.Logs {
		log := &logRange.Logs[i]
		if log.Removed {
			continue
		}
		if err := handler.handle(ctx, log); err != nil {
			return i, fmt.Errorf("log %v:%v: %w", log.TxHash.Hex(), log.Index, err)
		}
		metrics.EventsProcessed.WithLabelValues(wc.chainLabel, options.watcher, handler.event).Inc()
	}

	// the cursor moves with the chain even if the range was empty
	status.LastBlockNumber = logRange.ToBlock
	if err := wc.Cursors.Save(ctx, status); err != nil {
		return len(logRange.Logs), err
	}

	wc.logger().WithField("watcher", options.watcher).Debugf("%v %v: processed %v logs in %v-%v via %v", handler.event, contract, len(logRange.Logs), logRange.FromBlock, logRange.ToBlock, logRange.Endpoint)
	return len(logRange.Logs), nil
}
