package watchers

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ethpandaops/dexindexer/dbtypes"
	"github.com/ethpandaops/dexindexer/indexer/contracts"
	"github.com/ethpandaops/dexindexer/indexer/correlation"
	"github.com/ethpandaops/dexindexer/utils"
)

// ClPoolWatcher follows the events of concentrated liquidity pools. Every event carries
// both token amounts, so actions are resolved as they are read. Positions are kept by
// the NfpmWatcher.
type ClPoolWatcher struct {
	*poolWatcher
}

func NewClPoolWatcher(wc *WatcherCtx) *ClPoolWatcher {
	w := &ClPoolWatcher{
		poolWatcher: newPoolWatcher(wc, "cl-pool", []dbtypes.PoolType{dbtypes.PoolTypeConcentrated}),
	}
	w.cycle = w.runPoolCycle
	return w
}

func (w *ClPoolWatcher) runPoolCycle(ctx context.Context, pool *WatchedPool) (int, error) {
	poolAddress := lowerHex(pool.Address)
	handler := func(event string, handle func(ctx context.Context, poolAddress string, log *types.Log) error) *eventHandler {
		return &eventHandler{
			event: event,
			topic: contracts.EventTopic(contracts.ClPoolAbi, event),
			handle: func(ctx context.Context, log *types.Log) error {
				return handle(ctx, poolAddress, log)
			},
		}
	}

	return w.wc.runCycle(ctx, &cycleOptions{
		watcher:     w.name,
		contract:    pool.Address,
		deployBlock: pool.BlockNumber,
		handlers: []*eventHandler{
			handler("Mint", w.handleMint),
			handler("Burn", w.handleBurn),
			handler("Swap", w.handleSwap),
		},
	})
}

func (w *ClPoolWatcher) handleMint(ctx context.Context, poolAddress string, log *types.Log) error {
	event := &contracts.ClMint{}
	if err := contracts.DecodeLog(contracts.ClPoolAbi, "Mint", log, event); err != nil {
		return err
	}
	if _, err := w.wc.ensureTransaction(ctx, log); err != nil {
		return err
	}

	_, err := w.wc.resolveLiquidity(ctx, &liquidityAction{
		kind:        correlation.KindMint,
		poolAddress: poolAddress,
		hash:        w.wc.header(log).Hash,
		logIndex:    uint64(log.Index),
		sender:      lowerHex(event.Sender),
		to:          lowerHex(event.Owner),
		amount0:     event.Amount0,
		amount1:     event.Amount1,
		liquidity:   utils.FormatEther(event.Amount),
	})
	return err
}

func (w *ClPoolWatcher) handleBurn(ctx context.Context, poolAddress string, log *types.Log) error {
	event := &contracts.ClBurn{}
	if err := contracts.DecodeLog(contracts.ClPoolAbi, "Burn", log, event); err != nil {
		return err
	}
	if _, err := w.wc.ensureTransaction(ctx, log); err != nil {
		return err
	}

	sender, err := w.wc.Access.Reader.GetTransactionFrom(ctx, log.TxHash)
	if err != nil {
		return fmt.Errorf("error loading sender of %v: %w", log.TxHash.Hex(), err)
	}

	_, err = w.wc.resolveLiquidity(ctx, &liquidityAction{
		kind:        correlation.KindBurn,
		poolAddress: poolAddress,
		hash:        w.wc.header(log).Hash,
		logIndex:    uint64(log.Index),
		sender:      lowerHex(sender),
		to:          lowerHex(event.Owner),
		amount0:     event.Amount0,
		amount1:     event.Amount1,
		liquidity:   utils.FormatEther(event.Amount),
	})
	return err
}

func (w *ClPoolWatcher) handleSwap(ctx context.Context, poolAddress string, log *types.Log) error {
	event := &contracts.ClSwap{}
	if err := contracts.DecodeLog(contracts.ClPoolAbi, "Swap", log, event); err != nil {
		return err
	}
	if _, err := w.wc.ensureTransaction(ctx, log); err != nil {
		return err
	}

	from, err := w.wc.Access.Reader.GetTransactionFrom(ctx, log.TxHash)
	if err != nil {
		return fmt.Errorf("error loading sender of %v: %w", log.TxHash.Hex(), err)
	}

	amount0In, amount0Out := utils.SplitSigned(event.Amount0)
	amount1In, amount1Out := utils.SplitSigned(event.Amount1)
	_, err = w.wc.resolveSwap(ctx, &swapAction{
		poolAddress: poolAddress,
		hash:        w.wc.header(log).Hash,
		logIndex:    uint64(log.Index),
		sender:      lowerHex(event.Sender),
		from:        lowerHex(from),
		to:          lowerHex(event.Recipient),
		amount0In:   amount0In,
		amount1In:   amount1In,
		amount0Out:  amount0Out,
		amount1Out:  amount1Out,
	})
	return err
}
