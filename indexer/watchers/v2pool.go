package watchers

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/ethpandaops/dexindexer/db"
	"github.com/ethpandaops/dexindexer/dbtypes"
	"github.com/ethpandaops/dexindexer/indexer/contracts"
	"github.com/ethpandaops/dexindexer/indexer/correlation"
	"github.com/ethpandaops/dexindexer/utils"
)

// V2PoolWatcher follows the events of stable and volatile pools. Liquidity events are staged
// for the V2Resolver, syncs are applied directly.
type V2PoolWatcher struct {
	*poolWatcher
}

func NewV2PoolWatcher(wc *WatcherCtx) *V2PoolWatcher {
	w := &V2PoolWatcher{
		poolWatcher: newPoolWatcher(wc, "v2-pool", []dbtypes.PoolType{dbtypes.PoolTypeStable, dbtypes.PoolTypeVolatile}),
	}
	w.cycle = w.runPoolCycle
	return w
}

func (w *V2PoolWatcher) runPoolCycle(ctx context.Context, pool *WatchedPool) (int, error) {
	poolAddress := lowerHex(pool.Address)
	handler := func(event string, handle func(ctx context.Context, poolAddress string, log *types.Log) error) *eventHandler {
		return &eventHandler{
			event: event,
			topic: contracts.EventTopic(contracts.V2PoolAbi, event),
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
			handler("Transfer", w.handleTransfer),
			handler("Sync", w.handleSync),
			handler("Mint", w.handleMint),
			handler("Swap", w.handleSwap),
			handler("Burn", w.handleBurn),
		},
	})
}

func (w *V2PoolWatcher) handleTransfer(ctx context.Context, poolAddress string, log *types.Log) error {
	event := &contracts.LpTransfer{}
	if err := contracts.DecodeLog(contracts.V2PoolAbi, "Transfer", log, event); err != nil {
		return err
	}
	if _, err := w.wc.ensureTransaction(ctx, log); err != nil {
		return err
	}

	sender, err := w.wc.Access.Reader.GetTransactionFrom(ctx, log.TxHash)
	if err != nil {
		return fmt.Errorf("error loading sender of %v: %w", log.TxHash.Hex(), err)
	}

	return w.wc.Correlation.StageTransfer(ctx, &correlation.TransferData{
		Header: w.wc.header(log),
		From:   lowerHex(event.From),
		To:     lowerHex(event.To),
		Token:  poolAddress,
		Amount: event.Value.String(),
		Sender: lowerHex(sender),
	})
}

func (w *V2PoolWatcher) handleMint(ctx context.Context, poolAddress string, log *types.Log) error {
	event := &contracts.V2Mint{}
	if err := contracts.DecodeLog(contracts.V2PoolAbi, "Mint", log, event); err != nil {
		return err
	}
	if _, err := w.wc.ensureTransaction(ctx, log); err != nil {
		return err
	}

	return w.wc.Correlation.StageLiquidity(ctx, correlation.KindMint, &correlation.LiquidityData{
		Header:  w.wc.header(log),
		Pool:    poolAddress,
		Sender:  lowerHex(event.Sender),
		Amount0: event.Amount0.String(),
		Amount1: event.Amount1.String(),
	})
}

func (w *V2PoolWatcher) handleBurn(ctx context.Context, poolAddress string, log *types.Log) error {
	event := &contracts.V2Burn{}
	if err := contracts.DecodeLog(contracts.V2PoolAbi, "Burn", log, event); err != nil {
		return err
	}
	if _, err := w.wc.ensureTransaction(ctx, log); err != nil {
		return err
	}

	return w.wc.Correlation.StageLiquidity(ctx, correlation.KindBurn, &correlation.LiquidityData{
		Header:  w.wc.header(log),
		Pool:    poolAddress,
		Sender:  lowerHex(event.Sender),
		To:      lowerHex(event.To),
		Amount0: event.Amount0.String(),
		Amount1: event.Amount1.String(),
	})
}

func (w *V2PoolWatcher) handleSwap(ctx context.Context, poolAddress string, log *types.Log) error {
	event := &contracts.V2Swap{}
	if err := contracts.DecodeLog(contracts.V2PoolAbi, "Swap", log, event); err != nil {
		return err
	}
	if _, err := w.wc.ensureTransaction(ctx, log); err != nil {
		return err
	}

	from, err := w.wc.Access.Reader.GetTransactionFrom(ctx, log.TxHash)
	if err != nil {
		return fmt.Errorf("error loading sender of %v: %w", log.TxHash.Hex(), err)
	}

	return w.wc.Correlation.StageSwap(ctx, &correlation.SwapData{
		Header:     w.wc.header(log),
		Token:      poolAddress,
		Sender:     lowerHex(event.Sender),
		From:       lowerHex(from),
		To:         lowerHex(event.To),
		Amount0In:  event.Amount0In.String(),
		Amount1In:  event.Amount1In.String(),
		Amount0Out: event.Amount0Out.String(),
		Amount1Out: event.Amount1Out.String(),
	})
}

// handleSync replaces the pool reserves and moves the pool's share of token liquidity
// and total value locked to the new values.
func (w *V2PoolWatcher) handleSync(ctx context.Context, poolAddress string, log *types.Log) error {
	event := &contracts.V2Sync{}
	if err := contracts.DecodeLog(contracts.V2PoolAbi, "Sync", log, event); err != nil {
		return err
	}
	if _, err := w.wc.ensureTransaction(ctx, log); err != nil {
		return err
	}

	return db.RunDBTransaction(func(tx *sqlx.Tx) error {
		pool, err := db.GetPoolForUpdate(ctx, tx, dbtypes.PoolId(poolAddress, w.wc.ChainId()))
		if err != nil {
			return fmt.Errorf("error loading pool: %w", err)
		}
		token0, err := db.GetTokenForUpdate(ctx, tx, pool.Token0Id)
		if err != nil {
			return err
		}
		token1, err := db.GetTokenForUpdate(ctx, tx, pool.Token1Id)
		if err != nil {
			return err
		}
		stats, err := db.GetOrCreateStatistics(ctx, tx, w.wc.ChainId())
		if err != nil {
			return err
		}

		stats.TotalVolumeLockedETH = stats.TotalVolumeLockedETH.Sub(pool.ReserveETH)
		stats.TotalVolumeLockedUSD = stats.TotalVolumeLockedUSD.Sub(pool.ReserveUSD)
		token0.TotalLiquidity = token0.TotalLiquidity.Sub(pool.Reserve0)
		token1.TotalLiquidity = token1.TotalLiquidity.Sub(pool.Reserve1)

		applySyncReserves(pool, token0, token1, utils.FormatUnits(event.Reserve0, token0.Decimals), utils.FormatUnits(event.Reserve1, token1.Decimals))

		stats.TotalVolumeLockedETH = stats.TotalVolumeLockedETH.Add(pool.ReserveETH)
		stats.TotalVolumeLockedUSD = stats.TotalVolumeLockedUSD.Add(pool.ReserveUSD)

		if err := db.UpdatePool(ctx, tx, pool); err != nil {
			return err
		}
		if err := db.UpdateToken(ctx, tx, token0); err != nil {
			return err
		}
		if err := db.UpdateToken(ctx, tx, token1); err != nil {
			return err
		}
		return db.UpdateStatistics(ctx, tx, stats)
	})
}

// applySyncReserves sets the reserves and derived prices of pool and adds the new reserves
// to the token liquidity.
func applySyncReserves(pool *dbtypes.Pool, token0 *dbtypes.Token, token1 *dbtypes.Token, reserve0, reserve1 decimal.Decimal) {
	pool.Reserve0 = reserve0
	pool.Reserve1 = reserve1
	pool.Token0Price = utils.DivOrZero(reserve0, reserve1)
	pool.Token1Price = utils.DivOrZero(reserve1, reserve0)
	pool.ReserveETH = utils.MulRound(reserve0, token0.DerivedETH).Add(utils.MulRound(reserve1, token1.DerivedETH))
	pool.ReserveUSD = utils.MulRound(reserve0, token0.DerivedUSD).Add(utils.MulRound(reserve1, token1.DerivedUSD))

	for _, update := range []struct {
		token   *dbtypes.Token
		reserve decimal.Decimal
	}{{token0, reserve0}, {token1, reserve1}} {
		update.token.TotalLiquidity = update.token.TotalLiquidity.Add(update.reserve)
		update.token.TotalLiquidityETH = utils.MulRound(update.token.TotalLiquidity, update.token.DerivedETH)
		update.token.TotalLiquidityUSD = utils.MulRound(update.token.TotalLiquidity, update.token.DerivedUSD)
	}
}
