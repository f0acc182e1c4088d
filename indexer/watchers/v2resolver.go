package watchers

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/dexindexer/db"
	"github.com/ethpandaops/dexindexer/dbtypes"
	"github.com/ethpandaops/dexindexer/indexer/correlation"
	"github.com/ethpandaops/dexindexer/utils"
)

// V2Resolver pairs staged liquidity token transfers with their mint or burn half and
// resolves staged swaps of one chain.
type V2Resolver struct {
	wc     *WatcherCtx
	logger logrus.FieldLogger
}

func NewV2Resolver(wc *WatcherCtx) *V2Resolver {
	return &V2Resolver{
		wc:     wc,
		logger: wc.logger().WithField("watcher", "v2-resolver"),
	}
}

func (r *V2Resolver) Name() string {
	return "v2-resolver"
}

func (r *V2Resolver) Run(ctx context.Context) {
	defer utils.HandleSubroutinePanic("V2Resolver.Run")

	for ctx.Err() == nil {
		if _, err := r.RunPass(ctx); err != nil && ctx.Err() == nil {
			r.logger.WithError(err).Warn("resolver pass failed")
		}
		if !utils.Sleep(ctx, r.wc.resolverInterval()) {
			break
		}
	}
}

// RunPass resolves everything currently staged for the chain while holding the chain lock.
// Entries that fail stay staged for the next pass unless they outlived the correlation ttl.
func (r *V2Resolver) RunPass(ctx context.Context) (int, error) {
	resolved := 0
	err := r.wc.Access.WithLock(ctx, func(ctx context.Context) error {
		count, err := r.resolveTransfers(ctx)
		resolved += count
		if err != nil {
			return err
		}

		count, err = r.resolveSwaps(ctx)
		resolved += count
		if err != nil {
			return err
		}

		for _, kind := range []correlation.Kind{correlation.KindMint, correlation.KindBurn} {
			if err := r.expireLiquidity(ctx, kind); err != nil {
				return err
			}
		}
		return nil
	})

	for _, kind := range []correlation.Kind{correlation.KindTransfer, correlation.KindMint, correlation.KindBurn, correlation.KindSwap} {
		if _, err := r.wc.Correlation.Pending(ctx, kind); err != nil {
			r.logger.WithError(err).Debugf("could not count pending %v entries", kind)
			break
		}
	}

	if resolved > 0 {
		r.wc.Counters.Add(r.Name(), uint64(resolved))
	}
	return resolved, err
}

func (r *V2Resolver) resolveTransfers(ctx context.Context) (int, error) {
	transfers, err := r.wc.Correlation.Transfers(ctx)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, transfer := range transfers {
		if transfer.ChainId != r.wc.ChainId() {
			continue
		}
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}

		key := transfer.Key()
		logger := r.logger.WithField("key", key)

		matched := false
		for _, kind := range []correlation.Kind{correlation.KindMint, correlation.KindBurn} {
			half, err := r.wc.Correlation.Counterpart(ctx, kind, key)
			if errors.Is(err, correlation.ErrNoCounterpart) {
				continue
			}
			if err != nil {
				return resolved, err
			}

			matched = true
			if err := r.resolveLiquidityPair(ctx, kind, transfer, half); err != nil {
				logger.WithError(err).Warnf("could not resolve %v", kind)
				if r.wc.Correlation.Expired(&transfer.Header) {
					r.deadLetter(ctx, logger, correlation.KindTransfer, key)
					r.deadLetter(ctx, logger, kind, key)
				}
				break
			}

			if err := r.wc.Correlation.Remove(ctx, kind, key); err != nil {
				return resolved, err
			}
			if err := r.wc.Correlation.Remove(ctx, correlation.KindTransfer, key); err != nil {
				return resolved, err
			}
			resolved++
			break
		}

		if !matched && r.wc.Correlation.Expired(&transfer.Header) {
			if err := r.applyPositionTransfer(ctx, transfer); err != nil {
				logger.WithError(err).Warn("could not apply expired transfer")
			}
			r.deadLetter(ctx, logger, correlation.KindTransfer, key)
		}
	}
	return resolved, nil
}

func (r *V2Resolver) resolveLiquidityPair(ctx context.Context, kind correlation.Kind, transfer *correlation.TransferData, half *correlation.LiquidityData) error {
	amount0, err := correlation.ParseAmount(half.Amount0)
	if err != nil {
		return err
	}
	amount1, err := correlation.ParseAmount(half.Amount1)
	if err != nil {
		return err
	}
	liquidity, err := correlation.ParseAmount(transfer.Amount)
	if err != nil {
		return err
	}

	// minted liquidity lands at the transfer recipient, burned liquidity leaves the transaction sender
	holder := transfer.To
	if kind == correlation.KindBurn {
		holder = transfer.Sender
	}

	inserted, err := r.wc.resolveLiquidity(ctx, &liquidityAction{
		kind:        kind,
		poolAddress: transfer.Token,
		hash:        transfer.Hash,
		logIndex:    half.LogIndex,
		sender:      half.Sender,
		to:          transfer.To,
		amount0:     amount0,
		amount1:     amount1,
		liquidity:   utils.FormatEther(liquidity),
		holder:      holder,
	})
	if err != nil {
		return err
	}
	if inserted {
		r.logger.Debugf("resolved %v %v in pool %v", kind, transfer.Hash, transfer.Token)
	}
	return nil
}

func (r *V2Resolver) resolveSwaps(ctx context.Context) (int, error) {
	swaps, err := r.wc.Correlation.Swaps(ctx)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, swap := range swaps {
		if swap.ChainId != r.wc.ChainId() {
			continue
		}
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}

		key := swap.Key()
		if err := r.resolveStagedSwap(ctx, swap); err != nil {
			logger := r.logger.WithField("key", key)
			logger.WithError(err).Warn("could not resolve swap")
			if r.wc.Correlation.Expired(&swap.Header) {
				r.deadLetter(ctx, logger, correlation.KindSwap, key)
			}
			continue
		}

		if err := r.wc.Correlation.Remove(ctx, correlation.KindSwap, key); err != nil {
			return resolved, err
		}
		resolved++
	}
	return resolved, nil
}

func (r *V2Resolver) resolveStagedSwap(ctx context.Context, swap *correlation.SwapData) error {
	amounts := make([]*big.Int, 0, 4)
	for _, value := range []string{swap.Amount0In, swap.Amount1In, swap.Amount0Out, swap.Amount1Out} {
		amount, err := correlation.ParseAmount(value)
		if err != nil {
			return err
		}
		amounts = append(amounts, amount)
	}

	_, err := r.wc.resolveSwap(ctx, &swapAction{
		poolAddress: swap.Token,
		hash:        swap.Hash,
		logIndex:    swap.LogIndex,
		sender:      swap.Sender,
		from:        swap.From,
		to:          swap.To,
		amount0In:   amounts[0],
		amount1In:   amounts[1],
		amount0Out:  amounts[2],
		amount1Out:  amounts[3],
	})
	return err
}

// expireLiquidity dead letters mint and burn halves whose transfer never arrived.
func (r *V2Resolver) expireLiquidity(ctx context.Context, kind correlation.Kind) error {
	halves, err := r.wc.Correlation.Liquidity(ctx, kind)
	if err != nil {
		return err
	}
	for key, half := range halves {
		if half.ChainId != r.wc.ChainId() || !r.wc.Correlation.Expired(&half.Header) {
			continue
		}
		r.deadLetter(ctx, r.logger.WithField("key", key), kind, key)
	}
	return nil
}

// applyPositionTransfer moves liquidity between two holders for a transfer that belongs to
// no mint or burn.
func (r *V2Resolver) applyPositionTransfer(ctx context.Context, transfer *correlation.TransferData) error {
	zero := lowerHex(zeroAddress)
	if transfer.From == zero || transfer.To == zero || transfer.From == transfer.Token || transfer.To == transfer.Token {
		return nil
	}

	value, err := correlation.ParseAmount(transfer.Amount)
	if err != nil {
		return err
	}
	amount := utils.FormatEther(value)

	return db.RunDBTransaction(func(tx *sqlx.Tx) error {
		pool, err := db.GetPool(ctx, tx, dbtypes.PoolId(transfer.Token, transfer.ChainId))
		if err != nil {
			return fmt.Errorf("error loading pool: %w", err)
		}
		if _, err := updateLiquidityPosition(ctx, tx, pool, transfer.From, amount.Neg(), transfer.BlockNumber, transfer.Hash, nil); err != nil {
			return err
		}
		_, err = updateLiquidityPosition(ctx, tx, pool, transfer.To, amount, transfer.BlockNumber, transfer.Hash, nil)
		return err
	})
}

func (r *V2Resolver) deadLetter(ctx context.Context, logger logrus.FieldLogger, kind correlation.Kind, key string) {
	if err := r.wc.Correlation.DeadLetter(ctx, kind, key); err != nil {
		logger.WithError(err).Warnf("could not dead letter %v entry", kind)
		return
	}
	logger.Infof("moved expired %v entry to %v", kind, kind.DeadLetter())
}
