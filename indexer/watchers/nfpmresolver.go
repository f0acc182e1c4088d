package watchers

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/dexindexer/db"
	"github.com/ethpandaops/dexindexer/dbtypes"
	"github.com/ethpandaops/dexindexer/indexer/contracts"
	"github.com/ethpandaops/dexindexer/indexer/correlation"
	"github.com/ethpandaops/dexindexer/utils"
)

// NfpmResolver applies staged position NFT transfers to the liquidity positions of
// concentrated pools.
type NfpmResolver struct {
	wc       *WatcherCtx
	logger   logrus.FieldLogger
	contract common.Address
}

func NewNfpmResolver(wc *WatcherCtx) *NfpmResolver {
	return &NfpmResolver{
		wc:       wc,
		logger:   wc.logger().WithField("watcher", "nfpm-resolver"),
		contract: common.HexToAddress(wc.Access.Config.Nfpm.Address),
	}
}

func (r *NfpmResolver) Name() string {
	return "nfpm-resolver"
}

func (r *NfpmResolver) Run(ctx context.Context) {
	defer utils.HandleSubroutinePanic("NfpmResolver.Run")

	for ctx.Err() == nil {
		if _, err := r.RunPass(ctx); err != nil && ctx.Err() == nil {
			r.logger.WithError(err).Warn("resolver pass failed")
		}
		if !utils.Sleep(ctx, r.wc.resolverInterval()) {
			break
		}
	}
}

// RunPass applies the staged transfers of the chain in block order. A failed transfer
// holds back the later transfers of the same token id.
func (r *NfpmResolver) RunPass(ctx context.Context) (int, error) {
	resolved := 0
	err := r.wc.Access.WithLock(ctx, func(ctx context.Context) error {
		transfers, err := r.wc.Correlation.NfpmTransfers(ctx)
		if err != nil {
			return err
		}

		blocked := map[string]bool{}
		for _, transfer := range transfers {
			if transfer.ChainId != r.wc.ChainId() || blocked[transfer.TokenId] {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}

			key := transfer.Key()
			logger := r.logger.WithField("key", key)
			if err := r.apply(ctx, transfer); err != nil {
				logger.WithError(err).Warnf("could not apply position %v", transfer.Type)
				if r.wc.Correlation.Expired(&transfer.Header) {
					if err := r.wc.Correlation.DeadLetter(ctx, correlation.KindNfpmTransfer, key); err != nil {
						return err
					}
					logger.Infof("moved expired position %v to %v", transfer.Type, correlation.KindNfpmTransfer.DeadLetter())
					continue
				}
				blocked[transfer.TokenId] = true
				continue
			}

			if err := r.wc.Correlation.Remove(ctx, correlation.KindNfpmTransfer, key); err != nil {
				return err
			}
			resolved++
		}
		return nil
	})

	if _, pendingErr := r.wc.Correlation.Pending(ctx, correlation.KindNfpmTransfer); pendingErr != nil {
		r.logger.WithError(pendingErr).Debug("could not count pending position transfers")
	}
	if resolved > 0 {
		r.wc.Counters.Add(r.Name(), uint64(resolved))
	}
	return resolved, err
}

func (r *NfpmResolver) apply(ctx context.Context, transfer *correlation.NfpmTransferData) error {
	switch transfer.Type {
	case correlation.NfpmMint:
		return r.applyMint(ctx, transfer)
	case correlation.NfpmBurn:
		return r.applyBurn(ctx, transfer)
	default:
		return r.applyTransfer(ctx, transfer)
	}
}

// applyMint opens the position of a new NFT with the liquidity the position manager reports for it.
func (r *NfpmResolver) applyMint(ctx context.Context, transfer *correlation.NfpmTransferData) error {
	tokenId, ok := new(big.Int).SetString(transfer.TokenId, 10)
	if !ok {
		return fmt.Errorf("invalid token id %q", transfer.TokenId)
	}

	position, err := contracts.GetPosition(ctx, r.wc.Access.Reader, r.contract, tokenId)
	if err != nil {
		return fmt.Errorf("error loading position %v: %w", transfer.TokenId, err)
	}

	chainId := r.wc.ChainId()
	pool, err := db.GetConcentratedPool(ctx, db.ReaderDb, chainId,
		dbtypes.TokenId(position.Token0.Hex(), chainId),
		dbtypes.TokenId(position.Token1.Hex(), chainId),
		position.TickSpacing)
	if err != nil {
		return fmt.Errorf("error loading pool of position %v: %w", transfer.TokenId, err)
	}

	liquidity := utils.FormatEther(position.Liquidity)
	return db.RunDBTransaction(func(tx *sqlx.Tx) error {
		_, err := setLiquidityPosition(ctx, tx, pool, transfer.To, liquidity, transfer.BlockNumber, transfer.Hash, &transfer.TokenId)
		return err
	})
}

// applyTransfer moves the open position of the NFT to its new holder.
func (r *NfpmResolver) applyTransfer(ctx context.Context, transfer *correlation.NfpmTransferData) error {
	return db.RunDBTransaction(func(tx *sqlx.Tx) error {
		current, pool, err := openPosition(ctx, tx, r.wc.ChainId(), transfer.TokenId)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("no open position for token id %v", transfer.TokenId)
		}
		if current.Account == dbtypes.UserId(transfer.To) {
			return nil
		}

		amount := current.Position
		if _, err := setLiquidityPosition(ctx, tx, pool, current.Account, decimal.Zero, transfer.BlockNumber, transfer.Hash, &transfer.TokenId); err != nil {
			return err
		}
		_, err = setLiquidityPosition(ctx, tx, pool, transfer.To, amount, transfer.BlockNumber, transfer.Hash, &transfer.TokenId)
		return err
	})
}

// applyBurn closes the position of a burned NFT.
func (r *NfpmResolver) applyBurn(ctx context.Context, transfer *correlation.NfpmTransferData) error {
	return db.RunDBTransaction(func(tx *sqlx.Tx) error {
		current, pool, err := openPosition(ctx, tx, r.wc.ChainId(), transfer.TokenId)
		if err != nil || current == nil {
			return err
		}
		_, err = setLiquidityPosition(ctx, tx, pool, current.Account, decimal.Zero, transfer.BlockNumber, transfer.Hash, &transfer.TokenId)
		return err
	})
}

// openPosition returns the latest non-zero position row of an NFT and its pool, or nil if there is none.
func openPosition(ctx context.Context, tx *sqlx.Tx, chainId uint64, tokenId string) (*dbtypes.LiquidityPosition, *dbtypes.Pool, error) {
	positions, err := db.GetPositionsByTokenId(ctx, tx, chainId, tokenId)
	if err != nil {
		return nil, nil, err
	}

	var current *dbtypes.LiquidityPosition
	for _, position := range positions {
		if !position.Position.IsZero() {
			current = position
		}
	}
	if current == nil {
		return nil, nil, nil
	}

	pool, err := db.GetPool(ctx, tx, current.PoolId)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading pool %v: %w", current.PoolId, err)
	}
	return current, pool, nil
}

// setLiquidityPosition sets the position of account to value, so reapplying a transfer is harmless.
func setLiquidityPosition(ctx context.Context, tx *sqlx.Tx, pool *dbtypes.Pool, account string, value decimal.Decimal, block uint64, txHash string, tokenId *string) (*dbtypes.LiquidityPosition, error) {
	delta := value
	existing, err := db.GetLiquidityPositionForUpdate(ctx, tx, dbtypes.PositionId(pool.Address, account, pool.ChainId, tokenId))
	switch {
	case err == nil:
		delta = value.Sub(existing.Position)
	case !errors.Is(err, db.ErrNotFound):
		return nil, err
	}
	return updateLiquidityPosition(ctx, tx, pool, account, delta, block, txHash, tokenId)
}
