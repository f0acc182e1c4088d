package watchers

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/ethpandaops/dexindexer/db"
	"github.com/ethpandaops/dexindexer/dbtypes"
	"github.com/ethpandaops/dexindexer/indexer/aggregation"
	"github.com/ethpandaops/dexindexer/indexer/contracts"
	"github.com/ethpandaops/dexindexer/indexer/correlation"
	"github.com/ethpandaops/dexindexer/indexer/oracle"
	"github.com/ethpandaops/dexindexer/utils"
)

var zeroAddress = common.Address{}

func lowerHex(address common.Address) string {
	return strings.ToLower(address.Hex())
}

func (wc *WatcherCtx) header(log *types.Log) correlation.Header {
	return correlation.Header{
		ChainId:     wc.ChainId(),
		Hash:        strings.ToLower(log.TxHash.Hex()),
		LogIndex:    uint64(log.Index),
		BlockNumber: log.BlockNumber,
	}
}

// ensureTransaction creates the transaction row of log if it does not exist yet.
func (wc *WatcherCtx) ensureTransaction(ctx context.Context, log *types.Log) (*dbtypes.Transaction, error) {
	id := dbtypes.TransactionId(log.TxHash.Hex(), wc.ChainId())
	txn, err := db.GetTransaction(ctx, db.ReaderDb, id)
	if err == nil {
		return txn, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	timestamp, err := wc.Access.Reader.GetBlockTimestamp(ctx, log.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("error loading block %v: %w", log.BlockNumber, err)
	}

	txn = &dbtypes.Transaction{
		Id:        id,
		ChainId:   wc.ChainId(),
		Hash:      strings.ToLower(log.TxHash.Hex()),
		Block:     log.BlockNumber,
		Timestamp: timestamp,
	}
	err = db.RunDBTransaction(func(tx *sqlx.Tx) error {
		_, err := db.InsertTransaction(ctx, tx, txn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// newToken builds a zeroed token row from the token contract's metadata.
func (wc *WatcherCtx) newToken(ctx context.Context, address common.Address) (*dbtypes.Token, error) {
	id := dbtypes.TokenId(address.Hex(), wc.ChainId())
	token, err := db.GetToken(ctx, db.ReaderDb, id)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	metadata, err := contracts.GetTokenMetadata(ctx, wc.Access.Reader, address)
	if err != nil {
		return nil, fmt.Errorf("error loading metadata of token %v: %w", address.Hex(), err)
	}

	return &dbtypes.Token{
		Id:       id,
		ChainId:  wc.ChainId(),
		Address:  lowerHex(address),
		Symbol:   metadata.Symbol,
		Name:     metadata.Name,
		Decimals: metadata.Decimals,
	}, nil
}

type tokenPrice struct {
	usd decimal.Decimal
	eth decimal.Decimal
}

// fetchTokenPrice reads the oracle prices of token. It returns nil if the chain has no oracle,
// in which case the stored prices are kept.
func (wc *WatcherCtx) fetchTokenPrice(ctx context.Context, token *dbtypes.Token) (*tokenPrice, error) {
	usd, err := wc.Prices.GetPriceInUSD(ctx, token.Address, token.ChainId)
	if errors.Is(err, oracle.ErrNoOracle) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error loading usd price of %v: %w", token.Address, err)
	}

	eth, err := wc.Prices.GetPriceInETH(ctx, token.Address, token.ChainId)
	if err != nil {
		return nil, fmt.Errorf("error loading eth price of %v: %w", token.Address, err)
	}

	return &tokenPrice{usd: usd, eth: eth}, nil
}

// poolSnapshot is a pool with fresh oracle prices of its tokens, prepared outside a db transaction.
type poolSnapshot struct {
	pool   *dbtypes.Pool
	price0 *tokenPrice
	price1 *tokenPrice
}

func (wc *WatcherCtx) preparePool(ctx context.Context, poolAddress string) (*poolSnapshot, error) {
	pool, err := db.GetPool(ctx, db.ReaderDb, dbtypes.PoolId(poolAddress, wc.ChainId()))
	if err != nil {
		return nil, fmt.Errorf("error loading pool %v: %w", poolAddress, err)
	}

	snapshot := &poolSnapshot{pool: pool}
	for i, tokenId := range []string{pool.Token0Id, pool.Token1Id} {
		token, err := db.GetToken(ctx, db.ReaderDb, tokenId)
		if err != nil {
			return nil, fmt.Errorf("error loading token %v: %w", tokenId, err)
		}
		price, err := wc.fetchTokenPrice(ctx, token)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			snapshot.price0 = price
		} else {
			snapshot.price1 = price
		}
	}

	if wc.Config.ResolveDelay > 0 && !utils.Sleep(ctx, wc.Config.ResolveDelay) {
		return nil, ctx.Err()
	}
	return snapshot, nil
}

// lockPool loads the pool and its tokens for update and applies the prepared prices.
func lockPool(ctx context.Context, tx *sqlx.Tx, snapshot *poolSnapshot) (*dbtypes.Pool, *dbtypes.Token, *dbtypes.Token, error) {
	pool, err := db.GetPoolForUpdate(ctx, tx, snapshot.pool.Id)
	if err != nil {
		return nil, nil, nil, err
	}
	token0, err := db.GetTokenForUpdate(ctx, tx, pool.Token0Id)
	if err != nil {
		return nil, nil, nil, err
	}
	token1, err := db.GetTokenForUpdate(ctx, tx, pool.Token1Id)
	if err != nil {
		return nil, nil, nil, err
	}

	if snapshot.price0 != nil {
		token0.DerivedUSD = snapshot.price0.usd
		token0.DerivedETH = snapshot.price0.eth
	}
	if snapshot.price1 != nil {
		token1.DerivedUSD = snapshot.price1.usd
		token1.DerivedETH = snapshot.price1.eth
	}
	return pool, token0, token1, nil
}

// updateLiquidityPosition adds delta to the position of account in pool. tokenId is set for
// concentrated liquidity positions.
func updateLiquidityPosition(ctx context.Context, tx *sqlx.Tx, pool *dbtypes.Pool, account string, delta decimal.Decimal, block uint64, txHash string, tokenId *string) (*dbtypes.LiquidityPosition, error) {
	account = strings.ToLower(account)
	if _, err := db.InsertUser(ctx, tx, &dbtypes.User{Id: dbtypes.UserId(account), Address: account}); err != nil {
		return nil, err
	}

	id := dbtypes.PositionId(pool.Address, account, pool.ChainId, tokenId)
	position, err := db.GetLiquidityPositionForUpdate(ctx, tx, id)
	if errors.Is(err, db.ErrNotFound) {
		position = &dbtypes.LiquidityPosition{
			Id:                  id,
			ChainId:             pool.ChainId,
			PoolId:              pool.Id,
			Account:             dbtypes.UserId(account),
			CreationBlock:       block,
			CreationTransaction: txHash,
			ClPositionTokenId:   tokenId,
		}
	} else if err != nil {
		return nil, err
	}

	position.Position = position.Position.Add(delta)
	if err := db.UpsertLiquidityPosition(ctx, tx, position); err != nil {
		return nil, err
	}
	return position, nil
}

type liquidityAction struct {
	kind        correlation.Kind
	poolAddress string
	hash        string
	logIndex    uint64
	sender      string
	to          string
	amount0     *big.Int
	amount1     *big.Int
	liquidity   decimal.Decimal
	// holder gets the liquidity position update, empty to skip it
	holder string
}

// resolveLiquidity writes a mint or burn row and applies it to the pool, tokens, statistics
// and rollups. It returns false if the action was already recorded.
func (wc *WatcherCtx) resolveLiquidity(ctx context.Context, action *liquidityAction) (bool, error) {
	snapshot, err := wc.preparePool(ctx, action.poolAddress)
	if err != nil {
		return false, err
	}

	txn, err := db.GetTransaction(ctx, db.ReaderDb, dbtypes.TransactionId(action.hash, wc.ChainId()))
	if err != nil {
		return false, fmt.Errorf("error loading transaction %v: %w", action.hash, err)
	}

	inserted := false
	err = db.RunDBTransaction(func(tx *sqlx.Tx) error {
		pool, token0, token1, err := lockPool(ctx, tx, snapshot)
		if err != nil {
			return err
		}

		amount0 := utils.FormatUnits(action.amount0, token0.Decimals)
		amount1 := utils.FormatUnits(action.amount1, token1.Decimals)
		rollup := &aggregation.Action{
			Timestamp:  txn.Timestamp,
			Pool:       pool,
			Token0:     token0,
			Token1:     token1,
			Amount0:    amount0,
			Amount1:    amount1,
			Amount0ETH: utils.MulRound(amount0, token0.DerivedETH),
			Amount1ETH: utils.MulRound(amount1, token1.DerivedETH),
			Amount0USD: utils.MulRound(amount0, token0.DerivedUSD),
			Amount1USD: utils.MulRound(amount1, token1.DerivedUSD),
		}

		row := &dbtypes.Mint{
			Id:            dbtypes.ActionId(string(action.kind), action.hash, action.logIndex, wc.ChainId()),
			ChainId:       wc.ChainId(),
			TransactionId: txn.Id,
			PoolId:        pool.Id,
			Timestamp:     txn.Timestamp,
			To:            strings.ToLower(action.to),
			Sender:        strings.ToLower(action.sender),
			Liquidity:     action.liquidity,
			Amount0:       amount0,
			Amount1:       amount1,
			AmountUSD:     rollup.AmountUSD(),
			LogIndex:      action.logIndex,
		}

		delta := action.liquidity
		if action.kind == correlation.KindBurn {
			delta = delta.Neg()
			inserted, err = db.InsertBurn(ctx, tx, (*dbtypes.Burn)(row))
		} else {
			inserted, err = db.InsertMint(ctx, tx, row)
		}
		if err != nil || !inserted {
			return err
		}

		token0.TxCount++
		token1.TxCount++
		pool.TxCount++
		pool.TotalSupply = pool.TotalSupply.Add(delta)

		if err := wc.applyAction(ctx, tx, rollup, decimal.Zero, decimal.Zero); err != nil {
			return err
		}

		if action.holder != "" {
			if _, err := updateLiquidityPosition(ctx, tx, pool, action.holder, delta, txn.Block, txn.Hash, nil); err != nil {
				return fmt.Errorf("error updating position: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// applyAction persists pool and tokens of action, counts it in the statistics and updates the rollups.
// tradeVolumeETH/USD are added to the statistics trade volume.
func (wc *WatcherCtx) applyAction(ctx context.Context, tx *sqlx.Tx, action *aggregation.Action, tradeVolumeETH, tradeVolumeUSD decimal.Decimal) error {
	if err := db.UpdateToken(ctx, tx, action.Token0); err != nil {
		return err
	}
	if err := db.UpdateToken(ctx, tx, action.Token1); err != nil {
		return err
	}
	if err := db.UpdatePool(ctx, tx, action.Pool); err != nil {
		return err
	}

	stats, err := db.GetOrCreateStatistics(ctx, tx, wc.ChainId())
	if err != nil {
		return err
	}
	stats.TxCount++
	stats.TotalTradeVolumeETH = stats.TotalTradeVolumeETH.Add(tradeVolumeETH).Round(utils.DecimalScale)
	stats.TotalTradeVolumeUSD = stats.TotalTradeVolumeUSD.Add(tradeVolumeUSD).Round(utils.DecimalScale)
	if err := db.UpdateStatistics(ctx, tx, stats); err != nil {
		return err
	}

	return wc.Engine.Apply(ctx, tx, action, stats)
}

type swapAction struct {
	poolAddress string
	hash        string
	logIndex    uint64
	sender      string
	from        string
	to          string
	amount0In   *big.Int
	amount1In   *big.Int
	amount0Out  *big.Int
	amount1Out  *big.Int
}

// resolveSwap writes a swap row and applies its volume. It returns false if the swap was already recorded.
func (wc *WatcherCtx) resolveSwap(ctx context.Context, action *swapAction) (bool, error) {
	snapshot, err := wc.preparePool(ctx, action.poolAddress)
	if err != nil {
		return false, err
	}

	txn, err := db.GetTransaction(ctx, db.ReaderDb, dbtypes.TransactionId(action.hash, wc.ChainId()))
	if err != nil {
		return false, fmt.Errorf("error loading transaction %v: %w", action.hash, err)
	}

	inserted := false
	err = db.RunDBTransaction(func(tx *sqlx.Tx) error {
		pool, token0, token1, err := lockPool(ctx, tx, snapshot)
		if err != nil {
			return err
		}

		amount0In := utils.FormatUnits(action.amount0In, token0.Decimals)
		amount1In := utils.FormatUnits(action.amount1In, token1.Decimals)
		amount0Out := utils.FormatUnits(action.amount0Out, token0.Decimals)
		amount1Out := utils.FormatUnits(action.amount1Out, token1.Decimals)
		amount0Total := amount0In.Add(amount0Out)
		amount1Total := amount1In.Add(amount1Out)

		rollup := &aggregation.Action{
			Timestamp:  txn.Timestamp,
			Pool:       pool,
			Token0:     token0,
			Token1:     token1,
			Amount0:    amount0Total,
			Amount1:    amount1Total,
			Amount0ETH: utils.MulRound(amount0Total, token0.DerivedETH),
			Amount1ETH: utils.MulRound(amount1Total, token1.DerivedETH),
			Amount0USD: utils.MulRound(amount0Total, token0.DerivedUSD),
			Amount1USD: utils.MulRound(amount1Total, token1.DerivedUSD),
		}

		inserted, err = db.InsertSwap(ctx, tx, &dbtypes.Swap{
			Id:            dbtypes.ActionId(string(correlation.KindSwap), action.hash, action.logIndex, wc.ChainId()),
			ChainId:       wc.ChainId(),
			TransactionId: txn.Id,
			PoolId:        pool.Id,
			Timestamp:     txn.Timestamp,
			Sender:        strings.ToLower(action.sender),
			From:          strings.ToLower(action.from),
			To:            strings.ToLower(action.to),
			Amount0In:     amount0In,
			Amount1In:     amount1In,
			Amount0Out:    amount0Out,
			Amount1Out:    amount1Out,
			AmountUSD:     rollup.AmountUSD(),
			LogIndex:      action.logIndex,
		})
		if err != nil || !inserted {
			return err
		}

		pool.VolumeToken0 = pool.VolumeToken0.Add(amount0Total)
		pool.VolumeToken1 = pool.VolumeToken1.Add(amount1Total)
		pool.VolumeETH = pool.VolumeETH.Add(rollup.AmountETH()).Round(utils.DecimalScale)
		pool.VolumeUSD = pool.VolumeUSD.Add(rollup.AmountUSD()).Round(utils.DecimalScale)
		pool.TxCount++

		token0.TradeVolume = token0.TradeVolume.Add(amount0Total)
		token0.TradeVolumeUSD = token0.TradeVolumeUSD.Add(rollup.Amount0USD).Round(utils.DecimalScale)
		token0.TxCount++
		token1.TradeVolume = token1.TradeVolume.Add(amount1Total)
		token1.TradeVolumeUSD = token1.TradeVolumeUSD.Add(rollup.Amount1USD).Round(utils.DecimalScale)
		token1.TxCount++

		return wc.applyAction(ctx, tx, rollup, rollup.AmountETH(), rollup.AmountUSD())
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}
