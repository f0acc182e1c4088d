package aggregation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/dexindexer/db"
	"github.com/ethpandaops/dexindexer/dbtypes"
	"github.com/ethpandaops/dexindexer/utils"
)

const (
	DaySeconds  = 86400
	HourSeconds = 3600
)

func DayId(timestamp uint64) uint64 {
	return timestamp / DaySeconds
}

func HourIndex(timestamp uint64) uint64 {
	return timestamp / HourSeconds
}

func OverallDayDataId(timestamp uint64) string {
	return fmt.Sprintf("%v", DayId(timestamp))
}

func PoolDayDataId(poolAddress string, timestamp uint64) string {
	return fmt.Sprintf("%v-%v", strings.ToLower(poolAddress), DayId(timestamp))
}

func PoolHourDataId(poolAddress string, timestamp uint64) string {
	return fmt.Sprintf("%v-%v", strings.ToLower(poolAddress), HourIndex(timestamp))
}

func TokenDayDataId(tokenAddress string, timestamp uint64) string {
	return fmt.Sprintf("%v-%v", strings.ToLower(tokenAddress), DayId(timestamp))
}

// Action is what one resolved mint, burn or swap contributes to the rollups. Pool and
// tokens hold the state after the action was applied to them.
type Action struct {
	Timestamp uint64
	Pool      *dbtypes.Pool
	Token0    *dbtypes.Token
	Token1    *dbtypes.Token

	Amount0    decimal.Decimal
	Amount1    decimal.Decimal
	Amount0ETH decimal.Decimal
	Amount1ETH decimal.Decimal
	Amount0USD decimal.Decimal
	Amount1USD decimal.Decimal
}

func (a *Action) AmountETH() decimal.Decimal {
	return a.Amount0ETH.Add(a.Amount1ETH)
}

func (a *Action) AmountUSD() decimal.Decimal {
	return a.Amount0USD.Add(a.Amount1USD)
}

// Engine keeps the day, hour and global rollups of a chain up to date. Every bucket is
// read-modify-written inside the caller's transaction.
type Engine struct {
	logger logrus.FieldLogger
}

func NewEngine(logger logrus.FieldLogger) *Engine {
	return &Engine{
		logger: logger.WithField("module", "aggregation"),
	}
}

// Apply adds action to all four rollups. stats is the chain's statistics row as updated by
// the same transaction.
func (e *Engine) Apply(ctx context.Context, tx *sqlx.Tx, action *Action, stats *dbtypes.Statistics) error {
	if err := e.updateOverallDayData(ctx, tx, action, stats); err != nil {
		return fmt.Errorf("error updating overall day data: %w", err)
	}
	if err := e.updatePoolDayData(ctx, tx, action); err != nil {
		return fmt.Errorf("error updating pool day data: %w", err)
	}
	if err := e.updatePoolHourData(ctx, tx, action); err != nil {
		return fmt.Errorf("error updating pool hour data: %w", err)
	}
	if err := e.updateTokenDayData(ctx, tx, action.Token0, action.Timestamp, action.Amount0, action.Amount0ETH, action.Amount0USD); err != nil {
		return fmt.Errorf("error updating token0 day data: %w", err)
	}
	if err := e.updateTokenDayData(ctx, tx, action.Token1, action.Timestamp, action.Amount1, action.Amount1ETH, action.Amount1USD); err != nil {
		return fmt.Errorf("error updating token1 day data: %w", err)
	}

	e.logger.Debugf("rollups updated for pool %v at %v", action.Pool.Address, action.Timestamp)
	return nil
}

func (e *Engine) updateOverallDayData(ctx context.Context, tx *sqlx.Tx, action *Action, stats *dbtypes.Statistics) error {
	chainId := action.Pool.ChainId
	id := OverallDayDataId(action.Timestamp)

	row, err := db.GetOverallDayDataForUpdate(ctx, tx, chainId, id)
	if errors.Is(err, db.ErrNotFound) {
		row = &dbtypes.OverallDayData{
			Id:      id,
			ChainId: chainId,
			Date:    DayId(action.Timestamp) * DaySeconds,
		}
	} else if err != nil {
		return err
	}

	row.LiquidityUSD = stats.TotalVolumeLockedUSD
	row.LiquidityETH = stats.TotalVolumeLockedETH
	row.TotalTradeVolumeETH = stats.TotalTradeVolumeETH
	row.TotalTradeVolumeUSD = stats.TotalTradeVolumeUSD
	row.FeesUSD = row.FeesUSD.Add(action.Pool.TotalFeesUSD)
	row.VolumeETH = row.VolumeETH.Add(action.AmountETH()).Round(utils.DecimalScale)
	row.VolumeUSD = row.VolumeUSD.Add(action.AmountUSD()).Round(utils.DecimalScale)
	row.TxCount++

	return db.UpsertOverallDayData(ctx, tx, row)
}

func (e *Engine) updatePoolDayData(ctx context.Context, tx *sqlx.Tx, action *Action) error {
	pool := action.Pool
	id := PoolDayDataId(pool.Address, action.Timestamp)

	row, err := db.GetPoolDayDataForUpdate(ctx, tx, pool.ChainId, id)
	if errors.Is(err, db.ErrNotFound) {
		row = &dbtypes.PoolDayData{
			Id:      id,
			ChainId: pool.ChainId,
			PoolId:  pool.Id,
			Date:    DayId(action.Timestamp) * DaySeconds,
		}
	} else if err != nil {
		return err
	}

	row.TotalSupply = pool.TotalSupply
	row.Reserve0 = pool.Reserve0
	row.Reserve1 = pool.Reserve1
	row.ReserveETH = pool.ReserveETH
	row.ReserveUSD = pool.ReserveUSD
	row.DailyVolumeToken0 = row.DailyVolumeToken0.Add(action.Amount0)
	row.DailyVolumeToken1 = row.DailyVolumeToken1.Add(action.Amount1)
	row.DailyVolumeETH = row.DailyVolumeETH.Add(action.AmountETH()).Round(utils.DecimalScale)
	row.DailyVolumeUSD = row.DailyVolumeUSD.Add(action.AmountUSD()).Round(utils.DecimalScale)
	row.DailyTxns++

	return db.UpsertPoolDayData(ctx, tx, row)
}

func (e *Engine) updatePoolHourData(ctx context.Context, tx *sqlx.Tx, action *Action) error {
	pool := action.Pool
	id := PoolHourDataId(pool.Address, action.Timestamp)

	row, err := db.GetPoolHourDataForUpdate(ctx, tx, pool.ChainId, id)
	if errors.Is(err, db.ErrNotFound) {
		row = &dbtypes.PoolHourData{
			Id:            id,
			ChainId:       pool.ChainId,
			PoolId:        pool.Id,
			HourStartUnix: HourIndex(action.Timestamp) * HourSeconds,
		}
	} else if err != nil {
		return err
	}

	row.TotalSupply = pool.TotalSupply
	row.Reserve0 = pool.Reserve0
	row.Reserve1 = pool.Reserve1
	row.ReserveETH = pool.ReserveETH
	row.ReserveUSD = pool.ReserveUSD
	row.HourlyVolumeToken0 = row.HourlyVolumeToken0.Add(action.Amount0)
	row.HourlyVolumeToken1 = row.HourlyVolumeToken1.Add(action.Amount1)
	row.HourlyVolumeETH = row.HourlyVolumeETH.Add(action.AmountETH()).Round(utils.DecimalScale)
	row.HourlyVolumeUSD = row.HourlyVolumeUSD.Add(action.AmountUSD()).Round(utils.DecimalScale)
	row.HourlyTxns++

	return db.UpsertPoolHourData(ctx, tx, row)
}

func (e *Engine) updateTokenDayData(ctx context.Context, tx *sqlx.Tx, token *dbtypes.Token, timestamp uint64, amount, amountETH, amountUSD decimal.Decimal) error {
	id := TokenDayDataId(token.Address, timestamp)

	row, err := db.GetTokenDayDataForUpdate(ctx, tx, token.ChainId, id)
	if errors.Is(err, db.ErrNotFound) {
		row = &dbtypes.TokenDayData{
			Id:      id,
			ChainId: token.ChainId,
			TokenId: token.Id,
			Date:    DayId(timestamp) * DaySeconds,
		}
	} else if err != nil {
		return err
	}

	row.PriceUSD = token.DerivedUSD
	row.PriceETH = token.DerivedETH
	row.TotalLiquidityToken = token.TotalLiquidity
	row.TotalLiquidityETH = utils.MulRound(token.TotalLiquidity, token.DerivedETH)
	row.TotalLiquidityUSD = utils.MulRound(token.TotalLiquidity, token.DerivedUSD)
	row.DailyVolumeToken = row.DailyVolumeToken.Add(amount)
	row.DailyVolumeETH = row.DailyVolumeETH.Add(amountETH).Round(utils.DecimalScale)
	row.DailyVolumeUSD = row.DailyVolumeUSD.Add(amountUSD).Round(utils.DecimalScale)
	row.DailyTxns++

	return db.UpsertTokenDayData(ctx, tx, row)
}
