package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/ethpandaops/dexindexer/dbtypes"
)

var rollupKey = []string{"chain_id", "id"}

var poolDayDataColumns = []string{
	"id", "chain_id", "pool_id", "date", "reserve0", "reserve1", "total_supply", "reserve_usd", "reserve_eth",
	"daily_volume_token0", "daily_volume_token1", "daily_volume_usd", "daily_volume_eth", "daily_txns",
}

var poolHourDataColumns = []string{
	"id", "chain_id", "pool_id", "hour_start_unix", "reserve0", "reserve1", "total_supply", "reserve_usd", "reserve_eth",
	"hourly_volume_token0", "hourly_volume_token1", "hourly_volume_usd", "hourly_volume_eth", "hourly_txns",
}

var tokenDayDataColumns = []string{
	"id", "chain_id", "token_id", "date", "price_usd", "price_eth",
	"total_liquidity_token", "total_liquidity_eth", "total_liquidity_usd",
	"daily_volume_token", "daily_volume_eth", "daily_volume_usd", "daily_txns",
}

var overallDayDataColumns = []string{
	"id", "chain_id", "date", "fees_usd", "tx_count", "volume_eth", "volume_usd",
	"liquidity_eth", "liquidity_usd", "total_trade_volume_eth", "total_trade_volume_usd",
}

func getRollupForUpdate(ctx context.Context, tx *sqlx.Tx, dest interface{}, table string, columns []string, chainId uint64, id string) error {
	return getRow(ctx, tx, dest, fmt.Sprintf("SELECT %v FROM %v WHERE chain_id = $1 AND id = $2%v", selectColumns(columns), table, forUpdate()), chainId, id)
}

func GetPoolDayDataForUpdate(ctx context.Context, tx *sqlx.Tx, chainId uint64, id string) (*dbtypes.PoolDayData, error) {
	row := &dbtypes.PoolDayData{}
	if err := getRollupForUpdate(ctx, tx, row, "pool_day_data", poolDayDataColumns, chainId, id); err != nil {
		return nil, err
	}
	return row, nil
}

func UpsertPoolDayData(ctx context.Context, tx *sqlx.Tx, row *dbtypes.PoolDayData) error {
	return upsert(ctx, tx, "pool_day_data", rollupKey, poolDayDataColumns, row)
}

func GetPoolHourDataForUpdate(ctx context.Context, tx *sqlx.Tx, chainId uint64, id string) (*dbtypes.PoolHourData, error) {
	row := &dbtypes.PoolHourData{}
	if err := getRollupForUpdate(ctx, tx, row, "pool_hour_data", poolHourDataColumns, chainId, id); err != nil {
		return nil, err
	}
	return row, nil
}

func UpsertPoolHourData(ctx context.Context, tx *sqlx.Tx, row *dbtypes.PoolHourData) error {
	return upsert(ctx, tx, "pool_hour_data", rollupKey, poolHourDataColumns, row)
}

func GetTokenDayDataForUpdate(ctx context.Context, tx *sqlx.Tx, chainId uint64, id string) (*dbtypes.TokenDayData, error) {
	row := &dbtypes.TokenDayData{}
	if err := getRollupForUpdate(ctx, tx, row, "token_day_data", tokenDayDataColumns, chainId, id); err != nil {
		return nil, err
	}
	return row, nil
}

func UpsertTokenDayData(ctx context.Context, tx *sqlx.Tx, row *dbtypes.TokenDayData) error {
	return upsert(ctx, tx, "token_day_data", rollupKey, tokenDayDataColumns, row)
}

func GetOverallDayDataForUpdate(ctx context.Context, tx *sqlx.Tx, chainId uint64, id string) (*dbtypes.OverallDayData, error) {
	row := &dbtypes.OverallDayData{}
	if err := getRollupForUpdate(ctx, tx, row, "overall_day_data", overallDayDataColumns, chainId, id); err != nil {
		return nil, err
	}
	return row, nil
}

func UpsertOverallDayData(ctx context.Context, tx *sqlx.Tx, row *dbtypes.OverallDayData) error {
	return upsert(ctx, tx, "overall_day_data", rollupKey, overallDayDataColumns, row)
}

func GetPoolDayData(ctx context.Context, chainId uint64, id string) (*dbtypes.PoolDayData, error) {
	row := &dbtypes.PoolDayData{}
	err := getRow(ctx, ReaderDb, row, fmt.Sprintf("SELECT %v FROM pool_day_data WHERE chain_id = $1 AND id = $2", selectColumns(poolDayDataColumns)), chainId, id)
	if err != nil {
		return nil, err
	}
	return row, nil
}

func GetPoolHourData(ctx context.Context, chainId uint64, id string) (*dbtypes.PoolHourData, error) {
	row := &dbtypes.PoolHourData{}
	err := getRow(ctx, ReaderDb, row, fmt.Sprintf("SELECT %v FROM pool_hour_data WHERE chain_id = $1 AND id = $2", selectColumns(poolHourDataColumns)), chainId, id)
	if err != nil {
		return nil, err
	}
	return row, nil
}

func GetTokenDayData(ctx context.Context, chainId uint64, id string) (*dbtypes.TokenDayData, error) {
	row := &dbtypes.TokenDayData{}
	err := getRow(ctx, ReaderDb, row, fmt.Sprintf("SELECT %v FROM token_day_data WHERE chain_id = $1 AND id = $2", selectColumns(tokenDayDataColumns)), chainId, id)
	if err != nil {
		return nil, err
	}
	return row, nil
}

func GetOverallDayDatas(ctx context.Context, chainId uint64, limit uint32) ([]*dbtypes.OverallDayData, error) {
	rows := []*dbtypes.OverallDayData{}
	err := ReaderDb.SelectContext(ctx, &rows, fmt.Sprintf(`
		SELECT %v FROM overall_day_data
		WHERE chain_id = $1
		ORDER BY date DESC
		LIMIT $2`, selectColumns(overallDayDataColumns)), chainId, limit)
	if err != nil {
		return nil, errors.Wrap(err, "error fetching overall day data")
	}
	return rows, nil
}
