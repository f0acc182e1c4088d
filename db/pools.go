package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/ethpandaops/dexindexer/dbtypes"
)

var poolColumns = []string{
	"id", "chain_id", "address", "name", "token0_id", "token1_id", "pool_type", "tick_spacing",
	"reserve0", "reserve1", "total_supply", "reserve_eth", "reserve_usd",
	"token0_price", "token1_price",
	"volume_token0", "volume_token1", "volume_usd", "volume_eth", "tx_count",
	"total_fees0", "total_fees1", "total_fees_usd",
	"total_bribes_usd", "total_emissions", "total_emissions_usd", "total_votes",
	"created_at_timestamp", "created_at_block_number",
}

func GetPool(ctx context.Context, q sqlx.QueryerContext, id string) (*dbtypes.Pool, error) {
	pool := &dbtypes.Pool{}
	err := getRow(ctx, q, pool, fmt.Sprintf("SELECT %v FROM pools WHERE id = $1", selectColumns(poolColumns)), id)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// GetPoolForUpdate reads a pool inside a write transaction.
func GetPoolForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*dbtypes.Pool, error) {
	pool := &dbtypes.Pool{}
	err := getRow(ctx, tx, pool, fmt.Sprintf("SELECT %v FROM pools WHERE id = $1%v", selectColumns(poolColumns), forUpdate()), id)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// GetPoolsByType returns all pools of a chain with one of the given kinds.
func GetPoolsByType(ctx context.Context, chainId uint64, poolTypes ...dbtypes.PoolType) ([]*dbtypes.Pool, error) {
	var sql strings.Builder
	args := []any{chainId}

	fmt.Fprintf(&sql, "SELECT %v FROM pools WHERE chain_id = $1", selectColumns(poolColumns))
	if len(poolTypes) > 0 {
		placeholders := make([]string, len(poolTypes))
		for i, poolType := range poolTypes {
			args = append(args, string(poolType))
			placeholders[i] = fmt.Sprintf("$%v", len(args))
		}
		fmt.Fprintf(&sql, " AND pool_type IN (%v)", strings.Join(placeholders, ", "))
	}
	fmt.Fprint(&sql, " ORDER BY created_at_block_number ASC, id ASC")

	pools := []*dbtypes.Pool{}
	err := ReaderDb.SelectContext(ctx, &pools, sql.String(), args...)
	if err != nil {
		return nil, errors.Wrap(err, "error fetching pools")
	}
	return pools, nil
}

// GetConcentratedPool finds the concentrated pool for a token pair and tick spacing.
func GetConcentratedPool(ctx context.Context, q sqlx.QueryerContext, chainId uint64, token0Id string, token1Id string, tickSpacing int64) (*dbtypes.Pool, error) {
	pool := &dbtypes.Pool{}
	err := getRow(ctx, q, pool, fmt.Sprintf(`
		SELECT %v FROM pools
		WHERE chain_id = $1 AND token0_id = $2 AND token1_id = $3 AND tick_spacing = $4 AND pool_type = $5
		LIMIT 1`, selectColumns(poolColumns)),
		chainId, token0Id, token1Id, tickSpacing, string(dbtypes.PoolTypeConcentrated))
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// InsertPool creates the pool row once. It returns false if the pool already existed.
func InsertPool(ctx context.Context, tx *sqlx.Tx, pool *dbtypes.Pool) (bool, error) {
	return insertIgnore(ctx, tx, "pools", []string{"id"}, poolColumns, pool)
}

func UpdatePool(ctx context.Context, tx *sqlx.Tx, pool *dbtypes.Pool) error {
	return upsert(ctx, tx, "pools", []string{"id"}, poolColumns, pool)
}
