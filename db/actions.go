package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/ethpandaops/dexindexer/dbtypes"
)

var liquidityActionColumns = []string{
	"id", "chain_id", "transaction_id", "pool_id", "timestamp", "to_address", "sender",
	"liquidity", "amount0", "amount1", "amount_usd", "log_index",
}

var swapColumns = []string{
	"id", "chain_id", "transaction_id", "pool_id", "timestamp", "sender", "from_address", "to_address",
	"amount0_in", "amount1_in", "amount0_out", "amount1_out", "amount_usd", "log_index",
}

// InsertMint writes a mint row. Rows are immutable, a second insert with the same id is ignored.
func InsertMint(ctx context.Context, tx *sqlx.Tx, mint *dbtypes.Mint) (bool, error) {
	return insertIgnore(ctx, tx, "mints", []string{"id"}, liquidityActionColumns, mint)
}

func InsertBurn(ctx context.Context, tx *sqlx.Tx, burn *dbtypes.Burn) (bool, error) {
	return insertIgnore(ctx, tx, "burns", []string{"id"}, liquidityActionColumns, burn)
}

func InsertSwap(ctx context.Context, tx *sqlx.Tx, swap *dbtypes.Swap) (bool, error) {
	return insertIgnore(ctx, tx, "swaps", []string{"id"}, swapColumns, swap)
}

func GetMint(ctx context.Context, q sqlx.QueryerContext, id string) (*dbtypes.Mint, error) {
	mint := &dbtypes.Mint{}
	err := getRow(ctx, q, mint, fmt.Sprintf("SELECT %v FROM mints WHERE id = $1", selectColumns(liquidityActionColumns)), id)
	if err != nil {
		return nil, err
	}
	return mint, nil
}

func GetBurn(ctx context.Context, q sqlx.QueryerContext, id string) (*dbtypes.Burn, error) {
	burn := &dbtypes.Burn{}
	err := getRow(ctx, q, burn, fmt.Sprintf("SELECT %v FROM burns WHERE id = $1", selectColumns(liquidityActionColumns)), id)
	if err != nil {
		return nil, err
	}
	return burn, nil
}

func GetSwap(ctx context.Context, q sqlx.QueryerContext, id string) (*dbtypes.Swap, error) {
	swap := &dbtypes.Swap{}
	err := getRow(ctx, q, swap, fmt.Sprintf("SELECT %v FROM swaps WHERE id = $1", selectColumns(swapColumns)), id)
	if err != nil {
		return nil, err
	}
	return swap, nil
}

// GetMintsByPool returns the mints of a pool with minTs <= timestamp < maxTs.
func GetMintsByPool(ctx context.Context, poolId string, minTs uint64, maxTs uint64) ([]*dbtypes.Mint, error) {
	mints := []*dbtypes.Mint{}
	err := ReaderDb.SelectContext(ctx, &mints, fmt.Sprintf(`
		SELECT %v FROM mints
		WHERE pool_id = $1 AND timestamp >= $2 AND timestamp < $3
		ORDER BY timestamp ASC, log_index ASC`, selectColumns(liquidityActionColumns)), poolId, minTs, maxTs)
	if err != nil {
		return nil, errors.Wrap(err, "error fetching mints")
	}
	return mints, nil
}

func GetBurnsByPool(ctx context.Context, poolId string, minTs uint64, maxTs uint64) ([]*dbtypes.Burn, error) {
	burns := []*dbtypes.Burn{}
	err := ReaderDb.SelectContext(ctx, &burns, fmt.Sprintf(`
		SELECT %v FROM burns
		WHERE pool_id = $1 AND timestamp >= $2 AND timestamp < $3
		ORDER BY timestamp ASC, log_index ASC`, selectColumns(liquidityActionColumns)), poolId, minTs, maxTs)
	if err != nil {
		return nil, errors.Wrap(err, "error fetching burns")
	}
	return burns, nil
}

func GetSwapsByPool(ctx context.Context, poolId string, minTs uint64, maxTs uint64) ([]*dbtypes.Swap, error) {
	swaps := []*dbtypes.Swap{}
	err := ReaderDb.SelectContext(ctx, &swaps, fmt.Sprintf(`
		SELECT %v FROM swaps
		WHERE pool_id = $1 AND timestamp >= $2 AND timestamp < $3
		ORDER BY timestamp ASC, log_index ASC`, selectColumns(swapColumns)), poolId, minTs, maxTs)
	if err != nil {
		return nil, errors.Wrap(err, "error fetching swaps")
	}
	return swaps, nil
}
