package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/ethpandaops/dexindexer/dbtypes"
)

var userColumns = []string{"id", "address"}

var positionColumns = []string{
	"id", "chain_id", "pool_id", "account", "position", "creation_block", "creation_transaction", "cl_position_token_id",
}

func GetUser(ctx context.Context, q sqlx.QueryerContext, id string) (*dbtypes.User, error) {
	user := &dbtypes.User{}
	err := getRow(ctx, q, user, fmt.Sprintf("SELECT %v FROM users WHERE id = $1", selectColumns(userColumns)), id)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func InsertUser(ctx context.Context, tx *sqlx.Tx, user *dbtypes.User) (bool, error) {
	return insertIgnore(ctx, tx, "users", []string{"id"}, userColumns, user)
}

func GetLiquidityPosition(ctx context.Context, q sqlx.QueryerContext, id string) (*dbtypes.LiquidityPosition, error) {
	position := &dbtypes.LiquidityPosition{}
	err := getRow(ctx, q, position, fmt.Sprintf("SELECT %v FROM liquidity_positions WHERE id = $1", selectColumns(positionColumns)), id)
	if err != nil {
		return nil, err
	}
	return position, nil
}

// GetLiquidityPositionForUpdate reads a position inside a write transaction.
func GetLiquidityPositionForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*dbtypes.LiquidityPosition, error) {
	position := &dbtypes.LiquidityPosition{}
	err := getRow(ctx, tx, position, fmt.Sprintf("SELECT %v FROM liquidity_positions WHERE id = $1%v", selectColumns(positionColumns), forUpdate()), id)
	if err != nil {
		return nil, err
	}
	return position, nil
}

// GetPositionsByTokenId returns every position row ever recorded for a concentrated liquidity NFT.
func GetPositionsByTokenId(ctx context.Context, q sqlx.QueryerContext, chainId uint64, tokenId string) ([]*dbtypes.LiquidityPosition, error) {
	positions := []*dbtypes.LiquidityPosition{}
	err := sqlx.SelectContext(ctx, q, &positions, fmt.Sprintf(`
		SELECT %v FROM liquidity_positions
		WHERE chain_id = $1 AND cl_position_token_id = $2
		ORDER BY creation_block ASC, id ASC`, selectColumns(positionColumns)), chainId, tokenId)
	if err != nil {
		return nil, errors.Wrap(err, "error fetching positions by token id")
	}
	return positions, nil
}

func GetPositionsByPool(ctx context.Context, poolId string) ([]*dbtypes.LiquidityPosition, error) {
	positions := []*dbtypes.LiquidityPosition{}
	err := ReaderDb.SelectContext(ctx, &positions, fmt.Sprintf(`
		SELECT %v FROM liquidity_positions
		WHERE pool_id = $1
		ORDER BY id ASC`, selectColumns(positionColumns)), poolId)
	if err != nil {
		return nil, errors.Wrap(err, "error fetching positions by pool")
	}
	return positions, nil
}

func UpsertLiquidityPosition(ctx context.Context, tx *sqlx.Tx, position *dbtypes.LiquidityPosition) error {
	return upsert(ctx, tx, "liquidity_positions", []string{"id"}, positionColumns, position)
}
