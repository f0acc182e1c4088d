package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/ethpandaops/dexindexer/dbtypes"
)

var tokenColumns = []string{
	"id", "chain_id", "address", "symbol", "name", "decimals",
	"trade_volume", "trade_volume_usd", "tx_count",
	"total_liquidity", "total_liquidity_eth", "total_liquidity_usd",
	"derived_eth", "derived_usd",
}

func GetToken(ctx context.Context, q sqlx.QueryerContext, id string) (*dbtypes.Token, error) {
	token := &dbtypes.Token{}
	err := getRow(ctx, q, token, fmt.Sprintf("SELECT %v FROM tokens WHERE id = $1", selectColumns(tokenColumns)), id)
	if err != nil {
		return nil, err
	}
	return token, nil
}

// GetTokenForUpdate reads a token inside a write transaction.
func GetTokenForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*dbtypes.Token, error) {
	token := &dbtypes.Token{}
	err := getRow(ctx, tx, token, fmt.Sprintf("SELECT %v FROM tokens WHERE id = $1%v", selectColumns(tokenColumns), forUpdate()), id)
	if err != nil {
		return nil, err
	}
	return token, nil
}

func GetTokensByChain(ctx context.Context, chainId uint64) ([]*dbtypes.Token, error) {
	tokens := []*dbtypes.Token{}
	err := ReaderDb.SelectContext(ctx, &tokens, fmt.Sprintf("SELECT %v FROM tokens WHERE chain_id = $1 ORDER BY id ASC", selectColumns(tokenColumns)), chainId)
	if err != nil {
		return nil, errors.Wrap(err, "error fetching tokens")
	}
	return tokens, nil
}

// InsertToken creates the token row if it does not exist yet.
func InsertToken(ctx context.Context, tx *sqlx.Tx, token *dbtypes.Token) (bool, error) {
	return insertIgnore(ctx, tx, "tokens", []string{"id"}, tokenColumns, token)
}

func UpdateToken(ctx context.Context, tx *sqlx.Tx, token *dbtypes.Token) error {
	return upsert(ctx, tx, "tokens", []string{"id"}, tokenColumns, token)
}
