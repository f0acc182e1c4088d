package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ethpandaops/dexindexer/dbtypes"
)

var transactionColumns = []string{"id", "chain_id", "hash", "block", "timestamp"}

func GetTransaction(ctx context.Context, q sqlx.QueryerContext, id string) (*dbtypes.Transaction, error) {
	transaction := &dbtypes.Transaction{}
	err := getRow(ctx, q, transaction, fmt.Sprintf("SELECT %v FROM transactions WHERE id = $1", selectColumns(transactionColumns)), id)
	if err != nil {
		return nil, err
	}
	return transaction, nil
}

// InsertTransaction creates the transaction row unless it already exists. Existing rows are never changed.
func InsertTransaction(ctx context.Context, tx *sqlx.Tx, transaction *dbtypes.Transaction) (bool, error) {
	return insertIgnore(ctx, tx, "transactions", []string{"id"}, transactionColumns, transaction)
}
