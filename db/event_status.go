package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/ethpandaops/dexindexer/dbtypes"
)

var eventStatusColumns = []string{"id", "event_name", "chain_id", "contract_address", "last_block_number"}

func GetEventStatus(ctx context.Context, q sqlx.QueryerContext, id string) (*dbtypes.IndexerEventStatus, error) {
	status := &dbtypes.IndexerEventStatus{}
	err := getRow(ctx, q, status, fmt.Sprintf("SELECT %v FROM indexer_event_status WHERE id = $1", selectColumns(eventStatusColumns)), id)
	if err != nil {
		return nil, err
	}
	return status, nil
}

// InsertEventStatus creates the cursor row unless another writer created it first.
func InsertEventStatus(ctx context.Context, tx *sqlx.Tx, status *dbtypes.IndexerEventStatus) (bool, error) {
	return insertIgnore(ctx, tx, "indexer_event_status", []string{"id"}, eventStatusColumns, status)
}

// UpdateEventStatusBlock moves the cursor forward. A lower block number leaves the row untouched.
func UpdateEventStatusBlock(ctx context.Context, tx *sqlx.Tx, id string, lastBlock uint64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE indexer_event_status
		SET last_block_number = $1
		WHERE id = $2 AND last_block_number <= $1`, lastBlock, id)
	if err != nil {
		return errors.Wrapf(err, "error updating event status %v", id)
	}
	return nil
}

func GetEventStatuses(ctx context.Context, chainId uint64) ([]*dbtypes.IndexerEventStatus, error) {
	statuses := []*dbtypes.IndexerEventStatus{}
	query := fmt.Sprintf("SELECT %v FROM indexer_event_status", selectColumns(eventStatusColumns))
	args := []any{}
	if chainId != 0 {
		query += " WHERE chain_id = $1"
		args = append(args, chainId)
	}
	query += " ORDER BY chain_id ASC, event_name ASC, contract_address ASC"

	err := ReaderDb.SelectContext(ctx, &statuses, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error fetching event statuses")
	}
	return statuses, nil
}
