package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ethpandaops/dexindexer/dbtypes"
)

var statisticsColumns = []string{
	"id", "chain_id", "total_bribes_usd", "total_fees_usd", "total_pairs_created",
	"total_trade_volume_eth", "total_trade_volume_usd",
	"total_volume_locked_eth", "total_volume_locked_usd", "tx_count",
}

func GetStatistics(ctx context.Context, q sqlx.QueryerContext, chainId uint64) (*dbtypes.Statistics, error) {
	stats := &dbtypes.Statistics{}
	err := getRow(ctx, q, stats, fmt.Sprintf("SELECT %v FROM statistics WHERE id = $1", selectColumns(statisticsColumns)), dbtypes.StatisticsId(chainId))
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// GetOrCreateStatistics returns the locked statistics row of a chain, creating a zeroed one if absent.
func GetOrCreateStatistics(ctx context.Context, tx *sqlx.Tx, chainId uint64) (*dbtypes.Statistics, error) {
	_, err := insertIgnore(ctx, tx, "statistics", []string{"id"}, statisticsColumns, &dbtypes.Statistics{
		Id:      dbtypes.StatisticsId(chainId),
		ChainId: chainId,
	})
	if err != nil {
		return nil, err
	}

	stats := &dbtypes.Statistics{}
	err = getRow(ctx, tx, stats, fmt.Sprintf("SELECT %v FROM statistics WHERE id = $1%v", selectColumns(statisticsColumns), forUpdate()), dbtypes.StatisticsId(chainId))
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func UpdateStatistics(ctx context.Context, tx *sqlx.Tx, stats *dbtypes.Statistics) error {
	return upsert(ctx, tx, "statistics", []string{"id"}, statisticsColumns, stats)
}
