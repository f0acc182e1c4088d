package cursor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ethpandaops/dexindexer/db"
	"github.com/ethpandaops/dexindexer/dbtypes"
	"github.com/ethpandaops/dexindexer/metrics"
)

// ErrNotFound is returned by Get for unknown cursors.
var ErrNotFound = errors.New("cursor not found")

// Store persists the last processed block per (event, contract, chain).
type Store struct {
	defaultStartBlock uint64
}

func NewStore(defaultStartBlock uint64) *Store {
	return &Store{
		defaultStartBlock: defaultStartBlock,
	}
}

func (s *Store) Get(ctx context.Context, eventName string, contractAddress string, chainId uint64) (*dbtypes.IndexerEventStatus, error) {
	status, err := db.GetEventStatus(ctx, db.ReaderDb, dbtypes.EventStatusId(eventName, contractAddress, chainId))
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	return status, err
}

// GetOrCreate loads a cursor, creating it at max(deploymentBlock, default start block) if absent.
func (s *Store) GetOrCreate(ctx context.Context, eventName string, contractAddress string, chainId uint64, deploymentBlock uint64) (*dbtypes.IndexerEventStatus, error) {
	status, err := s.Get(ctx, eventName, contractAddress, chainId)
	if err == nil {
		return status, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("error loading cursor: %w", err)
	}

	startBlock := s.defaultStartBlock
	if deploymentBlock > startBlock {
		startBlock = deploymentBlock
	}

	status = &dbtypes.IndexerEventStatus{
		Id:              dbtypes.EventStatusId(eventName, contractAddress, chainId),
		EventName:       eventName,
		ChainId:         chainId,
		ContractAddress: strings.ToLower(contractAddress),
		LastBlockNumber: startBlock,
	}
	err = db.RunDBTransaction(func(tx *sqlx.Tx) error {
		_, err := db.InsertEventStatus(ctx, tx, status)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error creating cursor: %w", err)
	}

	// another instance may have created the row first
	return s.Get(ctx, eventName, contractAddress, chainId)
}

// Save persists status.LastBlockNumber. The stored value never decreases.
func (s *Store) Save(ctx context.Context, status *dbtypes.IndexerEventStatus) error {
	err := db.RunDBTransaction(func(tx *sqlx.Tx) error {
		return db.UpdateEventStatusBlock(ctx, tx, status.Id, status.LastBlockNumber)
	})
	if err != nil {
		return fmt.Errorf("error saving cursor %v: %w", status.Id, err)
	}

	metrics.CursorBlock.WithLabelValues(strconv.FormatUint(status.ChainId, 10), status.EventName, status.ContractAddress).Set(float64(status.LastBlockNumber))
	return nil
}

func (s *Store) List(ctx context.Context, chainId uint64) ([]*dbtypes.IndexerEventStatus, error) {
	return db.GetEventStatuses(ctx, chainId)
}

// NextBlock returns the first block of the next range to process.
// ok is false when the cursor has caught up with latestBlock.
func NextBlock(lastBlock uint64, latestBlock uint64) (fromBlock uint64, ok bool) {
	if lastBlock >= latestBlock {
		return 0, false
	}
	fromBlock = lastBlock + 1
	if fromBlock > latestBlock {
		fromBlock = latestBlock
	}
	return fromBlock, true
}
