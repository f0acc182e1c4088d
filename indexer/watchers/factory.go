package watchers

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/dexindexer/db"
	"github.com/ethpandaops/dexindexer/dbtypes"
	"github.com/ethpandaops/dexindexer/indexer/contracts"
	"github.com/ethpandaops/dexindexer/utils"
)

// createdPool is a decoded pool creation event of either factory kind.
type createdPool struct {
	token0      common.Address
	token1      common.Address
	pool        common.Address
	poolType    dbtypes.PoolType
	tickSpacing int64
}

// FactoryWatcher follows the PoolCreated events of a pool factory and persists new pools.
type FactoryWatcher struct {
	wc          *WatcherCtx
	name        string
	logger      logrus.FieldLogger
	contract    common.Address
	deployBlock uint64
	contractAbi *abi.ABI
	decode      func(log *types.Log) (*createdPool, error)

	deployed *utils.Dispatcher[*PoolDeployed]
	pending  []*PoolDeployed
}

// NewV2FactoryWatcher watches a factory of stable and volatile constant product pools.
func NewV2FactoryWatcher(wc *WatcherCtx) *FactoryWatcher {
	config := wc.Access.Config.V2Factory
	return newFactoryWatcher(wc, "v2-factory", config.Address, config.StartBlock, contracts.V2FactoryAbi, func(log *types.Log) (*createdPool, error) {
		event := &contracts.V2PoolCreated{}
		if err := contracts.DecodeLog(contracts.V2FactoryAbi, "PoolCreated", log, event); err != nil {
			return nil, err
		}
		poolType := dbtypes.PoolTypeVolatile
		if event.Stable {
			poolType = dbtypes.PoolTypeStable
		}
		return &createdPool{
			token0:   event.Token0,
			token1:   event.Token1,
			pool:     event.Pool,
			poolType: poolType,
		}, nil
	})
}

// NewClFactoryWatcher watches a factory of concentrated liquidity pools.
func NewClFactoryWatcher(wc *WatcherCtx) *FactoryWatcher {
	config := wc.Access.Config.ClFactory
	return newFactoryWatcher(wc, "cl-factory", config.Address, config.StartBlock, contracts.ClFactoryAbi, func(log *types.Log) (*createdPool, error) {
		event := &contracts.ClPoolCreated{}
		if err := contracts.DecodeLog(contracts.ClFactoryAbi, "PoolCreated", log, event); err != nil {
			return nil, err
		}
		return &createdPool{
			token0:      event.Token0,
			token1:      event.Token1,
			pool:        event.Pool,
			poolType:    dbtypes.PoolTypeConcentrated,
			tickSpacing: event.TickSpacing.Int64(),
		}, nil
	})
}

func newFactoryWatcher(wc *WatcherCtx, name string, address string, startBlock uint64, contractAbi *abi.ABI, decode func(log *types.Log) (*createdPool, error)) *FactoryWatcher {
	return &FactoryWatcher{
		wc:          wc,
		name:        name,
		logger:      wc.logger().WithField("watcher", name),
		contract:    common.HexToAddress(address),
		deployBlock: startBlock,
		contractAbi: contractAbi,
		decode:      decode,
		deployed:    &utils.Dispatcher[*PoolDeployed]{},
	}
}

func (fw *FactoryWatcher) Name() string {
	return fw.name
}

// Deployed is fired with every newly persisted pool.
func (fw *FactoryWatcher) Deployed() *utils.Dispatcher[*PoolDeployed] {
	return fw.deployed
}

func (fw *FactoryWatcher) Run(ctx context.Context) {
	defer utils.HandleSubroutinePanic("FactoryWatcher.Run." + fw.name)

	fw.logger.Infof("watching factory %v from block %v", fw.contract.Hex(), fw.deployBlock)
	for ctx.Err() == nil {
		if _, err := fw.RunCycle(ctx); err != nil && ctx.Err() == nil {
			fw.logger.WithError(err).Warn("factory cycle failed")
		}
		if !utils.Sleep(ctx, fw.wc.cycleInterval()) {
			break
		}
	}
}

// RunCycle processes one block range of PoolCreated events.
func (fw *FactoryWatcher) RunCycle(ctx context.Context) (int, error) {
	processed, err := fw.wc.runCycle(ctx, &cycleOptions{
		watcher:     fw.name,
		contract:    fw.contract,
		deployBlock: fw.deployBlock,
		handlers: []*eventHandler{
			{
				event:  "PoolCreated",
				topic:  contracts.EventTopic(fw.contractAbi, "PoolCreated"),
				handle: fw.handlePoolCreated,
			},
		},
	})

	// notify after the lock is released, the consumers may need it to make progress
	pending := fw.pending
	fw.pending = nil
	for _, deployed := range pending {
		if fireErr := fw.deployed.Fire(ctx, deployed); fireErr != nil {
			return processed, fireErr
		}
	}

	return processed, err
}

func (fw *FactoryWatcher) handlePoolCreated(ctx context.Context, log *types.Log) error {
	created, err := fw.decode(log)
	if err != nil {
		return err
	}

	timestamp, err := fw.wc.Access.Reader.GetBlockTimestamp(ctx, log.BlockNumber)
	if err != nil {
		return fmt.Errorf("error loading block %v: %w", log.BlockNumber, err)
	}

	token0, err := fw.wc.newToken(ctx, created.token0)
	if err != nil {
		return err
	}
	token1, err := fw.wc.newToken(ctx, created.token1)
	if err != nil {
		return err
	}

	pool := &dbtypes.Pool{
		Id:                   dbtypes.PoolId(created.pool.Hex(), fw.wc.ChainId()),
		ChainId:              fw.wc.ChainId(),
		Address:              lowerHex(created.pool),
		Name:                 fmt.Sprintf("%v/%v", token0.Symbol, token1.Symbol),
		Token0Id:             token0.Id,
		Token1Id:             token1.Id,
		PoolType:             created.poolType,
		TickSpacing:          created.tickSpacing,
		CreatedAtTimestamp:   timestamp,
		CreatedAtBlockNumber: log.BlockNumber,
	}

	inserted := false
	err = db.RunDBTransaction(func(tx *sqlx.Tx) error {
		if _, err := db.InsertToken(ctx, tx, token0); err != nil {
			return err
		}
		if _, err := db.InsertToken(ctx, tx, token1); err != nil {
			return err
		}

		inserted, err = db.InsertPool(ctx, tx, pool)
		if err != nil || !inserted {
			return err
		}

		stats, err := db.GetOrCreateStatistics(ctx, tx, fw.wc.ChainId())
		if err != nil {
			return err
		}
		stats.TotalPairsCreated++
		return db.UpdateStatistics(ctx, tx, stats)
	})
	if err != nil {
		return fmt.Errorf("error persisting pool %v: %w", created.pool.Hex(), err)
	}

	if inserted {
		fw.logger.Infof("new %v pool %v (%v) at block %v", strings.ToLower(string(created.poolType)), pool.Address, pool.Name, log.BlockNumber)
		fw.pending = append(fw.pending, &PoolDeployed{
			Address:     created.pool,
			BlockNumber: log.BlockNumber,
			ChainId:     fw.wc.ChainId(),
		})
	}
	return nil
}
