package watchers

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/alitto/pond/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/dexindexer/db"
	"github.com/ethpandaops/dexindexer/dbtypes"
	"github.com/ethpandaops/dexindexer/utils"
)

// poolWatcher runs an independent cycle for every watched pool address of one pool kind.
type poolWatcher struct {
	wc        *WatcherCtx
	name      string
	logger    logrus.FieldLogger
	registry  *PoolRegistry
	poolTypes []dbtypes.PoolType
	workers   pond.Pool
	cycle     func(ctx context.Context, pool *WatchedPool) (int, error)
}

func newPoolWatcher(wc *WatcherCtx, name string, poolTypes []dbtypes.PoolType) *poolWatcher {
	parallel := wc.Config.MaxParallelPools
	if parallel <= 0 {
		parallel = 8
	}

	return &poolWatcher{
		wc:        wc,
		name:      name,
		logger:    wc.logger().WithField("watcher", name),
		registry:  NewPoolRegistry(wc.ChainId(), name),
		poolTypes: poolTypes,
		workers:   pond.NewPool(parallel),
	}
}

func (pw *poolWatcher) Name() string {
	return pw.name
}

func (pw *poolWatcher) Registry() *PoolRegistry {
	return pw.registry
}

// Seed adds all stored pools of the watcher's kind.
func (pw *poolWatcher) Seed(ctx context.Context) error {
	pools, err := db.GetPoolsByType(ctx, pw.wc.ChainId(), pw.poolTypes...)
	if err != nil {
		return err
	}
	for _, pool := range pools {
		pw.registry.Add(common.HexToAddress(pool.Address), pool.CreatedAtBlockNumber)
	}
	pw.logger.Infof("seeded %v pools", len(pools))
	return nil
}

// Follow subscribes to a factory's deployments and adds every new pool of this chain.
func (pw *poolWatcher) Follow(ctx context.Context, deployments *utils.Dispatcher[*PoolDeployed]) {
	queueSize := pw.wc.Config.PoolQueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	subscription := deployments.Subscribe(queueSize, true)

	go func() {
		defer utils.HandleSubroutinePanic("poolWatcher.Follow." + pw.name)
		defer subscription.Unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case deployed := <-subscription.Channel():
				if deployed.ChainId != pw.wc.ChainId() {
					continue
				}
				if pw.registry.Add(deployed.Address, deployed.BlockNumber) {
					pw.logger.Infof("watching new pool %v from block %v", deployed.Address.Hex(), deployed.BlockNumber)
				}
			}
		}
	}()
}

// Sweep runs one cycle for every watched pool concurrently and returns the number of processed events.
func (pw *poolWatcher) Sweep(ctx context.Context) (int, error) {
	var processed, failed atomic.Int64

	group := pw.workers.NewGroupContext(ctx)
	groupCtx := group.Context()
	for _, pool := range pw.registry.List() {
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			count, err := pw.cycle(groupCtx, pool)
			processed.Add(int64(count))
			if err != nil && groupCtx.Err() == nil {
				failed.Add(1)
				pw.logger.WithError(err).WithField("pool", lowerHex(pool.Address)).Warn("pool cycle failed")
			}
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		return int(processed.Load()), err
	}
	if failed.Load() > 0 {
		return int(processed.Load()), errors.New("some pool cycles failed")
	}
	return int(processed.Load()), nil
}

func (pw *poolWatcher) Run(ctx context.Context) {
	defer utils.HandleSubroutinePanic("poolWatcher.Run." + pw.name)
	defer pw.workers.StopAndWait()

	for ctx.Err() == nil {
		if _, err := pw.Sweep(ctx); err != nil && ctx.Err() == nil {
			pw.logger.WithError(err).Debug("sweep finished with errors")
		}
		if !utils.Sleep(ctx, pw.wc.cycleInterval()) {
			break
		}
	}
}
