package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/dexindexer/cache"
	"github.com/ethpandaops/dexindexer/chain"
	"github.com/ethpandaops/dexindexer/clients/execution"
	"github.com/ethpandaops/dexindexer/indexer/aggregation"
	"github.com/ethpandaops/dexindexer/indexer/correlation"
	"github.com/ethpandaops/dexindexer/indexer/cursor"
	"github.com/ethpandaops/dexindexer/indexer/lock"
	"github.com/ethpandaops/dexindexer/indexer/oracle"
	"github.com/ethpandaops/dexindexer/indexer/watchers"
	"github.com/ethpandaops/dexindexer/metrics"
	"github.com/ethpandaops/dexindexer/types"
	"github.com/ethpandaops/dexindexer/utils"
)

// runner is a long lived watcher or resolver loop.
type runner interface {
	Name() string
	Run(ctx context.Context)
}

// poolFollower is a pool watcher that learns new pools from a factory.
type poolFollower interface {
	runner
	Seed(ctx context.Context) error
	Follow(ctx context.Context, deployments *utils.Dispatcher[*watchers.PoolDeployed])
	Registry() *watchers.PoolRegistry
}

// poolSource pairs a factory with the pool watcher it feeds.
type poolSource struct {
	factory *watchers.FactoryWatcher
	pools   poolFollower
}

type chainService struct {
	access  *chain.Access
	wc      *watchers.WatcherCtx
	runners []runner
	sources []poolSource
}

// IndexerService wires the watchers of every configured chain and runs them until stopped.
type IndexerService struct {
	logger   logrus.FieldLogger
	config   *types.Config
	registry *chain.Registry
	redis    *cache.RedisCache
	oracle   *oracle.Client
	chains   []*chainService

	started time.Time
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var GlobalIndexerService *IndexerService

// InitIndexerService builds the per-chain watchers from the configuration.
func InitIndexerService(ctx context.Context, config *types.Config, logger logrus.FieldLogger) (*IndexerService, error) {
	if GlobalIndexerService != nil {
		return GlobalIndexerService, nil
	}

	registry, err := chain.NewRegistry(config.Chains, config.Indexer.RpcTimeout, logger.WithField("module", "rpc"))
	if err != nil {
		return nil, err
	}

	redis, err := cache.InitRedisCache(ctx, &config.Redis)
	if err != nil {
		// the lock fails open and staging retries, so the indexer starts anyway
		logger.WithError(err).Warnf("shared cache at %v is unreachable", config.Redis.Address)
	}

	var priceCache oracle.PriceCache
	if config.PriceCache.Enabled {
		var remote cache.RemoteCache
		if config.PriceCache.UseRemote {
			remote = redis
		}
		priceCache = cache.NewTieredCache(config.PriceCache.SizeMB, remote)
	}

	svc := &IndexerService{
		logger:   logger,
		config:   config,
		registry: registry,
		redis:    redis,
		oracle:   oracle.NewClient(logger, priceCache, config.PriceCache.TTL),
	}

	resourceLock := lock.NewResourceLock(redis, lock.Config{
		Prefix:        config.Indexer.Lock.Prefix,
		TTL:           config.Indexer.Lock.TTL,
		RenewInterval: config.Indexer.Lock.RenewInterval,
		MinBackoff:    config.Indexer.Lock.MinBackoff,
		MaxBackoff:    config.Indexer.Lock.MaxBackoff,
	}, logger.WithField("module", "lock"))
	correlationCache := correlation.NewCache(redis, config.Indexer.CorrelationTTL, logger)
	metrics.AddPreCollectFn(func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for _, kind := range correlation.Kinds {
			correlationCache.Pending(refreshCtx, kind)
		}
	})
	cursors := cursor.NewStore(config.Indexer.DefaultStartBlock)
	engine := aggregation.NewEngine(logger)

	for _, chainId := range registry.ChainIds() {
		access, _ := registry.NewAccess(chainId, resourceLock, config.Indexer.DefaultBlockRange, logger)
		if err := svc.oracle.AddChain(chainId, access.Reader, access.Config.OracleAddress); err != nil {
			return nil, err
		}

		wc := watchers.NewWatcherCtx(access, cursors, correlationCache, svc.oracle, engine, &config.Indexer)
		svc.chains = append(svc.chains, newChainService(access, wc, &config.Indexer))
	}

	GlobalIndexerService = svc
	return svc, nil
}

func newChainService(access *chain.Access, wc *watchers.WatcherCtx, config *types.IndexerConfig) *chainService {
	cs := &chainService{
		access: access,
		wc:     wc,
	}

	if !config.DisableV2 && access.Config.V2Factory.Address != "" {
		factory := watchers.NewV2FactoryWatcher(wc)
		pools := watchers.NewV2PoolWatcher(wc)
		cs.addPools(factory, pools)
		if !config.DisableResolver {
			cs.runners = append(cs.runners, watchers.NewV2Resolver(wc))
		}
	}

	if !config.DisableCL && access.Config.ClFactory.Address != "" {
		cs.addPools(watchers.NewClFactoryWatcher(wc), watchers.NewClPoolWatcher(wc))
	}

	if !config.DisableNfpm && access.Config.Nfpm.Address != "" {
		cs.runners = append(cs.runners, watchers.NewNfpmWatcher(wc))
		if !config.DisableResolver {
			cs.runners = append(cs.runners, watchers.NewNfpmResolver(wc))
		}
	}

	return cs
}

func (cs *chainService) addPools(factory *watchers.FactoryWatcher, pools poolFollower) {
	cs.runners = append(cs.runners, factory, pools)
	cs.sources = append(cs.sources, poolSource{factory: factory, pools: pools})
}

// StartService seeds the pool registries and starts every watcher loop.
func (svc *IndexerService) StartService(ctx context.Context) error {
	if svc.cancel != nil {
		return fmt.Errorf("service already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	svc.cancel = cancel
	svc.started = time.Now()

	for _, cs := range svc.chains {
		for _, source := range cs.sources {
			if err := source.pools.Seed(ctx); err != nil {
				cancel()
				return fmt.Errorf("error seeding %v of chain %v: %w", source.pools.Name(), cs.access.ChainId, err)
			}
			source.pools.Follow(ctx, source.factory.Deployed())
		}

		for _, r := range cs.runners {
			svc.wg.Add(1)
			go func(r runner) {
				defer svc.wg.Done()
				r.Run(ctx)
			}(r)
		}

		cs.access.Logger.Infof("started %v watchers", len(cs.runners))
	}

	svc.wg.Add(1)
	go svc.runMetricsLog(ctx)
	return nil
}

// StopService stops all loops and waits for running cycles to finish.
func (svc *IndexerService) StopService() {
	if svc.cancel == nil {
		return
	}
	svc.cancel()
	svc.wg.Wait()
	svc.registry.Close()
	if svc.redis != nil {
		svc.redis.Close()
	}
}

func (svc *IndexerService) runMetricsLog(ctx context.Context) {
	defer svc.wg.Done()
	defer utils.HandleSubroutinePanic("IndexerService.runMetricsLog")

	interval := svc.config.Indexer.MetricsInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, cs := range svc.chains {
				for _, counter := range cs.wc.Counters.Snapshot() {
					cs.access.Logger.WithFields(logrus.Fields{
						"watcher":   counter.Watcher,
						"processed": counter.Processed,
						"rate":      fmt.Sprintf("%.2f/s", counter.EventsPerSec),
						"runtime":   cs.wc.Counters.Runtime().Round(time.Second),
					}).Info("watcher metrics")
				}
			}
		}
	}
}

// ChainStatus is the /status view of one chain.
type ChainStatus struct {
	ChainId      uint64                     `json:"chainId"`
	Name         string                     `json:"name"`
	Runtime      string                     `json:"runtime"`
	Watchers     []watchers.CounterSnapshot `json:"watchers"`
	WatchedPools map[string]int             `json:"watchedPools"`
	Endpoints    []*EndpointStatus          `json:"endpoints,omitempty"`
}

type EndpointStatus struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Requests  uint64    `json:"requests"`
	Failures  uint64    `json:"failures"`
	LastEvent time.Time `json:"lastEvent,omitempty"`
	LastError string    `json:"lastError,omitempty"`
}

func (svc *IndexerService) Status() []*ChainStatus {
	status := make([]*ChainStatus, 0, len(svc.chains))
	for _, cs := range svc.chains {
		chainStatus := &ChainStatus{
			ChainId:      cs.access.ChainId,
			Name:         cs.access.Config.Name,
			Runtime:      cs.wc.Counters.Runtime().Round(time.Second).String(),
			Watchers:     cs.wc.Counters.Snapshot(),
			WatchedPools: map[string]int{},
		}
		for _, source := range cs.sources {
			chainStatus.WatchedPools[source.pools.Name()] = source.pools.Registry().Len()
		}
		if svc.registry != nil {
			if c, ok := svc.registry.Get(cs.access.ChainId); ok {
				chainStatus.Endpoints = endpointStatus(c.Client)
			}
		}
		status = append(status, chainStatus)
	}
	return status
}

func endpointStatus(client *execution.MultiEndpointClient) []*EndpointStatus {
	endpoints := []*EndpointStatus{}
	for _, endpoint := range client.GetAllEndpoints() {
		requests, failures := endpoint.GetRequestStats()
		status := &EndpointStatus{
			Name:      endpoint.GetName(),
			Status:    endpoint.GetStatus().String(),
			Requests:  requests,
			Failures:  failures,
			LastEvent: endpoint.GetLastEventTime(),
		}
		if err := endpoint.GetLastError(); err != nil {
			status.LastError = err.Error()
		}
		endpoints = append(endpoints, status)
	}
	return endpoints
}
