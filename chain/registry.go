package chain

import (
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/dexindexer/clients/execution"
	"github.com/ethpandaops/dexindexer/types"
)

// Chain is one configured chain with its endpoint pool.
type Chain struct {
	Config *types.ChainConfig
	Client *execution.MultiEndpointClient
}

// Registry maps chain ids to their configuration and rpc clients. It is immutable after creation.
type Registry struct {
	chains   map[uint64]*Chain
	chainIds []uint64
}

func NewRegistry(chainConfigs []types.ChainConfig, rpcTimeout time.Duration, logger logrus.FieldLogger) (*Registry, error) {
	registry := &Registry{
		chains:   map[uint64]*Chain{},
		chainIds: make([]uint64, 0, len(chainConfigs)),
	}

	for idx := range chainConfigs {
		chainConfig := &chainConfigs[idx]
		if _, exists := registry.chains[chainConfig.ChainId]; exists {
			return nil, fmt.Errorf("duplicate chain id %v", chainConfig.ChainId)
		}
		if len(chainConfig.Endpoints) == 0 {
			return nil, fmt.Errorf("chain %v has no rpc endpoints", chainConfig.ChainId)
		}

		client := execution.NewMultiEndpointClient(chainConfig.ChainId, rpcTimeout, logger.WithField("chain", chainConfig.Name))
		for _, endpoint := range chainConfig.Endpoints {
			client.AddEndpoint(&execution.ClientConfig{
				URL:        endpoint.Url,
				Name:       endpoint.Name,
				Headers:    endpoint.Headers,
				BlockRange: endpoint.BlockRange,
				RateLimit:  endpoint.RateLimit,
				RateBurst:  endpoint.RateBurst,
			})
		}

		registry.chains[chainConfig.ChainId] = &Chain{
			Config: chainConfig,
			Client: client,
		}
		registry.chainIds = append(registry.chainIds, chainConfig.ChainId)
	}

	sort.Slice(registry.chainIds, func(i, j int) bool { return registry.chainIds[i] < registry.chainIds[j] })
	return registry, nil
}

func (r *Registry) Get(chainId uint64) (*Chain, bool) {
	c, ok := r.chains[chainId]
	return c, ok
}

// ChainIds returns the configured chain ids in ascending order.
func (r *Registry) ChainIds() []uint64 {
	ids := make([]uint64, len(r.chainIds))
	copy(ids, r.chainIds)
	return ids
}

func (r *Registry) Close() {
	for _, c := range r.chains {
		c.Client.Close()
	}
}
