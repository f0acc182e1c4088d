package watchers

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/ethpandaops/dexindexer/metrics"
)

// PoolDeployed announces a pool persisted by a factory watcher.
type PoolDeployed struct {
	Address     common.Address
	BlockNumber uint64
	ChainId     uint64
}

type WatchedPool struct {
	Address     common.Address
	BlockNumber uint64
}

// PoolRegistry is the set of pool addresses a pool watcher cycles over.
type PoolRegistry struct {
	chainLabel string
	kind       string
	pools      *xsync.Map[string, *WatchedPool]
}

func NewPoolRegistry(chainId uint64, kind string) *PoolRegistry {
	return &PoolRegistry{
		chainLabel: strconv.FormatUint(chainId, 10),
		kind:       kind,
		pools:      xsync.NewMap[string, *WatchedPool](),
	}
}

// Add registers a pool. It returns false if the address was already watched.
func (r *PoolRegistry) Add(address common.Address, blockNumber uint64) bool {
	_, loaded := r.pools.LoadOrStore(strings.ToLower(address.Hex()), &WatchedPool{
		Address:     address,
		BlockNumber: blockNumber,
	})
	if !loaded {
		metrics.WatchedPools.WithLabelValues(r.chainLabel, r.kind).Set(float64(r.pools.Size()))
	}
	return !loaded
}

func (r *PoolRegistry) Contains(address common.Address) bool {
	_, ok := r.pools.Load(strings.ToLower(address.Hex()))
	return ok
}

func (r *PoolRegistry) Len() int {
	return r.pools.Size()
}

// List returns the watched pools ordered by deployment block.
func (r *PoolRegistry) List() []*WatchedPool {
	pools := make([]*WatchedPool, 0, r.pools.Size())
	r.pools.Range(func(_ string, pool *WatchedPool) bool {
		pools = append(pools, pool)
		return true
	})
	sort.Slice(pools, func(i, j int) bool {
		if pools[i].BlockNumber != pools[j].BlockNumber {
			return pools[i].BlockNumber < pools[j].BlockNumber
		}
		return pools[i].Address.Cmp(pools[j].Address) < 0
	})
	return pools
}
