package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coocood/freecache"

	"github.com/ethpandaops/dexindexer/utils"
)

// TieredCache combines a local in-memory cache with an optional shared remote cache.
type TieredCache struct {
	localGoCache *freecache.Cache
	remoteCache  RemoteCache
}

type cachedValue struct {
	Version uint64      `json:"i"`
	Timeout int64       `json:"t"`
	Value   interface{} `json:"v"`
}

type RemoteCache interface {
	SetBytes(ctx context.Context, key string, value []byte, expiration time.Duration) error
	GetBytes(ctx context.Context, key string) ([]byte, error)
}

// NewTieredCache creates a cache with cacheSize megabytes of local memory. remoteCache may be nil.
func NewTieredCache(cacheSize int, remoteCache RemoteCache) *TieredCache {
	if cacheSize <= 0 {
		cacheSize = 16
	}
	return &TieredCache{
		remoteCache:  remoteCache,
		localGoCache: freecache.NewCache(cacheSize * 1024 * 1024),
	}
}

func expireSeconds(expiration time.Duration) int {
	seconds := int(expiration.Seconds())
	if expiration > 0 && seconds == 0 {
		seconds = 1
	}
	return seconds
}

func (cache *TieredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	cacheValue := cachedValue{
		Version: 1,
		Value:   value,
	}
	if expiration > 0 {
		cacheValue.Timeout = time.Now().Add(expiration).UnixMilli()
	}

	valueMarshal, err := json.Marshal(cacheValue)
	if err != nil {
		return err
	}
	if err := cache.localGoCache.Set([]byte(key), valueMarshal, expireSeconds(expiration)); err != nil {
		return err
	}
	if cache.remoteCache != nil {
		return cache.remoteCache.SetBytes(ctx, key, valueMarshal, expiration)
	}
	return nil
}

func (cache *TieredCache) Get(ctx context.Context, key string, returnValue interface{}) (interface{}, error) {
	cacheValue := &cachedValue{
		Value: returnValue,
	}

	// try to retrieve the key from the local cache
	wanted, err := cache.localGoCache.Get([]byte(key))
	if err == nil {
		err = json.Unmarshal(wanted, cacheValue)
		if err != nil {
			utils.LogError(err, "error unmarshalling data for key", 0, map[string]interface{}{"key": key})
			return nil, err
		}
		if cacheValue.Timeout == 0 || cacheValue.Timeout > time.Now().UnixMilli() {
			return returnValue, nil
		}
		cache.localGoCache.Del([]byte(key))
	}

	if cache.remoteCache == nil {
		return nil, ErrCacheMiss
	}

	// retrieve the key from the remote cache
	remoteValue, err := cache.remoteCache.GetBytes(ctx, key)
	if err != nil {
		return nil, err
	}
	err = json.Unmarshal(remoteValue, cacheValue)
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	if cacheValue.Timeout != 0 && cacheValue.Timeout <= now {
		return nil, ErrCacheMiss
	}

	var timeout time.Duration
	if cacheValue.Timeout != 0 {
		timeout = time.Duration(cacheValue.Timeout-now) * time.Millisecond
	}
	cache.localGoCache.Set([]byte(key), remoteValue, expireSeconds(timeout))

	return returnValue, nil
}
