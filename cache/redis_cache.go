package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ethpandaops/dexindexer/types"
)

// ErrCacheMiss is returned for keys that do not exist.
var ErrCacheMiss = errors.New("cache miss")

// compareAndDelete removes KEYS[1] only while it still holds ARGV[1].
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// compareAndExpire resets the ttl of KEYS[1] to ARGV[2] milliseconds only while it still holds ARGV[1].
var compareAndExpire = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type RedisCache struct {
	redisRemoteCache *redis.Client
	keyPrefix        string
}

// NewRedisCache creates the client without connecting. Connection errors surface on first use.
func NewRedisCache(config *types.RedisConfig) *RedisCache {
	dialTimeout := config.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 5 * time.Second
	}

	rdc := redis.NewClient(&redis.Options{
		Addr:        config.Address,
		Password:    config.Password,
		DB:          config.Database,
		DialTimeout: dialTimeout,
		ReadTimeout: time.Second * 20,
		MaxRetries:  1,
	})

	return &RedisCache{
		redisRemoteCache: rdc,
		keyPrefix:        config.KeyPrefix,
	}
}

// InitRedisCache creates the client and checks the connection.
func InitRedisCache(ctx context.Context, config *types.RedisConfig) (*RedisCache, error) {
	r := NewRedisCache(config)
	if err := r.Ping(ctx); err != nil {
		return r, err
	}
	return r, nil
}

func (cache *RedisCache) key(key string) string {
	return fmt.Sprintf("%s%s", cache.keyPrefix, key)
}

func (cache *RedisCache) Ping(ctx context.Context) error {
	return cache.redisRemoteCache.Ping(ctx).Err()
}

func (cache *RedisCache) Close() error {
	return cache.redisRemoteCache.Close()
}

func (cache *RedisCache) GetString(ctx context.Context, key string) (string, error) {
	value, err := cache.redisRemoteCache.Get(ctx, cache.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", err
	}

	return value, nil
}

func (cache *RedisCache) SetBytes(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	return cache.redisRemoteCache.Set(ctx, cache.key(key), value, expiration).Err()
}

func (cache *RedisCache) GetBytes(ctx context.Context, key string) ([]byte, error) {
	value, err := cache.GetString(ctx, key)
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

// SetNX stores value only if key is unset and reports whether it did.
func (cache *RedisCache) SetNX(ctx context.Context, key string, value string, expiration time.Duration) (bool, error) {
	return cache.redisRemoteCache.SetNX(ctx, cache.key(key), value, expiration).Result()
}

// DeleteIfEquals atomically deletes key if it currently holds value.
func (cache *RedisCache) DeleteIfEquals(ctx context.Context, key string, value string) (bool, error) {
	deleted, err := compareAndDelete.Run(ctx, cache.redisRemoteCache, []string{cache.key(key)}, value).Int64()
	if err != nil {
		return false, err
	}
	return deleted > 0, nil
}

// ExpireIfEquals atomically resets the expiration of key if it currently holds value.
func (cache *RedisCache) ExpireIfEquals(ctx context.Context, key string, value string, expiration time.Duration) (bool, error) {
	renewed, err := compareAndExpire.Run(ctx, cache.redisRemoteCache, []string{cache.key(key)}, value, expiration.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return renewed > 0, nil
}

func (cache *RedisCache) HSet(ctx context.Context, hash string, field string, value []byte) error {
	return cache.redisRemoteCache.HSet(ctx, cache.key(hash), field, value).Err()
}

func (cache *RedisCache) HGet(ctx context.Context, hash string, field string) ([]byte, error) {
	value, err := cache.redisRemoteCache.HGet(ctx, cache.key(hash), field).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (cache *RedisCache) HGetAll(ctx context.Context, hash string) (map[string]string, error) {
	return cache.redisRemoteCache.HGetAll(ctx, cache.key(hash)).Result()
}

// HDel removes fields from hash and returns how many existed.
func (cache *RedisCache) HDel(ctx context.Context, hash string, fields ...string) (int64, error) {
	return cache.redisRemoteCache.HDel(ctx, cache.key(hash), fields...).Result()
}

func (cache *RedisCache) HLen(ctx context.Context, hash string) (int64, error) {
	return cache.redisRemoteCache.HLen(ctx, cache.key(hash)).Result()
}
