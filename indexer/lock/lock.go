package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/dexindexer/chain"
	"github.com/ethpandaops/dexindexer/utils"
)

// KeyValueStore is the shared store backing the lock.
type KeyValueStore interface {
	SetNX(ctx context.Context, key string, value string, expiration time.Duration) (bool, error)
	DeleteIfEquals(ctx context.Context, key string, value string) (bool, error)
	ExpireIfEquals(ctx context.Context, key string, value string, expiration time.Duration) (bool, error)
}

type Config struct {
	Prefix        string
	TTL           time.Duration
	RenewInterval time.Duration
	MinBackoff    time.Duration
	MaxBackoff    time.Duration
}

// ResourceLock is a TTL based mutual exclusion per chain. Every claim gets its own owner token,
// so a holder can only ever release its own claim.
type ResourceLock struct {
	store  KeyValueStore
	config Config
	logger logrus.FieldLogger
}

// Lease is a successful claim.
type Lease struct {
	chainId  uint64
	token    string
	failOpen bool
}

func (l *Lease) ChainId() uint64 {
	return l.chainId
}

// FailOpen reports whether the lease was granted without reaching the shared store.
func (l *Lease) FailOpen() bool {
	return l.failOpen
}

var _ chain.Locker = (*ResourceLock)(nil)

func NewResourceLock(store KeyValueStore, config Config, logger logrus.FieldLogger) *ResourceLock {
	if config.Prefix == "" {
		config.Prefix = "resource-lock"
	}
	if config.TTL == 0 {
		config.TTL = 30 * time.Second
	}
	if config.RenewInterval == 0 || config.RenewInterval >= config.TTL {
		config.RenewInterval = config.TTL / 3
	}

	return &ResourceLock{
		store:  store,
		config: config,
		logger: logger,
	}
}

func (rl *ResourceLock) resourceKey(chainId uint64) string {
	return fmt.Sprintf("%v-%v", rl.config.Prefix, chainId)
}

// Claim tries to take the lock of chainId once.
// An unreachable store grants the lock, the indexer keeps working without exclusion.
func (rl *ResourceLock) Claim(ctx context.Context, chainId uint64) (chain.Lease, bool) {
	lease := &Lease{
		chainId: chainId,
		token:   uuid.NewString(),
	}

	ok, err := rl.store.SetNX(ctx, rl.resourceKey(chainId), lease.token, rl.config.TTL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false
		}
		rl.logger.WithError(err).Warnf("lock store unreachable, granting lock for chain %v", chainId)
		lease.failOpen = true
		return lease, true
	}
	if !ok {
		return nil, false
	}

	return lease, true
}

// Release drops the lock if it is still owned by lease.
func (rl *ResourceLock) Release(ctx context.Context, lease chain.Lease) bool {
	l, ok := lease.(*Lease)
	if !ok || l == nil {
		return false
	}
	if l.failOpen {
		return true
	}

	released, err := rl.store.DeleteIfEquals(ctx, rl.resourceKey(l.chainId), l.token)
	if err != nil {
		rl.logger.WithError(err).Warnf("could not release lock for chain %v", l.chainId)
		return false
	}
	if !released {
		rl.logger.Debugf("lock for chain %v expired before release", l.chainId)
	}
	return released
}

// Renew extends a held lease by a full TTL. It returns false only when the lock is owned by someone else
// or expired, a store error keeps the lease.
func (rl *ResourceLock) Renew(ctx context.Context, lease chain.Lease) bool {
	l, ok := lease.(*Lease)
	if !ok || l == nil {
		return false
	}
	if l.failOpen {
		return true
	}

	renewed, err := rl.store.ExpireIfEquals(ctx, rl.resourceKey(l.chainId), l.token, rl.config.TTL)
	if err != nil {
		if ctx.Err() == nil {
			rl.logger.WithError(err).Warnf("could not renew lock for chain %v", l.chainId)
		}
		return true
	}
	return renewed
}

// RenewInterval is how often a holder has to renew its lease.
func (rl *ResourceLock) RenewInterval() time.Duration {
	return rl.config.RenewInterval
}

// HaltUntilOpen blocks until the lock of chainId is claimed or ctx is done.
func (rl *ResourceLock) HaltUntilOpen(ctx context.Context, chainId uint64) (chain.Lease, error) {
	backoff := utils.NewBackoff(rl.config.MinBackoff, rl.config.MaxBackoff)
	for {
		if lease, ok := rl.Claim(ctx, chainId); ok {
			return lease, nil
		}
		if !backoff.Wait(ctx) {
			return nil, ctx.Err()
		}
	}
}
