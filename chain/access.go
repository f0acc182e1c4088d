package chain

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/dexindexer/clients/execution"
	"github.com/ethpandaops/dexindexer/types"
)

// Lease is a claimed chain lock. It must be handed back to Release.
type Lease interface {
	ChainId() uint64
}

// Locker grants exclusive access to a chain across indexer instances.
type Locker interface {
	Claim(ctx context.Context, chainId uint64) (Lease, bool)
	Release(ctx context.Context, lease Lease) bool
	HaltUntilOpen(ctx context.Context, chainId uint64) (Lease, error)
	Renew(ctx context.Context, lease Lease) bool
	RenewInterval() time.Duration
}

// ErrLeaseLost is returned by WithLock when the chain lock was taken over while fn was running.
var ErrLeaseLost = errors.New("chain lock lost")

// Access bundles everything a watcher needs to work on one chain.
type Access struct {
	ChainId      uint64
	Config       *types.ChainConfig
	Reader       execution.ChainReader
	Lock         Locker
	DefaultRange uint64
	Logger       logrus.FieldLogger
}

// NewAccess builds the capability for chainId from the registry.
func (r *Registry) NewAccess(chainId uint64, lock Locker, defaultRange uint64, logger logrus.FieldLogger) (*Access, bool) {
	c, ok := r.chains[chainId]
	if !ok {
		return nil, false
	}

	blockRange := c.Config.BlockRange
	if blockRange == 0 {
		blockRange = defaultRange
	}

	return &Access{
		ChainId:      chainId,
		Config:       c.Config,
		Reader:       c.Client,
		Lock:         lock,
		DefaultRange: blockRange,
		Logger:       logger.WithField("chain", c.Config.Name),
	}, true
}

// WithLock runs fn while holding the chain lock. The lease is renewed in the background until fn returns,
// if a renewal fails the context passed to fn is cancelled and ErrLeaseLost is returned.
func (a *Access) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	lease, err := a.Lock.HaltUntilOpen(ctx, a.ChainId)
	if err != nil {
		return err
	}
	defer a.Lock.Release(context.WithoutCancel(ctx), lease)

	lockCtx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.keepLease(lockCtx, lease, done, cancel)
	}()

	err = fn(lockCtx)
	close(done)
	wg.Wait()
	cancel(nil)

	if errors.Is(context.Cause(lockCtx), ErrLeaseLost) {
		return ErrLeaseLost
	}
	return err
}

func (a *Access) keepLease(ctx context.Context, lease Lease, done <-chan struct{}, cancel context.CancelCauseFunc) {
	ticker := time.NewTicker(a.Lock.RenewInterval())
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !a.Lock.Renew(ctx, lease) {
				if ctx.Err() != nil {
					return
				}
				a.Logger.Warnf("lock for chain %v lost while running, aborting", a.ChainId)
				cancel(ErrLeaseLost)
				return
			}
		}
	}
}
