package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/dexindexer/cache"
	"github.com/ethpandaops/dexindexer/chain"
	"github.com/ethpandaops/dexindexer/types"
)

func newTestLock(t *testing.T) (*miniredis.Miniredis, *ResourceLock) {
	return newTestLockWithRenewal(t, 0)
}

func newTestLockWithRenewal(t *testing.T, renewInterval time.Duration) (*miniredis.Miniredis, *ResourceLock) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := cache.NewRedisCache(&types.RedisConfig{Address: mr.Addr()})
	t.Cleanup(func() { store.Close() })

	logger, _ := test.NewNullLogger()
	return mr, NewResourceLock(store, Config{
		Prefix:        "resource-lock",
		TTL:           30 * time.Second,
		RenewInterval: renewInterval,
		MinBackoff:    5 * time.Millisecond,
		MaxBackoff:    20 * time.Millisecond,
	}, logger)
}

func newTestAccess(rl *ResourceLock) *chain.Access {
	logger, _ := test.NewNullLogger()
	return &chain.Access{
		ChainId: 1,
		Lock:    rl,
		Logger:  logger,
	}
}

func TestClaimIsExclusive(t *testing.T) {
	mr, rl := newTestLock(t)
	ctx := context.Background()

	lease, ok := rl.Claim(ctx, 1)
	require.True(t, ok)
	assert.True(t, mr.Exists("resource-lock-1"))
	assert.Equal(t, 30*time.Second, mr.TTL("resource-lock-1"))

	_, ok = rl.Claim(ctx, 1)
	assert.False(t, ok)

	other, ok := rl.Claim(ctx, 2)
	assert.True(t, ok)

	assert.True(t, rl.Release(ctx, lease))
	assert.True(t, rl.Release(ctx, other))
	assert.False(t, mr.Exists("resource-lock-1"))
}

func TestReleaseAfterExpiryKeepsNewOwner(t *testing.T) {
	mr, rl := newTestLock(t)
	ctx := context.Background()

	stale, ok := rl.Claim(ctx, 1)
	require.True(t, ok)

	mr.FastForward(31 * time.Second)

	fresh, ok := rl.Claim(ctx, 1)
	require.True(t, ok)

	assert.False(t, rl.Release(ctx, stale))
	assert.True(t, mr.Exists("resource-lock-1"))
	assert.True(t, rl.Release(ctx, fresh))
}

func TestConcurrentClaimsHaveOneWinner(t *testing.T) {
	_, rl := newTestLock(t)
	ctx := context.Background()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := rl.Claim(ctx, 1); ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestHaltUntilOpenWaitsForRelease(t *testing.T) {
	_, rl := newTestLock(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	winner, ok := rl.Claim(ctx, 1)
	require.True(t, ok)

	var released atomic.Bool
	acquired := make(chan struct{})
	go func() {
		lease, err := rl.HaltUntilOpen(ctx, 1)
		if assert.NoError(t, err) {
			assert.True(t, released.Load(), "waiter proceeded before release")
			rl.Release(ctx, lease)
		}
		close(acquired)
	}()

	time.Sleep(100 * time.Millisecond)
	select {
	case <-acquired:
		t.Fatal("waiter acquired a held lock")
	default:
	}

	released.Store(true)
	require.True(t, rl.Release(ctx, winner))
	<-acquired
}

func TestHaltUntilOpenHonorsCancel(t *testing.T) {
	_, rl := newTestLock(t)

	_, ok := rl.Claim(context.Background(), 1)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := rl.HaltUntilOpen(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFailOpenWhenStoreUnreachable(t *testing.T) {
	mr, rl := newTestLock(t)
	mr.Close()

	lease, ok := rl.Claim(context.Background(), 1)
	require.True(t, ok)
	assert.True(t, lease.(*Lease).FailOpen())
	assert.True(t, rl.Release(context.Background(), lease))
}

func TestRenewKeepsLeasePastTTL(t *testing.T) {
	mr, rl := newTestLock(t)
	ctx := context.Background()
	assert.Equal(t, 10*time.Second, rl.RenewInterval())

	lease, ok := rl.Claim(ctx, 1)
	require.True(t, ok)

	mr.FastForward(20 * time.Second)
	require.True(t, rl.Renew(ctx, lease))
	assert.Equal(t, 30*time.Second, mr.TTL("resource-lock-1"))

	mr.FastForward(20 * time.Second)
	_, ok = rl.Claim(ctx, 1)
	assert.False(t, ok, "lock was claimed while the renewed lease was held")

	assert.True(t, rl.Release(ctx, lease))
}

func TestRenewAfterTakeoverFails(t *testing.T) {
	mr, rl := newTestLock(t)
	ctx := context.Background()

	stale, ok := rl.Claim(ctx, 1)
	require.True(t, ok)

	mr.FastForward(31 * time.Second)
	fresh, ok := rl.Claim(ctx, 1)
	require.True(t, ok)

	assert.False(t, rl.Renew(ctx, stale))
	assert.True(t, rl.Release(ctx, fresh))
}

func TestWithLockRenewsWhileRunning(t *testing.T) {
	mr, rl := newTestLockWithRenewal(t, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := newTestAccess(rl).WithLock(ctx, func(ctx context.Context) error {
		// 75s of store time pass while the lease ttl is 30s
		for i := 0; i < 5; i++ {
			time.Sleep(50 * time.Millisecond)
			mr.FastForward(15 * time.Second)
		}

		assert.True(t, mr.Exists("resource-lock-1"))
		_, ok := rl.Claim(ctx, 1)
		assert.False(t, ok, "second instance claimed a held chain lock")
		return ctx.Err()
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("resource-lock-1"))
}

func TestWithLockAbortsWhenLeaseIsLost(t *testing.T) {
	mr, rl := newTestLockWithRenewal(t, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := newTestAccess(rl).WithLock(ctx, func(ctx context.Context) error {
		require.NoError(t, mr.Set("resource-lock-1", "other-instance"))
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, chain.ErrLeaseLost)

	owner, getErr := mr.Get("resource-lock-1")
	require.NoError(t, getErr)
	assert.Equal(t, "other-instance", owner)
}

func TestFailOpenLeaseRenews(t *testing.T) {
	mr, rl := newTestLock(t)
	mr.Close()

	lease, ok := rl.Claim(context.Background(), 1)
	require.True(t, ok)
	assert.True(t, rl.Renew(context.Background(), lease))
}
