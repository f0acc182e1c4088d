package correlation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/dexindexer/cache"
	"github.com/ethpandaops/dexindexer/types"
)

func newTestCache(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := cache.NewRedisCache(&types.RedisConfig{Address: mr.Addr()})
	t.Cleanup(func() { store.Close() })
	logger, _ := test.NewNullLogger()
	return mr, NewCache(store, ttl, logger)
}

func TestTransferAndMintPairUp(t *testing.T) {
	_, c := newTestCache(t, time.Hour)
	ctx := context.Background()

	transfer := &TransferData{
		Header: Header{ChainId: 1, Hash: "0xH", LogIndex: 1, BlockNumber: 10},
		From:   "0x0000000000000000000000000000000000000000",
		To:     "0xu",
		Token:  "0xP",
		Amount: "1000",
	}
	require.NoError(t, c.StageTransfer(ctx, transfer))
	require.NoError(t, c.StageLiquidity(ctx, KindMint, &LiquidityData{
		Header:  Header{ChainId: 1, Hash: "0xh", LogIndex: 2, BlockNumber: 10},
		Pool:    "0xp",
		Sender:  "0xs",
		Amount0: "5",
		Amount1: "10",
	}))

	transfers, err := c.Transfers(ctx)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, "1:0xh:0xp", transfers[0].Key())
	assert.NotZero(t, transfers[0].StagedAt)

	mint, err := c.Counterpart(ctx, KindMint, transfers[0].Key())
	require.NoError(t, err)
	assert.Equal(t, "0xs", mint.Sender)

	_, err = c.Counterpart(ctx, KindBurn, transfers[0].Key())
	assert.ErrorIs(t, err, ErrNoCounterpart)

	require.NoError(t, c.Remove(ctx, KindTransfer, transfers[0].Key()))
	require.NoError(t, c.Remove(ctx, KindMint, transfers[0].Key()))

	pending, err := c.Pending(ctx, KindTransfer)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestStageTransferKeepsLargestAmount(t *testing.T) {
	_, c := newTestCache(t, time.Hour)
	ctx := context.Background()
	header := Header{ChainId: 1, Hash: "0xh", BlockNumber: 10}

	require.NoError(t, c.StageTransfer(ctx, &TransferData{Header: header, Token: "0xp", To: "0xuser", Amount: "5000"}))
	require.NoError(t, c.StageTransfer(ctx, &TransferData{Header: header, Token: "0xp", To: "0xlocked", Amount: "1000"}))

	transfers, err := c.Transfers(ctx)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, "0xuser", transfers[0].To)
}

func TestDecodeAcceptsLooselyTypedEntries(t *testing.T) {
	mr, c := newTestCache(t, time.Hour)
	ctx := context.Background()

	mr.HSet("swap", "1:0xh:3", `{"chainId":"1","hash":"0xh","logIndex":"3","blockNumber":12,"amount0In":"7","token":"0xp"}`)

	swaps, err := c.Swaps(ctx)
	require.NoError(t, err)
	require.Len(t, swaps, 1)
	assert.Equal(t, uint64(1), swaps[0].ChainId)
	assert.Equal(t, uint64(3), swaps[0].LogIndex)
	assert.Equal(t, "7", swaps[0].Amount0In)
}

func TestUndecodableEntriesAreDeadLettered(t *testing.T) {
	mr, c := newTestCache(t, time.Hour)
	ctx := context.Background()

	mr.HSet("swap", "broken", `not-json`)

	swaps, err := c.Swaps(ctx)
	require.NoError(t, err)
	assert.Empty(t, swaps)
	assert.Equal(t, "not-json", mr.HGet("swap:dead", "broken"))
}

func TestExpiryAndDeadLetter(t *testing.T) {
	mr, c := newTestCache(t, time.Hour)
	ctx := context.Background()
	now := time.Now()
	c.now = func() time.Time { return now }

	data := &LiquidityData{Header: Header{ChainId: 1, Hash: "0xh"}, Pool: "0xp"}
	require.NoError(t, c.StageLiquidity(ctx, KindBurn, data))
	assert.False(t, c.Expired(&data.Header))

	c.now = func() time.Time { return now.Add(2 * time.Hour) }
	assert.True(t, c.Expired(&data.Header))

	require.NoError(t, c.DeadLetter(ctx, KindBurn, data.Key()))
	assert.NotEmpty(t, mr.HGet("burn:dead", data.Key()))
	assert.Empty(t, mr.HGet("burn", data.Key()))
}

func TestNfpmTransfersOrdered(t *testing.T) {
	_, c := newTestCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.StageNfpmTransfer(ctx, &NfpmTransferData{Header: Header{ChainId: 1, BlockNumber: 20, LogIndex: 1}, Type: NfpmTransfer, TokenId: "7"}))
	require.NoError(t, c.StageNfpmTransfer(ctx, &NfpmTransferData{Header: Header{ChainId: 1, BlockNumber: 10, LogIndex: 4}, Type: NfpmMint, TokenId: "7"}))

	transfers, err := c.NfpmTransfers(ctx)
	require.NoError(t, err)
	require.Len(t, transfers, 2)
	assert.Equal(t, NfpmMint, transfers[0].Type)
	assert.Equal(t, NfpmTransfer, transfers[1].Type)
	assert.False(t, c.Expired(&transfers[0].Header))
}
