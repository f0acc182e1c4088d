package cursor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/dexindexer/clients/execution"
	"github.com/ethpandaops/dexindexer/db"
	"github.com/ethpandaops/dexindexer/types"
)

func setupTestDb(t *testing.T) {
	t.Helper()
	db.MustInitDB(&types.DatabaseConfig{
		Engine: "sqlite",
		Sqlite: &types.SqliteDatabaseConfig{File: filepath.Join(t.TempDir(), "cursor.sqlite")},
	})
	require.NoError(t, db.ApplyEmbeddedDbSchema(-2))
	t.Cleanup(db.MustCloseDB)
}

func TestGetOrCreateUsesDeploymentFloor(t *testing.T) {
	setupTestDb(t)
	ctx := context.Background()
	store := NewStore(1)

	status, err := store.GetOrCreate(ctx, "PoolCreated", "0xFACTORY", 1, 1308356)
	require.NoError(t, err)
	assert.Equal(t, uint64(1308356), status.LastBlockNumber)
	assert.Equal(t, "PoolCreated-0xfactory:1", status.Id)

	status, err = store.GetOrCreate(ctx, "Swap", "0xpool", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), status.LastBlockNumber)

	// existing rows are returned unchanged
	status.LastBlockNumber = 500
	require.NoError(t, store.Save(ctx, status))
	again, err := store.GetOrCreate(ctx, "Swap", "0xpool", 1, 999)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), again.LastBlockNumber)
}

func TestCursorAdvancesOverEmptyRanges(t *testing.T) {
	setupTestDb(t)
	ctx := context.Background()
	store := NewStore(100)

	status, err := store.GetOrCreate(ctx, "Sync", "0xpool", 1, 0)
	require.NoError(t, err)

	latest := uint64(1000)
	previous := status.LastBlockNumber
	for i := 0; i < 5; i++ {
		fromBlock, ok := NextBlock(status.LastBlockNumber, latest)
		require.True(t, ok)
		// no logs in this range, the cursor still moves
		status.LastBlockNumber = execution.RangeEnd(fromBlock, latest, 0, 100)
		require.NoError(t, store.Save(ctx, status))

		stored, err := store.Get(ctx, "Sync", "0xpool", 1)
		require.NoError(t, err)
		assert.Greater(t, stored.LastBlockNumber, previous)
		previous = stored.LastBlockNumber
	}
	assert.Equal(t, uint64(601), previous)
}

func TestSaveNeverMovesBack(t *testing.T) {
	setupTestDb(t)
	ctx := context.Background()
	store := NewStore(1)

	status, err := store.GetOrCreate(ctx, "Mint", "0xpool", 2, 50)
	require.NoError(t, err)

	status.LastBlockNumber = 10
	require.NoError(t, store.Save(ctx, status))

	stored, err := store.Get(ctx, "Mint", "0xpool", 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), stored.LastBlockNumber)
}

func TestNextBlock(t *testing.T) {
	_, ok := NextBlock(100, 100)
	assert.False(t, ok)
	_, ok = NextBlock(120, 100)
	assert.False(t, ok)

	from, ok := NextBlock(99, 100)
	assert.True(t, ok)
	assert.Equal(t, uint64(100), from)
}

func TestGetUnknownCursor(t *testing.T) {
	setupTestDb(t)
	_, err := NewStore(1).Get(context.Background(), "Burn", "0xnone", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}
