package watchers

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/dexindexer/db"
	"github.com/ethpandaops/dexindexer/dbtypes"
	"github.com/ethpandaops/dexindexer/indexer/aggregation"
	"github.com/ethpandaops/dexindexer/indexer/contracts"
	"github.com/ethpandaops/dexindexer/indexer/cursor"
)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal, field string) {
	t.Helper()
	assert.True(t, dec(expected).Equal(actual), "%v: expected %v, got %v", field, expected, actual)
}

// resetCursors moves every cursor of the chain back to block.
func resetCursors(t *testing.T, block uint64) {
	t.Helper()
	require.NoError(t, db.RunDBTransaction(func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(context.Background(), "UPDATE indexer_event_status SET last_block_number = $1 WHERE chain_id = $2", block, 1)
		return err
	}))
}

func TestV2SyncReplacesReserves(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedPool(t, dbtypes.PoolTypeVolatile)

	// another pool already holds 1000 of token0 and 500 usd of value locked
	require.NoError(t, db.RunDBTransaction(func(tx *sqlx.Tx) error {
		for i, address := range []common.Address{testToken0, testToken1} {
			token, err := db.GetTokenForUpdate(ctx, tx, dbtypes.TokenId(address.Hex(), 1))
			if err != nil {
				return err
			}
			token.DerivedUSD = decimal.NewFromInt(2)
			token.DerivedETH = dec("0.001")
			if i == 0 {
				token.TotalLiquidity = decimal.NewFromInt(1000)
			}
			if err := db.UpdateToken(ctx, tx, token); err != nil {
				return err
			}
		}
		stats, err := db.GetOrCreateStatistics(ctx, tx, 1)
		if err != nil {
			return err
		}
		stats.TotalVolumeLockedUSD = decimal.NewFromInt(500)
		stats.TotalVolumeLockedETH = dec("0.25")
		return db.UpdateStatistics(ctx, tx, stats)
	}))

	pools := NewV2PoolWatcher(env.wc)
	require.NoError(t, pools.Seed(ctx))

	check := func(reserve0, reserve1, price0, price1, reserveUSD, reserveETH, liquidity0, liquidity1, tvlUSD, tvlETH string) {
		t.Helper()
		pool, err := db.GetPool(ctx, db.ReaderDb, dbtypes.PoolId(testPool.Hex(), 1))
		require.NoError(t, err)
		assertDecimal(t, reserve0, pool.Reserve0, "reserve0")
		assertDecimal(t, reserve1, pool.Reserve1, "reserve1")
		assertDecimal(t, price0, pool.Token0Price, "token0 price")
		assertDecimal(t, price1, pool.Token1Price, "token1 price")
		assertDecimal(t, reserveUSD, pool.ReserveUSD, "reserve usd")
		assertDecimal(t, reserveETH, pool.ReserveETH, "reserve eth")

		token0, err := db.GetToken(ctx, db.ReaderDb, pool.Token0Id)
		require.NoError(t, err)
		token1, err := db.GetToken(ctx, db.ReaderDb, pool.Token1Id)
		require.NoError(t, err)
		assertDecimal(t, liquidity0, token0.TotalLiquidity, "token0 liquidity")
		assertDecimal(t, liquidity1, token1.TotalLiquidity, "token1 liquidity")
		assert.True(t, token0.TotalLiquidity.Mul(decimal.NewFromInt(2)).Equal(token0.TotalLiquidityUSD))

		stats, err := db.GetStatistics(ctx, db.ReaderDb, 1)
		require.NoError(t, err)
		assertDecimal(t, tvlUSD, stats.TotalVolumeLockedUSD, "tvl usd")
		assertDecimal(t, tvlETH, stats.TotalVolumeLockedETH, "tvl eth")
	}

	env.reader.addLogs(buildLog(t, contracts.V2PoolAbi, "Sync", testPool, 105, common.HexToHash("0x51"), 0, nil, ether(100), ether(50)))
	processed, err := pools.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	check("100", "50", "2", "0.5", "300", "0.15", "1100", "50", "800", "0.4")

	env.reader.mu.Lock()
	env.reader.latest = 130
	env.reader.mu.Unlock()
	env.reader.addLogs(buildLog(t, contracts.V2PoolAbi, "Sync", testPool, 125, common.HexToHash("0x52"), 0, nil, ether(40), ether(80)))
	processed, err = pools.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	check("40", "80", "0.5", "2", "240", "0.12", "1040", "80", "740", "0.37")
}

func TestV2BurnIsResolvedOnceForTheSender(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedPool(t, dbtypes.PoolTypeVolatile)

	mintHash := common.HexToHash("0xa1")
	burnHash := common.HexToHash("0xa2")
	env.reader.senders[burnHash] = testUser
	env.reader.addLogs(
		buildLog(t, contracts.V2PoolAbi, "Transfer", testPool, 105, mintHash, 1,
			[]common.Hash{addressTopic(zeroAddress), addressTopic(testUser)}, big.NewInt(3000)),
		buildLog(t, contracts.V2PoolAbi, "Mint", testPool, 105, mintHash, 2,
			[]common.Hash{addressTopic(testRouter)}, ether(5), ether(10)),
		buildLog(t, contracts.V2PoolAbi, "Transfer", testPool, 110, burnHash, 1,
			[]common.Hash{addressTopic(testUser), addressTopic(testPool)}, big.NewInt(1000)),
		buildLog(t, contracts.V2PoolAbi, "Transfer", testPool, 110, burnHash, 2,
			[]common.Hash{addressTopic(testPool), addressTopic(zeroAddress)}, big.NewInt(1000)),
		buildLog(t, contracts.V2PoolAbi, "Burn", testPool, 110, burnHash, 3,
			[]common.Hash{addressTopic(testRouter), addressTopic(testUser)}, ether(2), ether(4)),
	)

	pools := NewV2PoolWatcher(env.wc)
	require.NoError(t, pools.Seed(ctx))
	resolver := NewV2Resolver(env.wc)
	poolId := dbtypes.PoolId(testPool.Hex(), 1)

	check := func() {
		t.Helper()
		burns, err := db.GetBurnsByPool(ctx, poolId, 0, 2_000_000_000)
		require.NoError(t, err)
		require.Len(t, burns, 1)
		burn := burns[0]
		assert.Equal(t, dbtypes.ActionId("burn", burnHash.Hex(), 3, 1), burn.Id)
		assert.Equal(t, lowerHex(testRouter), burn.Sender)
		assertDecimal(t, "0.000000000000001", burn.Liquidity, "burn liquidity")
		assertDecimal(t, "2", burn.Amount0, "burn amount0")
		assertDecimal(t, "4", burn.Amount1, "burn amount1")
		assertDecimal(t, "12", burn.AmountUSD, "burn usd")

		position, err := db.GetLiquidityPosition(ctx, db.ReaderDb, dbtypes.PositionId(lowerHex(testPool), lowerHex(testUser), 1, nil))
		require.NoError(t, err)
		assertDecimal(t, "0.000000000000002", position.Position, "position")

		pool, err := db.GetPool(ctx, db.ReaderDb, poolId)
		require.NoError(t, err)
		assertDecimal(t, "0.000000000000002", pool.TotalSupply, "total supply")
		assert.Equal(t, uint64(2), pool.TxCount)

		stats, err := db.GetStatistics(ctx, db.ReaderDb, 1)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), stats.TxCount)
	}

	processed, err := pools.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, processed)
	resolved, err := resolver.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, resolved)
	check()

	// the burn's router sender never held a position
	_, err = db.GetLiquidityPosition(ctx, db.ReaderDb, dbtypes.PositionId(lowerHex(testPool), lowerHex(testRouter), 1, nil))
	assert.ErrorIs(t, err, db.ErrNotFound)

	// replaying the same blocks stages everything again but changes nothing
	resetCursors(t, 100)
	_, err = pools.Sweep(ctx)
	require.NoError(t, err)
	_, err = resolver.RunPass(ctx)
	require.NoError(t, err)
	check()
}

func TestClMintAndBurnUpdatePoolAndRollups(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedPool(t, dbtypes.PoolTypeConcentrated)

	mintHash := common.HexToHash("0xc1")
	burnHash := common.HexToHash("0xc2")
	env.reader.senders[burnHash] = testUser
	ticks := []common.Hash{addressTopic(testUser), common.BigToHash(big.NewInt(60)), common.BigToHash(big.NewInt(600))}
	env.reader.addLogs(
		buildLog(t, contracts.ClPoolAbi, "Mint", testPool, 105, mintHash, 0, ticks,
			testRouter, ether(3), ether(5), ether(10)),
		buildLog(t, contracts.ClPoolAbi, "Burn", testPool, 106, burnHash, 0, ticks,
			ether(1), ether(2), ether(4)),
	)

	pools := NewClPoolWatcher(env.wc)
	require.NoError(t, pools.Seed(ctx))
	processed, err := pools.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	mint, err := db.GetMint(ctx, db.ReaderDb, dbtypes.ActionId("mint", mintHash.Hex(), 0, 1))
	require.NoError(t, err)
	assert.Equal(t, lowerHex(testRouter), mint.Sender)
	assert.Equal(t, lowerHex(testUser), mint.To)
	assertDecimal(t, "3", mint.Liquidity, "mint liquidity")
	assertDecimal(t, "30", mint.AmountUSD, "mint usd")

	burn, err := db.GetBurn(ctx, db.ReaderDb, dbtypes.ActionId("burn", burnHash.Hex(), 0, 1))
	require.NoError(t, err)
	assert.Equal(t, lowerHex(testUser), burn.Sender)
	assertDecimal(t, "1", burn.Liquidity, "burn liquidity")
	assertDecimal(t, "2", burn.Amount0, "burn amount0")

	pool, err := db.GetPool(ctx, db.ReaderDb, dbtypes.PoolId(testPool.Hex(), 1))
	require.NoError(t, err)
	assertDecimal(t, "2", pool.TotalSupply, "pool liquidity")
	assert.Equal(t, uint64(2), pool.TxCount)

	timestamp, err := env.reader.GetBlockTimestamp(ctx, 105)
	require.NoError(t, err)
	day, err := db.GetPoolDayData(ctx, 1, aggregation.PoolDayDataId(lowerHex(testPool), timestamp))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), day.DailyTxns)
	assertDecimal(t, "2", day.TotalSupply, "day total supply")
	assertDecimal(t, "7", day.DailyVolumeToken0, "day volume token0")
	assertDecimal(t, "42", day.DailyVolumeUSD, "day volume usd")

	overall, err := db.GetOverallDayDatas(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, overall, 1)
	assert.Equal(t, uint64(2), overall[0].TxCount)
	assertDecimal(t, "42", overall[0].VolumeUSD, "overall volume usd")

	// no nfpm positions are touched by pool events
	positions, err := db.GetPositionsByPool(ctx, pool.Id)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

// runClPoolScenario sweeps a concentrated pool with a mint, two burns and a swap. With interrupt set
// the second burn fails once and the sweep is repeated. It returns the resulting totals.
func runClPoolScenario(t *testing.T, interrupt bool) map[string]string {
	env := newTestEnv(t)
	ctx := context.Background()
	seedPool(t, dbtypes.PoolTypeConcentrated)

	ticks := []common.Hash{addressTopic(testUser), common.BigToHash(big.NewInt(60)), common.BigToHash(big.NewInt(600))}
	failingBurn := common.HexToHash("0xd3")
	env.reader.addLogs(
		buildLog(t, contracts.ClPoolAbi, "Mint", testPool, 105, common.HexToHash("0xd1"), 0, ticks,
			testRouter, ether(3), ether(5), ether(10)),
		buildLog(t, contracts.ClPoolAbi, "Burn", testPool, 106, common.HexToHash("0xd2"), 0, ticks,
			ether(1), ether(2), ether(4)),
		buildLog(t, contracts.ClPoolAbi, "Burn", testPool, 107, failingBurn, 0, ticks,
			ether(1), ether(1), ether(1)),
		buildLog(t, contracts.ClPoolAbi, "Swap", testPool, 108, common.HexToHash("0xd4"), 0,
			[]common.Hash{addressTopic(testRouter), addressTopic(testUser)},
			ether(5), new(big.Int).Neg(ether(10)), big.NewInt(1), big.NewInt(1), big.NewInt(0)),
	)

	pools := NewClPoolWatcher(env.wc)
	require.NoError(t, pools.Seed(ctx))

	if interrupt {
		env.reader.senderErr = map[common.Hash]error{failingBurn: errors.New("receipt unavailable")}

		_, err := pools.Sweep(ctx)
		require.Error(t, err)

		mintCursor, err := env.wc.Cursors.Get(ctx, "Mint", testPool.Hex(), 1)
		require.NoError(t, err)
		assert.Equal(t, uint64(120), mintCursor.LastBlockNumber)
		burnCursor, err := env.wc.Cursors.Get(ctx, "Burn", testPool.Hex(), 1)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), burnCursor.LastBlockNumber, "burn cursor moved past a failed log")
		_, err = env.wc.Cursors.Get(ctx, "Swap", testPool.Hex(), 1)
		assert.ErrorIs(t, err, cursor.ErrNotFound)
		assert.False(t, env.mr.Exists("test-lock-1"))

		env.reader.mu.Lock()
		env.reader.senderErr = nil
		env.reader.mu.Unlock()
	}

	_, err := pools.Sweep(ctx)
	require.NoError(t, err)

	for _, event := range []string{"Mint", "Burn", "Swap"} {
		status, err := env.wc.Cursors.Get(ctx, event, testPool.Hex(), 1)
		require.NoError(t, err)
		assert.Equal(t, uint64(120), status.LastBlockNumber, "%v cursor", event)
	}

	pool, err := db.GetPool(ctx, db.ReaderDb, dbtypes.PoolId(testPool.Hex(), 1))
	require.NoError(t, err)
	stats, err := db.GetStatistics(ctx, db.ReaderDb, 1)
	require.NoError(t, err)
	timestamp, err := env.reader.GetBlockTimestamp(ctx, 105)
	require.NoError(t, err)
	day, err := db.GetPoolDayData(ctx, 1, aggregation.PoolDayDataId(lowerHex(testPool), timestamp))
	require.NoError(t, err)
	overall, err := db.GetOverallDayDatas(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, overall, 1)

	return map[string]string{
		"pool.txCount":         fmt.Sprint(pool.TxCount),
		"pool.totalSupply":     pool.TotalSupply.String(),
		"pool.volumeUSD":       pool.VolumeUSD.String(),
		"pool.volumeToken0":    pool.VolumeToken0.String(),
		"stats.txCount":        fmt.Sprint(stats.TxCount),
		"stats.tradeVolumeUSD": stats.TotalTradeVolumeUSD.String(),
		"stats.tvlUSD":         stats.TotalVolumeLockedUSD.String(),
		"day.txns":             fmt.Sprint(day.DailyTxns),
		"day.volumeUSD":        day.DailyVolumeUSD.String(),
		"overall.txCount":      fmt.Sprint(overall[0].TxCount),
		"overall.volumeUSD":    overall[0].VolumeUSD.String(),
		"overall.liquidityUSD": overall[0].LiquidityUSD.String(),
	}
}

func TestFailedHandlerKeepsCursorAndRerunMatchesCleanRun(t *testing.T) {
	var clean, interrupted map[string]string
	t.Run("clean", func(t *testing.T) {
		clean = runClPoolScenario(t, false)
	})
	t.Run("interrupted", func(t *testing.T) {
		interrupted = runClPoolScenario(t, true)
	})

	require.NotNil(t, clean)
	assert.Equal(t, "4", clean["pool.txCount"])
	assert.Equal(t, clean, interrupted)
}
