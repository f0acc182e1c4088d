package aggregation

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/dexindexer/db"
	"github.com/ethpandaops/dexindexer/dbtypes"
	"github.com/ethpandaops/dexindexer/types"
)

func setupTestDb(t *testing.T) {
	t.Helper()
	db.MustInitDB(&types.DatabaseConfig{
		Engine: "sqlite",
		Sqlite: &types.SqliteDatabaseConfig{
			File: filepath.Join(t.TempDir(), "test.sqlite"),
		},
	})
	require.NoError(t, db.ApplyEmbeddedDbSchema(-2))
	t.Cleanup(db.MustCloseDB)
}

func testAction(timestamp uint64, amountUSD string) *Action {
	usd := decimal.RequireFromString(amountUSD)
	return &Action{
		Timestamp: timestamp,
		Pool: &dbtypes.Pool{
			Id:           dbtypes.PoolId("0xPool", 1),
			ChainId:      1,
			Address:      "0xpool",
			Reserve0:     decimal.NewFromInt(100),
			TotalSupply:  decimal.NewFromInt(10),
			TotalFeesUSD: decimal.RequireFromString("0.5"),
		},
		Token0: &dbtypes.Token{
			Id: dbtypes.TokenId("0xa", 1), ChainId: 1, Address: "0xa",
			DerivedUSD: decimal.NewFromInt(2), TotalLiquidity: decimal.NewFromInt(50),
		},
		Token1: &dbtypes.Token{
			Id: dbtypes.TokenId("0xb", 1), ChainId: 1, Address: "0xb",
			DerivedUSD: decimal.NewFromInt(1),
		},
		Amount0:    decimal.NewFromInt(1),
		Amount1:    decimal.NewFromInt(1),
		Amount0USD: usd,
		Amount1USD: decimal.Zero,
	}
}

func TestBucketIds(t *testing.T) {
	assert.Equal(t, "0xabc-19000", PoolDayDataId("0xABC", 19000*DaySeconds+5))
	assert.Equal(t, "0xabc-456000", PoolHourDataId("0xabc", 456000*HourSeconds+3599))
	assert.Equal(t, "19000", OverallDayDataId(19000*DaySeconds))
	assert.Equal(t, "0xdef-0", TokenDayDataId("0xDEF", DaySeconds-1))
}

func TestPoolDayVolumeIsSumOfActions(t *testing.T) {
	setupTestDb(t)
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	engine := NewEngine(logger)
	day := uint64(20000 * DaySeconds)

	actions := []*Action{
		testAction(day+10, "1.25"),
		testAction(day+HourSeconds+10, "3.000000000000000001"),
		testAction(day+DaySeconds-1, "0.75"),
		testAction(day+DaySeconds, "100"),
	}

	stats := &dbtypes.Statistics{
		Id:                   dbtypes.StatisticsId(1),
		ChainId:              1,
		TotalVolumeLockedUSD: decimal.NewFromInt(42),
	}
	for _, action := range actions {
		require.NoError(t, db.RunDBTransaction(func(tx *sqlx.Tx) error {
			return engine.Apply(ctx, tx, action, stats)
		}))
	}

	dayData, err := db.GetPoolDayData(ctx, 1, PoolDayDataId("0xpool", day))
	require.NoError(t, err)
	assert.Equal(t, "5.000000000000000001", dayData.DailyVolumeUSD.String())
	assert.Equal(t, uint64(3), dayData.DailyTxns)
	assert.Equal(t, day, dayData.Date)
	assert.True(t, dayData.Reserve0.Equal(decimal.NewFromInt(100)))
	assert.True(t, dayData.DailyVolumeToken0.Equal(decimal.NewFromInt(3)))

	nextDay, err := db.GetPoolDayData(ctx, 1, PoolDayDataId("0xpool", day+DaySeconds))
	require.NoError(t, err)
	assert.True(t, nextDay.DailyVolumeUSD.Equal(decimal.NewFromInt(100)))

	hourData, err := db.GetPoolHourData(ctx, 1, PoolHourDataId("0xpool", day))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), hourData.HourlyTxns)
	assert.Equal(t, day, hourData.HourStartUnix)

	tokenData, err := db.GetTokenDayData(ctx, 1, TokenDayDataId("0xa", day))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), tokenData.DailyTxns)
	assert.True(t, tokenData.TotalLiquidityUSD.Equal(decimal.NewFromInt(100)))
	assert.True(t, tokenData.PriceUSD.Equal(decimal.NewFromInt(2)))

	overall, err := db.GetOverallDayDatas(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, overall, 2)
	assert.Equal(t, uint64(3), overall[1].TxCount)
	assert.True(t, overall[1].LiquidityUSD.Equal(decimal.NewFromInt(42)))
	assert.True(t, overall[1].FeesUSD.Equal(decimal.RequireFromString("1.5")))
}
