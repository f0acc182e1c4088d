package oracle

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/dexindexer/cache"
	"github.com/ethpandaops/dexindexer/clients/execution"
	"github.com/ethpandaops/dexindexer/indexer/contracts"
)

const oracleAddr = "0x1Ec4cE240CAb13dd15d144284a93dc8DeD99F41d"
const tokenAddr = "0x00000000000000000000000000000000000000a1"

type fakeReader struct {
	decimalCalls atomic.Int32
	priceCalls   atomic.Int32
	lastAmount   atomic.Value
}

var _ execution.ChainReader = (*fakeReader)(nil)

func (r *fakeReader) GetChainId() uint64 { return 1 }
func (r *fakeReader) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	return 0, errors.New("not implemented")
}
func (r *fakeReader) FilterLogsInRange(ctx context.Context, query ethereum.FilterQuery, fromBlock uint64, latestBlock uint64, defaultRange uint64) (*execution.LogRange, error) {
	return nil, errors.New("not implemented")
}
func (r *fakeReader) GetBlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	return 0, errors.New("not implemented")
}
func (r *fakeReader) GetTransactionFrom(ctx context.Context, hash common.Hash) (common.Address, error) {
	return common.Address{}, errors.New("not implemented")
}

func (r *fakeReader) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	switch {
	case bytes.HasPrefix(msg.Data, contracts.Erc20Abi.Methods["decimals"].ID):
		r.decimalCalls.Add(1)
		return contracts.Erc20Abi.Methods["decimals"].Outputs.Pack(uint8(6))
	case bytes.HasPrefix(msg.Data, contracts.OracleAbi.Methods["getAverageValueInUSD"].ID):
		r.priceCalls.Add(1)
		args, err := contracts.OracleAbi.Methods["getAverageValueInUSD"].Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		r.lastAmount.Store(args[1].(*big.Int).String())
		// 1.5 usd
		return contracts.OracleAbi.Methods["getAverageValueInUSD"].Outputs.Pack(big.NewInt(1_500_000_000_000_000_000))
	case bytes.HasPrefix(msg.Data, contracts.OracleAbi.Methods["getAverageValueInETH"].ID):
		r.priceCalls.Add(1)
		return contracts.OracleAbi.Methods["getAverageValueInETH"].Outputs.Pack(big.NewInt(500_000_000_000_000))
	}
	return nil, errors.New("execution reverted")
}

func TestPriceWithoutCacheHitsChainEveryTime(t *testing.T) {
	logger, _ := test.NewNullLogger()
	reader := &fakeReader{}
	client := NewClient(logger, nil, 0)
	require.NoError(t, client.AddChain(1, reader, oracleAddr))

	for i := 0; i < 3; i++ {
		price, err := client.GetPriceInUSD(context.Background(), tokenAddr, 1)
		require.NoError(t, err)
		assert.True(t, price.Equal(decimal.RequireFromString("1.5")), price.String())
	}

	assert.Equal(t, int32(3), reader.priceCalls.Load())
	assert.Equal(t, int32(1), reader.decimalCalls.Load(), "decimals are cached permanently")
	assert.Equal(t, "1000000", reader.lastAmount.Load(), "one whole unit of a 6 decimal token")
}

func TestPriceCacheServesWithinTtl(t *testing.T) {
	logger, _ := test.NewNullLogger()
	reader := &fakeReader{}
	client := NewClient(logger, cache.NewTieredCache(1, nil), 10*time.Second)
	require.NoError(t, client.AddChain(1, reader, oracleAddr))

	for i := 0; i < 3; i++ {
		price, err := client.GetPriceInETH(context.Background(), tokenAddr, 1)
		require.NoError(t, err)
		assert.True(t, price.Equal(decimal.RequireFromString("0.0005")), price.String())
	}
	assert.Equal(t, int32(1), reader.priceCalls.Load())

	_, err := client.GetPriceInUSD(context.Background(), tokenAddr, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), reader.priceCalls.Load(), "currencies are cached separately")
}

func TestPriceErrors(t *testing.T) {
	logger, _ := test.NewNullLogger()
	client := NewClient(logger, nil, 0)
	require.NoError(t, client.AddChain(2, &fakeReader{}, ""))

	_, err := client.GetPriceInUSD(context.Background(), tokenAddr, 1)
	assert.ErrorIs(t, err, ErrUnknownChain)

	_, err = client.GetPriceInUSD(context.Background(), tokenAddr, 2)
	assert.ErrorIs(t, err, ErrNoOracle)

	assert.Error(t, client.AddChain(3, &fakeReader{}, "not-an-address"))
}

func TestSeededDecimalsSkipRpc(t *testing.T) {
	logger, _ := test.NewNullLogger()
	reader := &fakeReader{}
	client := NewClient(logger, nil, 0)
	require.NoError(t, client.AddChain(1, reader, oracleAddr))
	client.SetDecimals(tokenAddr, 1, 18)

	decimals, err := client.GetDecimals(context.Background(), tokenAddr, 1)
	require.NoError(t, err)
	assert.Equal(t, uint8(18), decimals)
	assert.Equal(t, int32(0), reader.decimalCalls.Load())
}
