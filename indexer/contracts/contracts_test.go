package contracts

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/dexindexer/clients/execution"
)

type fakeReader struct {
	call func(msg ethereum.CallMsg) ([]byte, error)
}

var _ execution.ChainReader = (*fakeReader)(nil)

func (r *fakeReader) GetChainId() uint64 { return 1 }
func (r *fakeReader) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	return 0, errors.New("not implemented")
}
func (r *fakeReader) FilterLogsInRange(ctx context.Context, query ethereum.FilterQuery, fromBlock uint64, latestBlock uint64, defaultRange uint64) (*execution.LogRange, error) {
	return nil, errors.New("not implemented")
}
func (r *fakeReader) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return r.call(msg)
}
func (r *fakeReader) GetBlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	return 0, errors.New("not implemented")
}
func (r *fakeReader) GetTransactionFrom(ctx context.Context, hash common.Hash) (common.Address, error) {
	return common.Address{}, errors.New("not implemented")
}

func methodIs(msg ethereum.CallMsg, method string) bool {
	return bytes.HasPrefix(msg.Data, Erc20Abi.Methods[method].ID)
}

func TestDecodeV2Swap(t *testing.T) {
	sender := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	to := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	event := V2PoolAbi.Events["Swap"]

	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(1), big.NewInt(0), big.NewInt(0), big.NewInt(42))
	require.NoError(t, err)

	log := &types.Log{
		Topics: []common.Hash{event.ID, common.BytesToHash(sender.Bytes()), common.BytesToHash(to.Bytes())},
		Data:   data,
	}

	swap := &V2Swap{}
	require.NoError(t, DecodeLog(V2PoolAbi, "Swap", log, swap))
	assert.Equal(t, sender, swap.Sender)
	assert.Equal(t, to, swap.To)
	assert.Equal(t, int64(1), swap.Amount0In.Int64())
	assert.Equal(t, int64(42), swap.Amount1Out.Int64())
}

func TestDecodeClPoolCreatedNegativeTick(t *testing.T) {
	pool := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	event := ClFactoryAbi.Events["PoolCreated"]
	data, err := event.Inputs.NonIndexed().Pack(pool)
	require.NoError(t, err)

	// int24 topics are sign extended to 32 bytes
	tick := common.BigToHash(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)))
	log := &types.Log{
		Topics: []common.Hash{event.ID, common.HexToHash("0x0a"), common.HexToHash("0x0b"), tick},
		Data:   data,
	}

	created := &ClPoolCreated{}
	require.NoError(t, DecodeLog(ClFactoryAbi, "PoolCreated", log, created))
	assert.Equal(t, pool, created.Pool)
	assert.Equal(t, int64(-1), created.TickSpacing.Int64())
}

func TestDecodeLogRejectsOtherEvents(t *testing.T) {
	log := &types.Log{Topics: []common.Hash{V2PoolAbi.Events["Sync"].ID}}
	err := DecodeLog(V2PoolAbi, "Mint", log, &V2Mint{})
	assert.Error(t, err)
}

func TestGetTokenMetadata(t *testing.T) {
	reader := &fakeReader{call: func(msg ethereum.CallMsg) ([]byte, error) {
		switch {
		case methodIs(msg, "decimals"):
			return Erc20Abi.Methods["decimals"].Outputs.Pack(uint8(6))
		case methodIs(msg, "symbol"):
			return Erc20Abi.Methods["symbol"].Outputs.Pack("USDC")
		default:
			return nil, errors.New("execution reverted")
		}
	}}

	metadata, err := GetTokenMetadata(context.Background(), reader, common.HexToAddress("0x01"))
	require.NoError(t, err)
	assert.Equal(t, uint8(6), metadata.Decimals)
	assert.Equal(t, "USDC", metadata.Symbol)
	assert.Equal(t, "Unknown", metadata.Name)
}

func TestGetTokenMetadataWithoutCode(t *testing.T) {
	reader := &fakeReader{call: func(msg ethereum.CallMsg) ([]byte, error) {
		return []byte{}, nil
	}}

	_, err := GetTokenMetadata(context.Background(), reader, common.HexToAddress("0x01"))
	assert.ErrorIs(t, err, ErrEmptyResult)
}

func TestGetPosition(t *testing.T) {
	token0 := common.HexToAddress("0x0a")
	token1 := common.HexToAddress("0x0b")
	reader := &fakeReader{call: func(msg ethereum.CallMsg) ([]byte, error) {
		return NfpmAbi.Methods["positions"].Outputs.Pack(
			big.NewInt(0), common.Address{}, token0, token1,
			big.NewInt(100), big.NewInt(-600), big.NewInt(600), big.NewInt(123456),
			big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0),
		)
	}}

	position, err := GetPosition(context.Background(), reader, common.HexToAddress("0x0f"), big.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, token0, position.Token0)
	assert.Equal(t, token1, position.Token1)
	assert.Equal(t, int64(100), position.TickSpacing)
	assert.Equal(t, int64(-600), position.TickLower)
	assert.Equal(t, "123456", position.Liquidity.String())
}

func TestGetOracleValueReadsFirstWord(t *testing.T) {
	reader := &fakeReader{call: func(msg ethereum.CallMsg) ([]byte, error) {
		out := make([]byte, 64)
		copy(out[:32], common.BigToHash(big.NewInt(2500)).Bytes())
		copy(out[32:], common.BigToHash(big.NewInt(99)).Bytes())
		return out, nil
	}}

	value, err := GetOracleValue(context.Background(), reader, common.HexToAddress("0x0e"), "getAverageValueInUSD", common.HexToAddress("0x01"), big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, int64(2500), value.Int64())
}
