package contracts

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ethpandaops/dexindexer/clients/execution"
)

// ErrEmptyResult is returned for calls to addresses without code.
var ErrEmptyResult = errors.New("empty call result")

// CallRaw packs method, races the call across the chain's endpoints and returns the raw result.
func CallRaw(ctx context.Context, reader execution.ChainReader, contractAbi *abi.ABI, address common.Address, method string, args ...interface{}) ([]byte, error) {
	data, err := contractAbi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("error packing %v call: %w", method, err)
	}

	result, err := reader.CallContract(ctx, ethereum.CallMsg{
		To:   &address,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("error calling %v on %v: %w", method, address.Hex(), err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%v on %v: %w", method, address.Hex(), ErrEmptyResult)
	}

	return result, nil
}

// Call is CallRaw with the result unpacked.
func Call(ctx context.Context, reader execution.ChainReader, contractAbi *abi.ABI, address common.Address, method string, args ...interface{}) ([]interface{}, error) {
	result, err := CallRaw(ctx, reader, contractAbi, address, method, args...)
	if err != nil {
		return nil, err
	}

	values, err := contractAbi.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("error unpacking %v result: %w", method, err)
	}
	return values, nil
}

// TokenMetadata is the immutable ERC-20 metadata of a token.
type TokenMetadata struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// GetTokenDecimals reads decimals() of an ERC-20 token.
func GetTokenDecimals(ctx context.Context, reader execution.ChainReader, token common.Address) (uint8, error) {
	values, err := Call(ctx, reader, Erc20Abi, token, "decimals")
	if err != nil {
		return 0, err
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals type %T", values[0])
	}
	return decimals, nil
}

// GetTokenMetadata reads decimals, symbol and name of an ERC-20 token. Decimals are required,
// tokens without a readable symbol or name get placeholders.
func GetTokenMetadata(ctx context.Context, reader execution.ChainReader, token common.Address) (*TokenMetadata, error) {
	decimals, err := GetTokenDecimals(ctx, reader, token)
	if err != nil {
		return nil, err
	}

	metadata := &TokenMetadata{
		Name:     "Unknown",
		Symbol:   "???",
		Decimals: decimals,
	}

	if values, err := Call(ctx, reader, Erc20Abi, token, "symbol"); err == nil {
		if symbol, ok := values[0].(string); ok && symbol != "" {
			metadata.Symbol = symbol
		}
	}
	if values, err := Call(ctx, reader, Erc20Abi, token, "name"); err == nil {
		if name, ok := values[0].(string); ok && name != "" {
			metadata.Name = name
		}
	}

	return metadata, nil
}

// Position is the state of a concentrated liquidity position NFT.
type Position struct {
	Token0      common.Address
	Token1      common.Address
	TickSpacing int64
	TickLower   int64
	TickUpper   int64
	Liquidity   *big.Int
}

// GetPosition reads positions(tokenId) of the position manager. The call reverts for burned ids.
func GetPosition(ctx context.Context, reader execution.ChainReader, nfpm common.Address, tokenId *big.Int) (*Position, error) {
	values, err := Call(ctx, reader, NfpmAbi, nfpm, "positions", tokenId)
	if err != nil {
		return nil, err
	}
	if len(values) < 8 {
		return nil, fmt.Errorf("unexpected positions result length %v", len(values))
	}

	position := &Position{}
	var ok bool
	if position.Token0, ok = values[2].(common.Address); !ok {
		return nil, fmt.Errorf("unexpected token0 type %T", values[2])
	}
	if position.Token1, ok = values[3].(common.Address); !ok {
		return nil, fmt.Errorf("unexpected token1 type %T", values[3])
	}
	ticks := make([]int64, 3)
	for i := range ticks {
		tick, ok := values[4+i].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("unexpected tick type %T", values[4+i])
		}
		ticks[i] = tick.Int64()
	}
	position.TickSpacing, position.TickLower, position.TickUpper = ticks[0], ticks[1], ticks[2]
	if position.Liquidity, ok = values[7].(*big.Int); !ok {
		return nil, fmt.Errorf("unexpected liquidity type %T", values[7])
	}

	return position, nil
}

// GetOracleValue calls one of the oracle's average value getters. Only the first word of the
// result is read, oracle deployments differ in what they append after it.
func GetOracleValue(ctx context.Context, reader execution.ChainReader, oracle common.Address, method string, token common.Address, amount *big.Int) (*big.Int, error) {
	result, err := CallRaw(ctx, reader, OracleAbi, oracle, method, token, amount)
	if err != nil {
		return nil, err
	}
	if len(result) < 32 {
		return nil, fmt.Errorf("short %v result: %v bytes", method, len(result))
	}
	return new(big.Int).SetBytes(result[:32]), nil
}
