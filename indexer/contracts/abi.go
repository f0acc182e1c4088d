package contracts

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const v2PoolAbiJson = `[
	{"anonymous":false,"name":"Sync","type":"event","inputs":[
		{"indexed":false,"name":"reserve0","type":"uint256"},
		{"indexed":false,"name":"reserve1","type":"uint256"}]},
	{"anonymous":false,"name":"Mint","type":"event","inputs":[
		{"indexed":true,"name":"sender","type":"address"},
		{"indexed":false,"name":"amount0","type":"uint256"},
		{"indexed":false,"name":"amount1","type":"uint256"}]},
	{"anonymous":false,"name":"Burn","type":"event","inputs":[
		{"indexed":true,"name":"sender","type":"address"},
		{"indexed":true,"name":"to","type":"address"},
		{"indexed":false,"name":"amount0","type":"uint256"},
		{"indexed":false,"name":"amount1","type":"uint256"}]},
	{"anonymous":false,"name":"Swap","type":"event","inputs":[
		{"indexed":true,"name":"sender","type":"address"},
		{"indexed":true,"name":"to","type":"address"},
		{"indexed":false,"name":"amount0In","type":"uint256"},
		{"indexed":false,"name":"amount1In","type":"uint256"},
		{"indexed":false,"name":"amount0Out","type":"uint256"},
		{"indexed":false,"name":"amount1Out","type":"uint256"}]},
	{"anonymous":false,"name":"Transfer","type":"event","inputs":[
		{"indexed":true,"name":"from","type":"address"},
		{"indexed":true,"name":"to","type":"address"},
		{"indexed":false,"name":"value","type":"uint256"}]}
]`

const v2FactoryAbiJson = `[
	{"anonymous":false,"name":"PoolCreated","type":"event","inputs":[
		{"indexed":true,"name":"token0","type":"address"},
		{"indexed":true,"name":"token1","type":"address"},
		{"indexed":true,"name":"stable","type":"bool"},
		{"indexed":false,"name":"pool","type":"address"},
		{"indexed":false,"name":"poolCount","type":"uint256"}]}
]`

const clFactoryAbiJson = `[
	{"anonymous":false,"name":"PoolCreated","type":"event","inputs":[
		{"indexed":true,"name":"token0","type":"address"},
		{"indexed":true,"name":"token1","type":"address"},
		{"indexed":true,"name":"tickSpacing","type":"int24"},
		{"indexed":false,"name":"pool","type":"address"}]}
]`

const clPoolAbiJson = `[
	{"anonymous":false,"name":"Mint","type":"event","inputs":[
		{"indexed":false,"name":"sender","type":"address"},
		{"indexed":true,"name":"owner","type":"address"},
		{"indexed":true,"name":"tickLower","type":"int24"},
		{"indexed":true,"name":"tickUpper","type":"int24"},
		{"indexed":false,"name":"amount","type":"uint128"},
		{"indexed":false,"name":"amount0","type":"uint256"},
		{"indexed":false,"name":"amount1","type":"uint256"}]},
	{"anonymous":false,"name":"Burn","type":"event","inputs":[
		{"indexed":true,"name":"owner","type":"address"},
		{"indexed":true,"name":"tickLower","type":"int24"},
		{"indexed":true,"name":"tickUpper","type":"int24"},
		{"indexed":false,"name":"amount","type":"uint128"},
		{"indexed":false,"name":"amount0","type":"uint256"},
		{"indexed":false,"name":"amount1","type":"uint256"}]},
	{"anonymous":false,"name":"Swap","type":"event","inputs":[
		{"indexed":true,"name":"sender","type":"address"},
		{"indexed":true,"name":"recipient","type":"address"},
		{"indexed":false,"name":"amount0","type":"int256"},
		{"indexed":false,"name":"amount1","type":"int256"},
		{"indexed":false,"name":"sqrtPriceX96","type":"uint160"},
		{"indexed":false,"name":"liquidity","type":"uint128"},
		{"indexed":false,"name":"tick","type":"int24"}]}
]`

const nfpmAbiJson = `[
	{"anonymous":false,"name":"Transfer","type":"event","inputs":[
		{"indexed":true,"name":"from","type":"address"},
		{"indexed":true,"name":"to","type":"address"},
		{"indexed":true,"name":"tokenId","type":"uint256"}]},
	{"constant":true,"name":"positions","type":"function","stateMutability":"view",
		"inputs":[{"name":"tokenId","type":"uint256"}],
		"outputs":[
			{"name":"nonce","type":"uint96"},
			{"name":"operator","type":"address"},
			{"name":"token0","type":"address"},
			{"name":"token1","type":"address"},
			{"name":"tickSpacing","type":"int24"},
			{"name":"tickLower","type":"int24"},
			{"name":"tickUpper","type":"int24"},
			{"name":"liquidity","type":"uint128"},
			{"name":"feeGrowthInside0LastX128","type":"uint256"},
			{"name":"feeGrowthInside1LastX128","type":"uint256"},
			{"name":"tokensOwed0","type":"uint128"},
			{"name":"tokensOwed1","type":"uint128"}]}
]`

const erc20AbiJson = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}
]`

const oracleAbiJson = `[
	{"constant":true,"name":"getAverageValueInUSD","type":"function","stateMutability":"view",
		"inputs":[{"name":"token","type":"address"},{"name":"value","type":"uint256"}],
		"outputs":[{"name":"","type":"uint256"}]},
	{"constant":true,"name":"getAverageValueInETH","type":"function","stateMutability":"view",
		"inputs":[{"name":"token","type":"address"},{"name":"value","type":"uint256"}],
		"outputs":[{"name":"","type":"uint256"}]}
]`

var (
	V2PoolAbi    = mustParseAbi("v2 pool", v2PoolAbiJson)
	V2FactoryAbi = mustParseAbi("v2 factory", v2FactoryAbiJson)
	ClFactoryAbi = mustParseAbi("cl factory", clFactoryAbiJson)
	ClPoolAbi    = mustParseAbi("cl pool", clPoolAbiJson)
	NfpmAbi      = mustParseAbi("nfpm", nfpmAbiJson)
	Erc20Abi     = mustParseAbi("erc20", erc20AbiJson)
	OracleAbi    = mustParseAbi("oracle", oracleAbiJson)
)

func mustParseAbi(name string, abiJson string) *abi.ABI {
	contractAbi, err := abi.JSON(strings.NewReader(abiJson))
	if err != nil {
		panic(fmt.Sprintf("invalid %v abi: %v", name, err))
	}
	return &contractAbi
}

// EventTopic returns topic0 of an event.
func EventTopic(contractAbi *abi.ABI, eventName string) common.Hash {
	return contractAbi.Events[eventName].ID
}

// DecodeLog unpacks the data and indexed topics of log into out. Field names of out
// follow the camel cased abi argument names.
func DecodeLog(contractAbi *abi.ABI, eventName string, log *types.Log, out interface{}) error {
	event, ok := contractAbi.Events[eventName]
	if !ok {
		return fmt.Errorf("unknown event %v", eventName)
	}
	if len(log.Topics) == 0 || log.Topics[0] != event.ID {
		return fmt.Errorf("log %v/%v is not a %v event", log.TxHash.Hex(), log.Index, eventName)
	}

	if len(log.Data) > 0 {
		if err := contractAbi.UnpackIntoInterface(out, eventName, log.Data); err != nil {
			return fmt.Errorf("error unpacking %v data: %w", eventName, err)
		}
	}

	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(indexed) != len(log.Topics)-1 {
		return fmt.Errorf("%v topic count mismatch: expected %v, got %v", eventName, len(indexed), len(log.Topics)-1)
	}
	if len(indexed) > 0 {
		if err := abi.ParseTopics(out, indexed, log.Topics[1:]); err != nil {
			return fmt.Errorf("error parsing %v topics: %w", eventName, err)
		}
	}

	return nil
}
