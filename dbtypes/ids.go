package dbtypes

import (
	"fmt"
	"strings"
)

func TokenId(address string, chainId uint64) string {
	return fmt.Sprintf("%v-%v", strings.ToLower(address), chainId)
}

func PoolId(address string, chainId uint64) string {
	return fmt.Sprintf("%v-%v", strings.ToLower(address), chainId)
}

func TransactionId(hash string, chainId uint64) string {
	return fmt.Sprintf("%v-%v", strings.ToLower(hash), chainId)
}

func StatisticsId(chainId uint64) string {
	return fmt.Sprintf("1-%v", chainId)
}

// EventStatusId is the cursor id: eventName-contract:chain.
func EventStatusId(eventName string, contractAddress string, chainId uint64) string {
	return fmt.Sprintf("%v-%v:%v", eventName, strings.ToLower(contractAddress), chainId)
}

// ActionId identifies a mint/burn/swap row. The log index keeps several actions of
// one transaction apart.
func ActionId(kind string, hash string, logIndex uint64, chainId uint64) string {
	return fmt.Sprintf("%v-%v-%v-%v", kind, strings.ToLower(hash), logIndex, chainId)
}

func UserId(address string) string {
	return strings.ToLower(address)
}

// PositionId identifies a liquidity position. Concentrated positions add the NFT token id.
func PositionId(poolAddress string, account string, chainId uint64, tokenId *string) string {
	if tokenId != nil {
		return fmt.Sprintf("%v-%v-%v-%v", strings.ToLower(poolAddress), strings.ToLower(account), *tokenId, chainId)
	}
	return fmt.Sprintf("%v-%v-%v", strings.ToLower(poolAddress), strings.ToLower(account), chainId)
}
