package correlation

import (
	"fmt"
	"math/big"
	"strings"
)

type Kind string

const (
	KindMint         Kind = "mint"
	KindBurn         Kind = "burn"
	KindSwap         Kind = "swap"
	KindTransfer     Kind = "transfer"
	KindNfpmTransfer Kind = "nfpm-token-transfer"
)

var Kinds = []Kind{KindMint, KindBurn, KindSwap, KindTransfer, KindNfpmTransfer}

// DeadLetter returns the hash holding expired entries of kind.
func (k Kind) DeadLetter() string {
	return string(k) + ":dead"
}

// NfpmTransferType classifies a position NFT transfer.
type NfpmTransferType string

const (
	NfpmMint     NfpmTransferType = "mint"
	NfpmBurn     NfpmTransferType = "burn"
	NfpmTransfer NfpmTransferType = "transfer"
)

// Header is the part every staged entry carries.
type Header struct {
	ChainId     uint64 `json:"chainId"`
	Hash        string `json:"hash"`
	LogIndex    uint64 `json:"logIndex"`
	BlockNumber uint64 `json:"blockNumber"`
	StagedAt    int64  `json:"stagedAt"`
}

// pairKey identifies the two halves of a liquidity action: one pool in one transaction.
func pairKey(chainId uint64, hash string, pool string) string {
	return fmt.Sprintf("%v:%v:%v", chainId, strings.ToLower(hash), strings.ToLower(pool))
}

// TransferData is a liquidity token Transfer of a pool. Amounts are raw integers in decimal notation.
type TransferData struct {
	Header
	From   string `json:"from"`
	To     string `json:"to"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
	Sender string `json:"sender"`
}

func (d *TransferData) Key() string {
	return pairKey(d.ChainId, d.Hash, d.Token)
}

// LiquidityData is the Mint or Burn half of a liquidity action.
type LiquidityData struct {
	Header
	Pool    string `json:"pool"`
	Sender  string `json:"sender"`
	To      string `json:"to"`
	Amount0 string `json:"amount0"`
	Amount1 string `json:"amount1"`
}

func (d *LiquidityData) Key() string {
	return pairKey(d.ChainId, d.Hash, d.Pool)
}

// SwapData is a staged pool swap. Token is the pool address.
type SwapData struct {
	Header
	Token      string `json:"token"`
	Sender     string `json:"sender"`
	From       string `json:"from"`
	To         string `json:"to"`
	Amount0In  string `json:"amount0In"`
	Amount1In  string `json:"amount1In"`
	Amount0Out string `json:"amount0Out"`
	Amount1Out string `json:"amount1Out"`
}

func (d *SwapData) Key() string {
	return fmt.Sprintf("%v:%v:%v", d.ChainId, strings.ToLower(d.Hash), d.LogIndex)
}

// NfpmTransferData is a position NFT transfer, keyed by token id.
type NfpmTransferData struct {
	Header
	Type    NfpmTransferType `json:"type"`
	From    string           `json:"from"`
	To      string           `json:"to"`
	TokenId string           `json:"tokenId"`
}

func (d *NfpmTransferData) Key() string {
	return fmt.Sprintf("%v:%v:%012d:%06d", d.ChainId, d.TokenId, d.BlockNumber, d.LogIndex)
}

// ParseAmount reads a raw integer amount of a staged entry.
func ParseAmount(value string) (*big.Int, error) {
	if value == "" {
		return new(big.Int), nil
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}
