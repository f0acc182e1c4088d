package contracts

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type V2PoolCreated struct {
	Token0    common.Address
	Token1    common.Address
	Stable    bool
	Pool      common.Address
	PoolCount *big.Int
}

type ClPoolCreated struct {
	Token0      common.Address
	Token1      common.Address
	TickSpacing *big.Int
	Pool        common.Address
}

type V2Sync struct {
	Reserve0 *big.Int
	Reserve1 *big.Int
}

type V2Mint struct {
	Sender  common.Address
	Amount0 *big.Int
	Amount1 *big.Int
}

type V2Burn struct {
	Sender  common.Address
	To      common.Address
	Amount0 *big.Int
	Amount1 *big.Int
}

type V2Swap struct {
	Sender     common.Address
	To         common.Address
	Amount0In  *big.Int
	Amount1In  *big.Int
	Amount0Out *big.Int
	Amount1Out *big.Int
}

// LpTransfer is a liquidity token transfer of a v2 pool.
type LpTransfer struct {
	From  common.Address
	To    common.Address
	Value *big.Int
}

type ClMint struct {
	Sender    common.Address
	Owner     common.Address
	TickLower *big.Int
	TickUpper *big.Int
	Amount    *big.Int
	Amount0   *big.Int
	Amount1   *big.Int
}

type ClBurn struct {
	Owner     common.Address
	TickLower *big.Int
	TickUpper *big.Int
	Amount    *big.Int
	Amount0   *big.Int
	Amount1   *big.Int
}

// ClSwap carries signed pool balance deltas. Positive amounts flow into the pool.
type ClSwap struct {
	Sender       common.Address
	Recipient    common.Address
	Amount0      *big.Int
	Amount1      *big.Int
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         *big.Int
}

// PositionTransfer is a position NFT transfer of the position manager.
type PositionTransfer struct {
	From    common.Address
	To      common.Address
	TokenId *big.Int
}
