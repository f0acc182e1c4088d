package utils

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// DecimalScale is the fractional precision every stored amount is rounded to.
const DecimalScale = 18

// FormatUnits converts a raw on-chain integer into a decimal-adjusted amount.
func FormatUnits(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// FormatUint256Units is FormatUnits for uint256 values.
func FormatUint256Units(raw *uint256.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return FormatUnits(raw.ToBig(), decimals)
}

// FormatEther converts a raw 18-decimal integer (liquidity token amounts).
func FormatEther(raw *big.Int) decimal.Decimal {
	return FormatUnits(raw, 18)
}

// ParseUnits re-scales a decimal amount back into its raw integer form, truncating
// anything below the token's precision.
func ParseUnits(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).BigInt()
}

// OneUnit returns 10^decimals, the raw value of one whole token.
func OneUnit(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// DivOrZero divides a by b, yielding zero for a zero divisor.
func DivOrZero(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.DivRound(b, DecimalScale)
}

// MulRound multiplies and rounds to the stored precision.
func MulRound(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b).Round(DecimalScale)
}

// SplitSigned splits a signed pool-to-pool flow into its in and out legs.
// Positive values flow into the pool, negative values flow out.
func SplitSigned(amount *big.Int) (in *big.Int, out *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return new(big.Int), new(big.Int)
	}
	if amount.Sign() > 0 {
		return new(big.Int).Set(amount), new(big.Int)
	}
	return new(big.Int), new(big.Int).Neg(amount)
}
