package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ToUnits converts a decimal amount to a fixed-point integer with the given decimals, truncating extra digits.
func ToUnits(d decimal.Decimal, decimals int32) *big.Int {
	return d.Shift(decimals).Truncate(0).BigInt()
}

// FromUnits converts a fixed-point integer with the given decimals to a decimal.
func FromUnits(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals)
}
