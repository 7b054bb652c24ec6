package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// WalletBalances consistent snapshot of both custody locations, in settlement asset units.
type WalletBalances struct {
	Vault          decimal.Decimal `json:"vault"`
	Spend          decimal.Decimal `json:"spend"`
	SpendAllowance decimal.Decimal `json:"spendAllowance"`
	Native         decimal.Decimal `json:"native"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// NewWalletBalances validates the non-negativity invariant.
func NewWalletBalances(vault, spend, allowance, native decimal.Decimal, at time.Time) (WalletBalances, error) {
	if vault.IsNegative() || spend.IsNegative() {
		return WalletBalances{}, errors.Errorf("wallet balances must not be negative: vault=%s spend=%s", vault, spend)
	}
	return WalletBalances{
		Vault:          vault,
		Spend:          spend,
		SpendAllowance: allowance,
		Native:         native,
		UpdatedAt:      at,
	}, nil
}

// Total returns vault + spend.
func (b WalletBalances) Total() decimal.Decimal {
	return b.Vault.Add(b.Spend)
}

// Equal compares balances ignoring the read timestamp.
func (b WalletBalances) Equal(other WalletBalances) bool {
	return b.Vault.Equal(other.Vault) &&
		b.Spend.Equal(other.Spend) &&
		b.SpendAllowance.Equal(other.SpendAllowance) &&
		b.Native.Equal(other.Native)
}
