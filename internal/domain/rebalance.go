package domain

import "github.com/shopspring/decimal"

// RebalancePlan funding moves required before the venue order calls.
// Zero amounts mean the move is not needed.
type RebalancePlan struct {
	// Deposit spend wallet -> vault, funds the primary leg.
	Deposit decimal.Decimal `json:"deposit"`
	// Withdrawal vault -> spend wallet, funds the secondary leg.
	Withdrawal decimal.Decimal `json:"withdrawal"`
	// SecondaryApproval spend-token allowance to grant to the secondary venue.
	SecondaryApproval decimal.Decimal `json:"secondaryApproval"`
	// PrimaryRequired margin plus fee settled by the primary venue from the vault.
	PrimaryRequired decimal.Decimal `json:"primaryRequired"`
	// SecondaryRequired collateral pulled by the secondary venue from the spend wallet.
	SecondaryRequired decimal.Decimal `json:"secondaryRequired"`
	// SpendAvailable spend balance left for the secondary leg after the deposit.
	SpendAvailable decimal.Decimal `json:"spendAvailable"`
	// VaultSurplus vault balance not committed to the primary leg.
	VaultSurplus decimal.Decimal `json:"vaultSurplus"`
}

// NeedsDeposit reports whether a deposit call is required.
func (p RebalancePlan) NeedsDeposit() bool {
	return p.Deposit.IsPositive()
}

// NeedsWithdrawal reports whether a withdrawal call is required.
func (p RebalancePlan) NeedsWithdrawal() bool {
	return p.Withdrawal.IsPositive()
}

// Quote route preview of an order without any venue call.
type Quote struct {
	Intent     OrderIntent     `json:"intent"`
	Decision   RouteDecision   `json:"decision"`
	Allocation SplitAllocation `json:"allocation"`
	Plan       RebalancePlan   `json:"plan"`
	// PrimaryFee estimated primary trading fee.
	PrimaryFee decimal.Decimal `json:"primaryFee"`
}
