package routing

import (
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/perpsplit/internal/domain"
)

// SettlementPrecision decimal places of the settlement asset; deposit shortfalls round up to it.
const SettlementPrecision int32 = 6

// Rebalance computes the funding moves for an allocation.
// The primary leg is funded from the vault together with its trading fee; the secondary leg from the spend wallet.
// No call is planned when the combined balance cannot fund both legs.
func Rebalance(alloc domain.SplitAllocation, balances domain.WalletBalances, feeRate decimal.Decimal) (domain.RebalancePlan, error) {
	required := decimal.Zero
	if alloc.Primary != nil {
		required = alloc.Primary.Margin.Add(alloc.Primary.Size.Mul(feeRate))
	}
	secondaryRequired := decimal.Zero
	if alloc.Secondary != nil {
		secondaryRequired = alloc.Secondary.Margin
	}

	plan := domain.RebalancePlan{
		PrimaryRequired:   required,
		SecondaryRequired: secondaryRequired,
	}

	if balances.Vault.GreaterThanOrEqual(required) {
		// vault funds the primary leg; the secondary leg is checked against the original spend balance
		plan.SpendAvailable = balances.Spend
		plan.VaultSurplus = balances.Vault.Sub(required)

		if secondaryRequired.GreaterThan(balances.Spend) {
			shortfall := secondaryRequired.Sub(balances.Spend)
			if plan.VaultSurplus.LessThan(shortfall) {
				return domain.RebalancePlan{}, insufficient(balances, required, secondaryRequired)
			}
			plan.Withdrawal = shortfall
		}
	} else {
		// deposit the primary shortfall; the secondary leg only sees what is left in the spend wallet
		deposit := required.Sub(balances.Vault).RoundCeil(SettlementPrecision)
		if balances.Spend.LessThan(deposit) {
			return domain.RebalancePlan{}, insufficient(balances, required, secondaryRequired)
		}
		plan.Deposit = deposit
		plan.SpendAvailable = balances.Spend.Sub(deposit)
		plan.VaultSurplus = decimal.Zero

		if secondaryRequired.GreaterThan(plan.SpendAvailable) {
			shortfall := secondaryRequired.Sub(plan.SpendAvailable)
			if plan.VaultSurplus.LessThan(shortfall) {
				return domain.RebalancePlan{}, insufficient(balances, required, secondaryRequired)
			}
			plan.Withdrawal = shortfall
		}
	}

	if secondaryRequired.IsPositive() && balances.SpendAllowance.LessThan(secondaryRequired) {
		plan.SecondaryApproval = secondaryRequired
	}

	return plan, nil
}

func insufficient(balances domain.WalletBalances, primary, secondary decimal.Decimal) error {
	return domain.NewRejection(domain.ErrInsufficientCombinedBalance, domain.RejectBalance,
		"need %s in vault and %s in spend wallet, have vault %s and spend %s",
		primary, secondary, balances.Vault, balances.Spend)
}
