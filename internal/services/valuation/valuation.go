// Package valuation computes PnL, fees and liquidation prices of open positions on either venue.
package valuation

import (
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/perpsplit/internal/domain"
)

// LiquidationThreshold share of posted margin lost at liquidation.
var LiquidationThreshold = decimal.RequireFromString("0.9")

// Value derives the valuation of p at mark. An unavailable mark leaves the PnL figures unavailable.
func Value(p domain.Position, mark domain.Figure) domain.Valuation {
	v := domain.Valuation{
		Position:         p,
		Mark:             mark,
		Notional:         domain.Unavailable,
		RawPnL:           domain.Unavailable,
		PnL:              domain.Unavailable,
		TotalFees:        domain.Unavailable,
		LiquidationPrice: domain.Unavailable,
	}
	if p.Size.IsPositive() {
		v.Notional = domain.Available(p.Size)
	}

	var feeInput decimal.Decimal
	switch fees := p.Fees.(type) {
	case domain.PrimaryFees:
		b := fees.Breakdown()
		v.Fees = b
		v.TotalFees = domain.Available(b.Total())
		feeInput = b.Borrow.Add(b.Funding)
	case domain.SecondaryFees:
		v.Fees = fees.Breakdown()
		v.TotalFees = domain.Available(fees.Total())
		feeInput = fees.Total()
	default:
		// no fee report, nothing fee-dependent can be derived
		return v
	}

	v.LiquidationPrice = Liquidation(p.Side, p.EntryPrice, p.Size, p.Margin, feeInput)

	raw := RawPnL(p.Side, p.EntryPrice, p.Size, mark)
	v.RawPnL = raw
	if pnl, ok := raw.Value(); ok {
		v.PnL = domain.Available(pnl.Sub(v.TotalFees.Or(decimal.Zero)))
	}

	return v
}

// RawPnL is the price-move PnL: (mark - entry) * size / entry for longs, mirrored for shorts.
func RawPnL(side domain.Side, entry, size decimal.Decimal, mark domain.Figure) domain.Figure {
	price, ok := mark.Value()
	if !ok || !price.IsPositive() || !entry.IsPositive() || !size.IsPositive() {
		return domain.Unavailable
	}
	diff := price.Sub(entry)
	if !side.IsLong() {
		diff = entry.Sub(price)
	}
	return domain.Available(diff.Mul(size).Div(entry))
}

// Liquidation returns the price at which the loss reaches LiquidationThreshold of the margin,
// net of the fees already incurred (feeInput). Both venues share this formula.
// A non-positive result means the position cannot be liquidated by price and is unavailable.
func Liquidation(side domain.Side, entry, size, margin, feeInput decimal.Decimal) domain.Figure {
	if !entry.IsPositive() || !size.IsPositive() || !margin.IsPositive() {
		return domain.Unavailable
	}

	target := LiquidationThreshold.Neg().Mul(margin).Add(feeInput)
	diff := target.Mul(entry).Div(size)

	price := entry.Add(diff)
	if !side.IsLong() {
		price = entry.Sub(diff)
	}
	if !price.IsPositive() {
		return domain.Unavailable
	}
	return domain.Available(price)
}
