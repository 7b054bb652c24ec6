package domain

import "github.com/shopspring/decimal"

// Valuation derived figures of one open position at a mark price.
type Valuation struct {
	Position Position `json:"position"`
	Mark     Figure   `json:"mark"`
	Notional Figure   `json:"notional"`
	// RawPnL price-move PnL before fees.
	RawPnL Figure `json:"rawPnl"`
	// PnL RawPnL net of all fees.
	PnL              Figure `json:"pnl"`
	TotalFees        Figure `json:"totalFees"`
	LiquidationPrice Figure `json:"liquidationPrice"`
	Fees             FeeSet `json:"fees"`
}

// Equal compares two valuations.
func (v Valuation) Equal(other Valuation) bool {
	return v.Position.Equal(other.Position) &&
		v.Mark.Equal(other.Mark) &&
		v.Notional.Equal(other.Notional) &&
		v.RawPnL.Equal(other.RawPnL) &&
		v.PnL.Equal(other.PnL) &&
		v.TotalFees.Equal(other.TotalFees) &&
		v.LiquidationPrice.Equal(other.LiquidationPrice)
}

// Valuations keyed by position id.
type Valuations map[PositionID]Valuation

// Equal compares two valuation sets.
func (vs Valuations) Equal(other Valuations) bool {
	if len(vs) != len(other) {
		return false
	}
	for id, v := range vs {
		o, ok := other[id]
		if !ok || !v.Equal(o) {
			return false
		}
	}
	return true
}

// List returns the valuations ordered by venue then position index.
func (vs Valuations) List() []Valuation {
	ps := make(Positions, 0, len(vs))
	for _, v := range vs {
		ps = append(ps, v.Position)
	}
	out := make([]Valuation, 0, len(vs))
	for _, p := range ps.Sorted() {
		out = append(out, vs[p.ID])
	}
	return out
}

// MarkPrices latest mark price per pair.
type MarkPrices map[Pair]decimal.Decimal

// Equal compares two price sets.
func (m MarkPrices) Equal(other MarkPrices) bool {
	if len(m) != len(other) {
		return false
	}
	for pair, price := range m {
		o, ok := other[pair]
		if !ok || !price.Equal(o) {
			return false
		}
	}
	return true
}
