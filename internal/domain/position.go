package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// PositionID venue-tagged position identifier.
type PositionID struct {
	Venue Venue  `json:"venue"`
	Index uint64 `json:"index"`
}

// String returns the string representation, e.g. "primary:3".
func (id PositionID) String() string {
	return fmt.Sprintf("%s:%d", id.Venue, id.Index)
}

// FeeSet per-category fees reported by the primary venue.
type FeeSet struct {
	Position decimal.Decimal `json:"position"`
	Borrow   decimal.Decimal `json:"borrow"`
	Funding  decimal.Decimal `json:"funding"`
}

// Add returns the category-wise sum.
func (f FeeSet) Add(other FeeSet) FeeSet {
	return FeeSet{
		Position: f.Position.Add(other.Position),
		Borrow:   f.Borrow.Add(other.Borrow),
		Funding:  f.Funding.Add(other.Funding),
	}
}

// Total returns the sum of all categories.
func (f FeeSet) Total() decimal.Decimal {
	return f.Position.Add(f.Borrow).Add(f.Funding)
}

func (f FeeSet) equal(other FeeSet) bool {
	return f.Position.Equal(other.Position) &&
		f.Borrow.Equal(other.Borrow) &&
		f.Funding.Equal(other.Funding)
}

// Fees venue-specific fee breakdown. Implemented by PrimaryFees and SecondaryFees only.
type Fees interface {
	// Total all fees deducted from PnL.
	Total() decimal.Decimal
	// Breakdown fees per category; secondary venue reports the total as position fee.
	Breakdown() FeeSet
	venue() Venue
}

// PrimaryFees settled and owed fees as reported separately by the primary venue.
type PrimaryFees struct {
	Paid    FeeSet `json:"paid"`
	Accrued FeeSet `json:"accrued"`
}

// Total returns paid plus accrued fees over every category.
func (f PrimaryFees) Total() decimal.Decimal {
	return f.Breakdown().Total()
}

// Breakdown returns paid plus accrued per category.
func (f PrimaryFees) Breakdown() FeeSet {
	return f.Paid.Add(f.Accrued)
}

func (PrimaryFees) venue() Venue { return VenuePrimary }

// SecondaryFees single cumulative figure with no paid/accrued split.
type SecondaryFees struct {
	Cumulative decimal.Decimal `json:"total"`
}

// Total returns the cumulative fees.
func (f SecondaryFees) Total() decimal.Decimal {
	return f.Cumulative
}

// Breakdown reports the cumulative figure as the position fee.
func (f SecondaryFees) Breakdown() FeeSet {
	return FeeSet{Position: f.Cumulative, Borrow: decimal.Zero, Funding: decimal.Zero}
}

func (SecondaryFees) venue() Venue { return VenueSecondary }

// Position open position as reported by a venue feed, normalized to decimals.
type Position struct {
	ID         PositionID      `json:"id"`
	Pair       Pair            `json:"pair"`
	Side       Side            `json:"side"`
	Size       decimal.Decimal `json:"size"`
	EntryPrice decimal.Decimal `json:"entryPrice"`
	Margin     decimal.Decimal `json:"margin"`
	Fees       Fees            `json:"fees"`
	OpenedAt   time.Time       `json:"openedAt,omitempty"`
}

// Leverage returns size / margin, zero when margin is zero.
func (p Position) Leverage() decimal.Decimal {
	if p.Margin.IsZero() {
		return decimal.Zero
	}
	return p.Size.Div(p.Margin)
}

// Equal compares two position reports.
func (p Position) Equal(other Position) bool {
	if p.ID != other.ID || p.Pair != other.Pair || p.Side != other.Side ||
		!p.Size.Equal(other.Size) || !p.EntryPrice.Equal(other.EntryPrice) || !p.Margin.Equal(other.Margin) {
		return false
	}
	return feesEqual(p.Fees, other.Fees)
}

func feesEqual(a, b Fees) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.venue() != b.venue() {
		return false
	}
	if pa, ok := a.(PrimaryFees); ok {
		pb := b.(PrimaryFees)
		return pa.Paid.equal(pb.Paid) && pa.Accrued.equal(pb.Accrued)
	}
	return a.Total().Equal(b.Total())
}

// Positions set of open positions reported by one or both venues.
type Positions []Position

// Equal compares two position sets regardless of order.
func (ps Positions) Equal(other Positions) bool {
	if len(ps) != len(other) {
		return false
	}
	byID := make(map[PositionID]Position, len(ps))
	for _, p := range ps {
		byID[p.ID] = p
	}
	for _, o := range other {
		p, ok := byID[o.ID]
		if !ok || !p.Equal(o) {
			return false
		}
	}
	return true
}

// Sorted returns a copy ordered by venue then index.
func (ps Positions) Sorted() Positions {
	out := make(Positions, len(ps))
	copy(out, ps)
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID.Venue != out[j].ID.Venue {
			return out[i].ID.Venue < out[j].ID.Venue
		}
		return out[i].ID.Index < out[j].ID.Index
	})
	return out
}
