package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market registry snapshot of one pair.
// Liquidity is reported by the primary venue only.
type Market struct {
	Pair               Pair            `json:"pair"`
	LongLiquidity      decimal.Decimal `json:"longLiquidity"`
	ShortLiquidity     decimal.Decimal `json:"shortLiquidity"`
	LongFeeRate        decimal.Decimal `json:"longFeeRate"`
	ShortFeeRate       decimal.Decimal `json:"shortFeeRate"`
	SecondarySupported bool            `json:"secondarySupported"`
	// PrimaryPairIndex market key of the pair on the primary venue.
	PrimaryPairIndex uint16 `json:"primaryPairIndex"`
	// SecondaryPairIndex market key of the pair on the secondary venue.
	SecondaryPairIndex uint16    `json:"secondaryPairIndex"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Liquidity returns available primary liquidity for the side.
func (m Market) Liquidity(side Side) decimal.Decimal {
	if side == SideShort {
		return m.ShortLiquidity
	}
	return m.LongLiquidity
}

// FeeRate returns the primary trading-fee rate for the side.
func (m Market) FeeRate(side Side) decimal.Decimal {
	if side == SideShort {
		return m.ShortFeeRate
	}
	return m.LongFeeRate
}

// Equal compares snapshots ignoring the refresh timestamp.
func (m Market) Equal(other Market) bool {
	return m.Pair == other.Pair &&
		m.LongLiquidity.Equal(other.LongLiquidity) &&
		m.ShortLiquidity.Equal(other.ShortLiquidity) &&
		m.LongFeeRate.Equal(other.LongFeeRate) &&
		m.ShortFeeRate.Equal(other.ShortFeeRate) &&
		m.SecondarySupported == other.SecondarySupported &&
		m.PrimaryPairIndex == other.PrimaryPairIndex &&
		m.SecondaryPairIndex == other.SecondaryPairIndex
}

// Markets registry snapshot keyed by pair.
type Markets map[Pair]Market

// Equal compares two registry snapshots.
func (m Markets) Equal(other Markets) bool {
	if len(m) != len(other) {
		return false
	}
	for pair, market := range m {
		o, ok := other[pair]
		if !ok || !market.Equal(o) {
			return false
		}
	}
	return true
}

// Limits per-venue minimum margin rules.
type Limits struct {
	PrimaryMinMargin   decimal.Decimal
	SecondaryMinMargin decimal.Decimal
}

// MinMargin returns the minimum margin of the venue.
func (l Limits) MinMargin(v Venue) decimal.Decimal {
	if v == VenueSecondary {
		return l.SecondaryMinMargin
	}
	return l.PrimaryMinMargin
}

// ByPairIndex finds the market keyed by the venue-specific pair index.
func (m Markets) ByPairIndex(v Venue, index uint16) (Market, bool) {
	for _, market := range m {
		switch {
		case v == VenuePrimary && market.PrimaryPairIndex == index:
			return market, true
		case v == VenueSecondary && market.SecondarySupported && market.SecondaryPairIndex == index:
			return market, true
		}
	}
	return Market{}, false
}
