package domain

import "github.com/shopspring/decimal"

// Unavailability reasons recorded by the route selector.
const (
	ReasonPairNotSupported         = "pair not supported"
	ReasonInsufficientLiquidity    = "insufficient liquidity"
	ReasonBelowPrimaryMinMargin    = "margin below primary minimum"
	ReasonBelowSecondaryMinMargin  = "margin below secondary minimum"
	ReasonPrimaryLiquiditySuffices = "primary liquidity sufficient"
)

// Route venue selected as the sole route of an order.
type Route int

const (
	RouteNone Route = iota
	RoutePrimary
	RouteSecondary
)

// String returns the string representation of the route.
func (r Route) String() string {
	switch r {
	case RoutePrimary:
		return VenuePrimary.String()
	case RouteSecondary:
		return VenueSecondary.String()
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Route) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Availability of one venue for an order.
type Availability struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// RouteDecision derived per order, never persisted.
type RouteDecision struct {
	Primary   Availability `json:"primary"`
	Secondary Availability `json:"secondary"`
	Selected  Route        `json:"selected"`
}

// Blocked reports whether execution must be refused.
func (d RouteDecision) Blocked() bool {
	return d.Selected == RouteNone
}

// For returns the availability of the venue.
func (d RouteDecision) For(v Venue) Availability {
	if v == VenueSecondary {
		return d.Secondary
	}
	return d.Primary
}

// Err returns a rejection when the decision is blocked.
func (d RouteDecision) Err() error {
	if !d.Blocked() {
		return nil
	}
	return rejectionForDecision(d)
}

// Leg portion of an order routed to one venue.
type Leg struct {
	Size   decimal.Decimal `json:"size"`
	Margin decimal.Decimal `json:"margin"`
}

// SplitAllocation per-venue legs; nil means the venue receives nothing.
type SplitAllocation struct {
	Primary   *Leg `json:"primary"`
	Secondary *Leg `json:"secondary"`
}

// Leg returns the leg of the venue, nil if none.
func (a SplitAllocation) Leg(v Venue) *Leg {
	if v == VenueSecondary {
		return a.Secondary
	}
	return a.Primary
}

// Total returns the sum of non-nil leg sizes.
func (a SplitAllocation) Total() decimal.Decimal {
	total := decimal.Zero
	for _, v := range Venues {
		if leg := a.Leg(v); leg != nil {
			total = total.Add(leg.Size)
		}
	}
	return total
}

// IsSplit reports whether both venues receive a leg.
func (a SplitAllocation) IsSplit() bool {
	return a.Primary != nil && a.Secondary != nil
}
