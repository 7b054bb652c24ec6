// Package routing decides how an order is filled across the two venues and assembles its bundle.
package routing

import (
	"github.com/vadiminshakov/perpsplit/internal/domain"
)

// Select evaluates venue availability for the intent against a market snapshot.
// Primary is preferred; secondary only takes overflow the primary cannot hold.
func Select(intent domain.OrderIntent, market domain.Market, limits domain.Limits) domain.RouteDecision {
	margin := intent.Margin()
	liquidity := market.Liquidity(intent.Side)
	primaryHasLiquidity := liquidity.IsPositive()
	fitsPrimary := primaryHasLiquidity && intent.Size.LessThanOrEqual(liquidity)

	var d domain.RouteDecision

	switch {
	case !fitsPrimary:
		d.Primary = domain.Availability{Reason: domain.ReasonInsufficientLiquidity}
	case margin.LessThan(limits.PrimaryMinMargin):
		d.Primary = domain.Availability{Reason: domain.ReasonBelowPrimaryMinMargin}
	default:
		d.Primary = domain.Availability{Available: true}
	}

	switch {
	case !market.SecondarySupported:
		d.Secondary = domain.Availability{Reason: domain.ReasonPairNotSupported}
	case margin.LessThan(limits.SecondaryMinMargin):
		d.Secondary = domain.Availability{Reason: domain.ReasonBelowSecondaryMinMargin}
	case fitsPrimary:
		d.Secondary = domain.Availability{Reason: domain.ReasonPrimaryLiquiditySuffices}
	default:
		d.Secondary = domain.Availability{Available: true}
	}

	switch {
	case d.Primary.Available:
		d.Selected = domain.RoutePrimary
	case d.Secondary.Available:
		d.Selected = domain.RouteSecondary
	default:
		d.Selected = domain.RouteNone
	}

	return d
}
