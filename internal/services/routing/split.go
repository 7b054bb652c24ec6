package routing

import (
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/perpsplit/internal/domain"
)

// Split allocates the truncated order size between the venues.
// The primary leg takes what its liquidity allows; the remainder goes to the secondary.
// A leg whose margin is below its venue minimum is dropped and its size moved to the other venue,
// or the order is rejected when the other venue cannot take it.
func Split(intent domain.OrderIntent, market domain.Market, limits domain.Limits) (domain.SplitAllocation, error) {
	total := domain.Truncate(intent.Size)
	liquidity := market.Liquidity(intent.Side)

	if !liquidity.IsPositive() {
		leg, err := secondaryLeg(total, intent.Leverage, market, limits)
		if err != nil {
			return domain.SplitAllocation{}, err
		}
		return domain.SplitAllocation{Secondary: leg}, nil
	}

	primarySize := domain.Truncate(decimal.Min(total, liquidity))
	primaryMargin := domain.Truncate(primarySize.Div(intent.Leverage))
	if primaryMargin.LessThan(limits.PrimaryMinMargin) {
		primarySize = decimal.Zero
	}

	var alloc domain.SplitAllocation
	if primarySize.IsPositive() {
		alloc.Primary = &domain.Leg{Size: primarySize, Margin: primaryMargin}
	}

	rest := total.Sub(primarySize)
	if !rest.IsPositive() {
		return alloc, nil
	}

	leg, err := secondaryLeg(rest, intent.Leverage, market, limits)
	if err != nil {
		return domain.SplitAllocation{}, err
	}
	alloc.Secondary = leg

	return alloc, nil
}

// Whole routes the entire truncated size to the selected venue without splitting.
func Whole(intent domain.OrderIntent, route domain.Route) (domain.SplitAllocation, error) {
	total := domain.Truncate(intent.Size)
	leg := &domain.Leg{Size: total, Margin: domain.Truncate(total.Div(intent.Leverage))}

	switch route {
	case domain.RoutePrimary:
		return domain.SplitAllocation{Primary: leg}, nil
	case domain.RouteSecondary:
		return domain.SplitAllocation{Secondary: leg}, nil
	default:
		return domain.SplitAllocation{}, domain.NewRejection(domain.ErrNoVenueAvailable, domain.RejectLiquidity,
			"no route selected for %s", intent.Pair)
	}
}

func secondaryLeg(size, leverage decimal.Decimal, market domain.Market, limits domain.Limits) (*domain.Leg, error) {
	if !market.SecondarySupported {
		return nil, domain.NewRejection(domain.ErrNoVenueAvailable, domain.RejectPairUnsupported,
			"%s of %s exceeds primary liquidity and the pair is not supported on the secondary venue", size, market.Pair)
	}

	margin := domain.Truncate(size.Div(leverage))
	if margin.LessThan(limits.SecondaryMinMargin) {
		return nil, domain.NewRejection(domain.ErrNoVenueAvailable, domain.RejectMinMargin,
			"secondary leg margin %s is below the minimum %s", margin, limits.SecondaryMinMargin)
	}

	return &domain.Leg{Size: size, Margin: margin}, nil
}
