package pricer

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/perpsplit/internal/domain"
)

// MidsSource returns mid prices keyed by coin. *hyperliquid.Info satisfies it.
type MidsSource interface {
	AllMids(ctx context.Context) (map[string]string, error)
}

// HyperliquidPricer prices a pair by the Hyperliquid perp mid of its base asset.
type HyperliquidPricer struct {
	mids MidsSource
}

func NewHyperliquidPricer(mids MidsSource) *HyperliquidPricer {
	return &HyperliquidPricer{mids: mids}
}

func (p *HyperliquidPricer) GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	if p.mids == nil {
		return decimal.Zero, errors.New("hyperliquid: no info client")
	}
	all, err := p.mids.AllMids(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "hyperliquid: all mids")
	}
	raw := all[pair.From]
	if raw == "" {
		return decimal.Zero, errors.Errorf("hyperliquid: no mid for %s", pair.From)
	}
	mid, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "hyperliquid: mid %q", raw)
	}
	return mid, nil
}
