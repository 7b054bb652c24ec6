package pricer

import (
	"context"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/perpsplit/internal/domain"
)

// BybitPricer reads the linear perp mark price from Bybit V5 tickers.
type BybitPricer struct {
	client *bybit.Client
	quote  string
}

// NewBybitPricer creates a pricer. quote overrides the pair quote asset.
func NewBybitPricer(client *bybit.Client, quote string) *BybitPricer {
	return &BybitPricer{client: client, quote: quote}
}

// GetPrice implements Pricer. The SDK call does not take a context.
func (p *BybitPricer) GetPrice(_ context.Context, pair domain.Pair) (decimal.Decimal, error) {
	sym := bybit.SymbolV5(symbol(pair, p.quote))
	res, err := p.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: bybit.CategoryV5Linear,
		Symbol:   &sym,
	})
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "bybit: tickers %s", sym)
	}
	if res.Result.LinearInverse == nil || len(res.Result.LinearInverse.List) == 0 {
		return decimal.Zero, errors.Errorf("bybit: no linear ticker for %s", sym)
	}

	t := res.Result.LinearInverse.List[0]
	raw := t.MarkPrice
	if raw == "" {
		raw = t.LastPrice
	}
	return decimal.NewFromString(raw)
}
