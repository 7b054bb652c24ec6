package pricer

import (
	"context"
	"fmt"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/perpsplit/internal/domain"
)

// BinancePricer fetches last prices from the Binance public API.
type BinancePricer struct {
	client *binance.Client
	quote  string
}

// NewBinancePricer creates a pricer. quote overrides the pair quote asset, e.g. USDT for USD pairs.
func NewBinancePricer(client *binance.Client, quote string) *BinancePricer {
	return &BinancePricer{client: client, quote: quote}
}

// GetPrice implements Pricer.
func (p *BinancePricer) GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	prices, err := p.client.NewListPricesService().Symbol(symbol(pair, p.quote)).Do(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(prices) == 0 {
		return decimal.Decimal{}, fmt.Errorf("binance API returned empty prices for %s", pair.String())
	}

	return decimal.NewFromString(prices[0].Price)
}
