// Package pricer provides mark prices for the valuation engine and for market-order price bounds.
package pricer

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/perpsplit/internal/domain"
	"go.uber.org/zap"
)

// Pricer returns the current price of a pair.
type Pricer interface {
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}

// Chain asks each pricer in order and returns the first positive price.
type Chain struct {
	pricers []Pricer
	logger  *zap.Logger
}

// NewChain creates a fallback chain.
func NewChain(logger *zap.Logger, pricers ...Pricer) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{pricers: pricers, logger: logger}
}

// GetPrice implements Pricer.
func (c *Chain) GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	var errs []string
	for _, p := range c.pricers {
		price, err := p.GetPrice(ctx, pair)
		if err == nil && price.IsPositive() {
			return price, nil
		}
		if err == nil {
			err = errors.Errorf("non-positive price %s", price)
		}
		c.logger.Debug("price source failed", zap.String("pair", pair.String()), zap.Error(err))
		errs = append(errs, err.Error())
	}
	if len(errs) == 0 {
		return decimal.Zero, errors.New("no price sources configured")
	}
	return decimal.Zero, errors.Errorf("all price sources failed for %s: %s", pair, strings.Join(errs, "; "))
}

// symbol builds an exchange symbol, replacing the pair quote with the exchange quote asset when set.
func symbol(pair domain.Pair, quote string) string {
	if quote == "" {
		return pair.Symbol()
	}
	return pair.From + quote
}
