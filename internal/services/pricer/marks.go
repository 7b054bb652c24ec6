package pricer

import (
	"context"

	"github.com/sourcegraph/conc/pool"
	"github.com/vadiminshakov/perpsplit/internal/domain"
	"github.com/vadiminshakov/perpsplit/internal/events"
	"go.uber.org/zap"
)

// Board polls mark prices of the registry pairs into an owned cache.
// A pair whose price cannot be fetched is left out, so its positions are valued as unavailable.
type Board struct {
	pricer Pricer
	pairs  func() []domain.Pair
	store  *events.Store[domain.MarkPrices]
	logger *zap.Logger
}

// NewBoard creates a board. pairs lists the pairs to price on every poll.
func NewBoard(p Pricer, pairs func() []domain.Pair, logger *zap.Logger) *Board {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Board{
		pricer: p,
		pairs:  pairs,
		store:  events.NewStore(domain.MarkPrices.Equal, 16),
		logger: logger.With(zap.String("component", "marks")),
	}
}

// Poll fetches every pair concurrently and publishes the set if it changed.
func (b *Board) Poll(ctx context.Context) error {
	pairs := b.pairs()

	type result struct {
		pair  domain.Pair
		price domain.Figure
	}
	p := pool.NewWithResults[result]().WithContext(ctx).WithMaxGoroutines(8)
	for _, pair := range pairs {
		p.Go(func(ctx context.Context) (result, error) {
			price, err := b.pricer.GetPrice(ctx, pair)
			if err != nil {
				b.logger.Debug("mark price unavailable", zap.String("pair", pair.String()), zap.Error(err))
				return result{pair: pair}, nil
			}
			return result{pair: pair, price: domain.Available(price)}, nil
		})
	}
	results, err := p.Wait()
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	marks := make(domain.MarkPrices, len(results))
	for _, r := range results {
		if price, ok := r.price.Value(); ok {
			marks[r.pair] = price
		}
	}
	b.store.Publish(marks)
	return nil
}

// Read returns the latest mark prices.
func (b *Board) Read() (domain.MarkPrices, bool) {
	return b.store.Read()
}

// Price returns the latest mark price of pair.
func (b *Board) Price(pair domain.Pair) domain.Figure {
	marks, _ := b.store.Read()
	if price, ok := marks[pair]; ok {
		return domain.Available(price)
	}
	return domain.Unavailable
}

// Subscribe delivers every change of the mark prices.
func (b *Board) Subscribe() chan domain.MarkPrices {
	return b.store.Subscribe()
}

// Unsubscribe stops delivery and closes ch.
func (b *Board) Unsubscribe(ch chan domain.MarkPrices) {
	b.store.Unsubscribe(ch)
}
