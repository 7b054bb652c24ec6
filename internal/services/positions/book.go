// Package positions polls both venue feeds into one working set of open positions.
package positions

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/perpsplit/internal/domain"
	"github.com/vadiminshakov/perpsplit/internal/events"
	"go.uber.org/zap"
)

// Book is the working set of open positions across venues.
// A position leaves the set as soon as its venue stops reporting it.
type Book struct {
	owner  common.Address
	feeds  map[domain.Venue]Feed
	logger *zap.Logger

	// mu serializes venue updates so the merged set never mixes in a stale venue slice.
	mu     sync.Mutex
	venues map[domain.Venue]domain.Positions
	merged *events.Store[domain.Positions]
}

// NewBook creates a book over the feeds, one per venue.
func NewBook(owner common.Address, logger *zap.Logger, feeds ...Feed) *Book {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Book{
		owner:  owner,
		feeds:  make(map[domain.Venue]Feed, len(feeds)),
		logger: logger.With(zap.String("component", "positions")),
		venues: make(map[domain.Venue]domain.Positions),
		merged: events.NewStore(domain.Positions.Equal, 16),
	}
	for _, f := range feeds {
		b.feeds[f.Venue()] = f
	}
	return b
}

// Refresh fetches one venue. A failing feed is logged and contributes no positions this tick.
// Reports whether the merged set changed.
func (b *Book) Refresh(ctx context.Context, v domain.Venue) (bool, error) {
	feed, ok := b.feeds[v]
	if !ok {
		return false, errors.Errorf("no position feed for %s", v)
	}

	positions, err := feed.Positions(ctx, b.owner)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		b.logger.Warn("position feed degraded", zap.String("venue", v.String()), zap.Error(err))
		positions = nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if held, ok := b.venues[v]; ok && held.Equal(positions) {
		return false, nil
	}
	b.venues[v] = positions

	merged := make(domain.Positions, 0)
	for _, venue := range domain.Venues {
		merged = append(merged, b.venues[venue]...)
	}
	changed := b.merged.Publish(merged.Sorted())
	if changed {
		b.logger.Debug("positions changed", zap.String("venue", v.String()), zap.Int("open", len(merged)))
	}
	return changed, nil
}

// Poller returns the poll function of one venue.
func (b *Book) Poller(v domain.Venue) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := b.Refresh(ctx, v)
		return err
	}
}

// Venues lists the venues with a feed.
func (b *Book) Venues() []domain.Venue {
	out := make([]domain.Venue, 0, len(b.feeds))
	for _, v := range domain.Venues {
		if _, ok := b.feeds[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Read returns the merged working set.
func (b *Book) Read() (domain.Positions, bool) {
	return b.merged.Read()
}

// Subscribe delivers every change of the merged set.
func (b *Book) Subscribe() chan domain.Positions {
	return b.merged.Subscribe()
}

// Unsubscribe stops delivery and closes ch.
func (b *Book) Unsubscribe(ch chan domain.Positions) {
	b.merged.Unsubscribe(ch)
}
