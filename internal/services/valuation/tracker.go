package valuation

import (
	"context"

	"github.com/vadiminshakov/perpsplit/internal/domain"
	"github.com/vadiminshakov/perpsplit/internal/events"
	"go.uber.org/zap"
)

// Source owned cache a tracker subscribes to.
type Source[T any] interface {
	Subscribe() chan T
	Unsubscribe(ch chan T)
}

// Tracker keeps valuations of the working set current on every position or price change.
type Tracker struct {
	positions Source[domain.Positions]
	marks     Source[domain.MarkPrices]
	store     *events.Store[domain.Valuations]
	logger    *zap.Logger
}

// NewTracker creates a tracker.
func NewTracker(positions Source[domain.Positions], marks Source[domain.MarkPrices], logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		positions: positions,
		marks:     marks,
		store:     events.NewStore(domain.Valuations.Equal, 16),
		logger:    logger.With(zap.String("component", "valuation")),
	}
}

// Run recomputes valuations until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	posCh := t.positions.Subscribe()
	defer t.positions.Unsubscribe(posCh)
	markCh := t.marks.Subscribe()
	defer t.marks.Unsubscribe(markCh)

	var (
		positions domain.Positions
		marks     domain.MarkPrices
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ps, ok := <-posCh:
			if !ok {
				return nil
			}
			positions = ps
		case m, ok := <-markCh:
			if !ok {
				return nil
			}
			marks = m
		}

		if t.store.Publish(Compute(positions, marks)) {
			t.logger.Debug("valuations updated", zap.Int("positions", len(positions)))
		}
	}
}

// Compute values every position against the mark of its pair.
func Compute(positions domain.Positions, marks domain.MarkPrices) domain.Valuations {
	out := make(domain.Valuations, len(positions))
	for _, p := range positions {
		mark := domain.Unavailable
		if price, ok := marks[p.Pair]; ok {
			mark = domain.Available(price)
		}
		out[p.ID] = Value(p, mark)
	}
	return out
}

// Read returns the latest valuations.
func (t *Tracker) Read() (domain.Valuations, bool) {
	return t.store.Read()
}

// Subscribe delivers every valuation change.
func (t *Tracker) Subscribe() chan domain.Valuations {
	return t.store.Subscribe()
}

// Unsubscribe stops delivery and closes ch.
func (t *Tracker) Unsubscribe(ch chan domain.Valuations) {
	t.store.Unsubscribe(ch)
}
