// Package registry keeps the market registry snapshot used by routing and position mapping.
package registry

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/perpsplit/internal/clients"
	"github.com/vadiminshakov/perpsplit/internal/domain"
	"github.com/vadiminshakov/perpsplit/internal/events"
	"go.uber.org/zap"
)

// PairsSource lists the primary venue pairs.
type PairsSource interface {
	Pairs(ctx context.Context) ([]clients.PairInfo, error)
}

// Registry merges the primary venue pairs with the configured secondary support and caches the result.
type Registry struct {
	source    PairsSource
	secondary map[domain.Pair]uint16
	store     *events.Store[domain.Markets]
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a registry. secondary maps every pair listed on the secondary venue to its pair index there.
func New(source PairsSource, secondary map[domain.Pair]uint16, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		source:    source,
		secondary: secondary,
		store:     events.NewStore(domain.Markets.Equal, 16),
		logger:    logger.With(zap.String("component", "registry")),
		now:       time.Now,
	}
}

// Refresh fetches the registry and publishes it when it changed.
func (r *Registry) Refresh(ctx context.Context) error {
	pairs, err := r.source.Pairs(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch market registry")
	}

	now := r.now().UTC()
	markets := make(domain.Markets, len(pairs))
	for _, info := range pairs {
		pair, err := domain.ParsePair(info.Pair)
		if err != nil {
			r.logger.Warn("skipping registry entry", zap.String("pair", info.Pair), zap.Error(err))
			continue
		}
		secondaryIndex, supported := r.secondary[pair]
		markets[pair] = domain.Market{
			Pair:               pair,
			LongLiquidity:      info.LongLiquidity,
			ShortLiquidity:     info.ShortLiquidity,
			LongFeeRate:        info.LongFeeRate,
			ShortFeeRate:       info.ShortFeeRate,
			SecondarySupported: supported,
			PrimaryPairIndex:   info.PairIndex,
			SecondaryPairIndex: secondaryIndex,
			UpdatedAt:          now,
		}
	}

	if r.store.Publish(markets) {
		r.logger.Debug("market registry updated", zap.Int("pairs", len(markets)))
	}
	return nil
}

// Markets returns the current snapshot.
func (r *Registry) Markets() domain.Markets {
	markets, _ := r.store.Read()
	return markets
}

// Market returns the snapshot of one pair.
func (r *Registry) Market(pair domain.Pair) (domain.Market, error) {
	markets, ok := r.store.Read()
	if !ok {
		return domain.Market{}, errors.Wrap(domain.ErrUnknownMarket, "market registry not loaded yet")
	}
	m, ok := markets[pair]
	if !ok {
		return domain.Market{}, errors.Wrapf(domain.ErrUnknownMarket, "%s", pair)
	}
	return m, nil
}

// Resolve maps a venue pair index to the shared pair identifier.
func (r *Registry) Resolve(v domain.Venue, index uint16) (domain.Pair, bool) {
	m, ok := r.Markets().ByPairIndex(v, index)
	if !ok {
		return domain.Pair{}, false
	}
	return m.Pair, true
}

// Subscribe returns a channel of registry snapshots.
func (r *Registry) Subscribe() chan domain.Markets {
	return r.store.Subscribe()
}

// Unsubscribe stops a subscription.
func (r *Registry) Unsubscribe(ch chan domain.Markets) {
	r.store.Unsubscribe(ch)
}

// StaticSource serves a fixed registry, used in simulation.
type StaticSource []clients.PairInfo

// Pairs implements PairsSource.
func (s StaticSource) Pairs(context.Context) ([]clients.PairInfo, error) {
	return s, nil
}
