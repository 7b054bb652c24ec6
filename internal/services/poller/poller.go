// Package poller runs a fetch function on a fixed interval without overlapping executions.
package poller

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// FetchFunc performs one poll. Errors are logged; the poller keeps running.
type FetchFunc func(ctx context.Context) error

// Poller ticks every interval and starts a fetch unless the previous one is still in flight.
// Skipped ticks are not queued.
type Poller struct {
	name     string
	interval time.Duration
	fetch    FetchFunc
	logger   *zap.Logger

	inFlight atomic.Bool
	skipped  atomic.Uint64
	runs     atomic.Uint64
}

// New creates a poller.
func New(name string, interval time.Duration, fetch FetchFunc, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{
		name:     name,
		interval: interval,
		fetch:    fetch,
		logger:   logger.With(zap.String("poller", name)),
	}
}

// Run polls immediately and then on every tick until ctx is cancelled.
// On return the ticker is stopped and every in-flight fetch has finished.
func (p *Poller) Run(ctx context.Context) error {
	var wg conc.WaitGroup
	defer wg.Wait()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("starting poller", zap.Duration("interval", p.interval))

	p.tick(ctx, &wg)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("stopping poller")
			return ctx.Err()
		case <-ticker.C:
			p.tick(ctx, &wg)
		}
	}
}

// Skipped returns the number of ticks skipped because a fetch was in flight.
func (p *Poller) Skipped() uint64 {
	return p.skipped.Load()
}

// Runs returns the number of fetches started.
func (p *Poller) Runs() uint64 {
	return p.runs.Load()
}

func (p *Poller) tick(ctx context.Context, wg *conc.WaitGroup) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		p.logger.Debug("previous poll still in flight, skipping tick")
		return
	}
	p.runs.Add(1)

	wg.Go(func() {
		defer p.inFlight.Store(false)
		if err := p.fetch(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("poll failed", zap.Error(err))
		}
	})
}
