// Package quote coalesces rapid order-form edits into one quote request for the latest input.
package quote

import (
	"context"
	"sync"
	"time"

	"github.com/vadiminshakov/perpsplit/internal/domain"
	"github.com/vadiminshakov/perpsplit/internal/events"
	"go.uber.org/zap"
)

// DefaultDelay quiet period before a draft is quoted.
const DefaultDelay = 300 * time.Millisecond

// Func quotes one intent.
type Func func(ctx context.Context, intent domain.OrderIntent) (domain.Quote, error)

// Result quote of one draft generation.
type Result struct {
	Generation uint64             `json:"generation"`
	Intent     domain.OrderIntent `json:"intent"`
	Quote      domain.Quote       `json:"quote"`
	Error      string             `json:"error,omitempty"`

	Err error `json:"-"`
}

// Coalescer quotes drafts with cancel-and-replace semantics: a new draft cancels the pending
// or in-flight quote of the previous one, and only the latest generation is ever published.
type Coalescer struct {
	quote  Func
	delay  time.Duration
	logger *zap.Logger
	store  *events.Store[Result]

	base context.Context
	stop context.CancelFunc

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// NewCoalescer creates a coalescer waiting delay after the last draft before quoting.
func NewCoalescer(quote Func, delay time.Duration, logger *zap.Logger) *Coalescer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	base, cancel := context.WithCancel(context.Background())
	return &Coalescer{
		quote:  quote,
		delay:  delay,
		logger: logger.With(zap.String("component", "quote")),
		store:  events.NewStore(func(a, b Result) bool { return a.Generation == b.Generation }, 8),
		base:   base,
		stop:   cancel,
	}
}

// Submit replaces the current draft and returns its generation.
func (c *Coalescer) Submit(intent domain.OrderIntent) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	gen := c.gen

	ctx, cancel := context.WithCancel(c.base)
	c.cancel = cancel

	timer := time.AfterFunc(c.delay, func() { c.run(ctx, gen, intent) })
	context.AfterFunc(ctx, func() { timer.Stop() })

	return gen
}

func (c *Coalescer) run(ctx context.Context, gen uint64, intent domain.OrderIntent) {
	if ctx.Err() != nil {
		return
	}

	q, err := c.quote(ctx, intent)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || ctx.Err() != nil {
		c.logger.Debug("dropping superseded quote", zap.Uint64("generation", gen))
		return
	}

	res := Result{Generation: gen, Intent: intent, Quote: q, Err: err}
	if err != nil {
		res.Error = err.Error()
	}
	c.store.Publish(res)
}

// Latest returns the quote of the latest completed generation.
func (c *Coalescer) Latest() (Result, bool) {
	return c.store.Read()
}

// Generation returns the generation of the latest draft.
func (c *Coalescer) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Subscribe delivers every published quote.
func (c *Coalescer) Subscribe() chan Result {
	return c.store.Subscribe()
}

// Unsubscribe stops delivery and closes ch.
func (c *Coalescer) Unsubscribe(ch chan Result) {
	c.store.Unsubscribe(ch)
}

// Close cancels any pending quote.
func (c *Coalescer) Close() {
	c.stop()
}
