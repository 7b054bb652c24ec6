package quote

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/perpsplit/internal/domain"
)

func intent(size int64) domain.OrderIntent {
	return domain.OrderIntent{
		Pair:     domain.Pair{From: "BTC", To: "USD"},
		Size:     decimal.NewFromInt(size),
		Leverage: decimal.NewFromInt(10),
	}
}

type recorder struct {
	mu    sync.Mutex
	sizes []string
}

func (r *recorder) quote(_ context.Context, in domain.OrderIntent) (domain.Quote, error) {
	r.mu.Lock()
	r.sizes = append(r.sizes, in.Size.String())
	r.mu.Unlock()
	if in.Size.IsZero() {
		return domain.Quote{}, errors.New("size must be greater than zero")
	}
	return domain.Quote{Intent: in}, nil
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sizes...)
}

func waitResult(t *testing.T, ch chan Result) Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("no quote published")
		return Result{}
	}
}

func TestCoalescer_OnlyLatestDraftIsQuoted(t *testing.T) {
	rec := &recorder{}
	c := NewCoalescer(rec.quote, 50*time.Millisecond, nil)
	defer c.Close()

	ch := c.Subscribe()
	defer c.Unsubscribe(ch)

	for size := int64(1); size <= 5; size++ {
		c.Submit(intent(size * 1000))
	}
	assert.Equal(t, uint64(5), c.Generation())

	res := waitResult(t, ch)
	assert.Equal(t, uint64(5), res.Generation)
	assert.Equal(t, "5000", res.Quote.Intent.Size.String())
	assert.NoError(t, res.Err)
	assert.Equal(t, []string{"5000"}, rec.calls())

	latest, ok := c.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(5), latest.Generation)
}

func TestCoalescer_PublishesErrors(t *testing.T) {
	rec := &recorder{}
	c := NewCoalescer(rec.quote, 10*time.Millisecond, nil)
	defer c.Close()

	ch := c.Subscribe()
	defer c.Unsubscribe(ch)

	c.Submit(intent(0))
	res := waitResult(t, ch)
	assert.Error(t, res.Err)
	assert.Equal(t, "size must be greater than zero", res.Error)
}

func TestCoalescer_SupersededInFlightQuoteIsDropped(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	slow := func(ctx context.Context, in domain.OrderIntent) (domain.Quote, error) {
		if in.Size.Equal(decimal.NewFromInt(1)) {
			started <- struct{}{}
			<-release
		}
		return domain.Quote{Intent: in}, nil
	}

	c := NewCoalescer(slow, 10*time.Millisecond, nil)
	defer c.Close()
	ch := c.Subscribe()
	defer c.Unsubscribe(ch)

	c.Submit(intent(1))
	<-started
	c.Submit(intent(2))

	res := waitResult(t, ch)
	assert.Equal(t, uint64(2), res.Generation)

	close(release)
	select {
	case stale := <-ch:
		t.Fatalf("superseded quote published: generation %d", stale.Generation)
	case <-time.After(100 * time.Millisecond):
	}
}
