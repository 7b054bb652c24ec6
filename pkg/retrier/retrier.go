// Package retrier retries fallible calls with capped exponential backoff.
package retrier

import (
	"context"
	"github.com/pkg/errors"
	"math/rand/v2"
	"time"
)

// Backoff describes the delay schedule between attempts.
type Backoff struct {
	Base   time.Duration
	Cap    time.Duration
	Factor float64
	// Jitter spreads each delay by up to +/- Jitter of its value.
	Jitter float64
}

// Delay returns the wait before retry number n (1-based).
func (b Backoff) Delay(n int) time.Duration {
	d := float64(b.Base)
	for i := 1; i < n; i++ {
		d *= b.Factor
		if b.Cap > 0 && d >= float64(b.Cap) {
			d = float64(b.Cap)
			break
		}
	}
	if b.Cap > 0 && d > float64(b.Cap) {
		d = float64(b.Cap)
	}
	if b.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * b.Jitter * d
	}
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}

// Retrier runs a call until it succeeds, fails permanently or runs out of attempts.
type Retrier struct {
	backoff  Backoff
	attempts int
	retryIf  func(error) bool
	onRetry  func(attempt int, err error, wait time.Duration)
}

type Option func(*Retrier)

// WithBackoff replaces the delay schedule.
func WithBackoff(b Backoff) Option {
	return func(r *Retrier) { r.backoff = b }
}

// WithInitialInterval sets the first delay.
func WithInitialInterval(d time.Duration) Option {
	return func(r *Retrier) { r.backoff.Base = d }
}

// WithMaxRetries sets how many times a failed call is repeated.
func WithMaxRetries(n int) Option {
	return func(r *Retrier) { r.attempts = n + 1 }
}

// WithRetryIf limits retries to errors the classifier accepts.
func WithRetryIf(fn func(error) bool) Option {
	return func(r *Retrier) { r.retryIf = fn }
}

// WithOnRetry registers a hook called before each wait.
func WithOnRetry(fn func(attempt int, err error, wait time.Duration)) Option {
	return func(r *Retrier) { r.onRetry = fn }
}

func New(opts ...Option) *Retrier {
	r := &Retrier{
		backoff:  Backoff{Base: time.Second, Cap: 30 * time.Second, Factor: 2, Jitter: 0.1},
		attempts: 6,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.attempts < 1 {
		r.attempts = 1
	}
	return r
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it returns nil. The last error is returned once attempts
// are exhausted; ctx cancellation during a wait returns ctx.Err().
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if r.retryIf != nil && !r.retryIf(err) {
			return err
		}
		if attempt >= r.attempts {
			return err
		}

		wait := r.backoff.Delay(attempt)
		if r.onRetry != nil {
			r.onRetry(attempt, err, wait)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// DoWithData is Do for calls producing a value. The zero value is returned on failure.
func DoWithData[T any](r *Retrier, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
