// Package retry retries remote calls that were rate limited.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default configuration values.
const (
	DefaultBaseDelay  = 1 * time.Second
	DefaultMaxDelay   = 10 * time.Second
	DefaultMaxRetries = 3
)

var (
	// ErrRateLimited marks a remote response as rate limited.
	// It is the only condition a Policy retries.
	ErrRateLimited = errors.New("rate limited")

	// ErrRateLimitExceeded is returned when every retry was rate limited.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// NotifyFunc is called before each wait with the failed attempt number (1-based).
type NotifyFunc func(op string, attempt int, delay time.Duration, err error)

// Policy retries rate-limited calls with exponential backoff:
// wait min(base*2^n, max) before retry n+1, give up after maxRetries.
// A Policy holds no state between calls.
type Policy struct {
	base       time.Duration
	max        time.Duration
	maxRetries uint64
	newTimer   func() backoff.Timer
	notify     NotifyFunc
}

// Option configures Policy.
type Option func(*Policy)

// WithBaseDelay sets the first wait.
func WithBaseDelay(d time.Duration) Option {
	return func(p *Policy) {
		p.base = d
	}
}

// WithMaxDelay caps a single wait.
func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) {
		p.max = d
	}
}

// WithMaxRetries sets how many retries follow the first attempt.
func WithMaxRetries(n int) Option {
	return func(p *Policy) {
		if n >= 0 {
			p.maxRetries = uint64(n)
		}
	}
}

// WithTimer replaces the wall-clock timer used between attempts.
func WithTimer(newTimer func() backoff.Timer) Option {
	return func(p *Policy) {
		p.newTimer = newTimer
	}
}

// WithNotify sets a callback invoked before every wait.
func WithNotify(fn NotifyFunc) Option {
	return func(p *Policy) {
		p.notify = fn
	}
}

// New creates a Policy.
func New(opts ...Option) *Policy {
	p := &Policy{
		base:       DefaultBaseDelay,
		max:        DefaultMaxDelay,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Do runs fn, retrying only while it fails with ErrRateLimited.
// Any other error is returned from the attempt that produced it.
func (p *Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := fn(ctx)
		if err == nil || errors.Is(err, ErrRateLimited) {
			return err
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, d time.Duration) {
		if p.notify != nil {
			p.notify(op, attempt, d, err)
		}
	}

	var timer backoff.Timer
	if p.newTimer != nil {
		timer = p.newTimer()
	}

	err := backoff.RetryNotifyWithTimer(operation, p.schedule(ctx), notify, timer)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRateLimited):
		return fmt.Errorf("%s: %w after %d attempts: %w", op, ErrRateLimitExceeded, attempt, err)
	default:
		return err
	}
}

// schedule builds a fresh backoff for one call.
func (p *Policy) schedule(ctx context.Context) backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         p.max,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, p.maxRetries), ctx)
}

// Delays returns the waits the policy would apply before each retry.
func (p *Policy) Delays() []time.Duration {
	out := make([]time.Duration, 0, p.maxRetries)
	d := p.base
	for i := uint64(0); i < p.maxRetries; i++ {
		if d > p.max {
			d = p.max
		}
		out = append(out, d)
		d *= 2
	}
	return out
}
