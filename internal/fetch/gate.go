package fetch

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/rewired-gh/skinscout/internal/clock"
)

// Policy describes how one class of requests passes the Gate.
type Policy struct {
	// RequestDelay is slept before waiting for admission.
	RequestDelay time.Duration
	// GlobalDelay is the minimum time from call start to running the request,
	// padded after admission.
	GlobalDelay time.Duration
	// Cooldown is slept while still holding admission when the request fails
	// with a *RequestError, pausing every other caller of the same Gate.
	Cooldown time.Duration
	// Limited makes the call consume a token from the Gate's rate limiter.
	Limited bool
}

// Gate serializes outbound calls. One call holds admission from its first wait
// until its request and any cooldown finish.
type Gate struct {
	sem     chan struct{}
	limiter *rate.Limiter
	clock   clock.Clock
}

// NewGate creates a Gate whose limiter admits at most one limited call per
// minInterval. A non-positive minInterval disables the limiter.
func NewGate(minInterval time.Duration, clk clock.Clock) *Gate {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	if clk == nil {
		clk = clock.NewReal()
	}
	return &Gate{
		sem:     make(chan struct{}, 1),
		limiter: rate.NewLimiter(limit, 1),
		clock:   clk,
	}
}

// Do runs fn under the Gate according to p and returns fn's error.
func (g *Gate) Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	start := g.clock.Now()

	if err := g.clock.Sleep(ctx, p.RequestDelay); err != nil {
		return err
	}

	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-g.sem }()

	if p.Limited {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	if remaining := p.GlobalDelay - g.clock.Now().Sub(start); remaining > 0 {
		if err := g.clock.Sleep(ctx, remaining); err != nil {
			return err
		}
	}

	err := fn(ctx)
	var reqErr *RequestError
	if p.Cooldown > 0 && errors.As(err, &reqErr) {
		_ = g.clock.Sleep(ctx, p.Cooldown)
	}
	return err
}
