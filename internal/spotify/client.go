// Package spotify adapts the Spotify Web API to the catalog operations the
// selection engine needs: batch artist lookup, top tracks, related artists
// and search.
//
// Every call is rate limited, guarded by a circuit breaker and retried with
// bounded exponential backoff.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/time/rate"

	"github.com/justestif/go-dual-gravity/internal/logging"
)

// Spotify API limits.
const (
	maxArtistsPerRequest = 50
	maxSearchLimit       = 50
)

// Defaults for the resilience wrappers.
const (
	DefaultMarket      = "US"
	DefaultRatePerSec  = 10
	DefaultBurst       = 5
	DefaultMaxRetries  = 3
	DefaultBaseBackoff = 500 * time.Millisecond
)

// Observer receives per-call instrumentation. Implementations must be safe
// for concurrent use.
type Observer interface {
	ObserveCall(op string, d time.Duration, err error)
	BreakerStateChanged(from, to string)
}

type nopObserver struct{}

func (nopObserver) ObserveCall(string, time.Duration, error) {}
func (nopObserver) BreakerStateChanged(string, string)       {}

// Client wraps the Spotify API client with resilience and domain conversion.
type Client struct {
	api         *spotify.Client
	market      string
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker[struct{}]
	maxRetries  int
	baseBackoff time.Duration
	observer    Observer
}

// Option configures a Client.
type Option func(*Client)

// WithMarket sets the market used for top tracks and track search.
func WithMarket(market string) Option {
	return func(c *Client) {
		if market != "" {
			c.market = market
		}
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(perSec float64, burst int) Option {
	return func(c *Client) {
		if perSec > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
		}
	}
}

// WithRetry sets the retry budget and base backoff.
func WithRetry(maxRetries int, baseBackoff time.Duration) Option {
	return func(c *Client) {
		if maxRetries > 0 {
			c.maxRetries = maxRetries
		}
		if baseBackoff > 0 {
			c.baseBackoff = baseBackoff
		}
	}
}

// WithObserver reports call latency, errors and breaker transitions.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		if o != nil {
			c.observer = o
		}
	}
}

// New creates a new Spotify client wrapper.
// The underlying client should already be authenticated.
func New(api *spotify.Client, opts ...Option) *Client {
	c := &Client{
		api:         api,
		market:      DefaultMarket,
		limiter:     rate.NewLimiter(rate.Limit(DefaultRatePerSec), DefaultBurst),
		maxRetries:  DefaultMaxRetries,
		baseBackoff: DefaultBaseBackoff,
		observer:    nopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = newBreaker(c.observer)
	return c
}

// call runs fn under the rate limiter, circuit breaker and retry policy.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	attempts := 0
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("waiting for rate limiter: %w", err))
		}
		attempts++
		start := time.Now()
		_, err := c.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, fn(ctx)
		})
		c.observer.ObserveCall(op, time.Since(start), err)
		if err != nil && !shouldRetry(ctx, err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logging.Warn().Err(err).Str("op", op).Int("attempt", attempts).Int("max", c.maxRetries).
			Dur("backoff", wait).Msg("spotify: retrying request")
	}

	err := backoff.RetryNotify(operation, c.retryPolicy(ctx), notify)
	switch {
	case err == nil:
		return nil
	case attempts == c.maxRetries && shouldRetry(ctx, err):
		return fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// retryPolicy doubles the wait from baseBackoff, without jitter, for at
// most maxRetries attempts in total.
func (c *Client) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.baseBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries-1)), ctx)
}

// shouldRetry retries transport failures, 429s and 5xx responses. Client
// errors, an open breaker and caller cancellation are final.
func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	return isServerSide(err)
}
