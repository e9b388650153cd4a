package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// RetryConfig tunes the shared resilience wrapper.
type RetryConfig struct {
	MaxAttempts    int           // total attempts, default 3
	BaseDelay      time.Duration // backoff is BaseDelay x attempt number
	RequestTimeout time.Duration // per-attempt bound, default 15s
	RatePerSecond  float64       // outbound request rate, 0 disables
}

// Retrier wraps venue calls with per-attempt timeouts, linear-multiple
// backoff, an outbound rate limit, and a circuit breaker. One Retrier per
// adapter so a dead venue trips only its own breaker.
type Retrier struct {
	cfg     RetryConfig
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// NewRetrier builds a Retrier for one venue.
func NewRetrier(name string, cfg RetryConfig, log zerolog.Logger) *Retrier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 2 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return &Retrier{cfg: cfg, limiter: limiter, breaker: breaker, log: log}
}

// Do runs fn with the full resilience stack. Exactly MaxAttempts attempts
// are made before the error is returned; the next Do call starts fresh.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		_, err := r.breaker.Execute(func() (interface{}, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
			defer cancel()
			return nil, fn(attemptCtx)
		})
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt < r.cfg.MaxAttempts {
			delay := r.cfg.BaseDelay * time.Duration(attempt)
			r.log.Warn().Err(err).Str("op", op).
				Int("attempt", attempt).Dur("backoff", delay).
				Msg("Venue call failed, retrying")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, r.cfg.MaxAttempts, lastErr)
}
