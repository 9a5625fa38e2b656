package ratelimit

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRateLimited is returned by Check when an attempt is refused.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps backend failures from RedisLimiter.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Config holds limiter tuning parameters.
type Config struct {
	Window        time.Duration
	MaxAttempts   int
	BlockDuration time.Duration
}

// DefaultConfig allows 10 attempts per 15 minutes and blocks for 30.
func DefaultConfig() Config {
	return Config{
		Window:        15 * time.Minute,
		MaxAttempts:   10,
		BlockDuration: 30 * time.Minute,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.Window <= 0 {
		return errors.New("rate limit window must be > 0")
	}
	if c.MaxAttempts <= 0 {
		return errors.New("rate limit max attempts must be > 0")
	}
	if c.BlockDuration <= 0 {
		return errors.New("rate limit block duration must be > 0")
	}
	return nil
}

// Decision is the outcome of one attempt.
type Decision struct {
	Allowed bool
	// Remaining is the number of further attempts admitted in the window.
	Remaining int
	// RetryAfter is set when Allowed is false.
	RetryAfter time.Duration
}

// Limiter records attempts per key.
type Limiter interface {
	// Allow records an attempt for key and reports whether it is admitted.
	Allow(ctx context.Context, key string) (Decision, error)
	// Reset forgets all attempts and any block for key.
	Reset(ctx context.Context, key string) error
}

// Check is Allow that folds a refusal into ErrRateLimited.
func Check(ctx context.Context, l Limiter, key string) (Decision, error) {
	d, err := l.Allow(ctx, key)
	if err != nil {
		return d, err
	}
	if !d.Allowed {
		return d, ErrRateLimited
	}
	return d, nil
}
