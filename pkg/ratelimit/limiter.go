// Package ratelimit bounds the pace of operations on shared resources.
// The relay server runs every inbound wallet-host message through a
// limiter so a misbehaving host cannot flood the dispatch path. The
// implementation wraps Uber's token bucket limiter behind a small
// interface so it stays swappable in tests.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/ratelimit"
)

// Rate is a human-readable limit: Limit operations per Interval.
type Rate struct {
	Limit    int
	Interval time.Duration
}

// RateLimiter paces operations according to a configured Rate.
type RateLimiter interface {
	// Wait blocks until the next operation is permitted or ctx ends.
	Wait(ctx context.Context) error

	// SetLimit replaces the rate configuration at runtime.
	SetLimit(rate Rate) error
}

type uberLimiter struct {
	limiter ratelimit.Limiter
	rate    Rate
}

// NewTokenBucketLimiter creates a token bucket limiter for the given
// rate. An invalid rate falls back to one operation per second rather
// than producing a limiter that cannot be constructed.
func NewTokenBucketLimiter(rate Rate) RateLimiter {
	if rate.Limit <= 0 || rate.Interval <= 0 {
		rate = Rate{Limit: 1, Interval: time.Second}
	}
	return &uberLimiter{
		limiter: newBucket(rate),
		rate:    rate,
	}
}

// newBucket builds the underlying limiter. Sub-second intervals and
// rates below one per second are both expressed exactly through Per.
func newBucket(rate Rate) ratelimit.Limiter {
	return ratelimit.New(rate.Limit, ratelimit.Per(rate.Interval))
}

// Wait implements the RateLimiter interface.
func (l *uberLimiter) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limit wait cancelled: %w", ctx.Err())
	default:
		l.limiter.Take()
		return nil
	}
}

// SetLimit implements the RateLimiter interface.
func (l *uberLimiter) SetLimit(rate Rate) error {
	if rate.Limit <= 0 || rate.Interval <= 0 {
		return fmt.Errorf("invalid rate limit: %+v", rate)
	}
	l.limiter = newBucket(rate)
	l.rate = rate
	return nil
}
