package ratelimit

import (
	"context"
	"time"
)

// Result contains the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
	RetryIn   time.Duration
}

// Limiter is a sliding-window rate limiter keyed by caller-chosen buckets.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*Result, error)
	Reset(ctx context.Context, key string) error
}
