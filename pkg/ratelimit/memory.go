package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is a process-local Limiter used when no Redis is configured.
// Buckets are not shared across instances.
type MemoryLimiter struct {
	mu        sync.Mutex
	buckets   map[string][]time.Time
	now       func() time.Time
	lastSweep time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		buckets: make(map[string][]time.Time),
		now:     time.Now,
	}
}

func (m *MemoryLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	windowStart := now.Add(-window)

	// Keys that stop sending never get trimmed on their own, so sweep them
	// here to keep the map from growing forever.
	if now.Sub(m.lastSweep) > window {
		for k, entries := range m.buckets {
			if k == key {
				continue
			}
			trimmed := trim(entries, windowStart)
			if len(trimmed) == 0 {
				delete(m.buckets, k)
			} else {
				m.buckets[k] = trimmed
			}
		}
		m.lastSweep = now
	}

	kept := trim(m.buckets[key], windowStart)

	if int64(len(kept)) < limit {
		m.buckets[key] = append(kept, now)
		return &Result{
			Allowed:   true,
			Remaining: limit - int64(len(kept)) - 1,
			ResetAt:   now.Add(window),
		}, nil
	}
	m.buckets[key] = kept

	res := &Result{
		Allowed: false,
		ResetAt: now.Add(window),
	}
	if len(kept) > 0 {
		res.RetryIn = kept[0].Add(window).Sub(now)
	}
	return res, nil
}

func (m *MemoryLimiter) Reset(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets, key)
	return nil
}

func trim(entries []time.Time, windowStart time.Time) []time.Time {
	kept := entries[:0]
	for _, t := range entries {
		if t.After(windowStart) {
			kept = append(kept, t)
		}
	}
	return kept
}
