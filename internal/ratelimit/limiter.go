// Package ratelimit provides per-key token bucket rate limiting for the HTTP
// API (keyed by client address) and the MCP tools (keyed by tool name).
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Limiter implements a per-key token bucket rate limiter.
// Each key gets its own bucket with the configured rate and burst.
// It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   int
	nowFunc func() time.Time
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewLimiter creates a limiter refilling rate tokens per second up to burst.
// New keys start with a full bucket.
func NewLimiter(rate float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		nowFunc: time.Now,
	}
}

// Allow takes one token from key's bucket and reports whether one was available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), seen: now}
		l.buckets[key] = b
	}

	if elapsed := now.Sub(b.seen).Seconds(); elapsed > 0 {
		b.tokens = min(b.tokens+l.rate*elapsed, float64(l.burst))
		b.seen = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RetryAfter estimates how long key must wait for its next token.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || b.tokens >= 1 || l.rate <= 0 {
		return 0
	}
	return time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
}

// Sweep drops buckets idle for longer than idle and returns how many were
// removed. A dropped key starts again with a full bucket, which is what a
// refill over that idle period would have produced.
func (l *Limiter) Sweep(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.nowFunc().Add(-idle)
	removed := 0
	for key, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// ToolLimiters maps MCP tool names to their limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters returns the default per-tool limits. Tuning runs many
// batches per call and gets the tightest budget.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"simcore_simulate": NewLimiter(1.0, 10),     // 60/minute, burst 10
		"simcore_tune":     NewLimiter(5.0/60.0, 1), // 5/minute, burst 1
		"simcore_runs":     NewLimiter(1.0, 10),     // 60/minute, burst 10
	}
}

// Check returns an error when toolName is over its limit. Tools without a
// limiter are never limited.
func (t ToolLimiters) Check(toolName string) error {
	limiter, ok := t[toolName]
	if !ok {
		return nil
	}
	if !limiter.Allow(toolName) {
		return fmt.Errorf("rate limit exceeded for %s, please try again shortly", toolName)
	}
	return nil
}
