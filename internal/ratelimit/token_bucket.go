// Package ratelimit implements token bucket rate limiting, keyed by
// (accountId, apiFamily) per spec §5 ("shared resources... a rate-limit
// bucket per (accountId, apiFamily)"). The bucket algorithm itself is
// relocated from the teacher's internal/logic/ratelimit/token_bucket.go
// (patrickwarner-openadserve), which keyed buckets by line item; this
// keeps the same refill math and re-keys the registry to external-API
// call sites instead.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/patrickwarner/bidops/internal/observability"
)

// TokenBucket is a thread-safe token bucket rate limiter. The bucket has a
// fixed capacity and refills at a constant rate; each Allow() call
// consumes one token.
type TokenBucket struct {
	capacity   int
	tokens     int
	refillRate int
	lastRefill time.Time
	mu         sync.Mutex
	hitCount   int64
	totalCount int64
}

// NewTokenBucket creates a token bucket starting full.
func NewTokenBucket(capacity, refillRate int) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow attempts to consume one token, refilling first based on elapsed
// time. Returns false when the bucket is empty.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.totalCount++

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)
	tokensToAdd := int(elapsed.Seconds() * float64(tb.refillRate))
	if tokensToAdd > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+tokensToAdd)
		tb.lastRefill = now
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}

	tb.hitCount++
	return false
}

// Stats returns rate-limit hit/total counters for this bucket.
func (tb *TokenBucket) Stats() (hits, total int64) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.hitCount, tb.totalCount
}

// Wait blocks until a token is available or ctx is cancelled, implementing
// spec §5's "callers suspend until refill" (rather than the teacher's
// fire-and-forget Allow, which only reports the outcome). It polls at the
// bucket's own refill cadence instead of busy-spinning.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		if tb.Allow() {
			return nil
		}
		timer := time.NewTimer(tb.refillInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// refillInterval is how long one token takes to regenerate, floored to
// avoid a zero-duration timer when refillRate is unset.
func (tb *TokenBucket) refillInterval() time.Duration {
	if tb.refillRate <= 0 {
		return 100 * time.Millisecond
	}
	d := time.Second / time.Duration(tb.refillRate)
	if d < time.Millisecond {
		return time.Millisecond
	}
	return d
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Registry holds one TokenBucket per (accountID, apiFamily) pair, created
// lazily on first use.
type Registry struct {
	capacity   int
	refillRate int
	metrics    observability.MetricsRegistry

	mu      sync.Mutex
	buckets map[string]*TokenBucket
}

// NewRegistry returns a Registry where every bucket shares the given
// capacity and refill rate (spec §6 config surface).
func NewRegistry(capacity, refillRate int, metrics observability.MetricsRegistry) *Registry {
	return &Registry{
		capacity:   capacity,
		refillRate: refillRate,
		metrics:    metrics,
		buckets:    make(map[string]*TokenBucket),
	}
}

func bucketKey(accountID, apiFamily string) string {
	return accountID + "|" + apiFamily
}

// Allow checks and consumes one token from the (accountID, apiFamily)
// bucket, creating it on first use.
func (r *Registry) Allow(accountID, apiFamily string) bool {
	r.mu.Lock()
	key := bucketKey(accountID, apiFamily)
	bucket, ok := r.buckets[key]
	if !ok {
		bucket = NewTokenBucket(r.capacity, r.refillRate)
		r.buckets[key] = bucket
	}
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.IncrementRateLimitRequests(accountID, apiFamily)
	}
	allowed := bucket.Allow()
	if !allowed && r.metrics != nil {
		r.metrics.IncrementRateLimitHits(accountID, apiFamily)
	}
	return allowed
}

// Wait blocks until the (accountID, apiFamily) bucket yields a token or ctx
// is cancelled (spec §5: "when exhausted, callers suspend until refill").
func (r *Registry) Wait(ctx context.Context, accountID, apiFamily string) error {
	r.mu.Lock()
	key := bucketKey(accountID, apiFamily)
	bucket, ok := r.buckets[key]
	if !ok {
		bucket = NewTokenBucket(r.capacity, r.refillRate)
		r.buckets[key] = bucket
	}
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.IncrementRateLimitRequests(accountID, apiFamily)
	}
	return bucket.Wait(ctx)
}
