package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/patrickwarner/bidops/internal/observability"
)

func TestTokenBucketAllowsUpToCapacityThenBlocks(t *testing.T) {
	tb := NewTokenBucket(3, 1)
	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Fatalf("expected token %d to be allowed while bucket is full", i)
		}
	}
	if tb.Allow() {
		t.Fatalf("expected the 4th call to be denied once the bucket is empty")
	}
	hits, total := tb.Stats()
	if hits != 1 || total != 4 {
		t.Fatalf("expected hits=1 total=4, got hits=%d total=%d", hits, total)
	}
}

func TestTokenBucketRefillsOverTime(t *testing.T) {
	tb := NewTokenBucket(2, 100)
	tb.Allow()
	tb.Allow()
	if tb.Allow() {
		t.Fatalf("expected the bucket to be empty immediately after draining")
	}
	tb.lastRefill = time.Now().Add(-time.Second)
	if !tb.Allow() {
		t.Fatalf("expected a refill after enough elapsed time to grant a token")
	}
}

func TestRegistryIsolatesBucketsPerAccountAndFamily(t *testing.T) {
	r := NewRegistry(1, 1, observability.NewNoOpRegistry())
	if !r.Allow("acct-1", "sp-api") {
		t.Fatalf("expected the first call for acct-1/sp-api to be allowed")
	}
	if r.Allow("acct-1", "sp-api") {
		t.Fatalf("expected the second call for the same bucket to be denied")
	}
	if !r.Allow("acct-1", "dsp-api") {
		t.Fatalf("expected a distinct apiFamily to have its own bucket")
	}
	if !r.Allow("acct-2", "sp-api") {
		t.Fatalf("expected a distinct accountID to have its own bucket")
	}
}

func TestTokenBucketWaitSucceedsOnceRefilled(t *testing.T) {
	tb := NewTokenBucket(1, 1000)
	if !tb.Allow() {
		t.Fatalf("expected the first token to be allowed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("expected Wait to succeed once the bucket refills, got %v", err)
	}
}

func TestTokenBucketWaitReturnsOnContextCancellation(t *testing.T) {
	tb := NewTokenBucket(1, 1)
	tb.Allow()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tb.Wait(ctx); err == nil {
		t.Fatalf("expected Wait to return an error once ctx is cancelled")
	}
}

func TestRegistryWaitSuspendsUntilRefill(t *testing.T) {
	r := NewRegistry(1, 1000, observability.NewNoOpRegistry())
	if !r.Allow("acct-1", "proposals") {
		t.Fatalf("expected the first call to be allowed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Wait(ctx, "acct-1", "proposals"); err != nil {
		t.Fatalf("expected Wait to succeed once the bucket refills, got %v", err)
	}
}
