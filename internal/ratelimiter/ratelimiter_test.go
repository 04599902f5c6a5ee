package ratelimiter

import (
	"context"
	"testing"
	"time"
)

// TestNew verifies limiter creation with different parameters.
func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		rate      uint64
		burst     uint64
		wantNil   bool
		wantBurst int
	}{
		{name: "standard", rate: 1 << 20, burst: 4 << 20, wantBurst: 4 << 20},
		{name: "default burst", rate: 1000, burst: 0, wantBurst: 1000},
		{name: "capped burst", rate: 1 << 40, burst: 0, wantBurst: maxBurst},
		{name: "unlimited", rate: 0, wantNil: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			limiter := New(tt.rate, tt.burst)
			if tt.wantNil {
				if limiter != nil {
					t.Fatal("expected nil limiter for zero rate")
				}
				return
			}
			if limiter == nil {
				t.Fatal("New() returned nil")
			}
			if got := limiter.Burst(); got != tt.wantBurst {
				t.Fatalf("burst = %d, want %d", got, tt.wantBurst)
			}
		})
	}
}

// TestNilLimiter verifies a nil limiter never throttles.
func TestNilLimiter(t *testing.T) {
	var limiter *RateLimiter

	if err := limiter.WaitN(context.Background(), 1<<30); err != nil {
		t.Fatalf("WaitN on nil limiter: %v", err)
	}
	if !limiter.Allow(1 << 30) {
		t.Fatal("Allow on nil limiter should be true")
	}
	if limiter.Limit() != 0 {
		t.Fatal("nil limiter should report no limit")
	}
	limiter.SetLimit(10)
}

// TestWaitNLargerThanBurst verifies that amounts above the burst are
// charged in steps instead of failing.
func TestWaitNLargerThanBurst(t *testing.T) {
	// 1000 B/s, burst 100: 250 bytes need at least 150 bytes of refill.
	limiter := New(1000, 100)

	start := time.Now()
	if err := limiter.WaitN(context.Background(), 250); err != nil {
		t.Fatalf("WaitN: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Fatalf("WaitN returned after %v, expected throttling", elapsed)
	}
}

// TestWaitNCancelled verifies WaitN honours context cancellation.
func TestWaitNCancelled(t *testing.T) {
	limiter := New(10, 10)
	if err := limiter.WaitN(context.Background(), 10); err != nil {
		t.Fatalf("first WaitN: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := limiter.WaitN(ctx, 10); err == nil {
		t.Fatal("expected error from cancelled WaitN")
	}
}

// TestAllow verifies immediate admission and refusal.
func TestAllow(t *testing.T) {
	now := time.Now()
	timeNow = func() time.Time { return now }
	defer func() { timeNow = time.Now }()

	limiter := New(100, 100)
	if !limiter.Allow(100) {
		t.Fatal("full burst should be allowed")
	}
	if limiter.Allow(1) {
		t.Fatal("empty bucket should refuse")
	}

	now = now.Add(time.Second)
	if !limiter.Allow(100) {
		t.Fatal("bucket should refill after one second")
	}
}

// TestSetLimit verifies dynamic rate changes.
func TestSetLimit(t *testing.T) {
	limiter := New(100, 100)

	limiter.SetLimit(500)
	if got := limiter.Limit(); got != 500 {
		t.Fatalf("limit = %d, want 500", got)
	}

	limiter.SetLimit(0)
	if got := limiter.Limit(); got != 0 {
		t.Fatalf("limit = %d, want unlimited", got)
	}
}
