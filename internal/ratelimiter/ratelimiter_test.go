package ratelimiter

import (
	"context"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		perSecond uint
		burst     uint
		unlimited bool
	}{
		{name: "standard rate", perSecond: 100, burst: 200},
		{name: "zero burst", perSecond: 1, burst: 0},
		{name: "unlimited", perSecond: 0, burst: 0, unlimited: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := New(tt.perSecond, tt.burst)
			if limiter.Unlimited() != tt.unlimited {
				t.Fatalf("Unlimited() = %v, want %v", limiter.Unlimited(), tt.unlimited)
			}
			if !limiter.Allow() {
				t.Fatal("first request should be allowed")
			}
		})
	}
}

func TestAllowEnforcesBurst(t *testing.T) {
	limiter := New(10, 10)

	for i := 0; i < 10; i++ {
		if !limiter.Allow() {
			t.Fatalf("request %d should be allowed (within burst)", i)
		}
	}
	if limiter.Allow() {
		t.Fatal("request beyond burst should be rejected")
	}
}

func TestUnlimitedNeverBlocks(t *testing.T) {
	limiter := New(0, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	for i := 0; i < 10000; i++ {
		if err := limiter.Wait(ctx); err != nil {
			t.Fatalf("Wait() on unlimited limiter failed at %d: %v", i, err)
		}
	}
}

func TestWaitRespectsCancellation(t *testing.T) {
	limiter := New(1, 1)
	if !limiter.Allow() {
		t.Fatal("first request should be allowed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := limiter.Wait(ctx); err == nil {
		t.Fatal("Wait() should fail on a cancelled context")
	}
}

func TestWaitThrottles(t *testing.T) {
	limiter := New(20, 1)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := limiter.Wait(ctx); err != nil {
			t.Fatalf("Wait() failed: %v", err)
		}
	}
	// The first token is immediate, the next two take 50ms each.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("three waits took %v, expected at least ~100ms", elapsed)
	}
}
