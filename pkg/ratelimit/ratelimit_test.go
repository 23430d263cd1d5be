package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAcquireAdmitsWithinBudget(t *testing.T) {
	l := NewLimiter(5, 1000)
	for i := 0; i < 5; i++ {
		res, err := l.Acquire(context.Background(), 10)
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		if res.Wait > 10*time.Millisecond {
			t.Fatalf("acquire %d should not have waited, waited %v", i, res.Wait)
		}
	}
}

func TestAcquireBlocksOnRequestRate(t *testing.T) {
	l := NewLimiter(1, 1_000_000)
	if _, err := l.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, 1); err == nil {
		t.Fatal("expected second acquire within the same second to be paced past the short timeout")
	}
}

func TestAcquireBlocksOnTokenRate(t *testing.T) {
	l := NewLimiter(1_000_000, 100)
	if _, err := l.Acquire(context.Background(), 90); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	l.RecordRequestComplete(90, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, 50); err == nil {
		t.Fatal("expected token-budget exhaustion to pace the next request")
	}
}

func TestPauseHonoredAsCooldown(t *testing.T) {
	l := NewLimiter(1_000_000, 1_000_000)
	l.Pause(15 * time.Millisecond)

	start := time.Now()
	if _, err := l.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatal("expected acquire to honor the pause cooldown")
	}
}

func TestEstimateTokensOverheadByProvider(t *testing.T) {
	largeVendor := EstimateTokens("hello world", "openai")
	other := EstimateTokens("hello world", "self-hosted")
	if largeVendor <= other {
		t.Fatalf("expected large-vendor overhead to exceed default overhead: %d vs %d", largeVendor, other)
	}
}
