package venue

import (
	"context"
	"testing"
	"time"
)

func TestNewTokenBucketStartsFull(t *testing.T) {
	t.Parallel()
	tb := newTokenBucket(10, 1)
	if tb.tokens != 10 {
		t.Errorf("tokens = %v, want 10", tb.tokens)
	}
}

func TestTokenBucketWaitImmediateWhileTokensRemain(t *testing.T) {
	t.Parallel()
	tb := newTokenBucket(5, 1)

	for i := 0; i < 5; i++ {
		start := time.Now()
		if err := tb.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() returned error: %v", err)
		}
		if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
			t.Errorf("Wait() took %v, expected immediate (token %d)", elapsed, i)
		}
	}
}

func TestTokenBucketWaitBlocksUntilRefill(t *testing.T) {
	t.Parallel()
	tb := newTokenBucket(1, 10) // refills ~100ms/token

	if err := tb.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Wait() returned after %v, expected to block for a refill", elapsed)
	}
}

func TestTokenBucketWaitRespectsContextCancellation(t *testing.T) {
	t.Parallel()
	tb := newTokenBucket(1, 1)
	tb.Wait(context.Background()) // drain the only token

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := tb.Wait(ctx)
	if err == nil {
		t.Error("Wait() with an exhausted bucket and a short deadline = nil error, want context deadline error")
	}
}
