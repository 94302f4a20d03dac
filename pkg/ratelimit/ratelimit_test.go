package ratelimit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"recoforge/pkg/generrors"
)

func noopAction(context.Context) (any, error) { return "ok", nil }

func TestExecuteConsumesToken(t *testing.T) {
	l := New()
	l.Configure("backend-a", BucketConfig{MaxRequests: 1, Period: time.Second, MaxQueueSize: 0})

	if _, err := l.Execute(context.Background(), "backend-a", noopAction); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	stats, ok := l.Stats("backend-a")
	if !ok {
		t.Fatalf("Stats() missing resource")
	}
	if stats.InPeriod != 1 {
		t.Errorf("InPeriod = %d, want 1", stats.InPeriod)
	}
}

// TestQueueFullRejectsImmediately covers S3: with no queue capacity, a
// second concurrent caller against an exhausted bucket fails fast instead
// of waiting.
func TestQueueFullRejectsImmediately(t *testing.T) {
	l := New()
	l.Configure("backend-a", BucketConfig{MaxRequests: 1, Period: time.Second, MaxQueueSize: 0})

	blocking := make(chan struct{})
	var entered int32
	go func() {
		_, _ = l.Execute(context.Background(), "backend-a", func(ctx context.Context) (any, error) {
			atomic.AddInt32(&entered, 1)
			<-blocking
			return nil, nil
		})
	}()

	// Wait for the first caller to actually hold the token.
	for i := 0; i < 200 && atomic.LoadInt32(&entered) == 0; i++ {
		time.Sleep(time.Millisecond)
	}

	_, err := l.Execute(context.Background(), "backend-a", noopAction)
	close(blocking)

	if !generrors.Is(err, generrors.RateLimitRejected) {
		t.Fatalf("second Execute() error = %v, want RateLimitRejected", err)
	}
}

func TestUnconfiguredResourceIsInvalidConfig(t *testing.T) {
	l := New()
	_, err := l.Execute(context.Background(), "missing", noopAction)
	if !generrors.Is(err, generrors.InvalidConfig) {
		t.Fatalf("error = %v, want InvalidConfig", err)
	}
}

func TestCancellationDuringAdmission(t *testing.T) {
	l := New()
	l.Configure("backend-a", BucketConfig{MaxRequests: 0, Period: time.Second, MaxQueueSize: 5})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Execute(ctx, "backend-a", noopAction)
	if !generrors.Is(err, generrors.Cancelled) {
		t.Fatalf("error = %v, want Cancelled", err)
	}
}

func TestRefillIsMonotonic(t *testing.T) {
	b := newBucket(BucketConfig{MaxRequests: 10, Period: time.Second, MaxQueueSize: 0})
	b.tokens = 0
	b.lastRefill = time.Now().Add(time.Hour) // simulate a backward wall-clock jump

	b.mu.Lock()
	b.refillLocked()
	tokens := b.tokens
	b.mu.Unlock()

	if tokens != 0 {
		t.Errorf("tokens after backward clock jump = %v, want 0", tokens)
	}
}
