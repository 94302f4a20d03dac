// Package ratelimit implements a per-resource token-bucket admission gate
// with a bounded admission queue and backpressure, adapted from the
// resilience middleware's TokenBucketLimiter onto a resource-keyed,
// continuously refilled bucket. Queued callers poll for a token every
// 10ms; the order in which queued callers are served is not defined.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"recoforge/pkg/generrors"
)

// BucketConfig configures a single resource's admission gate.
type BucketConfig struct {
	MaxRequests  int           // token bucket capacity
	Period       time.Duration // time to refill the full capacity
	MaxQueueSize int           // admitted-but-waiting callers allowed before fast failure
	Timeout      time.Duration // max time a caller waits after admission; zero means no extra cap beyond ctx
}

// Stats reports a resource's current counters.
type Stats struct {
	InPeriod   int64 // successful executions
	Queued     int   // callers currently waiting for a token
	Rejected   int64 // admissions refused due to a full queue
	AvgWaitMs  float64
}

// Limiter gates execution of actions per named resource via independent
// token buckets.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// New creates an empty rate limiter. Resources must be configured via
// Configure before Execute is called against them.
func New() *Limiter {
	return &Limiter{buckets: make(map[string]*bucket)}
}

// Configure installs or replaces the bucket configuration for a resource.
// Existing tokens are preserved, clamped to the new capacity.
func (l *Limiter) Configure(resource string, cfg BucketConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[resource]
	if !ok {
		l.buckets[resource] = newBucket(cfg)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg = cfg
	if b.tokens > float64(cfg.MaxRequests) {
		b.tokens = float64(cfg.MaxRequests)
	}
}

// Execute admits a single invocation of action against resource, blocking
// (without holding any lock across the wait) until a token is available,
// the admission queue is full, or ctx/timeout expires.
func (l *Limiter) Execute(ctx context.Context, resource string, action func(context.Context) (any, error)) (any, error) {
	l.mu.Lock()
	b, ok := l.buckets[resource]
	l.mu.Unlock()
	if !ok {
		return nil, generrors.New(generrors.InvalidConfig, fmt.Sprintf("rate limiter: resource %q not configured", resource))
	}

	release, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	return action(ctx)
}

// Stats returns a snapshot of the named resource's counters.
func (l *Limiter) Stats(resource string) (Stats, bool) {
	l.mu.Lock()
	b, ok := l.buckets[resource]
	l.mu.Unlock()
	if !ok {
		return Stats{}, false
	}
	return b.stats(), true
}

type bucket struct {
	mu sync.Mutex

	cfg        BucketConfig
	tokens     float64
	lastRefill time.Time
	queued     int

	successCount int64
	rejected     int64
	waitSum      time.Duration
	waitCount    int64
}

func newBucket(cfg BucketConfig) *bucket {
	return &bucket{
		cfg:        cfg,
		tokens:     float64(cfg.MaxRequests),
		lastRefill: time.Now(),
	}
}

// acquire takes an already-available token immediately, with no queue
// admission check at all. Only a caller that actually has to wait is
// counted against MaxQueueSize, so a zero-size queue still admits any
// caller a token is currently available for. The returned release
// function must always be called.
func (b *bucket) acquire(ctx context.Context) (func(), error) {
	b.mu.Lock()
	b.refillLocked()
	if b.tokens >= 1 {
		b.tokens--
		b.successCount++
		b.waitCount++
		b.mu.Unlock()
		return func() {}, nil
	}
	if b.queued >= b.cfg.MaxQueueSize {
		b.mu.Unlock()
		b.recordRejected()
		return nil, generrors.New(generrors.RateLimitRejected, "admission queue full")
	}
	b.queued++
	b.mu.Unlock()

	released := false
	releaseQueueSlot := func() {
		if released {
			return
		}
		released = true
		b.mu.Lock()
		b.queued--
		b.mu.Unlock()
	}

	waitCtx := ctx
	var cancel context.CancelFunc
	if b.cfg.Timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	for {
		b.mu.Lock()
		b.refillLocked()
		if b.tokens >= 1 {
			b.tokens--
			b.successCount++
			b.waitSum += time.Since(start)
			b.waitCount++
			b.mu.Unlock()
			releaseQueueSlot()
			return func() {}, nil
		}
		b.mu.Unlock()

		select {
		case <-waitCtx.Done():
			releaseQueueSlot()
			if ctx.Err() != nil {
				return nil, generrors.NewWithCause(generrors.Cancelled, ctx.Err(), "rate limit wait cancelled")
			}
			return nil, generrors.NewWithCause(generrors.DeadlineExceeded, waitCtx.Err(), "rate limit admission timed out")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// refillLocked adds tokens accrued since the last refill, clamped to
// capacity. Must be called with b.mu held. Negative elapsed durations
// (a backward wall-clock jump) never add tokens.
func (b *bucket) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill)
	b.lastRefill = now
	if elapsed <= 0 || b.cfg.Period <= 0 {
		return
	}
	b.tokens += elapsed.Seconds() / b.cfg.Period.Seconds() * float64(b.cfg.MaxRequests)
	if b.tokens > float64(b.cfg.MaxRequests) {
		b.tokens = float64(b.cfg.MaxRequests)
	}
}

func (b *bucket) recordRejected() {
	b.mu.Lock()
	b.rejected++
	b.mu.Unlock()
}

func (b *bucket) stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	avg := 0.0
	if b.waitCount > 0 {
		avg = float64(b.waitSum.Milliseconds()) / float64(b.waitCount)
	}

	return Stats{
		InPeriod:  b.successCount,
		Queued:    b.queued,
		Rejected:  b.rejected,
		AvgWaitMs: avg,
	}
}
