// Package history provides per-key at-most-one in-flight execution, a
// replay throttle, and a seen-set used to exclude previously surfaced
// recommendations. The in-flight coalescing is built directly on
// golang.org/x/sync/singleflight rather than a hand-rolled map of
// channels, since it is the canonical idiomatic-Go expression of that
// requirement.
package history

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"recoforge/pkg/catalog"
)

const (
	defaultMinInterval    = 5 * time.Second
	defaultRetention      = 10 * time.Minute
	defaultCleanupCadence = time.Minute
)

// Store coalesces concurrent fetches per key, throttles replay cadence, and
// tracks which recommendation keys have already been surfaced.
type Store struct {
	sf singleflight.Group

	mu          sync.Mutex
	seen        map[string]time.Time
	lastFetched map[string]time.Time

	minInterval    time.Duration
	retention      time.Duration
	cleanupCadence time.Duration

	stop chan struct{}
	once sync.Once
}

// Option configures a Store at construction.
type Option func(*Store)

// WithMinInterval overrides the default 5s replay throttle.
func WithMinInterval(d time.Duration) Option { return func(s *Store) { s.minInterval = d } }

// WithRetention overrides the default 10m history retention window.
func WithRetention(d time.Duration) Option { return func(s *Store) { s.retention = d } }

// WithCleanupCadence overrides the default 1m cleanup sweep cadence.
func WithCleanupCadence(d time.Duration) Option { return func(s *Store) { s.cleanupCadence = d } }

// New creates a history store and starts its background cleanup sweep.
func New(opts ...Option) *Store {
	s := &Store{
		seen:           make(map[string]time.Time),
		lastFetched:    make(map[string]time.Time),
		minInterval:    defaultMinInterval,
		retention:      defaultRetention,
		cleanupCadence: defaultCleanupCadence,
		stop:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.cleanupLoop()
	return s
}

// Close stops the background cleanup sweep.
func (s *Store) Close() {
	s.once.Do(func() { close(s.stop) })
}

// Run executes action with at-most-one in-flight invocation per key,
// applying the replay throttle first: if the key was last fetched less
// than minInterval ago, Run sleeps the remaining difference before
// invoking action. Concurrent callers with the same key share the single
// in-flight result.
func (s *Store) Run(key string, action func() (any, error)) (any, error) {
	s.throttle(key)

	v, err, _ := s.sf.Do(key, action)
	if err == nil {
		s.mu.Lock()
		s.lastFetched[key] = time.Now()
		s.mu.Unlock()
	}
	return v, err
}

func (s *Store) throttle(key string) {
	s.mu.Lock()
	last, ok := s.lastFetched[key]
	s.mu.Unlock()
	if !ok {
		return
	}
	if wait := s.minInterval - time.Since(last); wait > 0 {
		time.Sleep(wait)
	}
}

// Dedupe removes in-batch duplicates by normalized key (first occurrence
// wins), dropping items with an empty identity key, and inserts survivors
// into the seen set.
func (s *Store) Dedupe(mode catalog.Mode, items []catalog.Recommendation) []catalog.Recommendation {
	out := make([]catalog.Recommendation, 0, len(items))
	localSeen := make(map[string]struct{}, len(items))

	for _, item := range items {
		if !item.Valid(mode) {
			continue
		}
		key := item.Key(mode)
		if _, dup := localSeen[key]; dup {
			continue
		}
		localSeen[key] = struct{}{}
		out = append(out, item)
	}

	s.mu.Lock()
	now := time.Now()
	for key := range localSeen {
		s.seen[key] = now
	}
	s.mu.Unlock()

	return out
}

// Filter removes items whose normalized key is already in history, unless
// sessionAllow contains that key.
func (s *Store) Filter(mode catalog.Mode, items []catalog.Recommendation, sessionAllow map[string]struct{}) []catalog.Recommendation {
	out := make([]catalog.Recommendation, 0, len(items))

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		key := item.Key(mode)
		if _, allowed := sessionAllow[key]; allowed {
			out = append(out, item)
			continue
		}
		if _, seen := s.seen[key]; seen {
			continue
		}
		out = append(out, item)
	}
	return out
}

// Clear empties the seen-set history.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = make(map[string]time.Time)
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupCadence)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.evictStale()
		}
	}
}

func (s *Store) evictStale() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, last := range s.lastFetched {
		if now.Sub(last) > s.retention {
			delete(s.lastFetched, key)
		}
	}
	for key, added := range s.seen {
		if now.Sub(added) > s.retention {
			delete(s.seen, key)
		}
	}
}
