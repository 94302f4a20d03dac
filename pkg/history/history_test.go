package history

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"recoforge/pkg/catalog"
)

// TestRunCoalescesConcurrentCallers covers S4: ten concurrent callers with
// the same key observe exactly one underlying invocation.
func TestRunCoalescesConcurrentCallers(t *testing.T) {
	s := New(WithMinInterval(0))
	defer s.Close()

	var invocations int32
	var wg sync.WaitGroup
	results := make([]any, 10)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			v, err := s.Run("same-key", func() (any, error) {
				atomic.AddInt32(&invocations, 1)
				time.Sleep(20 * time.Millisecond)
				return "result", nil
			})
			if err != nil {
				t.Errorf("Run() error = %v", err)
			}
			results[idx] = v
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&invocations); got != 1 {
		t.Fatalf("invocations = %d, want 1", got)
	}
	for _, r := range results {
		if r != "result" {
			t.Errorf("result = %v, want %q", r, "result")
		}
	}
}

func TestDedupeIdempotentAndUnique(t *testing.T) {
	s := New(WithMinInterval(0))
	defer s.Close()

	items := []catalog.Recommendation{
		{Artist: "Artist A", Album: "Album X"},
		{Artist: "artist a", Album: "album x"},
		{Artist: "Artist B", Album: "Album Y"},
		{Artist: "", Album: "Ghost"},
	}

	once := s.Dedupe(catalog.ModeAlbum, items)
	if len(once) != 2 {
		t.Fatalf("Dedupe() len = %d, want 2", len(once))
	}

	twice := s.Dedupe(catalog.ModeAlbum, once)
	if len(twice) != len(once) {
		t.Fatalf("Dedupe(Dedupe(x)) changed length: %d vs %d", len(twice), len(once))
	}

	seenKeys := make(map[string]bool)
	for _, it := range twice {
		k := it.Key(catalog.ModeAlbum)
		if seenKeys[k] {
			t.Fatalf("duplicate key %q survived Dedupe", k)
		}
		seenKeys[k] = true
	}
}

func TestFilterRespectsHistory(t *testing.T) {
	s := New(WithMinInterval(0))
	defer s.Close()

	items := []catalog.Recommendation{{Artist: "X", Album: "Y"}}
	s.Dedupe(catalog.ModeAlbum, items)

	filtered := s.Filter(catalog.ModeAlbum, items, nil)
	if len(filtered) != 0 {
		t.Fatalf("Filter() len = %d, want 0 for already-seen item", len(filtered))
	}

	allow := map[string]struct{}{items[0].Key(catalog.ModeAlbum): {}}
	allowed := s.Filter(catalog.ModeAlbum, items, allow)
	if len(allowed) != 1 {
		t.Fatalf("Filter() with sessionAllow len = %d, want 1", len(allowed))
	}
}

func TestClearEmptiesHistory(t *testing.T) {
	s := New(WithMinInterval(0))
	defer s.Close()

	items := []catalog.Recommendation{{Artist: "X", Album: "Y"}}
	s.Dedupe(catalog.ModeAlbum, items)
	s.Clear()

	filtered := s.Filter(catalog.ModeAlbum, items, nil)
	if len(filtered) != 1 {
		t.Fatalf("Filter() after Clear() len = %d, want 1", len(filtered))
	}
}

func TestThrottleDelaysReplay(t *testing.T) {
	s := New(WithMinInterval(50 * time.Millisecond))
	defer s.Close()

	start := time.Now()
	_, _ = s.Run("key", func() (any, error) { return nil, nil })
	_, _ = s.Run("key", func() (any, error) { return nil, nil })
	elapsed := time.Since(start)

	if elapsed < 50*time.Millisecond {
		t.Fatalf("second Run() returned after %v, want >= 50ms throttle", elapsed)
	}
}
