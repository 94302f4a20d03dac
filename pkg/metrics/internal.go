package metrics

import (
	"sort"
	"strings"
	"sync"
)

// Internal is an in-memory metrics recorder keyed by metric name plus a
// sorted tag string, for hosts that want a debug surface without standing
// up Prometheus.
type Internal struct {
	mu      sync.RWMutex
	sums    map[string]float64
	samples map[string]int64
}

var (
	internalInstance *Internal //nolint:gochecknoglobals
	internalOnce     sync.Once //nolint:gochecknoglobals
)

// NewInternal returns a singleton in-memory recorder.
func NewInternal() *Internal {
	internalOnce.Do(func() {
		internalInstance = &Internal{
			sums:    make(map[string]float64),
			samples: make(map[string]int64),
		}
	})
	return internalInstance
}

func tagKey(name string, tags map[string]string) string {
	if len(tags) == 0 {
		return name
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(tags[k])
	}
	return b.String()
}

// Observe records value for name+tags, accumulating a running sum and count.
func (r *Internal) Observe(name string, value float64, tags map[string]string) {
	key := tagKey(name, tags)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sums[key] += value
	r.samples[key]++
}

// Inc increments a named counter by 1.
func (r *Internal) Inc(name string, tags map[string]string) {
	r.Observe(name, 1, tags)
}

// Snapshot returns the current running sum for name+tags.
func (r *Internal) Snapshot(name string, tags map[string]string) (sum float64, samples int64) {
	key := tagKey(name, tags)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sums[key], r.samples[key]
}
