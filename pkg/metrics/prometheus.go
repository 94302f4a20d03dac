package metrics

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus implements Recorder over a small fixed set of vectors keyed by
// the spec's metric names, with tag keys sorted into a stable label set so
// CounterVec/HistogramVec can be shared across arbitrary tag combinations.
type Prometheus struct {
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// metricSpec names the label set each of the spec's metric names carries.
//
//nolint:gochecknoglobals // fixed metric catalog
var metricSpec = map[string][]string{
	"prompt.actual_tokens":        {"backend", "model"},
	"prompt.compression_ratio":    {"backend", "model"},
	"prompt.plan_cache_hit":       {"backend"},
	"rate.rejected":               {"resource"},
	"rate.queued":                 {"resource"},
	"health.consecutive_failures": {"backend"},
	"fetch.elapsed_ms":            {"backend"},
}

// NewPrometheus builds a Prometheus recorder pre-registering a
// counter+histogram pair for every metric name in the spec's catalog.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
	for name, labels := range metricSpec {
		sorted := append([]string(nil), labels...)
		sort.Strings(sorted)
		metricName := sanitizeName(name)
		p.counters[name] = promauto.NewCounterVec(
			prometheus.CounterOpts{Name: metricName + "_total", Help: "recoforge metric " + name},
			sorted,
		)
		p.histograms[name] = promauto.NewHistogramVec(
			prometheus.HistogramOpts{Name: metricName, Help: "recoforge metric " + name, Buckets: prometheus.DefBuckets},
			sorted,
		)
	}
	return p
}

func sanitizeName(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			out[i] = '_'
		} else {
			out[i] = name[i]
		}
	}
	return string(out)
}

func labelValues(name string, tags map[string]string) []string {
	labels := metricSpec[name]
	sorted := append([]string(nil), labels...)
	sort.Strings(sorted)
	values := make([]string, len(sorted))
	for i, l := range sorted {
		values[i] = tags[l]
	}
	return values
}

// Observe records value for a known metric name into its histogram.
func (p *Prometheus) Observe(name string, value float64, tags map[string]string) {
	h, ok := p.histograms[name]
	if !ok {
		return
	}
	h.WithLabelValues(labelValues(name, tags)...).Observe(value)
}

// Inc increments a known metric's counter.
func (p *Prometheus) Inc(name string, tags map[string]string) {
	c, ok := p.counters[name]
	if !ok {
		return
	}
	c.WithLabelValues(labelValues(name, tags)...).Inc()
}
