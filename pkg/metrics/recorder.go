// Package metrics defines the injected metrics sink the core reports
// through, replacing the ambient-global-counters pattern with an explicit
// Recorder interface and three implementations: Noop, Internal, and
// Prometheus.
package metrics

// Recorder accepts (name, value, tags) tuples for every named metric §6
// requires: prompt.actual_tokens, prompt.compression_ratio,
// prompt.plan_cache_hit, rate.rejected, rate.queued,
// health.consecutive_failures, fetch.elapsed_ms.
type Recorder interface {
	// Observe records a numeric sample for a named metric with ASCII tag keys.
	Observe(name string, value float64, tags map[string]string)
	// Inc increments a named counter by 1 with the given tags.
	Inc(name string, tags map[string]string)
}

// Noop discards every observation; used in tests and wherever metrics are
// disabled.
type Noop struct{}

// Nop returns a Recorder that discards all metrics.
func Nop() Recorder { return Noop{} }

func (Noop) Observe(string, float64, map[string]string) {}
func (Noop) Inc(string, map[string]string)               {}
