// Package health reports a Generator's health-monitor state into the
// metrics recorder after every call, separate from the circuit middleware
// which gates admission on that same state.
package health

import (
	"context"

	"recoforge/pkg/generator"
	healthmon "recoforge/pkg/health"
	"recoforge/pkg/metrics"
)

// Middleware wraps a Generator so every Invoke, successful or not, reports
// the monitor's current consecutive-failure count for backendID.
func Middleware(monitor *healthmon.Monitor, backendID string, recorder metrics.Recorder) generator.Middleware {
	if recorder == nil {
		recorder = metrics.Nop()
	}

	return func(next generator.Generator) generator.Generator {
		return generator.Wrap(
			func(ctx context.Context, prompt string) (string, error) {
				resp, err := next.Invoke(ctx, prompt)
				snap := monitor.Inspect(backendID)
				recorder.Observe("health.consecutive_failures", float64(snap.ConsecutiveFailures),
					map[string]string{"backend": backendID})
				return resp, err
			},
			next.Probe,
			next.Name,
			next.UpdateModel,
		)
	}
}
