// Package metrics provides a Generator middleware that records call
// latency and outcome through a metrics.Recorder.
package metrics

import (
	"context"
	"time"

	"recoforge/pkg/generator"
	"recoforge/pkg/metrics"
)

// Middleware wraps a Generator so every Invoke reports its elapsed time to
// recorder tagged by backend, regardless of outcome.
func Middleware(recorder metrics.Recorder, backendID string) generator.Middleware {
	if recorder == nil {
		recorder = metrics.Nop()
	}

	return func(next generator.Generator) generator.Generator {
		return generator.Wrap(
			func(ctx context.Context, prompt string) (string, error) {
				start := time.Now()
				resp, err := next.Invoke(ctx, prompt)
				elapsedMs := float64(time.Since(start).Milliseconds())

				tags := map[string]string{"backend": backendID}
				recorder.Observe("fetch.elapsed_ms", elapsedMs, tags)
				return resp, err
			},
			next.Probe,
			next.Name,
			next.UpdateModel,
		)
	}
}
