// Package timeout applies a per-request deadline to every Generator call.
package timeout

import (
	"context"
	"time"

	"recoforge/pkg/generator"
)

// Middleware bounds every Invoke call with duration, in addition to
// whatever deadline the caller's context already carries.
func Middleware(duration time.Duration) generator.Middleware {
	return func(next generator.Generator) generator.Generator {
		return generator.Wrap(
			func(ctx context.Context, prompt string) (string, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()
				return next.Invoke(timeoutCtx, prompt)
			},
			next.Probe,
			next.Name,
			next.UpdateModel,
		)
	}
}
