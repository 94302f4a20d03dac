// Package circuit gates Generator calls on the health monitor's derived
// status, rejecting requests to a backend classified Unhealthy instead of
// calling through and waiting for another failure.
package circuit

import (
	"context"
	"fmt"
	"time"

	"recoforge/pkg/generator"
	"recoforge/pkg/generrors"
	"recoforge/pkg/health"
)

// Middleware wraps a Generator so Invoke is short-circuited whenever the
// monitor reports the backend as Unhealthy, and every call result feeds
// back into the monitor's running metrics, except rate-limit rejections,
// which leave the monitor untouched.
func Middleware(monitor *health.Monitor, backendID string) generator.Middleware {
	return func(next generator.Generator) generator.Generator {
		return generator.Wrap(
			func(ctx context.Context, prompt string) (string, error) {
				if monitor.Status(backendID) == health.Unhealthy {
					return "", generrors.New(generrors.BackendTransient,
						fmt.Sprintf("backend %s is unhealthy, rejecting request", backendID))
				}

				start := time.Now()
				resp, err := next.Invoke(ctx, prompt)
				if err != nil {
					if !generrors.Is(err, generrors.RateLimitRejected) {
						monitor.RecordFailure(backendID, err.Error())
					}
					return "", err
				}
				monitor.RecordSuccess(backendID, float64(time.Since(start).Milliseconds()))
				return resp, nil
			},
			next.Probe,
			next.Name,
			next.UpdateModel,
		)
	}
}
