// Package retry provides retry middleware for Generators, applying each
// classified error's RetryConfig with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"recoforge/pkg/generator"
	"recoforge/pkg/generrors"
	"recoforge/pkg/logx"
)

// Middleware wraps a Generator so Invoke retries according to the
// classified error's taxonomy-derived RetryConfig instead of a single
// fixed policy.
func Middleware(logger *logx.Logger) generator.Middleware {
	return func(next generator.Generator) generator.Generator {
		return generator.Wrap(
			func(ctx context.Context, prompt string) (string, error) {
				var lastErr error

				for attempt := 1; ; attempt++ {
					resp, err := next.Invoke(ctx, prompt)
					if err == nil {
						return resp, nil
					}
					lastErr = err

					cfg := generrors.DefaultRetryConfigs[generrors.KindOf(err)]
					if !isRetryable(err) || attempt > cfg.MaxRetries {
						break
					}

					delay := backoffDelay(cfg, attempt)
					if logger != nil {
						logger.Warn("generator retry %d/%d (backoff %v): %v", attempt, cfg.MaxRetries, delay, lastErr)
					}
					if delay > 0 {
						select {
						case <-ctx.Done():
							return "", fmt.Errorf("retry cancelled: %w", ctx.Err())
						case <-time.After(delay):
						}
					}
				}
				return "", lastErr
			},
			next.Probe,
			next.Name,
			next.UpdateModel,
		)
	}
}

func isRetryable(err error) bool {
	var e *generrors.Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return true
}

func backoffDelay(cfg generrors.RetryConfig, attempt int) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	delay := float64(cfg.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= cfg.BackoffFactor
	}
	if maxDelay := float64(cfg.MaxDelay); maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	if cfg.Jitter {
		delay = rand.Float64() * delay //nolint:gosec // full jitter, not security sensitive
	}
	return time.Duration(delay)
}
