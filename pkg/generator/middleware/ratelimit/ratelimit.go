// Package ratelimit applies pkg/ratelimit's admission control in front of a
// Generator. Every call consumes one token; the prompt's token estimate is
// computed but does not affect admission.
package ratelimit

import (
	"context"

	"github.com/tiktoken-go/tokenizer"

	"recoforge/pkg/generator"
	"recoforge/pkg/metrics"
	"recoforge/pkg/ratelimit"
)

// TokenEstimator estimates the token cost of a prompt for admission sizing.
type TokenEstimator interface {
	Estimate(prompt string) int
}

// DefaultTokenEstimator counts tokens with the GPT-4 tiktoken codec,
// falling back to a character-based approximation if the codec is
// unavailable.
type DefaultTokenEstimator struct {
	codec tokenizer.Codec
}

// NewDefaultTokenEstimator builds an estimator using the GPT-4 encoding,
// the closest widely-available approximation across backend vendors.
func NewDefaultTokenEstimator() *DefaultTokenEstimator {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return &DefaultTokenEstimator{}
	}
	return &DefaultTokenEstimator{codec: codec}
}

// Estimate returns the token count for prompt.
func (e *DefaultTokenEstimator) Estimate(prompt string) int {
	if e.codec == nil {
		return len(prompt) / 4
	}
	count, err := e.codec.Count(prompt)
	if err != nil {
		return len(prompt) / 4
	}
	return count
}

// Middleware wraps a Generator so every Invoke first acquires admission
// from limiter under resource, counting every call the limiter refuses
// admission to as rate.rejected via recorder. estimator may be nil, in
// which case a DefaultTokenEstimator is used.
func Middleware(limiter *ratelimit.Limiter, resource string, estimator TokenEstimator, recorder metrics.Recorder) generator.Middleware {
	if estimator == nil {
		estimator = NewDefaultTokenEstimator()
	}
	if recorder == nil {
		recorder = metrics.Nop()
	}

	return func(next generator.Generator) generator.Generator {
		return generator.Wrap(
			func(ctx context.Context, prompt string) (string, error) {
				tags := map[string]string{"resource": resource}
				_ = estimator.Estimate(prompt) // sizing hook for future weighted admission

				admitted := false
				result, err := limiter.Execute(ctx, resource, func(innerCtx context.Context) (any, error) {
					admitted = true
					return next.Invoke(innerCtx, prompt)
				})
				if err != nil {
					if !admitted {
						recorder.Inc("rate.rejected", tags)
					}
					return "", err
				}

				text, _ := result.(string)
				return text, nil
			},
			next.Probe,
			next.Name,
			next.UpdateModel,
		)
	}
}
