// Package generator defines the backend-adapter capability interface and
// middleware-chaining mechanism the core drives every text-generation call
// through. The chaining shape is carried over from the teacher's LLM client
// middleware pattern, re-typed onto the Invoke/Probe/Name/UpdateModel
// capability set this domain requires.
package generator

import (
	"context"
	"regexp"
	"strconv"
)

// Generator is the capability set every backend variant (Local, Cloud)
// implements.
type Generator interface {
	// Invoke sends prompt to the backend and returns its raw text response.
	Invoke(ctx context.Context, prompt string) (string, error)
	// Probe performs a lightweight liveness check against the backend.
	Probe(ctx context.Context) error
	// Name identifies this generator for health/metrics/logging purposes.
	Name() string
	// UpdateModel switches the active model id, honoring an optional
	// "#thinking[(tokens=N)|(N)]" suffix that toggles extended reasoning.
	UpdateModel(modelID string) error
}

// Middleware wraps a Generator with additional behavior. Middlewares are
// composed with Chain.
type Middleware func(next Generator) Generator

// Chain composes middlewares around a base Generator. Middlewares are
// applied in order, with earlier middlewares being outermost: Chain(base,
// mw1, mw2) builds the call stack mw1 -> mw2 -> base.
func Chain(base Generator, middlewares ...Middleware) Generator {
	g := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		g = middlewares[i](g)
	}
	return g
}

// funcGenerator adapts plain functions to the Generator interface, for use
// by middleware implementations that wrap behavior around a next Generator.
type funcGenerator struct {
	invoke      func(context.Context, string) (string, error)
	probe       func(context.Context) error
	name        func() string
	updateModel func(string) error
}

func (f funcGenerator) Invoke(ctx context.Context, prompt string) (string, error) {
	return f.invoke(ctx, prompt)
}

func (f funcGenerator) Probe(ctx context.Context) error { return f.probe(ctx) }

func (f funcGenerator) Name() string { return f.name() }

func (f funcGenerator) UpdateModel(modelID string) error { return f.updateModel(modelID) }

// Wrap builds a Generator from plain function implementations.
func Wrap(
	invoke func(context.Context, string) (string, error),
	probe func(context.Context) error,
	name func() string,
	updateModel func(string) error,
) Generator {
	return funcGenerator{invoke: invoke, probe: probe, name: name, updateModel: updateModel}
}

var thinkingSuffix = regexp.MustCompile(`^(.*)#thinking(?:\((?:tokens=)?(\d+)\))?$`)

// ModelSpec is the parsed result of a model id that may carry a thinking
// suffix.
type ModelSpec struct {
	ModelID      string
	Thinking     bool
	BudgetTokens int
}

// ParseModelID strips an optional "#thinking[(tokens=N)|(N)]" suffix from a
// model identifier, returning the bare model id plus whether extended
// reasoning should be enabled and at what token budget (0 if unspecified).
func ParseModelID(modelID string) ModelSpec {
	m := thinkingSuffix.FindStringSubmatch(modelID)
	if m == nil {
		return ModelSpec{ModelID: modelID}
	}
	spec := ModelSpec{ModelID: m[1], Thinking: true}
	if m[2] != "" {
		if n, err := strconv.Atoi(m[2]); err == nil {
			spec.BudgetTokens = n
		}
	}
	return spec
}
