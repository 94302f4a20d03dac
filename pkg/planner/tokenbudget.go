package planner

import (
	"recoforge/pkg/catalog"
)

// floorTokens is the minimum prompt budget ever granted, regardless of how
// small the context window or tier ratio is.
const floorTokens = 1500

// systemReserveTokens is held back for the system/instruction portion of
// every prompt, before completion and headroom reserves are subtracted.
const systemReserveTokens = 1024

// tierRatio maps a sampling tier to its share of the resolved prompt
// budget.
var tierRatio = map[catalog.SamplingTier]float64{ //nolint:gochecknoglobals // fixed tier table
	catalog.TierMinimal:       0.35,
	catalog.TierBalanced:      0.60,
	catalog.TierComprehensive: 1.00,
}

// BackendCaps describes a backend's context window, used to resolve the
// token budget for a request.
type BackendCaps struct {
	ContextTokens int
	// PromptCeiling is an optional upper bound on prompt size the backend
	// additionally enforces; zero means unbounded.
	PromptCeiling int
	ModelKey      string
}

// Budget is the resolved set of token allotments for a single request.
type Budget struct {
	ContextTokens       int
	TargetTokens        int
	HeadroomTokens      int
	SystemReserveTokens int
	ModelKey            string
}

// ResolveBudget derives the prompt/completion/headroom split for spec
// against a backend's capability descriptor.
func ResolveBudget(spec catalog.RequestSpec, caps BackendCaps) Budget {
	ratio, ok := tierRatio[spec.SamplingTier]
	if !ok {
		ratio = tierRatio[catalog.TierBalanced]
	}

	context := caps.ContextTokens
	completionReserve := maxInt(512, context*20/100)
	headroom := maxInt(256, context*10/100)

	promptBudget := maxInt(floorTokens, context-systemReserveTokens-completionReserve-headroom)
	if caps.PromptCeiling > 0 && caps.PromptCeiling < promptBudget {
		promptBudget = caps.PromptCeiling
	}

	target := minInt(promptBudget, maxInt(int(floorTokens*ratio), int(float64(promptBudget)*ratio)))
	if target+headroom > context {
		target = maxInt(0, context-headroom)
	}

	return Budget{
		ContextTokens:       context,
		TargetTokens:        target,
		HeadroomTokens:      headroom,
		SystemReserveTokens: systemReserveTokens,
		ModelKey:            caps.ModelKey,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
