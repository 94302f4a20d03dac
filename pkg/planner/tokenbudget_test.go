package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"recoforge/pkg/catalog"
)

func TestResolveBudgetAppliesTierRatio(t *testing.T) {
	caps := BackendCaps{ContextTokens: 100000, ModelKey: "test-model"}

	minimal := ResolveBudget(catalog.RequestSpec{SamplingTier: catalog.TierMinimal}, caps)
	comprehensive := ResolveBudget(catalog.RequestSpec{SamplingTier: catalog.TierComprehensive}, caps)

	require.Less(t, minimal.TargetTokens, comprehensive.TargetTokens)
	require.LessOrEqual(t, minimal.TargetTokens+minimal.HeadroomTokens, minimal.ContextTokens)
	require.LessOrEqual(t, comprehensive.TargetTokens+comprehensive.HeadroomTokens, comprehensive.ContextTokens)
}

func TestResolveBudgetNeverBelowFloor(t *testing.T) {
	caps := BackendCaps{ContextTokens: 2000}
	b := ResolveBudget(catalog.RequestSpec{SamplingTier: catalog.TierComprehensive}, caps)
	require.GreaterOrEqual(t, b.TargetTokens, floorTokens)
	require.LessOrEqual(t, b.TargetTokens+b.HeadroomTokens, b.ContextTokens)
}

func TestResolveBudgetClampsToPromptCeiling(t *testing.T) {
	caps := BackendCaps{ContextTokens: 200000, PromptCeiling: 4000}
	b := ResolveBudget(catalog.RequestSpec{SamplingTier: catalog.TierComprehensive}, caps)
	require.LessOrEqual(t, b.TargetTokens, 4000)
}

func TestResolveBudgetUnknownTierFallsBackToBalanced(t *testing.T) {
	caps := BackendCaps{ContextTokens: 100000}
	withBalanced := ResolveBudget(catalog.RequestSpec{SamplingTier: catalog.TierBalanced}, caps)
	withUnknown := ResolveBudget(catalog.RequestSpec{SamplingTier: "bogus"}, caps)
	require.Equal(t, withBalanced.TargetTokens, withUnknown.TargetTokens)
}
