// Package strategy implements the multi-round refinement loop that
// converges on a target count of unique recommendations despite
// duplicate-heavy generator output, over-requesting each round to offset
// the expected duplicate rate.
package strategy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"recoforge/pkg/catalog"
	"recoforge/pkg/parser"
	"recoforge/pkg/planner"
)

const (
	maxIterations       = 3
	successRateFloor    = 0.7
	collectedRatioFloor = 0.8

	rejectedKeysInAppendix      = 10
	recommendedSampleInAppendix = 15
)

// requestSizeMultiplier is M(i): how much to over-request on iteration i
// relative to the number of items still needed.
var requestSizeMultiplier = map[int]float64{1: 1.5, 2: 2.0, 3: 3.0} //nolint:gochecknoglobals // fixed per spec

// Generator is the minimal capability the loop invokes a backend through
// (ordinarily a rate-limited, health-gated generator.Generator).
type Generator interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// Planner is the minimal capability the loop plans prompts through.
type Planner interface {
	Plan(spec catalog.RequestSpec, profile catalog.Profile, lib catalog.Library, budget planner.Budget, appendix string) planner.PromptPlan
}

// RoundObserver is notified after each completed iteration, for
// per-iteration debug telemetry. May be nil.
type RoundObserver func(iteration, requested, received, unique int)

// Recommend runs the iterative refinement loop, returning up to
// req.TargetCount unique recommendations. A Generator failure on any
// iteration aborts the loop without re-raising; whatever was collected so
// far is returned. An empty Generator response also ends the loop (no
// further iterations are attempted). onRound, if non-nil, is called after
// every completed iteration.
func Recommend(
	ctx context.Context,
	gen Generator,
	plan Planner,
	req catalog.RequestSpec,
	profile catalog.Profile,
	lib catalog.Library,
	budget planner.Budget,
	onRound RoundObserver,
) []catalog.Recommendation {
	libraryKeys := catalog.LibraryKeySet(lib, req.Mode)
	collectedKeys := make(map[string]struct{})
	var collected []catalog.Recommendation
	rejected := make(map[string]struct{})

	for i := 1; len(collected) < req.TargetCount && i <= maxIterations; i++ {
		needed := req.TargetCount - len(collected)
		requestSize := requestSizeFor(needed, i)

		appendix := buildAppendix(rejected, collected, requestSize)
		p := plan.Plan(req, profile, lib, budget, appendix)

		text, err := gen.Invoke(ctx, p.Prompt)
		if err != nil {
			// Abort without re-raising: whatever was collected so far is
			// returned, per the loop's failure semantics.
			break
		}
		if strings.TrimSpace(text) == "" {
			break
		}

		candidates := parser.Parse(text)
		received := len(candidates)
		unique := 0

		for _, c := range candidates {
			if !c.Valid(req.Mode) {
				continue
			}
			key := c.Key(req.Mode)
			if _, inLibrary := libraryKeys[key]; inLibrary {
				rejected[key] = struct{}{}
				continue
			}
			if _, dup := collectedKeys[key]; dup {
				rejected[key] = struct{}{}
				continue
			}
			collectedKeys[key] = struct{}{}
			collected = append(collected, c)
			unique++
		}

		if onRound != nil {
			onRound(i, requestSize, received, unique)
		}

		if received == 0 {
			break
		}

		successRate := float64(unique) / float64(received)
		ratio := float64(len(collected)) / float64(req.TargetCount)

		shouldContinue := len(collected) < req.TargetCount && i < maxIterations &&
			(successRate < successRateFloor || ratio < collectedRatioFloor)
		if !shouldContinue {
			break
		}
	}

	if len(collected) > req.TargetCount {
		collected = collected[:req.TargetCount]
	}
	return collected
}

func requestSizeFor(needed, iteration int) int {
	m := requestSizeMultiplier[iteration]
	if m == 0 {
		m = requestSizeMultiplier[maxIterations]
	}
	size := int(float64(needed)*m + 0.999999) // ceil
	if size < needed {
		size = needed
	}
	const maxRequestSize = 50
	if size > maxRequestSize {
		size = maxRequestSize
	}
	return size
}

// buildAppendix renders the iterative-context block appended to the
// prompt: rejection count, up to 10 rejected keys, an already-recommended
// artist sample (<=15), and diversify hints.
func buildAppendix(rejected map[string]struct{}, collected []catalog.Recommendation, requestSize int) string {
	if len(rejected) == 0 && len(collected) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "iterative_context rejected_count=%d requested=%d\n", len(rejected), requestSize)

	keys := make([]string, 0, len(rejected))
	for k := range rejected {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > rejectedKeysInAppendix {
		keys = keys[:rejectedKeysInAppendix]
	}
	if len(keys) > 0 {
		b.WriteString("already_rejected: " + strings.Join(keys, ", ") + "\n")
	}

	artistSample := make([]string, 0, recommendedSampleInAppendix)
	seenArtist := make(map[string]struct{})
	for _, c := range collected {
		if _, ok := seenArtist[c.Artist]; ok {
			continue
		}
		seenArtist[c.Artist] = struct{}{}
		artistSample = append(artistSample, c.Artist)
		if len(artistSample) >= recommendedSampleInAppendix {
			break
		}
	}
	if len(artistSample) > 0 {
		b.WriteString("already_recommended_artists: " + strings.Join(artistSample, ", ") + "\n")
	}

	b.WriteString("diversify: favor artists and albums not listed above.\n")
	return b.String()
}
