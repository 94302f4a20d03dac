package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"recoforge/pkg/catalog"
	"recoforge/pkg/generator/middleware/circuit"
	"recoforge/pkg/health"
	"recoforge/pkg/history"
	"recoforge/pkg/planner"
)

type fakeLibrary struct {
	artists []catalog.Artist
	albums  []catalog.Album
}

func (f fakeLibrary) ListArtists() []catalog.Artist { return f.artists }
func (f fakeLibrary) ListAlbums() []catalog.Album    { return f.albums }
func (f fakeLibrary) Fingerprint() string            { return "fp-fixed" }

func smallLib() fakeLibrary {
	return fakeLibrary{
		artists: []catalog.Artist{{Name: "Owned Artist"}},
		albums:  []catalog.Album{{Artist: "Owned Artist", Title: "Owned Album"}},
	}
}

type countingGenerator struct {
	mu       sync.Mutex
	calls    int32
	response string
}

func (g *countingGenerator) Invoke(context.Context, string) (string, error) {
	atomic.AddInt32(&g.calls, 1)
	return g.response, nil
}
func (g *countingGenerator) Probe(context.Context) error { return nil }
func (g *countingGenerator) Name() string                { return "fake" }
func (g *countingGenerator) UpdateModel(string) error    { return nil }

func failingGenerator(t *testing.T) *countingGenerator {
	t.Helper()
	return &countingGenerator{response: ""}
}

func baseReq() catalog.RequestSpec {
	return catalog.RequestSpec{
		BackendID:     "backend-a",
		ModelID:       "model-x",
		DiscoveryMode: catalog.DiscoverySimilar,
		SamplingTier:  catalog.TierBalanced,
		TargetCount:   2,
		Mode:          catalog.ModeAlbum,
	}
}

func TestFetchHappyPath(t *testing.T) {
	gen := &countingGenerator{response: `[
		{"artist":"X","album":"Y","genre":"g","confidence":0.9,"reason":"r"},
		{"artist":"A","album":"B","genre":"g","confidence":0.9,"reason":"r"}
	]`}

	h := history.New()
	defer h.Close()
	mon := health.New(0)
	orch := New(h, mon)

	lib := smallLib()
	deps := Deps{
		Generator: circuit.Middleware(mon, "backend-a")(gen),
		Planner:   planner.New(planner.NewRegistry(), nil),
		Library:   lib,
		Profile:   catalog.Profile{},
		Budget:    planner.Budget{ContextTokens: 100000, TargetTokens: 5000},
	}

	result, err := orch.Fetch(context.Background(), "backend-a", baseReq(), deps)
	require.NoError(t, err)
	require.Len(t, result, 2)
	require.Equal(t, health.Healthy, mon.Status("backend-a"))
}

func TestFetchSkipsUnhealthyBackend(t *testing.T) {
	h := history.New()
	defer h.Close()
	mon := health.New(0)
	for i := 0; i < 5; i++ {
		mon.RecordFailure("backend-b", "boom")
	}
	orch := New(h, mon)

	gen := failingGenerator(t)
	lib := smallLib()
	deps := Deps{
		Generator: gen,
		Planner:   planner.New(planner.NewRegistry(), nil),
		Library:   lib,
		Profile:   catalog.Profile{},
		Budget:    planner.Budget{ContextTokens: 100000, TargetTokens: 5000},
	}

	result, err := orch.Fetch(context.Background(), "backend-b", baseReq(), deps)
	require.NoError(t, err)
	require.Empty(t, result)
	require.Equal(t, int32(0), gen.calls)
}

func TestFetchConcurrentSameOperationKeyCoalesces(t *testing.T) {
	gen := &countingGenerator{response: `[
		{"artist":"X","album":"Y","confidence":0.9,"reason":"r"},
		{"artist":"A","album":"B","confidence":0.9,"reason":"r"}
	]`}

	h := history.New(history.WithMinInterval(0))
	defer h.Close()
	mon := health.New(0)
	orch := New(h, mon)

	lib := smallLib()
	deps := Deps{
		Generator: gen,
		Planner:   planner.New(planner.NewRegistry(), nil),
		Library:   lib,
		Profile:   catalog.Profile{},
		Budget:    planner.Budget{ContextTokens: 100000, TargetTokens: 5000},
	}

	var wg sync.WaitGroup
	results := make([][]catalog.Recommendation, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			r, err := orch.Fetch(context.Background(), "backend-a", baseReq(), deps)
			require.NoError(t, err)
			results[idx] = r
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), gen.calls)
	for _, r := range results {
		require.Equal(t, results[0], r)
	}
}
