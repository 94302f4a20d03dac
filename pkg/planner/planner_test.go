package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"recoforge/pkg/catalog"
)

type fakeLibrary struct {
	artists []catalog.Artist
	albums  []catalog.Album
	fp      string
}

func (f fakeLibrary) ListArtists() []catalog.Artist { return f.artists }
func (f fakeLibrary) ListAlbums() []catalog.Album    { return f.albums }
func (f fakeLibrary) Fingerprint() string            { return f.fp }

func smallLibrary() fakeLibrary {
	var artists []catalog.Artist
	var albums []catalog.Album
	for i := 0; i < 20; i++ {
		name := "Artist" + string(rune('A'+i))
		artists = append(artists, catalog.Artist{Name: name, AddedAt: time.Now(), AlbumCount: i})
		albums = append(albums, catalog.Album{Artist: name, Title: "Album" + string(rune('A'+i)), AddedAt: time.Now(), Rating: float64(i)})
	}
	return fakeLibrary{artists: artists, albums: albums, fp: "fp-small"}
}

func baseSpec() catalog.RequestSpec {
	return catalog.RequestSpec{
		BackendID:     "local",
		ModelID:       "test-model",
		DiscoveryMode: catalog.DiscoverySimilar,
		SamplingTier:  catalog.TierBalanced,
		TargetCount:   10,
		Mode:          catalog.ModeAlbum,
	}
}

func baseProfile() catalog.Profile {
	return catalog.Profile{TotalArtists: 20, TotalAlbums: 20}
}

func TestPlanIsDeterministic(t *testing.T) {
	p := New(NewRegistry(), nil)
	lib := smallLibrary()
	budget := Budget{ContextTokens: 100000, TargetTokens: 5000, HeadroomTokens: 500}

	a := p.Plan(baseSpec(), baseProfile(), lib, budget, "")
	b := p.Plan(baseSpec(), baseProfile(), lib, budget, "")

	require.Equal(t, a.Prompt, b.Prompt)
	require.Equal(t, a.Seed, b.Seed)
	require.Equal(t, a.SampleFingerprint, b.SampleFingerprint)
}

func TestPlanSmallLibraryCapsArtistsAndAlbums(t *testing.T) {
	p := New(NewRegistry(), nil)
	lib := smallLibrary()
	budget := Budget{ContextTokens: 100000, TargetTokens: 100000, HeadroomTokens: 500}

	plan := p.Plan(baseSpec(), baseProfile(), lib, budget, "")
	require.LessOrEqual(t, plan.SampledArtists, smallLibraryArtistCap)
	require.LessOrEqual(t, plan.SampledAlbums, smallLibraryAlbumCap)
}

func TestPlanCompressesWhenOverBudget(t *testing.T) {
	p := New(NewRegistry(), nil)
	lib := smallLibrary()
	tight := Budget{ContextTokens: 2000, TargetTokens: 20, HeadroomTokens: 100}

	plan := p.Plan(baseSpec(), baseProfile(), lib, tight, "")
	require.True(t, plan.Compressed || plan.Trimmed)
}

func TestPlanCacheInvalidatesOnTargetTokenChange(t *testing.T) {
	cache := NewCache(time.Minute, 10)
	p := New(NewRegistry(), cache)
	lib := smallLibrary()

	first := p.Plan(baseSpec(), baseProfile(), lib, Budget{ContextTokens: 100000, TargetTokens: 5000}, "")
	second := p.Plan(baseSpec(), baseProfile(), lib, Budget{ContextTokens: 100000, TargetTokens: 9000}, "")

	require.NotEqual(t, first.Budget.TargetTokens, second.Budget.TargetTokens)
}

func TestPlanCacheHitsOnIdenticalRequest(t *testing.T) {
	cache := NewCache(time.Minute, 10)
	p := New(NewRegistry(), cache)
	lib := smallLibrary()
	budget := Budget{ContextTokens: 100000, TargetTokens: 5000}

	first := p.Plan(baseSpec(), baseProfile(), lib, budget, "")
	second := p.Plan(baseSpec(), baseProfile(), lib, budget, "")
	require.Equal(t, first.Prompt, second.Prompt)
}

func TestDefaultEstimatorFormula(t *testing.T) {
	e := DefaultEstimatorFunc{}
	text := "one two three four five"
	est := e.Estimate(text)
	// max(5 words*1.3, 23 chars*0.25) = max(6.5, 5.75), rounded up.
	require.Equal(t, 7, est)
}
