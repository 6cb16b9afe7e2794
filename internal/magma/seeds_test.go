package magma

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/magma/internal/graph"
	"github.com/moolen/magma/internal/memory"
)

// fakeLinker maps concept uuid to its X_REPRESENTS targets.
type fakeLinker struct {
	mu    sync.Mutex
	links map[string][]string
	calls int
	err   error
}

func (f *fakeLinker) GetLinksFrom(_ context.Context, sourceUUID string, linkType graph.RelationType) ([]memory.CrossLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	targets := f.links[sourceUUID]
	out := make([]memory.CrossLink, len(targets))
	for i, target := range targets {
		out[i] = memory.CrossLink{SourceUUID: sourceUUID, TargetUUID: target, LinkType: string(linkType)}
	}
	return out, nil
}

func match(conceptUUID string, score float64) memory.SemanticMatch {
	return memory.SemanticMatch{
		Concept: memory.Concept{UUID: conceptUUID, Name: conceptUUID},
		Score:   score,
	}
}

func TestExtractDedupsAndAttributesFirstConcept(t *testing.T) {
	linker := &fakeLinker{links: map[string][]string{
		"concept1": {"entity1", "entity2"},
		"concept2": {"entity2", "entity3"},
	}}
	extractor := NewSeedExtractor(linker)

	result, err := extractor.Extract(context.Background(), []memory.SemanticMatch{
		match("concept1", 0.9),
		match("concept2", 0.7),
	})
	require.NoError(t, err)

	require.Len(t, result.EntitySeeds, 3)
	assert.Equal(t, EntitySeed{EntityID: "entity1", SourceConceptID: "concept1", SemanticScore: 0.9}, result.EntitySeeds[0])
	assert.Equal(t, EntitySeed{EntityID: "entity2", SourceConceptID: "concept1", SemanticScore: 0.9}, result.EntitySeeds[1])
	assert.Equal(t, EntitySeed{EntityID: "entity3", SourceConceptID: "concept2", SemanticScore: 0.7}, result.EntitySeeds[2])

	assert.Equal(t, 2, result.Stats.ConceptsSearched)
	assert.Equal(t, 3, result.Stats.EntitiesFound)
	assert.Equal(t, 0, result.Stats.ConceptsWithoutLinks)
}

func TestExtractCountsConceptsWithoutLinks(t *testing.T) {
	linker := &fakeLinker{links: map[string][]string{"concept2": {"entity1"}}}
	extractor := NewSeedExtractor(linker)

	result, err := extractor.Extract(context.Background(), []memory.SemanticMatch{
		match("concept1", 0.9),
		match("concept2", 0.8),
		match("concept3", 0.7),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Stats.ConceptsWithoutLinks)
	assert.Len(t, result.EntitySeeds, 1)
}

func TestExtractBatchedMatchesSerial(t *testing.T) {
	links := map[string][]string{}
	var matches []memory.SemanticMatch
	for i := 0; i < 25; i++ {
		conceptUUID := string(rune('a'+i%26)) + "-concept"
		// Overlapping targets across batches exercise the serial dedup.
		links[conceptUUID] = []string{"shared-entity", conceptUUID + "-entity"}
		matches = append(matches, match(conceptUUID, 0.5+float64(i%5)/10))
	}

	serial, err := NewSeedExtractor(&fakeLinker{links: links}).Extract(context.Background(), matches)
	require.NoError(t, err)
	batched, err := NewSeedExtractor(&fakeLinker{links: links}).ExtractBatched(context.Background(), matches)
	require.NoError(t, err)

	assert.Equal(t, serial.Stats, batched.Stats)
	assert.Equal(t, serial.EntitySeeds, batched.EntitySeeds)
	assert.Equal(t, serial.ConceptIDs, batched.ConceptIDs)
}

func TestExtractPropagatesLinkerFailure(t *testing.T) {
	linker := &fakeLinker{err: assert.AnError}
	extractor := NewSeedExtractor(linker)

	_, err := extractor.Extract(context.Background(), []memory.SemanticMatch{match("concept1", 0.9)})
	require.Error(t, err)

	_, err = extractor.ExtractBatched(context.Background(), []memory.SemanticMatch{match("concept1", 0.9)})
	require.Error(t, err)
}

func TestExtractFromEnriched(t *testing.T) {
	extractor := NewSeedExtractor(nil)

	result := extractor.ExtractFromEnriched([]memory.EnrichedSemanticMatch{
		{
			SemanticMatch:     match("concept1", 0.9),
			LinkedEntityIDs:   []string{"entity1"},
			LinkedEntityNames: []string{"auth-service"},
		},
		{
			SemanticMatch: match("concept2", 0.3), // below threshold
			LinkedEntityIDs: []string{
				"entity2",
			},
		},
		{
			SemanticMatch: match("concept3", 0.8), // no links
		},
	}, 0.5)

	require.Len(t, result.EntitySeeds, 1)
	assert.Equal(t, "entity1", result.EntitySeeds[0].EntityID)
	assert.Equal(t, 2, result.Stats.ConceptsSearched)
	assert.Equal(t, 1, result.Stats.ConceptsWithoutLinks)
}

func TestGetEntityIDsPreservesOrder(t *testing.T) {
	seeds := []EntitySeed{
		{EntityID: "e3"}, {EntityID: "e1"}, {EntityID: "e2"},
	}
	assert.Equal(t, []string{"e3", "e1", "e2"}, GetEntityIDs(seeds))
}

func TestFilterSeedsByScore(t *testing.T) {
	seeds := []EntitySeed{
		{EntityID: "e1", SemanticScore: 0.9},
		{EntityID: "e2", SemanticScore: 0.5},
		{EntityID: "e3", SemanticScore: 0.3},
	}

	filtered, err := FilterSeedsByScore(seeds, 0.5)
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	assert.Equal(t, "e1", filtered[0].EntityID)
	assert.Equal(t, "e2", filtered[1].EntityID)

	_, err = FilterSeedsByScore(seeds, -0.1)
	require.Error(t, err)
	_, err = FilterSeedsByScore(seeds, 1.5)
	require.Error(t, err)
}
