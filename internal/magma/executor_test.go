package magma

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/magma/internal/errors"
	"github.com/moolen/magma/internal/memory"
)

type stubSemantic struct {
	matches []memory.EnrichedSemanticMatch
	err     error
	delay   time.Duration
}

func (s *stubSemantic) SearchWithEntities(ctx context.Context, query string, topK int) ([]memory.EnrichedSemanticMatch, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.matches, s.err
}

type stubEntities struct {
	relations map[string][]memory.Relationship
	err       error
}

func (s *stubEntities) GetRelationshipsBatch(ctx context.Context, entityUUIDs []string) (map[string][]memory.Relationship, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string][]memory.Relationship)
	for _, id := range entityUUIDs {
		out[id] = s.relations[id]
	}
	return out, nil
}

type stubTemporal struct {
	events []memory.Event
	err    error
}

func (s *stubTemporal) QueryTimelineForEntities(ctx context.Context, entityUUIDs []string, from, to time.Time) ([]memory.Event, error) {
	return s.events, s.err
}

type stubCausal struct {
	links []memory.CausalLink
	err   error
}

func (s *stubCausal) Traverse(ctx context.Context, mentions []string, direction memory.TraversalDirection, maxDepth int) ([]memory.CausalLink, error) {
	return s.links, s.err
}

func enriched(conceptUUID string, score float64, entityIDs ...string) memory.EnrichedSemanticMatch {
	return memory.EnrichedSemanticMatch{
		SemanticMatch: memory.SemanticMatch{
			Concept: memory.Concept{UUID: conceptUUID, Name: conceptUUID},
			Score:   score,
		},
		LinkedEntityIDs: entityIDs,
	}
}

func newTestExecutor(t *testing.T, config ExecutorConfig, semantic *stubSemantic, entities *stubEntities, temporal *stubTemporal, causal *stubCausal) *Executor {
	t.Helper()
	if entities == nil {
		entities = &stubEntities{}
	}
	if temporal == nil {
		temporal = &stubTemporal{}
	}
	if causal == nil {
		causal = &stubCausal{}
	}
	executor, err := NewExecutor(config, semantic, entities, temporal, causal)
	require.NoError(t, err)
	return executor
}

func TestExecutorConfigBoundaries(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ExecutorConfig)
		ok     bool
	}{
		{"defaults", func(c *ExecutorConfig) {}, true},
		{"topK zero", func(c *ExecutorConfig) { c.SemanticTopK = 0 }, false},
		{"topK above cap", func(c *ExecutorConfig) { c.SemanticTopK = 101 }, false},
		{"topK at cap", func(c *ExecutorConfig) { c.SemanticTopK = 100 }, true},
		{"minScore negative", func(c *ExecutorConfig) { c.MinSemanticScore = -0.1 }, false},
		{"minScore above one", func(c *ExecutorConfig) { c.MinSemanticScore = 1.5 }, false},
		{"minScore zero", func(c *ExecutorConfig) { c.MinSemanticScore = 0 }, true},
		{"timeout below floor", func(c *ExecutorConfig) { c.Timeout = 50 * time.Millisecond }, false},
		{"timeout above ceiling", func(c *ExecutorConfig) { c.Timeout = 100 * time.Second }, false},
		{"timeout at floor", func(c *ExecutorConfig) { c.Timeout = 100 * time.Millisecond }, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			config := DefaultExecutorConfig()
			tc.mutate(&config)
			err := config.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, errors.KindValidation, errors.KindOf(err))
			}
		})
	}
}

func TestExecuteValidatesInput(t *testing.T) {
	executor := newTestExecutor(t, DefaultExecutorConfig(), &stubSemantic{}, nil, nil, nil)

	_, err := executor.Execute(context.Background(), "   ", DefaultIntent())
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))

	badIntent := DefaultIntent()
	badIntent.DepthHints.Causal = 6
	_, err = executor.Execute(context.Background(), "query", badIntent)
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func TestExecuteSemanticOnlyFallback(t *testing.T) {
	// Two concept matches, neither linked to an entity.
	semantic := &stubSemantic{matches: []memory.EnrichedSemanticMatch{
		enriched("concept1", 0.9),
		enriched("concept2", 0.8),
	}}
	executor := newTestExecutor(t, DefaultExecutorConfig(), semantic, nil, nil, nil)

	result, err := executor.Execute(context.Background(), "anything", DefaultIntent())
	require.NoError(t, err)

	assert.Empty(t, result.Seeds.EntitySeeds)
	assert.Equal(t, 2, result.Merged.ViewContributions[SourceSemantic])
	assert.Zero(t, result.Merged.ViewContributions[SourceEntity])
	assert.Zero(t, result.Merged.ViewContributions[SourceTemporal])
	assert.Zero(t, result.Merged.ViewContributions[SourceCausal])
}

func TestExecuteFullPipeline(t *testing.T) {
	semantic := &stubSemantic{matches: []memory.EnrichedSemanticMatch{
		enriched("concept1", 0.9, "entity1"),
	}}
	entities := &stubEntities{relations: map[string][]memory.Relationship{
		"entity1": {{
			Source:           memory.Entity{UUID: "entity1", Name: "auth-service", EntityType: "service"},
			Target:           memory.Entity{UUID: "entity2", Name: "postgres", EntityType: "database"},
			RelationshipType: "depends_on",
		}},
	}}
	temporal := &stubTemporal{events: []memory.Event{
		{UUID: "event1", Description: "deploy", OccurredAt: time.Now()},
	}}
	causal := &stubCausal{links: []memory.CausalLink{{
		Cause:      memory.CausalNode{UUID: "cause1", Description: "disk filled up"},
		Effect:     memory.CausalNode{UUID: "effect1", Description: "writes failed"},
		Confidence: 0.85,
	}}}

	executor := newTestExecutor(t, DefaultExecutorConfig(), semantic, entities, temporal, causal)

	intent := Intent{
		Type:       IntentWhy,
		DepthHints: DepthHints{Entity: 1, Temporal: 1, Causal: 2},
		Confidence: 0.9,
	}
	result, err := executor.Execute(context.Background(), "why did the auth service fail", intent)
	require.NoError(t, err)

	require.Len(t, result.Seeds.EntitySeeds, 1)
	assert.Equal(t, EntitySeed{EntityID: "entity1", SourceConceptID: "concept1", SemanticScore: 0.9}, result.Seeds.EntitySeeds[0])

	for _, source := range AllViewSources {
		assert.Positive(t, result.Merged.ViewContributions[source], "contribution from %s", source)
	}
	assert.GreaterOrEqual(t, result.Timing.TotalMs, int64(0))
}

func TestExecuteScoreFiltering(t *testing.T) {
	semantic := &stubSemantic{matches: []memory.EnrichedSemanticMatch{
		enriched("concept1", 0.9, "entity1"),
		enriched("concept2", 0.3, "entity2"),
	}}
	executor := newTestExecutor(t, DefaultExecutorConfig(), semantic, nil, nil, nil)

	result, err := executor.Execute(context.Background(), "query", DefaultIntent())
	require.NoError(t, err)

	require.Len(t, result.Seeds.EntitySeeds, 1)
	assert.Equal(t, "entity1", result.Seeds.EntitySeeds[0].EntityID)
}

func TestExecuteTimeout(t *testing.T) {
	config := DefaultExecutorConfig()
	config.Timeout = 100 * time.Millisecond
	semantic := &stubSemantic{delay: 10 * time.Second}
	executor := newTestExecutor(t, config, semantic, nil, nil, nil)

	start := time.Now()
	_, err := executor.Execute(context.Background(), "slow query", DefaultIntent())
	require.Error(t, err)
	assert.Equal(t, errors.KindTimeout, errors.KindOf(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExecuteSemanticFailureIsFatal(t *testing.T) {
	semantic := &stubSemantic{err: assert.AnError}
	executor := newTestExecutor(t, DefaultExecutorConfig(), semantic, nil, nil, nil)

	_, err := executor.Execute(context.Background(), "query", DefaultIntent())
	require.Error(t, err)
	assert.Equal(t, errors.KindBackend, errors.KindOf(err))
}

func TestExecuteExpansionFailuresDegrade(t *testing.T) {
	semantic := &stubSemantic{matches: []memory.EnrichedSemanticMatch{
		enriched("concept1", 0.9, "entity1"),
	}}
	executor := newTestExecutor(t, DefaultExecutorConfig(), semantic,
		&stubEntities{err: assert.AnError},
		&stubTemporal{err: assert.AnError},
		&stubCausal{err: assert.AnError})

	result, err := executor.Execute(context.Background(), "query", DefaultIntent())
	require.NoError(t, err)

	// All expansions failed; only the semantic view survives.
	assert.Equal(t, 1, result.Merged.ViewContributions[SourceSemantic])
	assert.Zero(t, result.Merged.ViewContributions[SourceEntity])
	assert.Zero(t, result.Merged.ViewContributions[SourceTemporal])
	assert.Zero(t, result.Merged.ViewContributions[SourceCausal])
}

func TestEntityBFSScoresAndVisitsOnce(t *testing.T) {
	// entity1 <-> entity2 form a cycle; entity2 -> entity3 extends it.
	e1 := memory.Entity{UUID: "entity1", Name: "one", EntityType: "service"}
	e2 := memory.Entity{UUID: "entity2", Name: "two", EntityType: "service"}
	e3 := memory.Entity{UUID: "entity3", Name: "three", EntityType: "service"}

	entities := &stubEntities{relations: map[string][]memory.Relationship{
		"entity1": {{Source: e1, Target: e2, RelationshipType: "peers"}},
		"entity2": {
			{Source: e2, Target: e1, RelationshipType: "peers"},
			{Source: e2, Target: e3, RelationshipType: "peers"},
		},
	}}
	executor := newTestExecutor(t, DefaultExecutorConfig(), &stubSemantic{}, entities, nil, nil)

	nodes := executor.expandEntities(context.Background(), []string{"entity1"}, 3)

	seen := make(map[string]float64)
	for _, node := range nodes {
		_, dup := seen[node.UUID]
		assert.False(t, dup, "uuid %s emitted twice", node.UUID)
		require.NotNil(t, node.Score)
		seen[node.UUID] = *node.Score
	}

	// Seeds and their direct neighbors surface at distance 0; entity3 is
	// discovered one hop later.
	assert.Equal(t, 1.0, seen["entity1"])
	assert.Equal(t, 1.0, seen["entity2"])
	assert.Equal(t, 0.5, seen["entity3"])

	for _, score := range seen {
		assert.Contains(t, []float64{1, 0.5, 1.0 / 3.0}, score)
	}
}
