package magma

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/magma/internal/errors"
)

func newTestLinearizer(t *testing.T, maxTokens int) *Linearizer {
	t.Helper()
	linearizer, err := NewLinearizer(maxTokens)
	require.NoError(t, err)
	return linearizer
}

func subgraphOf(nodes ...ScoredNode) *MergedSubgraph {
	contributions := emptyContributions()
	for _, node := range nodes {
		for _, view := range node.Views {
			contributions[view]++
		}
	}
	return &MergedSubgraph{Nodes: nodes, ViewContributions: contributions}
}

func scoredNode(uuid string, score float64, views []ViewSource, data map[string]interface{}) ScoredNode {
	return ScoredNode{
		UUID:       uuid,
		Data:       data,
		ViewCount:  len(views),
		Views:      views,
		FinalScore: score,
	}
}

func TestLinearizerTokenBounds(t *testing.T) {
	for _, maxTokens := range []int{100, 100_000, 0} {
		_, err := NewLinearizer(maxTokens)
		assert.NoError(t, err, "maxTokens=%d", maxTokens)
	}
	for _, maxTokens := range []int{99, 100_001, -5} {
		_, err := NewLinearizer(maxTokens)
		require.Error(t, err, "maxTokens=%d", maxTokens)
		assert.Equal(t, errors.KindValidation, errors.KindOf(err))
	}
}

func TestLinearizeHeaders(t *testing.T) {
	linearizer := newTestLinearizer(t, 4000)
	subgraph := subgraphOf(scoredNode("u1", 0.9, []ViewSource{SourceSemantic}, map[string]interface{}{"name": "thing"}))

	tests := []struct {
		intent   IntentType
		strategy Strategy
		header   string
	}{
		{IntentWhy, StrategyCausalChain, "## Causal Analysis Context\nThe following shows cause-and-effect relationships:\n"},
		{IntentWhen, StrategyTemporal, "## Temporal Context\nThe following events are ordered chronologically:\n"},
		{IntentWho, StrategyEntityGrouped, "## Entity Context\nThe following entities are relevant to your query:\n"},
		{IntentWhat, StrategyEntityGrouped, "## Descriptive Context\nThe following information describes the subject:\n"},
		{IntentExplore, StrategyScoreRanked, "## Retrieved Context\nThe following information is relevant to your query:\n"},
	}

	for _, tc := range tests {
		t.Run(string(tc.intent), func(t *testing.T) {
			ctx, err := linearizer.Linearize(subgraph, tc.intent)
			require.NoError(t, err)
			assert.Equal(t, tc.strategy, ctx.Strategy)
			assert.True(t, strings.HasPrefix(ctx.Text, tc.header), "text: %q", ctx.Text)
		})
	}
}

func TestLinearizeTokenEstimate(t *testing.T) {
	linearizer := newTestLinearizer(t, 4000)
	subgraph := subgraphOf(
		scoredNode("u1", 0.9, []ViewSource{SourceSemantic}, map[string]interface{}{"name": "first"}),
		scoredNode("u2", 0.8, []ViewSource{SourceEntity}, map[string]interface{}{"name": "second"}),
	)

	ctx, err := linearizer.Linearize(subgraph, IntentExplore)
	require.NoError(t, err)
	assert.Equal(t, (len(ctx.Text)+3)/4, ctx.EstimatedTokens)
	assert.Equal(t, 2, ctx.NodeCount)
}

func TestLinearizeTemporalOrdering(t *testing.T) {
	linearizer := newTestLinearizer(t, 4000)
	subgraph := subgraphOf(
		scoredNode("june", 0.9, []ViewSource{SourceTemporal}, map[string]interface{}{
			"name": "june event", "occurred_at": "2024-06-15",
		}),
		scoredNode("january", 0.8, []ViewSource{SourceTemporal}, map[string]interface{}{
			"name": "january event", "occurred_at": "2024-01-01",
		}),
	)

	ctx, err := linearizer.Linearize(subgraph, IntentWhen)
	require.NoError(t, err)

	// Chronological despite the june node's higher score.
	assert.Less(t, strings.Index(ctx.Text, "january event"), strings.Index(ctx.Text, "june event"))
	assert.Contains(t, ctx.Text, "Date: 2024-01-01")
}

func TestLinearizeTemporalBucketsTemporalViewFirst(t *testing.T) {
	linearizer := newTestLinearizer(t, 4000)
	subgraph := subgraphOf(
		scoredNode("concept", 0.99, []ViewSource{SourceSemantic}, map[string]interface{}{"name": "hot concept"}),
		scoredNode("event", 0.1, []ViewSource{SourceTemporal}, map[string]interface{}{
			"name": "cold event", "occurred_at": "2024-01-01T00:00:00Z",
		}),
	)

	ctx, err := linearizer.Linearize(subgraph, IntentWhen)
	require.NoError(t, err)
	assert.Less(t, strings.Index(ctx.Text, "cold event"), strings.Index(ctx.Text, "hot concept"))
}

func TestLinearizeCausalChain(t *testing.T) {
	linearizer := newTestLinearizer(t, 4000)
	subgraph := subgraphOf(
		scoredNode("concept", 0.95, []ViewSource{SourceSemantic}, map[string]interface{}{"name": "related concept"}),
		scoredNode("cause", 0.85, []ViewSource{SourceCausal}, map[string]interface{}{
			"description": "disk filled up", "node_type": "cause", "confidence": 0.85,
		}),
	)

	ctx, err := linearizer.Linearize(subgraph, IntentWhy)
	require.NoError(t, err)

	// Causal-view nodes lead even with lower scores.
	assert.Less(t, strings.Index(ctx.Text, "disk filled up"), strings.Index(ctx.Text, "related concept"))
	assert.Contains(t, ctx.Text, "Confidence: 0.85")
}

func TestLinearizeEntityGroupedSortsByType(t *testing.T) {
	linearizer := newTestLinearizer(t, 4000)
	subgraph := subgraphOf(
		scoredNode("s1", 0.9, []ViewSource{SourceEntity}, map[string]interface{}{"name": "web", "entity_type": "service"}),
		scoredNode("d1", 0.5, []ViewSource{SourceEntity}, map[string]interface{}{"name": "postgres", "entity_type": "database"}),
		scoredNode("s2", 0.7, []ViewSource{SourceEntity}, map[string]interface{}{"name": "api", "entity_type": "service"}),
	)

	ctx, err := linearizer.Linearize(subgraph, IntentWho)
	require.NoError(t, err)

	posDB := strings.Index(ctx.Text, "postgres")
	posWeb := strings.Index(ctx.Text, "**web**")
	posAPI := strings.Index(ctx.Text, "**api**")
	assert.Less(t, posDB, posWeb)
	assert.Less(t, posDB, posAPI)
	assert.Less(t, posWeb, posAPI) // score desc within group
}

func TestLinearizeNodeFormatting(t *testing.T) {
	linearizer := newTestLinearizer(t, 4000)

	longDescription := strings.Repeat("x", 250)
	subgraph := subgraphOf(
		scoredNode("u1", 0.9, []ViewSource{SourceSemantic, SourceEntity}, map[string]interface{}{
			"name":        "auth-service",
			"entity_type": "service",
			"description": longDescription,
		}),
		scoredNode("u2", 0.5, []ViewSource{SourceCausal}, nil),
	)

	ctx, err := linearizer.Linearize(subgraph, IntentExplore)
	require.NoError(t, err)

	assert.Contains(t, ctx.Text, "- **auth-service** (service)")
	assert.Contains(t, ctx.Text, "[Found in: semantic, entity]")
	// Description capped at 200 chars.
	assert.Contains(t, ctx.Text, strings.Repeat("x", 200))
	assert.NotContains(t, ctx.Text, strings.Repeat("x", 201))
	// Display and type fall back to uuid and "unknown" when data is absent.
	assert.Contains(t, ctx.Text, "- **u2** (unknown)")
}

func TestLinearizeMultibyteDescription(t *testing.T) {
	linearizer := newTestLinearizer(t, 4000)

	longDescription := strings.Repeat("ü", 250)
	subgraph := subgraphOf(
		scoredNode("u1", 0.9, []ViewSource{SourceSemantic}, map[string]interface{}{
			"name":        "umlaut-heavy",
			"description": longDescription,
		}),
	)

	ctx, err := linearizer.Linearize(subgraph, IntentExplore)
	require.NoError(t, err)

	// The cap counts runes, not bytes, so no rune is ever split.
	assert.True(t, utf8.ValidString(ctx.Text))
	assert.Contains(t, ctx.Text, strings.Repeat("ü", 200))
	assert.NotContains(t, ctx.Text, strings.Repeat("ü", 201))
}

func TestLinearizeTruncation(t *testing.T) {
	linearizer := newTestLinearizer(t, 150)

	nodes := make([]ScoredNode, 20)
	for i := range nodes {
		nodes[i] = scoredNode(fmt.Sprintf("u%d", i), 1.0-float64(i)/100, []ViewSource{SourceEntity}, map[string]interface{}{
			"name":        fmt.Sprintf("verbose node %d with a long descriptive name", i),
			"description": strings.Repeat("very detailed context ", 10),
		})
	}

	ctx, err := linearizer.Linearize(subgraphOf(nodes...), IntentExplore)
	require.NoError(t, err)

	assert.Contains(t, ctx.Text, truncationMarker)
	assert.Less(t, ctx.NodeCount, 20)
	assert.LessOrEqual(t, ctx.EstimatedTokens, 150+20) // marker and footer ride on top of the budget check
}

func TestLinearizeFooter(t *testing.T) {
	linearizer := newTestLinearizer(t, 4000)
	subgraph := subgraphOf(
		scoredNode("u1", 0.9, []ViewSource{SourceSemantic, SourceEntity}, map[string]interface{}{"name": "a"}),
		scoredNode("u2", 0.5, []ViewSource{SourceEntity}, map[string]interface{}{"name": "b"}),
	)

	ctx, err := linearizer.Linearize(subgraph, IntentExplore)
	require.NoError(t, err)
	assert.Contains(t, ctx.Text, "\n---\nSources: semantic: 1, entity: 2 | Total nodes: 2")
}

func TestLinearizeIsTotal(t *testing.T) {
	linearizer := newTestLinearizer(t, 4000)

	// Empty subgraph, nil data, unknown fields: all must linearize.
	inputs := []*MergedSubgraph{
		subgraphOf(),
		subgraphOf(scoredNode("u1", 0.5, []ViewSource{SourceCausal}, nil)),
		subgraphOf(scoredNode("u2", 0.5, []ViewSource{SourceTemporal}, map[string]interface{}{"weird": 42})),
	}
	for _, input := range inputs {
		for _, intent := range []IntentType{IntentWhy, IntentWhen, IntentWho, IntentWhat, IntentExplore} {
			ctx, err := linearizer.Linearize(input, intent)
			require.NoError(t, err)
			assert.NotEmpty(t, ctx.Text)
			assert.LessOrEqual(t, ctx.NodeCount, len(input.Nodes))
		}
	}

	_, err := linearizer.Linearize(nil, IntentExplore)
	require.Error(t, err)
	assert.Equal(t, errors.KindLinearization, errors.KindOf(err))

	_, err = linearizer.Linearize(subgraphOf(), "BOGUS")
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}
