package magma

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/moolen/magma/internal/errors"
	"github.com/moolen/magma/internal/logging"
	"github.com/moolen/magma/internal/memory"
)

// temporalWindow is the fixed expansion window around now. Depth hints do
// not deepen temporal traversal yet.
// TODO: honor depthHints.temporal by following chains of events linked to
// the same entities instead of a flat window query.
const temporalWindow = 365 * 24 * time.Hour

// SemanticSearcher locates concept entry points for a query.
type SemanticSearcher interface {
	SearchWithEntities(ctx context.Context, query string, topK int) ([]memory.EnrichedSemanticMatch, error)
}

// EntityExpander fetches entity relationships for BFS.
type EntityExpander interface {
	GetRelationshipsBatch(ctx context.Context, entityUUIDs []string) (map[string][]memory.Relationship, error)
}

// TemporalExpander fetches events involving the seed entities.
type TemporalExpander interface {
	QueryTimelineForEntities(ctx context.Context, entityUUIDs []string, from, to time.Time) ([]memory.Event, error)
}

// CausalExpander walks cause-effect chains anchored on the seed entities.
type CausalExpander interface {
	Traverse(ctx context.Context, mentions []string, direction memory.TraversalDirection, maxDepth int) ([]memory.CausalLink, error)
}

// ExecutorConfig bounds one pipeline run. Validated on construction.
type ExecutorConfig struct {
	// SemanticTopK is the vector search fan-out, in [1,100].
	SemanticTopK int
	// MinSemanticScore filters seeds, in [0,1].
	MinSemanticScore float64
	// Timeout bounds the semantic search stage only, in [100ms,60s].
	Timeout time.Duration
}

// DefaultExecutorConfig returns the default pipeline bounds.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		SemanticTopK:     10,
		MinSemanticScore: 0.5,
		Timeout:          5 * time.Second,
	}
}

// Validate checks the configuration against its ranges.
func (c ExecutorConfig) Validate() error {
	if c.SemanticTopK < 1 || c.SemanticTopK > 100 {
		return errors.NewValidation("ExecutorConfig.Validate", "semanticTopK %d out of range [1,100]", c.SemanticTopK)
	}
	if c.MinSemanticScore < 0 || c.MinSemanticScore > 1 {
		return errors.NewValidation("ExecutorConfig.Validate", "minSemanticScore %g out of range [0,1]", c.MinSemanticScore)
	}
	if c.Timeout < 100*time.Millisecond || c.Timeout > 60*time.Second {
		return errors.NewValidation("ExecutorConfig.Validate", "timeout %s out of range [100ms,60s]", c.Timeout)
	}
	return nil
}

// Timing records per-stage wall time in milliseconds.
type Timing struct {
	SemanticMs       int64 `json:"semanticMs"`
	SeedExtractionMs int64 `json:"seedExtractionMs"`
	ExpansionMs      int64 `json:"expansionMs"`
	MergeMs          int64 `json:"mergeMs"`
	TotalMs          int64 `json:"totalMs"`
}

// ExecutionResult is the full pipeline output.
type ExecutionResult struct {
	Merged *MergedSubgraph       `json:"merged"`
	Seeds  *SeedExtractionResult `json:"seeds"`
	Timing Timing                `json:"timing"`
}

// Executor orchestrates the retrieval pipeline. It is the single place
// where parallelism and timeouts are concentrated; the executor holds no
// mutable state across calls and is safe for concurrent use.
type Executor struct {
	config    ExecutorConfig
	semantic  SemanticSearcher
	entities  EntityExpander
	temporal  TemporalExpander
	causal    CausalExpander
	extractor *SeedExtractor
	merger    *Merger
	logger    *logging.Logger
}

// NewExecutor creates an executor with validated configuration.
func NewExecutor(config ExecutorConfig, semantic SemanticSearcher, entities EntityExpander, temporal TemporalExpander, causal CausalExpander) (*Executor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	merger, err := NewMerger(DefaultMergerConfig())
	if err != nil {
		return nil, err
	}
	return &Executor{
		config:    config,
		semantic:  semantic,
		entities:  entities,
		temporal:  temporal,
		causal:    causal,
		extractor: NewSeedExtractor(nil),
		merger:    merger,
		logger:    logging.GetLogger("magma.executor"),
	}, nil
}

// Execute runs the pipeline: semantic seeding, seed extraction, parallel
// three-way expansion, merge. Expansion failures degrade to empty views;
// a failed or timed-out semantic stage is fatal because no seeds can be
// derived from it.
func (e *Executor) Execute(ctx context.Context, query string, intent Intent) (*ExecutionResult, error) {
	started := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.NewValidation("Execute", "query must not be empty")
	}
	if err := intent.Validate(); err != nil {
		return nil, err
	}

	result := &ExecutionResult{}

	// Semantic seeding under the stage timeout.
	semanticStart := time.Now()
	matches, err := e.searchWithTimeout(ctx, query)
	result.Timing.SemanticMs = time.Since(semanticStart).Milliseconds()
	if err != nil {
		return nil, err
	}

	semanticView := semanticViewFromMatches(matches)

	// Seed extraction and score filtering.
	seedStart := time.Now()
	seeds := e.extractor.ExtractFromEnriched(matches, 0)
	filtered, err := FilterSeedsByScore(seeds.EntitySeeds, e.config.MinSemanticScore)
	if err != nil {
		return nil, err
	}
	seeds.EntitySeeds = filtered
	result.Seeds = seeds
	result.Timing.SeedExtractionMs = time.Since(seedStart).Milliseconds()

	views := []GraphView{semanticView}

	if len(filtered) > 0 {
		seedIDs := GetEntityIDs(filtered)

		expansionStart := time.Now()
		expanded := e.expandParallel(ctx, seedIDs, intent.DepthHints)
		result.Timing.ExpansionMs = time.Since(expansionStart).Milliseconds()

		for _, view := range expanded {
			if len(view.Nodes) > 0 {
				views = append(views, view)
			}
		}
	}

	mergeStart := time.Now()
	merged, err := e.merger.Merge(views)
	if err != nil {
		return nil, err
	}
	result.Merged = merged
	result.Timing.MergeMs = time.Since(mergeStart).Milliseconds()
	result.Timing.TotalMs = time.Since(started).Milliseconds()

	e.logger.Debug("Executed pipeline: %d matches, %d seeds, %d merged nodes in %dms",
		len(matches), len(filtered), len(merged.Nodes), result.Timing.TotalMs)
	return result, nil
}

// searchWithTimeout wraps only the semantic stage in the configured
// timeout. On expiry the pipeline aborts; a late result is discarded.
func (e *Executor) searchWithTimeout(ctx context.Context, query string) ([]memory.EnrichedSemanticMatch, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	type outcome struct {
		matches []memory.EnrichedSemanticMatch
		err     error
	}
	ch := make(chan outcome, 1)
	go func() {
		matches, err := e.semantic.SearchWithEntities(timeoutCtx, query, e.config.SemanticTopK)
		ch <- outcome{matches: matches, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			return nil, errors.NewBackend("Execute", "semantic search failed").Wrap(out.err)
		}
		return out.matches, nil
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return nil, errors.NewTimeout("Execute", "pipeline canceled").Wrap(ctx.Err())
		}
		return nil, errors.NewTimeout("Execute", "semantic search exceeded %s", e.config.Timeout)
	}
}

// expandParallel runs the three graph expansions concurrently. A failing
// expansion yields an empty view for its source and never aborts its
// siblings.
func (e *Executor) expandParallel(ctx context.Context, seedIDs []string, depths DepthHints) []GraphView {
	views := make([]GraphView, 3)

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		views[0] = GraphView{Source: SourceEntity, Nodes: e.expandEntities(ctx, seedIDs, depths.Entity)}
	}()
	go func() {
		defer wg.Done()
		views[1] = GraphView{Source: SourceTemporal, Nodes: e.expandTemporal(ctx, seedIDs)}
	}()
	go func() {
		defer wg.Done()
		views[2] = GraphView{Source: SourceCausal, Nodes: e.expandCausal(ctx, seedIDs, depths.Causal)}
	}()

	wg.Wait()
	return views
}

// expandEntities runs a bounded BFS from the seed ids. Each node found at
// distance d scores 1/(d+1); every uuid is visited at most once.
func (e *Executor) expandEntities(ctx context.Context, seedIDs []string, depth int) []ViewNode {
	var nodes []ViewNode
	visited := make(map[string]bool)
	emitted := make(map[string]bool)
	level := seedIDs

	for d := 0; d < depth && len(level) > 0; d++ {
		fetch := make([]string, 0, len(level))
		for _, id := range level {
			if !visited[id] {
				visited[id] = true
				fetch = append(fetch, id)
			}
		}
		if len(fetch) == 0 {
			break
		}

		batch, err := e.entities.GetRelationshipsBatch(ctx, fetch)
		if err != nil {
			e.logger.Warn("Entity expansion stopped at depth %d: %v", d, err)
			break
		}

		score := 1.0 / float64(d+1)
		var next []string
		for _, rels := range batch {
			for _, rel := range rels {
				for _, entity := range []memory.Entity{rel.Source, rel.Target} {
					if entity.UUID == "" || emitted[entity.UUID] {
						continue
					}
					emitted[entity.UUID] = true
					nodes = append(nodes, ViewNode{
						UUID:  entity.UUID,
						Data:  entityData(entity),
						Score: ScoreOf(score),
					})
					if !visited[entity.UUID] {
						next = append(next, entity.UUID)
					}
				}
			}
		}
		level = next
	}

	return nodes
}

// expandTemporal unions the seed entities' timelines inside the fixed
// window, scored 1.0 each.
func (e *Executor) expandTemporal(ctx context.Context, seedIDs []string) []ViewNode {
	now := time.Now()
	events, err := e.temporal.QueryTimelineForEntities(ctx, seedIDs, now.Add(-temporalWindow), now.Add(temporalWindow))
	if err != nil {
		e.logger.Warn("Temporal expansion failed: %v", err)
		return nil
	}

	nodes := make([]ViewNode, 0, len(events))
	for _, event := range events {
		nodes = append(nodes, ViewNode{
			UUID: event.UUID,
			Data: map[string]interface{}{
				"description": event.Description,
				"occurred_at": event.OccurredAt.UTC().Format(time.RFC3339),
				"node_type":   "event",
			},
			Score: ScoreOf(1.0),
		})
	}
	return nodes
}

// expandCausal traverses cause edges in both directions; each cause and
// effect becomes a node scored by the link confidence.
func (e *Executor) expandCausal(ctx context.Context, seedIDs []string, depth int) []ViewNode {
	links, err := e.causal.Traverse(ctx, seedIDs, memory.DirectionBoth, depth)
	if err != nil {
		e.logger.Warn("Causal expansion failed: %v", err)
		return nil
	}

	var nodes []ViewNode
	seen := make(map[string]bool)
	for _, link := range links {
		for _, causalNode := range []memory.CausalNode{link.Cause, link.Effect} {
			if causalNode.UUID == "" || seen[causalNode.UUID] {
				continue
			}
			seen[causalNode.UUID] = true
			nodes = append(nodes, ViewNode{
				UUID: causalNode.UUID,
				Data: map[string]interface{}{
					"description": causalNode.Description,
					"node_type":   causalNode.NodeType,
					"confidence":  link.Confidence,
				},
				Score: ScoreOf(link.Confidence),
			})
		}
	}
	return nodes
}

func semanticViewFromMatches(matches []memory.EnrichedSemanticMatch) GraphView {
	nodes := make([]ViewNode, 0, len(matches))
	for _, match := range matches {
		data := map[string]interface{}{
			"name":      match.Concept.Name,
			"node_type": "concept",
		}
		if match.Concept.Description != "" {
			data["description"] = match.Concept.Description
		}
		nodes = append(nodes, ViewNode{
			UUID:  match.Concept.UUID,
			Data:  data,
			Score: ScoreOf(match.Score),
		})
	}
	return GraphView{Source: SourceSemantic, Nodes: nodes}
}

func entityData(entity memory.Entity) map[string]interface{} {
	data := map[string]interface{}{
		"name":        entity.Name,
		"entity_type": entity.EntityType,
	}
	for k, v := range entity.Properties {
		data[k] = v
	}
	return data
}
