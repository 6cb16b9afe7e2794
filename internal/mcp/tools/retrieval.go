package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/moolen/magma/internal/memory"
)

// SemanticSearchTool runs a vector search over the concept graph and
// returns matches above the score threshold, with their linked
// entities.
type SemanticSearchTool struct {
	semantic SemanticStore
}

func NewSemanticSearchTool(semantic SemanticStore) *SemanticSearchTool {
	return &SemanticSearchTool{semantic: semantic}
}

func (t *SemanticSearchTool) Name() string { return "semantic_search" }

func (t *SemanticSearchTool) Description() string {
	return "Search the semantic graph by meaning and return matching concepts with their linked entities"
}

func (t *SemanticSearchTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"query":     stringProp("Natural-language search query"),
		"limit":     intProp("Max matches to return, 1-100 (default 10)"),
		"min_score": numberProp("Minimum similarity score, 0-1 (default 0)"),
	}, "query")
}

type semanticSearchInput struct {
	Query    string  `json:"query"`
	Limit    int     `json:"limit,omitempty"`
	MinScore float64 `json:"min_score,omitempty"`
}

func (t *SemanticSearchTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params semanticSearchInput
	if err := decodeInput(t.Name(), input, &params); err != nil {
		return nil, err
	}
	if params.Limit == 0 {
		params.Limit = 10
	}

	v := &validator{}
	v.requireString("query", params.Query)
	v.intInRange("limit", params.Limit, 1, 100)
	v.floatInRange("min_score", params.MinScore, 0, 1)
	if err := v.result(); err != nil {
		return nil, err
	}

	matches, err := t.semantic.SearchWithEntities(ctx, params.Query, params.Limit)
	if err != nil {
		return nil, err
	}

	filtered := make([]memory.EnrichedSemanticMatch, 0, len(matches))
	for _, m := range matches {
		if m.Score >= params.MinScore {
			filtered = append(filtered, m)
		}
	}

	text := fmt.Sprintf("Found %d concepts", len(filtered))
	for _, m := range filtered {
		text += fmt.Sprintf("\n- %s (score %.2f)", m.Concept.Name, m.Score)
		if len(m.LinkedEntityNames) > 0 {
			text += fmt.Sprintf(" -> entities: %v", m.LinkedEntityNames)
		}
	}
	return &Result{
		Text:       text,
		Structured: map[string]interface{}{"matches": filtered},
	}, nil
}

// EntityLookupTool expands entity neighborhoods breadth-first up to the
// requested depth.
type EntityLookupTool struct {
	entities EntityStore
}

func NewEntityLookupTool(entities EntityStore) *EntityLookupTool {
	return &EntityLookupTool{entities: entities}
}

func (t *EntityLookupTool) Name() string { return "entity_lookup" }

func (t *EntityLookupTool) Description() string {
	return "Look up entities by id and expand their relationships breadth-first"
}

func (t *EntityLookupTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"entity_ids":         stringArrayProp("Entity uuids to expand from"),
		"depth":              intProp("Expansion depth, 1-5 (default 1)"),
		"include_properties": boolProp("Include entity properties in the response (default false)"),
	}, "entity_ids")
}

type entityLookupInput struct {
	EntityIDs         []string `json:"entity_ids"`
	Depth             int      `json:"depth,omitempty"`
	IncludeProperties bool     `json:"include_properties,omitempty"`
}

func (t *EntityLookupTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params entityLookupInput
	if err := decodeInput(t.Name(), input, &params); err != nil {
		return nil, err
	}
	if params.Depth == 0 {
		params.Depth = 1
	}

	v := &validator{}
	v.requireStrings("entity_ids", params.EntityIDs)
	v.intInRange("depth", params.Depth, 1, 5)
	if err := v.result(); err != nil {
		return nil, err
	}

	relationships, err := t.expand(ctx, params.EntityIDs, params.Depth)
	if err != nil {
		return nil, err
	}

	if !params.IncludeProperties {
		for i := range relationships {
			relationships[i].Source.Properties = nil
			relationships[i].Target.Properties = nil
		}
	}

	text := fmt.Sprintf("Found %d relationships within depth %d", len(relationships), params.Depth)
	for _, rel := range relationships {
		text += fmt.Sprintf("\n- %s -[%s]-> %s", rel.Source.Name, rel.RelationshipType, rel.Target.Name)
	}
	return &Result{
		Text:       text,
		Structured: map[string]interface{}{"relationships": relationships},
	}, nil
}

// expand walks the relationship graph level by level, visiting each
// entity once.
func (t *EntityLookupTool) expand(ctx context.Context, seedIDs []string, depth int) ([]memory.Relationship, error) {
	visited := make(map[string]bool, len(seedIDs))
	seen := make(map[string]bool)
	var out []memory.Relationship

	level := seedIDs
	for d := 0; d < depth && len(level) > 0; d++ {
		var fetch []string
		for _, id := range level {
			if !visited[id] {
				visited[id] = true
				fetch = append(fetch, id)
			}
		}
		if len(fetch) == 0 {
			break
		}

		batch, err := t.entities.GetRelationshipsBatch(ctx, fetch)
		if err != nil {
			return nil, err
		}

		var next []string
		for _, rels := range batch {
			for _, rel := range rels {
				key := rel.Source.UUID + "\x00" + rel.RelationshipType + "\x00" + rel.Target.UUID
				if seen[key] {
					continue
				}
				seen[key] = true
				out = append(out, rel)
				if !visited[rel.Source.UUID] {
					next = append(next, rel.Source.UUID)
				}
				if !visited[rel.Target.UUID] {
					next = append(next, rel.Target.UUID)
				}
			}
		}
		level = next
	}
	return out, nil
}

// TemporalExpandTool returns events involving the given entities inside
// a time window, defaulting to one year around now.
type TemporalExpandTool struct {
	temporal TemporalStore
}

func NewTemporalExpandTool(temporal TemporalStore) *TemporalExpandTool {
	return &TemporalExpandTool{temporal: temporal}
}

func (t *TemporalExpandTool) Name() string { return "temporal_expand" }

func (t *TemporalExpandTool) Description() string {
	return "Get events involving the given entities within a time window"
}

func (t *TemporalExpandTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"entity_ids": stringArrayProp("Entity uuids to query events for"),
		"from":       stringProp("Window start (RFC3339 or natural language; default 1 year ago)"),
		"to":         stringProp("Window end (default 1 year from now)"),
	}, "entity_ids")
}

type temporalExpandInput struct {
	EntityIDs []string `json:"entity_ids"`
	From      string   `json:"from,omitempty"`
	To        string   `json:"to,omitempty"`
}

func (t *TemporalExpandTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params temporalExpandInput
	if err := decodeInput(t.Name(), input, &params); err != nil {
		return nil, err
	}

	v := &validator{}
	v.requireStrings("entity_ids", params.EntityIDs)
	if err := v.result(); err != nil {
		return nil, err
	}

	now := time.Now()
	from := now.AddDate(-1, 0, 0)
	to := now.AddDate(1, 0, 0)
	if params.From != "" {
		parsed, err := memory.ParseTime(params.From)
		if err != nil {
			return nil, ValidationErrors{{Path: "from", Message: fmt.Sprintf("unparseable time %q", params.From)}}
		}
		from = parsed
	}
	if params.To != "" {
		parsed, err := memory.ParseTime(params.To)
		if err != nil {
			return nil, ValidationErrors{{Path: "to", Message: fmt.Sprintf("unparseable time %q", params.To)}}
		}
		to = parsed
	}

	events, err := t.temporal.QueryTimelineForEntities(ctx, params.EntityIDs, from, to)
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("Found %d events between %s and %s",
		len(events), from.Format(time.RFC3339), to.Format(time.RFC3339))
	for _, ev := range events {
		text += fmt.Sprintf("\n- [%s] %s", ev.OccurredAt.Format(time.RFC3339), ev.Description)
	}
	return &Result{
		Text:       text,
		Structured: map[string]interface{}{"events": events},
	}, nil
}

// CausalExpandTool walks cause-effect chains anchored on the given
// entities.
type CausalExpandTool struct {
	causal CausalStore
}

func NewCausalExpandTool(causal CausalStore) *CausalExpandTool {
	return &CausalExpandTool{causal: causal}
}

func (t *CausalExpandTool) Name() string { return "causal_expand" }

func (t *CausalExpandTool) Description() string {
	return "Traverse cause-effect chains anchored on the given entities"
}

func (t *CausalExpandTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"entity_ids": stringArrayProp("Entity uuids to anchor the traversal on"),
		"direction": map[string]interface{}{
			"type":        "string",
			"enum":        []string{"upstream", "downstream", "both"},
			"description": "Traversal direction (default both)",
		},
		"depth": intProp("Traversal depth, 1-5 (default 2)"),
	}, "entity_ids")
}

type causalExpandInput struct {
	EntityIDs []string `json:"entity_ids"`
	Direction string   `json:"direction,omitempty"`
	Depth     int      `json:"depth,omitempty"`
}

func (t *CausalExpandTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params causalExpandInput
	if err := decodeInput(t.Name(), input, &params); err != nil {
		return nil, err
	}
	if params.Direction == "" {
		params.Direction = string(memory.DirectionBoth)
	}
	if params.Depth == 0 {
		params.Depth = 2
	}

	v := &validator{}
	v.requireStrings("entity_ids", params.EntityIDs)
	if !memory.ValidDirection(memory.TraversalDirection(params.Direction)) {
		v.fail("direction", "must be one of upstream, downstream, both")
	}
	v.intInRange("depth", params.Depth, 1, 5)
	if err := v.result(); err != nil {
		return nil, err
	}

	links, err := t.causal.Traverse(ctx, params.EntityIDs, memory.TraversalDirection(params.Direction), params.Depth)
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("Found %d causal links (%s, depth %d)", len(links), params.Direction, params.Depth)
	for _, link := range links {
		text += fmt.Sprintf("\n- %q causes %q (confidence %.2f)",
			link.Cause.Description, link.Effect.Description, link.Confidence)
	}
	return &Result{
		Text:       text,
		Structured: map[string]interface{}{"links": links},
	}, nil
}
