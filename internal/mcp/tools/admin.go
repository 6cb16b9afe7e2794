package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// GetStatisticsTool reports per-graph node counts and the relationship
// total.
type GetStatisticsTool struct {
	graph GraphAdmin
}

func NewGetStatisticsTool(graph GraphAdmin) *GetStatisticsTool {
	return &GetStatisticsTool{graph: graph}
}

func (t *GetStatisticsTool) Name() string { return "get_statistics" }

func (t *GetStatisticsTool) Description() string {
	return "Get node counts per memory graph (semantic, entity, temporal, causal) and the total relationship count"
}

func (t *GetStatisticsTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{})
}

func (t *GetStatisticsTool) Execute(ctx context.Context, _ json.RawMessage) (*Result, error) {
	stats, err := t.graph.GetStatistics(ctx)
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf(
		"Memory statistics:\n- semantic concepts: %d\n- entities: %d\n- temporal nodes: %d\n- causal nodes: %d\n- relationships: %d",
		stats.SemanticNodes, stats.EntityNodes, stats.TemporalNodes, stats.CausalNodes, stats.TotalRelationships)

	return &Result{Text: text, Structured: stats}, nil
}

// ClearGraphTool removes one memory graph by label scope, or the whole
// store.
type ClearGraphTool struct {
	graph GraphAdmin
}

func NewClearGraphTool(graph GraphAdmin) *ClearGraphTool {
	return &ClearGraphTool{graph: graph}
}

// scopePrefix maps the tool-level graph name onto the label prefix the
// store clears by.
var scopePrefix = map[string]string{
	"semantic": "S_",
	"entity":   "E_",
	"temporal": "T_",
	"causal":   "C_",
}

func (t *ClearGraphTool) Name() string { return "clear_graph" }

func (t *ClearGraphTool) Description() string {
	return "Clear one memory graph (semantic, entity, temporal, causal) or all of them"
}

func (t *ClearGraphTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"graph": map[string]interface{}{
			"type":        "string",
			"enum":        []string{"semantic", "entity", "temporal", "causal", "all"},
			"description": "Which graph to clear",
		},
	}, "graph")
}

type clearGraphInput struct {
	Graph string `json:"graph"`
}

func (t *ClearGraphTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params clearGraphInput
	if err := decodeInput(t.Name(), input, &params); err != nil {
		return nil, err
	}

	v := &validator{}
	if params.Graph != "all" {
		if _, ok := scopePrefix[params.Graph]; !ok {
			v.fail("graph", "must be one of semantic, entity, temporal, causal, all")
		}
	}
	if err := v.result(); err != nil {
		return nil, err
	}

	if params.Graph == "all" {
		if err := t.graph.ClearGraph(ctx); err != nil {
			return nil, err
		}
		return &Result{
			Text:       "Cleared all memory graphs",
			Structured: map[string]interface{}{"graph": "all"},
		}, nil
	}

	deleted, err := t.graph.ClearScope(ctx, scopePrefix[params.Graph])
	if err != nil {
		return nil, err
	}
	return &Result{
		Text: fmt.Sprintf("Cleared %s graph: %d nodes deleted", params.Graph, deleted),
		Structured: map[string]interface{}{
			"graph":         params.Graph,
			"nodes_deleted": deleted,
		},
	}, nil
}
