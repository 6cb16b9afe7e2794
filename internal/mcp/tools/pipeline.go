package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/moolen/magma/internal/magma"
)

// SubgraphMergeTool merges pre-built graph views into a scored
// subgraph. It exposes the merger stage directly so callers can compose
// their own pipelines.
type SubgraphMergeTool struct{}

func NewSubgraphMergeTool() *SubgraphMergeTool {
	return &SubgraphMergeTool{}
}

func (t *SubgraphMergeTool) Name() string { return "subgraph_merge" }

func (t *SubgraphMergeTool) Description() string {
	return "Merge graph views into a deduplicated, scored subgraph"
}

func (t *SubgraphMergeTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"views": map[string]interface{}{
			"type":        "array",
			"description": "Graph views to merge, each {source, nodes: [{uuid, data, score}]}",
		},
		"multi_view_boost": numberProp("Score boost per extra view, 1-10 (default 1.5)"),
		"min_score":        numberProp("Optional: drop merged nodes below this final score"),
	}, "views")
}

type subgraphMergeInput struct {
	Views          []magma.GraphView `json:"views"`
	MultiViewBoost float64           `json:"multi_view_boost,omitempty"`
	MinScore       float64           `json:"min_score,omitempty"`
}

func (t *SubgraphMergeTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params subgraphMergeInput
	if err := decodeInput(t.Name(), input, &params); err != nil {
		return nil, err
	}

	v := &validator{}
	if len(params.Views) == 0 {
		v.fail("views", "must contain at least one view")
	}
	if params.MinScore < 0 {
		v.fail("min_score", "must not be negative, got %g", params.MinScore)
	}
	if err := v.result(); err != nil {
		return nil, err
	}

	config := magma.DefaultMergerConfig()
	if params.MultiViewBoost != 0 {
		config.MultiViewBoost = params.MultiViewBoost
	}
	merger, err := magma.NewMerger(config)
	if err != nil {
		return nil, err
	}

	merged, err := merger.Merge(params.Views)
	if err != nil {
		return nil, err
	}
	if params.MinScore > 0 {
		merged, err = magma.FilterByScore(merged, params.MinScore)
		if err != nil {
			return nil, err
		}
	}

	var contributions []string
	for _, source := range magma.AllViewSources {
		if n := merged.ViewContributions[source]; n > 0 {
			contributions = append(contributions, fmt.Sprintf("%s: %d", source, n))
		}
	}
	text := fmt.Sprintf("Merged %d views into %d nodes", len(params.Views), len(merged.Nodes))
	if len(contributions) > 0 {
		text += " (" + strings.Join(contributions, ", ") + ")"
	}
	return &Result{Text: text, Structured: merged}, nil
}

// LinearizeContextTool renders a merged subgraph into LLM-ready text
// using the intent's strategy.
type LinearizeContextTool struct{}

func NewLinearizeContextTool() *LinearizeContextTool {
	return &LinearizeContextTool{}
}

func (t *LinearizeContextTool) Name() string { return "linearize_context" }

func (t *LinearizeContextTool) Description() string {
	return "Render a merged subgraph into LLM-ready context text"
}

func (t *LinearizeContextTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"subgraph": map[string]interface{}{
			"type":        "object",
			"description": "A merged subgraph as produced by subgraph_merge",
		},
		"intent": map[string]interface{}{
			"type":        "string",
			"enum":        []string{"WHY", "WHEN", "WHO", "WHAT", "EXPLORE"},
			"description": "Question intent driving the linearization strategy",
		},
		"max_tokens": intProp("Token budget, 100-100000 (default 4000)"),
	}, "subgraph", "intent")
}

type linearizeContextInput struct {
	Subgraph  *magma.MergedSubgraph `json:"subgraph"`
	Intent    string                `json:"intent"`
	MaxTokens int                   `json:"max_tokens,omitempty"`
}

func (t *LinearizeContextTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params linearizeContextInput
	if err := decodeInput(t.Name(), input, &params); err != nil {
		return nil, err
	}

	v := &validator{}
	if params.Subgraph == nil {
		v.fail("subgraph", "is required")
	}
	intent := magma.IntentType(params.Intent)
	if params.Intent != "" && !magma.ValidIntentType(intent) {
		v.fail("intent", "must be one of WHY, WHEN, WHO, WHAT, EXPLORE")
	}
	if params.MaxTokens != 0 {
		v.intInRange("max_tokens", params.MaxTokens, 100, 100_000)
	}
	if err := v.result(); err != nil {
		return nil, err
	}

	linearizer, err := magma.NewLinearizer(params.MaxTokens)
	if err != nil {
		return nil, err
	}
	linearized, err := linearizer.Linearize(params.Subgraph, intent)
	if err != nil {
		return nil, err
	}
	return &Result{Text: linearized.Text, Structured: linearized}, nil
}

// QueryMemoryTool runs the full pipeline end to end: intent
// classification, retrieval, linearization and optional answer
// synthesis.
type QueryMemoryTool struct {
	deps Dependencies
}

func NewQueryMemoryTool(deps Dependencies) *QueryMemoryTool {
	return &QueryMemoryTool{deps: deps}
}

func (t *QueryMemoryTool) Name() string { return "query_memory" }

func (t *QueryMemoryTool) Description() string {
	return "Answer a natural-language question against all memory graphs"
}

func (t *QueryMemoryTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"question":   stringProp("The question to answer"),
		"max_tokens": intProp("Context token budget, 100-100000 (default 4000)"),
		"synthesize": boolProp("Generate a natural-language answer from the retrieved context (default false)"),
	}, "question")
}

type queryMemoryInput struct {
	Question   string `json:"question"`
	MaxTokens  int    `json:"max_tokens,omitempty"`
	Synthesize bool   `json:"synthesize,omitempty"`
}

func (t *QueryMemoryTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params queryMemoryInput
	if err := decodeInput(t.Name(), input, &params); err != nil {
		return nil, err
	}

	v := &validator{}
	v.requireString("question", params.Question)
	if params.MaxTokens != 0 {
		v.intInRange("max_tokens", params.MaxTokens, 100, 100_000)
	}
	if err := v.result(); err != nil {
		return nil, err
	}

	intent := magma.DefaultIntent()
	if t.deps.Classifier != nil {
		classified, err := t.deps.Classifier.Classify(ctx, params.Question)
		if err == nil {
			intent = classified
		}
	}

	executor, err := magma.NewExecutor(t.deps.Executor, t.deps.Semantic, t.deps.Entities, t.deps.Temporal, t.deps.Causal)
	if err != nil {
		return nil, err
	}
	result, err := executor.Execute(ctx, params.Question, intent)
	if err != nil {
		return nil, err
	}

	linearizer, err := magma.NewLinearizer(params.MaxTokens)
	if err != nil {
		return nil, err
	}
	linearized, err := linearizer.Linearize(result.Merged, intent.Type)
	if err != nil {
		return nil, err
	}

	structured := map[string]interface{}{
		"intent":  intent,
		"timing":  result.Timing,
		"context": linearized,
	}
	text := linearized.Text

	if params.Synthesize && t.deps.Synthesizer != nil {
		answer, err := t.deps.Synthesizer.Synthesize(ctx, linearized, intent, params.Question)
		if err != nil {
			return nil, err
		}
		structured["answer"] = answer
		text = answer.Text
	}

	return &Result{Text: text, Structured: structured}, nil
}
