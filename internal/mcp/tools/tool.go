// Package tools implements the MCP tool surface: validated
// request/response entry points over the memory graphs and the
// retrieval pipeline.
package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/moolen/magma/internal/graph"
	"github.com/moolen/magma/internal/magma"
	"github.com/moolen/magma/internal/memory"
)

// Result is a successful tool response: a human-readable text block and
// an optional machine-readable payload.
type Result struct {
	Text       string
	Structured interface{}
}

// Tool is one callable tool. Execute validates its raw JSON input and
// returns either a Result or an error the handler maps to an isError
// response.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}
	Execute(ctx context.Context, input json.RawMessage) (*Result, error)
}

// GraphAdmin is the management slice of the storage client.
type GraphAdmin interface {
	GetStatistics(ctx context.Context) (*graph.Statistics, error)
	ClearGraph(ctx context.Context) error
	ClearScope(ctx context.Context, prefix string) (int, error)
}

// SemanticStore is the semantic graph surface the tools consume.
type SemanticStore interface {
	AddConcept(ctx context.Context, name, description string) (*memory.Concept, error)
	SearchWithEntities(ctx context.Context, query string, topK int) ([]memory.EnrichedSemanticMatch, error)
}

// EntityStore is the entity graph surface the tools consume.
type EntityStore interface {
	AddEntity(ctx context.Context, name, entityType string, properties map[string]interface{}) (*memory.Entity, error)
	GetEntity(ctx context.Context, nameOrUUID string) (*memory.Entity, error)
	LinkEntities(ctx context.Context, source, target, relationshipType string) error
	GetRelationshipsBatch(ctx context.Context, entityUUIDs []string) (map[string][]memory.Relationship, error)
}

// TemporalStore is the temporal graph surface the tools consume.
type TemporalStore interface {
	AddEvent(ctx context.Context, description string, occurredAt time.Time) (*memory.Event, error)
	AddFact(ctx context.Context, subject, predicate, object string, validFrom time.Time, validTo *time.Time) (*memory.Fact, error)
	QueryTimelineForEntities(ctx context.Context, entityUUIDs []string, from, to time.Time) ([]memory.Event, error)
	LinkEventToEntity(ctx context.Context, eventUUID, entityUUID string) error
}

// CausalStore is the causal graph surface the tools consume.
type CausalStore interface {
	AddLink(ctx context.Context, cause, effect string, confidence float64, evidence string) (*memory.CausalLink, error)
	Traverse(ctx context.Context, mentions []string, direction memory.TraversalDirection, maxDepth int) ([]memory.CausalLink, error)
	LinkToEvent(ctx context.Context, causalUUID, eventUUID string) error
	LinkToEntity(ctx context.Context, causalUUID, entityUUID string) error
}

// CrossLinkStore creates typed edges spanning two graphs.
type CrossLinkStore interface {
	CreateLink(ctx context.Context, sourceUUID, targetUUID string, linkType graph.RelationType) (*memory.CrossLink, error)
}

// Dependencies wires the tool set to the memory facades and the
// pipeline components. Classifier and Synthesizer are optional; the
// query tool degrades to defaults when they are nil.
type Dependencies struct {
	Graph       GraphAdmin
	Semantic    SemanticStore
	Entities    EntityStore
	Temporal    TemporalStore
	Causal      CausalStore
	Links       CrossLinkStore
	Classifier  magma.Classifier
	Synthesizer magma.Synthesizer
	Executor    magma.ExecutorConfig
}

// All returns the full tool catalog in registration order.
func All(deps Dependencies) []Tool {
	return []Tool{
		NewGetStatisticsTool(deps.Graph),
		NewClearGraphTool(deps.Graph),
		NewRememberTool(deps.Semantic, deps.Entities, deps.Links),
		NewAddEntityTool(deps.Entities),
		NewLinkEntitiesTool(deps.Entities),
		NewAddEventTool(deps.Temporal, deps.Entities, deps.Links),
		NewAddFactTool(deps.Temporal, deps.Entities, deps.Links),
		NewAddCausalLinkTool(deps.Causal, deps.Entities),
		NewAddConceptTool(deps.Semantic),
		NewSemanticSearchTool(deps.Semantic),
		NewEntityLookupTool(deps.Entities),
		NewTemporalExpandTool(deps.Temporal),
		NewCausalExpandTool(deps.Causal),
		NewSubgraphMergeTool(),
		NewLinearizeContextTool(),
		NewQueryMemoryTool(deps),
	}
}

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func intProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": description}
}

func numberProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "number", "description": description}
}

func boolProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "boolean", "description": description}
}

func stringArrayProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "string"},
		"description": description,
	}
}
