package graph

import (
	"regexp"
	"time"
)

// NodeLabel represents a graph node label. Labels carry a one-letter scope
// prefix identifying the memory graph the node belongs to: S_ (semantic),
// E_ (entity), T_ (temporal), C_ (causal).
type NodeLabel string

const (
	LabelConcept    NodeLabel = "S_Concept"
	LabelEntity     NodeLabel = "E_Entity"
	LabelEvent      NodeLabel = "T_Event"
	LabelFact       NodeLabel = "T_Fact"
	LabelCausalNode NodeLabel = "C_Node"
)

// RelationType represents a graph relationship type.
type RelationType string

const (
	// Intra-graph relations
	RelRelates RelationType = "E_RELATES" // entity-entity, carries relationship_type
	RelCauses  RelationType = "C_CAUSES"  // causal, carries confidence, evidence, created_at

	// Cross-links between graphs. A cross-link is a lookup relationship,
	// never ownership of the target.
	RelRepresents RelationType = "X_REPRESENTS" // Concept → Entity
	RelInvolves   RelationType = "X_INVOLVES"   // Event → Entity
	RelRefersTo   RelationType = "X_REFERS_TO"  // CausalNode → Event
	RelAffects    RelationType = "X_AFFECTS"    // CausalNode → Entity
)

// ScopePrefixes lists the label prefixes used by clear-by-scope.
var ScopePrefixes = []string{"S_", "E_", "T_", "C_"}

var labelPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidLabel reports whether s is a syntactically valid node label or
// relationship type.
func ValidLabel(s string) bool {
	return labelPattern.MatchString(s)
}

// GraphQuery represents a Cypher query with parameters.
type GraphQuery struct {
	Query      string                 `json:"query"`
	Parameters map[string]interface{} `json:"parameters"`
	Timeout    int                    `json:"timeout,omitempty"` // milliseconds, 0 = default
}

// QueryResult represents the result of a graph query.
type QueryResult struct {
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
	Stats   QueryStats      `json:"stats"`
}

// QueryStats represents query execution statistics.
type QueryStats struct {
	NodesCreated         int           `json:"nodesCreated"`
	NodesDeleted         int           `json:"nodesDeleted"`
	RelationshipsCreated int           `json:"relationshipsCreated"`
	RelationshipsDeleted int           `json:"relationshipsDeleted"`
	PropertiesSet        int           `json:"propertiesSet"`
	LabelsAdded          int           `json:"labelsAdded"`
	ExecutionTime        time.Duration `json:"executionTime"`
}

// Statistics represents node counts per memory graph plus the total
// relationship count. The JSON field names are part of the get_statistics
// tool contract.
type Statistics struct {
	SemanticNodes      int `json:"semantic_nodes"`
	TemporalNodes      int `json:"temporal_nodes"`
	CausalNodes        int `json:"causal_nodes"`
	EntityNodes        int `json:"entity_nodes"`
	TotalRelationships int `json:"total_relationships"`
}

// VectorMatch is one hit from a vector index query. Score is the raw
// distance reported by the index; smaller is closer.
type VectorMatch struct {
	Properties map[string]interface{} `json:"properties"`
	Score      float64                `json:"score"`
}
