// Package memory provides typed, label-scoped facades over the four
// co-resident memory graphs: semantic (vector-indexed concepts), entity,
// temporal (events and time-bounded facts), and causal, plus the
// cross-linker that bridges them. A facade never mutates state outside its
// label scope.
package memory

import (
	"time"

	"github.com/moolen/magma/internal/errors"
	"github.com/moolen/magma/internal/graph"
)

// Concept is a semantic graph node. The embedding vector is stored on the
// node but not carried around in memory.
type Concept struct {
	UUID        string `json:"uuid"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// SemanticMatch is one vector search hit. Score is a similarity in [0,1].
type SemanticMatch struct {
	Concept Concept `json:"concept"`
	Score   float64 `json:"score"`
}

// EnrichedSemanticMatch additionally carries the entities the concept
// represents, resolved via X_REPRESENTS in the same traversal.
type EnrichedSemanticMatch struct {
	SemanticMatch
	LinkedEntityIDs   []string `json:"linkedEntityIds"`
	LinkedEntityNames []string `json:"linkedEntityNames"`
}

// Entity is an entity graph node.
type Entity struct {
	UUID       string                 `json:"uuid"`
	Name       string                 `json:"name"`
	EntityType string                 `json:"entity_type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	CreatedAt  string                 `json:"created_at,omitempty"`
}

// Relationship is one E_RELATES edge with both endpoints resolved.
type Relationship struct {
	Source           Entity `json:"source"`
	Target           Entity `json:"target"`
	RelationshipType string `json:"relationship_type"`
}

// Event is a temporal graph event node.
type Event struct {
	UUID        string    `json:"uuid"`
	Description string    `json:"description"`
	OccurredAt  time.Time `json:"occurred_at"`
	Duration    float64   `json:"duration,omitempty"` // seconds
}

// Fact is a time-bounded statement. ValidTo is nil while the fact holds.
type Fact struct {
	UUID      string     `json:"uuid"`
	Subject   string     `json:"subject"`
	Predicate string     `json:"predicate"`
	Object    string     `json:"object"`
	ValidFrom time.Time  `json:"valid_from"`
	ValidTo   *time.Time `json:"valid_to,omitempty"`
}

// CausalNode is a causal graph node.
type CausalNode struct {
	UUID        string `json:"uuid"`
	Description string `json:"description"`
	NodeType    string `json:"node_type"`
}

// CausalLink is one C_CAUSES edge with both endpoints resolved.
type CausalLink struct {
	Cause      CausalNode `json:"cause"`
	Effect     CausalNode `json:"effect"`
	Confidence float64    `json:"confidence"`
	Evidence   string     `json:"evidence,omitempty"`
	CreatedAt  string     `json:"created_at,omitempty"`
}

// CrossLink is one typed edge spanning two graphs.
type CrossLink struct {
	SourceUUID string `json:"source_uuid"`
	TargetUUID string `json:"target_uuid"`
	LinkType   string `json:"link_type"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// Mention is one entity reference to resolve against the entity graph.
type Mention struct {
	Mention string `json:"mention"`
	Type    string `json:"type,omitempty"`
}

// timeLayout is the wire format for instants. RFC3339 in UTC sorts
// lexicographically in chronological order, which the temporal range
// queries rely on.
const timeLayout = time.RFC3339

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseConcept builds a Concept from raw node properties.
func parseConcept(props map[string]interface{}) (Concept, error) {
	name := graph.GetStringProperty(props, "name")
	if name == "" {
		return Concept{}, errors.NewParse("parseConcept", "concept record missing name").WithLabel(string(graph.LabelConcept))
	}
	return Concept{
		UUID:        graph.GetStringProperty(props, "uuid"),
		Name:        name,
		Description: graph.GetStringProperty(props, "description"),
		CreatedAt:   graph.GetStringProperty(props, "created_at"),
	}, nil
}

// parseEntity builds an Entity from raw node properties. Reserved keys are
// lifted into struct fields; everything else lands in Properties.
func parseEntity(props map[string]interface{}) (Entity, error) {
	name := graph.GetStringProperty(props, "name")
	if name == "" {
		return Entity{}, errors.NewParse("parseEntity", "entity record missing name").WithLabel(string(graph.LabelEntity))
	}

	entity := Entity{
		UUID:       graph.GetStringProperty(props, "uuid"),
		Name:       name,
		EntityType: graph.GetStringProperty(props, "entity_type"),
		CreatedAt:  graph.GetStringProperty(props, "created_at"),
	}

	for k, v := range props {
		switch k {
		case "uuid", "name", "entity_type", "created_at":
			continue
		}
		if entity.Properties == nil {
			entity.Properties = make(map[string]interface{})
		}
		entity.Properties[k] = v
	}

	return entity, nil
}

// parseEvent builds an Event from raw node properties.
func parseEvent(props map[string]interface{}) (Event, error) {
	occurredAtRaw := graph.GetStringProperty(props, "occurred_at")
	if occurredAtRaw == "" {
		return Event{}, errors.NewParse("parseEvent", "event record missing occurred_at").WithLabel(string(graph.LabelEvent))
	}
	occurredAt, err := time.Parse(timeLayout, occurredAtRaw)
	if err != nil {
		return Event{}, errors.NewParse("parseEvent", "event occurred_at %q is not RFC3339", occurredAtRaw).Wrap(err)
	}

	return Event{
		UUID:        graph.GetStringProperty(props, "uuid"),
		Description: graph.GetStringProperty(props, "description"),
		OccurredAt:  occurredAt,
		Duration:    graph.GetFloat64Property(props, "duration"),
	}, nil
}

// parseFact builds a Fact from raw node properties.
func parseFact(props map[string]interface{}) (Fact, error) {
	subject := graph.GetStringProperty(props, "subject")
	predicate := graph.GetStringProperty(props, "predicate")
	object := graph.GetStringProperty(props, "object")
	if subject == "" || predicate == "" || object == "" {
		return Fact{}, errors.NewParse("parseFact", "fact record missing subject/predicate/object").WithLabel(string(graph.LabelFact))
	}

	validFromRaw := graph.GetStringProperty(props, "valid_from")
	validFrom, err := time.Parse(timeLayout, validFromRaw)
	if err != nil {
		return Fact{}, errors.NewParse("parseFact", "fact valid_from %q is not RFC3339", validFromRaw).Wrap(err)
	}

	fact := Fact{
		UUID:      graph.GetStringProperty(props, "uuid"),
		Subject:   subject,
		Predicate: predicate,
		Object:    object,
		ValidFrom: validFrom,
	}

	if validToRaw := graph.GetStringProperty(props, "valid_to"); validToRaw != "" {
		validTo, err := time.Parse(timeLayout, validToRaw)
		if err != nil {
			return Fact{}, errors.NewParse("parseFact", "fact valid_to %q is not RFC3339", validToRaw).Wrap(err)
		}
		fact.ValidTo = &validTo
	}

	return fact, nil
}

// parseCausalNode builds a CausalNode from raw node properties.
func parseCausalNode(props map[string]interface{}) (CausalNode, error) {
	description := graph.GetStringProperty(props, "description")
	if description == "" {
		return CausalNode{}, errors.NewParse("parseCausalNode", "causal node record missing description").WithLabel(string(graph.LabelCausalNode))
	}
	return CausalNode{
		UUID:        graph.GetStringProperty(props, "uuid"),
		Description: description,
		NodeType:    graph.GetStringProperty(props, "node_type"),
	}, nil
}
