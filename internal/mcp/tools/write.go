package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/moolen/magma/internal/graph"
	"github.com/moolen/magma/internal/memory"
)

// RememberTool stores free-form content as a semantic concept so it
// becomes reachable via vector search. When context names a known
// entity the concept is cross-linked to it, which is what later lets
// retrieval seed entities from vector hits.
type RememberTool struct {
	semantic SemanticStore
	entities EntityStore
	links    CrossLinkStore
}

func NewRememberTool(semantic SemanticStore, entities EntityStore, links CrossLinkStore) *RememberTool {
	return &RememberTool{semantic: semantic, entities: entities, links: links}
}

func (t *RememberTool) Name() string { return "remember" }

func (t *RememberTool) Description() string {
	return "Store a piece of information in semantic memory"
}

func (t *RememberTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"content": stringProp("The information to remember"),
		"context": stringProp("Optional context; when it names a known entity the concept is linked to it"),
	}, "content")
}

type rememberInput struct {
	Content string `json:"content"`
	Context string `json:"context,omitempty"`
}

// conceptNameFromContent derives a short display name from the stored
// content, keeping the full text in the description. Truncation is on
// rune boundaries so multi-byte content stays valid UTF-8.
func conceptNameFromContent(content string) string {
	name := strings.Join(strings.Fields(content), " ")
	if runes := []rune(name); len(runes) > 80 {
		name = string(runes[:77]) + "..."
	}
	return name
}

func (t *RememberTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params rememberInput
	if err := decodeInput(t.Name(), input, &params); err != nil {
		return nil, err
	}

	v := &validator{}
	v.requireString("content", params.Content)
	if err := v.result(); err != nil {
		return nil, err
	}

	description := params.Content
	if params.Context != "" {
		description += "\n\nContext: " + params.Context
	}

	concept, err := t.semantic.AddConcept(ctx, conceptNameFromContent(params.Content), description)
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("Remembered as concept %s", concept.UUID)

	// The representation link is what seed extraction traverses; the
	// concept write stands even when the context entity is unknown, but
	// the response must say the link was skipped.
	if params.Context != "" {
		entity, err := t.entities.GetEntity(ctx, params.Context)
		switch {
		case err != nil:
			text += fmt.Sprintf("\nEntity %q not found; representation link skipped", params.Context)
		default:
			if _, err := t.links.CreateLink(ctx, concept.UUID, entity.UUID, graph.RelRepresents); err != nil {
				text += fmt.Sprintf("\nFailed to link entity %q: link skipped", params.Context)
			} else {
				text += fmt.Sprintf("\nLinked to entity %s", entity.Name)
			}
		}
	}

	return &Result{Text: text, Structured: concept}, nil
}

// AddEntityTool creates an entity graph node.
type AddEntityTool struct {
	entities EntityStore
}

func NewAddEntityTool(entities EntityStore) *AddEntityTool {
	return &AddEntityTool{entities: entities}
}

func (t *AddEntityTool) Name() string { return "add_entity" }

func (t *AddEntityTool) Description() string {
	return "Add a named entity (person, service, place, ...) to the entity graph"
}

func (t *AddEntityTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"name":        stringProp("Entity name"),
		"entity_type": stringProp("Entity type, e.g. 'person', 'service'"),
		"properties": map[string]interface{}{
			"type":        "object",
			"description": "Optional additional properties",
		},
	}, "name", "entity_type")
}

type addEntityInput struct {
	Name       string                 `json:"name"`
	EntityType string                 `json:"entity_type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

func (t *AddEntityTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params addEntityInput
	if err := decodeInput(t.Name(), input, &params); err != nil {
		return nil, err
	}

	v := &validator{}
	v.requireString("name", params.Name)
	v.requireString("entity_type", params.EntityType)
	if err := v.result(); err != nil {
		return nil, err
	}

	entity, err := t.entities.AddEntity(ctx, params.Name, params.EntityType, params.Properties)
	if err != nil {
		return nil, err
	}
	return &Result{
		Text:       fmt.Sprintf("Added entity %q (%s) as %s", entity.Name, entity.EntityType, entity.UUID),
		Structured: entity,
	}, nil
}

// LinkEntitiesTool creates an E_RELATES edge between two entities.
type LinkEntitiesTool struct {
	entities EntityStore
}

func NewLinkEntitiesTool(entities EntityStore) *LinkEntitiesTool {
	return &LinkEntitiesTool{entities: entities}
}

func (t *LinkEntitiesTool) Name() string { return "link_entities" }

func (t *LinkEntitiesTool) Description() string {
	return "Create a typed relationship between two entities"
}

func (t *LinkEntitiesTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"source":       stringProp("Source entity name or uuid"),
		"target":       stringProp("Target entity name or uuid"),
		"relationship": stringProp("Relationship type, e.g. 'depends_on'"),
	}, "source", "target", "relationship")
}

type linkEntitiesInput struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	Relationship string `json:"relationship"`
}

func (t *LinkEntitiesTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params linkEntitiesInput
	if err := decodeInput(t.Name(), input, &params); err != nil {
		return nil, err
	}

	v := &validator{}
	v.requireString("source", params.Source)
	v.requireString("target", params.Target)
	v.requireString("relationship", params.Relationship)
	if err := v.result(); err != nil {
		return nil, err
	}

	if err := t.entities.LinkEntities(ctx, params.Source, params.Target, params.Relationship); err != nil {
		return nil, err
	}
	return &Result{
		Text: fmt.Sprintf("Linked %s -[%s]-> %s", params.Source, params.Relationship, params.Target),
		Structured: map[string]interface{}{
			"source":       params.Source,
			"target":       params.Target,
			"relationship": params.Relationship,
		},
	}, nil
}

// AddEventTool records a timestamped event, optionally cross-linked to
// the entities it involves.
type AddEventTool struct {
	temporal TemporalStore
	entities EntityStore
	links    CrossLinkStore
}

func NewAddEventTool(temporal TemporalStore, entities EntityStore, links CrossLinkStore) *AddEventTool {
	return &AddEventTool{temporal: temporal, entities: entities, links: links}
}

func (t *AddEventTool) Name() string { return "add_event" }

func (t *AddEventTool) Description() string {
	return "Record a timestamped event in the temporal graph"
}

func (t *AddEventTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"description": stringProp("What happened"),
		"occurred_at": stringProp("When it happened (RFC3339 or natural language)"),
		"entities":    stringArrayProp("Optional entity names or uuids the event involves"),
	}, "description", "occurred_at")
}

type addEventInput struct {
	Description string   `json:"description"`
	OccurredAt  string   `json:"occurred_at"`
	Entities    []string `json:"entities,omitempty"`
}

func (t *AddEventTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params addEventInput
	if err := decodeInput(t.Name(), input, &params); err != nil {
		return nil, err
	}

	v := &validator{}
	v.requireString("description", params.Description)
	v.requireString("occurred_at", params.OccurredAt)
	if err := v.result(); err != nil {
		return nil, err
	}

	occurredAt, err := memory.ParseTime(params.OccurredAt)
	if err != nil {
		return nil, ValidationErrors{{Path: "occurred_at", Message: fmt.Sprintf("unparseable time %q", params.OccurredAt)}}
	}

	event, err := t.temporal.AddEvent(ctx, params.Description, occurredAt)
	if err != nil {
		return nil, err
	}

	linked, skipped := t.linkInvolvedEntities(ctx, event.UUID, params.Entities)

	text := fmt.Sprintf("Added event %s at %s", event.UUID, event.OccurredAt.Format(time.RFC3339))
	if len(linked) > 0 {
		text += fmt.Sprintf("\nLinked entities: %s", strings.Join(linked, ", "))
	}
	for _, note := range skipped {
		text += "\n" + note
	}
	return &Result{Text: text, Structured: event}, nil
}

// linkInvolvedEntities creates X_INVOLVES links for each resolvable
// entity. Missing entities are skipped; the skip is reported so the
// caller knows the write was partial.
func (t *AddEventTool) linkInvolvedEntities(ctx context.Context, eventUUID string, names []string) (linked []string, skipped []string) {
	for _, name := range names {
		entity, err := t.entities.GetEntity(ctx, name)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("Entity %q not found; involvement link skipped", name))
			continue
		}
		if _, err := t.links.CreateLink(ctx, eventUUID, entity.UUID, graph.RelInvolves); err != nil {
			skipped = append(skipped, fmt.Sprintf("Failed to link entity %q: link skipped", name))
			continue
		}
		linked = append(linked, entity.Name)
	}
	return linked, skipped
}

// AddFactTool records a time-bounded statement, optionally anchored to
// its subject entity.
type AddFactTool struct {
	temporal TemporalStore
	entities EntityStore
	links    CrossLinkStore
}

func NewAddFactTool(temporal TemporalStore, entities EntityStore, links CrossLinkStore) *AddFactTool {
	return &AddFactTool{temporal: temporal, entities: entities, links: links}
}

func (t *AddFactTool) Name() string { return "add_fact" }

func (t *AddFactTool) Description() string {
	return "Record a time-bounded fact (subject, predicate, object) in the temporal graph"
}

func (t *AddFactTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"subject":        stringProp("Fact subject"),
		"predicate":      stringProp("Fact predicate, e.g. 'works_at'"),
		"object":         stringProp("Fact object"),
		"valid_from":     stringProp("When the fact became true (RFC3339 or natural language)"),
		"valid_to":       stringProp("Optional: when the fact stopped being true"),
		"subject_entity": stringProp("Optional entity name or uuid to anchor the fact to"),
	}, "subject", "predicate", "object", "valid_from")
}

type addFactInput struct {
	Subject       string `json:"subject"`
	Predicate     string `json:"predicate"`
	Object        string `json:"object"`
	ValidFrom     string `json:"valid_from"`
	ValidTo       string `json:"valid_to,omitempty"`
	SubjectEntity string `json:"subject_entity,omitempty"`
}

func (t *AddFactTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params addFactInput
	if err := decodeInput(t.Name(), input, &params); err != nil {
		return nil, err
	}

	v := &validator{}
	v.requireString("subject", params.Subject)
	v.requireString("predicate", params.Predicate)
	v.requireString("object", params.Object)
	v.requireString("valid_from", params.ValidFrom)
	if err := v.result(); err != nil {
		return nil, err
	}

	validFrom, err := memory.ParseTime(params.ValidFrom)
	if err != nil {
		return nil, ValidationErrors{{Path: "valid_from", Message: fmt.Sprintf("unparseable time %q", params.ValidFrom)}}
	}
	var validTo *time.Time
	if params.ValidTo != "" {
		to, err := memory.ParseTime(params.ValidTo)
		if err != nil {
			return nil, ValidationErrors{{Path: "valid_to", Message: fmt.Sprintf("unparseable time %q", params.ValidTo)}}
		}
		validTo = &to
	}

	fact, err := t.temporal.AddFact(ctx, params.Subject, params.Predicate, params.Object, validFrom, validTo)
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("Added fact %s: %s %s %s", fact.UUID, fact.Subject, fact.Predicate, fact.Object)

	// The subject entity is best-effort: a missing entity does not fail
	// the write, but the response must say the link was skipped.
	if params.SubjectEntity != "" {
		entity, err := t.entities.GetEntity(ctx, params.SubjectEntity)
		switch {
		case err != nil:
			text += fmt.Sprintf("\nSubject entity %q not found; link skipped", params.SubjectEntity)
		default:
			if _, err := t.links.CreateLink(ctx, fact.UUID, entity.UUID, graph.RelInvolves); err != nil {
				text += fmt.Sprintf("\nFailed to link subject entity %q: link skipped", params.SubjectEntity)
			} else {
				text += fmt.Sprintf("\nLinked to subject entity %s", entity.Name)
			}
		}
	}

	return &Result{Text: text, Structured: fact}, nil
}

// AddCausalLinkTool records a cause-effect edge, optionally anchored to
// entities via X_AFFECTS and events via X_REFERS_TO.
type AddCausalLinkTool struct {
	causal   CausalStore
	entities EntityStore
}

func NewAddCausalLinkTool(causal CausalStore, entities EntityStore) *AddCausalLinkTool {
	return &AddCausalLinkTool{causal: causal, entities: entities}
}

func (t *AddCausalLinkTool) Name() string { return "add_causal_link" }

func (t *AddCausalLinkTool) Description() string {
	return "Record a cause-effect relationship in the causal graph"
}

func (t *AddCausalLinkTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"cause":      stringProp("Description of the cause"),
		"effect":     stringProp("Description of the effect"),
		"confidence": numberProp("Optional confidence in (0,1]; defaults to 1.0"),
		"evidence":   stringProp("Optional supporting evidence"),
		"entities":   stringArrayProp("Optional entity names or uuids this link affects"),
		"events":     stringArrayProp("Optional event uuids this link refers to"),
	}, "cause", "effect")
}

type addCausalLinkInput struct {
	Cause      string   `json:"cause"`
	Effect     string   `json:"effect"`
	Confidence float64  `json:"confidence,omitempty"`
	Evidence   string   `json:"evidence,omitempty"`
	Entities   []string `json:"entities,omitempty"`
	Events     []string `json:"events,omitempty"`
}

func (t *AddCausalLinkTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params addCausalLinkInput
	if err := decodeInput(t.Name(), input, &params); err != nil {
		return nil, err
	}

	v := &validator{}
	v.requireString("cause", params.Cause)
	v.requireString("effect", params.Effect)
	if params.Confidence != 0 {
		v.floatInRange("confidence", params.Confidence, 0, 1)
	}
	if err := v.result(); err != nil {
		return nil, err
	}

	link, err := t.causal.AddLink(ctx, params.Cause, params.Effect, params.Confidence, params.Evidence)
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("Added causal link: %q causes %q (confidence %.2f)",
		link.Cause.Description, link.Effect.Description, link.Confidence)

	for _, name := range params.Entities {
		entity, err := t.entities.GetEntity(ctx, name)
		if err != nil {
			text += fmt.Sprintf("\nEntity %q not found; affects link skipped", name)
			continue
		}
		if err := t.causal.LinkToEntity(ctx, link.Cause.UUID, entity.UUID); err != nil {
			text += fmt.Sprintf("\nFailed to link entity %q: link skipped", name)
			continue
		}
		// Both endpoints affect the entity; a failure on the effect side
		// still leaves the cause-side anchor usable for retrieval.
		if err := t.causal.LinkToEntity(ctx, link.Effect.UUID, entity.UUID); err != nil {
			text += fmt.Sprintf("\nFailed to link effect to entity %q", name)
		}
	}

	for _, eventUUID := range params.Events {
		if err := t.causal.LinkToEvent(ctx, link.Cause.UUID, eventUUID); err != nil {
			text += fmt.Sprintf("\nFailed to link event %q: link skipped", eventUUID)
		}
	}

	return &Result{Text: text, Structured: link}, nil
}

// AddConceptTool creates a semantic concept with its embedding.
type AddConceptTool struct {
	semantic SemanticStore
}

func NewAddConceptTool(semantic SemanticStore) *AddConceptTool {
	return &AddConceptTool{semantic: semantic}
}

func (t *AddConceptTool) Name() string { return "add_concept" }

func (t *AddConceptTool) Description() string {
	return "Add a named concept to the semantic graph"
}

func (t *AddConceptTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"name":        stringProp("Concept name"),
		"description": stringProp("Optional concept description"),
	}, "name")
}

type addConceptInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (t *AddConceptTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params addConceptInput
	if err := decodeInput(t.Name(), input, &params); err != nil {
		return nil, err
	}

	v := &validator{}
	v.requireString("name", params.Name)
	if err := v.result(); err != nil {
		return nil, err
	}

	concept, err := t.semantic.AddConcept(ctx, params.Name, params.Description)
	if err != nil {
		return nil, err
	}
	return &Result{
		Text:       fmt.Sprintf("Added concept %q as %s", concept.Name, concept.UUID),
		Structured: concept,
	}, nil
}
