package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/magma/internal/graph"
	"github.com/moolen/magma/internal/memory"
)

func TestRememberStoresConcept(t *testing.T) {
	semantic := &fakeSemantic{}
	tool := NewRememberTool(semantic, &fakeEntities{}, &fakeLinks{})

	result, err := tool.Execute(context.Background(), json.RawMessage(
		`{"content": "the auth service uses redis for session storage", "context": "architecture review"}`))
	require.NoError(t, err)
	require.Len(t, semantic.addedNames, 1)
	assert.Equal(t, "the auth service uses redis for session storage", semantic.addedNames[0])
	assert.Contains(t, semantic.addedDescriptions[0], "Context: architecture review")
	assert.Contains(t, result.Text, "concept-1")
}

func TestRememberLinksContextEntity(t *testing.T) {
	entities := &fakeEntities{entities: map[string]*memory.Entity{
		"auth-service": {UUID: "entity-auth", Name: "auth-service", EntityType: "service"},
	}}
	links := &fakeLinks{}
	tool := NewRememberTool(&fakeSemantic{}, entities, links)

	result, err := tool.Execute(context.Background(), json.RawMessage(
		`{"content": "sessions moved to redis", "context": "auth-service"}`))
	require.NoError(t, err)

	require.Len(t, links.created, 1)
	assert.Equal(t, crossLinkRec{"concept-1", "entity-auth", graph.RelRepresents}, links.created[0])
	assert.Contains(t, result.Text, "Linked to entity auth-service")
}

func TestRememberReportsSkippedRepresentationLink(t *testing.T) {
	links := &fakeLinks{}
	tool := NewRememberTool(&fakeSemantic{}, &fakeEntities{}, links)

	result, err := tool.Execute(context.Background(), json.RawMessage(
		`{"content": "sessions moved to redis", "context": "ghost-service"}`))
	require.NoError(t, err)

	assert.Empty(t, links.created)
	assert.Contains(t, result.Text, `Entity "ghost-service" not found; representation link skipped`)
}

func TestRememberTruncatesLongNames(t *testing.T) {
	semantic := &fakeSemantic{}
	tool := NewRememberTool(semantic, &fakeEntities{}, &fakeLinks{})

	long := strings.Repeat("word ", 40)
	_, err := tool.Execute(context.Background(), json.RawMessage(`{"content": "`+strings.TrimSpace(long)+`"}`))
	require.NoError(t, err)
	require.Len(t, semantic.addedNames, 1)
	assert.Len(t, semantic.addedNames[0], 80)
	assert.True(t, strings.HasSuffix(semantic.addedNames[0], "..."))
	// The full content survives in the description.
	assert.Equal(t, strings.TrimSpace(long), semantic.addedDescriptions[0])
}

func TestRememberTruncatesOnRuneBoundaries(t *testing.T) {
	semantic := &fakeSemantic{}
	tool := NewRememberTool(semantic, &fakeEntities{}, &fakeLinks{})

	long := strings.Repeat("ü", 120)
	_, err := tool.Execute(context.Background(), json.RawMessage(`{"content": "`+long+`"}`))
	require.NoError(t, err)
	require.Len(t, semantic.addedNames, 1)
	name := semantic.addedNames[0]
	assert.True(t, utf8.ValidString(name))
	assert.Equal(t, 80, utf8.RuneCountInString(name))
	assert.True(t, strings.HasSuffix(name, "..."))
}

func TestRememberRequiresContent(t *testing.T) {
	tool := NewRememberTool(&fakeSemantic{}, &fakeEntities{}, &fakeLinks{})

	_, err := tool.Execute(context.Background(), json.RawMessage(`{"content": "  "}`))
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "content", verrs[0].Path)
}

func TestAddEntityValidationListsAllFields(t *testing.T) {
	tool := NewAddEntityTool(&fakeEntities{})

	_, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 2)
	assert.Equal(t, "name", verrs[0].Path)
	assert.Equal(t, "entity_type", verrs[1].Path)
}

func TestAddEntity(t *testing.T) {
	entities := &fakeEntities{}
	tool := NewAddEntityTool(entities)

	result, err := tool.Execute(context.Background(), json.RawMessage(
		`{"name": "auth-service", "entity_type": "service", "properties": {"team": "platform"}}`))
	require.NoError(t, err)
	require.Len(t, entities.added, 1)
	assert.Equal(t, "platform", entities.added[0].Properties["team"])
	assert.Contains(t, result.Text, "auth-service")
}

func TestLinkEntities(t *testing.T) {
	entities := &fakeEntities{}
	tool := NewLinkEntitiesTool(entities)

	result, err := tool.Execute(context.Background(), json.RawMessage(
		`{"source": "auth-service", "target": "redis", "relationship": "depends_on"}`))
	require.NoError(t, err)
	assert.Equal(t, []entityLink{{"auth-service", "redis", "depends_on"}}, entities.links)
	assert.Contains(t, result.Text, "-[depends_on]->")
}

func TestAddEventLinksEntities(t *testing.T) {
	temporal := &fakeTemporal{}
	entities := &fakeEntities{entities: map[string]*memory.Entity{
		"redis": {UUID: "entity-redis", Name: "redis", EntityType: "service"},
	}}
	links := &fakeLinks{}
	tool := NewAddEventTool(temporal, entities, links)

	result, err := tool.Execute(context.Background(), json.RawMessage(
		`{"description": "redis failover", "occurred_at": "2024-06-01T10:00:00Z", "entities": ["redis", "ghost"]}`))
	require.NoError(t, err)
	require.Len(t, temporal.events, 1)
	require.Len(t, links.created, 1)
	assert.Equal(t, graph.RelInvolves, links.created[0].linkType)
	assert.Equal(t, "event-1", links.created[0].source)
	assert.Equal(t, "entity-redis", links.created[0].target)
	// The missing entity is reported, not fatal.
	assert.Contains(t, result.Text, `Entity "ghost" not found`)
	assert.Contains(t, result.Text, "link skipped")
}

func TestAddEventRejectsUnparseableTime(t *testing.T) {
	tool := NewAddEventTool(&fakeTemporal{}, &fakeEntities{}, &fakeLinks{})

	_, err := tool.Execute(context.Background(), json.RawMessage(
		`{"description": "x", "occurred_at": "not a time at all @@"}`))
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "occurred_at", verrs[0].Path)
}

func TestAddFactLinksSubjectEntity(t *testing.T) {
	temporal := &fakeTemporal{}
	entities := &fakeEntities{entities: map[string]*memory.Entity{
		"alice": {UUID: "entity-alice", Name: "alice", EntityType: "person"},
	}}
	links := &fakeLinks{}
	tool := NewAddFactTool(temporal, entities, links)

	result, err := tool.Execute(context.Background(), json.RawMessage(
		`{"subject": "alice", "predicate": "works_at", "object": "acme", "valid_from": "2023-01-01T00:00:00Z", "subject_entity": "alice"}`))
	require.NoError(t, err)
	require.Len(t, temporal.facts, 1)
	require.Len(t, links.created, 1)
	assert.Equal(t, "fact-1", links.created[0].source)
	assert.Equal(t, "entity-alice", links.created[0].target)
	assert.Contains(t, result.Text, "Linked to subject entity alice")
}

func TestAddFactSkipsMissingSubjectEntity(t *testing.T) {
	temporal := &fakeTemporal{}
	links := &fakeLinks{}
	tool := NewAddFactTool(temporal, &fakeEntities{}, links)

	result, err := tool.Execute(context.Background(), json.RawMessage(
		`{"subject": "alice", "predicate": "works_at", "object": "acme", "valid_from": "2023-01-01T00:00:00Z", "subject_entity": "alice"}`))
	require.NoError(t, err)
	// The fact is written even though the anchor is missing; the skip is
	// visible in the response.
	require.Len(t, temporal.facts, 1)
	assert.Empty(t, links.created)
	assert.Contains(t, result.Text, `Subject entity "alice" not found; link skipped`)
}

func TestAddFactValidTo(t *testing.T) {
	temporal := &fakeTemporal{}
	tool := NewAddFactTool(temporal, &fakeEntities{}, &fakeLinks{})

	_, err := tool.Execute(context.Background(), json.RawMessage(
		`{"subject": "alice", "predicate": "works_at", "object": "acme", "valid_from": "2023-01-01T00:00:00Z", "valid_to": "2024-01-01T00:00:00Z"}`))
	require.NoError(t, err)
	require.Len(t, temporal.facts, 1)
	require.NotNil(t, temporal.facts[0].ValidTo)
	assert.Equal(t, 2024, temporal.facts[0].ValidTo.Year())
}

func TestAddCausalLinkAnchorsEntities(t *testing.T) {
	causal := &fakeCausal{}
	entities := &fakeEntities{entities: map[string]*memory.Entity{
		"db": {UUID: "entity-db", Name: "db", EntityType: "service"},
	}}
	tool := NewAddCausalLinkTool(causal, entities)

	result, err := tool.Execute(context.Background(), json.RawMessage(
		`{"cause": "disk full", "effect": "db crash", "confidence": 0.9, "entities": ["db"], "events": ["event-7"]}`))
	require.NoError(t, err)
	// Both the cause and the effect node anchor to the entity.
	require.Len(t, causal.entityLinks, 2)
	assert.Equal(t, "cause-1", causal.entityLinks[0].source)
	assert.Equal(t, "effect-1", causal.entityLinks[1].source)
	require.Len(t, causal.eventLinks, 1)
	assert.Equal(t, "event-7", causal.eventLinks[0].target)
	assert.Contains(t, result.Text, "confidence 0.90")
}

func TestAddCausalLinkRejectsConfidenceAboveOne(t *testing.T) {
	tool := NewAddCausalLinkTool(&fakeCausal{}, &fakeEntities{})

	_, err := tool.Execute(context.Background(), json.RawMessage(
		`{"cause": "a", "effect": "b", "confidence": 1.5}`))
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "confidence", verrs[0].Path)
}

func TestAddConcept(t *testing.T) {
	semantic := &fakeSemantic{}
	tool := NewAddConceptTool(semantic)

	result, err := tool.Execute(context.Background(), json.RawMessage(
		`{"name": "caching", "description": "keeping hot data close"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"caching"}, semantic.addedNames)
	assert.Contains(t, result.Text, `Added concept "caching"`)
}
