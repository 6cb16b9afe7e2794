package tools

import (
	"context"
	"time"

	"github.com/moolen/magma/internal/errors"
	"github.com/moolen/magma/internal/graph"
	"github.com/moolen/magma/internal/memory"
)

type fakeAdmin struct {
	stats        *graph.Statistics
	statsErr     error
	clearCalled  bool
	clearErr     error
	scopeCalls   []string
	scopeDeleted int
	scopeErr     error
}

func (f *fakeAdmin) GetStatistics(ctx context.Context) (*graph.Statistics, error) {
	return f.stats, f.statsErr
}

func (f *fakeAdmin) ClearGraph(ctx context.Context) error {
	f.clearCalled = true
	return f.clearErr
}

func (f *fakeAdmin) ClearScope(ctx context.Context, prefix string) (int, error) {
	f.scopeCalls = append(f.scopeCalls, prefix)
	return f.scopeDeleted, f.scopeErr
}

type fakeSemantic struct {
	addedNames        []string
	addedDescriptions []string
	addErr            error
	matches           []memory.EnrichedSemanticMatch
	searchErr         error
	lastQuery         string
	lastTopK          int
}

func (f *fakeSemantic) AddConcept(ctx context.Context, name, description string) (*memory.Concept, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	f.addedNames = append(f.addedNames, name)
	f.addedDescriptions = append(f.addedDescriptions, description)
	return &memory.Concept{UUID: "concept-1", Name: name, Description: description}, nil
}

func (f *fakeSemantic) SearchWithEntities(ctx context.Context, query string, topK int) ([]memory.EnrichedSemanticMatch, error) {
	f.lastQuery = query
	f.lastTopK = topK
	return f.matches, f.searchErr
}

type entityLink struct {
	source, target, relationship string
}

type fakeEntities struct {
	entities map[string]*memory.Entity
	added    []*memory.Entity
	links    []entityLink
	linkErr  error
	rels     map[string][]memory.Relationship
	relsErr  error
}

func (f *fakeEntities) AddEntity(ctx context.Context, name, entityType string, properties map[string]interface{}) (*memory.Entity, error) {
	entity := &memory.Entity{UUID: "entity-" + name, Name: name, EntityType: entityType, Properties: properties}
	f.added = append(f.added, entity)
	return entity, nil
}

func (f *fakeEntities) GetEntity(ctx context.Context, nameOrUUID string) (*memory.Entity, error) {
	if entity, ok := f.entities[nameOrUUID]; ok {
		return entity, nil
	}
	return nil, errors.NewNotFound("GetEntity", "entity %q not found", nameOrUUID)
}

func (f *fakeEntities) LinkEntities(ctx context.Context, source, target, relationshipType string) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	f.links = append(f.links, entityLink{source, target, relationshipType})
	return nil
}

func (f *fakeEntities) GetRelationshipsBatch(ctx context.Context, entityUUIDs []string) (map[string][]memory.Relationship, error) {
	if f.relsErr != nil {
		return nil, f.relsErr
	}
	out := make(map[string][]memory.Relationship)
	for _, id := range entityUUIDs {
		out[id] = f.rels[id]
	}
	return out, nil
}

type fakeTemporal struct {
	events     []*memory.Event
	facts      []*memory.Fact
	timeline   []memory.Event
	timelineTo time.Time
	timelineAt time.Time
	queryErr   error
	eventLinks []entityLink
}

func (f *fakeTemporal) AddEvent(ctx context.Context, description string, occurredAt time.Time) (*memory.Event, error) {
	event := &memory.Event{UUID: "event-1", Description: description, OccurredAt: occurredAt}
	f.events = append(f.events, event)
	return event, nil
}

func (f *fakeTemporal) AddFact(ctx context.Context, subject, predicate, object string, validFrom time.Time, validTo *time.Time) (*memory.Fact, error) {
	fact := &memory.Fact{UUID: "fact-1", Subject: subject, Predicate: predicate, Object: object, ValidFrom: validFrom, ValidTo: validTo}
	f.facts = append(f.facts, fact)
	return fact, nil
}

func (f *fakeTemporal) QueryTimelineForEntities(ctx context.Context, entityUUIDs []string, from, to time.Time) ([]memory.Event, error) {
	f.timelineAt = from
	f.timelineTo = to
	return f.timeline, f.queryErr
}

func (f *fakeTemporal) LinkEventToEntity(ctx context.Context, eventUUID, entityUUID string) error {
	f.eventLinks = append(f.eventLinks, entityLink{source: eventUUID, target: entityUUID})
	return nil
}

type fakeCausal struct {
	link          *memory.CausalLink
	addErr        error
	traverseLinks []memory.CausalLink
	traverseErr   error
	lastDirection memory.TraversalDirection
	lastDepth     int
	entityLinks   []entityLink
	eventLinks    []entityLink
	linkErr       error
}

func (f *fakeCausal) AddLink(ctx context.Context, cause, effect string, confidence float64, evidence string) (*memory.CausalLink, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	if f.link != nil {
		return f.link, nil
	}
	if confidence <= 0 {
		confidence = 1.0
	}
	return &memory.CausalLink{
		Cause:      memory.CausalNode{UUID: "cause-1", Description: cause},
		Effect:     memory.CausalNode{UUID: "effect-1", Description: effect},
		Confidence: confidence,
		Evidence:   evidence,
	}, nil
}

func (f *fakeCausal) Traverse(ctx context.Context, mentions []string, direction memory.TraversalDirection, maxDepth int) ([]memory.CausalLink, error) {
	f.lastDirection = direction
	f.lastDepth = maxDepth
	return f.traverseLinks, f.traverseErr
}

func (f *fakeCausal) LinkToEvent(ctx context.Context, causalUUID, eventUUID string) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	f.eventLinks = append(f.eventLinks, entityLink{source: causalUUID, target: eventUUID})
	return nil
}

func (f *fakeCausal) LinkToEntity(ctx context.Context, causalUUID, entityUUID string) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	f.entityLinks = append(f.entityLinks, entityLink{source: causalUUID, target: entityUUID})
	return nil
}

type crossLinkRec struct {
	source, target string
	linkType       graph.RelationType
}

type fakeLinks struct {
	created []crossLinkRec
	err     error
}

func (f *fakeLinks) CreateLink(ctx context.Context, sourceUUID, targetUUID string, linkType graph.RelationType) (*memory.CrossLink, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, crossLinkRec{sourceUUID, targetUUID, linkType})
	return &memory.CrossLink{SourceUUID: sourceUUID, TargetUUID: targetUUID, LinkType: string(linkType)}, nil
}
