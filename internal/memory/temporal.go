package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/moolen/magma/internal/errors"
	"github.com/moolen/magma/internal/graph"
	"github.com/moolen/magma/internal/logging"
)

// TemporalGraph manages T_Event and T_Fact nodes. Instants are stored as
// RFC3339 UTC strings so range queries can use lexicographic comparison.
type TemporalGraph struct {
	client graph.Client
	logger *logging.Logger
}

// NewTemporalGraph creates a temporal graph facade.
func NewTemporalGraph(client graph.Client) *TemporalGraph {
	return &TemporalGraph{
		client: client,
		logger: logging.GetLogger("memory.temporal"),
	}
}

// AddEvent stores an event at the given instant.
func (g *TemporalGraph) AddEvent(ctx context.Context, description string, occurredAt time.Time) (*Event, error) {
	if strings.TrimSpace(description) == "" {
		return nil, errors.NewValidation("AddEvent", "event description must not be empty")
	}
	if occurredAt.IsZero() {
		return nil, errors.NewValidation("AddEvent", "occurred_at is required")
	}

	props := map[string]interface{}{
		"description": description,
		"occurred_at": formatTime(occurredAt),
		"created_at":  formatTime(time.Now()),
	}

	eventUUID, err := g.client.CreateNode(ctx, graph.LabelEvent, props)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("Added event %q (%s) at %s", description, eventUUID, formatTime(occurredAt))
	return &Event{
		UUID:        eventUUID,
		Description: description,
		OccurredAt:  occurredAt.UTC(),
	}, nil
}

// AddFact stores a time-bounded statement. validTo may be nil for facts
// that still hold.
func (g *TemporalGraph) AddFact(ctx context.Context, subject, predicate, object string, validFrom time.Time, validTo *time.Time) (*Fact, error) {
	if subject == "" || predicate == "" || object == "" {
		return nil, errors.NewValidation("AddFact", "subject, predicate and object must not be empty")
	}
	if validFrom.IsZero() {
		return nil, errors.NewValidation("AddFact", "valid_from is required")
	}
	if validTo != nil && validTo.Before(validFrom) {
		return nil, errors.NewValidation("AddFact", "valid_to must not precede valid_from")
	}

	props := map[string]interface{}{
		"subject":    subject,
		"predicate":  predicate,
		"object":     object,
		"valid_from": formatTime(validFrom),
		"created_at": formatTime(time.Now()),
	}
	if validTo != nil {
		props["valid_to"] = formatTime(*validTo)
	}

	factUUID, err := g.client.CreateNode(ctx, graph.LabelFact, props)
	if err != nil {
		return nil, err
	}

	fact := &Fact{
		UUID:      factUUID,
		Subject:   subject,
		Predicate: predicate,
		Object:    object,
		ValidFrom: validFrom.UTC(),
	}
	if validTo != nil {
		utc := validTo.UTC()
		fact.ValidTo = &utc
	}
	return fact, nil
}

// QueryTimeline returns events within [from, to], optionally restricted to
// events involving a specific entity, ordered by occurred_at ascending.
func (g *TemporalGraph) QueryTimeline(ctx context.Context, from, to time.Time, entityUUID string) ([]Event, error) {
	if to.Before(from) {
		return nil, errors.NewTemporal("QueryTimeline", "window end precedes start")
	}

	params := map[string]interface{}{
		"from": formatTime(from),
		"to":   formatTime(to),
	}

	var cypherQuery string
	if entityUUID != "" {
		params["entity"] = entityUUID
		cypherQuery = fmt.Sprintf(
			"MATCH (ev:%s)-[:%s]->(e:%s {uuid: $entity}) WHERE ev.occurred_at >= $from AND ev.occurred_at <= $to RETURN ev ORDER BY ev.occurred_at",
			graph.LabelEvent, graph.RelInvolves, graph.LabelEntity)
	} else {
		cypherQuery = fmt.Sprintf(
			"MATCH (ev:%s) WHERE ev.occurred_at >= $from AND ev.occurred_at <= $to RETURN ev ORDER BY ev.occurred_at",
			graph.LabelEvent)
	}

	return g.collectEvents(ctx, graph.GraphQuery{Query: cypherQuery, Parameters: params})
}

// QueryTimelineForEntities returns the union of timelines for several
// entities within [from, to], deduplicated by event uuid.
func (g *TemporalGraph) QueryTimelineForEntities(ctx context.Context, entityUUIDs []string, from, to time.Time) ([]Event, error) {
	if len(entityUUIDs) == 0 {
		return nil, nil
	}
	if to.Before(from) {
		return nil, errors.NewTemporal("QueryTimelineForEntities", "window end precedes start")
	}

	query := graph.GraphQuery{
		Query: fmt.Sprintf(
			"MATCH (ev:%s)-[:%s]->(e:%s) WHERE e.uuid IN $ids AND ev.occurred_at >= $from AND ev.occurred_at <= $to RETURN DISTINCT ev ORDER BY ev.occurred_at",
			graph.LabelEvent, graph.RelInvolves, graph.LabelEntity),
		Parameters: map[string]interface{}{
			"ids":  entityUUIDs,
			"from": formatTime(from),
			"to":   formatTime(to),
		},
	}

	events, err := g.collectEvents(ctx, query)
	if err != nil {
		return nil, err
	}

	// DISTINCT dedups rows, not uuids across plans; keep the invariant
	// explicit.
	seen := make(map[string]bool, len(events))
	deduped := events[:0]
	for _, ev := range events {
		if seen[ev.UUID] {
			continue
		}
		seen[ev.UUID] = true
		deduped = append(deduped, ev)
	}
	return deduped, nil
}

// GetFactsAt returns the facts that hold at the given instant.
func (g *TemporalGraph) GetFactsAt(ctx context.Context, at time.Time) ([]Fact, error) {
	query := graph.GraphQuery{
		Query: fmt.Sprintf(
			"MATCH (f:%s) WHERE f.valid_from <= $at AND (f.valid_to IS NULL OR f.valid_to >= $at) RETURN f",
			graph.LabelFact),
		Parameters: map[string]interface{}{"at": formatTime(at)},
	}
	return g.collectFacts(ctx, query)
}

// GetFactsInRange returns facts whose validity overlaps [from, to].
func (g *TemporalGraph) GetFactsInRange(ctx context.Context, from, to time.Time) ([]Fact, error) {
	if to.Before(from) {
		return nil, errors.NewTemporal("GetFactsInRange", "window end precedes start")
	}

	query := graph.GraphQuery{
		Query: fmt.Sprintf(
			"MATCH (f:%s) WHERE f.valid_from <= $to AND (f.valid_to IS NULL OR f.valid_to >= $from) RETURN f",
			graph.LabelFact),
		Parameters: map[string]interface{}{
			"from": formatTime(from),
			"to":   formatTime(to),
		},
	}
	return g.collectFacts(ctx, query)
}

// LinkEventToEntity creates an X_INVOLVES edge from an event to an entity.
func (g *TemporalGraph) LinkEventToEntity(ctx context.Context, eventUUID, entityUUID string) error {
	return g.client.CreateRelationship(ctx, eventUUID, entityUUID, graph.RelInvolves, map[string]interface{}{
		"created_at": formatTime(time.Now()),
	})
}

// InvalidateFact sets valid_to on a fact. A zero at means now.
func (g *TemporalGraph) InvalidateFact(ctx context.Context, factUUID string, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}

	query := graph.GraphQuery{
		Query: fmt.Sprintf(
			"MATCH (f:%s {uuid: $uuid}) SET f.valid_to = $at RETURN f", graph.LabelFact),
		Parameters: map[string]interface{}{
			"uuid": factUUID,
			"at":   formatTime(at),
		},
	}

	result, err := g.client.ExecuteQuery(ctx, query)
	if err != nil {
		return err
	}
	if len(result.Rows) == 0 {
		return errors.NewNotFound("InvalidateFact", "fact %q not found", factUUID).WithID(factUUID)
	}
	return nil
}

// Query resolves a Timeframe and returns the matching events.
func (g *TemporalGraph) Query(ctx context.Context, tf Timeframe) ([]Event, error) {
	from, to, err := tf.Resolve(time.Now())
	if err != nil {
		return nil, err
	}
	return g.QueryTimeline(ctx, from, to, "")
}

func (g *TemporalGraph) collectEvents(ctx context.Context, query graph.GraphQuery) ([]Event, error) {
	result, err := g.client.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, errors.NewTemporal("QueryTimeline", "timeline query failed").Wrap(err)
	}

	events := make([]Event, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) == 0 {
			continue
		}
		props, err := graph.ParseNodeFromResult(row[0])
		if err != nil {
			g.logger.Warn("Skipping unparseable event node: %v", err)
			continue
		}
		event, err := parseEvent(props)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].OccurredAt.Before(events[j].OccurredAt) })
	return events, nil
}

func (g *TemporalGraph) collectFacts(ctx context.Context, query graph.GraphQuery) ([]Fact, error) {
	result, err := g.client.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, errors.NewTemporal("GetFacts", "fact query failed").Wrap(err)
	}

	facts := make([]Fact, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) == 0 {
			continue
		}
		props, err := graph.ParseNodeFromResult(row[0])
		if err != nil {
			g.logger.Warn("Skipping unparseable fact node: %v", err)
			continue
		}
		fact, err := parseFact(props)
		if err != nil {
			return nil, err
		}
		facts = append(facts, fact)
	}
	return facts, nil
}
