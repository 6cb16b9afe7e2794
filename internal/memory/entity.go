package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/moolen/magma/internal/errors"
	"github.com/moolen/magma/internal/graph"
	"github.com/moolen/magma/internal/logging"
)

// EntityGraph manages E_Entity nodes and their E_RELATES relationships.
type EntityGraph struct {
	client graph.Client
	logger *logging.Logger
}

// NewEntityGraph creates an entity graph facade.
func NewEntityGraph(client graph.Client) *EntityGraph {
	return &EntityGraph{
		client: client,
		logger: logging.GetLogger("memory.entity"),
	}
}

// reserved property keys that user-supplied properties must not override
func isReservedEntityKey(key string) bool {
	switch key {
	case "uuid", "name", "entity_type", "created_at":
		return true
	}
	return false
}

// AddEntity creates an entity node. User properties are stored flat on the
// node alongside the reserved fields.
func (g *EntityGraph) AddEntity(ctx context.Context, name, entityType string, properties map[string]interface{}) (*Entity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.NewValidation("AddEntity", "entity name must not be empty")
	}
	if strings.TrimSpace(entityType) == "" {
		return nil, errors.NewValidation("AddEntity", "entity_type must not be empty")
	}

	createdAt := formatTime(time.Now())
	props := map[string]interface{}{
		"name":        name,
		"entity_type": entityType,
		"created_at":  createdAt,
	}
	for k, v := range properties {
		if isReservedEntityKey(k) {
			continue
		}
		props[k] = v
	}

	entityUUID, err := g.client.CreateNode(ctx, graph.LabelEntity, props)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("Added entity %q (%s, type=%s)", name, entityUUID, entityType)
	entity := Entity{UUID: entityUUID, Name: name, EntityType: entityType, CreatedAt: createdAt}
	for k, v := range properties {
		if isReservedEntityKey(k) {
			continue
		}
		if entity.Properties == nil {
			entity.Properties = make(map[string]interface{})
		}
		entity.Properties[k] = v
	}
	return &entity, nil
}

// GetEntity retrieves an entity by uuid or exact name.
func (g *EntityGraph) GetEntity(ctx context.Context, nameOrUUID string) (*Entity, error) {
	query := graph.GraphQuery{
		Query: fmt.Sprintf(
			"MATCH (n:%s) WHERE n.uuid = $id OR n.name = $id RETURN n LIMIT 1", graph.LabelEntity),
		Parameters: map[string]interface{}{"id": nameOrUUID},
	}

	result, err := g.client.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(result.Rows) == 0 || len(result.Rows[0]) == 0 {
		return nil, errors.NewNotFound("GetEntity", "entity %q not found", nameOrUUID).WithID(nameOrUUID)
	}

	props, err := graph.ParseNodeFromResult(result.Rows[0][0])
	if err != nil {
		return nil, errors.NewParse("GetEntity", "unparseable entity node").Wrap(err)
	}
	entity, err := parseEntity(props)
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

// UpdateEntity merges properties onto an existing entity. Reserved fields
// are not overwritten.
func (g *EntityGraph) UpdateEntity(ctx context.Context, entityUUID string, properties map[string]interface{}) (*Entity, error) {
	if len(properties) == 0 {
		return g.GetEntity(ctx, entityUUID)
	}

	assignments := make([]string, 0, len(properties))
	params := map[string]interface{}{"uuid": entityUUID}
	i := 0
	for k, v := range properties {
		if isReservedEntityKey(k) || !graph.ValidLabel(k) {
			continue
		}
		param := fmt.Sprintf("p%d", i)
		assignments = append(assignments, fmt.Sprintf("n.%s = $%s", k, param))
		params[param] = v
		i++
	}
	if len(assignments) == 0 {
		return g.GetEntity(ctx, entityUUID)
	}

	query := graph.GraphQuery{
		Query: fmt.Sprintf("MATCH (n:%s {uuid: $uuid}) SET %s RETURN n",
			graph.LabelEntity, strings.Join(assignments, ", ")),
		Parameters: params,
	}

	result, err := g.client.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(result.Rows) == 0 {
		return nil, errors.NewNotFound("UpdateEntity", "entity %q not found", entityUUID).WithID(entityUUID)
	}

	return g.GetEntity(ctx, entityUUID)
}

// DeleteEntity removes an entity and detaches all its edges.
func (g *EntityGraph) DeleteEntity(ctx context.Context, entityUUID string) error {
	deleted, err := g.client.DeleteNode(ctx, entityUUID)
	if err != nil {
		return err
	}
	if !deleted {
		return errors.NewNotFound("DeleteEntity", "entity %q not found", entityUUID).WithID(entityUUID)
	}
	return nil
}

// LinkEntities creates an E_RELATES edge between two entities identified by
// uuid or name, carrying the relationship type as a property.
func (g *EntityGraph) LinkEntities(ctx context.Context, source, target, relationshipType string) error {
	if strings.TrimSpace(relationshipType) == "" {
		return errors.NewValidation("LinkEntities", "relationship must not be empty")
	}

	src, err := g.GetEntity(ctx, source)
	if err != nil {
		return err
	}
	tgt, err := g.GetEntity(ctx, target)
	if err != nil {
		return err
	}

	err = g.client.CreateRelationship(ctx, src.UUID, tgt.UUID, graph.RelRelates, map[string]interface{}{
		"relationship_type": relationshipType,
		"created_at":        formatTime(time.Now()),
	})
	if err != nil {
		return err
	}

	g.logger.Debug("Linked %q -[%s]-> %q", src.Name, relationshipType, tgt.Name)
	return nil
}

// GetRelationships returns both outgoing and incoming E_RELATES edges of an
// entity.
func (g *EntityGraph) GetRelationships(ctx context.Context, entityUUID string) ([]Relationship, error) {
	batch, err := g.GetRelationshipsBatch(ctx, []string{entityUUID})
	if err != nil {
		return nil, err
	}
	return batch[entityUUID], nil
}

// GetRelationshipsBatch fetches relationships for several entities in one
// round-trip. The result maps each requested uuid to the edges it touches,
// in either direction.
func (g *EntityGraph) GetRelationshipsBatch(ctx context.Context, entityUUIDs []string) (map[string][]Relationship, error) {
	out := make(map[string][]Relationship, len(entityUUIDs))
	if len(entityUUIDs) == 0 {
		return out, nil
	}

	query := graph.GraphQuery{
		Query: fmt.Sprintf(
			"MATCH (a:%s)-[r:%s]->(b:%s) WHERE a.uuid IN $ids OR b.uuid IN $ids RETURN a, r, b",
			graph.LabelEntity, graph.RelRelates, graph.LabelEntity),
		Parameters: map[string]interface{}{"ids": entityUUIDs},
	}

	result, err := g.client.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	requested := make(map[string]bool, len(entityUUIDs))
	for _, id := range entityUUIDs {
		requested[id] = true
		out[id] = nil
	}

	for _, row := range result.Rows {
		if len(row) < 3 {
			continue
		}
		rel, err := parseRelationshipRow(row[0], row[1], row[2])
		if err != nil {
			g.logger.Warn("Skipping unparseable relationship: %v", err)
			continue
		}
		if requested[rel.Source.UUID] {
			out[rel.Source.UUID] = append(out[rel.Source.UUID], rel)
		}
		if requested[rel.Target.UUID] && rel.Target.UUID != rel.Source.UUID {
			out[rel.Target.UUID] = append(out[rel.Target.UUID], rel)
		}
	}

	return out, nil
}

func parseRelationshipRow(sourceVal, edgeVal, targetVal interface{}) (Relationship, error) {
	srcProps, err := graph.ParseNodeFromResult(sourceVal)
	if err != nil {
		return Relationship{}, err
	}
	source, err := parseEntity(srcProps)
	if err != nil {
		return Relationship{}, err
	}

	tgtProps, err := graph.ParseNodeFromResult(targetVal)
	if err != nil {
		return Relationship{}, err
	}
	target, err := parseEntity(tgtProps)
	if err != nil {
		return Relationship{}, err
	}

	_, edgeProps, err := graph.ParseEdgeFromResult(edgeVal)
	if err != nil {
		return Relationship{}, err
	}

	return Relationship{
		Source:           source,
		Target:           target,
		RelationshipType: graph.GetStringProperty(edgeProps, "relationship_type"),
	}, nil
}

// Resolve maps mentions to entities: exact name match first, then
// case-insensitive substring. Unresolvable mentions are silently dropped.
func (g *EntityGraph) Resolve(ctx context.Context, mentions []Mention) ([]Entity, error) {
	resolved := make([]Entity, 0, len(mentions))
	seen := make(map[string]bool)

	for _, mention := range mentions {
		name := strings.TrimSpace(mention.Mention)
		if name == "" {
			continue
		}

		entity, err := g.findByNameWithFallback(ctx, name, mention.Type)
		if err != nil {
			if errors.IsKind(err, errors.KindNotFound) {
				continue
			}
			return nil, err
		}
		if !seen[entity.UUID] {
			seen[entity.UUID] = true
			resolved = append(resolved, *entity)
		}
	}

	return resolved, nil
}

func (g *EntityGraph) findByNameWithFallback(ctx context.Context, name, entityType string) (*Entity, error) {
	typeFilter := ""
	params := map[string]interface{}{"name": name, "lower": strings.ToLower(name)}
	if entityType != "" {
		typeFilter = " AND n.entity_type = $type"
		params["type"] = entityType
	}

	// Exact match first
	query := graph.GraphQuery{
		Query: fmt.Sprintf(
			"MATCH (n:%s) WHERE n.name = $name%s RETURN n LIMIT 1", graph.LabelEntity, typeFilter),
		Parameters: params,
	}
	result, err := g.client.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	if len(result.Rows) == 0 {
		// Case-insensitive substring fallback
		query = graph.GraphQuery{
			Query: fmt.Sprintf(
				"MATCH (n:%s) WHERE toLower(n.name) CONTAINS $lower%s RETURN n LIMIT 1", graph.LabelEntity, typeFilter),
			Parameters: params,
		}
		result, err = g.client.ExecuteQuery(ctx, query)
		if err != nil {
			return nil, err
		}
	}

	if len(result.Rows) == 0 || len(result.Rows[0]) == 0 {
		return nil, errors.NewNotFound("Resolve", "no entity matches %q", name).WithID(name)
	}

	props, err := graph.ParseNodeFromResult(result.Rows[0][0])
	if err != nil {
		return nil, errors.NewParse("Resolve", "unparseable entity node").Wrap(err)
	}
	entity, err := parseEntity(props)
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

// Search finds entities whose name contains q (case-insensitive), optionally
// filtered by type.
func (g *EntityGraph) Search(ctx context.Context, q, entityType string) ([]Entity, error) {
	typeFilter := ""
	params := map[string]interface{}{"q": strings.ToLower(q)}
	if entityType != "" {
		typeFilter = " AND n.entity_type = $type"
		params["type"] = entityType
	}

	query := graph.GraphQuery{
		Query: fmt.Sprintf(
			"MATCH (n:%s) WHERE toLower(n.name) CONTAINS $q%s RETURN n LIMIT 100", graph.LabelEntity, typeFilter),
		Parameters: params,
	}

	return g.collectEntities(ctx, query)
}

// GetByType returns up to limit entities of the given type.
func (g *EntityGraph) GetByType(ctx context.Context, entityType string, limit int) ([]Entity, error) {
	if limit <= 0 {
		limit = 100
	}
	query := graph.GraphQuery{
		Query: fmt.Sprintf(
			"MATCH (n:%s) WHERE n.entity_type = $type RETURN n LIMIT %d", graph.LabelEntity, limit),
		Parameters: map[string]interface{}{"type": entityType},
	}

	return g.collectEntities(ctx, query)
}

func (g *EntityGraph) collectEntities(ctx context.Context, query graph.GraphQuery) ([]Entity, error) {
	result, err := g.client.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	entities := make([]Entity, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) == 0 {
			continue
		}
		props, err := graph.ParseNodeFromResult(row[0])
		if err != nil {
			g.logger.Warn("Skipping unparseable entity node: %v", err)
			continue
		}
		entity, err := parseEntity(props)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, nil
}
