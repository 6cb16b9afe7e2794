package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/moolen/magma/internal/errors"
	"github.com/moolen/magma/internal/graph"
	"github.com/moolen/magma/internal/logging"
)

// crossLinkTypes maps each cross-graph relationship to its expected
// source and target labels.
var crossLinkTypes = map[graph.RelationType][2]graph.NodeLabel{
	graph.RelRepresents: {graph.LabelConcept, graph.LabelEntity},
	graph.RelInvolves:   {graph.LabelEvent, graph.LabelEntity},
	graph.RelRefersTo:   {graph.LabelCausalNode, graph.LabelEvent},
	graph.RelAffects:    {graph.LabelCausalNode, graph.LabelEntity},
}

// ValidCrossLinkType reports whether t is one of the cross-graph
// relationship types.
func ValidCrossLinkType(t graph.RelationType) bool {
	_, ok := crossLinkTypes[t]
	return ok
}

// CrossLinker manages the X_* relationships that tie the four graphs
// together.
type CrossLinker struct {
	client graph.Client
	logger *logging.Logger
}

// NewCrossLinker creates a cross-link facade.
func NewCrossLinker(client graph.Client) *CrossLinker {
	return &CrossLinker{
		client: client,
		logger: logging.GetLogger("memory.crosslink"),
	}
}

// CreateLink creates a cross-graph edge of the given type. Both endpoints
// must exist and must not be the same node.
func (c *CrossLinker) CreateLink(ctx context.Context, sourceUUID, targetUUID string, linkType graph.RelationType) (*CrossLink, error) {
	if !ValidCrossLinkType(linkType) {
		return nil, errors.NewValidation("CreateLink", "unknown cross-link type %q", linkType)
	}
	if sourceUUID == "" || targetUUID == "" {
		return nil, errors.NewValidation("CreateLink", "source and target uuids are required")
	}
	if sourceUUID == targetUUID {
		return nil, errors.NewValidation("CreateLink", "cannot link a node to itself")
	}

	createdAt := formatTime(time.Now())
	err := c.client.CreateRelationship(ctx, sourceUUID, targetUUID, linkType, map[string]interface{}{
		"created_at": createdAt,
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Created %s link %s -> %s", linkType, sourceUUID, targetUUID)
	return &CrossLink{
		SourceUUID: sourceUUID,
		TargetUUID: targetUUID,
		LinkType:   string(linkType),
		CreatedAt:  createdAt,
	}, nil
}

// RemoveLink deletes all edges of the given type between the two nodes.
func (c *CrossLinker) RemoveLink(ctx context.Context, sourceUUID, targetUUID string, linkType graph.RelationType) error {
	if !ValidCrossLinkType(linkType) {
		return errors.NewValidation("RemoveLink", "unknown cross-link type %q", linkType)
	}

	query := graph.GraphQuery{
		Query: fmt.Sprintf(
			"MATCH (a {uuid: $source})-[r:%s]->(b {uuid: $target}) DELETE r", linkType),
		Parameters: map[string]interface{}{
			"source": sourceUUID,
			"target": targetUUID,
		},
	}

	result, err := c.client.ExecuteQuery(ctx, query)
	if err != nil {
		return err
	}
	if result.Stats.RelationshipsDeleted == 0 {
		return errors.NewNotFound("RemoveLink", "no %s link from %q to %q", linkType, sourceUUID, targetUUID)
	}
	return nil
}

// GetLinksFrom returns all outgoing cross-links of a node, optionally
// filtered by type (empty linkType means all cross-link types).
func (c *CrossLinker) GetLinksFrom(ctx context.Context, sourceUUID string, linkType graph.RelationType) ([]CrossLink, error) {
	return c.collectLinks(ctx, linkType, "a.uuid = $id", sourceUUID)
}

// GetLinksTo returns all incoming cross-links of a node, optionally
// filtered by type.
func (c *CrossLinker) GetLinksTo(ctx context.Context, targetUUID string, linkType graph.RelationType) ([]CrossLink, error) {
	return c.collectLinks(ctx, linkType, "b.uuid = $id", targetUUID)
}

// HasLink reports whether an edge of the given type exists between the
// two nodes.
func (c *CrossLinker) HasLink(ctx context.Context, sourceUUID, targetUUID string, linkType graph.RelationType) (bool, error) {
	if !ValidCrossLinkType(linkType) {
		return false, errors.NewValidation("HasLink", "unknown cross-link type %q", linkType)
	}

	query := graph.GraphQuery{
		Query: fmt.Sprintf(
			"MATCH (a {uuid: $source})-[r:%s]->(b {uuid: $target}) RETURN count(r)", linkType),
		Parameters: map[string]interface{}{
			"source": sourceUUID,
			"target": targetUUID,
		},
	}

	result, err := c.client.ExecuteQuery(ctx, query)
	if err != nil {
		return false, err
	}
	if len(result.Rows) == 0 || len(result.Rows[0]) == 0 {
		return false, nil
	}
	return numeric(result.Rows[0][0]) > 0, nil
}

// GetLinksByType returns every edge of one cross-link type.
func (c *CrossLinker) GetLinksByType(ctx context.Context, linkType graph.RelationType) ([]CrossLink, error) {
	if !ValidCrossLinkType(linkType) {
		return nil, errors.NewValidation("GetLinksByType", "unknown cross-link type %q", linkType)
	}
	return c.collectLinks(ctx, linkType, "", "")
}

// FindOrphans returns uuids of nodes with the given label that have no
// cross-link of the given type. Useful for spotting concepts that were
// never tied to an entity.
func (c *CrossLinker) FindOrphans(ctx context.Context, label graph.NodeLabel, linkType graph.RelationType) ([]string, error) {
	if !ValidCrossLinkType(linkType) {
		return nil, errors.NewValidation("FindOrphans", "unknown cross-link type %q", linkType)
	}
	if !graph.ValidLabel(string(label)) {
		return nil, errors.NewValidation("FindOrphans", "invalid label %q", label)
	}

	query := graph.GraphQuery{
		Query: fmt.Sprintf(
			"MATCH (n:%s) WHERE NOT (n)-[:%s]->() RETURN n.uuid", label, linkType),
	}

	result, err := c.client.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	orphans := make([]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) == 0 {
			continue
		}
		if id, ok := row[0].(string); ok && id != "" {
			orphans = append(orphans, id)
		}
	}
	return orphans, nil
}

// RemoveAllLinksFrom deletes all outgoing cross-links of a node and
// returns how many edges were removed.
func (c *CrossLinker) RemoveAllLinksFrom(ctx context.Context, sourceUUID string) (int, error) {
	return c.removeAll(ctx, "a.uuid = $id", sourceUUID)
}

// RemoveAllLinksTo deletes all incoming cross-links of a node and returns
// how many edges were removed.
func (c *CrossLinker) RemoveAllLinksTo(ctx context.Context, targetUUID string) (int, error) {
	return c.removeAll(ctx, "b.uuid = $id", targetUUID)
}

// GetStatistics returns the edge count per cross-link type.
func (c *CrossLinker) GetStatistics(ctx context.Context) (map[string]int64, error) {
	stats := make(map[string]int64, len(crossLinkTypes))
	for linkType := range crossLinkTypes {
		query := graph.GraphQuery{
			Query: fmt.Sprintf("MATCH ()-[r:%s]->() RETURN count(r)", linkType),
		}
		result, err := c.client.ExecuteQuery(ctx, query)
		if err != nil {
			return nil, err
		}
		var count int64
		if len(result.Rows) > 0 && len(result.Rows[0]) > 0 {
			count = int64(numeric(result.Rows[0][0]))
		}
		stats[string(linkType)] = count
	}
	return stats, nil
}

func (c *CrossLinker) collectLinks(ctx context.Context, linkType graph.RelationType, where, id string) ([]CrossLink, error) {
	relPattern := crossLinkPattern(linkType)
	if relPattern == "" {
		return nil, errors.NewValidation("collectLinks", "unknown cross-link type %q", linkType)
	}

	cypherQuery := fmt.Sprintf("MATCH (a)-[r:%s]->(b)", relPattern)
	params := map[string]interface{}{}
	if where != "" {
		cypherQuery += " WHERE " + where
		params["id"] = id
	}
	cypherQuery += " RETURN a.uuid, type(r), b.uuid, r.created_at"

	result, err := c.client.ExecuteQuery(ctx, graph.GraphQuery{Query: cypherQuery, Parameters: params})
	if err != nil {
		return nil, err
	}

	links := make([]CrossLink, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) < 4 {
			continue
		}
		link := CrossLink{}
		if s, ok := row[0].(string); ok {
			link.SourceUUID = s
		}
		if s, ok := row[1].(string); ok {
			link.LinkType = s
		}
		if s, ok := row[2].(string); ok {
			link.TargetUUID = s
		}
		if s, ok := row[3].(string); ok {
			link.CreatedAt = s
		}
		links = append(links, link)
	}
	return links, nil
}

func (c *CrossLinker) removeAll(ctx context.Context, where, id string) (int, error) {
	query := graph.GraphQuery{
		Query: fmt.Sprintf(
			"MATCH (a)-[r:%s]->(b) WHERE %s DELETE r", crossLinkPattern(""), where),
		Parameters: map[string]interface{}{"id": id},
	}

	result, err := c.client.ExecuteQuery(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.Stats.RelationshipsDeleted, nil
}

// crossLinkPattern renders the relationship type pattern: a single type,
// or all cross-link types joined with | when linkType is empty.
func crossLinkPattern(linkType graph.RelationType) string {
	if linkType != "" {
		if !ValidCrossLinkType(linkType) {
			return ""
		}
		return string(linkType)
	}
	return fmt.Sprintf("%s|%s|%s|%s",
		graph.RelRepresents, graph.RelInvolves, graph.RelRefersTo, graph.RelAffects)
}
