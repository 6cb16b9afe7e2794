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

// TraversalDirection selects which way causal traversal walks C_CAUSES
// edges relative to the starting nodes.
type TraversalDirection string

const (
	DirectionUpstream   TraversalDirection = "upstream"
	DirectionDownstream TraversalDirection = "downstream"
	DirectionBoth       TraversalDirection = "both"
)

// ValidDirection reports whether d is a known traversal direction.
func ValidDirection(d TraversalDirection) bool {
	switch d {
	case DirectionUpstream, DirectionDownstream, DirectionBoth:
		return true
	}
	return false
}

// CausalGraph manages C_Node nodes and C_CAUSES edges.
type CausalGraph struct {
	client graph.Client
	logger *logging.Logger
}

// NewCausalGraph creates a causal graph facade.
func NewCausalGraph(client graph.Client) *CausalGraph {
	return &CausalGraph{
		client: client,
		logger: logging.GetLogger("memory.causal"),
	}
}

// AddNode creates a causal node. nodeType defaults to "event".
func (g *CausalGraph) AddNode(ctx context.Context, description, nodeType string) (*CausalNode, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, errors.NewValidation("AddNode", "causal node description must not be empty")
	}
	if nodeType == "" {
		nodeType = "event"
	}

	props := map[string]interface{}{
		"description": description,
		"node_type":   nodeType,
		"created_at":  formatTime(time.Now()),
	}

	nodeUUID, err := g.client.CreateNode(ctx, graph.LabelCausalNode, props)
	if err != nil {
		return nil, err
	}

	return &CausalNode{UUID: nodeUUID, Description: description, NodeType: nodeType}, nil
}

// GetNode retrieves a causal node by uuid.
func (g *CausalGraph) GetNode(ctx context.Context, nodeUUID string) (*CausalNode, error) {
	props, err := g.client.FindNodeByUUID(ctx, nodeUUID)
	if err != nil {
		return nil, err
	}
	node, err := parseCausalNode(props)
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// FindOrCreate returns the causal node with the exact description, creating
// it when absent.
func (g *CausalGraph) FindOrCreate(ctx context.Context, description, nodeType string) (*CausalNode, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, errors.NewValidation("FindOrCreate", "causal node description must not be empty")
	}

	query := graph.GraphQuery{
		Query: fmt.Sprintf(
			"MATCH (n:%s) WHERE n.description = $description RETURN n LIMIT 1", graph.LabelCausalNode),
		Parameters: map[string]interface{}{"description": description},
	}

	result, err := g.client.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(result.Rows) > 0 && len(result.Rows[0]) > 0 {
		props, err := graph.ParseNodeFromResult(result.Rows[0][0])
		if err != nil {
			return nil, errors.NewParse("FindOrCreate", "unparseable causal node").Wrap(err)
		}
		node, err := parseCausalNode(props)
		if err != nil {
			return nil, err
		}
		return &node, nil
	}

	return g.AddNode(ctx, description, nodeType)
}

// AddLink creates a C_CAUSES edge between the cause and effect nodes,
// auto-creating both from descriptions when missing. Confidence is clamped
// to [0,1] and defaults to 1.
func (g *CausalGraph) AddLink(ctx context.Context, cause, effect string, confidence float64, evidence string) (*CausalLink, error) {
	causeNode, err := g.FindOrCreate(ctx, cause, "cause")
	if err != nil {
		return nil, err
	}
	effectNode, err := g.FindOrCreate(ctx, effect, "effect")
	if err != nil {
		return nil, err
	}

	confidence = clampConfidence(confidence)
	createdAt := formatTime(time.Now())

	props := map[string]interface{}{
		"confidence": confidence,
		"created_at": createdAt,
	}
	if evidence != "" {
		props["evidence"] = evidence
	}

	if err := g.client.CreateRelationship(ctx, causeNode.UUID, effectNode.UUID, graph.RelCauses, props); err != nil {
		return nil, err
	}

	g.logger.Debug("Added causal link %q -> %q (confidence=%.2f)", cause, effect, confidence)
	return &CausalLink{
		Cause:      *causeNode,
		Effect:     *effectNode,
		Confidence: confidence,
		Evidence:   evidence,
		CreatedAt:  createdAt,
	}, nil
}

// GetNodesForEntities returns uuids of causal nodes that affect any of the
// given entities (via X_AFFECTS).
func (g *CausalGraph) GetNodesForEntities(ctx context.Context, entityUUIDs []string) ([]string, error) {
	if len(entityUUIDs) == 0 {
		return nil, nil
	}

	query := graph.GraphQuery{
		Query: fmt.Sprintf(
			"MATCH (c:%s)-[:%s]->(e:%s) WHERE e.uuid IN $ids RETURN DISTINCT c.uuid",
			graph.LabelCausalNode, graph.RelAffects, graph.LabelEntity),
		Parameters: map[string]interface{}{"ids": entityUUIDs},
	}

	result, err := g.client.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, errors.NewCausalTraversal("GetNodesForEntities", "causal anchor lookup failed").Wrap(err)
	}

	ids := make([]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) == 0 {
			continue
		}
		if id, ok := row[0].(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// TraverseFromNodeIDs walks C_CAUSES paths of length 1..maxDepth from the
// given causal nodes. Returned links are deduplicated by
// (cause.description, effect.description).
func (g *CausalGraph) TraverseFromNodeIDs(ctx context.Context, nodeUUIDs []string, direction TraversalDirection, maxDepth int) ([]CausalLink, error) {
	if len(nodeUUIDs) == 0 {
		return nil, nil
	}
	if !ValidDirection(direction) {
		return nil, errors.NewValidation("TraverseFromNodeIDs", "invalid direction %q", direction)
	}
	if maxDepth < 1 {
		maxDepth = 1
	}

	var queries []string
	if direction == DirectionDownstream || direction == DirectionBoth {
		// Every edge reachable downstream within maxDepth hops
		queries = append(queries, fmt.Sprintf(
			"MATCH (n:%s)-[:%s*0..%d]->(a:%s)-[r:%s]->(b:%s) WHERE n.uuid IN $ids RETURN DISTINCT a, r, b",
			graph.LabelCausalNode, graph.RelCauses, maxDepth-1,
			graph.LabelCausalNode, graph.RelCauses, graph.LabelCausalNode))
	}
	if direction == DirectionUpstream || direction == DirectionBoth {
		queries = append(queries, fmt.Sprintf(
			"MATCH (a:%s)-[r:%s]->(b:%s)-[:%s*0..%d]->(n:%s) WHERE n.uuid IN $ids RETURN DISTINCT a, r, b",
			graph.LabelCausalNode, graph.RelCauses, graph.LabelCausalNode,
			graph.RelCauses, maxDepth-1, graph.LabelCausalNode))
	}

	seen := make(map[string]bool)
	var links []CausalLink

	for _, cypherQuery := range queries {
		result, err := g.client.ExecuteQuery(ctx, graph.GraphQuery{
			Query:      cypherQuery,
			Parameters: map[string]interface{}{"ids": nodeUUIDs},
		})
		if err != nil {
			return nil, errors.NewCausalTraversal("TraverseFromNodeIDs", "causal traversal failed (%s)", direction).Wrap(err)
		}

		for _, row := range result.Rows {
			if len(row) < 3 {
				continue
			}
			link, err := g.parseLinkRow(row[0], row[1], row[2])
			if err != nil {
				g.logger.Warn("Skipping unparseable causal link: %v", err)
				continue
			}
			key := link.Cause.Description + "\x00" + link.Effect.Description
			if seen[key] {
				continue
			}
			seen[key] = true
			links = append(links, link)
		}
	}

	return links, nil
}

// Traverse anchors traversal on the causal nodes affecting the mentioned
// entities, then walks cause edges in the requested direction.
func (g *CausalGraph) Traverse(ctx context.Context, mentions []string, direction TraversalDirection, maxDepth int) ([]CausalLink, error) {
	nodeIDs, err := g.GetNodesForEntities(ctx, mentions)
	if err != nil {
		return nil, err
	}
	if len(nodeIDs) == 0 {
		return nil, nil
	}
	return g.TraverseFromNodeIDs(ctx, nodeIDs, direction, maxDepth)
}

// GetUpstreamCauses returns links on upstream paths from a node.
func (g *CausalGraph) GetUpstreamCauses(ctx context.Context, nodeUUID string, maxDepth int) ([]CausalLink, error) {
	return g.TraverseFromNodeIDs(ctx, []string{nodeUUID}, DirectionUpstream, maxDepth)
}

// GetDownstreamEffects returns links on downstream paths from a node.
func (g *CausalGraph) GetDownstreamEffects(ctx context.Context, nodeUUID string, maxDepth int) ([]CausalLink, error) {
	return g.TraverseFromNodeIDs(ctx, []string{nodeUUID}, DirectionDownstream, maxDepth)
}

// ExplainWhy finds causal nodes matching the description and returns their
// upstream causes sorted by confidence descending.
func (g *CausalGraph) ExplainWhy(ctx context.Context, description string) ([]CausalLink, error) {
	query := graph.GraphQuery{
		Query: fmt.Sprintf(
			"MATCH (n:%s) WHERE toLower(n.description) CONTAINS $q RETURN n.uuid LIMIT 25", graph.LabelCausalNode),
		Parameters: map[string]interface{}{"q": strings.ToLower(strings.TrimSpace(description))},
	}

	result, err := g.client.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, errors.NewCausalTraversal("ExplainWhy", "causal node lookup failed").Wrap(err)
	}

	ids := make([]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) == 0 {
			continue
		}
		if id, ok := row[0].(string); ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	links, err := g.TraverseFromNodeIDs(ctx, ids, DirectionUpstream, 5)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(links, func(i, j int) bool { return links[i].Confidence > links[j].Confidence })
	return links, nil
}

// LinkToEvent creates an X_REFERS_TO edge from a causal node to an event.
func (g *CausalGraph) LinkToEvent(ctx context.Context, causalUUID, eventUUID string) error {
	return g.client.CreateRelationship(ctx, causalUUID, eventUUID, graph.RelRefersTo, map[string]interface{}{
		"created_at": formatTime(time.Now()),
	})
}

// LinkToEntity creates an X_AFFECTS edge from a causal node to an entity.
func (g *CausalGraph) LinkToEntity(ctx context.Context, causalUUID, entityUUID string) error {
	return g.client.CreateRelationship(ctx, causalUUID, entityUUID, graph.RelAffects, map[string]interface{}{
		"created_at": formatTime(time.Now()),
	})
}

func (g *CausalGraph) parseLinkRow(causeVal, edgeVal, effectVal interface{}) (CausalLink, error) {
	causeProps, err := graph.ParseNodeFromResult(causeVal)
	if err != nil {
		return CausalLink{}, err
	}
	cause, err := parseCausalNode(causeProps)
	if err != nil {
		return CausalLink{}, err
	}

	effectProps, err := graph.ParseNodeFromResult(effectVal)
	if err != nil {
		return CausalLink{}, err
	}
	effect, err := parseCausalNode(effectProps)
	if err != nil {
		return CausalLink{}, err
	}

	_, edgeProps, err := graph.ParseEdgeFromResult(edgeVal)
	if err != nil {
		return CausalLink{}, err
	}

	return CausalLink{
		Cause:      cause,
		Effect:     effect,
		Confidence: graph.GetFloat64Property(edgeProps, "confidence"),
		Evidence:   graph.GetStringProperty(edgeProps, "evidence"),
		CreatedAt:  graph.GetStringProperty(edgeProps, "created_at"),
	}, nil
}

// clampConfidence pulls out-of-range values to the nearest bound; only
// the unset zero value defaults to full confidence.
func clampConfidence(confidence float64) float64 {
	if confidence == 0 {
		return 1.0
	}
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1.0
	}
	return confidence
}
