package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/moolen/magma/internal/embedding"
	"github.com/moolen/magma/internal/errors"
	"github.com/moolen/magma/internal/graph"
	"github.com/moolen/magma/internal/logging"
)

// SemanticGraph manages vector-indexed concepts. Embeddings are generated
// through the configured provider on write and on search.
type SemanticGraph struct {
	client   graph.Client
	provider embedding.Provider
	logger   *logging.Logger
}

// NewSemanticGraph creates a semantic graph facade.
func NewSemanticGraph(client graph.Client, provider embedding.Provider) *SemanticGraph {
	return &SemanticGraph{
		client:   client,
		provider: provider,
		logger:   logging.GetLogger("memory.semantic"),
	}
}

// AddConcept embeds name+description and stores the concept with its vector.
func (s *SemanticGraph) AddConcept(ctx context.Context, name, description string) (*Concept, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.NewValidation("AddConcept", "concept name must not be empty")
	}

	text := name
	if description != "" {
		text = name + ": " + description
	}

	vector, err := s.provider.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("generate embedding for concept %q: %w", name, err)
	}
	if len(vector) != s.provider.Dimensions() {
		return nil, errors.NewValidation("AddConcept",
			"embedding dimension %d does not match provider dimension %d", len(vector), s.provider.Dimensions())
	}

	createdAt := formatTime(time.Now())
	props := map[string]interface{}{
		"name":       name,
		"embedding":  vector,
		"created_at": createdAt,
	}
	if description != "" {
		props["description"] = description
	}

	conceptUUID, err := s.client.CreateNode(ctx, graph.LabelConcept, props)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Added concept %q (%s)", name, conceptUUID)
	return &Concept{
		UUID:        conceptUUID,
		Name:        name,
		Description: description,
		CreatedAt:   createdAt,
	}, nil
}

// Search embeds the query and returns up to topK concept matches sorted by
// similarity descending.
func (s *SemanticGraph) Search(ctx context.Context, query string, topK int) ([]SemanticMatch, error) {
	vector, err := s.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("generate embedding for query: %w", err)
	}

	hits, err := s.client.VectorSearch(ctx, graph.LabelConcept, "embedding", vector, topK)
	if err != nil {
		return nil, err
	}

	matches := make([]SemanticMatch, 0, len(hits))
	for _, hit := range hits {
		concept, err := parseConcept(hit.Properties)
		if err != nil {
			return nil, err
		}
		matches = append(matches, SemanticMatch{
			Concept: concept,
			Score:   distanceToSimilarity(hit.Score),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches, nil
}

// SearchWithEntities returns concept matches enriched with the entities each
// concept represents, resolved via X_REPRESENTS in the same traversal.
func (s *SemanticGraph) SearchWithEntities(ctx context.Context, query string, topK int) ([]EnrichedSemanticMatch, error) {
	vector, err := s.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("generate embedding for query: %w", err)
	}
	if topK <= 0 {
		topK = 10
	}

	cypherQuery := fmt.Sprintf(
		`CALL db.idx.vector.queryNodes('%s', 'embedding', %d, %s) YIELD node, score
		OPTIONAL MATCH (node)-[:%s]->(e:%s)
		RETURN node, score, collect(e.uuid) as entityIds, collect(e.name) as entityNames`,
		graph.LabelConcept, topK, vectorCypher(vector), graph.RelRepresents, graph.LabelEntity,
	)

	result, err := s.client.ExecuteQuery(ctx, graph.GraphQuery{Query: cypherQuery})
	if err != nil {
		return nil, err
	}

	matches := make([]EnrichedSemanticMatch, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) < 4 {
			continue
		}
		props, err := graph.ParseNodeFromResult(row[0])
		if err != nil {
			return nil, errors.NewParse("SearchWithEntities", "unparseable concept node").Wrap(err)
		}
		concept, err := parseConcept(props)
		if err != nil {
			return nil, err
		}

		matches = append(matches, EnrichedSemanticMatch{
			SemanticMatch: SemanticMatch{
				Concept: concept,
				Score:   distanceToSimilarity(numeric(row[1])),
			},
			LinkedEntityIDs:   stringSlice(row[2]),
			LinkedEntityNames: stringSlice(row[3]),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches, nil
}

// distanceToSimilarity converts the index's cosine distance into a
// similarity score clamped to [0,1].
func distanceToSimilarity(distance float64) float64 {
	similarity := 1.0 - distance
	if similarity < 0 {
		return 0
	}
	if similarity > 1 {
		return 1
	}
	return similarity
}

// vectorCypher renders the vecf32 literal for an embedded query vector.
func vectorCypher(vector []float32) string {
	elems := make([]string, len(vector))
	for i, v := range vector {
		elems[i] = fmt.Sprintf("%g", v)
	}
	return fmt.Sprintf("vecf32([%s])", strings.Join(elems, ", "))
}

// numeric coerces a query result cell into a float64.
func numeric(val interface{}) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

// stringSlice coerces a query result cell holding a collected list into a
// []string, dropping nulls produced by OPTIONAL MATCH.
func stringSlice(val interface{}) []string {
	items, ok := val.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
