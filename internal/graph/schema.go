package graph

import (
	"context"
	"fmt"
)

// InitializeSchema creates the property indexes used by the memory graphs
// and the vector index on S_Concept.embedding. dimension must match the
// embedding provider's advertised dimension.
func (c *falkorClient) InitializeSchema(ctx context.Context, dimension int) error {
	c.logger.Info("Initializing graph schema for graph: %s (embedding dimension: %d)", c.config.GraphName, dimension)

	indexes := []string{
		// uuid lookup per label
		"CREATE INDEX FOR (n:S_Concept) ON (n.uuid)",
		"CREATE INDEX FOR (n:E_Entity) ON (n.uuid)",
		"CREATE INDEX FOR (n:T_Event) ON (n.uuid)",
		"CREATE INDEX FOR (n:T_Fact) ON (n.uuid)",
		"CREATE INDEX FOR (n:C_Node) ON (n.uuid)",

		// name resolution and time-range queries
		"CREATE INDEX FOR (n:E_Entity) ON (n.name)",
		"CREATE INDEX FOR (n:S_Concept) ON (n.name)",
		"CREATE INDEX FOR (n:T_Event) ON (n.occurred_at)",
		"CREATE INDEX FOR (n:T_Fact) ON (n.valid_from)",
	}

	for _, indexQuery := range indexes {
		_, err := c.ExecuteQuery(ctx, GraphQuery{Query: indexQuery})
		if err != nil {
			// FalkorDB errors when the index already exists
			c.logger.Warn("Failed to create index (may already exist): %v", err)
		}
	}

	vectorIndex := fmt.Sprintf(
		"CREATE VECTOR INDEX FOR (c:S_Concept) ON (c.embedding) OPTIONS {dimension: %d, similarityFunction: 'cosine'}",
		dimension,
	)
	if _, err := c.ExecuteQuery(ctx, GraphQuery{Query: vectorIndex}); err != nil {
		c.logger.Warn("Failed to create vector index (may already exist): %v", err)
	}

	c.logger.Info("Schema initialization complete")
	return nil
}
