package graph

import (
	"context"
	"strings"

	"github.com/moolen/magma/internal/logging"
)

// CachedClient wraps a Client with query caching for read operations.
// Write operations pass through and invalidate the cache, so reads after a
// write observe fresh data at the cost of a cold cache.
type CachedClient struct {
	underlying Client
	cache      *QueryCache
	logger     *logging.Logger
}

// NewCachedClient creates a new cached client wrapper
func NewCachedClient(client Client, config QueryCacheConfig, logger *logging.Logger) (*CachedClient, error) {
	cache, err := NewQueryCache(config, logger)
	if err != nil {
		return nil, err
	}

	return &CachedClient{
		underlying: client,
		cache:      cache,
		logger:     logger,
	}, nil
}

func (c *CachedClient) Connect(ctx context.Context) error {
	return c.underlying.Connect(ctx)
}

func (c *CachedClient) Close() error {
	return c.underlying.Close()
}

func (c *CachedClient) Ping(ctx context.Context) error {
	return c.underlying.Ping(ctx)
}

// ExecuteQuery executes a Cypher query, serving repeated read queries from
// the cache. Write queries bypass and clear the cache.
func (c *CachedClient) ExecuteQuery(ctx context.Context, query GraphQuery) (*QueryResult, error) {
	if isWriteQuery(query.Query) {
		result, err := c.underlying.ExecuteQuery(ctx, query)
		if err == nil {
			c.cache.Clear()
		}
		return result, err
	}

	key := MakeQueryKey(query)

	if result, ok := c.cache.Get(key); ok {
		return result, nil
	}

	result, err := c.underlying.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	c.cache.Put(key, result)
	return result, nil
}

func (c *CachedClient) CreateNode(ctx context.Context, label NodeLabel, properties map[string]interface{}) (string, error) {
	nodeUUID, err := c.underlying.CreateNode(ctx, label, properties)
	if err == nil {
		c.cache.Clear()
	}
	return nodeUUID, err
}

func (c *CachedClient) CreateRelationship(ctx context.Context, srcUUID, tgtUUID string, relType RelationType, properties map[string]interface{}) error {
	err := c.underlying.CreateRelationship(ctx, srcUUID, tgtUUID, relType, properties)
	if err == nil {
		c.cache.Clear()
	}
	return err
}

func (c *CachedClient) DeleteNode(ctx context.Context, nodeUUID string) (bool, error) {
	deleted, err := c.underlying.DeleteNode(ctx, nodeUUID)
	if deleted {
		c.cache.Clear()
	}
	return deleted, err
}

func (c *CachedClient) FindNodeByUUID(ctx context.Context, nodeUUID string) (map[string]interface{}, error) {
	return c.underlying.FindNodeByUUID(ctx, nodeUUID)
}

func (c *CachedClient) FindNodesByLabel(ctx context.Context, label NodeLabel, limit int) ([]map[string]interface{}, error) {
	return c.underlying.FindNodesByLabel(ctx, label, limit)
}

func (c *CachedClient) VectorSearch(ctx context.Context, label NodeLabel, attribute string, vector []float32, topK int) ([]VectorMatch, error) {
	return c.underlying.VectorSearch(ctx, label, attribute, vector, topK)
}

func (c *CachedClient) ClearGraph(ctx context.Context) error {
	err := c.underlying.ClearGraph(ctx)
	c.cache.Clear()
	return err
}

func (c *CachedClient) ClearScope(ctx context.Context, prefix string) (int, error) {
	deleted, err := c.underlying.ClearScope(ctx, prefix)
	c.cache.Clear()
	return deleted, err
}

func (c *CachedClient) GetStatistics(ctx context.Context) (*Statistics, error) {
	return c.underlying.GetStatistics(ctx)
}

func (c *CachedClient) HealthCheck(ctx context.Context) bool {
	return c.underlying.HealthCheck(ctx)
}

func (c *CachedClient) InitializeSchema(ctx context.Context, dimension int) error {
	return c.underlying.InitializeSchema(ctx, dimension)
}

// CacheStats returns cache statistics
func (c *CachedClient) CacheStats() QueryCacheStats {
	return c.cache.Stats()
}

// ClearCache clears the query cache
func (c *CachedClient) ClearCache() {
	c.cache.Clear()
}

// isWriteQuery checks if a query mutates the graph and should bypass the
// cache. CALL db.idx procedures are reads.
func isWriteQuery(query string) bool {
	upper := strings.ToUpper(strings.TrimSpace(query))

	writeKeywords := []string{
		"CREATE",
		"MERGE",
		"DELETE",
		"DETACH DELETE",
		"SET ",
		"REMOVE",
	}

	for _, keyword := range writeKeywords {
		if strings.Contains(upper, keyword) {
			return true
		}
	}

	return false
}
