package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/FalkorDB/falkordb-go/v2"
	"github.com/google/uuid"

	magmaerrors "github.com/moolen/magma/internal/errors"
	"github.com/moolen/magma/internal/logging"
)

// Client is the storage adapter over FalkorDB. One client holds a single
// shared connection pool; all methods are safe for concurrent use.
type Client interface {
	// Connect establishes the connection to FalkorDB
	Connect(ctx context.Context) error

	// Close closes the connection
	Close() error

	// Ping checks if the connection is alive
	Ping(ctx context.Context) error

	// ExecuteQuery executes a Cypher query and returns results
	ExecuteQuery(ctx context.Context, query GraphQuery) (*QueryResult, error)

	// CreateNode creates a node and returns its generated uuid
	CreateNode(ctx context.Context, label NodeLabel, properties map[string]interface{}) (string, error)

	// CreateRelationship creates a typed edge between two nodes identified by uuid
	CreateRelationship(ctx context.Context, srcUUID, tgtUUID string, relType RelationType, properties map[string]interface{}) error

	// DeleteNode detaches and deletes a node by uuid; returns whether a node was deleted
	DeleteNode(ctx context.Context, nodeUUID string) (bool, error)

	// FindNodeByUUID retrieves a node's properties by uuid
	FindNodeByUUID(ctx context.Context, nodeUUID string) (map[string]interface{}, error)

	// FindNodesByLabel retrieves up to limit nodes with the given label
	FindNodesByLabel(ctx context.Context, label NodeLabel, limit int) ([]map[string]interface{}, error)

	// VectorSearch queries the vector index on label.attribute and returns
	// up to topK matches ordered by distance
	VectorSearch(ctx context.Context, label NodeLabel, attribute string, vector []float32, topK int) ([]VectorMatch, error)

	// ClearGraph removes all nodes and relationships
	ClearGraph(ctx context.Context) error

	// ClearScope removes all nodes whose label starts with prefix; returns
	// the number of nodes deleted
	ClearScope(ctx context.Context, prefix string) (int, error)

	// GetStatistics returns per-graph node counts and the relationship total
	GetStatistics(ctx context.Context) (*Statistics, error)

	// HealthCheck reports whether the backend is reachable
	HealthCheck(ctx context.Context) bool

	// InitializeSchema creates property indexes and the vector index with
	// the given embedding dimension
	InitializeSchema(ctx context.Context, dimension int) error
}

// ClientConfig holds configuration for the FalkorDB client
type ClientConfig struct {
	Host         string
	Port         int
	Password     string
	GraphName    string
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int

	// Query cache settings
	QueryCacheEnabled  bool
	QueryCacheMemoryMB int64
	QueryCacheTTL      time.Duration
}

// DefaultClientConfig returns default configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Host:         "localhost",
		Port:         6379,
		Password:     "",
		GraphName:    "magma",
		MaxRetries:   3,
		DialTimeout:  30 * time.Second,
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
		PoolSize:     10,

		QueryCacheEnabled:  false,
		QueryCacheMemoryMB: 64,
		QueryCacheTTL:      2 * time.Minute,
	}
}

// falkorClient implements the Client interface using the FalkorDB Go client
type falkorClient struct {
	config ClientConfig
	logger *logging.Logger
	db     *falkordb.FalkorDB
	graph  *falkordb.Graph
}

// NewClient creates a new FalkorDB client, optionally wrapped with query
// caching.
func NewClient(config ClientConfig) Client {
	client := &falkorClient{
		config: config,
		logger: logging.GetLogger("graph.client"),
	}

	if config.QueryCacheEnabled {
		cacheConfig := QueryCacheConfig{
			MaxMemoryMB: config.QueryCacheMemoryMB,
			TTL:         config.QueryCacheTTL,
			Enabled:     true,
		}

		cachedClient, err := NewCachedClient(client, cacheConfig, logging.GetLogger("graph.cache"))
		if err != nil {
			client.logger.Warn("Failed to create query cache, continuing without caching: %v", err)
			return client
		}
		return cachedClient
	}

	return client
}

// Connect establishes the connection to FalkorDB
func (c *falkorClient) Connect(ctx context.Context) error {
	c.logger.Info("Connecting to FalkorDB at %s:%d (graph: %s)", c.config.Host, c.config.Port, c.config.GraphName)

	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)

	// falkordb.ConnectionOption is an alias for redis.Options
	connOpts := &falkordb.ConnectionOption{
		Addr:         addr,
		Password:     c.config.Password,
		DialTimeout:  c.config.DialTimeout,
		ReadTimeout:  c.config.ReadTimeout,
		WriteTimeout: c.config.WriteTimeout,
		PoolSize:     c.config.PoolSize,
		MaxRetries:   c.config.MaxRetries,
	}

	db, err := falkordb.FalkorDBNew(connOpts)
	if err != nil {
		return magmaerrors.NewBackend("Connect", "failed to create FalkorDB client").Wrap(err)
	}
	c.db = db
	c.graph = db.SelectGraph(c.config.GraphName)

	c.logger.Info("Successfully connected to FalkorDB")
	return nil
}

// Close closes the connection
func (c *falkorClient) Close() error {
	c.logger.Info("Closing FalkorDB connection")
	if c.db != nil && c.db.Conn != nil {
		return c.db.Conn.Close()
	}
	return nil
}

// Ping checks if the connection is alive
func (c *falkorClient) Ping(ctx context.Context) error {
	if c.graph == nil {
		return magmaerrors.NewBackend("Ping", "client not connected")
	}
	_, err := c.graph.Query("RETURN 1", nil, nil)
	return err
}

// ExecuteQuery executes a Cypher query and returns results
func (c *falkorClient) ExecuteQuery(ctx context.Context, query GraphQuery) (*QueryResult, error) {
	if c.graph == nil {
		return nil, magmaerrors.NewBackend("ExecuteQuery", "client not connected")
	}

	var options *falkordb.QueryOptions
	if query.Timeout > 0 {
		options = falkordb.NewQueryOptions().SetTimeout(query.Timeout)
	}

	startTime := time.Now()
	result, err := c.graph.Query(query.Query, query.Parameters, options)
	executionTime := time.Since(startTime)

	if err != nil {
		return nil, magmaerrors.NewBackend("ExecuteQuery", "query execution failed").Wrap(err)
	}

	queryResult := convertFalkorDBResult(result)
	queryResult.Stats.ExecutionTime = executionTime

	return queryResult, nil
}

// convertFalkorDBResult converts a FalkorDB QueryResult to our format
func convertFalkorDBResult(result *falkordb.QueryResult) *QueryResult {
	qr := &QueryResult{
		Columns: []string{},
		Rows:    [][]interface{}{},
		Stats:   QueryStats{},
	}

	// Column names come from the first record
	firstRow := true
	for result.Next() {
		record := result.Record()

		if firstRow {
			qr.Columns = record.Keys()
			firstRow = false
		}

		qr.Rows = append(qr.Rows, record.Values())
	}

	qr.Stats.NodesCreated = result.NodesCreated()
	qr.Stats.NodesDeleted = result.NodesDeleted()
	qr.Stats.RelationshipsCreated = result.RelationshipsCreated()
	qr.Stats.RelationshipsDeleted = result.RelationshipsDeleted()
	qr.Stats.PropertiesSet = result.PropertiesSet()
	qr.Stats.LabelsAdded = result.LabelsAdded()

	return qr
}

// CreateNode creates a node and returns its generated uuid
func (c *falkorClient) CreateNode(ctx context.Context, label NodeLabel, properties map[string]interface{}) (string, error) {
	if !ValidLabel(string(label)) {
		return "", magmaerrors.NewValidation("CreateNode", "invalid label %q", label).WithLabel(string(label))
	}

	nodeUUID := uuid.NewString()
	props := make(map[string]interface{}, len(properties)+1)
	for k, v := range properties {
		props[k] = v
	}
	props["uuid"] = nodeUUID

	propsStr := buildPropertiesString(props)
	cypherQuery := fmt.Sprintf("CREATE (n:%s %s)", label, propsStr)

	_, err := c.ExecuteQuery(ctx, GraphQuery{Query: cypherQuery})
	if err != nil {
		return "", err
	}
	return nodeUUID, nil
}

// CreateRelationship creates a typed edge between two nodes identified by uuid
func (c *falkorClient) CreateRelationship(ctx context.Context, srcUUID, tgtUUID string, relType RelationType, properties map[string]interface{}) error {
	if !ValidLabel(string(relType)) {
		return magmaerrors.NewValidation("CreateRelationship", "invalid relationship type %q", relType)
	}

	propsStr := buildPropertiesString(properties)
	cypherQuery := fmt.Sprintf(
		"MATCH (a {uuid: '%s'}), (b {uuid: '%s'}) CREATE (a)-[r:%s %s]->(b)",
		escapeCypherString(srcUUID),
		escapeCypherString(tgtUUID),
		relType,
		propsStr,
	)

	result, err := c.ExecuteQuery(ctx, GraphQuery{Query: cypherQuery})
	if err != nil {
		return err
	}
	if result.Stats.RelationshipsCreated == 0 {
		return magmaerrors.NewRelationship("CreateRelationship",
			"failed to create %s relationship between %s and %s (node missing?)", relType, srcUUID, tgtUUID)
	}
	return nil
}

// DeleteNode detaches and deletes a node by uuid
func (c *falkorClient) DeleteNode(ctx context.Context, nodeUUID string) (bool, error) {
	query := GraphQuery{
		Query:      "MATCH (n {uuid: $uuid}) DETACH DELETE n",
		Parameters: map[string]interface{}{"uuid": nodeUUID},
	}

	result, err := c.ExecuteQuery(ctx, query)
	if err != nil {
		return false, err
	}
	return result.Stats.NodesDeleted > 0, nil
}

// FindNodeByUUID retrieves a node's properties by uuid
func (c *falkorClient) FindNodeByUUID(ctx context.Context, nodeUUID string) (map[string]interface{}, error) {
	query := GraphQuery{
		Query:      "MATCH (n {uuid: $uuid}) RETURN n LIMIT 1",
		Parameters: map[string]interface{}{"uuid": nodeUUID},
	}

	result, err := c.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(result.Rows) == 0 || len(result.Rows[0]) == 0 {
		return nil, magmaerrors.NewNotFound("FindNodeByUUID", "node %s not found", nodeUUID).WithID(nodeUUID)
	}

	return ParseNodeFromResult(result.Rows[0][0])
}

// FindNodesByLabel retrieves up to limit nodes with the given label
func (c *falkorClient) FindNodesByLabel(ctx context.Context, label NodeLabel, limit int) ([]map[string]interface{}, error) {
	if !ValidLabel(string(label)) {
		return nil, magmaerrors.NewValidation("FindNodesByLabel", "invalid label %q", label).WithLabel(string(label))
	}
	if limit <= 0 {
		limit = 100
	}

	query := GraphQuery{
		Query: fmt.Sprintf("MATCH (n:%s) RETURN n LIMIT %d", label, limit),
	}

	result, err := c.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	nodes := make([]map[string]interface{}, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) == 0 {
			continue
		}
		props, err := ParseNodeFromResult(row[0])
		if err != nil {
			c.logger.Warn("Skipping unparseable %s node: %v", label, err)
			continue
		}
		nodes = append(nodes, props)
	}
	return nodes, nil
}

// VectorSearch queries the vector index on label.attribute. Matches are
// ordered by distance ascending; Score carries the raw distance.
func (c *falkorClient) VectorSearch(ctx context.Context, label NodeLabel, attribute string, vector []float32, topK int) ([]VectorMatch, error) {
	if !ValidLabel(string(label)) || !ValidLabel(attribute) {
		return nil, magmaerrors.NewValidation("VectorSearch", "invalid label %q or attribute %q", label, attribute)
	}
	if topK <= 0 {
		topK = 10
	}

	cypherQuery := fmt.Sprintf(
		"CALL db.idx.vector.queryNodes('%s', '%s', %d, %s) YIELD node, score RETURN node, score",
		label, attribute, topK, vectorLiteral(vector),
	)

	result, err := c.ExecuteQuery(ctx, GraphQuery{Query: cypherQuery})
	if err != nil {
		return nil, err
	}

	matches := make([]VectorMatch, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) < 2 {
			continue
		}
		props, err := ParseNodeFromResult(row[0])
		if err != nil {
			c.logger.Warn("Skipping unparseable vector match: %v", err)
			continue
		}
		matches = append(matches, VectorMatch{
			Properties: props,
			Score:      toFloat64(row[1]),
		})
	}
	return matches, nil
}

// ClearGraph removes all nodes and relationships
func (c *falkorClient) ClearGraph(ctx context.Context) error {
	_, err := c.ExecuteQuery(ctx, GraphQuery{Query: "MATCH (n) DETACH DELETE n"})
	return err
}

// ClearScope removes all nodes whose label starts with prefix
func (c *falkorClient) ClearScope(ctx context.Context, prefix string) (int, error) {
	valid := false
	for _, p := range ScopePrefixes {
		if prefix == p {
			valid = true
			break
		}
	}
	if !valid {
		return 0, magmaerrors.NewValidation("ClearScope", "unknown scope prefix %q (want one of S_, E_, T_, C_)", prefix)
	}

	query := GraphQuery{
		Query:      "MATCH (n) WHERE any(l IN labels(n) WHERE l STARTS WITH $prefix) DETACH DELETE n",
		Parameters: map[string]interface{}{"prefix": prefix},
	}

	result, err := c.ExecuteQuery(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.Stats.NodesDeleted, nil
}

// GetStatistics returns per-graph node counts and the relationship total
func (c *falkorClient) GetStatistics(ctx context.Context) (*Statistics, error) {
	nodeResult, err := c.ExecuteQuery(ctx, GraphQuery{
		Query: "MATCH (n) RETURN labels(n)[0] as label, count(n) as count",
	})
	if err != nil {
		return nil, err
	}

	relResult, err := c.ExecuteQuery(ctx, GraphQuery{
		Query: "MATCH ()-[r]->() RETURN count(r) as count",
	})
	if err != nil {
		return nil, err
	}

	stats := &Statistics{}
	for _, row := range nodeResult.Rows {
		if len(row) < 2 {
			continue
		}
		label, ok := row[0].(string)
		if !ok {
			continue
		}
		count := int(toInt64(row[1]))
		switch {
		case strings.HasPrefix(label, "S_"):
			stats.SemanticNodes += count
		case strings.HasPrefix(label, "E_"):
			stats.EntityNodes += count
		case strings.HasPrefix(label, "T_"):
			stats.TemporalNodes += count
		case strings.HasPrefix(label, "C_"):
			stats.CausalNodes += count
		}
	}

	if len(relResult.Rows) > 0 && len(relResult.Rows[0]) > 0 {
		stats.TotalRelationships = int(toInt64(relResult.Rows[0][0]))
	}

	c.logger.Debug("Graph stats: semantic=%d entity=%d temporal=%d causal=%d rels=%d",
		stats.SemanticNodes, stats.EntityNodes, stats.TemporalNodes, stats.CausalNodes, stats.TotalRelationships)

	return stats, nil
}

// HealthCheck reports whether the backend is reachable
func (c *falkorClient) HealthCheck(ctx context.Context) bool {
	return c.Ping(ctx) == nil
}

// Helper functions

// buildPropertiesString converts a map to Cypher property syntax.
// Example: {name: "foo", age: 30} -> {name: 'foo', age: 30}
// Float32 slices become vecf32 literals for vector-indexed properties.
func buildPropertiesString(props map[string]interface{}) string {
	if len(props) == 0 {
		return ""
	}

	parts := make([]string, 0, len(props))
	for key, value := range props {
		var valueStr string
		switch v := value.(type) {
		case string:
			valueStr = fmt.Sprintf("'%s'", escapeCypherString(v))
		case bool:
			valueStr = fmt.Sprintf("%t", v)
		case int, int64, float64:
			valueStr = fmt.Sprintf("%v", v)
		case []float32:
			valueStr = vectorLiteral(v)
		case []string:
			escaped := make([]string, len(v))
			for i, s := range v {
				escaped[i] = fmt.Sprintf("'%s'", escapeCypherString(s))
			}
			valueStr = fmt.Sprintf("[%s]", strings.Join(escaped, ", "))
		default:
			// Complex types are stored as JSON strings
			jsonBytes, _ := json.Marshal(v)
			valueStr = fmt.Sprintf("'%s'", escapeCypherString(string(jsonBytes)))
		}
		parts = append(parts, fmt.Sprintf("%s: %s", key, valueStr))
	}

	return fmt.Sprintf("{%s}", strings.Join(parts, ", "))
}

// vectorLiteral renders a float32 slice as a vecf32 Cypher literal.
func vectorLiteral(vector []float32) string {
	elems := make([]string, len(vector))
	for i, v := range vector {
		elems[i] = fmt.Sprintf("%g", v)
	}
	return fmt.Sprintf("vecf32([%s])", strings.Join(elems, ", "))
}

// escapeCypherString escapes single quotes in Cypher strings
func escapeCypherString(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
