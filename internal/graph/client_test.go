package graph

import (
	"strings"
	"testing"

	"github.com/FalkorDB/falkordb-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidLabel(t *testing.T) {
	valid := []string{"S_Concept", "E_Entity", "T_Event", "T_Fact", "C_Node", "_private", "abc123"}
	for _, label := range valid {
		assert.True(t, ValidLabel(label), "label %q", label)
	}

	invalid := []string{"", "1abc", "S-Concept", "S Concept", "a.b", "n;DROP"}
	for _, label := range invalid {
		assert.False(t, ValidLabel(label), "label %q", label)
	}
}

func TestBuildPropertiesString(t *testing.T) {
	assert.Equal(t, "", buildPropertiesString(nil))
	assert.Equal(t, "", buildPropertiesString(map[string]interface{}{}))

	props := buildPropertiesString(map[string]interface{}{"name": "payment-service"})
	assert.Equal(t, "{name: 'payment-service'}", props)

	// Single quotes are escaped
	props = buildPropertiesString(map[string]interface{}{"name": "o'brien"})
	assert.Equal(t, `{name: 'o\'brien'}`, props)

	props = buildPropertiesString(map[string]interface{}{"confidence": 0.85})
	assert.Equal(t, "{confidence: 0.85}", props)

	props = buildPropertiesString(map[string]interface{}{"active": true})
	assert.Equal(t, "{active: true}", props)

	// Vectors become vecf32 literals
	props = buildPropertiesString(map[string]interface{}{"embedding": []float32{0.5, -1}})
	assert.Equal(t, "{embedding: vecf32([0.5, -1])}", props)
}

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "vecf32([])", vectorLiteral(nil))
	assert.Equal(t, "vecf32([0.1, 0.2, 0.3])", vectorLiteral([]float32{0.1, 0.2, 0.3}))
}

func TestEscapeCypherString(t *testing.T) {
	assert.Equal(t, "plain", escapeCypherString("plain"))
	assert.Equal(t, `it\'s`, escapeCypherString("it's"))
}

func TestParseNodeFromResult(t *testing.T) {
	props, err := ParseNodeFromResult(nil)
	require.NoError(t, err)
	assert.Empty(t, props)

	node := falkordb.Node{Properties: map[string]interface{}{"uuid": "abc", "name": "db"}}
	props, err = ParseNodeFromResult(node)
	require.NoError(t, err)
	assert.Equal(t, "abc", props["uuid"])

	props, err = ParseNodeFromResult(&node)
	require.NoError(t, err)
	assert.Equal(t, "db", props["name"])

	props, err = ParseNodeFromResult(map[string]interface{}{"uuid": "xyz"})
	require.NoError(t, err)
	assert.Equal(t, "xyz", props["uuid"])

	_, err = ParseNodeFromResult("not a node")
	assert.Error(t, err)
}

func TestParseEdgeFromResult(t *testing.T) {
	edge := falkordb.Edge{Relation: "E_RELATES", Properties: map[string]interface{}{"relationship_type": "depends_on"}}

	relType, props, err := ParseEdgeFromResult(edge)
	require.NoError(t, err)
	assert.Equal(t, "E_RELATES", relType)
	assert.Equal(t, "depends_on", props["relationship_type"])

	_, _, err = ParseEdgeFromResult(42)
	assert.Error(t, err)
}

func TestNumericCoercion(t *testing.T) {
	props := map[string]interface{}{
		"asInt64": int64(7), "asFloat": 7.0, "asInt": 7,
		"score": 0.85, "name": "x",
	}

	assert.Equal(t, int64(7), GetInt64Property(props, "asInt64"))
	assert.Equal(t, int64(7), GetInt64Property(props, "asFloat"))
	assert.Equal(t, int64(7), GetInt64Property(props, "asInt"))
	assert.Equal(t, int64(0), GetInt64Property(props, "missing"))
	assert.Equal(t, int64(0), GetInt64Property(props, "name"))

	assert.Equal(t, 0.85, GetFloat64Property(props, "score"))
	assert.Equal(t, 7.0, GetFloat64Property(props, "asInt64"))
	assert.Equal(t, 0.0, GetFloat64Property(props, "missing"))

	assert.Equal(t, "x", GetStringProperty(props, "name"))
	assert.Equal(t, "", GetStringProperty(props, "score"))
}

func TestIsWriteQuery(t *testing.T) {
	writes := []string{
		"CREATE (n:E_Entity {name: 'a'})",
		"MATCH (n) DETACH DELETE n",
		"MERGE (n:S_Concept {name: 'x'})",
		"MATCH (n {uuid: 'a'}) SET n.name = 'b'",
	}
	for _, q := range writes {
		assert.True(t, isWriteQuery(q), "query %q", q)
	}

	reads := []string{
		"MATCH (n:E_Entity) RETURN n",
		"CALL db.idx.vector.queryNodes('S_Concept', 'embedding', 10, vecf32([0.1])) YIELD node, score RETURN node, score",
		"MATCH ()-[r]->() RETURN count(r)",
	}
	for _, q := range reads {
		assert.False(t, isWriteQuery(q), "query %q", q)
	}
}

func TestMakeQueryKeyDeterministic(t *testing.T) {
	q1 := GraphQuery{
		Query:      "MATCH (n:E_Entity {name: $name}) RETURN n",
		Parameters: map[string]interface{}{"name": "db", "limit": 10},
	}
	q2 := GraphQuery{
		Query:      "MATCH (n:E_Entity {name: $name}) RETURN n",
		Parameters: map[string]interface{}{"limit": 10, "name": "db"},
	}

	// Parameter map iteration order must not change the key
	assert.Equal(t, MakeQueryKey(q1), MakeQueryKey(q2))

	q3 := q1
	q3.Parameters = map[string]interface{}{"name": "other", "limit": 10}
	assert.NotEqual(t, MakeQueryKey(q1), MakeQueryKey(q3))

	assert.Len(t, MakeQueryKey(q1), 64)
	assert.False(t, strings.ContainsAny(MakeQueryKey(q1), " {}"))
}
