package graph

import (
	"fmt"

	"github.com/FalkorDB/falkordb-go/v2"
)

// ParseNodeFromResult extracts node properties from a query result value.
// The FalkorDB Go client returns nodes as falkordb.Node objects.
func ParseNodeFromResult(nodeValue interface{}) (map[string]interface{}, error) {
	// nil comes from OPTIONAL MATCH
	if nodeValue == nil {
		return make(map[string]interface{}), nil
	}

	if node, ok := nodeValue.(falkordb.Node); ok {
		return node.Properties, nil
	}
	if node, ok := nodeValue.(*falkordb.Node); ok {
		return node.Properties, nil
	}

	// Fallback: already a map
	if propsMap, ok := nodeValue.(map[string]interface{}); ok {
		return propsMap, nil
	}

	return nil, fmt.Errorf("unexpected node type: %T", nodeValue)
}

// ParseEdgeFromResult extracts the relation type and properties from a query
// result value holding a falkordb.Edge.
func ParseEdgeFromResult(edgeValue interface{}) (relType string, properties map[string]interface{}, err error) {
	if edge, ok := edgeValue.(falkordb.Edge); ok {
		return edge.Relation, edge.Properties, nil
	}
	if edge, ok := edgeValue.(*falkordb.Edge); ok {
		return edge.Relation, edge.Properties, nil
	}

	return "", nil, fmt.Errorf("unexpected edge type: %T", edgeValue)
}

// GetStringProperty safely extracts a string property
func GetStringProperty(props map[string]interface{}, key string) string {
	if val, ok := props[key].(string); ok {
		return val
	}
	return ""
}

// GetInt64Property safely extracts an int64 property
func GetInt64Property(props map[string]interface{}, key string) int64 {
	return toInt64(props[key])
}

// GetFloat64Property safely extracts a float64 property
func GetFloat64Property(props map[string]interface{}, key string) float64 {
	return toFloat64(props[key])
}

// GetBoolProperty safely extracts a bool property
func GetBoolProperty(props map[string]interface{}, key string) bool {
	if val, ok := props[key].(bool); ok {
		return val
	}
	return false
}

// toInt64 coerces the numeric types FalkorDB may return into int64.
func toInt64(val interface{}) int64 {
	switch v := val.(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case int:
		return int64(v)
	}
	return 0
}

// toFloat64 coerces the numeric types FalkorDB may return into float64.
func toFloat64(val interface{}) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0.0
}
