package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/magma/internal/errors"
)

func TestParseConcept(t *testing.T) {
	concept, err := parseConcept(map[string]interface{}{
		"uuid":        "c-1",
		"name":        "database migration",
		"description": "moving data between schemas",
		"created_at":  "2024-06-15T10:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, "c-1", concept.UUID)
	assert.Equal(t, "database migration", concept.Name)
	assert.Equal(t, "moving data between schemas", concept.Description)

	_, err = parseConcept(map[string]interface{}{"uuid": "c-2"})
	require.Error(t, err)
	assert.Equal(t, errors.KindParse, errors.KindOf(err))
}

func TestParseEntityLiftsReservedKeys(t *testing.T) {
	entity, err := parseEntity(map[string]interface{}{
		"uuid":        "e-1",
		"name":        "auth-service",
		"entity_type": "service",
		"created_at":  "2024-06-15T10:00:00Z",
		"owner":       "platform-team",
		"replicas":    int64(3),
	})
	require.NoError(t, err)
	assert.Equal(t, "auth-service", entity.Name)
	assert.Equal(t, "service", entity.EntityType)
	assert.Equal(t, "platform-team", entity.Properties["owner"])
	assert.Equal(t, int64(3), entity.Properties["replicas"])
	assert.NotContains(t, entity.Properties, "name")
	assert.NotContains(t, entity.Properties, "uuid")
}

func TestParseEventRoundTrip(t *testing.T) {
	occurred := time.Date(2024, 6, 15, 14, 30, 0, 0, time.UTC)
	event, err := parseEvent(map[string]interface{}{
		"uuid":        "ev-1",
		"description": "deployment completed",
		"occurred_at": formatTime(occurred),
	})
	require.NoError(t, err)
	assert.True(t, event.OccurredAt.Equal(occurred))

	_, err = parseEvent(map[string]interface{}{"description": "no instant"})
	require.Error(t, err)
	assert.Equal(t, errors.KindParse, errors.KindOf(err))

	_, err = parseEvent(map[string]interface{}{
		"description": "bad instant",
		"occurred_at": "not-a-date",
	})
	require.Error(t, err)
	assert.Equal(t, errors.KindParse, errors.KindOf(err))
}

func TestParseFactOptionalValidTo(t *testing.T) {
	open, err := parseFact(map[string]interface{}{
		"uuid":       "f-1",
		"subject":    "alice",
		"predicate":  "works_at",
		"object":     "acme",
		"valid_from": "2024-01-01T00:00:00Z",
	})
	require.NoError(t, err)
	assert.Nil(t, open.ValidTo)

	closed, err := parseFact(map[string]interface{}{
		"uuid":       "f-2",
		"subject":    "alice",
		"predicate":  "works_at",
		"object":     "globex",
		"valid_from": "2022-01-01T00:00:00Z",
		"valid_to":   "2023-12-31T00:00:00Z",
	})
	require.NoError(t, err)
	require.NotNil(t, closed.ValidTo)
	assert.Equal(t, 2023, closed.ValidTo.Year())

	_, err = parseFact(map[string]interface{}{
		"subject":    "alice",
		"predicate":  "works_at",
		"valid_from": "2024-01-01T00:00:00Z",
	})
	require.Error(t, err)
}

func TestParseCausalNode(t *testing.T) {
	node, err := parseCausalNode(map[string]interface{}{
		"uuid":        "cn-1",
		"description": "disk filled up",
		"node_type":   "cause",
	})
	require.NoError(t, err)
	assert.Equal(t, "disk filled up", node.Description)
	assert.Equal(t, "cause", node.NodeType)

	_, err = parseCausalNode(map[string]interface{}{"uuid": "cn-2"})
	require.Error(t, err)
	assert.Equal(t, errors.KindParse, errors.KindOf(err))
}

func TestFormatTimeIsUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	local := time.Date(2024, 6, 15, 12, 0, 0, 0, loc)
	assert.Equal(t, "2024-06-15T10:00:00Z", formatTime(local))
}
