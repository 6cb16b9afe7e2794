package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/magma/internal/logging"
)

func TestNewQueryCache(t *testing.T) {
	tests := []struct {
		name      string
		config    QueryCacheConfig
		shouldErr bool
	}{
		{"valid 64MB", QueryCacheConfig{MaxMemoryMB: 64, TTL: 2 * time.Minute}, false},
		{"valid 1MB", QueryCacheConfig{MaxMemoryMB: 1, TTL: 30 * time.Second}, false},
		{"zero memory", QueryCacheConfig{MaxMemoryMB: 0, TTL: time.Minute}, true},
		{"negative memory", QueryCacheConfig{MaxMemoryMB: -1, TTL: time.Minute}, true},
		{"zero TTL", QueryCacheConfig{MaxMemoryMB: 64, TTL: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, err := NewQueryCache(tt.config, logging.GetLogger("test"))
			if tt.shouldErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.config.MaxMemoryMB*1024*1024, cache.maxMemory)
		})
	}
}

func TestQueryCacheGetPut(t *testing.T) {
	cache, err := NewQueryCache(QueryCacheConfig{MaxMemoryMB: 1, TTL: time.Minute}, logging.GetLogger("test"))
	require.NoError(t, err)

	result := &QueryResult{
		Columns: []string{"n"},
		Rows:    [][]interface{}{{map[string]interface{}{"uuid": "a"}}},
	}

	key := MakeQueryKey(GraphQuery{Query: "MATCH (n) RETURN n"})

	_, ok := cache.Get(key)
	assert.False(t, ok)

	cache.Put(key, result)

	got, ok := cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, result.Columns, got.Columns)

	stats := cache.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Items)
	assert.InDelta(t, 0.5, stats.HitRate, 0.001)
	assert.Greater(t, stats.UsedMemory, int64(0))
}

func TestQueryCacheTTLExpiry(t *testing.T) {
	cache, err := NewQueryCache(QueryCacheConfig{MaxMemoryMB: 1, TTL: 10 * time.Millisecond}, logging.GetLogger("test"))
	require.NoError(t, err)

	key := "some-key"
	cache.Put(key, &QueryResult{Columns: []string{"n"}})

	_, ok := cache.Get(key)
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, ok = cache.Get(key)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), cache.Stats().Expired)
}

func TestQueryCacheClear(t *testing.T) {
	cache, err := NewQueryCache(QueryCacheConfig{MaxMemoryMB: 1, TTL: time.Minute}, logging.GetLogger("test"))
	require.NoError(t, err)

	cache.Put("k1", &QueryResult{})
	cache.Put("k2", &QueryResult{})
	assert.Equal(t, 2, cache.Stats().Items)

	cache.Clear()
	assert.Equal(t, 0, cache.Stats().Items)
	assert.Equal(t, int64(0), cache.Stats().UsedMemory)
}

func TestEstimateResultSize(t *testing.T) {
	assert.Equal(t, int64(0), estimateResultSize(nil))

	small := estimateResultSize(&QueryResult{})
	large := estimateResultSize(&QueryResult{
		Columns: []string{"a", "b"},
		Rows: [][]interface{}{
			{"some string value", 42},
			{"another string value", 43},
		},
	})
	assert.Greater(t, large, small)
}
