package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/moolen/magma/internal/logging"
)

// QueryCacheConfig holds cache configuration
type QueryCacheConfig struct {
	MaxMemoryMB int64
	TTL         time.Duration
	Enabled     bool
}

// DefaultQueryCacheConfig returns default cache configuration
func DefaultQueryCacheConfig() QueryCacheConfig {
	return QueryCacheConfig{
		MaxMemoryMB: 64,
		TTL:         2 * time.Minute,
		Enabled:     false,
	}
}

// cachedEntry wraps a QueryResult with size tracking and TTL
type cachedEntry struct {
	Result    *QueryResult
	Size      int64 // estimated bytes
	ExpiresAt time.Time
}

// QueryCacheStats represents cache statistics
type QueryCacheStats struct {
	MaxMemory       int64   `json:"maxMemory"`
	UsedMemory      int64   `json:"usedMemory"`
	AvailableMemory int64   `json:"availableMemory"`
	Items           int     `json:"items"`
	Hits            uint64  `json:"hits"`
	Misses          uint64  `json:"misses"`
	Evictions       uint64  `json:"evictions"`
	Expired         uint64  `json:"expired"`
	HitRate         float64 `json:"hitRate"`
}

// QueryCache provides LRU caching for read queries with TTL and a memory cap.
type QueryCache struct {
	lru        *lru.Cache[string, *cachedEntry]
	maxMemory  int64 // bytes
	usedMemory int64 // atomic
	ttl        time.Duration
	mu         sync.RWMutex
	logger     *logging.Logger

	// metrics (atomic)
	hits      uint64
	misses    uint64
	evictions uint64
	expired   uint64
}

// NewQueryCache creates a new query cache with the specified configuration
func NewQueryCache(config QueryCacheConfig, logger *logging.Logger) (*QueryCache, error) {
	if config.MaxMemoryMB <= 0 {
		return nil, fmt.Errorf("MaxMemoryMB must be positive, got %d", config.MaxMemoryMB)
	}
	if config.TTL <= 0 {
		return nil, fmt.Errorf("TTL must be positive, got %v", config.TTL)
	}

	qc := &QueryCache{
		maxMemory: config.MaxMemoryMB * 1024 * 1024,
		ttl:       config.TTL,
		logger:    logger,
	}

	// High initial capacity to avoid resizing; memory is the real bound.
	lruCache, err := lru.NewWithEvict[string, *cachedEntry](10000, func(key string, value *cachedEntry) {
		atomic.AddUint64(&qc.evictions, 1)
		atomic.AddInt64(&qc.usedMemory, -value.Size)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	qc.lru = lruCache
	qc.logger.Debug("Query cache initialized: maxMemory=%dMB, TTL=%v", config.MaxMemoryMB, config.TTL)
	return qc, nil
}

// Get retrieves a cached query result, honoring TTL expiry.
func (qc *QueryCache) Get(key string) (*QueryResult, bool) {
	qc.mu.RLock()
	defer qc.mu.RUnlock()

	entry, ok := qc.lru.Get(key)
	if !ok {
		atomic.AddUint64(&qc.misses, 1)
		return nil, false
	}

	if time.Now().After(entry.ExpiresAt) {
		// Expired entries are cleaned up by the next Put or eviction.
		atomic.AddUint64(&qc.expired, 1)
		atomic.AddUint64(&qc.misses, 1)
		return nil, false
	}

	atomic.AddUint64(&qc.hits, 1)
	return entry.Result, true
}

// Put stores a query result in the cache
func (qc *QueryCache) Put(key string, result *QueryResult) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	size := estimateResultSize(result)

	if existing, ok := qc.lru.Peek(key); ok {
		atomic.AddInt64(&qc.usedMemory, -existing.Size)
		qc.lru.Remove(key)
	}

	currentUsed := atomic.LoadInt64(&qc.usedMemory)
	if currentUsed+size > qc.maxMemory {
		for currentUsed+size > qc.maxMemory && qc.lru.Len() > 0 {
			qc.lru.RemoveOldest()
			currentUsed = atomic.LoadInt64(&qc.usedMemory)
		}
		if currentUsed+size > qc.maxMemory {
			qc.logger.Warn("Query cache PUT rejected: size=%dKB exceeds memory limit", size/1024)
			return
		}
	}

	qc.lru.Add(key, &cachedEntry{
		Result:    result,
		Size:      size,
		ExpiresAt: time.Now().Add(qc.ttl),
	})
	atomic.AddInt64(&qc.usedMemory, size)
}

// Clear removes all entries from the cache
func (qc *QueryCache) Clear() {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	qc.lru.Purge()
	atomic.StoreInt64(&qc.usedMemory, 0)
	qc.logger.Debug("Query cache cleared")
}

// Stats returns cache statistics
func (qc *QueryCache) Stats() QueryCacheStats {
	qc.mu.RLock()
	defer qc.mu.RUnlock()

	hits := atomic.LoadUint64(&qc.hits)
	misses := atomic.LoadUint64(&qc.misses)
	total := hits + misses

	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	usedMemory := atomic.LoadInt64(&qc.usedMemory)

	return QueryCacheStats{
		MaxMemory:       qc.maxMemory,
		UsedMemory:      usedMemory,
		AvailableMemory: qc.maxMemory - usedMemory,
		Items:           qc.lru.Len(),
		Hits:            hits,
		Misses:          misses,
		Evictions:       atomic.LoadUint64(&qc.evictions),
		Expired:         atomic.LoadUint64(&qc.expired),
		HitRate:         hitRate,
	}
}

// MakeQueryKey creates a deterministic cache key from a GraphQuery
func MakeQueryKey(query GraphQuery) string {
	h := sha256.New()
	h.Write([]byte(query.Query))

	if len(query.Parameters) > 0 {
		keys := make([]string, 0, len(query.Parameters))
		for k := range query.Parameters {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			h.Write([]byte(k))
			paramBytes, _ := json.Marshal(query.Parameters[k])
			h.Write(paramBytes)
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}

// estimateResultSize estimates the memory footprint of a QueryResult
func estimateResultSize(result *QueryResult) int64 {
	if result == nil {
		return 0
	}

	size := int64(len(result.Columns) * 50)

	for _, row := range result.Rows {
		rowBytes, err := json.Marshal(row)
		if err == nil {
			size += int64(len(rowBytes))
		} else {
			size += int64(len(row) * 100)
		}
	}

	// struct/slice/pointer overhead
	size += 200

	return size
}
