package cache

import (
	"context"
	"sync"
	"time"

	"github.com/annel0/voxel-light/internal/chunk"
	"github.com/annel0/voxel-light/internal/vec"
)

// MemoryChunkCache локальный кеш без Redis, для одиночного узла и тестов
type MemoryChunkCache struct {
	mu          sync.RWMutex
	entries     map[vec.Vec2]memoryEntry
	ttl         time.Duration
	coldStorage ColdStorage
	now         func() time.Time

	stats stats
}

type memoryEntry struct {
	grid    *chunk.Grid
	expires time.Time
}

// NewMemoryChunkCache создаёт кеш; ttl <= 0 означает без истечения
func NewMemoryChunkCache(ttl time.Duration, coldStorage ColdStorage) *MemoryChunkCache {
	return &MemoryChunkCache{
		entries:     make(map[vec.Vec2]memoryEntry),
		ttl:         ttl,
		coldStorage: coldStorage,
		now:         time.Now,
	}
}

func (m *MemoryChunkCache) Get(_ context.Context, coords vec.Vec2) (*chunk.Grid, error) {
	start := time.Now()
	defer m.stats.recordLatency(start)

	m.mu.RLock()
	e, ok := m.entries[coords]
	m.mu.RUnlock()

	if ok && (e.expires.IsZero() || m.now().Before(e.expires)) {
		m.stats.hit()
		return e.grid.Clone(), nil
	}
	m.stats.miss()

	if m.coldStorage == nil {
		return nil, ErrCacheMiss
	}
	grid, err := m.coldStorage.LoadChunk(coords)
	if err != nil {
		return nil, ErrCacheMiss
	}
	m.stats.coldLoad()
	m.put(grid)
	return grid, nil
}

func (m *MemoryChunkCache) Set(_ context.Context, c *chunk.Grid) error {
	if !c.IsReady() {
		return nil
	}
	m.put(c)
	return nil
}

func (m *MemoryChunkCache) put(c *chunk.Grid) {
	e := memoryEntry{grid: c.Clone()}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}
	m.mu.Lock()
	m.entries[c.Coords] = e
	m.mu.Unlock()
}

func (m *MemoryChunkCache) Invalidate(_ context.Context, coords vec.Vec2) error {
	m.mu.Lock()
	delete(m.entries, coords)
	m.mu.Unlock()
	return nil
}

// Len число записей, включая просроченные
func (m *MemoryChunkCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryChunkCache) Close() error { return nil }

func (m *MemoryChunkCache) GetMetrics() *CacheMetrics {
	return m.stats.snapshot()
}
