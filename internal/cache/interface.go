package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/annel0/voxel-light/internal/chunk"
	"github.com/annel0/voxel-light/internal/vec"
)

// ChunkCache определяет интерфейс горячего кеша готовых чанков.
// Холодное хранилище (BadgerDB) подключается как ColdStorage.
//
// Использование:
//
//	c, err := NewRedisChunkCache(cfg, store, invalidator)
//	grid, err := c.Get(ctx, vec.Vec2{X: 1, Z: -2})
//	err = c.Set(ctx, grid)
//	err = c.Invalidate(ctx, grid.Coords)
type ChunkCache interface {
	// Get возвращает копию чанка.
	// Возвращает ErrCacheMiss если чанка нет ни в кеше, ни в ColdStorage.
	Get(ctx context.Context, coords vec.Vec2) (*chunk.Grid, error)

	// Set сохраняет готовый чанк с TTL из конфигурации.
	// Незагруженные чанки не кешируются.
	Set(ctx context.Context, c *chunk.Grid) error

	// Invalidate удаляет чанк и рассылает уведомление другим узлам.
	Invalidate(ctx context.Context, coords vec.Vec2) error

	// Close закрывает соединение с кешем.
	Close() error

	// GetMetrics возвращает метрики кеша.
	GetMetrics() *CacheMetrics
}

// ColdStorage постоянное хранилище чанков, используется при промахе
type ColdStorage interface {
	LoadChunk(coords vec.Vec2) (*chunk.Grid, error)
}

// CacheInvalidator управляет инвалидацией кеша через Pub/Sub.
type CacheInvalidator interface {
	// PublishInvalidation отправляет уведомление об инвалидации.
	PublishInvalidation(ctx context.Context, key string) error

	// SubscribeInvalidations подписывается на уведомления об инвалидации.
	SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error

	// Close закрывает соединение.
	Close() error
}

// InvalidationHandler обрабатывает уведомления об инвалидации кеша.
type InvalidationHandler func(key string) error

// CacheMetrics содержит метрики производительности кеша.
type CacheMetrics struct {
	TotalRequests int64   `json:"total_requests"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	ColdLoads     int64   `json:"cold_loads"`
	HitRatio      float64 `json:"hit_ratio"`

	AvgLatencyMs float64 `json:"avg_latency_ms"`
	MaxLatencyMs float64 `json:"max_latency_ms"`

	LastUpdate time.Time `json:"last_update"`
}

// CacheConfig содержит конфигурацию для кеша.
type CacheConfig struct {
	// Redis конфигурация
	RedisURL      string `yaml:"redis_url" env:"CACHE_REDIS_URL"`
	RedisPassword string `yaml:"redis_password" env:"CACHE_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"CACHE_REDIS_DB"`

	// Префикс ключей, чтобы несколько миров делили один Redis
	KeyPrefix string `yaml:"key_prefix" env:"CACHE_KEY_PREFIX"`

	TTL time.Duration `yaml:"ttl" env:"CACHE_TTL"`

	// Производительность
	MaxConnections int           `yaml:"max_connections" env:"CACHE_MAX_CONNECTIONS"`
	PoolTimeout    time.Duration `yaml:"pool_timeout" env:"CACHE_POOL_TIMEOUT"`
}

// Ошибки кеша
var (
	ErrCacheMiss  = NewCacheError("cache miss")
	ErrInvalidKey = NewCacheError("invalid key")
)

// CacheError представляет ошибку кеша.
type CacheError struct {
	Message string
}

func (e *CacheError) Error() string {
	return e.Message
}

func NewCacheError(message string) *CacheError {
	return &CacheError{Message: message}
}

const chunkKeyPart = "chunk:"

// ChunkKey ключ чанка вида "<prefix>chunk:<x>|<z>"
func ChunkKey(prefix string, coords vec.Vec2) string {
	return prefix + chunkKeyPart + vec.ChunkName(coords)
}

// ParseChunkKey обратная операция к ChunkKey
func ParseChunkKey(prefix, key string) (vec.Vec2, error) {
	name, ok := strings.CutPrefix(key, prefix+chunkKeyPart)
	if !ok {
		return vec.Vec2{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	coords, err := vec.ParseChunkName(name)
	if err != nil {
		return vec.Vec2{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return coords, nil
}
