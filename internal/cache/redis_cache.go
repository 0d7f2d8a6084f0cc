package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/voxel-light/internal/chunk"
	"github.com/annel0/voxel-light/internal/logging"
	"github.com/annel0/voxel-light/internal/storage"
	"github.com/annel0/voxel-light/internal/vec"
)

// RedisChunkCache реализует ChunkCache поверх Redis.
// Значения хранятся сжатыми тем же кодеком, что и на диске.
//
// Особенности:
// - Read-Through из ColdStorage с прогревом кеша
// - Пакетное чтение соседей одним pipeline
// - Инвалидация между узлами через CacheInvalidator
type RedisChunkCache struct {
	client      *redis.Client
	config      *CacheConfig
	codec       *storage.Codec
	coldStorage ColdStorage
	invalidator CacheInvalidator

	stats stats
}

// NewRedisChunkCache создаёт кеш и проверяет соединение с Redis.
//
// Параметры:
//
//	config - конфигурация Redis
//	coldStorage - постоянное хранилище (может быть nil)
//	invalidator - Pub/Sub инвалидация (может быть nil)
func NewRedisChunkCache(config *CacheConfig, coldStorage ColdStorage, invalidator CacheInvalidator) (*RedisChunkCache, error) {
	applyDefaults(config)

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.RedisURL,
		Password:     config.RedisPassword,
		DB:           config.RedisDB,
		PoolSize:     config.MaxConnections,
		PoolTimeout:  config.PoolTimeout,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	codec, err := storage.NewCodec()
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}

	logging.Info("Redis chunk cache initialized: %s (ttl %v)", config.RedisURL, config.TTL)
	return &RedisChunkCache{
		client:      rdb,
		config:      config,
		codec:       codec,
		coldStorage: coldStorage,
		invalidator: invalidator,
	}, nil
}

func applyDefaults(config *CacheConfig) {
	if config.TTL == 0 {
		config.TTL = 10 * time.Minute
	}
	if config.MaxConnections == 0 {
		config.MaxConnections = 10
	}
	if config.PoolTimeout == 0 {
		config.PoolTimeout = 30 * time.Second
	}
}

// Get получает чанк из Redis.
// При промахе пытается загрузить из ColdStorage (Read-Through).
func (r *RedisChunkCache) Get(ctx context.Context, coords vec.Vec2) (*chunk.Grid, error) {
	start := time.Now()
	defer r.stats.recordLatency(start)

	key := ChunkKey(r.config.KeyPrefix, coords)
	val, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		grid, derr := r.decode(val)
		if derr == nil {
			r.stats.hit()
			return grid, nil
		}
		// битое значение считаем промахом
		logging.Warn("Dropping corrupt cache entry %s: %v", key, derr)
		_ = r.client.Del(ctx, key).Err()
	case !errors.Is(err, redis.Nil):
		r.stats.miss()
		logging.Error("Redis Get error for key %s: %v", key, err)
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	r.stats.miss()
	return r.readThrough(coords)
}

func (r *RedisChunkCache) readThrough(coords vec.Vec2) (*chunk.Grid, error) {
	if r.coldStorage == nil {
		return nil, ErrCacheMiss
	}
	grid, err := r.coldStorage.LoadChunk(coords)
	if err != nil {
		logging.Debug("Cold storage miss for chunk %s: %v", vec.ChunkName(coords), err)
		return nil, ErrCacheMiss
	}
	r.stats.coldLoad()

	// Прогреваем кеш для следующих запросов
	warm := grid.Clone()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.Set(ctx, warm); err != nil {
			logging.Debug("Cache warm-up failed for %s: %v", warm.Name, err)
		}
	}()
	return grid, nil
}

// Set сохраняет готовый чанк в Redis.
func (r *RedisChunkCache) Set(ctx context.Context, c *chunk.Grid) error {
	if !c.IsReady() {
		return nil
	}
	start := time.Now()
	defer r.stats.recordLatency(start)

	payload, err := r.codec.Encode(c.Serialize())
	if err != nil {
		return err
	}
	key := ChunkKey(r.config.KeyPrefix, c.Coords)
	if err := r.client.Set(ctx, key, payload, r.config.TTL).Err(); err != nil {
		logging.Error("Redis Set error for key %s: %v", key, err)
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// BatchGet получает несколько чанков за один запрос.
// Отсутствующие в Redis чанки в результат не попадают.
func (r *RedisChunkCache) BatchGet(ctx context.Context, coords []vec.Vec2) (map[vec.Vec2]*chunk.Grid, error) {
	start := time.Now()
	defer r.stats.recordLatency(start)

	result := make(map[vec.Vec2]*chunk.Grid, len(coords))
	if len(coords) == 0 {
		return result, nil
	}

	pipe := r.client.Pipeline()
	cmds := make(map[vec.Vec2]*redis.StringCmd, len(coords))
	for _, c := range coords {
		cmds[c] = pipe.Get(ctx, ChunkKey(r.config.KeyPrefix, c))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		logging.Error("Redis BatchGet pipeline error: %v", err)
		return nil, fmt.Errorf("redis batch get error: %w", err)
	}

	for c, cmd := range cmds {
		val, err := cmd.Bytes()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				logging.Error("Redis BatchGet error for chunk %s: %v", vec.ChunkName(c), err)
			}
			r.stats.miss()
			continue
		}
		grid, err := r.decode(val)
		if err != nil {
			r.stats.miss()
			continue
		}
		r.stats.hit()
		result[c] = grid
	}
	return result, nil
}

// Invalidate удаляет чанк из Redis и уведомляет другие узлы.
func (r *RedisChunkCache) Invalidate(ctx context.Context, coords vec.Vec2) error {
	key := ChunkKey(r.config.KeyPrefix, coords)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		logging.Error("Redis Delete error for key %s: %v", key, err)
		return fmt.Errorf("redis delete error: %w", err)
	}
	if r.invalidator != nil {
		return r.invalidator.PublishInvalidation(ctx, key)
	}
	return nil
}

// OnInvalidate подписывает обработчик на инвалидации с других узлов
func (r *RedisChunkCache) OnInvalidate(ctx context.Context, handler func(coords vec.Vec2)) error {
	if r.invalidator == nil {
		return nil
	}
	return r.invalidator.SubscribeInvalidations(ctx, chunkHandler(r.config.KeyPrefix, handler))
}

// chunkHandler переводит ключи инвалидации в координаты чанков
func chunkHandler(prefix string, handler func(coords vec.Vec2)) InvalidationHandler {
	return func(key string) error {
		coords, err := ParseChunkKey(prefix, key)
		if err != nil {
			return err
		}
		handler(coords)
		return nil
	}
}

// Close закрывает соединение с Redis.
func (r *RedisChunkCache) Close() error {
	r.codec.Close()
	if r.invalidator != nil {
		_ = r.invalidator.Close()
	}
	if err := r.client.Close(); err != nil {
		logging.Error("Error closing Redis connection: %v", err)
		return err
	}
	logging.Info("Redis chunk cache closed")
	return nil
}

// GetMetrics возвращает текущие метрики кеша.
func (r *RedisChunkCache) GetMetrics() *CacheMetrics {
	return r.stats.snapshot()
}

func (r *RedisChunkCache) decode(val []byte) (*chunk.Grid, error) {
	s, err := r.codec.Decode(val)
	if err != nil {
		return nil, err
	}
	return chunk.Deserialize(s)
}
