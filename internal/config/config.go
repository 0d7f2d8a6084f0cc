package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/annel0/voxel-light/internal/cache"
	"github.com/annel0/voxel-light/internal/chunk"
	"github.com/annel0/voxel-light/internal/light"
	"github.com/annel0/voxel-light/internal/logging"
	"github.com/annel0/voxel-light/internal/observability"
	"github.com/annel0/voxel-light/internal/pipeline"
	"github.com/annel0/voxel-light/internal/terrain"
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/world"
)

// Config корневая структура конфигурации сервера
type Config struct {
	World     WorldConfig          `yaml:"world"`
	Pipeline  PipelineConfig       `yaml:"pipeline"`
	Light     LightConfig          `yaml:"light"`
	Terrain   terrain.Config       `yaml:"terrain"`
	Storage   StorageConfig        `yaml:"storage"`
	Redis     RedisConfig          `yaml:"redis"`
	NATS      NATSConfig           `yaml:"nats"`
	API       APIConfig            `yaml:"api"`
	Logging   LoggingConfig        `yaml:"logging"`
	Telemetry observability.Config `yaml:"telemetry"`
	Blocks    BlocksConfig         `yaml:"blocks"`
}

// WorldConfig геометрия мира. Пустые границы означают мир без границ.
type WorldConfig struct {
	NodeID        string    `yaml:"node_id"`
	ChunkSize     int       `yaml:"chunk_size"`
	MaxHeight     int       `yaml:"max_height"`
	MaxLightLevel uint32    `yaml:"max_light_level"`
	SubChunks     int       `yaml:"sub_chunks"`
	MinChunk      *vec.Vec2 `yaml:"min_chunk"`
	MaxChunk      *vec.Vec2 `yaml:"max_chunk"`
	// Радиус, запрашиваемый вокруг начала координат при старте
	SpawnRadius int `yaml:"spawn_radius"`
}

type PipelineConfig struct {
	MaxChunksPerTick int                    `yaml:"max_chunks_per_tick"`
	TickInterval     time.Duration          `yaml:"tick_interval"`
	Concurrency      world.StageConcurrency `yaml:"concurrency"`
}

type LightConfig struct {
	Concurrency   int           `yaml:"concurrency"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

type StorageConfig struct {
	Path      string        `yaml:"path"`
	InMemory  bool          `yaml:"in_memory"`
	SaveEvery time.Duration `yaml:"save_every"`
}

// RedisConfig горячий кеш чанков; без адреса используется кеш в памяти
type RedisConfig struct {
	Enabled   bool              `yaml:"enabled"`
	Cache     cache.CacheConfig `yaml:"cache"`
	MemoryTTL time.Duration     `yaml:"memory_ttl"`
}

type NATSConfig struct {
	URL             string                  `yaml:"url"`
	Events          bool                    `yaml:"events"`
	Stream          string                  `yaml:"stream"`
	RetentionHours  int                     `yaml:"retention_hours"`
	Invalidation    bool                    `yaml:"invalidation"`
	Invalidator     cache.InvalidatorConfig `yaml:"invalidator"`
	MemoryBufferCap int                     `yaml:"memory_buffer"`
}

type APIConfig struct {
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
}

type BlocksConfig struct {
	Path string `yaml:"path"` // пусто: встроенный набор
}

// Default полная конфигурация по умолчанию
func Default() *Config {
	chunkOpts := chunk.DefaultOptions()
	return &Config{
		World: WorldConfig{
			NodeID:        "voxel-1",
			ChunkSize:     chunkOpts.Size,
			MaxHeight:     chunkOpts.MaxHeight,
			MaxLightLevel: chunkOpts.MaxLightLevel,
			SubChunks:     chunkOpts.SubChunks,
			SpawnRadius:   4,
		},
		Pipeline: PipelineConfig{
			MaxChunksPerTick: pipeline.DefaultConfig().MaxChunksPerTick,
			TickInterval:     pipeline.DefaultConfig().TickInterval,
			Concurrency:      world.DefaultConfig().Concurrency,
		},
		Light:   LightConfig{Concurrency: 4, FlushInterval: 100 * time.Millisecond},
		Terrain: terrain.DefaultConfig(),
		Storage: StorageConfig{Path: "data/chunks", SaveEvery: time.Minute},
		Redis: RedisConfig{
			Cache:     cache.CacheConfig{RedisURL: "localhost:6379", KeyPrefix: "voxel:", TTL: 10 * time.Minute},
			MemoryTTL: 5 * time.Minute,
		},
		NATS: NATSConfig{
			URL:             "nats://127.0.0.1:4222",
			Stream:          "VOXEL_EVENTS",
			RetentionHours:  24,
			MemoryBufferCap: 1024,
		},
		Logging:   LoggingConfig{Level: "info", Format: "console"},
		Telemetry: observability.DefaultConfig(),
	}
}

// Load читает YAML поверх Default. Если path == "", берётся VOXEL_CONFIG;
// без него возвращается Default.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("VOXEL_CONFIG")
	}
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения конфигурации: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора конфигурации %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate проверяет согласованность геометрии
func (c *Config) Validate() error {
	w := c.World
	var errs []error
	if w.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("world.chunk_size must be positive, got %d", w.ChunkSize))
	}
	if w.MaxHeight <= 0 {
		errs = append(errs, fmt.Errorf("world.max_height must be positive, got %d", w.MaxHeight))
	}
	if w.MaxLightLevel == 0 || w.MaxLightLevel > 15 {
		errs = append(errs, fmt.Errorf("world.max_light_level must be in [1, 15], got %d", w.MaxLightLevel))
	}
	if (w.MinChunk == nil) != (w.MaxChunk == nil) {
		errs = append(errs, errors.New("world.min_chunk and world.max_chunk must be set together"))
	} else if w.MinChunk != nil && (w.MinChunk.X > w.MaxChunk.X || w.MinChunk.Z > w.MaxChunk.Z) {
		errs = append(errs, errors.New("world.min_chunk exceeds world.max_chunk"))
	}
	if c.Pipeline.MaxChunksPerTick <= 0 {
		errs = append(errs, errors.New("pipeline.max_chunks_per_tick must be positive"))
	}
	return errors.Join(errs...)
}

// ChunkOptions геометрия чанка
func (c *Config) ChunkOptions() chunk.Options {
	return chunk.Options{
		Size:          c.World.ChunkSize,
		MaxHeight:     c.World.MaxHeight,
		MaxLightLevel: c.World.MaxLightLevel,
		SubChunks:     c.World.SubChunks,
	}
}

// LightParams параметры движка освещения с границами мира
func (c *Config) LightParams() light.Params {
	p := light.ParamsFor(c.ChunkOptions())
	if c.World.MinChunk != nil {
		p.MinChunk, p.MaxChunk = *c.World.MinChunk, *c.World.MaxChunk
	}
	return p
}

// WorldManager настройки менеджера мира
func (c *Config) WorldManager() world.Config {
	return world.Config{
		NodeID: c.World.NodeID,
		Pipeline: pipeline.Config{
			MaxChunksPerTick: c.Pipeline.MaxChunksPerTick,
			TickInterval:     c.Pipeline.TickInterval,
		},
		Concurrency: c.Pipeline.Concurrency,
	}
}

// LoggingOptions настройки логгера
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:  logging.ParseLevel(c.Logging.Level),
		Format: c.Logging.Format,
		Dir:    c.Logging.Dir,
	}
}

// GetAPIPort порт REST API: config -> VOXEL_API_PORT -> 8088
func (a *APIConfig) GetAPIPort() int {
	return getPortWithEnvFallback(a.Port, "VOXEL_API_PORT", 8088)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 && port <= math.MaxUint16 {
			return port
		}
	}
	return defaultPort
}
