package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-light/internal/logging"
	"github.com/annel0/voxel-light/internal/vec"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsWithoutPath(t *testing.T) {
	t.Setenv("VOXEL_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.World.ChunkSize)
	assert.Equal(t, 1, cfg.LightParams().Radius())
	assert.Equal(t, "VOXEL_EVENTS", cfg.NATS.Stream)
}

func TestLoad_OverridesAndBounds(t *testing.T) {
	path := writeConfig(t, `
world:
  chunk_size: 8
  max_height: 64
  min_chunk: {x: -2, z: -2}
  max_chunk: {x: 2, z: 3}
pipeline:
  max_chunks_per_tick: 3
  tick_interval: 20ms
  concurrency:
    light: 6
light:
  flush_interval: 250ms
terrain:
  seed: 99
logging:
  level: debug
`)
	t.Setenv("VOXEL_CONFIG", path)
	cfg, err := Load("")
	require.NoError(t, err)

	p := cfg.LightParams()
	assert.Equal(t, 8, p.ChunkSize)
	assert.Equal(t, 64, p.MaxHeight)
	assert.Equal(t, uint32(15), p.MaxLightLevel)
	assert.Equal(t, vec.Vec2{X: -2, Z: -2}, p.MinChunk)
	assert.Equal(t, vec.Vec2{X: 2, Z: 3}, p.MaxChunk)
	assert.Equal(t, 2, p.Radius())

	wm := cfg.WorldManager()
	assert.Equal(t, 3, wm.Pipeline.MaxChunksPerTick)
	assert.Equal(t, 20*time.Millisecond, wm.Pipeline.TickInterval)
	assert.Equal(t, 6, wm.Concurrency.Light)
	// не указанные поля остаются по умолчанию
	assert.Equal(t, 2, wm.Concurrency.HeightMap)

	assert.Equal(t, 250*time.Millisecond, cfg.Light.FlushInterval)
	assert.Equal(t, int64(99), cfg.Terrain.Seed)
	assert.Equal(t, 0.02, cfg.Terrain.NoiseScale)
	assert.Equal(t, logging.DEBUG, cfg.LoggingOptions().Level)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, "world:\n  chunk_size: 0\n  max_light_level: 20\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk_size")
	assert.Contains(t, err.Error(), "max_light_level")

	_, err = Load(writeConfig(t, "world:\n  min_chunk: {x: 1, z: 1}\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "world: ["))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGetAPIPort(t *testing.T) {
	t.Setenv("VOXEL_API_PORT", "")
	assert.Equal(t, 8088, (&APIConfig{}).GetAPIPort())
	assert.Equal(t, 9000, (&APIConfig{Port: 9000}).GetAPIPort())

	t.Setenv("VOXEL_API_PORT", "9100")
	assert.Equal(t, 9100, (&APIConfig{}).GetAPIPort())
	t.Setenv("VOXEL_API_PORT", "nope")
	assert.Equal(t, 8088, (&APIConfig{}).GetAPIPort())
}
