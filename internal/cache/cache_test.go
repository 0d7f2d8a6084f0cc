package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-light/internal/chunk"
	"github.com/annel0/voxel-light/internal/vec"
)

var testOpts = chunk.Options{Size: 4, MaxHeight: 8, MaxLightLevel: 15, SubChunks: 1}

func readyChunk(cx, cz int) *chunk.Grid {
	g := chunk.New(cx, cz, testOpts)
	g.Allocate()
	g.SetVoxel(g.Min.X, 0, g.Min.Z, 1)
	return g
}

type mapColdStorage map[vec.Vec2]*chunk.Grid

func (m mapColdStorage) LoadChunk(coords vec.Vec2) (*chunk.Grid, error) {
	g, ok := m[coords]
	if !ok {
		return nil, errors.New("not found")
	}
	return g.Clone(), nil
}

func TestChunkKey(t *testing.T) {
	key := ChunkKey("w1:", vec.Vec2{X: 3, Z: -4})
	assert.Equal(t, "w1:chunk:3|-4", key)

	coords, err := ParseChunkKey("w1:", key)
	require.NoError(t, err)
	assert.Equal(t, vec.Vec2{X: 3, Z: -4}, coords)

	for _, bad := range []string{"w2:chunk:3|-4", "w1:chunk:3", "w1:chunk:a|b", ""} {
		_, err := ParseChunkKey("w1:", bad)
		assert.ErrorIs(t, err, ErrInvalidKey, bad)
	}
}

func TestMemoryCache_SetGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryChunkCache(0, nil)

	g := readyChunk(1, 2)
	require.NoError(t, c.Set(ctx, g))

	// изменения оригинала не видны в кеше
	g.SetVoxel(g.Min.X, 0, g.Min.Z, 7)

	got, err := c.Get(ctx, g.Coords)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), got.GetVoxel(g.Min.X, 0, g.Min.Z))

	got.SetVoxel(g.Min.X, 0, g.Min.Z, 9)
	again, err := c.Get(ctx, g.Coords)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), again.GetVoxel(g.Min.X, 0, g.Min.Z))
}

func TestMemoryCache_SkipsUnloadedChunk(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryChunkCache(0, nil)

	require.NoError(t, c.Set(ctx, chunk.New(0, 0, testOpts)))
	assert.Equal(t, 0, c.Len())

	_, err := c.Get(ctx, vec.Vec2{})
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryChunkCache(time.Minute, nil)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, readyChunk(0, 0)))
	_, err := c.Get(ctx, vec.Vec2{})
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = c.Get(ctx, vec.Vec2{})
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_ReadThroughAndInvalidate(t *testing.T) {
	ctx := context.Background()
	cold := mapColdStorage{{X: 5, Z: 5}: readyChunk(5, 5)}
	c := NewMemoryChunkCache(0, cold)

	got, err := c.Get(ctx, vec.Vec2{X: 5, Z: 5})
	require.NoError(t, err)
	assert.True(t, got.IsReady())
	assert.Equal(t, 1, c.Len())

	_, err = c.Get(ctx, vec.Vec2{X: 5, Z: 5})
	require.NoError(t, err)

	require.NoError(t, c.Invalidate(ctx, vec.Vec2{X: 5, Z: 5}))
	assert.Equal(t, 0, c.Len())

	_, err = c.Get(ctx, vec.Vec2{X: 6, Z: 6})
	assert.ErrorIs(t, err, ErrCacheMiss)

	m := c.GetMetrics()
	assert.Equal(t, int64(3), m.TotalRequests)
	assert.Equal(t, int64(1), m.CacheHits)
	assert.Equal(t, int64(2), m.CacheMisses)
	assert.Equal(t, int64(1), m.ColdLoads)
	assert.InDelta(t, 1.0/3.0, m.HitRatio, 1e-9)
}

func TestRedisChunkCache_UnreachableServer(t *testing.T) {
	cfg := &CacheConfig{RedisURL: "127.0.0.1:1"}
	_, err := NewRedisChunkCache(cfg, nil, nil)
	require.Error(t, err)
	assert.Equal(t, 10*time.Minute, cfg.TTL)
}

func TestNATSInvalidator_UnreachableServer(t *testing.T) {
	_, err := NewNATSInvalidator(&InvalidatorConfig{NATSURL: "nats://127.0.0.1:1"}, "node-a")
	require.Error(t, err)
}

func invalidationMsg(t *testing.T, key, node string) *nats.Msg {
	t.Helper()
	data, err := json.Marshal(InvalidationMessage{Key: key, NodeID: node, Timestamp: time.Now()})
	require.NoError(t, err)
	return &nats.Msg{Data: data}
}

func TestNATSInvalidator_HandleMessage(t *testing.T) {
	n := newInvalidator(nil, &InvalidatorConfig{DedupeWindow: time.Hour}, "node-a")

	var got []vec.Vec2
	n.handler = chunkHandler("w:", func(c vec.Vec2) { got = append(got, c) })

	// собственное сообщение игнорируется
	n.handleInvalidationMessage(invalidationMsg(t, "w:chunk:1|1", "node-a"))
	// чужое доходит один раз
	n.handleInvalidationMessage(invalidationMsg(t, "w:chunk:2|3", "node-b"))
	n.handleInvalidationMessage(invalidationMsg(t, "w:chunk:2|3", "node-c"))
	// битый JSON и чужой префикс считаются ошибками
	n.handleInvalidationMessage(&nats.Msg{Data: []byte("{")})
	n.handleInvalidationMessage(invalidationMsg(t, "other:chunk:0|0", "node-b"))

	assert.Equal(t, []vec.Vec2{{X: 2, Z: 3}}, got)

	m := n.GetMetrics()
	assert.Equal(t, int64(5), m["received_count"])
	assert.Equal(t, int64(2), m["errors_count"])
}

func TestNATSInvalidator_CleanupDedupe(t *testing.T) {
	n := newInvalidator(nil, &InvalidatorConfig{DedupeWindow: time.Millisecond}, "node-a")
	n.recordKey("k")
	time.Sleep(5 * time.Millisecond)
	assert.False(t, n.isDuplicate("k"))
	n.cleanupDedupe()
	assert.Empty(t, n.recentKeys)
}
