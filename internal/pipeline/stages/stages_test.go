package stages

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-light/internal/block"
	"github.com/annel0/voxel-light/internal/chunk"
	"github.com/annel0/voxel-light/internal/light"
	"github.com/annel0/voxel-light/internal/pipeline"
	"github.com/annel0/voxel-light/internal/terrain"
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/voxel"
)

func testOptions() chunk.Options {
	return chunk.Options{Size: 8, MaxHeight: 32, MaxLightLevel: 15}
}

// boundedWorld чанки в квадрате [-r, r]
type boundedWorld struct {
	r      int
	chunks map[vec.Vec2]*chunk.Grid
}

func newBoundedWorld(r int) *boundedWorld {
	return &boundedWorld{r: r, chunks: make(map[vec.Vec2]*chunk.Grid)}
}

func (w *boundedWorld) inside(x, z int) bool {
	return x >= -w.r && x <= w.r && z >= -w.r && z <= w.r
}

func (w *boundedWorld) GetChunk(cx, cz int) *chunk.Grid {
	return w.chunks[vec.Vec2{X: cx, Z: cz}]
}

func (w *boundedWorld) Neighbors(cx, cz, r int) []*chunk.Grid {
	var out []*chunk.Grid
	for x := cx - r; x <= cx+r; x++ {
		for z := cz - r; z <= cz+r; z++ {
			if x == cx && z == cz {
				continue
			}
			if c := w.chunks[vec.Vec2{X: x, Z: z}]; c != nil {
				out = append(out, c)
			}
		}
	}
	return out
}

func (w *boundedWorld) ExpectedNeighbors(cx, cz, r int) int {
	n := 0
	for x := cx - r; x <= cx+r; x++ {
		for z := cz - r; z <= cz+r; z++ {
			if (x != cx || z != cz) && w.inside(x, z) {
				n++
			}
		}
	}
	return n
}

func (w *boundedWorld) add(cx, cz int, ready bool) *chunk.Grid {
	c := chunk.New(cx, cz, testOptions())
	if ready {
		c.Allocate()
	}
	w.chunks[c.Coords] = c
	return c
}

func testEngine(r int) *light.Engine {
	params := light.ParamsFor(testOptions())
	params.MinChunk = vec.Vec2{X: -r, Z: -r}
	params.MaxChunk = vec.Vec2{X: r, Z: r}
	return light.NewEngine(block.Default(), params)
}

func TestLightCheck_WaitsForAllNeighbors(t *testing.T) {
	w := newBoundedWorld(5)
	eng := testEngine(5)
	stage := NewLight(eng, w)
	require.Equal(t, 2, stage.NeighborRadius())

	center := w.add(0, 0, true)
	for x := -2; x <= 2; x++ {
		for z := -2; z <= 2; z++ {
			if (x != 0 || z != 0) && !(x == 2 && z == 2) {
				w.add(x, z, true)
			}
		}
	}

	p := pipeline.New(w, pipeline.Config{MaxChunksPerTick: 4})
	defer p.Stop()
	p.AddStage(stage, 1)
	p.AddChunk(center, 0)

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		p.Update(ctx)
	}
	assert.False(t, stage.Check(center))
	assert.True(t, p.HasChunk(0, 0))

	// не загруженный чанк не считается
	missing := w.add(2, 2, false)
	for i := 0; i < 50; i++ {
		p.Update(ctx)
	}
	assert.True(t, p.HasChunk(0, 0))

	missing.Allocate()
	assert.True(t, stage.Check(center))
	deadline := time.Now().Add(5 * time.Second)
	for p.HasChunk(0, 0) && time.Now().Before(deadline) {
		p.Update(ctx)
		time.Sleep(time.Millisecond)
	}
	assert.False(t, p.HasChunk(0, 0))
	assert.Equal(t, uint32(15), center.GetLight(0, 31, 0, voxel.Sunlight))
}

func TestLightCheck_WorldEdgeExpectsFewerNeighbors(t *testing.T) {
	w := newBoundedWorld(1)
	stage := NewLight(testEngine(1), w)

	// радиус 2 у угла мира 3x3 захватывает только 8 соседей
	corner := w.add(1, 1, true)
	assert.Equal(t, 8, w.ExpectedNeighbors(1, 1, stage.NeighborRadius()))
	for x := -1; x <= 1; x++ {
		for z := -1; z <= 1; z++ {
			if (x != 1 || z != 1) && !(x == -1 && z == -1) {
				w.add(x, z, true)
			}
		}
	}
	assert.False(t, stage.Check(corner))

	w.add(-1, -1, true)
	assert.True(t, stage.Check(corner))
}

func TestLight_ProcessLightsChunkAndNeighbors(t *testing.T) {
	w := newBoundedWorld(2)
	eng := testEngine(2)
	stage := NewLight(eng, w)

	center := w.add(0, 0, true)
	east := w.add(1, 0, true)
	for x := 0; x < 8; x++ {
		for z := 0; z < 8; z++ {
			center.SetVoxel(x, 10, z, uint32(block.StoneBlockID))
		}
	}
	center.SetVoxel(7, 5, 3, uint32(block.GlowstoneBlockID))

	task := &pipeline.Task{Chunk: center.Clone(), Neighbors: []*chunk.Grid{east.Clone()}}
	require.NoError(t, stage.Process(context.Background(), task))

	lit := task.Chunk
	assert.Equal(t, uint32(15), lit.GetLight(3, 11, 3, voxel.Sunlight))
	assert.Equal(t, uint32(15), lit.GetLight(7, 5, 3, voxel.Red))
	assert.Equal(t, uint32(14), lit.GetLight(6, 5, 3, voxel.Red))

	require.Len(t, task.Modified, 1)
	assert.Equal(t, vec.Vec2{X: 1, Z: 0}, task.Modified[0].Coords)
	assert.Equal(t, uint32(14), task.Modified[0].GetLight(8, 5, 3, voxel.Red))
	assert.Equal(t, uint32(0), east.GetLight(8, 5, 3, voxel.Red))
}

func TestHeightMapAndMesh(t *testing.T) {
	w := newBoundedWorld(0)
	reg := block.Default()
	c := w.add(0, 0, true)
	c.SetVoxel(2, 0, 2, uint32(block.StoneBlockID))
	c.SetVoxel(2, 1, 2, uint32(block.StoneBlockID))

	task := &pipeline.Task{Chunk: c}
	require.NoError(t, NewHeightMap(reg).Process(context.Background(), task))
	assert.Equal(t, uint32(1), c.MaxHeightAt(2, 2))
	assert.Equal(t, uint32(0), c.MaxHeightAt(0, 0))

	mesh := NewMesh(reg, w)
	assert.True(t, mesh.Check(c))
	require.NoError(t, mesh.Process(context.Background(), task))
	// две грани смотрят друг на друга и не видны, низ мира пропущен
	assert.Len(t, c.Mesh, 9)
	for _, f := range c.Mesh {
		assert.Equal(t, uint32(block.StoneBlockID), f.Block)
	}
}

func TestFullPipeline(t *testing.T) {
	w := newBoundedWorld(1)
	reg := block.Default()
	eng := testEngine(1)

	cfg := terrain.DefaultConfig()
	cfg.LampDensity = 0.05
	p := pipeline.New(w, pipeline.Config{MaxChunksPerTick: 4})
	defer p.Stop()
	p.AddStage(NewTerrain(terrain.NewGenerator(cfg)), 2).
		AddStage(NewHeightMap(reg), 2).
		AddStage(NewLight(eng, w), 2).
		AddStage(NewMesh(reg, w), 2)

	for x := -1; x <= 1; x++ {
		for z := -1; z <= 1; z++ {
			p.AddChunk(w.add(x, z, false), 0)
		}
	}

	ctx := context.Background()
	deadline := time.Now().Add(10 * time.Second)
	for !p.Idle() && time.Now().Before(deadline) {
		p.Update(ctx)
		time.Sleep(time.Millisecond)
	}
	require.True(t, p.Idle())

	for _, c := range w.chunks {
		require.True(t, c.IsReady(), c.Name)
		assert.NotEmpty(t, c.Mesh, c.Name)
		assert.Equal(t, uint32(15), c.GetLight(c.Min.X, 31, c.Min.Z, voxel.Sunlight), c.Name)
	}
}
