package stages

import (
	"context"
	"fmt"

	"github.com/annel0/voxel-light/internal/chunk"
	"github.com/annel0/voxel-light/internal/light"
	"github.com/annel0/voxel-light/internal/pipeline"
	"github.com/annel0/voxel-light/internal/space"
	"github.com/annel0/voxel-light/internal/vec"
)

// Light первичное освещение чанка. Запускается только когда загружены
// все соседи, до которых может дойти свет.
type Light struct {
	engine *light.Engine
	world  World
}

func NewLight(engine *light.Engine, world World) *Light {
	return &Light{engine: engine, world: world}
}

func (s *Light) Name() string { return LightName }

// NeighborRadius кольца чанков, через которые проходит свет
func (s *Light) NeighborRadius() int { return s.engine.Params().Radius() }

func (s *Light) Check(c *chunk.Grid) bool {
	return c.IsReady() && neighborsReady(s.world, c, s.NeighborRadius())
}

func (s *Light) Process(ctx context.Context, task *pipeline.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := task.Chunk
	if !c.IsReady() {
		return fmt.Errorf("чанк %s не загружен", c.Name)
	}

	r := s.NeighborRadius()
	view := space.Around(c, task.Neighbors, r)

	// окно ограничивает заливку вместе с границами мира
	params := s.engine.Params()
	params.MinChunk = vec.Vec2{X: max(params.MinChunk.X, c.Coords.X-r), Z: max(params.MinChunk.Z, c.Coords.Z-r)}
	params.MaxChunk = vec.Vec2{X: min(params.MaxChunk.X, c.Coords.X+r), Z: min(params.MaxChunk.Z, c.Coords.Z+r)}
	eng := s.engine.WithParams(params)

	shape := vec.Vec3{X: c.Options.Size, Y: c.Options.MaxHeight, Z: c.Options.Size}
	queues := eng.Propagate(view, c.Min, shape)
	queues.Merge(eng.SeedFromBorder(view, c.Min, shape))
	eng.FloodAll(view, queues, nil)

	for _, m := range view.Modified() {
		if m != c {
			task.Modified = append(task.Modified, m)
		}
	}
	return nil
}
