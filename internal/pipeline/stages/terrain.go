package stages

import (
	"context"

	"github.com/annel0/voxel-light/internal/chunk"
	"github.com/annel0/voxel-light/internal/pipeline"
	"github.com/annel0/voxel-light/internal/terrain"
)

// Terrain заполняет воксели чанка генератором
type Terrain struct {
	gen *terrain.Generator
}

func NewTerrain(gen *terrain.Generator) *Terrain {
	return &Terrain{gen: gen}
}

func (s *Terrain) Name() string { return TerrainName }

func (s *Terrain) Check(*chunk.Grid) bool { return true }

func (s *Terrain) Process(ctx context.Context, task *pipeline.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.gen.Generate(task.Chunk)
	return nil
}
