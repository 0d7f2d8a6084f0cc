package stages

import (
	"context"

	"github.com/annel0/voxel-light/internal/block"
	"github.com/annel0/voxel-light/internal/chunk"
	"github.com/annel0/voxel-light/internal/pipeline"
)

// HeightMap считает верхний непустой воксель каждой колонки
type HeightMap struct {
	registry *block.Registry
}

func NewHeightMap(r *block.Registry) *HeightMap {
	return &HeightMap{registry: r}
}

func (s *HeightMap) Name() string { return HeightMapName }

func (s *HeightMap) Check(c *chunk.Grid) bool { return c.IsReady() }

func (s *HeightMap) Process(ctx context.Context, task *pipeline.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	task.Chunk.ComputeHeightMap(func(id uint32) bool {
		return s.registry.Get(id).ID == block.AirBlockID
	})
	return nil
}
