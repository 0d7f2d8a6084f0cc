// Package stages содержит стадии генерации чанка: ландшафт, карта высот,
// освещение и меш.
package stages

import (
	"github.com/annel0/voxel-light/internal/chunk"
	"github.com/annel0/voxel-light/internal/pipeline"
)

// Имена стадий по порядку
const (
	TerrainName   = "terrain"
	HeightMapName = "height-map"
	LightName     = "light"
	MeshName      = "mesh"
)

// World доступ стадий к живым чанкам и геометрии мира
type World interface {
	pipeline.ChunkSource
	ExpectedNeighbors(cx, cz, r int) int
}

// neighborsReady сравнивает число загруженных соседей с ожидаемым
func neighborsReady(w World, c *chunk.Grid, r int) bool {
	if r <= 0 {
		return true
	}
	loaded := 0
	for _, n := range w.Neighbors(c.Coords.X, c.Coords.Z, r) {
		if n != nil && n.IsReady() {
			loaded++
		}
	}
	return loaded == w.ExpectedNeighbors(c.Coords.X, c.Coords.Z, r)
}
