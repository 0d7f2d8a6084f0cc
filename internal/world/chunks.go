package world

import (
	"github.com/annel0/voxel-light/internal/chunk"
	"github.com/annel0/voxel-light/internal/light"
	"github.com/annel0/voxel-light/internal/vec"
)

// chunkSet живые чанки и геометрия мира. Своей блокировки нет: доступ
// только под Manager.mu. Через него пайплайн и стадии читают чанки из
// Tick, который уже держит блокировку.
type chunkSet struct {
	chunks map[vec.Vec2]*chunk.Grid
	params light.Params
}

func newChunkSet(params light.Params) *chunkSet {
	return &chunkSet{chunks: make(map[vec.Vec2]*chunk.Grid), params: params}
}

func (s *chunkSet) GetChunk(cx, cz int) *chunk.Grid {
	return s.chunks[vec.Vec2{X: cx, Z: cz}]
}

// Neighbors существующие чанки в квадрате радиуса r без центра
func (s *chunkSet) Neighbors(cx, cz, r int) []*chunk.Grid {
	var out []*chunk.Grid
	for x := cx - r; x <= cx+r; x++ {
		for z := cz - r; z <= cz+r; z++ {
			if x == cx && z == cz {
				continue
			}
			if c := s.chunks[vec.Vec2{X: x, Z: z}]; c != nil {
				out = append(out, c)
			}
		}
	}
	return out
}

// ExpectedNeighbors число соседей в радиусе r, лежащих внутри мира
func (s *chunkSet) ExpectedNeighbors(cx, cz, r int) int {
	n := 0
	for x := cx - r; x <= cx+r; x++ {
		for z := cz - r; z <= cz+r; z++ {
			if (x != cx || z != cz) && s.inWorld(x, z) {
				n++
			}
		}
	}
	return n
}

func (s *chunkSet) inWorld(cx, cz int) bool {
	return cx >= s.params.MinChunk.X && cx <= s.params.MaxChunk.X &&
		cz >= s.params.MinChunk.Z && cz <= s.params.MaxChunk.Z
}

// traversed чанки мира, до которых доходит свет из (cx, cz), включая его самого
func (s *chunkSet) traversed(cx, cz int) []vec.Vec2 {
	r := s.params.Radius()
	var out []vec.Vec2
	for x := cx - r; x <= cx+r; x++ {
		for z := cz - r; z <= cz+r; z++ {
			if s.inWorld(x, z) {
				out = append(out, vec.Vec2{X: x, Z: z})
			}
		}
	}
	return out
}
