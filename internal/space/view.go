// Package space предоставляет окно чтения/записи над прямоугольной сеткой чанков,
// чтобы заливка света пересекала границы чанков без особых случаев.
package space

import (
	"github.com/annel0/voxel-light/internal/chunk"
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/voxel"
)

// View не владеет чанками и живёт один проход алгоритма.
// Сетка хранится построчно: индекс localX*depth + localZ.
type View struct {
	chunks []*chunk.Grid
	width  int
	depth  int
	offset vec.Vec2
	opts   chunk.Options

	// кеш: ключ координат чанка -> чанк (nil если вне окна или не загружен)
	cache    map[int64]*chunk.Grid
	lastKey  int64
	lastHit  *chunk.Grid
	hasLast  bool
	modified map[int64]*chunk.Grid
	order    []*chunk.Grid
}

// New создаёт окно над сеткой width x depth, смещённой на offset в координатах чанков.
// Длина chunks должна быть width*depth; лишние элементы игнорируются.
func New(chunks []*chunk.Grid, width, depth int, offset vec.Vec2, opts chunk.Options) *View {
	return &View{
		chunks:   chunks,
		width:    width,
		depth:    depth,
		offset:   offset,
		opts:     opts,
		cache:    make(map[int64]*chunk.Grid),
		modified: make(map[int64]*chunk.Grid),
	}
}

// Around строит окно радиуса r вокруг центра из произвольного набора чанков.
func Around(center *chunk.Grid, neighbors []*chunk.Grid, r int) *View {
	width := 2*r + 1
	offset := vec.Vec2{X: center.Coords.X - r, Z: center.Coords.Z - r}
	grid := make([]*chunk.Grid, width*width)
	for _, c := range append([]*chunk.Grid{center}, neighbors...) {
		if c == nil {
			continue
		}
		lx, lz := c.Coords.X-offset.X, c.Coords.Z-offset.Z
		if lx < 0 || lz < 0 || lx >= width || lz >= width {
			continue
		}
		grid[lx*width+lz] = c
	}
	return New(grid, width, width, offset, center.Options)
}

// Options геометрия чанков окна
func (v *View) Options() chunk.Options { return v.opts }

// Offset координаты чанка в углу окна
func (v *View) Offset() vec.Vec2 { return v.offset }

// Dimensions размеры окна в чанках
func (v *View) Dimensions() (width, depth int) { return v.width, v.depth }

// ChunkAt возвращает загруженный чанк по координатам чанка или nil
func (v *View) ChunkAt(cx, cz int) *chunk.Grid {
	key := vec.Vec2{X: cx, Z: cz}.Key()
	if v.hasLast && v.lastKey == key {
		return v.lastHit
	}

	c, ok := v.cache[key]
	if !ok {
		lx, lz := cx-v.offset.X, cz-v.offset.Z
		if lx >= 0 && lz >= 0 && lx < v.width && lz < v.depth {
			if idx := lx*v.depth + lz; idx < len(v.chunks) {
				c = v.chunks[idx]
			}
		}
		if c != nil && !c.IsReady() {
			c = nil
		}
		v.cache[key] = c
	}

	v.lastKey, v.lastHit, v.hasLast = key, c, true
	return c
}

func (v *View) chunkOf(vx, vz int) *chunk.Grid {
	size := v.opts.Size
	return v.ChunkAt(vec.FloorDiv(vx, size), vec.FloorDiv(vz, size))
}

// Contains сообщает, попадает ли воксель в загруженный чанк окна
func (v *View) Contains(vx, vy, vz int) bool {
	c := v.chunkOf(vx, vz)
	return c != nil && c.Contains(vx, vy, vz)
}

func (v *View) GetRawVoxel(vx, vy, vz int) uint32 {
	if c := v.chunkOf(vx, vz); c != nil {
		return c.GetRawVoxel(vx, vy, vz)
	}
	return 0
}

func (v *View) GetVoxel(vx, vy, vz int) uint32 {
	return voxel.ExtractID(v.GetRawVoxel(vx, vy, vz))
}

func (v *View) GetVoxelRotation(vx, vy, vz int) voxel.Rotation {
	return voxel.ExtractRotation(v.GetRawVoxel(vx, vy, vz))
}

func (v *View) GetVoxelStage(vx, vy, vz int) uint32 {
	return voxel.ExtractStage(v.GetRawVoxel(vx, vy, vz))
}

// SetRawVoxel пишет воксель; запись вне окна игнорируется
func (v *View) SetRawVoxel(vx, vy, vz int, raw uint32) bool {
	if c := v.chunkOf(vx, vz); c != nil {
		return c.SetRawVoxel(vx, vy, vz, raw)
	}
	return false
}

func (v *View) GetRawLight(vx, vy, vz int) uint32 {
	if c := v.chunkOf(vx, vz); c != nil {
		return c.GetRawLight(vx, vy, vz)
	}
	return 0
}

// GetSunlight отсутствующий чанк темный; над загруженным чанком открытое небо
func (v *View) GetSunlight(vx, vy, vz int) uint32 {
	if c := v.chunkOf(vx, vz); c != nil {
		return c.GetSunlight(vx, vy, vz)
	}
	return 0
}

func (v *View) GetTorchLight(vx, vy, vz int, color voxel.LightColor) uint32 {
	if c := v.chunkOf(vx, vz); c != nil {
		return c.GetTorchLight(vx, vy, vz, color)
	}
	if color == voxel.Sunlight {
		panic("space: torch light requested for sunlight channel")
	}
	return 0
}

// GetLight читает канал любого цвета
func (v *View) GetLight(vx, vy, vz int, color voxel.LightColor) uint32 {
	if color == voxel.Sunlight {
		return v.GetSunlight(vx, vy, vz)
	}
	return v.GetTorchLight(vx, vy, vz, color)
}

func (v *View) SetSunlight(vx, vy, vz int, level uint32) bool {
	return v.SetLight(vx, vy, vz, level, voxel.Sunlight)
}

func (v *View) SetTorchLight(vx, vy, vz int, level uint32, color voxel.LightColor) bool {
	if color == voxel.Sunlight {
		panic("space: torch light written to sunlight channel")
	}
	return v.SetLight(vx, vy, vz, level, color)
}

// SetLight пишет канал и отмечает чанк изменённым
func (v *View) SetLight(vx, vy, vz int, level uint32, color voxel.LightColor) bool {
	c := v.chunkOf(vx, vz)
	if c == nil || !c.SetLight(vx, vy, vz, level, color) {
		return false
	}
	key := c.Coords.Key()
	if _, seen := v.modified[key]; !seen {
		v.modified[key] = c
		v.order = append(v.order, c)
	}
	return true
}

// MaxHeightAt верх колонки по карте высот чанка
func (v *View) MaxHeightAt(vx, vz int) uint32 {
	if c := v.chunkOf(vx, vz); c != nil {
		return c.MaxHeightAt(vx, vz)
	}
	return uint32(v.opts.MaxHeight - 1)
}

// Modified чанки, в которые писал свет, в порядке первой записи
func (v *View) Modified() []*chunk.Grid {
	out := make([]*chunk.Grid, len(v.order))
	copy(out, v.order)
	return out
}

// IsModified проверяет, менялся ли свет чанка
func (v *View) IsModified(cx, cz int) bool {
	_, ok := v.modified[vec.Vec2{X: cx, Z: cz}.Key()]
	return ok
}
