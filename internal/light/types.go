package light

import (
	"math"

	"github.com/annel0/voxel-light/internal/block"
	"github.com/annel0/voxel-light/internal/chunk"
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/voxel"
)

// Node элемент очереди BFS
type Node struct {
	Voxel vec.Vec3 `json:"voxel"`
	Level uint32   `json:"level"`
}

// Bounds ограничивает заливку по XZ: [min, min+shape)
type Bounds struct {
	Min   vec.Vec3 `json:"min"`
	Shape vec.Vec3 `json:"shape"`
}

// ContainsXZ проверяет попадание колонки в границы
func (b Bounds) ContainsXZ(vx, vz int) bool {
	return vx >= b.Min.X && vz >= b.Min.Z &&
		int64(vx) < int64(b.Min.X)+int64(b.Shape.X) &&
		int64(vz) < int64(b.Min.Z)+int64(b.Shape.Z)
}

// Params параметры мира для алгоритмов освещения
type Params struct {
	ChunkSize     int      `json:"chunkSize" yaml:"chunkSize"`
	MaxHeight     int      `json:"maxHeight" yaml:"maxHeight"`
	MaxLightLevel uint32   `json:"maxLightLevel" yaml:"maxLightLevel"`
	MinChunk      vec.Vec2 `json:"minChunk" yaml:"minChunk"`
	MaxChunk      vec.Vec2 `json:"maxChunk" yaml:"maxChunk"`
}

// DefaultParams 16x256, максимум света 15, мир без границ
func DefaultParams() Params {
	return Params{
		ChunkSize:     16,
		MaxHeight:     256,
		MaxLightLevel: 15,
		MinChunk:      vec.Vec2{X: math.MinInt32 + 1, Z: math.MinInt32 + 1},
		MaxChunk:      vec.Vec2{X: math.MaxInt32 - 1, Z: math.MaxInt32 - 1},
	}
}

// ParamsFor параметры из геометрии чанка, мир без границ
func ParamsFor(opts chunk.Options) Params {
	p := DefaultParams()
	p.ChunkSize = opts.Size
	p.MaxHeight = opts.MaxHeight
	p.MaxLightLevel = opts.MaxLightLevel
	return p
}

// ChunkOptions обратное преобразование для десериализации
func (p Params) ChunkOptions() chunk.Options {
	return chunk.Options{Size: p.ChunkSize, MaxHeight: p.MaxHeight, MaxLightLevel: p.MaxLightLevel}
}

// Radius число колец чанков, через которые может пройти свет
func (p Params) Radius() int {
	if p.ChunkSize <= 0 {
		return 0
	}
	return (int(p.MaxLightLevel) + p.ChunkSize - 1) / p.ChunkSize
}

// Access доступ к вокселям и свету, по которому работает движок.
// Реализуется space.View.
type Access interface {
	block.VoxelReader
	GetLight(vx, vy, vz int, c voxel.LightColor) uint32
	SetLight(vx, vy, vz int, level uint32, c voxel.LightColor) bool
}

// Queues очереди заливки по цветам, индекс: voxel.LightColor
type Queues [4][]Node
