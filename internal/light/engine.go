// Package light реализует заливку и снятие света по четырём каналам
// (солнце и три цветных факельных) поверх окна чанков.
package light

import (
	"github.com/annel0/voxel-light/internal/block"
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/voxel"
)

// neighbors порядок обхода соседей
var neighbors = [6][3]int{
	{1, 0, 0},
	{-1, 0, 0},
	{0, 0, 1},
	{0, 0, -1},
	{0, 1, 0},
	{0, -1, 0},
}

// грань источника и цели для каждого направления обхода
var (
	sourceFaceByDir = [6]int{voxel.FacePX, voxel.FaceNX, voxel.FacePZ, voxel.FaceNZ, voxel.FacePY, voxel.FaceNY}
	targetFaceByDir = [6]int{voxel.FaceNX, voxel.FacePX, voxel.FaceNZ, voxel.FacePZ, voxel.FaceNY, voxel.FacePY}
	allTransparent  = [6]bool{true, true, true, true, true, true}
)

// CanEnterInto пропускает ли целевой блок свет, входящий в направлении dir
func CanEnterInto(target [6]bool, dir int) bool {
	return target[targetFaceByDir[dir]]
}

// CanEnter проходит ли свет из грани источника в грань цели
func CanEnter(source, target [6]bool, dir int) bool {
	return source[sourceFaceByDir[dir]] && target[targetFaceByDir[dir]]
}

// Engine алгоритмы освещения над неизменяемым снимком реестра блоков
type Engine struct {
	registry *block.Registry
	params   Params
}

// NewEngine создаёт движок. Реестр не копируется и не должен меняться.
func NewEngine(registry *block.Registry, params Params) *Engine {
	return &Engine{registry: registry, params: params}
}

// Params параметры мира движка
func (e *Engine) Params() Params { return e.params }

// Registry снимок реестра
func (e *Engine) Registry() *block.Registry { return e.registry }

// WithParams копия движка с другими параметрами и тем же реестром
func (e *Engine) WithParams(p Params) *Engine {
	return &Engine{registry: e.registry, params: p}
}

func checkColor(c voxel.LightColor) {
	if !c.IsValid() {
		panic("light: unknown light color " + c.String())
	}
}

// Flood распространяет свет из узлов очереди в ширину. Уровень источников
// должен быть уже записан. bounds дополнительно ограничивает колонки по XZ.
func (e *Engine) Flood(space Access, queue []Node, color voxel.LightColor, bounds *Bounds) {
	checkColor(color)
	if len(queue) == 0 {
		return
	}

	isSunlight := color == voxel.Sunlight
	maxLevel := e.params.MaxLightLevel
	cache := newBlockCache(e.registry, space, color)

	// очередь читается по индексу, новые узлы дописываются в хвост
	nodes := make([]Node, len(queue), len(queue)*2)
	copy(nodes, queue)

	for head := 0; head < len(nodes); head++ {
		node := nodes[head]
		level := node.Level
		if level == 0 {
			continue
		}

		vx, vy, vz := node.Voxel.X, node.Voxel.Y, node.Voxel.Z
		src := cache.at(vx, vy, vz)
		sourceTransparency := src.transparency
		if !isSunlight && cache.torchLevel(src, vx, vy, vz) > 0 {
			sourceTransparency = allTransparent
		}

		for dir, o := range neighbors {
			nvx, nvy, nvz := vx+o[0], vy+o[1], vz+o[2]

			if nvy < 0 || nvy >= e.params.MaxHeight {
				continue
			}

			ncx, ncz := vec.FloorDiv(nvx, e.params.ChunkSize), vec.FloorDiv(nvz, e.params.ChunkSize)
			if ncx < e.params.MinChunk.X || ncz < e.params.MinChunk.Z ||
				ncx > e.params.MaxChunk.X || ncz > e.params.MaxChunk.Z {
				continue
			}

			if bounds != nil && !bounds.ContainsXZ(nvx, nvz) {
				continue
			}

			n := cache.at(nvx, nvy, nvz)

			// солнце падает вниз без ослабления, пока блок не гасит свет
			var reduce uint32 = 1
			if isSunlight && !n.block.LightReduce && o[1] == -1 && level == maxLevel {
				reduce = 0
			}
			if level <= reduce {
				continue
			}
			next := level - reduce

			if !CanEnter(sourceTransparency, n.transparency, dir) {
				continue
			}

			if space.GetLight(nvx, nvy, nvz, color) >= next {
				continue
			}

			// чанк вне окна или не загружен
			if !space.SetLight(nvx, nvy, nvz, next, color) {
				continue
			}
			nodes = append(nodes, Node{Voxel: vec.Vec3{X: nvx, Y: nvy, Z: nvz}, Level: next})
		}
	}
}

// Remove обнуляет канал в вокселе и снимает свет, который от него зависел.
// Возвращает граничные узлы, которые нужно залить заново через Flood.
func (e *Engine) Remove(space Access, v vec.Vec3, color voxel.LightColor) []Node {
	checkColor(color)
	level := space.GetLight(v.X, v.Y, v.Z, color)
	space.SetLight(v.X, v.Y, v.Z, 0, color)
	return e.removeFrom(space, []Node{{Voxel: v, Level: level}}, color)
}

// RemoveBatch то же для множества вокселей: все стартовые уровни снимаются
// сразу, затем идёт один общий обход с общим списком дозаливки.
func (e *Engine) RemoveBatch(space Access, voxels []vec.Vec3, color voxel.LightColor) []Node {
	checkColor(color)
	if len(voxels) == 0 {
		return nil
	}

	remove := make([]Node, 0, len(voxels))
	for _, v := range voxels {
		level := space.GetLight(v.X, v.Y, v.Z, color)
		if level == 0 {
			continue
		}
		remove = append(remove, Node{Voxel: v, Level: level})
		space.SetLight(v.X, v.Y, v.Z, 0, color)
	}
	return e.removeFrom(space, remove, color)
}

// RemoveAndRefill снимает свет и сразу восстанавливает его от граничных узлов
func (e *Engine) RemoveAndRefill(space Access, voxels []vec.Vec3, color voxel.LightColor) {
	fill := e.RemoveBatch(space, voxels, color)
	e.Flood(space, fill, color, nil)
}

func (e *Engine) removeFrom(space Access, remove []Node, color voxel.LightColor) []Node {
	isSunlight := color == voxel.Sunlight
	maxLevel := e.params.MaxLightLevel
	cache := newBlockCache(e.registry, space, color)

	var fill []Node
	for head := 0; head < len(remove); head++ {
		node := remove[head]
		level := node.Level
		svx, svy, svz := node.Voxel.X, node.Voxel.Y, node.Voxel.Z

		for dir, o := range neighbors {
			nvx, nvy, nvz := svx+o[0], svy+o[1], svz+o[2]

			if nvy < 0 || nvy >= e.params.MaxHeight {
				continue
			}

			n := cache.at(nvx, nvy, nvz)
			if (isSunlight || cache.torchLevel(n, nvx, nvy, nvz) == 0) && !CanEnterInto(n.transparency, dir) {
				continue
			}

			nLevel := space.GetLight(nvx, nvy, nvz, color)
			if nLevel == 0 {
				continue
			}

			nv := vec.Vec3{X: nvx, Y: nvy, Z: nvz}
			down := o[1] == -1

			if nLevel < level || (isSunlight && down && level == maxLevel && nLevel == maxLevel) {
				remove = append(remove, Node{Voxel: nv, Level: nLevel})
				space.SetLight(nvx, nvy, nvz, 0, color)
				continue
			}

			// сосед светится от другого источника: граница для дозаливки
			var boundary bool
			if isSunlight && down {
				boundary = nLevel > level
			} else {
				boundary = nLevel >= level
			}
			if boundary {
				fill = append(fill, Node{Voxel: nv, Level: nLevel})
			}
		}
	}
	return fill
}

// cachedBlock блок вокселя и его повернутая прозрачность
type cachedBlock struct {
	block        *block.Block
	transparency [6]bool
	torch        uint32
	torchKnown   bool
}

// blockCache живёт один вызов алгоритма: воксели за это время не меняются
type blockCache struct {
	registry *block.Registry
	space    Access
	color    voxel.LightColor
	entries  map[int64]*cachedBlock
}

func newBlockCache(r *block.Registry, space Access, color voxel.LightColor) *blockCache {
	return &blockCache{registry: r, space: space, color: color, entries: make(map[int64]*cachedBlock)}
}

func (c *blockCache) at(vx, vy, vz int) *cachedBlock {
	key := vec.Vec3{X: vx, Y: vy, Z: vz}.Key()
	if e, ok := c.entries[key]; ok {
		return e
	}
	b := c.registry.Get(c.space.GetVoxel(vx, vy, vz))
	e := &cachedBlock{block: b, transparency: b.RotatedTransparency(c.space.GetVoxelRotation(vx, vy, vz))}
	c.entries[key] = e
	return e
}

func (c *blockCache) torchLevel(e *cachedBlock, vx, vy, vz int) uint32 {
	if c.color == voxel.Sunlight {
		return 0
	}
	if !e.torchKnown {
		e.torch = e.block.TorchLightLevelAt([3]int{vx, vy, vz}, c.space, c.color)
		e.torchKnown = true
	}
	return e.torch
}
