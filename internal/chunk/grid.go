package chunk

import (
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/voxel"
)

// Options геометрия чанка и параметры света мира
type Options struct {
	Size          int    `json:"size" yaml:"size"`
	MaxHeight     int    `json:"maxHeight" yaml:"maxHeight"`
	MaxLightLevel uint32 `json:"maxLightLevel" yaml:"maxLightLevel"`
	SubChunks     int    `json:"subChunks" yaml:"subChunks"`
}

// DefaultOptions стандартная геометрия 16x256x16
func DefaultOptions() Options {
	return Options{Size: 16, MaxHeight: 256, MaxLightLevel: 15, SubChunks: 8}
}

// CellCount число ячеек в чанке
func (o Options) CellCount() int {
	return o.Size * o.MaxHeight * o.Size
}

// Grid представляет чанк: массивы вокселей и света размером size x maxHeight x size.
// Пустые массивы означают, что чанк ещё не загружен.
//
// Grid не потокобезопасен: Contains переиспользует внутренний буфер локальных
// координат, поэтому чанк читает и пишет один владелец.
type Grid struct {
	Coords  vec.Vec2
	Name    string
	Min     vec.Vec3 // мировые координаты угла чанка
	Options Options

	Voxels    []uint32
	Lights    []uint32
	HeightMap []uint32 // size x size, индекс lx*size + lz
	Mesh      []Face

	ChangeCounter int

	local [3]int
}

// New создаёт пустой (незагруженный) чанк
func New(cx, cz int, opts Options) *Grid {
	coords := vec.Vec2{X: cx, Z: cz}
	return &Grid{
		Coords:  coords,
		Name:    vec.ChunkName(coords),
		Min:     vec.Vec3{X: cx * opts.Size, Y: 0, Z: cz * opts.Size},
		Options: opts,
	}
}

// Allocate выделяет нулевые массивы, если они ещё пусты
func (g *Grid) Allocate() {
	n := g.Options.CellCount()
	if len(g.Voxels) == 0 {
		g.Voxels = make([]uint32, n)
	}
	if len(g.Lights) == 0 {
		g.Lights = make([]uint32, n)
	}
}

// IsReady готов, когда заполнены оба массива
func (g *Grid) IsReady() bool {
	return len(g.Voxels) > 0 && len(g.Lights) > 0
}

// Contains переводит мировые координаты в локальные и проверяет границы.
// Результат остаётся в буфере Local до следующего вызова.
func (g *Grid) Contains(vx, vy, vz int) bool {
	g.local[0] = vx - g.Min.X
	g.local[1] = vy - g.Min.Y
	g.local[2] = vz - g.Min.Z
	size := g.Options.Size
	return g.local[0] >= 0 && g.local[0] < size &&
		g.local[1] >= 0 && g.local[1] < g.Options.MaxHeight &&
		g.local[2] >= 0 && g.local[2] < size
}

// Local возвращает буфер, заполненный последним вызовом Contains
func (g *Grid) Local() (lx, ly, lz int) {
	return g.local[0], g.local[1], g.local[2]
}

// Index линейный индекс локальной ячейки, x меняется медленнее всего
func (g *Grid) Index(lx, ly, lz int) int {
	size := g.Options.Size
	return lx*(size*g.Options.MaxHeight) + ly*size + lz
}

// localIndex проверяет границы и возвращает индекс ячейки
func (g *Grid) localIndex(vx, vy, vz int, data []uint32) (int, bool) {
	if len(data) == 0 || !g.Contains(vx, vy, vz) {
		return 0, false
	}
	return g.Index(g.local[0], g.local[1], g.local[2]), true
}

// GetRawVoxel возвращает упакованную ячейку или 0 вне чанка
func (g *Grid) GetRawVoxel(vx, vy, vz int) uint32 {
	idx, ok := g.localIndex(vx, vy, vz, g.Voxels)
	if !ok {
		return 0
	}
	return g.Voxels[idx]
}

// SetRawVoxel пишет ячейку; вне чанка ничего не делает и возвращает false
func (g *Grid) SetRawVoxel(vx, vy, vz int, raw uint32) bool {
	idx, ok := g.localIndex(vx, vy, vz, g.Voxels)
	if !ok {
		return false
	}
	g.Voxels[idx] = raw
	g.ChangeCounter++
	return true
}

func (g *Grid) GetVoxel(vx, vy, vz int) uint32 {
	return voxel.ExtractID(g.GetRawVoxel(vx, vy, vz))
}

func (g *Grid) SetVoxel(vx, vy, vz int, id uint32) bool {
	return g.SetRawVoxel(vx, vy, vz, voxel.InsertID(g.GetRawVoxel(vx, vy, vz), id))
}

func (g *Grid) GetVoxelRotation(vx, vy, vz int) voxel.Rotation {
	return voxel.ExtractRotation(g.GetRawVoxel(vx, vy, vz))
}

func (g *Grid) SetVoxelRotation(vx, vy, vz int, r voxel.Rotation) bool {
	return g.SetRawVoxel(vx, vy, vz, voxel.InsertRotation(g.GetRawVoxel(vx, vy, vz), r))
}

func (g *Grid) GetVoxelStage(vx, vy, vz int) uint32 {
	return voxel.ExtractStage(g.GetRawVoxel(vx, vy, vz))
}

func (g *Grid) SetVoxelStage(vx, vy, vz int, stage uint32) bool {
	return g.SetRawVoxel(vx, vy, vz, voxel.InsertStage(g.GetRawVoxel(vx, vy, vz), stage))
}

// GetRawLight возвращает ячейку света или 0 вне чанка
func (g *Grid) GetRawLight(vx, vy, vz int) uint32 {
	idx, ok := g.localIndex(vx, vy, vz, g.Lights)
	if !ok {
		return 0
	}
	return g.Lights[idx]
}

// SetRawLight пишет ячейку света; вне чанка возвращает false
func (g *Grid) SetRawLight(vx, vy, vz int, raw uint32) bool {
	idx, ok := g.localIndex(vx, vy, vz, g.Lights)
	if !ok {
		return false
	}
	g.Lights[idx] = raw
	return true
}

// GetSunlight вне чанка: над миром открытое небо, ниже нуля темнота
func (g *Grid) GetSunlight(vx, vy, vz int) uint32 {
	idx, ok := g.localIndex(vx, vy, vz, g.Lights)
	if !ok {
		if vy >= g.Options.MaxHeight {
			return g.Options.MaxLightLevel
		}
		return 0
	}
	return voxel.ExtractSunlight(g.Lights[idx])
}

func (g *Grid) SetSunlight(vx, vy, vz int, level uint32) bool {
	return g.SetLight(vx, vy, vz, level, voxel.Sunlight)
}

// GetTorchLight читает цветной канал. Для солнца паникует.
func (g *Grid) GetTorchLight(vx, vy, vz int, c voxel.LightColor) uint32 {
	if c == voxel.Sunlight {
		panic("chunk: torch light requested for sunlight channel")
	}
	return voxel.ExtractLight(g.GetRawLight(vx, vy, vz), c)
}

// SetTorchLight пишет цветной канал. Для солнца паникует.
func (g *Grid) SetTorchLight(vx, vy, vz int, level uint32, c voxel.LightColor) bool {
	if c == voxel.Sunlight {
		panic("chunk: torch light written to sunlight channel")
	}
	return g.SetLight(vx, vy, vz, level, c)
}

// GetLight читает любой канал
func (g *Grid) GetLight(vx, vy, vz int, c voxel.LightColor) uint32 {
	if c == voxel.Sunlight {
		return g.GetSunlight(vx, vy, vz)
	}
	return voxel.ExtractLight(g.GetRawLight(vx, vy, vz), c)
}

// SetLight пишет любой канал, не трогая остальные
func (g *Grid) SetLight(vx, vy, vz int, level uint32, c voxel.LightColor) bool {
	idx, ok := g.localIndex(vx, vy, vz, g.Lights)
	if !ok {
		return false
	}
	g.Lights[idx] = voxel.InsertLight(g.Lights[idx], level, c)
	return true
}

// Clone глубокая копия для передачи воркеру
func (g *Grid) Clone() *Grid {
	c := *g
	c.Voxels = cloneCells(g.Voxels)
	c.Lights = cloneCells(g.Lights)
	c.HeightMap = cloneCells(g.HeightMap)
	if g.Mesh != nil {
		c.Mesh = append([]Face(nil), g.Mesh...)
	}
	return &c
}

// Adopt забирает результат обработки: воксели, карту высот и меш заменяются.
// base содержит свет чанка на момент копирования; из результата берутся
// только каналы, которые обработка подняла относительно base.
func (g *Grid) Adopt(processed *Grid, base []uint32) {
	if len(processed.Voxels) > 0 {
		g.Voxels = processed.Voxels
	}
	if len(processed.HeightMap) > 0 {
		g.HeightMap = processed.HeightMap
	}
	if processed.Mesh != nil {
		g.Mesh = processed.Mesh
	}
	g.MergeRaised(base, processed.Lights)
	g.ChangeCounter++
}

// MergeLights объединяет буфер света по максимуму каждого канала
func (g *Grid) MergeLights(lights []uint32) {
	g.MergeRaised(nil, lights)
}

// MergeRaised объединяет по максимуму только каналы ячеек, поднятые в lights
// относительно base. Пустой base считается нулевым светом. Свет, снятый
// в живом чанке после копирования, так не возвращается.
func (g *Grid) MergeRaised(base, lights []uint32) {
	if len(lights) == 0 {
		return
	}
	if len(g.Lights) != len(lights) {
		g.Lights = cloneCells(lights)
		return
	}
	if len(base) != len(lights) {
		base = nil
	}
	for i, l := range lights {
		var b uint32
		if base != nil {
			b = base[i]
		}
		cur := g.Lights[i]
		if l == b || l == cur {
			continue
		}
		for _, c := range voxel.Colors {
			lv := voxel.ExtractLight(l, c)
			if lv > voxel.ExtractLight(b, c) && lv > voxel.ExtractLight(cur, c) {
				cur = voxel.InsertLight(cur, lv, c)
			}
		}
		g.Lights[i] = cur
	}
}

// ReplaceChannel переписывает один канал света из буфера
func (g *Grid) ReplaceChannel(lights []uint32, c voxel.LightColor) bool {
	if len(lights) != len(g.Lights) {
		return false
	}
	for i, l := range lights {
		g.Lights[i] = voxel.InsertLight(g.Lights[i], voxel.ExtractLight(l, c), c)
	}
	return true
}

func cloneCells(src []uint32) []uint32 {
	if src == nil {
		return nil
	}
	dst := make([]uint32, len(src))
	copy(dst, src)
	return dst
}
