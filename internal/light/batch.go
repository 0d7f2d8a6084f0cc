package light

import (
	"errors"
	"fmt"
	"sort"

	"github.com/annel0/voxel-light/internal/chunk"
	"github.com/annel0/voxel-light/internal/space"
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/voxel"
)

// ErrInvalidRequest задание не прошло проверку
var ErrInvalidRequest = errors.New("invalid light batch request")

// Ops операции задания: сначала снятия, затем заливки. Заливка с Level 0
// стартует с текущего уровня вокселя после снятий; такой узел без света
// пропускается.
type Ops struct {
	Removals []vec.Vec3 `json:"removals"`
	Floods   []Node     `json:"floods"`
}

// Request задание пакетного освещения для одного канала. Чанки переданы
// сериализованными копиями: воркер не делит память с вызывающей стороной.
type Request struct {
	JobID                  string                   `json:"jobId"`
	Color                  voxel.LightColor         `json:"color"`
	BoundingBox            Bounds                   `json:"boundingBox"`
	ChunksData             []*chunk.Serialized      `json:"chunksData"`
	GridDimensions         [2]int                   `json:"chunkGridDimensions"`
	GridOffset             [2]int                   `json:"chunkGridOffset"`
	LastRelevantSequenceID uint64                   `json:"lastRelevantSequenceId"`
	RelevantDeltas         map[string][]voxel.Delta `json:"relevantDeltas"`
	Ops                    Ops                      `json:"lightOps"`
	Options                Params                   `json:"options"`
}

// ModifiedChunk буфер света чанка, который задание реально изменило
type ModifiedChunk struct {
	Coords vec.Vec2 `json:"coords"`
	Lights []uint32 `json:"lights"`
}

// AppliedDeltas максимальный применённый SequenceID
type AppliedDeltas struct {
	LastSequenceID uint64 `json:"lastSequenceId"`
}

// Response результат задания
type Response struct {
	JobID          string           `json:"jobId"`
	Color          voxel.LightColor `json:"color"`
	ModifiedChunks []ModifiedChunk  `json:"modifiedChunks"`
	AppliedDeltas  AppliedDeltas    `json:"appliedDeltas"`
}

// Validate проверяет форму задания
func (r *Request) Validate() error {
	w, d := r.GridDimensions[0], r.GridDimensions[1]
	switch {
	case !r.Color.IsValid():
		return fmt.Errorf("%w: unknown color %d", ErrInvalidRequest, uint8(r.Color))
	case w <= 0 || d <= 0:
		return fmt.Errorf("%w: grid %dx%d", ErrInvalidRequest, w, d)
	case len(r.ChunksData) != w*d:
		return fmt.Errorf("%w: %d chunks for %dx%d grid", ErrInvalidRequest, len(r.ChunksData), w, d)
	case r.Options.ChunkSize <= 0 || r.Options.MaxHeight <= 0:
		return fmt.Errorf("%w: chunk size %d height %d", ErrInvalidRequest, r.Options.ChunkSize, r.Options.MaxHeight)
	}
	return nil
}

// RunBatch выполняет задание над приватной копией чанков. При ошибке
// возвращается пустой результат с тем же JobID.
func (e *Engine) RunBatch(req *Request) (*Response, error) {
	resp := &Response{JobID: req.JobID, Color: req.Color}
	if err := req.Validate(); err != nil {
		return resp, err
	}

	w, d := req.GridDimensions[0], req.GridDimensions[1]
	offset := vec.Vec2{X: req.GridOffset[0], Z: req.GridOffset[1]}

	grid := make([]*chunk.Grid, w*d)
	for i, s := range req.ChunksData {
		if s == nil {
			continue
		}
		g, err := chunk.Deserialize(s)
		if err != nil {
			return resp, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		if g.IsReady() {
			grid[i] = g
		}
	}

	lastSequenceID := applyDeltas(grid, w, d, offset, req.RelevantDeltas)

	params := req.Options
	params.MinChunk = offset
	params.MaxChunk = vec.Vec2{X: offset.X + w - 1, Z: offset.Z + d - 1}
	eng := e.WithParams(params)

	view := space.New(grid, w, d, offset, params.ChunkOptions())

	if len(req.Ops.Removals) > 0 {
		fill := eng.RemoveBatch(view, req.Ops.Removals, req.Color)
		eng.Flood(view, fill, req.Color, nil)
	}

	if len(req.Ops.Floods) > 0 {
		seeds := make([]Node, 0, len(req.Ops.Floods))
		for _, n := range req.Ops.Floods {
			vx, vy, vz := n.Voxel.X, n.Voxel.Y, n.Voxel.Z
			if n.Level == 0 {
				// уровень соседа берётся после снятий этого же задания
				if cur := view.GetLight(vx, vy, vz, req.Color); cur > 0 {
					seeds = append(seeds, Node{Voxel: n.Voxel, Level: cur})
				}
				continue
			}
			view.SetLight(vx, vy, vz, n.Level, req.Color)
			seeds = append(seeds, n)
		}
		bounds := req.BoundingBox
		eng.Flood(view, seeds, req.Color, &bounds)
	}

	for _, c := range view.Modified() {
		// буфер принадлежит приватной копии и передаётся без копирования
		resp.ModifiedChunks = append(resp.ModifiedChunks, ModifiedChunk{Coords: c.Coords, Lights: c.Lights})
	}
	resp.AppliedDeltas.LastSequenceID = lastSequenceID
	return resp, nil
}

// applyDeltas применяет изменения вокселей по порядку SequenceID и
// возвращает максимальный SequenceID среди чанков, попавших в сетку.
func applyDeltas(grid []*chunk.Grid, w, d int, offset vec.Vec2, deltas map[string][]voxel.Delta) uint64 {
	var last uint64

	names := make([]string, 0, len(deltas))
	for name := range deltas {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		list := deltas[name]
		coords, err := vec.ParseChunkName(name)
		if err != nil {
			continue
		}
		lx, lz := coords.X-offset.X, coords.Z-offset.Z
		if lx < 0 || lz < 0 || lx >= w || lz >= d {
			continue
		}
		c := grid[lx*d+lz]
		if c == nil {
			continue
		}

		for _, dl := range list {
			if dl.SequenceID > last {
				last = dl.SequenceID
			}
		}

		ordered := make([]voxel.Delta, len(list))
		copy(ordered, list)
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].SequenceID < ordered[j].SequenceID })

		for _, dl := range ordered {
			if dl.IsNoop() {
				continue
			}
			vx, vy, vz := dl.Coords[0], dl.Coords[1], dl.Coords[2]
			if !c.Contains(vx, vy, vz) {
				continue
			}
			raw := c.GetRawVoxel(vx, vy, vz)
			if next := dl.Apply(raw); next != raw {
				c.SetRawVoxel(vx, vy, vz, next)
			}
		}
	}
	return last
}
