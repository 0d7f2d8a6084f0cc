package world

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/annel0/voxel-light/internal/chunk"
	"github.com/annel0/voxel-light/internal/eventbus"
	"github.com/annel0/voxel-light/internal/light"
	"github.com/annel0/voxel-light/internal/space"
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/voxel"
)

// Edit новое состояние вокселя. nil поля не меняются.
type Edit struct {
	ID       uint32          `json:"id"`
	Rotation *voxel.Rotation `json:"rotation,omitempty"`
	Stage    *uint32         `json:"stage,omitempty"`
}

var faceOffsets = [6][3]int{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {-1, 0, 0}, {0, -1, 0}, {0, 0, -1}}

// UpdateVoxel применяет правку к живому чанку и ставит её в очередь
// пересчёта света. Изменение без эффекта возвращается без SequenceID.
func (m *Manager) UpdateVoxel(ctx context.Context, vx, vy, vz int, e Edit) (voxel.Delta, error) {
	params := m.Params()
	coords := vec.ToChunkCoords(vx, vz, params.ChunkSize)
	if vy < 0 || vy >= params.MaxHeight {
		return voxel.Delta{}, fmt.Errorf("%w: y=%d", ErrOutOfBounds, vy)
	}
	if !m.chunks.inWorld(coords.X, coords.Z) {
		return voxel.Delta{}, fmt.Errorf("%w: %s", ErrOutsideWorld, vec.ChunkName(coords))
	}

	m.mu.Lock()
	c := m.chunks.GetChunk(coords.X, coords.Z)
	switch {
	case c == nil || !c.IsReady():
		m.mu.Unlock()
		return voxel.Delta{}, fmt.Errorf("%w: %s", ErrChunkNotLoaded, vec.ChunkName(coords))
	case m.pipe.HasChunk(coords.X, coords.Z):
		m.mu.Unlock()
		return voxel.Delta{}, fmt.Errorf("%w: %s", ErrChunkBusy, vec.ChunkName(coords))
	}

	raw := c.GetRawVoxel(vx, vy, vz)
	d := voxel.Delta{
		Coords:    [3]int{vx, vy, vz},
		OldVoxel:  voxel.ExtractID(raw),
		NewVoxel:  e.ID,
		Timestamp: time.Now().UnixMilli(),
	}
	if e.Rotation != nil {
		old := voxel.ExtractRotation(raw)
		if old != *e.Rotation {
			d.OldRotation, d.NewRotation = &old, e.Rotation
		}
	}
	if e.Stage != nil {
		old := voxel.ExtractStage(raw)
		if old != *e.Stage {
			d.OldStage, d.NewStage = &old, e.Stage
		}
	}
	if d.IsNoop() {
		m.mu.Unlock()
		return d, nil
	}

	m.seq++
	d.SequenceID = m.seq
	c.SetRawVoxel(vx, vy, vz, d.Apply(raw))
	c.ChangeCounter++
	name := c.Name
	m.pending = append(m.pending, d)
	m.pendingDeltas[name] = append(m.pendingDeltas[name], d)
	m.mu.Unlock()

	m.metrics.edit()
	if m.store != nil {
		if err := m.store.AppendDeltas(coords, []voxel.Delta{d}); err != nil {
			m.logger.Error("append delta %s seq %d: %v", name, d.SequenceID, err)
		}
	}
	if ev, err := eventbus.NewEnvelope(m.cfg.NodeID, eventbus.TypeVoxelChanged, 3, eventbus.VoxelChanged{
		Chunk: name, X: vx, Y: vy, Z: vz, Voxel: d.NewVoxel, SequenceID: d.SequenceID,
	}); err == nil {
		m.publish(ctx, ev)
	}
	return d, nil
}

// VoxelAt упакованный воксель
func (m *Manager) VoxelAt(vx, vy, vz int) (uint32, error) {
	c, err := m.readyChunkAt(vx, vz)
	if err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	return c.GetRawVoxel(vx, vy, vz), nil
}

// LightAt уровни всех каналов вокселя в порядке voxel.Colors
func (m *Manager) LightAt(vx, vy, vz int) ([4]uint32, error) {
	var out [4]uint32
	c, err := m.readyChunkAt(vx, vz)
	if err != nil {
		return out, err
	}
	defer m.mu.Unlock()
	for i, color := range voxel.Colors {
		out[i] = c.GetLight(vx, vy, vz, color)
	}
	return out, nil
}

// readyChunkAt при успехе возвращается с захваченным mu
func (m *Manager) readyChunkAt(vx, vz int) (*chunk.Grid, error) {
	coords := vec.ToChunkCoords(vx, vz, m.Params().ChunkSize)
	m.mu.Lock()
	c := m.chunks.GetChunk(coords.X, coords.Z)
	if c == nil || !c.IsReady() {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrChunkNotLoaded, vec.ChunkName(coords))
	}
	return c, nil
}

// PendingEdits число правок, ждущих пересчёта света
func (m *Manager) PendingEdits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// FlushLightUpdates собирает накопленные правки в задания по каналам,
// выполняет их и применяет результаты. Возвращает число заданий.
func (m *Manager) FlushLightUpdates(ctx context.Context) (int, error) {
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return 0, nil
	}
	edits := m.pending
	deltas := m.pendingDeltas
	m.pending = nil
	m.pendingDeltas = make(map[string][]voxel.Delta)
	reqs := m.buildRequests(edits, deltas)
	m.mu.Unlock()

	var errs []error
	for _, req := range reqs {
		resp, err := m.runRequest(ctx, req)
		if err != nil {
			errs = append(errs, fmt.Errorf("light job %s %s: %w", req.JobID, req.Color, err))
			continue
		}
		m.ApplyLightResult(ctx, resp)
	}
	return len(reqs), errors.Join(errs...)
}

func (m *Manager) runRequest(ctx context.Context, req *light.Request) (*light.Response, error) {
	if m.lighter == nil {
		return m.engine.RunBatch(req)
	}
	future := m.lighter.Submit(ctx, req)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-future.Done():
		return future.Wait()
	}
}

// RunLightUpdates сбрасывает правки с интервалом до отмены ctx
func (m *Manager) RunLightUpdates(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := m.FlushLightUpdates(ctx); err != nil {
				m.logger.Warn("light update: %v", err)
			}
		}
	}
}

// editCluster правки, окна которых пересекаются, и их общее окно
type editCluster struct {
	lo, hi vec.Vec2
	idx    []int
}

func (c *editCluster) overlaps(o *editCluster) bool {
	return c.lo.X <= o.hi.X && o.lo.X <= c.hi.X && c.lo.Z <= o.hi.Z && o.lo.Z <= c.hi.Z
}

// clusterEdits группирует правки по окнам распространения света. Правки с
// непересекающимися окнами не влияют на одни и те же чанки и идут разными
// заданиями.
func (m *Manager) clusterEdits(edits []voxel.Delta) []*editCluster {
	params := m.Params()
	r := params.Radius()

	var clusters []*editCluster
	for i, d := range edits {
		cc := vec.ToChunkCoords(d.Coords[0], d.Coords[2], params.ChunkSize)
		cur := &editCluster{
			lo:  vec.Vec2{X: max(cc.X-r, params.MinChunk.X), Z: max(cc.Z-r, params.MinChunk.Z)},
			hi:  vec.Vec2{X: min(cc.X+r, params.MaxChunk.X), Z: min(cc.Z+r, params.MaxChunk.Z)},
			idx: []int{i},
		}
		for j := 0; j < len(clusters); {
			o := clusters[j]
			if !cur.overlaps(o) {
				j++
				continue
			}
			cur.lo = vec.Vec2{X: min(cur.lo.X, o.lo.X), Z: min(cur.lo.Z, o.lo.Z)}
			cur.hi = vec.Vec2{X: max(cur.hi.X, o.hi.X), Z: max(cur.hi.Z, o.hi.Z)}
			cur.idx = append(cur.idx, o.idx...)
			clusters = append(clusters[:j], clusters[j+1:]...)
			// расширенное окно могло задеть уже просмотренные кластеры
			j = 0
		}
		clusters = append(clusters, cur)
	}
	for _, c := range clusters {
		sort.Ints(c.idx)
	}
	return clusters
}

// buildRequests вызывается под mu. Правки делятся на кластеры; окно
// задания покрывает чанки кластера с радиусом распространения света,
// обрезанное границами мира.
func (m *Manager) buildRequests(edits []voxel.Delta, deltas map[string][]voxel.Delta) []*light.Request {
	var reqs []*light.Request
	for _, c := range m.clusterEdits(edits) {
		group := make([]voxel.Delta, len(c.idx))
		for i, k := range c.idx {
			group[i] = edits[k]
		}
		reqs = append(reqs, m.clusterRequests(c.lo, c.hi, group, deltas)...)
	}
	return reqs
}

func (m *Manager) clusterRequests(lo, hi vec.Vec2, edits []voxel.Delta, deltas map[string][]voxel.Delta) []*light.Request {
	params := m.Params()
	w, d := hi.X-lo.X+1, hi.Z-lo.Z+1

	var last uint64
	for _, e := range edits {
		last = max(last, e.SequenceID)
	}

	live := make([]*chunk.Grid, w*d)
	for lx := 0; lx < w; lx++ {
		for lz := 0; lz < d; lz++ {
			if c := m.chunks.GetChunk(lo.X+lx, lo.Z+lz); c != nil && c.IsReady() {
				live[lx*d+lz] = c
			}
		}
	}
	view := space.New(live, w, d, lo, m.opts)

	relevant := make(map[string][]voxel.Delta)
	for name, list := range deltas {
		cc, err := vec.ParseChunkName(name)
		if err != nil || cc.X < lo.X || cc.X > hi.X || cc.Z < lo.Z || cc.Z > hi.Z {
			continue
		}
		relevant[name] = list
	}

	var serialized []*chunk.Serialized
	var reqs []*light.Request
	for _, color := range voxel.Colors {
		ops := m.lightOps(view, edits, color)
		if len(ops.Removals) == 0 && len(ops.Floods) == 0 {
			continue
		}
		if serialized == nil {
			serialized = make([]*chunk.Serialized, len(live))
			for i, c := range live {
				if c != nil {
					serialized[i] = c.Serialize()
				}
			}
		}
		reqs = append(reqs, &light.Request{
			Color: color,
			BoundingBox: light.Bounds{
				Min:   vec.Vec3{X: lo.X * params.ChunkSize, Z: lo.Z * params.ChunkSize},
				Shape: vec.Vec3{X: w * params.ChunkSize, Y: params.MaxHeight, Z: d * params.ChunkSize},
			},
			ChunksData:             serialized,
			GridDimensions:         [2]int{w, d},
			GridOffset:             [2]int{lo.X, lo.Z},
			LastRelevantSequenceID: last,
			RelevantDeltas:         relevant,
			Ops:                    ops,
			Options:                params,
		})
	}
	return reqs
}

// lightOps операции одного канала по правкам. view отражает воксели уже
// после правок, свет ещё старый.
func (m *Manager) lightOps(view *space.View, edits []voxel.Delta, color voxel.LightColor) light.Ops {
	params := m.Params()
	var ops light.Ops
	seen := make(map[vec.Vec3]bool, len(edits))

	for _, d := range edits {
		p := vec.FromArray(d.Coords)
		if seen[p] {
			continue
		}
		seen[p] = true

		level := view.GetLight(p.X, p.Y, p.Z, color)
		if level > 0 {
			ops.Removals = append(ops.Removals, p)
		}

		b := m.registry.Get(view.GetVoxel(p.X, p.Y, p.Z))
		if emit := b.TorchLightLevelAt(d.Coords, view, color); emit > 0 {
			ops.Floods = append(ops.Floods, light.Node{Voxel: p, Level: emit})
		}

		if level != 0 || b.IsOpaque {
			continue
		}
		// воксель открылся: свет соседей должен в него затечь
		for _, o := range faceOffsets {
			n := vec.Vec3{X: p.X + o[0], Y: p.Y + o[1], Z: p.Z + o[2]}
			if n.Y >= params.MaxHeight {
				if color == voxel.Sunlight {
					ops.Floods = append(ops.Floods, light.Node{Voxel: p, Level: params.MaxLightLevel})
				}
				continue
			}
			if n.Y < 0 {
				continue
			}
			// уровень не передаётся: снятия в том же задании могут его погасить
			if view.GetLight(n.X, n.Y, n.Z, color) > 0 {
				ops.Floods = append(ops.Floods, light.Node{Voxel: n})
			}
		}
	}
	return ops
}

// ApplyLightResult переносит канал из результата задания в живые чанки.
// Результат старше уже применённого для пары (чанк, канал) отбрасывается.
func (m *Manager) ApplyLightResult(ctx context.Context, resp *light.Response) int {
	if resp == nil {
		return 0
	}
	seq := resp.AppliedDeltas.LastSequenceID

	m.mu.Lock()
	var applied []string
	for _, mc := range resp.ModifiedChunks {
		c := m.chunks.GetChunk(mc.Coords.X, mc.Coords.Z)
		if c == nil || !c.IsReady() {
			continue
		}
		key := lightKey{coords: mc.Coords, color: resp.Color}
		if prev, ok := m.lightSeq[key]; ok && seq < prev {
			m.metrics.stale()
			m.logger.Debug("stale light result %s for %s: seq %d < %d", resp.JobID, c.Name, seq, prev)
			continue
		}
		if !c.ReplaceChannel(mc.Lights, resp.Color) {
			continue
		}
		m.lightSeq[key] = seq
		c.ChangeCounter++
		applied = append(applied, c.Name)
	}
	m.mu.Unlock()

	for _, name := range applied {
		if ev, err := eventbus.NewEnvelope(m.cfg.NodeID, eventbus.TypeChunkLightUpdated, 2, eventbus.ChunkLightUpdated{
			Chunk: name, Color: resp.Color.String(), LastSequenceID: seq,
		}); err == nil {
			m.publish(ctx, ev)
		}
	}
	return len(applied)
}
