// Package world управляет живыми чанками: загрузка и генерация через
// пайплайн, правки вокселей и применение результатов пересчёта света.
package world

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/voxel-light/internal/block"
	"github.com/annel0/voxel-light/internal/cache"
	"github.com/annel0/voxel-light/internal/chunk"
	"github.com/annel0/voxel-light/internal/eventbus"
	"github.com/annel0/voxel-light/internal/light"
	"github.com/annel0/voxel-light/internal/logging"
	"github.com/annel0/voxel-light/internal/pipeline"
	"github.com/annel0/voxel-light/internal/pipeline/stages"
	"github.com/annel0/voxel-light/internal/storage"
	"github.com/annel0/voxel-light/internal/terrain"
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/voxel"
)

var (
	// ErrOutsideWorld координаты чанка вне границ мира
	ErrOutsideWorld = errors.New("chunk outside world bounds")
	// ErrChunkNotLoaded чанка нет или он ещё не заполнен
	ErrChunkNotLoaded = errors.New("чанк не загружен")
	// ErrChunkBusy чанк ещё проходит пайплайн
	ErrChunkBusy = errors.New("chunk is still in the pipeline")
	// ErrOutOfBounds координата Y вне высоты мира
	ErrOutOfBounds = errors.New("voxel outside world height")
)

// Индексы стадий пайплайна
const (
	StageTerrain = iota
	StageHeightMap
	StageLight
	StageMesh
)

// StageConcurrency размеры пулов стадий
type StageConcurrency struct {
	Terrain   int `yaml:"terrain"`
	HeightMap int `yaml:"heightMap"`
	Light     int `yaml:"light"`
	Mesh      int `yaml:"mesh"`
}

// Config параметры менеджера
type Config struct {
	NodeID      string           `yaml:"nodeId"`
	Pipeline    pipeline.Config  `yaml:"pipeline"`
	Concurrency StageConcurrency `yaml:"concurrency"`
}

// DefaultConfig настройки по умолчанию
func DefaultConfig() Config {
	return Config{
		NodeID:      "voxel-1",
		Pipeline:    pipeline.DefaultConfig(),
		Concurrency: StageConcurrency{Terrain: 4, HeightMap: 2, Light: 4, Mesh: 2},
	}
}

// Store постоянное хранилище чанков и журнала правок
type Store interface {
	SaveChunk(c *chunk.Grid) error
	LoadChunk(coords vec.Vec2) (*chunk.Grid, error)
	AppendDeltas(coords vec.Vec2, deltas []voxel.Delta) error
	LoadDeltas(coords vec.Vec2, after uint64) ([]voxel.Delta, error)
}

type lightKey struct {
	coords vec.Vec2
	color  voxel.LightColor
}

// Manager владеет живыми чанками мира.
//
// Все изменения живых чанков идут под mu: Tick (пайплайн), UpdateVoxel и
// ApplyLightResult. Воркеры работают только с копиями.
type Manager struct {
	mu sync.Mutex

	cfg      Config
	chunks   *chunkSet
	opts     chunk.Options
	engine   *light.Engine
	registry *block.Registry
	pipe     *pipeline.Pipeline
	lighter  *light.Lighter

	store           Store
	cache           cache.ChunkCache
	bus             eventbus.EventBus
	metrics         *Metrics
	pipelineMetrics *pipeline.Metrics
	logger          *logging.Logger

	seq           uint64
	pending       []voxel.Delta
	pendingDeltas map[string][]voxel.Delta
	lightSeq      map[lightKey]uint64
	saved         map[vec.Vec2]int
	notes         []note
}

// Option настройка менеджера
type Option func(*Manager)

// WithStore подключает BadgerDB хранилище
func WithStore(s Store) Option { return func(m *Manager) { m.store = s } }

// WithCache подключает горячий кеш чанков
func WithCache(c cache.ChunkCache) Option { return func(m *Manager) { m.cache = c } }

// WithEventBus публикует события чанков в шину
func WithEventBus(b eventbus.EventBus) Option { return func(m *Manager) { m.bus = b } }

// WithLighter пул пакетных заданий света для правок
func WithLighter(l *light.Lighter) Option { return func(m *Manager) { m.lighter = l } }

// WithLogger заменяет логгер компонента
func WithLogger(l *logging.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithMetrics подключает метрики мира
func WithMetrics(mt *Metrics) Option { return func(m *Manager) { m.metrics = mt } }

// WithPipelineMetrics подключает метрики пайплайна
func WithPipelineMetrics(pm *pipeline.Metrics) Option {
	return func(m *Manager) { m.pipelineMetrics = pm }
}

// NewManager создаёт менеджер и пайплайн из четырёх стадий
func NewManager(cfg Config, engine *light.Engine, gen *terrain.Generator, opts ...Option) *Manager {
	params := engine.Params()
	m := &Manager{
		cfg:           cfg,
		chunks:        newChunkSet(params),
		opts:          params.ChunkOptions(),
		engine:        engine,
		registry:      engine.Registry(),
		pendingDeltas: make(map[string][]voxel.Delta),
		lightSeq:      make(map[lightKey]uint64),
		saved:         make(map[vec.Vec2]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.GetComponentLogger("world")
	}

	pipeOpts := []pipeline.Option{pipeline.WithObserver(m)}
	if m.pipelineMetrics != nil {
		pipeOpts = append(pipeOpts, pipeline.WithMetrics(m.pipelineMetrics))
	}
	c := cfg.Concurrency
	m.pipe = pipeline.New(m.chunks, cfg.Pipeline, pipeOpts...).
		AddStage(stages.NewTerrain(gen), c.Terrain).
		AddStage(stages.NewHeightMap(m.registry), c.HeightMap).
		AddStage(stages.NewLight(engine, m.chunks), c.Light).
		AddStage(stages.NewMesh(m.registry, m.chunks), c.Mesh)
	return m
}

// Params параметры мира
func (m *Manager) Params() light.Params { return m.engine.Params() }

// Pipeline планировщик стадий, для статистики
func (m *Manager) Pipeline() *pipeline.Pipeline { return m.pipe }

// IsWithinWorld лежит ли чанк внутри границ мира
func (m *Manager) IsWithinWorld(cx, cz int) bool { return m.chunks.inWorld(cx, cz) }

// ExpectedNeighbors число соседей в радиусе r внутри мира
func (m *Manager) ExpectedNeighbors(cx, cz, r int) int {
	return m.chunks.ExpectedNeighbors(cx, cz, r)
}

// LightTraversedChunks чанки мира, до которых может дойти свет из (cx, cz)
func (m *Manager) LightTraversedChunks(cx, cz int) []vec.Vec2 {
	return m.chunks.traversed(cx, cz)
}

// GetChunk живой чанк или nil. Возвращённый чанк нельзя менять
// без блокировки менеджера; для чтения снаружи используйте Snapshot.
func (m *Manager) GetChunk(cx, cz int) *chunk.Grid {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunks.GetChunk(cx, cz)
}

// Snapshot копия чанка или nil
func (m *Manager) Snapshot(cx, cz int) *chunk.Grid {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.chunks.GetChunk(cx, cz); c != nil {
		return c.Clone()
	}
	return nil
}

// Neighbors существующие соседи в радиусе r
func (m *Manager) Neighbors(cx, cz, r int) []*chunk.Grid {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunks.Neighbors(cx, cz, r)
}

// Len число живых чанков
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks.chunks)
}

// RequestChunk делает чанк живым: берёт его из кеша или хранилища, иначе
// ставит на генерацию. Загруженный чанк проходит пайплайн с карты высот.
func (m *Manager) RequestChunk(ctx context.Context, cx, cz int) error {
	if !m.IsWithinWorld(cx, cz) {
		return fmt.Errorf("%w: %d|%d", ErrOutsideWorld, cx, cz)
	}
	coords := vec.Vec2{X: cx, Z: cz}

	m.mu.Lock()
	_, exists := m.chunks.chunks[coords]
	m.mu.Unlock()
	if exists {
		return nil
	}

	loaded, lastSeq, err := m.loadPersisted(ctx, coords)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.chunks.chunks[coords]; exists {
		return nil
	}

	if loaded != nil {
		m.seq = max(m.seq, lastSeq)
		m.chunks.chunks[coords] = loaded
		m.pipe.AddChunk(loaded, StageHeightMap)
		m.logger.Debug("chunk %s restored, last sequence %d", loaded.Name, lastSeq)
	} else {
		c := chunk.New(cx, cz, m.opts)
		m.chunks.chunks[coords] = c
		m.pipe.AddChunk(c, StageTerrain)
	}
	m.metrics.setChunks(len(m.chunks.chunks))
	return nil
}

// RequestArea запрашивает квадрат чанков радиуса r, пропуская чанки вне мира
func (m *Manager) RequestArea(ctx context.Context, center vec.Vec2, r int) error {
	for x := center.X - r; x <= center.X+r; x++ {
		for z := center.Z - r; z <= center.Z+r; z++ {
			if !m.IsWithinWorld(x, z) {
				continue
			}
			if err := m.RequestChunk(ctx, x, z); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadPersisted кеш, затем хранилище; журнал правок проигрывается поверх
func (m *Manager) loadPersisted(ctx context.Context, coords vec.Vec2) (*chunk.Grid, uint64, error) {
	var grid *chunk.Grid
	if m.cache != nil {
		g, err := m.cache.Get(ctx, coords)
		switch {
		case err == nil:
			grid = g
		case !errors.Is(err, cache.ErrCacheMiss):
			m.logger.Warn("cache get %s failed: %v", vec.ChunkName(coords), err)
		}
	}
	if grid == nil && m.store != nil {
		g, err := m.store.LoadChunk(coords)
		switch {
		case err == nil:
			grid = g
		case !errors.Is(err, storage.ErrChunkNotFound):
			return nil, 0, fmt.Errorf("load chunk %s: %w", vec.ChunkName(coords), err)
		}
	}
	if grid == nil || !grid.IsReady() {
		return nil, 0, nil
	}

	var last uint64
	if m.store != nil {
		deltas, err := m.store.LoadDeltas(coords, 0)
		if err != nil {
			return nil, 0, fmt.Errorf("load deltas %s: %w", vec.ChunkName(coords), err)
		}
		// правки абсолютны, повтор уже сохранённых ничего не меняет
		for _, d := range deltas {
			vx, vy, vz := d.Coords[0], d.Coords[1], d.Coords[2]
			if grid.Contains(vx, vy, vz) {
				grid.SetRawVoxel(vx, vy, vz, d.Apply(grid.GetRawVoxel(vx, vy, vz)))
			}
			last = max(last, d.SequenceID)
		}
	}
	return grid, last, nil
}

// Tick один шаг пайплайна. Готовые чанки сохраняются после снятия блокировки.
func (m *Manager) Tick(ctx context.Context) int {
	m.mu.Lock()
	dispatched := m.pipe.Update(ctx)
	notes := m.notes
	m.notes = nil
	var ready []*chunk.Grid
	for i := range notes {
		if notes[i].ready {
			ready = append(ready, notes[i].chunk.Clone())
		}
	}
	m.mu.Unlock()

	for _, c := range ready {
		m.persist(ctx, c)
	}
	m.publishNotes(ctx, notes)
	return dispatched
}

// RunPipeline вызывает Tick с интервалом до отмены ctx
func (m *Manager) RunPipeline(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// persist сохраняет копию чанка в хранилище и кеш
func (m *Manager) persist(ctx context.Context, c *chunk.Grid) {
	if m.store != nil {
		if err := m.store.SaveChunk(c); err != nil {
			m.logger.Error("save chunk %s: %v", c.Name, err)
			return
		}
	}
	if m.cache != nil {
		m.mu.Lock()
		_, update := m.saved[c.Coords]
		m.mu.Unlock()
		// остальные узлы выбрасывают свои копии изменённого чанка
		if update {
			if err := m.cache.Invalidate(ctx, c.Coords); err != nil {
				m.logger.Warn("cache invalidate %s: %v", c.Name, err)
			}
		}
		if err := m.cache.Set(ctx, c); err != nil {
			m.logger.Warn("cache set %s: %v", c.Name, err)
		}
	}
	m.mu.Lock()
	m.saved[c.Coords] = c.ChangeCounter
	m.mu.Unlock()
}

// Save сохраняет все готовые чанки, изменённые с прошлого сохранения
func (m *Manager) Save(ctx context.Context) int {
	m.mu.Lock()
	var dirty []*chunk.Grid
	for coords, c := range m.chunks.chunks {
		if !c.IsReady() || m.pipe.HasChunk(coords.X, coords.Z) {
			continue
		}
		if counter, ok := m.saved[coords]; ok && counter == c.ChangeCounter {
			continue
		}
		dirty = append(dirty, c.Clone())
	}
	m.mu.Unlock()

	for _, c := range dirty {
		m.persist(ctx, c)
	}
	if len(dirty) > 0 {
		m.logger.Info("saved %d chunks", len(dirty))
	}
	return len(dirty)
}

// Unload сохраняет и выгружает чанк. Чанк в пайплайне не выгружается.
func (m *Manager) Unload(ctx context.Context, cx, cz int) error {
	m.mu.Lock()
	c := m.chunks.GetChunk(cx, cz)
	if c == nil {
		m.mu.Unlock()
		return nil
	}
	if m.pipe.HasChunk(cx, cz) {
		m.mu.Unlock()
		return ErrChunkBusy
	}
	snapshot := c.Clone()
	m.mu.Unlock()

	if snapshot.IsReady() {
		m.persist(ctx, snapshot)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// правка могла прийти во время сохранения
	if cur := m.chunks.GetChunk(cx, cz); cur != nil && cur.ChangeCounter == snapshot.ChangeCounter {
		m.drop(cur.Coords)
	}
	return nil
}

// Evict выбрасывает чанк без сохранения, например после инвалидации
// с другого узла. Чанк в пайплайне остаётся.
func (m *Manager) Evict(coords vec.Vec2) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chunks.chunks[coords]; !ok || m.pipe.HasChunk(coords.X, coords.Z) {
		return false
	}
	m.drop(coords)
	return true
}

func (m *Manager) drop(coords vec.Vec2) {
	delete(m.chunks.chunks, coords)
	delete(m.saved, coords)
	delete(m.pendingDeltas, vec.ChunkName(coords))
	for _, c := range voxel.Colors {
		delete(m.lightSeq, lightKey{coords: coords, color: c})
	}
	m.metrics.setChunks(len(m.chunks.chunks))
}

// Close останавливает пайплайн и сохраняет изменённые чанки
func (m *Manager) Close(ctx context.Context) {
	m.pipe.Stop()
	m.Save(ctx)
}

// ChunkStatus состояние чанка для API
type ChunkStatus struct {
	Name          string            `json:"name"`
	Loaded        bool              `json:"loaded"`
	Ready         bool              `json:"ready"`
	InPipeline    bool              `json:"inPipeline"`
	HasHeightMap  bool              `json:"hasHeightMap"`
	MeshFaces     int               `json:"meshFaces"`
	ChangeCounter int               `json:"changeCounter"`
	LightSequence map[string]uint64 `json:"lightSequence,omitempty"`
}

// Status состояние чанка
func (m *Manager) Status(cx, cz int) ChunkStatus {
	coords := vec.Vec2{X: cx, Z: cz}
	st := ChunkStatus{Name: vec.ChunkName(coords)}

	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.chunks.GetChunk(cx, cz)
	if c == nil {
		return st
	}
	st.Loaded = true
	st.Ready = c.IsReady()
	st.InPipeline = m.pipe.HasChunk(cx, cz)
	st.HasHeightMap = len(c.HeightMap) > 0
	st.MeshFaces = len(c.Mesh)
	st.ChangeCounter = c.ChangeCounter
	for _, color := range voxel.Colors {
		if seq, ok := m.lightSeq[lightKey{coords: coords, color: color}]; ok {
			if st.LightSequence == nil {
				st.LightSequence = make(map[string]uint64)
			}
			st.LightSequence[color.String()] = seq
		}
	}
	return st
}

// Stats сводка для API
type Stats struct {
	Chunks         int            `json:"chunks"`
	PendingEdits   int            `json:"pendingEdits"`
	LastSequenceID uint64         `json:"lastSequenceId"`
	Pipeline       pipeline.Stats `json:"pipeline"`
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	s := Stats{Chunks: len(m.chunks.chunks), PendingEdits: len(m.pending), LastSequenceID: m.seq}
	m.mu.Unlock()
	s.Pipeline = m.pipe.Stats()
	return s
}
