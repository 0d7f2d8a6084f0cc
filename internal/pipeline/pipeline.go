// Package pipeline проводит чанки через упорядоченные стадии обработки
// с ограничением числа чанков за тик и проверкой зависимостей.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/annel0/voxel-light/internal/chunk"
	"github.com/annel0/voxel-light/internal/logging"
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/workerpool"
)

// Config параметры планировщика
type Config struct {
	MaxChunksPerTick int           `yaml:"maxChunksPerTick"`
	TickInterval     time.Duration `yaml:"tickInterval"`
}

// DefaultConfig настройки по умолчанию
func DefaultConfig() Config {
	return Config{MaxChunksPerTick: 8, TickInterval: 50 * time.Millisecond}
}

type entry struct {
	chunk *chunk.Grid
	stage int
}

type stageSlot struct {
	stage  Stage
	pool   *workerpool.Pool[*Task]
	radius int
}

type completion struct {
	entry   entry
	task    *Task
	err     error
	elapsed time.Duration
}

// notification откладывается до снятия блокировки
type notification struct {
	chunk *chunk.Grid
	stage int
	name  string
	ready bool
	err   error
}

// Pipeline планировщик стадий. Update вызывается из одного управляющего
// цикла; только он пишет в живые чанки. Воркеры получают копии.
type Pipeline struct {
	mu sync.Mutex

	cfg    Config
	source ChunkSource
	stages []*stageSlot

	queue      []entry
	inFlight   map[int64]*chunk.Grid
	processing int
	done       chan completion
	stopped    bool

	observers []Observer
	metrics   *Metrics
	logger    *logging.Logger
}

// Option настройка пайплайна
type Option func(*Pipeline)

// WithObserver добавляет наблюдателя
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observers = append(p.observers, o) }
}

// WithMetrics подключает метрики
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger заменяет логгер компонента
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New создаёт пайплайн без стадий
func New(source ChunkSource, cfg Config, opts ...Option) *Pipeline {
	if cfg.MaxChunksPerTick < 1 {
		cfg.MaxChunksPerTick = 1
	}
	p := &Pipeline{
		cfg:      cfg,
		source:   source,
		inFlight: make(map[int64]*chunk.Grid),
		done:     make(chan completion, cfg.MaxChunksPerTick),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.GetPipelineLogger()
	}
	return p
}

// AddStage добавляет стадию с собственным пулом воркеров
func (p *Pipeline) AddStage(s Stage, concurrency int) *Pipeline {
	if s == nil {
		panic("pipeline: nil stage")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	slot := &stageSlot{stage: s, pool: workerpool.New[*Task](s.Name(), concurrency)}
	if ns, ok := s.(NeighborStage); ok {
		slot.radius = ns.NeighborRadius()
	}
	p.stages = append(p.stages, slot)
	p.logger.Debug("stage %d %s added, concurrency %d", len(p.stages)-1, s.Name(), slot.pool.Concurrency())
	return p
}

// AddChunk ставит чанк в очередь на стадию stage. Повторное добавление
// чанка, который ещё в пайплайне, считается ошибкой программы.
func (p *Pipeline) AddChunk(c *chunk.Grid, stage int) *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := c.Coords.Key()
	if _, exists := p.inFlight[key]; exists {
		panic(fmt.Sprintf("pipeline: adding chunk %s that is already in flight", c.Name))
	}
	if stage < 0 || stage >= len(p.stages) {
		panic(fmt.Sprintf("pipeline: chunk %s added to unknown stage %d", c.Name, stage))
	}

	p.queue = append(p.queue, entry{chunk: c, stage: stage})
	p.inFlight[key] = c
	p.metrics.setQueue(len(p.queue), len(p.inFlight))
	return p
}

// HasChunk проверяет, находится ли чанк в пайплайне
func (p *Pipeline) HasChunk(cx, cz int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inFlight[vec.Vec2{X: cx, Z: cz}.Key()]
	return ok
}

// Update выполняет один тик: применяет завершённые задачи и, если
// предыдущая партия полностью завершилась, запускает новую.
// Возвращает число запущенных задач.
func (p *Pipeline) Update(ctx context.Context) int {
	p.mu.Lock()
	notes := p.drain()

	dispatched := 0
	if p.processing == 0 && !p.stopped {
		// каждую запись смотрим не больше одного раза за тик
		attempts := len(p.queue)
		for dispatched < p.cfg.MaxChunksPerTick && attempts > 0 && len(p.queue) > 0 {
			attempts--
			e := p.queue[0]
			p.queue[0] = entry{}
			p.queue = p.queue[1:]

			slot := p.stages[e.stage]
			if !slot.stage.Check(e.chunk) {
				p.queue = append(p.queue, e)
				p.metrics.requeued(slot.stage.Name())
				continue
			}

			p.dispatch(ctx, e, slot)
			dispatched++
		}
		p.processing = dispatched
	}

	p.metrics.setQueue(len(p.queue), len(p.inFlight))
	p.metrics.setProcessing(p.processing)
	p.mu.Unlock()

	p.notify(notes)
	return dispatched
}

// dispatch отдаёт копию чанка (и соседей) пулу стадии
func (p *Pipeline) dispatch(ctx context.Context, e entry, slot *stageSlot) {
	task := &Task{Chunk: e.chunk.Clone(), Stage: e.stage, base: append([]uint32(nil), e.chunk.Lights...)}
	if slot.radius > 0 && p.source != nil {
		task.neighborBases = make(map[int64][]uint32)
		for _, n := range p.source.Neighbors(e.chunk.Coords.X, e.chunk.Coords.Z, slot.radius) {
			if n != nil && n.IsReady() {
				clone := n.Clone()
				task.Neighbors = append(task.Neighbors, clone)
				task.neighborBases[n.Coords.Key()] = append([]uint32(nil), n.Lights...)
			}
		}
	}

	start := time.Now()
	stage := slot.stage
	future := slot.pool.Queue(func() (*Task, error) {
		ctx, span := otel.Tracer("voxel-light/pipeline").Start(ctx, "pipeline."+stage.Name())
		defer span.End()
		span.SetAttributes(
			attribute.String("chunk", e.chunk.Name),
			attribute.Int("stage", e.stage),
			attribute.Int("neighbors", len(task.Neighbors)),
		)

		if err := stage.Process(ctx, task); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return task, err
		}
		return task, nil
	})

	go func() {
		_, err := future.Wait()
		p.done <- completion{entry: e, task: task, err: err, elapsed: time.Since(start)}
	}()
}

// drain применяет все завершённые задачи без ожидания
func (p *Pipeline) drain() []notification {
	var notes []notification
	for {
		select {
		case c := <-p.done:
			notes = append(notes, p.complete(c))
		default:
			return notes
		}
	}
}

func (p *Pipeline) complete(c completion) notification {
	p.processing--

	live := c.entry.chunk
	name := p.stages[c.entry.stage].stage.Name()
	note := notification{chunk: live, stage: c.entry.stage, name: name}

	if c.err != nil {
		p.logger.Error("stage %s failed for chunk %s: %v", name, live.Name, c.err)
		p.metrics.failed(name)
		delete(p.inFlight, live.Coords.Key())
		note.err = c.err
		return note
	}

	// пока задача шла, живой свет мог измениться пересчётом правок;
	// переносятся только ячейки, поднятые самой стадией
	live.Adopt(c.task.Chunk, c.task.base)
	for _, n := range c.task.Modified {
		if p.source == nil {
			break
		}
		if target := p.source.GetChunk(n.Coords.X, n.Coords.Z); target != nil && target != live {
			target.MergeRaised(c.task.neighborBases[n.Coords.Key()], n.Lights)
		}
	}
	p.metrics.processed(name, c.elapsed)

	if c.entry.stage < len(p.stages)-1 {
		p.queue = append(p.queue, entry{chunk: live, stage: c.entry.stage + 1})
		return note
	}

	delete(p.inFlight, live.Coords.Key())
	note.ready = true
	return note
}

func (p *Pipeline) notify(notes []notification) {
	for _, n := range notes {
		for _, o := range p.observers {
			if n.err != nil {
				o.ChunkFailed(n.chunk, n.stage, n.name, n.err)
				continue
			}
			o.StageCompleted(n.chunk, n.stage, n.name)
			if n.ready {
				o.ChunkReady(n.chunk)
			}
		}
	}
}

// Idle true, когда очередь пуста и нет выполняющихся задач
func (p *Pipeline) Idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) == 0 && p.processing == 0
}

// Stats снимок состояния для API
type Stats struct {
	Queued     int          `json:"queued"`
	Processing int          `json:"processing"`
	InFlight   int          `json:"inFlight"`
	Stages     []StageStats `json:"stages"`
}

// StageStats состояние пула стадии
type StageStats struct {
	Name        string `json:"name"`
	Concurrency int    `json:"concurrency"`
	Running     int64  `json:"running"`
	Waiting     uint64 `json:"waiting"`
	Completed   uint64 `json:"completed"`
}

// Stats возвращает снимок состояния
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{Queued: len(p.queue), Processing: p.processing, InFlight: len(p.inFlight)}
	for _, slot := range p.stages {
		s.Stages = append(s.Stages, StageStats{
			Name:        slot.stage.Name(),
			Concurrency: slot.pool.Concurrency(),
			Running:     slot.pool.Running(),
			Waiting:     slot.pool.Waiting(),
			Completed:   slot.pool.Completed(),
		})
	}
	return s
}

// StageNames имена стадий по порядку
func (p *Pipeline) StageNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, len(p.stages))
	for i, slot := range p.stages {
		names[i] = slot.stage.Name()
	}
	return names
}

// Stop дожидается запущенных задач и останавливает пулы. Очередь не
// обрабатывается дальше.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	p.stopped = true
	stages := p.stages
	p.mu.Unlock()

	for _, slot := range stages {
		slot.pool.Stop()
	}
	p.logger.Info("pipeline stopped")
}
