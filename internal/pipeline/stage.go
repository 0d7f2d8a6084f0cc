package pipeline

import (
	"context"

	"github.com/annel0/voxel-light/internal/chunk"
)

// Stage одна фаза обработки чанка.
//
// Check вызывается в управляющем цикле и должен быть дешёвым. Process
// выполняется в пуле стадии и работает только с копиями из Task.
type Stage interface {
	Name() string
	Check(c *chunk.Grid) bool
	Process(ctx context.Context, task *Task) error
}

// NeighborStage стадия, которой нужны копии соседей в радиусе
type NeighborStage interface {
	Stage
	NeighborRadius() int
}

// Task единица работы стадии. Chunk и Neighbors являются приватными копиями;
// после Process чанк и изменённые соседи возвращаются в живые чанки.
type Task struct {
	Chunk     *chunk.Grid
	Neighbors []*chunk.Grid
	Stage     int

	// Modified соседи, свет которых изменила стадия
	Modified []*chunk.Grid

	// свет живых чанков на момент копирования
	base          []uint32
	neighborBases map[int64][]uint32
}

// ChunkSource доступ пайплайна к живым чанкам
type ChunkSource interface {
	GetChunk(cx, cz int) *chunk.Grid
	Neighbors(cx, cz, r int) []*chunk.Grid
}

// Observer получает уведомления о продвижении чанков
type Observer interface {
	StageCompleted(c *chunk.Grid, stage int, name string)
	ChunkReady(c *chunk.Grid)
	ChunkFailed(c *chunk.Grid, stage int, name string, err error)
}

// StageFunc адаптер для простых стадий без проверки зависимостей
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context, task *Task) error
	Gate      func(c *chunk.Grid) bool
}

func (s StageFunc) Name() string { return s.StageName }

func (s StageFunc) Check(c *chunk.Grid) bool {
	if s.Gate == nil {
		return true
	}
	return s.Gate(c)
}

func (s StageFunc) Process(ctx context.Context, task *Task) error {
	return s.Fn(ctx, task)
}
