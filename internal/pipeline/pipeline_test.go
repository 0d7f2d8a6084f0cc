package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-light/internal/chunk"
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/voxel"
)

func testOptions() chunk.Options {
	return chunk.Options{Size: 2, MaxHeight: 2, MaxLightLevel: 15}
}

type mapSource struct {
	chunks map[vec.Vec2]*chunk.Grid
}

func newMapSource() *mapSource {
	return &mapSource{chunks: make(map[vec.Vec2]*chunk.Grid)}
}

func (s *mapSource) add(cx, cz int) *chunk.Grid {
	c := chunk.New(cx, cz, testOptions())
	s.chunks[c.Coords] = c
	return c
}

func (s *mapSource) GetChunk(cx, cz int) *chunk.Grid {
	return s.chunks[vec.Vec2{X: cx, Z: cz}]
}

func (s *mapSource) Neighbors(cx, cz, r int) []*chunk.Grid {
	var out []*chunk.Grid
	for x := cx - r; x <= cx+r; x++ {
		for z := cz - r; z <= cz+r; z++ {
			if (x != cx || z != cz) && s.chunks[vec.Vec2{X: x, Z: z}] != nil {
				out = append(out, s.chunks[vec.Vec2{X: x, Z: z}])
			}
		}
	}
	return out
}

type recordingObserver struct {
	mu     sync.Mutex
	stages map[string][]int
	ready  []string
	failed []string
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{stages: make(map[string][]int)}
}

func (o *recordingObserver) StageCompleted(c *chunk.Grid, stage int, _ string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages[c.Name] = append(o.stages[c.Name], stage)
}

func (o *recordingObserver) ChunkReady(c *chunk.Grid) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ready = append(o.ready, c.Name)
}

func (o *recordingObserver) ChunkFailed(c *chunk.Grid, _ int, _ string, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, c.Name)
}

func runUntilIdle(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		p.Update(ctx)
		if p.Idle() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("pipeline did not become idle")
}

func allocating(name string) StageFunc {
	return StageFunc{StageName: name, Fn: func(_ context.Context, task *Task) error {
		task.Chunk.Allocate()
		return nil
	}}
}

func TestPipeline_StagesRunInOrder(t *testing.T) {
	src := newMapSource()
	obs := newRecordingObserver()
	p := New(src, Config{MaxChunksPerTick: 3}, WithObserver(obs))
	defer p.Stop()

	var mu sync.Mutex
	seen := make(map[string][]int)
	record := func(name string) StageFunc {
		return StageFunc{StageName: name, Fn: func(_ context.Context, task *Task) error {
			mu.Lock()
			seen[task.Chunk.Name] = append(seen[task.Chunk.Name], task.Stage)
			mu.Unlock()
			return nil
		}}
	}
	p.AddStage(record("a"), 2).AddStage(record("b"), 2).AddStage(record("c"), 1)

	for i := 0; i < 7; i++ {
		p.AddChunk(src.add(i, 0), 0)
	}
	runUntilIdle(t, p)

	require.Len(t, seen, 7)
	for name, stages := range seen {
		assert.Equal(t, []int{0, 1, 2}, stages, name)
		assert.Equal(t, []int{0, 1, 2}, obs.stages[name], name)
	}
	assert.Len(t, obs.ready, 7)
	assert.Equal(t, 0, p.Stats().InFlight)
	assert.Equal(t, []string{"a", "b", "c"}, p.StageNames())
}

func TestPipeline_ConcurrencyBoundedPerTick(t *testing.T) {
	src := newMapSource()
	p := New(src, Config{MaxChunksPerTick: 2})
	defer p.Stop()

	var running, peak int32
	slow := StageFunc{StageName: "slow", Fn: func(context.Context, *Task) error {
		n := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	}}
	p.AddStage(slow, 8)

	for i := 0; i < 9; i++ {
		p.AddChunk(src.add(0, i), 0)
	}

	ctx := context.Background()
	deadline := time.Now().Add(5 * time.Second)
	for !p.Idle() && time.Now().Before(deadline) {
		assert.LessOrEqual(t, p.Update(ctx), 2)
		assert.LessOrEqual(t, p.Stats().Processing, 2)
		time.Sleep(time.Millisecond)
	}
	require.True(t, p.Idle())
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestPipeline_NoDispatchWhileBatchRunning(t *testing.T) {
	src := newMapSource()
	p := New(src, Config{MaxChunksPerTick: 1})
	defer p.Stop()

	release := make(chan struct{})
	p.AddStage(StageFunc{StageName: "blocked", Fn: func(context.Context, *Task) error {
		<-release
		return nil
	}}, 4)

	p.AddChunk(src.add(0, 0), 0)
	p.AddChunk(src.add(1, 0), 0)

	ctx := context.Background()
	assert.Equal(t, 1, p.Update(ctx))
	assert.Equal(t, 0, p.Update(ctx))
	assert.Equal(t, 1, p.Stats().Queued)

	close(release)
	runUntilIdle(t, p)
}

func TestPipeline_DuplicateAddPanics(t *testing.T) {
	src := newMapSource()
	p := New(src, DefaultConfig())
	defer p.Stop()
	p.AddStage(allocating("gen"), 1)

	c := src.add(3, 4)
	p.AddChunk(c, 0)
	assert.True(t, p.HasChunk(3, 4))
	assert.Panics(t, func() { p.AddChunk(c, 0) })
	assert.Panics(t, func() { p.AddChunk(src.add(5, 5), 1) })

	runUntilIdle(t, p)
	assert.False(t, p.HasChunk(3, 4))
	assert.True(t, c.IsReady())
	// после выхода из пайплайна чанк можно добавить снова
	assert.NotPanics(t, func() { p.AddChunk(c, 0) })
}

func TestPipeline_FailedCheckRequeuesAtTail(t *testing.T) {
	src := newMapSource()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	p := New(src, Config{MaxChunksPerTick: 4}, WithMetrics(metrics))
	defer p.Stop()

	var open atomic.Bool
	var order []string
	var mu sync.Mutex
	p.AddStage(StageFunc{
		StageName: "gated",
		Gate: func(c *chunk.Grid) bool {
			return c.Coords.X != 0 || open.Load()
		},
		Fn: func(_ context.Context, task *Task) error {
			mu.Lock()
			order = append(order, task.Chunk.Name)
			mu.Unlock()
			return nil
		},
	}, 1)

	p.AddChunk(src.add(0, 0), 0)
	p.AddChunk(src.add(1, 0), 0)

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		p.Update(ctx)
		time.Sleep(time.Millisecond)
	}
	assert.True(t, p.HasChunk(0, 0))
	assert.False(t, p.HasChunk(1, 0))
	assert.Greater(t, testutil.ToFloat64(metrics.requeuedTotal.WithLabelValues("gated")), float64(1))

	open.Store(true)
	runUntilIdle(t, p)
	assert.Equal(t, []string{"1|0", "0|0"}, order)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.processedTotal.WithLabelValues("gated")))
}

func TestPipeline_ProcessErrorDropsChunk(t *testing.T) {
	src := newMapSource()
	obs := newRecordingObserver()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	p := New(src, DefaultConfig(), WithObserver(obs), WithMetrics(metrics))
	defer p.Stop()

	var later atomic.Int32
	p.AddStage(StageFunc{StageName: "broken", Fn: func(_ context.Context, task *Task) error {
		if task.Chunk.Coords.X == 1 {
			return errors.New("boom")
		}
		return nil
	}}, 1)
	p.AddStage(StageFunc{StageName: "after", Fn: func(context.Context, *Task) error {
		later.Add(1)
		return nil
	}}, 1)

	p.AddChunk(src.add(0, 0), 0)
	p.AddChunk(src.add(1, 0), 0)
	runUntilIdle(t, p)

	assert.Equal(t, int32(1), later.Load())
	assert.Equal(t, []string{"1|0"}, obs.failed)
	assert.Equal(t, []string{"0|0"}, obs.ready)
	assert.False(t, p.HasChunk(1, 0))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.failedTotal.WithLabelValues("broken")))
}

type neighborStage struct {
	StageFunc
}

func (neighborStage) NeighborRadius() int { return 1 }

func TestPipeline_ModifiedNeighborsMergedIntoLiveChunks(t *testing.T) {
	src := newMapSource()
	center := src.add(0, 0)
	center.Allocate()
	east := src.add(1, 0)
	east.Allocate()
	east.SetLight(2, 0, 0, 3, voxel.Red)

	p := New(src, DefaultConfig())
	defer p.Stop()

	var got int
	p.AddStage(neighborStage{StageFunc{StageName: "lit", Fn: func(_ context.Context, task *Task) error {
		got = len(task.Neighbors)
		for _, n := range task.Neighbors {
			n.SetLight(n.Min.X, 1, n.Min.Z, 9, voxel.Green)
			task.Modified = append(task.Modified, n)
		}
		task.Chunk.SetLight(0, 0, 0, 7, voxel.Blue)
		return nil
	}}}, 1)

	p.AddChunk(center, 0)
	runUntilIdle(t, p)

	assert.Equal(t, 1, got)
	assert.Equal(t, uint32(7), center.GetLight(0, 0, 0, voxel.Blue))
	assert.Equal(t, uint32(9), east.GetLight(2, 1, 0, voxel.Green))
	assert.Equal(t, uint32(3), east.GetLight(2, 0, 0, voxel.Red))
}

func TestPipeline_WorkerSeesPrivateCopy(t *testing.T) {
	src := newMapSource()
	c := src.add(0, 0)
	c.Allocate()

	p := New(src, DefaultConfig())
	defer p.Stop()

	var same bool
	p.AddStage(StageFunc{StageName: "copy", Fn: func(_ context.Context, task *Task) error {
		same = task.Chunk == c
		return nil
	}}, 1)
	p.AddChunk(c, 0)
	runUntilIdle(t, p)
	assert.False(t, same)
}

func TestPipeline_LightLoweredDuringJobIsNotRestored(t *testing.T) {
	src := newMapSource()
	center := src.add(0, 0)
	center.Allocate()
	center.SetLight(0, 0, 0, 5, voxel.Blue)
	east := src.add(1, 0)
	east.Allocate()
	east.SetLight(2, 0, 0, 9, voxel.Red)

	p := New(src, DefaultConfig())
	defer p.Stop()

	release := make(chan struct{})
	p.AddStage(neighborStage{StageFunc{StageName: "lit", Fn: func(_ context.Context, task *Task) error {
		<-release
		for _, n := range task.Neighbors {
			// стадия заново считает уже существующий свет и добавляет новый
			n.SetLight(2, 0, 0, 9, voxel.Red)
			n.SetLight(3, 1, 1, 6, voxel.Green)
			task.Modified = append(task.Modified, n)
		}
		task.Chunk.SetLight(1, 1, 1, 4, voxel.Blue)
		return nil
	}}}, 1)

	p.AddChunk(center, 0)
	require.Equal(t, 1, p.Update(context.Background()))

	// пересчёт правки снял свет, пока задача выполнялась
	east.SetLight(2, 0, 0, 0, voxel.Red)
	center.SetLight(0, 0, 0, 0, voxel.Blue)
	close(release)
	runUntilIdle(t, p)

	assert.Equal(t, uint32(0), east.GetLight(2, 0, 0, voxel.Red))
	assert.Equal(t, uint32(6), east.GetLight(3, 1, 1, voxel.Green))
	assert.Equal(t, uint32(0), center.GetLight(0, 0, 0, voxel.Blue))
	assert.Equal(t, uint32(4), center.GetLight(1, 1, 1, voxel.Blue))
}
