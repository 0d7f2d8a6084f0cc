package light

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-light/internal/block"
	"github.com/annel0/voxel-light/internal/chunk"
	"github.com/annel0/voxel-light/internal/space"
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/voxel"
)

func batchOptions() chunk.Options {
	return chunk.Options{Size: 4, MaxHeight: 8, MaxLightLevel: 15}
}

// stripRequest ряд из n чанков вдоль X, начиная с (0,0)
func stripRequest(n int, color voxel.LightColor) (*Request, []*chunk.Grid) {
	opts := batchOptions()
	grids := make([]*chunk.Grid, n)
	data := make([]*chunk.Serialized, n)
	for i := range grids {
		grids[i] = chunk.New(i, 0, opts)
		grids[i].Allocate()
		data[i] = grids[i].Serialize()
	}
	return &Request{
		JobID:          "job-1",
		Color:          color,
		BoundingBox:    Bounds{Shape: vec.Vec3{X: n * opts.Size, Y: opts.MaxHeight, Z: opts.Size}},
		ChunksData:     data,
		GridDimensions: [2]int{n, 1},
		Options:        ParamsFor(opts),
	}, grids
}

func modifiedByCoords(resp *Response) map[vec.Vec2][]uint32 {
	out := make(map[vec.Vec2][]uint32, len(resp.ModifiedChunks))
	for _, m := range resp.ModifiedChunks {
		out[m.Coords] = m.Lights
	}
	return out
}

func lightAt(lights []uint32, opts chunk.Options, cx, vx, vy, vz int, c voxel.LightColor) uint32 {
	g := chunk.New(cx, 0, opts)
	g.Lights = lights
	g.Voxels = make([]uint32, len(lights))
	return g.GetLight(vx, vy, vz, c)
}

func TestRequest_Validate(t *testing.T) {
	req, _ := stripRequest(2, voxel.Red)
	require.NoError(t, req.Validate())

	bad := *req
	bad.GridDimensions = [2]int{0, 1}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRequest)

	bad = *req
	bad.ChunksData = bad.ChunksData[:1]
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRequest)

	bad = *req
	bad.Color = voxel.LightColor(8)
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRequest)
}

func TestRunBatch_InvalidRequestReturnsEmptyResponse(t *testing.T) {
	eng := NewEngine(block.Default(), DefaultParams())
	req, _ := stripRequest(2, voxel.Red)
	req.GridDimensions = [2]int{3, 3}

	resp, err := eng.RunBatch(req)
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.NotNil(t, resp)
	assert.Equal(t, "job-1", resp.JobID)
	assert.Empty(t, resp.ModifiedChunks)
}

func TestRunBatch_CorruptChunkBuffer(t *testing.T) {
	eng := NewEngine(block.Default(), DefaultParams())
	req, _ := stripRequest(2, voxel.Red)
	req.ChunksData[1].Lights = req.ChunksData[1].Lights[:7]

	_, err := eng.RunBatch(req)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorIs(t, err, chunk.ErrBufferSize)
}

func TestRunBatch_FloodReturnsOnlyModifiedChunks(t *testing.T) {
	eng := NewEngine(block.Default(), DefaultParams())
	req, _ := stripRequest(3, voxel.Red)
	req.Ops.Floods = []Node{seed(1, 3, 1, 6)}

	resp, err := eng.RunBatch(req)
	require.NoError(t, err)
	assert.Equal(t, voxel.Red, resp.Color)

	mod := modifiedByCoords(resp)
	require.Len(t, mod, 2)
	require.Contains(t, mod, vec.Vec2{X: 0, Z: 0})
	require.Contains(t, mod, vec.Vec2{X: 1, Z: 0})

	opts := batchOptions()
	assert.Equal(t, uint32(6), lightAt(mod[vec.Vec2{X: 0}], opts, 0, 1, 3, 1, voxel.Red))
	assert.Equal(t, uint32(3), lightAt(mod[vec.Vec2{X: 1}], opts, 1, 4, 3, 1, voxel.Red))
	assert.Equal(t, uint32(0), lightAt(mod[vec.Vec2{X: 1}], opts, 1, 4, 3, 1, voxel.Green))
}

func TestRunBatch_BoundingBoxLimitsFlood(t *testing.T) {
	eng := NewEngine(block.Default(), DefaultParams())
	req, _ := stripRequest(3, voxel.Blue)
	req.BoundingBox = Bounds{Shape: vec.Vec3{X: 4, Y: 8, Z: 4}}
	req.Ops.Floods = []Node{seed(2, 3, 1, 10)}

	resp, err := eng.RunBatch(req)
	require.NoError(t, err)
	mod := modifiedByCoords(resp)
	assert.Len(t, mod, 1)
	assert.Contains(t, mod, vec.Vec2{X: 0, Z: 0})
}

func TestRunBatch_AppliesDeltasBeforeLighting(t *testing.T) {
	eng := NewEngine(block.Default(), DefaultParams())
	req, _ := stripRequest(2, voxel.Red)
	stone := uint32(block.StoneBlockID)
	req.RelevantDeltas = map[string][]voxel.Delta{
		"0|0": {
			{Coords: [3]int{2, 3, 1}, OldVoxel: 0, NewVoxel: stone, SequenceID: 7},
			{Coords: [3]int{2, 3, 1}, OldVoxel: stone, NewVoxel: 0, SequenceID: 4},
		},
		"9|9": {{Coords: [3]int{36, 0, 36}, NewVoxel: stone, SequenceID: 100}},
		"bad": {{Coords: [3]int{0, 0, 0}, NewVoxel: stone, SequenceID: 200}},
	}
	req.Ops.Floods = []Node{seed(1, 3, 1, 6)}

	resp, err := eng.RunBatch(req)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), resp.AppliedDeltas.LastSequenceID)

	// по порядку SequenceID последним ставится камень
	mod := modifiedByCoords(resp)
	opts := batchOptions()
	assert.Equal(t, uint32(0), lightAt(mod[vec.Vec2{}], opts, 0, 2, 3, 1, voxel.Red))
	assert.Equal(t, uint32(5), lightAt(mod[vec.Vec2{}], opts, 0, 1, 3, 2, voxel.Red))
}

func TestRunBatch_RemovalsRunBeforeFloods(t *testing.T) {
	opts := batchOptions()
	eng := NewEngine(block.Default(), DefaultParams())

	// исходный свет от источника в (1,3,1)
	req, grids := stripRequest(2, voxel.Green)
	params := ParamsFor(opts)
	params.MinChunk = vec.Vec2{}
	params.MaxChunk = vec.Vec2{X: 1}
	view := space.New(grids, 2, 1, vec.Vec2{}, opts)
	view.SetLight(1, 3, 1, 5, voxel.Green)
	eng.WithParams(params).Flood(view, []Node{seed(1, 3, 1, 5)}, voxel.Green, nil)
	for i, g := range grids {
		req.ChunksData[i] = g.Serialize()
	}

	req.Ops.Removals = []vec.Vec3{{X: 1, Y: 3, Z: 1}}
	req.Ops.Floods = []Node{seed(6, 3, 1, 3)}

	resp, err := eng.RunBatch(req)
	require.NoError(t, err)

	mod := modifiedByCoords(resp)
	require.Contains(t, mod, vec.Vec2{})
	require.Contains(t, mod, vec.Vec2{X: 1})
	assert.Equal(t, uint32(0), lightAt(mod[vec.Vec2{}], opts, 0, 1, 3, 1, voxel.Green))
	assert.Equal(t, uint32(0), lightAt(mod[vec.Vec2{}], opts, 0, 2, 3, 1, voxel.Green))
	assert.Equal(t, uint32(3), lightAt(mod[vec.Vec2{X: 1}], opts, 1, 6, 3, 1, voxel.Green))
	assert.Equal(t, uint32(1), lightAt(mod[vec.Vec2{X: 1}], opts, 1, 4, 3, 1, voxel.Green))
}

func TestRunBatch_ZeroLevelSeedReadsCurrentLight(t *testing.T) {
	opts := batchOptions()
	eng := NewEngine(block.Default(), DefaultParams())

	req, grids := stripRequest(2, voxel.Green)
	view := space.New(grids, 2, 1, vec.Vec2{}, opts)
	view.SetLight(6, 3, 1, 3, voxel.Green)
	for i, g := range grids {
		req.ChunksData[i] = g.Serialize()
	}

	// (1,3,1) без света: заливка оттуда не стартует
	req.Ops.Floods = []Node{{Voxel: vec.Vec3{X: 6, Y: 3, Z: 1}}, {Voxel: vec.Vec3{X: 1, Y: 3, Z: 1}}}

	resp, err := eng.RunBatch(req)
	require.NoError(t, err)

	mod := modifiedByCoords(resp)
	require.Contains(t, mod, vec.Vec2{X: 1})
	assert.Equal(t, uint32(3), lightAt(mod[vec.Vec2{X: 1}], opts, 1, 6, 3, 1, voxel.Green))
	assert.Equal(t, uint32(2), lightAt(mod[vec.Vec2{X: 1}], opts, 1, 5, 3, 1, voxel.Green))
	assert.Equal(t, uint32(1), lightAt(mod[vec.Vec2{X: 1}], opts, 1, 4, 3, 1, voxel.Green))
	if lights, ok := mod[vec.Vec2{}]; ok {
		assert.Equal(t, uint32(0), lightAt(lights, opts, 0, 1, 3, 1, voxel.Green))
		assert.Equal(t, uint32(0), lightAt(lights, opts, 0, 2, 3, 1, voxel.Green))
	}
}

func TestRunBatch_MissingChunkIsSkipped(t *testing.T) {
	eng := NewEngine(block.Default(), DefaultParams())
	req, _ := stripRequest(2, voxel.Red)
	req.ChunksData[1] = nil
	req.Ops.Floods = []Node{seed(2, 3, 1, 8)}

	resp, err := eng.RunBatch(req)
	require.NoError(t, err)
	mod := modifiedByCoords(resp)
	assert.Len(t, mod, 1)
	assert.Contains(t, mod, vec.Vec2{})
}

func TestLighter_SubmitRunsOnPool(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	l := NewLighter(NewEngine(block.Default(), DefaultParams()), 2, metrics)
	defer l.Stop()

	req, _ := stripRequest(2, voxel.Red)
	req.JobID = ""
	req.Ops.Floods = []Node{seed(1, 3, 1, 6)}

	resp, err := l.Submit(context.Background(), req).Wait()
	require.NoError(t, err)
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, req.JobID, resp.JobID)
	assert.Len(t, resp.ModifiedChunks, 2)

	bad, _ := stripRequest(1, voxel.Red)
	bad.GridDimensions = [2]int{0, 0}
	_, err = l.Submit(context.Background(), bad).Wait()
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.jobs.WithLabelValues("RED")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.failures.WithLabelValues("RED")))
}
