package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-light/internal/voxel"
	"github.com/annel0/voxel-light/internal/world"
)

type fakeWorld struct {
	loaded  map[[2]int]bool
	edits   []world.Edit
	flushed int
}

func (f *fakeWorld) Stats() world.Stats { return world.Stats{Chunks: len(f.loaded), LastSequenceID: 3} }

func (f *fakeWorld) Status(cx, cz int) world.ChunkStatus {
	return world.ChunkStatus{Name: "x", Loaded: f.loaded[[2]int{cx, cz}], Ready: true}
}

func (f *fakeWorld) RequestChunk(_ context.Context, cx, cz int) error {
	if cx > 10 {
		return world.ErrOutsideWorld
	}
	f.loaded[[2]int{cx, cz}] = true
	return nil
}

func (f *fakeWorld) Unload(_ context.Context, cx, cz int) error {
	delete(f.loaded, [2]int{cx, cz})
	return nil
}

func (f *fakeWorld) VoxelAt(vx, vy, vz int) (uint32, error) {
	if vx < 0 {
		return 0, world.ErrChunkNotLoaded
	}
	return voxel.Pack(7, voxel.Rotation{}, 2), nil
}

func (f *fakeWorld) LightAt(vx, vy, vz int) ([4]uint32, error) {
	return [4]uint32{15, 3, 0, 1}, nil
}

func (f *fakeWorld) UpdateVoxel(_ context.Context, vx, vy, vz int, e world.Edit) (voxel.Delta, error) {
	if vy > 100 {
		return voxel.Delta{}, world.ErrOutOfBounds
	}
	if vx == 99 {
		return voxel.Delta{}, world.ErrChunkBusy
	}
	f.edits = append(f.edits, e)
	return voxel.Delta{Coords: [3]int{vx, vy, vz}, NewVoxel: e.ID, SequenceID: uint64(len(f.edits))}, nil
}

func (f *fakeWorld) FlushLightUpdates(context.Context) (int, error) {
	f.flushed++
	return 2, nil
}

func newTestServer(t *testing.T) (*RestServer, *fakeWorld) {
	t.Helper()
	fw := &fakeWorld{loaded: make(map[[2]int]bool)}
	reg := prometheus.NewRegistry()
	return NewRestServer(Config{World: fw, Registerer: reg, Gatherer: reg}), fw
}

func do(t *testing.T, rs *RestServer, method, path string, body any) (*httptest.ResponseRecorder, GenericResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	rs.Handler().ServeHTTP(w, req)

	var resp GenericResponse
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestHealthAndMetrics(t *testing.T) {
	rs, _ := newTestServer(t)

	w, _ := do(t, rs, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w, _ = do(t, rs, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "voxel_admin_http_request_duration_seconds")
}

func TestChunkLifecycle(t *testing.T) {
	rs, fw := newTestServer(t)

	w, _ := do(t, rs, http.MethodGet, "/api/chunks/1|2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, resp := do(t, rs, http.MethodPost, "/api/chunks/1|2", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, resp.Success)
	assert.True(t, fw.loaded[[2]int{1, 2}])

	w, _ = do(t, rs, http.MethodGet, "/api/chunks/1|2", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, rs, http.MethodPost, "/api/chunks/50|0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, rs, http.MethodGet, "/api/chunks/oops", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, rs, http.MethodDelete, "/api/chunks/1|2", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, fw.loaded)

	w, resp = do(t, rs, http.MethodGet, "/api/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), resp.Data.(map[string]interface{})["lastSequenceId"])
}

func TestGetVoxel(t *testing.T) {
	rs, _ := newTestServer(t)

	w, resp := do(t, rs, http.MethodGet, "/api/voxels?x=1&y=2&z=3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(7), data["id"])
	assert.Equal(t, float64(2), data["stage"])
	light := data["light"].(map[string]interface{})
	assert.Equal(t, float64(15), light["SUNLIGHT"])
	assert.Equal(t, float64(3), light["RED"])
	assert.Equal(t, float64(1), light["BLUE"])

	w, _ = do(t, rs, http.MethodGet, "/api/voxels?x=-1&y=2&z=3", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, rs, http.MethodGet, "/api/voxels?x=a&y=2&z=3", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateVoxelAndFlush(t *testing.T) {
	rs, fw := newTestServer(t)

	stage := uint32(4)
	w, resp := do(t, rs, http.MethodPost, "/api/voxels", VoxelRequest{X: 1, Y: 2, Z: 3, ID: 54, Stage: &stage})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	require.Len(t, fw.edits, 1)
	assert.Equal(t, uint32(54), fw.edits[0].ID)
	assert.Equal(t, uint32(4), *fw.edits[0].Stage)

	w, _ = do(t, rs, http.MethodPost, "/api/voxels", VoxelRequest{X: 1, Y: 500})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = do(t, rs, http.MethodPost, "/api/voxels", VoxelRequest{X: 99, Y: 1})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, resp = do(t, rs, http.MethodPost, "/api/light/flush", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), resp.Data.(map[string]interface{})["jobs"])
	assert.Equal(t, 1, fw.flushed)
}
