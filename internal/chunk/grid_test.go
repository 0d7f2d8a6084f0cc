package chunk

import (
	"testing"

	"github.com/annel0/voxel-light/internal/voxel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallOptions() Options {
	return Options{Size: 4, MaxHeight: 8, MaxLightLevel: 15, SubChunks: 1}
}

func TestGrid_EmptyUntilAllocated(t *testing.T) {
	g := New(1, -1, smallOptions())

	assert.False(t, g.IsReady())
	assert.Equal(t, "1|-1", g.Name)
	assert.False(t, g.SetVoxel(4, 0, -4, 1))
	assert.Equal(t, uint32(0), g.GetVoxel(4, 0, -4))

	g.Allocate()
	assert.True(t, g.IsReady())
	assert.Len(t, g.Voxels, 4*8*4)
}

func TestGrid_ContainsFillsLocalBuffer(t *testing.T) {
	g := New(-1, 2, smallOptions())

	require.True(t, g.Contains(-1, 3, 9))
	lx, ly, lz := g.Local()
	assert.Equal(t, [3]int{3, 3, 1}, [3]int{lx, ly, lz})

	assert.False(t, g.Contains(0, 3, 9))
	assert.False(t, g.Contains(-1, 8, 9))
	assert.False(t, g.Contains(-1, -1, 9))
}

func TestGrid_IndexLayout(t *testing.T) {
	g := New(0, 0, smallOptions())
	g.Allocate()

	require.True(t, g.SetRawVoxel(1, 2, 3, 77))
	assert.Equal(t, uint32(77), g.Voxels[1*(4*8)+2*4+3])
}

func TestGrid_Accessors(t *testing.T) {
	g := New(0, 0, smallOptions())
	g.Allocate()

	g.SetVoxel(1, 1, 1, 5)
	g.SetVoxelRotation(1, 1, 1, voxel.Rotation{Axis: voxel.PZ, YRotation: 2})
	g.SetVoxelStage(1, 1, 1, 3)

	assert.Equal(t, uint32(5), g.GetVoxel(1, 1, 1))
	assert.Equal(t, voxel.Rotation{Axis: voxel.PZ, YRotation: 2}, g.GetVoxelRotation(1, 1, 1))
	assert.Equal(t, uint32(3), g.GetVoxelStage(1, 1, 1))

	g.SetSunlight(1, 1, 1, 12)
	g.SetTorchLight(1, 1, 1, 7, voxel.Green)
	assert.Equal(t, uint32(12), g.GetSunlight(1, 1, 1))
	assert.Equal(t, uint32(7), g.GetTorchLight(1, 1, 1, voxel.Green))
	assert.Equal(t, uint32(0), g.GetTorchLight(1, 1, 1, voxel.Red))
}

func TestGrid_SunlightDefaults(t *testing.T) {
	g := New(0, 0, smallOptions())
	g.Allocate()

	assert.Equal(t, uint32(15), g.GetSunlight(0, 8, 0))
	assert.Equal(t, uint32(15), g.GetSunlight(0, 100, 0))
	assert.Equal(t, uint32(0), g.GetSunlight(0, -1, 0))
	assert.Equal(t, uint32(0), g.GetSunlight(10, 2, 0))
}

func TestGrid_TorchOnSunlightPanics(t *testing.T) {
	g := New(0, 0, smallOptions())
	g.Allocate()

	assert.Panics(t, func() { g.GetTorchLight(0, 0, 0, voxel.Sunlight) })
	assert.Panics(t, func() { g.SetTorchLight(0, 0, 0, 1, voxel.Sunlight) })
}

func TestGrid_CloneIsIndependent(t *testing.T) {
	g := New(0, 0, smallOptions())
	g.Allocate()
	g.SetVoxel(0, 0, 0, 1)

	c := g.Clone()
	c.SetVoxel(0, 0, 0, 2)

	assert.Equal(t, uint32(1), g.GetVoxel(0, 0, 0))
	assert.Equal(t, uint32(2), c.GetVoxel(0, 0, 0))
}

func TestGrid_MergeLightsTakesMaxPerChannel(t *testing.T) {
	g := New(0, 0, smallOptions())
	g.Allocate()
	g.SetSunlight(0, 0, 0, 10)
	g.SetTorchLight(0, 0, 0, 2, voxel.Red)

	other := g.Clone()
	other.SetSunlight(0, 0, 0, 4)
	other.SetTorchLight(0, 0, 0, 9, voxel.Red)

	g.MergeLights(other.Lights)

	assert.Equal(t, uint32(10), g.GetSunlight(0, 0, 0))
	assert.Equal(t, uint32(9), g.GetTorchLight(0, 0, 0, voxel.Red))
}

func TestGrid_MergeRaisedKeepsLoweredCells(t *testing.T) {
	g := New(0, 0, smallOptions())
	g.Allocate()
	g.SetTorchLight(0, 0, 0, 8, voxel.Red)
	base := append([]uint32(nil), g.Lights...)

	processed := g.Clone()
	processed.SetTorchLight(0, 0, 1, 5, voxel.Green)

	// живой свет снят после копирования
	g.SetTorchLight(0, 0, 0, 0, voxel.Red)
	g.MergeRaised(base, processed.Lights)

	assert.Equal(t, uint32(0), g.GetTorchLight(0, 0, 0, voxel.Red))
	assert.Equal(t, uint32(5), g.GetTorchLight(0, 0, 1, voxel.Green))
}

func TestGrid_ReplaceChannel(t *testing.T) {
	g := New(0, 0, smallOptions())
	g.Allocate()
	g.SetSunlight(0, 0, 0, 10)
	g.SetTorchLight(0, 0, 0, 5, voxel.Blue)

	other := g.Clone()
	other.SetSunlight(0, 0, 0, 3)
	other.SetTorchLight(0, 0, 0, 1, voxel.Blue)

	require.True(t, g.ReplaceChannel(other.Lights, voxel.Sunlight))
	assert.Equal(t, uint32(3), g.GetSunlight(0, 0, 0))
	assert.Equal(t, uint32(5), g.GetTorchLight(0, 0, 0, voxel.Blue))
}

func TestSerialize_RoundTrip(t *testing.T) {
	g := New(2, -3, smallOptions())
	g.Allocate()
	g.SetVoxel(8, 4, -12, 9)
	g.SetSunlight(8, 4, -12, 6)

	s := g.Serialize()
	assert.Len(t, s.Voxels, 4*8*4*4)

	back, err := Deserialize(s)
	require.NoError(t, err)
	assert.Equal(t, g.Coords, back.Coords)
	assert.Equal(t, uint32(9), back.GetVoxel(8, 4, -12))
	assert.Equal(t, uint32(6), back.GetSunlight(8, 4, -12))
}

func TestSerialize_EmptyAndBadBuffers(t *testing.T) {
	empty := New(0, 0, smallOptions()).Serialize()
	g, err := Deserialize(empty)
	require.NoError(t, err)
	assert.False(t, g.IsReady())

	bad := &Serialized{Options: smallOptions(), Voxels: make([]byte, 12)}
	_, err = Deserialize(bad)
	assert.ErrorIs(t, err, ErrBufferSize)
}

func TestHeightMap(t *testing.T) {
	g := New(0, 0, smallOptions())
	g.Allocate()
	g.SetVoxel(1, 5, 2, 1)
	g.SetVoxel(1, 2, 2, 1)

	g.ComputeHeightMap(func(id uint32) bool { return id == 0 })

	assert.Equal(t, uint32(5), g.MaxHeightAt(1, 2))
	assert.Equal(t, uint32(0), g.MaxHeightAt(0, 0))
	assert.Equal(t, uint32(7), g.MaxHeightAt(50, 50))
}
