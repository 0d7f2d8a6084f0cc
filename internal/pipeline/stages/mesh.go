package stages

import (
	"context"

	"github.com/annel0/voxel-light/internal/block"
	"github.com/annel0/voxel-light/internal/chunk"
	"github.com/annel0/voxel-light/internal/pipeline"
	"github.com/annel0/voxel-light/internal/space"
	"github.com/annel0/voxel-light/internal/voxel"
)

// Mesh строит список видимых граней со светом соседей
type Mesh struct {
	registry *block.Registry
	world    World
}

func NewMesh(r *block.Registry, world World) *Mesh {
	return &Mesh{registry: r, world: world}
}

func (s *Mesh) Name() string { return MeshName }

func (s *Mesh) NeighborRadius() int { return 1 }

func (s *Mesh) Check(c *chunk.Grid) bool {
	return c.IsReady() && neighborsReady(s.world, c, 1)
}

// opposite грань соседа, которая смотрит на текущий воксель
var opposite = [6]int{voxel.FaceNX, voxel.FaceNY, voxel.FaceNZ, voxel.FacePX, voxel.FacePY, voxel.FacePZ}

func (s *Mesh) Process(ctx context.Context, task *pipeline.Task) error {
	c := task.Chunk
	view := space.Around(c, task.Neighbors, 1)
	size := c.Options.Size

	faces := make([]chunk.Face, 0)
	for lx := 0; lx < size; lx++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for lz := 0; lz < size; lz++ {
			vx, vz := c.Min.X+lx, c.Min.Z+lz
			top := int(c.MaxHeightAt(vx, vz))

			for vy := top; vy >= 0; vy-- {
				id := c.GetVoxel(vx, vy, vz)
				b := s.registry.Get(id)
				if b.ID == block.AirBlockID {
					continue
				}

				for face, n := range voxel.FaceNormals {
					nx, ny, nz := vx+n[0], vy+n[1], vz+n[2]
					if ny < 0 {
						continue
					}
					nid := view.GetVoxel(nx, ny, nz)
					nb := s.registry.Get(nid)
					nt := nb.RotatedTransparency(view.GetVoxelRotation(nx, ny, nz))

					if !nt[opposite[face]] || (nid == id && !b.IsOpaque) || (nb.IsFluid && b.IsFluid) {
						continue
					}
					faces = append(faces, chunk.Face{
						X: int32(vx), Y: int32(vy), Z: int32(vz),
						Dir:   uint8(face),
						Block: id,
						Light: view.GetRawLight(nx, ny, nz),
					})
				}
			}
		}
	}
	c.Mesh = faces
	return nil
}
