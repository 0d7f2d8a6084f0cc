package light

import (
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/voxel"
)

// Propagate выполняет первичное освещение области [min, min+shape) по XZ.
// Проход идёт сверху вниз с маской солнечного света на колонку; источники
// факельного света записываются сразу. Возвращает очереди для Flood.
func (e *Engine) Propagate(space Access, min, shape vec.Vec3) Queues {
	var queues Queues

	shapeX, shapeZ := shape.X, shape.Z
	if shapeX <= 0 || shapeZ <= 0 {
		return queues
	}
	maxLevel := e.params.MaxLightLevel

	mask := make([]uint32, shapeX*shapeZ)
	for i := range mask {
		mask[i] = maxLevel
	}

	for y := e.params.MaxHeight - 1; y >= 0; y-- {
		for x := 0; x < shapeX; x++ {
			for z := 0; z < shapeZ; z++ {
				vx, vz := x+min.X, z+min.Z
				pos := [3]int{vx, y, vz}
				b := e.registry.Get(space.GetVoxel(vx, y, vz))

				for _, c := range voxel.TorchColors {
					if level := b.TorchLightLevelAt(pos, space, c); level > 0 {
						space.SetLight(vx, y, vz, level, c)
						queues[c] = append(queues[c], Node{Voxel: vec.FromArray(pos), Level: level})
					}
				}

				mi := x + z*shapeX
				t := b.RotatedTransparency(space.GetVoxelRotation(vx, y, vz))

				if b.IsOpaque || !t[voxel.FacePY] || !t[voxel.FaceNY] {
					mask[mi] = 0
					continue
				}

				if b.LightReduce {
					if mask[mi] != 0 {
						sun := mask[mi] - 1
						space.SetLight(vx, y, vz, sun, voxel.Sunlight)
						queues[voxel.Sunlight] = append(queues[voxel.Sunlight], Node{Voxel: vec.FromArray(pos), Level: sun})
						mask[mi] = 0
					}
					continue
				}

				space.SetLight(vx, y, vz, mask[mi], voxel.Sunlight)

				if mask[mi] != maxLevel {
					continue
				}

				// край освещенной колонки рядом с затененной: источник боковой заливки
				edge := (x < shapeX-1 && mask[mi+1] == 0 && t[voxel.FacePX]) ||
					(x > 0 && mask[mi-1] == 0 && t[voxel.FaceNX]) ||
					(z < shapeZ-1 && mask[mi+shapeX] == 0 && t[voxel.FacePZ]) ||
					(z > 0 && mask[mi-shapeX] == 0 && t[voxel.FaceNZ])
				if edge {
					queues[voxel.Sunlight] = append(queues[voxel.Sunlight], Node{Voxel: vec.FromArray(pos), Level: maxLevel})
				}
			}
		}
	}
	return queues
}

// FloodAll заливает все очереди Propagate
func (e *Engine) FloodAll(space Access, queues Queues, bounds *Bounds) {
	for _, c := range voxel.Colors {
		e.Flood(space, queues[c], c, bounds)
	}
}
