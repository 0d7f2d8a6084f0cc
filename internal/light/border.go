package light

import (
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/voxel"
)

// SeedFromBorder собирает освещённые воксели сразу за границей области
// [min, min+shape) по XZ. Заливка из них переносит свет уже освещённых
// соседей внутрь области.
func (e *Engine) SeedFromBorder(space Access, min, shape vec.Vec3) Queues {
	var queues Queues

	add := func(vx, vz int) {
		for vy := 0; vy < e.params.MaxHeight; vy++ {
			for _, c := range voxel.Colors {
				if level := space.GetLight(vx, vy, vz, c); level > 1 {
					queues[c] = append(queues[c], Node{Voxel: vec.Vec3{X: vx, Y: vy, Z: vz}, Level: level})
				}
			}
		}
	}

	for x := min.X; x < min.X+shape.X; x++ {
		add(x, min.Z-1)
		add(x, min.Z+shape.Z)
	}
	for z := min.Z; z < min.Z+shape.Z; z++ {
		add(min.X-1, z)
		add(min.X+shape.X, z)
	}
	return queues
}

// Merge дописывает очереди other в q
func (q *Queues) Merge(other Queues) {
	for c := range q {
		q[c] = append(q[c], other[c]...)
	}
}
