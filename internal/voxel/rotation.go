package voxel

// Axis задаёт направление, в которое смотрит верх блока.
type Axis uint8

const (
	PY Axis = iota
	NY
	PX
	NX
	PZ
	NZ
)

// YRotationSegments число дискретных поворотов вокруг оси блока.
const YRotationSegments = 16

// Порядок граней в массивах прозрачности: [px, py, pz, nx, ny, nz].
const (
	FacePX = iota
	FacePY
	FacePZ
	FaceNX
	FaceNY
	FaceNZ
)

// FaceNormals нормали граней в порядке массивов прозрачности.
var FaceNormals = [6][3]int{
	{1, 0, 0},
	{0, 1, 0},
	{0, 0, 1},
	{-1, 0, 0},
	{0, -1, 0},
	{0, 0, -1},
}

// Rotation ориентация блока: ось и поворот вокруг неё.
type Rotation struct {
	Axis      Axis  `json:"value" yaml:"axis"`
	YRotation uint8 `json:"yRotation" yaml:"yRotation"`
}

// IsIdentity сообщает, что блок не повёрнут.
func (r Rotation) IsIdentity() bool {
	return r.Axis == PY && r.quarterTurns() == 0
}

// quarterTurns округляет y-поворот до ближайшей четверти оборота.
func (r Rotation) quarterTurns() int {
	return ((int(r.YRotation&0xf) + 2) / 4) % 4
}

// RotateVector поворачивает целочисленный вектор: сначала вокруг Y, затем по оси.
func (r Rotation) RotateVector(v [3]int) [3]int {
	for i := 0; i < r.quarterTurns(); i++ {
		// поворот на 90° вокруг Y: (x, z) -> (z, -x)
		v = [3]int{v[2], v[1], -v[0]}
	}

	switch r.Axis {
	case NY:
		// 180° вокруг X
		v = [3]int{v[0], -v[1], -v[2]}
	case PX:
		// -90° вокруг Z: верх смотрит в +X
		v = [3]int{v[1], -v[0], v[2]}
	case NX:
		// +90° вокруг Z: верх смотрит в -X
		v = [3]int{-v[1], v[0], v[2]}
	case PZ:
		// +90° вокруг X: верх смотрит в +Z
		v = [3]int{v[0], -v[2], v[1]}
	case NZ:
		// -90° вокруг X: верх смотрит в -Z
		v = [3]int{v[0], v[2], -v[1]}
	}
	return v
}

// RotateTransparency переносит прозрачность граней из локальной системы блока в мировую.
func (r Rotation) RotateTransparency(t [6]bool) [6]bool {
	if r.IsIdentity() {
		return t
	}

	var out [6]bool
	for face, normal := range FaceNormals {
		out[FaceIndex(r.RotateVector(normal))] = t[face]
	}
	return out
}

// FaceIndex возвращает индекс грани для единичной нормали.
func FaceIndex(n [3]int) int {
	switch {
	case n[0] > 0:
		return FacePX
	case n[0] < 0:
		return FaceNX
	case n[1] > 0:
		return FacePY
	case n[1] < 0:
		return FaceNY
	case n[2] > 0:
		return FacePZ
	default:
		return FaceNZ
	}
}
