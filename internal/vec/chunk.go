package vec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ChunkNameSep разделитель координат в имени чанка.
const ChunkNameSep = "|"

// ErrMalformedName возвращается, если имя чанка не разбирается в координаты.
var ErrMalformedName = errors.New("malformed chunk name")

// FloorDiv делит с округлением вниз (для отрицательных координат).
func FloorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// FloorMod остаток, всегда неотрицательный для b > 0.
func FloorMod(a, b int) int {
	m := a % b
	if m != 0 && ((m < 0) != (b < 0)) {
		m += b
	}
	return m
}

// ToChunkCoords переводит мировые координаты вокселя в координаты чанка.
func ToChunkCoords(vx, vz, chunkSize int) Vec2 {
	return Vec2{X: FloorDiv(vx, chunkSize), Z: FloorDiv(vz, chunkSize)}
}

// ChunkName формирует имя чанка "cx|cz".
func ChunkName(c Vec2) string {
	return strconv.Itoa(c.X) + ChunkNameSep + strconv.Itoa(c.Z)
}

// ParseChunkName разбирает имя "cx|cz".
func ParseChunkName(name string) (Vec2, error) {
	xs, zs, ok := strings.Cut(name, ChunkNameSep)
	if !ok {
		return Vec2{}, fmt.Errorf("%w: %q", ErrMalformedName, name)
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return Vec2{}, fmt.Errorf("%w: %q", ErrMalformedName, name)
	}
	z, err := strconv.Atoi(strings.TrimSpace(zs))
	if err != nil {
		return Vec2{}, fmt.Errorf("%w: %q", ErrMalformedName, name)
	}
	return Vec2{X: x, Z: z}, nil
}

// VoxelName формирует имя вокселя "x|y|z".
func VoxelName(v Vec3) string {
	return strconv.Itoa(v.X) + ChunkNameSep + strconv.Itoa(v.Y) + ChunkNameSep + strconv.Itoa(v.Z)
}
