package vec

// Vec3 представляет трехмерный вектор с целочисленными координатами
type Vec3 struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
	Z int `json:"z" yaml:"z"`
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// XZ отбрасывает высоту
func (v Vec3) XZ() Vec2 {
	return Vec2{X: v.X, Z: v.Z}
}

// Array возвращает координаты массивом [x, y, z]
func (v Vec3) Array() [3]int {
	return [3]int{v.X, v.Y, v.Z}
}

// FromArray создает Vec3 из массива [x, y, z]
func FromArray(a [3]int) Vec3 {
	return Vec3{X: a[0], Y: a[1], Z: a[2]}
}

// Key упаковывает координаты вокселя в int64: x и z по 21 биту, y 22 бита.
// Однозначно для x, z из [-2^20, 2^20) и 0 <= y < 2^22.
func (v Vec3) Key() int64 {
	return int64(uint64(v.X&0x1fffff)<<43 | uint64(v.Y&0x3fffff)<<21 | uint64(v.Z&0x1fffff))
}
