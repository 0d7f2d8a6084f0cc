package voxel

// Раскладка ячейки вокселя (32 бита):
// id:16 | rotation:4 | yRotation:4 | stage:4 | reserved:4
const (
	idMask        uint32 = 0xffff
	rotationMask  uint32 = 0xfff0ffff
	yRotationMask uint32 = 0xff0fffff
	stageMask     uint32 = 0xf0ffffff
)

// ExtractID возвращает идентификатор блока из ячейки вокселя.
func ExtractID(v uint32) uint32 {
	return v & idMask
}

// InsertID записывает идентификатор блока, не затрагивая остальные поля.
func InsertID(v, id uint32) uint32 {
	return (v &^ idMask) | (id & idMask)
}

// ExtractRotation распаковывает ось и поворот вокруг оси.
func ExtractRotation(v uint32) Rotation {
	return Rotation{
		Axis:      Axis((v >> 16) & 0xf),
		YRotation: uint8((v >> 20) & 0xf),
	}
}

// InsertRotation упаковывает ось и y-поворот. Значения обрезаются до 4 бит.
func InsertRotation(v uint32, r Rotation) uint32 {
	value := (v & rotationMask) | ((uint32(r.Axis) & 0xf) << 16)
	return (value & yRotationMask) | ((uint32(r.YRotation) & 0xf) << 20)
}

// ExtractStage возвращает стадию роста блока.
func ExtractStage(v uint32) uint32 {
	return (v >> 24) & 0xf
}

// InsertStage записывает стадию. Значения больше 15 переполняются по модулю 16.
func InsertStage(v, stage uint32) uint32 {
	return (v & stageMask) | ((stage & 0xf) << 24)
}

// Pack собирает ячейку из всех полей сразу.
func Pack(id uint32, r Rotation, stage uint32) uint32 {
	return InsertStage(InsertRotation(InsertID(0, id), r), stage)
}

// Раскладка ячейки света: sunlight:4 | red:4 | green:4 | blue:4.

func ExtractSunlight(l uint32) uint32 { return (l >> 12) & 0xf }

func InsertSunlight(l, level uint32) uint32 { return (l & 0x0fff) | ((level & 0xf) << 12) }

func ExtractRedLight(l uint32) uint32 { return (l >> 8) & 0xf }

func InsertRedLight(l, level uint32) uint32 { return (l & 0xf0ff) | ((level & 0xf) << 8) }

func ExtractGreenLight(l uint32) uint32 { return (l >> 4) & 0xf }

func InsertGreenLight(l, level uint32) uint32 { return (l & 0xff0f) | ((level & 0xf) << 4) }

func ExtractBlueLight(l uint32) uint32 { return l & 0xf }

func InsertBlueLight(l, level uint32) uint32 { return (l & 0xfff0) | (level & 0xf) }

// ExtractLight читает канал света по цвету.
func ExtractLight(l uint32, c LightColor) uint32 {
	switch c {
	case Sunlight:
		return ExtractSunlight(l)
	case Red:
		return ExtractRedLight(l)
	case Green:
		return ExtractGreenLight(l)
	case Blue:
		return ExtractBlueLight(l)
	}
	panic(unknownColor(c))
}

// InsertLight записывает канал света по цвету.
func InsertLight(l, level uint32, c LightColor) uint32 {
	switch c {
	case Sunlight:
		return InsertSunlight(l, level)
	case Red:
		return InsertRedLight(l, level)
	case Green:
		return InsertGreenLight(l, level)
	case Blue:
		return InsertBlueLight(l, level)
	}
	panic(unknownColor(c))
}
