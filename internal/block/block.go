package block

import "github.com/annel0/voxel-light/internal/voxel"

// BlockID представляет идентификатор блока
type BlockID uint16

// Константы ID встроенных блоков
const (
	AirBlockID   BlockID = iota // 0
	StoneBlockID                // 1
	GrassBlockID                // 2
	WaterBlockID                // 3
	SandBlockID                 // 4
	DirtBlockID                 // 5
	GlassBlockID                // 6
	LeavesBlockID               // 7

	// Источники света (начиная с 50)
	GlowstoneBlockID BlockID = 50
	RedLampBlockID   BlockID = 51
	GreenLampBlockID BlockID = 52
	BlueLampBlockID  BlockID = 53
	TorchBlockID     BlockID = 54
)

// Block описывает свойства блока, нужные освещению и мешингу.
// Порядок граней IsTransparent: [px, py, pz, nx, ny, nz].
type Block struct {
	ID              BlockID          `yaml:"id" json:"id"`
	Name            string           `yaml:"name" json:"name"`
	IsTransparent   [6]bool          `yaml:"isTransparent" json:"isTransparent"`
	IsOpaque        bool             `yaml:"-" json:"isOpaque"`
	IsLight         bool             `yaml:"-" json:"isLight"`
	LightReduce     bool             `yaml:"lightReduce" json:"lightReduce"`
	RedLightLevel   uint32           `yaml:"redLightLevel" json:"redLightLevel"`
	GreenLightLevel uint32           `yaml:"greenLightLevel" json:"greenLightLevel"`
	BlueLightLevel  uint32           `yaml:"blueLightLevel" json:"blueLightLevel"`
	IsFluid         bool             `yaml:"isFluid" json:"isFluid"`
	Rotatable       bool             `yaml:"rotatable" json:"rotatable"`
	DynamicPatterns []DynamicPattern `yaml:"dynamicPatterns,omitempty" json:"dynamicPatterns,omitempty"`
}

// allTransparent прозрачность воздуха
var allTransparent = [6]bool{true, true, true, true, true, true}

// Air возвращает блок воздуха по умолчанию
func Air() Block {
	return Block{ID: AirBlockID, Name: "air", IsTransparent: allTransparent}
}

// recomputeFlags выводит IsOpaque и IsLight из остальных полей
func (b *Block) recomputeFlags() {
	b.IsOpaque = true
	for _, t := range b.IsTransparent {
		if t {
			b.IsOpaque = false
			break
		}
	}
	b.IsLight = b.RedLightLevel > 0 || b.GreenLightLevel > 0 || b.BlueLightLevel > 0
}

// RotatedTransparency возвращает прозрачность граней с учётом поворота
func (b *Block) RotatedTransparency(r voxel.Rotation) [6]bool {
	return r.RotateTransparency(b.IsTransparent)
}

// TorchLightLevel возвращает статический уровень цветного света. Для солнца 0.
func (b *Block) TorchLightLevel(c voxel.LightColor) uint32 {
	switch c {
	case voxel.Red:
		return b.RedLightLevel
	case voxel.Green:
		return b.GreenLightLevel
	case voxel.Blue:
		return b.BlueLightLevel
	}
	return 0
}

// TorchLightLevelAt учитывает динамические паттерны: первая сработавшая
// часть, задающая уровень для цвета, перекрывает статический уровень.
func (b *Block) TorchLightLevelAt(pos [3]int, space VoxelReader, c voxel.LightColor) uint32 {
	for _, pattern := range b.DynamicPatterns {
		for _, part := range pattern.Parts {
			if !part.Rule.Evaluate(pos, space) {
				continue
			}
			if c == voxel.Sunlight {
				return 0
			}
			if level := part.level(c); level != nil {
				return *level
			}
		}
	}
	return b.TorchLightLevel(c)
}
