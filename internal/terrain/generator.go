// Package terrain генерирует тестовый ландшафт чанков из шума Перлина.
package terrain

import (
	"math/rand"

	"github.com/annel0/voxel-light/internal/block"
	"github.com/annel0/voxel-light/internal/chunk"
)

// BiomeType представляет тип биома
type BiomeType int

const (
	BiomePlains BiomeType = iota
	BiomeDesert
	BiomeForest
	BiomeMountains
	BiomeWater
)

// Константы высот для генерации (доля от высоты мира)
const (
	WaterLevel    = 0.30 // Ниже - вода
	MountainStart = 0.70 // Выше - горы
)

// Config параметры генератора
type Config struct {
	Seed          int64   `yaml:"seed"`
	NoiseScale    float64 `yaml:"noiseScale"`    // Масштаб основного шума (высота)
	BiomeScale    float64 `yaml:"biomeScale"`    // Масштаб шума биомов
	BaseHeight    float64 `yaml:"baseHeight"`    // Доля высоты мира под ландшафт
	LampDensity   float64 `yaml:"lampDensity"`   // Шанс светящегося блока на поверхности
	ForestDensity float64 `yaml:"forestDensity"` // Шанс листвы на равнинах
}

// DefaultConfig настройки по умолчанию
func DefaultConfig() Config {
	return Config{
		Seed:          1337,
		NoiseScale:    0.02,
		BiomeScale:    0.01,
		BaseHeight:    0.5,
		LampDensity:   0.002,
		ForestDensity: 0.05,
	}
}

// Generator заполняет воксели чанка
type Generator struct {
	cfg    Config
	height *Noise
	biome  *Noise
}

// NewGenerator создаёт генератор мира
func NewGenerator(cfg Config) *Generator {
	return &Generator{
		cfg:    cfg,
		height: NewNoise(cfg.Seed),
		biome:  NewNoise(cfg.Seed + 42),
	}
}

// Config настройки генератора
func (g *Generator) Config() Config { return g.cfg }

// Generate заполняет воксели чанка. Результат детерминирован по сиду и координатам.
func (g *Generator) Generate(c *chunk.Grid) {
	c.Allocate()

	size := c.Options.Size
	maxHeight := c.Options.MaxHeight
	chunkSeed := g.cfg.Seed + int64(c.Coords.X*31) + int64(c.Coords.Z*17)
	rng := rand.New(rand.NewSource(chunkSeed))

	water := int(float64(maxHeight) * WaterLevel * g.cfg.BaseHeight * 2)

	for lx := 0; lx < size; lx++ {
		for lz := 0; lz < size; lz++ {
			vx, vz := c.Min.X+lx, c.Min.Z+lz

			h := g.height.At2D(float64(vx)*g.cfg.NoiseScale, float64(vz)*g.cfg.NoiseScale)
			b := g.biome.At2D(float64(vx)*g.cfg.BiomeScale, float64(vz)*g.cfg.BiomeScale)
			biome := biomeFor(h, b)

			top := int(h * float64(maxHeight) * g.cfg.BaseHeight)
			if top >= maxHeight {
				top = maxHeight - 1
			}

			for vy := 0; vy <= top; vy++ {
				c.SetVoxel(vx, vy, vz, uint32(columnBlock(biome, vy, top)))
			}
			for vy := top + 1; vy <= water && vy < maxHeight; vy++ {
				c.SetVoxel(vx, vy, vz, uint32(block.WaterBlockID))
			}

			above := top + 1
			if above >= maxHeight || above <= water {
				continue
			}

			// Объекты на поверхности
			switch {
			case rng.Float64() < g.cfg.LampDensity:
				c.SetVoxel(vx, above, vz, uint32(block.GlowstoneBlockID))
			case biome == BiomeForest && rng.Float64() < 0.15:
				g.placeLeaves(c, vx, above, vz, rng)
			case biome == BiomePlains && rng.Float64() < g.cfg.ForestDensity:
				g.placeLeaves(c, vx, above, vz, rng)
			}
		}
	}
}

// placeLeaves ставит столбик листвы высотой 2-4 блока
func (g *Generator) placeLeaves(c *chunk.Grid, vx, vy, vz int, rng *rand.Rand) {
	n := 2 + rng.Intn(3)
	for i := 0; i < n && vy+i < c.Options.MaxHeight; i++ {
		c.SetVoxel(vx, vy+i, vz, uint32(block.LeavesBlockID))
	}
}

// columnBlock блок колонки на высоте vy при вершине top
func columnBlock(biome BiomeType, vy, top int) block.BlockID {
	if vy < top-3 {
		return block.StoneBlockID
	}
	switch biome {
	case BiomeDesert, BiomeWater:
		return block.SandBlockID
	case BiomeMountains:
		return block.StoneBlockID
	}
	if vy == top {
		return block.GrassBlockID
	}
	return block.DirtBlockID
}

// biomeFor определяет тип биома на основе значений шума
func biomeFor(height, biomeValue float64) BiomeType {
	if height < WaterLevel {
		return BiomeWater
	}
	if height > MountainStart {
		return BiomeMountains
	}
	if biomeValue < 0.35 {
		return BiomeDesert
	} else if biomeValue > 0.65 {
		return BiomeForest
	}
	return BiomePlains
}
