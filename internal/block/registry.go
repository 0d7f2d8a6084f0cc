package block

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Registry неизменяемый снимок определений блоков. После создания
// безопасен для одновременного чтения из любых воркеров.
type Registry struct {
	blocks   []Block
	dense    []int
	airIndex int
	fallback Block
}

// NewRegistry строит снимок. Флаги IsOpaque и IsLight пересчитываются.
// Повторяющиеся ID: выигрывает последнее определение.
func NewRegistry(blocks []Block) *Registry {
	byID := make(map[BlockID]Block, len(blocks))
	for _, b := range blocks {
		b.recomputeFlags()
		byID[b.ID] = b
	}

	r := &Registry{airIndex: -1, fallback: Air()}
	r.fallback.recomputeFlags()

	maxID := 0
	for id := range byID {
		if int(id) > maxID {
			maxID = int(id)
		}
	}

	r.blocks = make([]Block, 0, len(byID))
	for _, b := range byID {
		r.blocks = append(r.blocks, b)
	}
	sort.Slice(r.blocks, func(i, j int) bool { return r.blocks[i].ID < r.blocks[j].ID })

	r.dense = make([]int, maxID+1)
	for i := range r.dense {
		r.dense[i] = -1
	}
	for i, b := range r.blocks {
		r.dense[b.ID] = i
		if b.ID == AirBlockID {
			r.airIndex = i
		}
	}
	return r
}

// Get возвращает блок по ID. Неизвестные ID разрешаются в воздух.
func (r *Registry) Get(id uint32) *Block {
	if id < uint32(len(r.dense)) {
		if idx := r.dense[id]; idx >= 0 {
			return &r.blocks[idx]
		}
	}
	if r.airIndex >= 0 {
		return &r.blocks[r.airIndex]
	}
	return &r.fallback
}

// Has проверяет, зарегистрирован ли ID
func (r *Registry) Has(id uint32) bool {
	return id < uint32(len(r.dense)) && r.dense[id] >= 0
}

// Blocks возвращает копию всех определений, отсортированных по ID
func (r *Registry) Blocks() []Block {
	out := make([]Block, len(r.blocks))
	copy(out, r.blocks)
	return out
}

// Len число зарегистрированных блоков
func (r *Registry) Len() int {
	return len(r.blocks)
}

type registryFile struct {
	Blocks []Block `yaml:"blocks"`
}

// LoadRegistry читает определения блоков из YAML файла
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения реестра блоков %s: %w", path, err)
	}
	return ParseRegistry(data)
}

// ParseRegistry разбирает YAML с определениями блоков
func ParseRegistry(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("ошибка разбора реестра блоков: %w", err)
	}
	return NewRegistry(file.Blocks), nil
}

// Default встроенный набор блоков
func Default() *Registry {
	solid := [6]bool{}
	lamp := func(id BlockID, name string, r, g, b uint32) Block {
		return Block{ID: id, Name: name, IsTransparent: solid, RedLightLevel: r, GreenLightLevel: g, BlueLightLevel: b}
	}

	return NewRegistry([]Block{
		Air(),
		{ID: StoneBlockID, Name: "stone", IsTransparent: solid},
		{ID: GrassBlockID, Name: "grass", IsTransparent: solid},
		{ID: WaterBlockID, Name: "water", IsTransparent: allTransparent, LightReduce: true, IsFluid: true},
		{ID: SandBlockID, Name: "sand", IsTransparent: solid},
		{ID: DirtBlockID, Name: "dirt", IsTransparent: solid},
		{ID: GlassBlockID, Name: "glass", IsTransparent: allTransparent},
		{ID: LeavesBlockID, Name: "leaves", IsTransparent: allTransparent, LightReduce: true},
		lamp(GlowstoneBlockID, "glowstone", 15, 15, 15),
		lamp(RedLampBlockID, "red_lamp", 15, 0, 0),
		lamp(GreenLampBlockID, "green_lamp", 0, 15, 0),
		lamp(BlueLampBlockID, "blue_lamp", 0, 0, 15),
		{ID: TorchBlockID, Name: "torch", IsTransparent: allTransparent, RedLightLevel: 14, GreenLightLevel: 12, BlueLightLevel: 8, Rotatable: true},
	})
}
