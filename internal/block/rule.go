package block

import "github.com/annel0/voxel-light/internal/voxel"

// VoxelReader минимальный доступ к вокселям, нужный правилам.
type VoxelReader interface {
	GetVoxel(vx, vy, vz int) uint32
	GetVoxelRotation(vx, vy, vz int) voxel.Rotation
	GetVoxelStage(vx, vy, vz int) uint32
}

// RuleKind тип правила
type RuleKind string

const (
	RuleNone   RuleKind = "none"
	RuleSimple RuleKind = "simple"
	RuleAnd    RuleKind = "and"
	RuleOr     RuleKind = "or"
	RuleNot    RuleKind = "not"
)

// Rule условие на окружение блока. Simple проверяет воксель по смещению,
// And/Or/Not комбинируют вложенные правила.
type Rule struct {
	Kind     RuleKind        `yaml:"type" json:"type"`
	Offset   [3]int          `yaml:"offset,omitempty" json:"offset,omitempty"`
	ID       *uint32         `yaml:"id,omitempty" json:"id,omitempty"`
	Rotation *voxel.Rotation `yaml:"rotation,omitempty" json:"rotation,omitempty"`
	Stage    *uint32         `yaml:"stage,omitempty" json:"stage,omitempty"`
	Rules    []Rule          `yaml:"rules,omitempty" json:"rules,omitempty"`
}

// Evaluate проверяет правило для блока в позиции pos
func (r Rule) Evaluate(pos [3]int, space VoxelReader) bool {
	switch r.Kind {
	case RuleSimple:
		vx, vy, vz := pos[0]+r.Offset[0], pos[1]+r.Offset[1], pos[2]+r.Offset[2]
		if r.ID != nil && space.GetVoxel(vx, vy, vz) != *r.ID {
			return false
		}
		if r.Rotation != nil && space.GetVoxelRotation(vx, vy, vz) != *r.Rotation {
			return false
		}
		if r.Stage != nil && space.GetVoxelStage(vx, vy, vz) != *r.Stage {
			return false
		}
		return true
	case RuleAnd:
		for _, sub := range r.Rules {
			if !sub.Evaluate(pos, space) {
				return false
			}
		}
		return true
	case RuleOr:
		for _, sub := range r.Rules {
			if sub.Evaluate(pos, space) {
				return true
			}
		}
		return false
	case RuleNot:
		if len(r.Rules) == 0 {
			return true
		}
		return !r.Rules[0].Evaluate(pos, space)
	default:
		return true
	}
}

// ConditionalPart часть паттерна: правило и переопределённые уровни света.
type ConditionalPart struct {
	Rule            Rule    `yaml:"rule" json:"rule"`
	RedLightLevel   *uint32 `yaml:"redLightLevel,omitempty" json:"redLightLevel,omitempty"`
	GreenLightLevel *uint32 `yaml:"greenLightLevel,omitempty" json:"greenLightLevel,omitempty"`
	BlueLightLevel  *uint32 `yaml:"blueLightLevel,omitempty" json:"blueLightLevel,omitempty"`
}

func (p ConditionalPart) level(c voxel.LightColor) *uint32 {
	switch c {
	case voxel.Red:
		return p.RedLightLevel
	case voxel.Green:
		return p.GreenLightLevel
	case voxel.Blue:
		return p.BlueLightLevel
	}
	return nil
}

// DynamicPattern набор условных частей блока.
type DynamicPattern struct {
	Parts []ConditionalPart `yaml:"parts" json:"parts"`
}
