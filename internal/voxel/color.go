package voxel

import (
	"fmt"
	"strings"
)

// LightColor определяет один из четырёх независимых каналов света.
type LightColor uint8

const (
	Sunlight LightColor = iota
	Red
	Green
	Blue
)

// Colors перечисляет каналы в порядке обработки.
var Colors = [4]LightColor{Sunlight, Red, Green, Blue}

// TorchColors перечисляет цветные каналы факелов.
var TorchColors = [3]LightColor{Red, Green, Blue}

func (c LightColor) String() string {
	switch c {
	case Sunlight:
		return "SUNLIGHT"
	case Red:
		return "RED"
	case Green:
		return "GREEN"
	case Blue:
		return "BLUE"
	default:
		return fmt.Sprintf("LightColor(%d)", uint8(c))
	}
}

// IsValid сообщает, известен ли канал.
func (c LightColor) IsValid() bool {
	return c <= Blue
}

// ParseLightColor разбирает имя канала без учёта регистра.
func ParseLightColor(s string) (LightColor, error) {
	switch strings.ToUpper(s) {
	case "SUNLIGHT":
		return Sunlight, nil
	case "RED":
		return Red, nil
	case "GREEN":
		return Green, nil
	case "BLUE":
		return Blue, nil
	}
	return 0, fmt.Errorf("unknown light color %q", s)
}

// MarshalText кодирует канал его именем.
func (c LightColor) MarshalText() ([]byte, error) {
	if !c.IsValid() {
		return nil, fmt.Errorf("unknown light color %d", uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText разбирает имя канала.
func (c *LightColor) UnmarshalText(b []byte) error {
	parsed, err := ParseLightColor(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func unknownColor(c LightColor) string {
	return fmt.Sprintf("voxel: unknown light color %d", uint8(c))
}
