package chunk

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/annel0/voxel-light/internal/vec"
)

// ErrBufferSize буфер не совпадает с геометрией чанка
var ErrBufferSize = errors.New("chunk buffer size mismatch")

// Serialized формат чанка на границе пайплайна и воркеров.
// Voxels и Lights: little-endian по 4 байта на ячейку; пустой буфер
// означает "не загружен".
type Serialized struct {
	ID      string  `json:"id"`
	X       int     `json:"x"`
	Z       int     `json:"z"`
	Voxels  []byte  `json:"voxels"`
	Lights  []byte  `json:"lights"`
	Options Options `json:"options"`
}

// Serialize копирует чанк в байтовые буферы
func (g *Grid) Serialize() *Serialized {
	return &Serialized{
		ID:      g.Name,
		X:       g.Coords.X,
		Z:       g.Coords.Z,
		Voxels:  EncodeCells(g.Voxels),
		Lights:  EncodeCells(g.Lights),
		Options: g.Options,
	}
}

// Deserialize восстанавливает чанк, проверяя длину буферов
func Deserialize(s *Serialized) (*Grid, error) {
	g := New(s.X, s.Z, s.Options)
	want := s.Options.CellCount() * 4

	var err error
	if g.Voxels, err = decodeChecked(s.Voxels, want, "voxels"); err != nil {
		return nil, fmt.Errorf("чанк %s: %w", vec.ChunkName(g.Coords), err)
	}
	if g.Lights, err = decodeChecked(s.Lights, want, "lights"); err != nil {
		return nil, fmt.Errorf("чанк %s: %w", vec.ChunkName(g.Coords), err)
	}
	return g, nil
}

func decodeChecked(b []byte, want int, field string) ([]uint32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b) != want {
		return nil, fmt.Errorf("%w: %s has %d bytes, want %d", ErrBufferSize, field, len(b), want)
	}
	return DecodeCells(b), nil
}

// EncodeCells кодирует ячейки в little-endian
func EncodeCells(cells []uint32) []byte {
	if len(cells) == 0 {
		return nil
	}
	out := make([]byte, len(cells)*4)
	for i, c := range cells {
		binary.LittleEndian.PutUint32(out[i*4:], c)
	}
	return out
}

// DecodeCells декодирует little-endian буфер; хвост короче 4 байт отбрасывается
func DecodeCells(b []byte) []uint32 {
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return out
}
