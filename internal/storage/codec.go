package storage

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/annel0/voxel-light/internal/chunk"
)

// Codec сжимает сериализованные чанки для диска и кеша.
// Encoder и Decoder из zstd безопасны для параллельного EncodeAll/DecodeAll.
type Codec struct {
	compressor   *zstd.Encoder
	decompressor *zstd.Decoder
}

// NewCodec создаёт кодек со стандартным уровнем сжатия
func NewCodec() (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания компрессора: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("ошибка создания декомпрессора: %w", err)
	}
	return &Codec{compressor: enc, decompressor: dec}, nil
}

// Encode сериализует и сжимает чанк
func (c *Codec) Encode(s *chunk.Serialized) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации чанка: %w", err)
	}
	return c.compressor.EncodeAll(data, nil), nil
}

// Decode распаковывает чанк и проверяет размеры буферов
func (c *Codec) Decode(payload []byte) (*chunk.Serialized, error) {
	data, err := c.decompressor.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка распаковки чанка: %w", err)
	}
	var s chunk.Serialized
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("ошибка десериализации чанка: %w", err)
	}
	if _, err := chunk.Deserialize(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Close освобождает ресурсы zstd
func (c *Codec) Close() {
	c.compressor.Close()
	c.decompressor.Close()
}
