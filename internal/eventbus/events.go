package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Типы событий чанков
const (
	TypeChunkStageCompleted = "ChunkStageCompleted"
	TypeChunkReady          = "ChunkReady"
	TypeChunkFailed         = "ChunkFailed"
	TypeChunkLightUpdated   = "ChunkLightUpdated"
	TypeVoxelChanged        = "VoxelChanged"
)

// PayloadVersion текущая версия схем ниже
const PayloadVersion = 1

// ChunkStageCompleted чанк прошёл стадию пайплайна
type ChunkStageCompleted struct {
	Chunk     string `json:"chunk"`
	Stage     int    `json:"stage"`
	StageName string `json:"stage_name"`
}

// ChunkReady чанк прошёл все стадии
type ChunkReady struct {
	Chunk string `json:"chunk"`
}

// ChunkFailed стадия вернула ошибку, чанк снят с пайплайна
type ChunkFailed struct {
	Chunk     string `json:"chunk"`
	Stage     int    `json:"stage"`
	StageName string `json:"stage_name"`
	Error     string `json:"error"`
}

// ChunkLightUpdated результат пересчёта света после правок
type ChunkLightUpdated struct {
	Chunk          string `json:"chunk"`
	Color          string `json:"color"`
	LastSequenceID uint64 `json:"last_sequence_id"`
}

// VoxelChanged принятая правка вокселя
type VoxelChanged struct {
	Chunk      string `json:"chunk"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Z          int    `json:"z"`
	Voxel      uint32 `json:"voxel"`
	SequenceID uint64 `json:"sequence_id"`
}

// NewEnvelope упаковывает полезную нагрузку в JSON
func NewEnvelope(source, eventType string, priority int, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: eventType,
		Version:   PayloadVersion,
		Priority:  priority,
		Payload:   data,
	}, nil
}

// Decode распаковывает полезную нагрузку события
func (ev *Envelope) Decode(out any) error {
	if err := json.Unmarshal(ev.Payload, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", ev.EventType, ev.ID, err)
	}
	return nil
}
