package world

import (
	"context"

	"github.com/annel0/voxel-light/internal/chunk"
	"github.com/annel0/voxel-light/internal/eventbus"
)

// note уведомление пайплайна, отложенное до конца Tick
type note struct {
	chunk *chunk.Grid
	stage int
	name  string
	ready bool
	err   error
}

// Методы Observer вызываются из pipeline.Update внутри Tick, когда mu уже
// захвачен, поэтому сами не блокируют.

func (m *Manager) StageCompleted(c *chunk.Grid, stage int, name string) {
	m.notes = append(m.notes, note{chunk: c, stage: stage, name: name})
}

func (m *Manager) ChunkReady(c *chunk.Grid) {
	m.notes = append(m.notes, note{chunk: c, stage: StageMesh, ready: true})
}

func (m *Manager) ChunkFailed(c *chunk.Grid, stage int, name string, err error) {
	m.notes = append(m.notes, note{chunk: c, stage: stage, name: name, err: err})
	// чанк выпал из пайплайна, следующий RequestChunk начнёт заново
	delete(m.chunks.chunks, c.Coords)
	m.metrics.setChunks(len(m.chunks.chunks))
}

func (m *Manager) publishNotes(ctx context.Context, notes []note) {
	for _, n := range notes {
		var (
			ev  *eventbus.Envelope
			err error
		)
		switch {
		case n.err != nil:
			m.logger.Warn("chunk %s failed at stage %s: %v", n.chunk.Name, n.name, n.err)
			ev, err = eventbus.NewEnvelope(m.cfg.NodeID, eventbus.TypeChunkFailed, 8,
				eventbus.ChunkFailed{Chunk: n.chunk.Name, Stage: n.stage, StageName: n.name, Error: n.err.Error()})
		case n.ready:
			ev, err = eventbus.NewEnvelope(m.cfg.NodeID, eventbus.TypeChunkReady, 5,
				eventbus.ChunkReady{Chunk: n.chunk.Name})
		default:
			ev, err = eventbus.NewEnvelope(m.cfg.NodeID, eventbus.TypeChunkStageCompleted, 1,
				eventbus.ChunkStageCompleted{Chunk: n.chunk.Name, Stage: n.stage, StageName: n.name})
		}
		if err == nil {
			m.publish(ctx, ev)
		}
	}
}

func (m *Manager) publish(ctx context.Context, ev *eventbus.Envelope) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(ctx, ev); err != nil {
		m.logger.Debug("publish %s: %v", ev.EventType, err)
	}
}
