package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/annel0/voxel-light/internal/block"
	"github.com/annel0/voxel-light/internal/chunk"
	"github.com/annel0/voxel-light/internal/storage"
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/voxel"
)

const timeFormat = "2006-01-02T15:04:05Z"

func main() {
	var (
		dataPath   = flag.String("path", "data/chunks", "Badger data directory")
		command    = flag.String("cmd", "list", "Command: list, column, deltas")
		chunkName  = flag.String("chunk", "0|0", "Chunk name (x|z)")
		x          = flag.Int("x", 0, "Local X inside the chunk")
		z          = flag.Int("z", 0, "Local Z inside the chunk")
		colorName  = flag.String("color", "SUNLIGHT", "Light color: SUNLIGHT, RED, GREEN, BLUE")
		blocksPath = flag.String("blocks", "", "Block registry YAML (default: built-in)")
		after      = flag.Uint64("after", 0, "Show deltas with sequence id greater than this")
	)
	flag.Parse()

	store, err := storage.OpenChunkStore(*dataPath)
	if err != nil {
		log.Fatalf("❌ Failed to open store: %v", err)
	}
	defer store.Close()

	switch *command {
	case "list":
		if err := listChunks(store); err != nil {
			log.Fatalf("❌ List failed: %v", err)
		}

	case "column":
		color, err := voxel.ParseLightColor(*colorName)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		registry := block.Default()
		if *blocksPath != "" {
			if registry, err = block.LoadRegistry(*blocksPath); err != nil {
				log.Fatalf("❌ Failed to load blocks: %v", err)
			}
		}
		if err := showColumn(store, registry, *chunkName, *x, *z, color); err != nil {
			log.Fatalf("❌ Column failed: %v", err)
		}

	case "deltas":
		if err := showDeltas(store, *chunkName, *after); err != nil {
			log.Fatalf("❌ Deltas failed: %v", err)
		}

	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: list, column, deltas")
		os.Exit(1)
	}
}

// listChunks выводит сохранённые чанки
func listChunks(store *storage.ChunkStore) error {
	coords, err := store.ChunkCoords()
	if err != nil {
		return err
	}
	fmt.Printf("📦 %d chunks\n", len(coords))
	for _, c := range coords {
		fmt.Printf("  %s\n", vec.ChunkName(c))
	}
	return nil
}

func loadChunk(store *storage.ChunkStore, name string) (*chunk.Grid, error) {
	coords, err := vec.ParseChunkName(name)
	if err != nil {
		return nil, err
	}
	return store.LoadChunk(coords)
}

// showColumn печатает столбец (x, z) сверху вниз: блок и уровень света.
// Пустой воздух над поверхностью пропускается.
func showColumn(store *storage.ChunkStore, registry *block.Registry, name string, lx, lz int, color voxel.LightColor) error {
	g, err := loadChunk(store, name)
	if err != nil {
		return err
	}
	size := g.Options.Size
	if lx < 0 || lx >= size || lz < 0 || lz >= size {
		return fmt.Errorf("local coordinates (%d, %d) outside chunk of size %d", lx, lz, size)
	}

	vx, vz := g.Min.X+lx, g.Min.Z+lz
	fmt.Printf("🔦 chunk %s column (%d, %d) %s, changes: %d\n", g.Name, vx, vz, color, g.ChangeCounter)

	top := g.Options.MaxHeight - 1
	for top > 0 && g.GetVoxel(vx, top, vz) == uint32(block.AirBlockID) {
		top--
	}
	if top < g.Options.MaxHeight-1 {
		fmt.Printf("  y>%-4d air        %2d\n", top, g.GetLight(vx, top+1, vz, color))
	}
	for y := top; y >= 0; y-- {
		b := registry.Get(g.GetVoxel(vx, y, vz))
		fmt.Printf("  y=%-4d %-10s %2d\n", y, b.Name, g.GetLight(vx, y, vz, color))
	}
	return nil
}

// showDeltas печатает журнал правок чанка
func showDeltas(store *storage.ChunkStore, name string, after uint64) error {
	coords, err := vec.ParseChunkName(name)
	if err != nil {
		return err
	}
	deltas, err := store.LoadDeltas(coords, after)
	if err != nil {
		return err
	}
	fmt.Printf("📝 %d deltas for %s\n", len(deltas), name)
	for _, d := range deltas {
		fmt.Printf("  #%-6d %s %v: %d -> %d\n",
			d.SequenceID,
			time.UnixMilli(d.Timestamp).UTC().Format(timeFormat),
			d.Coords,
			d.OldVoxel,
			d.NewVoxel)
	}
	return nil
}
