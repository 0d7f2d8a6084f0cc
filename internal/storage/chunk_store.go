package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v3"

	"github.com/annel0/voxel-light/internal/chunk"
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/voxel"
)

var (
	// ErrChunkNotFound чанк не сохранялся
	ErrChunkNotFound = errors.New("chunk not found")
	// ErrNotReady хранилище закрыто
	ErrNotReady = errors.New("хранилище не готово")
)

// ChunkStore хранит чанки и журнал изменений вокселей в BadgerDB
type ChunkStore struct {
	db      *badger.DB
	dbPath  string
	codec   *Codec
	mutex   sync.RWMutex
	isReady bool
}

// OpenChunkStore открывает хранилище в каталоге dataPath/chunks
func OpenChunkStore(dataPath string) (*ChunkStore, error) {
	dbPath := filepath.Join(dataPath, "chunks")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	return open(opts, dbPath)
}

// OpenInMemory хранилище без диска, для тестов и временных миров
func OpenInMemory() (*ChunkStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts, "")
}

func open(opts badger.Options, dbPath string) (*ChunkStore, error) {
	codec, err := NewCodec()
	if err != nil {
		return nil, err
	}
	db, err := badger.Open(opts)
	if err != nil {
		codec.Close()
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}
	return &ChunkStore{db: db, dbPath: dbPath, codec: codec, isReady: true}, nil
}

// Close закрывает хранилище данных
func (cs *ChunkStore) Close() error {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	if !cs.isReady {
		return nil
	}
	cs.isReady = false
	cs.codec.Close()
	return cs.db.Close()
}

func chunkKey(c vec.Vec2) []byte {
	return []byte(fmt.Sprintf("chunk:%d:%d", c.X, c.Z))
}

func deltaPrefix(c vec.Vec2) []byte {
	return []byte(fmt.Sprintf("delta:%d:%d:", c.X, c.Z))
}

// deltaKey префикс + SequenceID в big-endian, чтобы итерация шла по порядку
func deltaKey(c vec.Vec2, seq uint64) []byte {
	key := deltaPrefix(c)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return append(key, buf[:]...)
}

// SaveChunk сохраняет воксели и свет чанка. Незагруженный чанк пропускается.
func (cs *ChunkStore) SaveChunk(c *chunk.Grid) error {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	if !cs.isReady {
		return ErrNotReady
	}
	if !c.IsReady() {
		return nil
	}

	data, err := cs.codec.Encode(c.Serialize())
	if err != nil {
		return err
	}

	err = cs.db.Update(func(txn *badger.Txn) error {
		return txn.Set(chunkKey(c.Coords), data)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	return nil
}

// LoadChunk загружает чанк или возвращает ErrChunkNotFound
func (cs *ChunkStore) LoadChunk(coords vec.Vec2) (*chunk.Grid, error) {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	if !cs.isReady {
		return nil, ErrNotReady
	}

	var data []byte
	err := cs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chunkKey(coords))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrChunkNotFound, vec.ChunkName(coords))
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	s, err := cs.codec.Decode(data)
	if err != nil {
		return nil, err
	}
	return chunk.Deserialize(s)
}

// DeleteChunk удаляет чанк и его журнал изменений
func (cs *ChunkStore) DeleteChunk(coords vec.Vec2) error {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	if !cs.isReady {
		return ErrNotReady
	}
	return cs.db.Update(func(txn *badger.Txn) error {
		prefix := deltaPrefix(coords)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)

		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return fmt.Errorf("ошибка удаления журнала: %w", err)
			}
		}
		return txn.Delete(chunkKey(coords))
	})
}

// AppendDeltas дописывает изменения вокселей в журнал чанка
func (cs *ChunkStore) AppendDeltas(coords vec.Vec2, deltas []voxel.Delta) error {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	if !cs.isReady {
		return ErrNotReady
	}

	wb := cs.db.NewWriteBatch()
	defer wb.Cancel()
	for _, d := range deltas {
		data, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("ошибка сериализации дельты: %w", err)
		}
		if err := wb.Set(deltaKey(coords, d.SequenceID), data); err != nil {
			return fmt.Errorf("ошибка записи дельты: %w", err)
		}
	}
	return wb.Flush()
}

// LoadDeltas возвращает изменения с SequenceID > after по возрастанию
func (cs *ChunkStore) LoadDeltas(coords vec.Vec2, after uint64) ([]voxel.Delta, error) {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	if !cs.isReady {
		return nil, ErrNotReady
	}

	var out []voxel.Delta
	prefix := deltaPrefix(coords)
	err := cs.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(deltaKey(coords, after+1)); it.ValidForPrefix(prefix); it.Next() {
			var d voxel.Delta
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &d)
			})
			if err != nil {
				return fmt.Errorf("ошибка десериализации дельты: %w", err)
			}
			out = append(out, d)
		}
		return nil
	})
	return out, err
}

// ChunkCoords перечисляет сохранённые чанки
func (cs *ChunkStore) ChunkCoords() ([]vec.Vec2, error) {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	if !cs.isReady {
		return nil, ErrNotReady
	}

	var out []vec.Vec2
	prefix := []byte("chunk:")
	err := cs.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var c vec.Vec2
			if _, err := fmt.Sscanf(string(it.Item().Key()), "chunk:%d:%d", &c.X, &c.Z); err != nil {
				continue
			}
			out = append(out, c)
		}
		return nil
	})
	return out, err
}
