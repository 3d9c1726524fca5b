package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// Store is a single named slot holding at most one continuation record.
// Load returns nil, nil when the slot is empty and an error wrapping ErrCorrupt when the
// stored bytes cannot be decoded. Delete of an empty slot is not an error.
type Store interface {
	Load(ctx context.Context) (*Continuation, error)
	Save(ctx context.Context, c *Continuation) error
	Delete(ctx context.Context) error
	Close() error
}

// MemoryStore keeps the encoded record in memory. It is safe for concurrent use.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryStore returns an empty in-memory slot.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(ctx context.Context) (*Continuation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	return Decode(m.data)
}

func (m *MemoryStore) Save(ctx context.Context, c *Continuation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(c)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context) error {
	m.mu.Lock()
	m.data = nil
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// Raw exposes the persisted bytes, or nil when empty.
func (m *MemoryStore) Raw() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

// SetRaw replaces the persisted bytes verbatim.
func (m *MemoryStore) SetRaw(data []byte) {
	m.mu.Lock()
	m.data = append([]byte(nil), data...)
	m.mu.Unlock()
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open builds the store for backend. For the file backend path is a directory; for SQLite it is
// the database file, or a directory that gets a state.db inside it.
func Open(backend, path, slot string, log zerolog.Logger) (Store, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStore(path, slot, log)
	case BackendSQLite:
		dbPath, err := sqlitePath(path)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(dbPath, slot, log)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", backend)
	}
}

func sqlitePath(path string) (string, error) {
	info, err := os.Stat(path)
	isDir := err == nil && info.IsDir()
	if !isDir && filepath.Ext(path) != "" {
		return path, nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create state directory: %w", err)
	}
	return filepath.Join(path, "state.db"), nil
}
