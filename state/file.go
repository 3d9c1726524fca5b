package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FileStore keeps the record as a JSON file named after the slot.
type FileStore struct {
	path string
	log  zerolog.Logger
}

// NewFileStore creates dir if needed and binds the store to <dir>/<slot>.json.
func NewFileStore(dir, slot string, log zerolog.Logger) (*FileStore, error) {
	if slot == "" {
		return nil, fmt.Errorf("slot name cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory %q: %w", dir, err)
	}
	return &FileStore{
		path: filepath.Join(dir, slot+".json"),
		log:  log.With().Str("component", "state").Str("slot", slot).Logger(),
	}, nil
}

// Path returns the file backing the slot.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Load(ctx context.Context) (*Continuation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read continuation: %w", err)
	}
	c, err := Decode(data)
	if err != nil {
		return nil, err
	}
	f.log.Debug().
		Int("orders", len(c.CollectedOrders)).
		Int("year_index", c.CurrentYearIndex).
		Int("start_index", c.CurrentStartIndex).
		Msg("continuation loaded")
	return c, nil
}

// Save writes the record atomically through a temporary file and rename.
func (f *FileStore) Save(ctx context.Context, c *Continuation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(c)
	if err != nil {
		return err
	}

	tmp := f.path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temporary continuation file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("write continuation: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync continuation: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close continuation: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace continuation: %w", err)
	}

	f.log.Debug().Int("orders", len(c.CollectedOrders)).Msg("continuation saved")
	return nil
}

func (f *FileStore) Delete(ctx context.Context) error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete continuation: %w", err)
	}
	f.log.Debug().Msg("continuation deleted")
	return nil
}

func (f *FileStore) Close() error { return nil }
