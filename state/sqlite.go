package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const busyRetries = 5

// SQLiteStore keeps continuation slots in a SQLite table, one row per slot.
type SQLiteStore struct {
	db     *sql.DB
	slot   string
	log    zerolog.Logger
	closed bool
}

// NewSQLiteStore opens (or creates) the database at dbPath and binds the store to slot.
func NewSQLiteStore(dbPath, slot string, log zerolog.Logger) (*SQLiteStore, error) {
	if slot == "" {
		return nil, fmt.Errorf("slot name cannot be empty")
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:   db,
		slot: slot,
		log:  log.With().Str("component", "state").Str("slot", slot).Logger(),
	}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS continuations (
		slot TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	)`)
	return err
}

func (s *SQLiteStore) Load(ctx context.Context) (*Continuation, error) {
	if s.closed {
		return nil, ErrClosed
	}
	var payload string
	err := s.retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`SELECT payload FROM continuations WHERE slot = ?`, s.slot).Scan(&payload)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load continuation: %w", err)
	}
	return Decode([]byte(payload))
}

func (s *SQLiteStore) Save(ctx context.Context, c *Continuation) error {
	if s.closed {
		return ErrClosed
	}
	data, err := Encode(c)
	if err != nil {
		return err
	}
	err = s.retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
		INSERT INTO continuations (slot, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
			s.slot, string(data), time.Now().UTC())
		if err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("save continuation: %w", err)
	}
	s.log.Debug().Int("orders", len(c.CollectedOrders)).Msg("continuation saved")
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	err := s.retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM continuations WHERE slot = ?`, s.slot)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete continuation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// retryOnBusy repeats op while SQLite reports a locked database.
func (s *SQLiteStore) retryOnBusy(ctx context.Context, op func() error) error {
	delay := 20 * time.Millisecond
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil || !isBusy(err) || attempt == busyRetries-1 {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func isBusy(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}
