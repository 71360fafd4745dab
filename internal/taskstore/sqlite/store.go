// Package sqlite implements taskstore.Store on a single SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/rzbill/bgq/internal/taskstore"
	"github.com/rzbill/bgq/pkg/id"
	"github.com/rzbill/bgq/pkg/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS queue_tasks (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	queue TEXT NOT NULL,
	id TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL,
	data BLOB,
	created_at INTEGER NOT NULL,
	order_key BLOB NOT NULL,
	group_start TEXT NOT NULL DEFAULT '',
	blocking_groups TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_queue_tasks_order ON queue_tasks(queue, order_key);
CREATE TABLE IF NOT EXISTS queue_meta (
	queue TEXT NOT NULL,
	name TEXT NOT NULL,
	value BLOB,
	PRIMARY KEY (queue, name)
);`

// Options configures a Store.
type Options struct {
	Queue  string
	Logger log.Logger
	Now    func() time.Time
}

// Store is a SQLite-backed taskstore.Store.
type Store struct {
	db     *sql.DB
	queue  string
	logger log.Logger
	now    func() time.Time
	gen    *id.Generator

	mu     sync.Mutex
	closed bool
}

// Open opens (creating if needed) the database at path. ":memory:" is
// accepted for tests.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases shared and writes serial.
	db.SetMaxOpenConns(1)

	for _, q := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA synchronous=FULL;", schema} {
		if _, err := db.ExecContext(ctx, q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	if opts.Queue == "" {
		opts.Queue = "default"
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Store{
		db:     db,
		queue:  opts.Queue,
		logger: opts.Logger.WithComponent("taskstore.sqlite").With(log.Str("queue", opts.Queue)),
		now:    opts.Now,
		gen:    id.NewGenerator(),
	}

	var last []byte
	err = db.QueryRowContext(ctx, `SELECT order_key FROM queue_tasks WHERE queue = ? ORDER BY order_key DESC LIMIT 1`, s.queue).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		_ = db.Close()
		return nil, fmt.Errorf("failed to seed order keys: %w", err)
	default:
		if k, err := id.FromBytes(last); err == nil {
			s.gen.Seed(k)
		}
	}
	return s, nil
}

// Add implements taskstore.Store.
func (s *Store) Add(ctx context.Context, t taskstore.Task) ([]taskstore.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, taskstore.ErrClosed
	}

	t = taskstore.Stamp(t, s.gen, s.now, uuid.NewString)
	groups, err := json.Marshal(orEmpty(t.BlockingGroups))
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("taskstore: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO queue_tasks (queue, id, type, data, created_at, order_key, group_start, blocking_groups)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.queue, t.ID, t.Type, t.Data, t.CreatedAt.UnixMilli(), t.OrderKey.Bytes(), t.GroupStart, string(groups))
	if err != nil {
		return nil, fmt.Errorf("taskstore: add %s: %w", t.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("taskstore: add %s: %w", t.ID, err)
	}
	return s.inventoryLocked(ctx)
}

// Get implements taskstore.Store.
func (s *Store) Get(ctx context.Context, taskID string) (taskstore.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return taskstore.Task{}, taskstore.ErrClosed
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, data, created_at, order_key, group_start, blocking_groups
		FROM queue_tasks WHERE queue = ? AND id = ?`, s.queue, taskID)
	var (
		t       taskstore.Task
		data    []byte
		created int64
		key     []byte
		groups  string
	)
	err := row.Scan(&t.ID, &t.Type, &data, &created, &key, &t.GroupStart, &groups)
	if errors.Is(err, sql.ErrNoRows) {
		return taskstore.Task{}, taskstore.ErrNotFound
	}
	if err != nil {
		return taskstore.Task{}, fmt.Errorf("taskstore: get %s: %w", taskID, err)
	}
	if t.OrderKey, err = id.FromBytes(key); err != nil {
		return taskstore.Task{}, fmt.Errorf("taskstore: get %s: %w: %v", taskID, taskstore.ErrCorruptRecord, err)
	}
	if err := json.Unmarshal([]byte(groups), &t.BlockingGroups); err != nil {
		return taskstore.Task{}, fmt.Errorf("taskstore: get %s: %w: %v", taskID, taskstore.ErrCorruptRecord, err)
	}
	if len(t.BlockingGroups) == 0 {
		t.BlockingGroups = nil
	}
	if len(data) > 0 {
		t.Data = data
	}
	t.CreatedAt = time.UnixMilli(created).UTC()
	return t, nil
}

// Delete implements taskstore.Store.
func (s *Store) Delete(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return taskstore.ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queue_tasks WHERE queue = ? AND id = ?`, s.queue, taskID); err != nil {
		return fmt.Errorf("taskstore: delete %s: %w", taskID, err)
	}
	return nil
}

// Inventory implements taskstore.Store.
func (s *Store) Inventory(ctx context.Context) ([]taskstore.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, taskstore.ErrClosed
	}
	return s.inventoryLocked(ctx)
}

func (s *Store) inventoryLocked(ctx context.Context) ([]taskstore.InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, created_at, order_key, group_start, blocking_groups
		FROM queue_tasks WHERE queue = ? ORDER BY order_key`, s.queue)
	if err != nil {
		return nil, fmt.Errorf("taskstore: inventory: %w", err)
	}
	defer rows.Close()

	items := []taskstore.InventoryItem{}
	for rows.Next() {
		var (
			it      taskstore.InventoryItem
			created int64
			key     []byte
			groups  string
		)
		if err := rows.Scan(&it.TaskID, &it.Type, &created, &key, &it.GroupStart, &groups); err != nil {
			return nil, fmt.Errorf("taskstore: inventory: %w", err)
		}
		k, err := id.FromBytes(key)
		if err != nil {
			s.logger.Warn("skipping unreadable inventory entry", log.Str("task_id", it.TaskID), log.Err(err))
			continue
		}
		if err := json.Unmarshal([]byte(groups), &it.BlockingGroups); err != nil {
			s.logger.Warn("skipping unreadable inventory entry", log.Str("task_id", it.TaskID), log.Err(err))
			continue
		}
		if len(it.BlockingGroups) == 0 {
			it.BlockingGroups = nil
		}
		it.OrderKey = k
		it.CreatedAt = time.UnixMilli(created).UTC()
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("taskstore: inventory: %w", err)
	}
	return items, nil
}

// GetMeta implements taskstore.MetaStore.
func (s *Store) GetMeta(ctx context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, taskstore.ErrClosed
	}
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM queue_meta WHERE queue = ? AND name = ?`, s.queue, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

// SetMeta implements taskstore.MetaStore.
func (s *Store) SetMeta(ctx context.Context, name string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return taskstore.ErrClosed
	}
	if len(value) == 0 {
		_, err := s.db.ExecContext(ctx, `DELETE FROM queue_meta WHERE queue = ? AND name = ?`, s.queue, name)
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queue_meta (queue, name, value) VALUES (?, ?, ?)
		ON CONFLICT(queue, name) DO UPDATE SET value = excluded.value`, s.queue, name, value)
	return err
}

// Compact rebuilds the database file to release pages freed by deletes.
func (s *Store) Compact(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return taskstore.ErrClosed
	}
	_, err := s.db.ExecContext(ctx, `VACUUM`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func orEmpty(groups []string) []string {
	if groups == nil {
		return []string{}
	}
	return groups
}
