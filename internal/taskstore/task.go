package taskstore

import (
	"context"
	"errors"
	"time"

	"github.com/rzbill/bgq/pkg/id"
)

var (
	// ErrNotFound is returned by Get when no task has the given id.
	ErrNotFound = errors.New("taskstore: task not found")
	// ErrCorruptRecord is returned when a stored record fails its checksum or
	// cannot be decoded.
	ErrCorruptRecord = errors.New("taskstore: corrupt record")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("taskstore: store closed")
)

// Task is one unit of queued work.
type Task struct {
	ID             string
	Type           string
	Data           []byte
	CreatedAt      time.Time
	OrderKey       id.ID
	GroupStart     string
	BlockingGroups []string
}

// InventoryItem is the payload-free view of a task used for scheduling.
type InventoryItem struct {
	TaskID         string    `json:"taskId"`
	Type           string    `json:"type"`
	CreatedAt      time.Time `json:"-"`
	OrderKey       id.ID     `json:"orderKey"`
	GroupStart     string    `json:"groupStart,omitempty"`
	BlockingGroups []string  `json:"blockingGroups,omitempty"`
}

// Item returns the inventory entry describing t.
func (t Task) Item() InventoryItem {
	return InventoryItem{
		TaskID:         t.ID,
		Type:           t.Type,
		CreatedAt:      t.CreatedAt,
		OrderKey:       t.OrderKey,
		GroupStart:     t.GroupStart,
		BlockingGroups: normalizeGroups(t.BlockingGroups),
	}
}

// Store is the durable task storage used by the queue.
type Store interface {
	// Add persists t and returns the inventory after the append. A zero ID,
	// CreatedAt or OrderKey is assigned by the store.
	Add(ctx context.Context, t Task) ([]InventoryItem, error)
	// Get loads a task. Absent ids yield ErrNotFound.
	Get(ctx context.Context, taskID string) (Task, error)
	// Delete removes a task and its inventory entry. Absent ids are a no-op.
	Delete(ctx context.Context, taskID string) error
	// Inventory lists every stored task in creation order.
	Inventory(ctx context.Context) ([]InventoryItem, error)
	Close() error
}

// MetaStore is implemented by backends that can hold small queue-scoped
// values next to the tasks. Missing keys yield (nil, nil); setting an empty
// value removes the key.
type MetaStore interface {
	GetMeta(ctx context.Context, name string) ([]byte, error)
	SetMeta(ctx context.Context, name string, value []byte) error
}

// Compactor is implemented by backends that can reclaim space left by
// deleted tasks.
type Compactor interface {
	Compact(ctx context.Context) error
}

// Stamp fills the fields a store assigns on Add.
func Stamp(t Task, gen *id.Generator, now func() time.Time, newID func() string) Task {
	if t.ID == "" {
		t.ID = newID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now()
	}
	t.CreatedAt = time.UnixMilli(t.CreatedAt.UnixMilli()).UTC()
	if t.OrderKey == id.Zero {
		t.OrderKey = gen.Next()
	}
	t.BlockingGroups = normalizeGroups(t.BlockingGroups)
	return t
}

func normalizeGroups(groups []string) []string {
	if len(groups) == 0 {
		return nil
	}
	return append([]string(nil), groups...)
}
