package taskstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	pebblestore "github.com/rzbill/bgq/internal/storage/pebble"
	"github.com/rzbill/bgq/pkg/id"
	"github.com/rzbill/bgq/pkg/log"
)

// Options configures a PebbleStore.
type Options struct {
	// Queue scopes every key; defaults to "default".
	Queue  string
	Logger log.Logger
	// Now overrides the creation clock (tests).
	Now func() time.Time
}

// PebbleStore implements Store on a Pebble database.
type PebbleStore struct {
	db     *pebblestore.DB
	queue  string
	logger log.Logger
	now    func() time.Time
	gen    *id.Generator

	mu     sync.Mutex
	closed bool
}

// Open binds a store to db and seeds the ordering key generator from the last
// inventory entry so new tasks sort after everything already stored.
func Open(db *pebblestore.DB, opts Options) (*PebbleStore, error) {
	if db == nil {
		return nil, errors.New("taskstore: nil db")
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
	s := &PebbleStore{
		db:     db,
		queue:  opts.Queue,
		logger: opts.Logger.WithComponent("taskstore").With(log.Str("queue", opts.Queue)),
		now:    opts.Now,
		gen:    id.NewGenerator(),
	}

	it, err := db.PrefixIter(InvPrefix(s.queue))
	if err != nil {
		return nil, fmt.Errorf("taskstore: seed: %w", err)
	}
	defer it.Close()
	if it.Last() {
		if k, ok := orderKeyFromInvKey(it.Key()); ok {
			s.gen.Seed(k)
		}
	}
	return s, nil
}

// Add implements Store.
func (s *PebbleStore) Add(ctx context.Context, t Task) ([]InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	t = Stamp(t, s.gen, s.now, uuid.NewString)
	rec, err := marshalTask(t)
	if err != nil {
		return nil, err
	}
	item, err := marshalItem(t.Item())
	if err != nil {
		return nil, fmt.Errorf("taskstore: encode inventory: %w", err)
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(TaskKey(s.queue, t.ID), rec, nil); err != nil {
		return nil, err
	}
	if err := b.Set(InvKey(s.queue, t.OrderKey), item, nil); err != nil {
		return nil, err
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return nil, fmt.Errorf("taskstore: add %s: %w", t.ID, err)
	}
	s.logger.Debug("task stored", log.Str("task_id", t.ID), log.Str("type", t.Type))
	return s.inventoryLocked()
}

// Get implements Store.
func (s *PebbleStore) Get(_ context.Context, taskID string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Task{}, ErrClosed
	}
	return s.getLocked(taskID)
}

func (s *PebbleStore) getLocked(taskID string) (Task, error) {
	raw, err := s.db.Get(TaskKey(s.queue, taskID))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("taskstore: get %s: %w", taskID, err)
	}
	t, err := unmarshalTask(raw)
	if err != nil {
		return Task{}, fmt.Errorf("taskstore: get %s: %w", taskID, err)
	}
	return t, nil
}

// Delete implements Store.
func (s *PebbleStore) Delete(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	var invKey []byte
	t, err := s.getLocked(taskID)
	switch {
	case err == nil:
		invKey = InvKey(s.queue, t.OrderKey)
	case errors.Is(err, ErrNotFound):
		return nil
	case errors.Is(err, ErrCorruptRecord):
		// The header is unreadable; find the inventory entry by scanning.
		invKey, err = s.findInvKeyLocked(taskID)
		if err != nil {
			return err
		}
	default:
		return err
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Delete(TaskKey(s.queue, taskID), nil); err != nil {
		return err
	}
	if invKey != nil {
		if err := b.Delete(invKey, nil); err != nil {
			return err
		}
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return fmt.Errorf("taskstore: delete %s: %w", taskID, err)
	}
	return nil
}

func (s *PebbleStore) findInvKeyLocked(taskID string) ([]byte, error) {
	it, err := s.db.PrefixIter(InvPrefix(s.queue))
	if err != nil {
		return nil, err
	}
	defer it.Close()
	for ok := it.First(); ok; ok = it.Next() {
		item, err := unmarshalItem(it.Value())
		if err == nil && item.TaskID == taskID {
			return append([]byte(nil), it.Key()...), nil
		}
	}
	return nil, nil
}

// Inventory implements Store. Undecodable entries are logged and left out.
func (s *PebbleStore) Inventory(_ context.Context) ([]InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.inventoryLocked()
}

func (s *PebbleStore) inventoryLocked() ([]InventoryItem, error) {
	it, err := s.db.PrefixIter(InvPrefix(s.queue))
	if err != nil {
		return nil, fmt.Errorf("taskstore: inventory: %w", err)
	}
	defer it.Close()

	items := []InventoryItem{}
	for ok := it.First(); ok; ok = it.Next() {
		item, err := unmarshalItem(it.Value())
		if err != nil {
			s.logger.Warn("skipping unreadable inventory entry", log.Err(err))
			continue
		}
		items = append(items, item)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("taskstore: inventory: %w", err)
	}
	return items, nil
}

// GetMeta implements MetaStore.
func (s *PebbleStore) GetMeta(_ context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	v, err := s.db.Get(MetaKey(s.queue, name))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return nil, nil
	}
	return v, err
}

// SetMeta implements MetaStore.
func (s *PebbleStore) SetMeta(_ context.Context, name string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if len(value) == 0 {
		return s.db.Delete(MetaKey(s.queue, name))
	}
	return s.db.Set(MetaKey(s.queue, name), value)
}

// Compact asks Pebble to compact this queue's key range, dropping the
// tombstones left by deleted tasks.
func (s *PebbleStore) Compact(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	prefix := []byte(queuePrefix(s.queue))
	return s.db.CompactRange(prefix, pebblestore.PrefixEnd(prefix))
}

// Close marks the store closed. The underlying DB is owned by the caller.
func (s *PebbleStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
