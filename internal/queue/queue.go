package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rzbill/bgq/internal/eventbus"
	"github.com/rzbill/bgq/internal/tasks"
	"github.com/rzbill/bgq/internal/taskstore"
	"github.com/rzbill/bgq/internal/timer"
	"github.com/rzbill/bgq/pkg/log"
)

const (
	DefaultMinTasksToRun = 10
	DefaultRunDelay      = 30 * time.Second
	DefaultTaskExpiry    = 72 * time.Hour
)

// ErrInvalidTask is returned by AddTask for an empty type, nil data or a
// payload that fails validation.
var ErrInvalidTask = errors.New("queue: invalid task")

// Runner attempts one task. The returned error is classified to decide
// whether the task is removed.
type Runner interface {
	Run(ctx context.Context, t taskstore.Task) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, t taskstore.Task) error

func (f RunnerFunc) Run(ctx context.Context, t taskstore.Task) error { return f(ctx, t) }

// Options configures a Queue.
type Options struct {
	// MinTasksToRun starts a run right after AddTask once the queue holds at
	// least this many tasks.
	MinTasksToRun int
	// RunDelay arms a delayed run after AddTask when the threshold is not met.
	RunDelay time.Duration
	// DisableAutoRun turns off both add-time triggers.
	DisableAutoRun bool
	// TaskExpiry is the age after which DeleteExpired removes a task.
	TaskExpiry time.Duration

	Logger log.Logger
	Bus    *eventbus.Bus
	Now    func() time.Time
}

// Status is the queue depth.
type Status struct {
	NumTasksInQueue int `json:"numTasksInQueue"`
}

// AddResult reports the outcome of AddTask.
type AddResult struct {
	Success bool   `json:"success"`
	TaskID  string `json:"taskId,omitempty"`
	Status  Status `json:"status"`
}

// PassResult summarizes one pass.
type PassResult struct {
	Attempted int           `json:"attempted"`
	Skipped   int           `json:"skipped"`
	Deleted   int           `json:"deleted"`
	Remaining int           `json:"remaining"`
	Duration  time.Duration `json:"duration"`
}

// AddOption sets group metadata on a new task.
type AddOption func(*taskstore.Task)

// WithGroupStart marks the task as opening group. It replaces the group a
// typed payload opens; an empty group leaves it unchanged.
func WithGroupStart(group string) AddOption {
	return func(t *taskstore.Task) {
		if group != "" {
			t.GroupStart = group
		}
	}
}

// WithBlockingGroups makes the task wait until every group is closed, in
// addition to the groups a typed payload waits on.
func WithBlockingGroups(groups ...string) AddOption {
	return func(t *taskstore.Task) {
		for _, g := range groups {
			if g != "" && !slices.Contains(t.BlockingGroups, g) {
				t.BlockingGroups = append(t.BlockingGroups, g)
			}
		}
	}
}

// Queue is the run coordinator.
type Queue struct {
	store  taskstore.Store
	runner Runner
	opts   Options
	logger log.Logger
	bus    *eventbus.Bus
	timer  *timer.Timer

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
	closed  bool
	// current holds the callbacks of the active pass; next those of the
	// follow-up pass, which is scheduled when pending is true.
	current []func(PassResult)
	next    []func(PassResult)
	pending bool
	wg      sync.WaitGroup
}

// New returns a Queue over store that attempts tasks with runner.
func New(store taskstore.Store, runner Runner, opts Options) *Queue {
	if opts.MinTasksToRun <= 0 {
		opts.MinTasksToRun = DefaultMinTasksToRun
	}
	if opts.RunDelay <= 0 {
		opts.RunDelay = DefaultRunDelay
	}
	if opts.TaskExpiry <= 0 {
		opts.TaskExpiry = DefaultTaskExpiry
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		store:  store,
		runner: runner,
		opts:   opts,
		logger: opts.Logger.WithComponent("queue"),
		bus:    opts.Bus,
		timer:  timer.New(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddTask persists a task. data is stored as-is when it is a []byte or
// json.RawMessage and JSON-encoded otherwise. A tasks.Payload is validated
// first and supplies the task's type when taskType is empty and its default
// groups; opts are applied on top.
func (q *Queue) AddTask(ctx context.Context, taskType string, data any, opts ...AddOption) (AddResult, error) {
	var t taskstore.Task
	if p, ok := data.(tasks.Payload); ok {
		if taskType == "" {
			taskType = p.Type()
		}
		if taskType != p.Type() {
			return AddResult{}, fmt.Errorf("%w: type %q does not match %s payload", ErrInvalidTask, taskType, p.Type())
		}
		if err := p.Validate(); err != nil {
			return AddResult{}, fmt.Errorf("%w: %w", ErrInvalidTask, err)
		}
		t.GroupStart, t.BlockingGroups = tasks.GroupsOf(p)
	}
	raw, err := encodeData(data)
	if err != nil {
		return AddResult{}, err
	}
	if taskType == "" {
		return AddResult{}, fmt.Errorf("%w: type is required", ErrInvalidTask)
	}

	t.Type, t.Data = taskType, raw
	for _, opt := range opts {
		opt(&t)
	}

	inv, err := q.store.Add(ctx, t)
	if err != nil {
		q.logger.Error("failed to add task", log.Str("type", taskType), log.Err(err))
		return AddResult{Success: false, Status: q.Status(ctx)}, fmt.Errorf("queue: add task: %w", err)
	}

	var taskID string
	if len(inv) > 0 {
		taskID = inv[len(inv)-1].TaskID
	}
	q.logger.Debug("task added", log.Str("task_id", taskID), log.Str("type", taskType), log.Int("depth", len(inv)))
	eventbus.Publish(q.bus, eventbus.TaskAdded{TaskID: taskID, Type: taskType, Depth: len(inv)})

	if !q.opts.DisableAutoRun {
		if len(inv) >= q.opts.MinTasksToRun {
			q.Run(nil)
		} else {
			q.timer.ScheduleIfNotScheduled(q.opts.RunDelay, func() { q.Run(nil) })
		}
	}
	return AddResult{Success: true, TaskID: taskID, Status: Status{NumTasksInQueue: len(inv)}}, nil
}

// ParseTask decodes raw JSON as the payload of a known task type, for
// callers that receive tasks from outside the process.
func ParseTask(taskType string, raw []byte) (tasks.Payload, error) {
	p, err := tasks.Decode(taskType, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTask, err)
	}
	return p, nil
}

func encodeData(data any) ([]byte, error) {
	switch v := data.(type) {
	case nil:
		return nil, fmt.Errorf("%w: data is required", ErrInvalidTask)
	case []byte:
		if v == nil {
			return nil, fmt.Errorf("%w: data is required", ErrInvalidTask)
		}
		return v, nil
	case json.RawMessage:
		if v == nil {
			return nil, fmt.Errorf("%w: data is required", ErrInvalidTask)
		}
		return v, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTask, err)
		}
		return b, nil
	}
}

// Run starts a pass, or queues a follow-up pass if one is active.
// onComplete, if not nil, fires exactly once when the pass that serves this
// call ends.
func (q *Queue) Run(onComplete func()) {
	q.run(func(PassResult) {
		if onComplete != nil {
			onComplete()
		}
	})
}

// RunSync runs a pass, honoring serialization with Run, and waits for it.
// If ctx ends first the pass continues in the background and a zero result
// is returned.
func (q *Queue) RunSync(ctx context.Context) PassResult {
	done := make(chan PassResult, 1)
	q.run(func(r PassResult) { done <- r })
	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		return PassResult{}
	}
}

func (q *Queue) run(cb func(PassResult)) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		go cb(PassResult{})
		return
	}
	if q.running {
		q.pending = true
		q.next = append(q.next, cb)
		q.mu.Unlock()
		return
	}
	q.running = true
	q.current = []func(PassResult){cb}
	q.wg.Add(1)
	q.mu.Unlock()

	go q.loop()
}

// loop runs passes until no follow-up is pending. Callbacks run after the
// pass has left the WaitGroup, so they may call Close.
func (q *Queue) loop() {
	for {
		res := q.pass(q.ctx)

		q.mu.Lock()
		cbs := q.current
		more := q.pending
		if more {
			q.current, q.next, q.pending = q.next, nil, false
		} else {
			q.current, q.running = nil, false
		}
		q.mu.Unlock()
		q.wg.Done()

		for _, cb := range cbs {
			cb(res)
		}
		if !more {
			return
		}

		q.mu.Lock()
		if q.closed {
			cbs = append(q.current, q.next...)
			q.current, q.next, q.pending, q.running = nil, nil, false, false
			q.mu.Unlock()
			for _, cb := range cbs {
				cb(PassResult{})
			}
			return
		}
		q.wg.Add(1)
		q.mu.Unlock()
	}
}

// pass walks one inventory snapshot.
func (q *Queue) pass(ctx context.Context) PassResult {
	start := q.opts.Now()
	var res PassResult
	defer func() {
		res.Duration = q.opts.Now().Sub(start)
		eventbus.Publish(q.bus, eventbus.QueueRunCompleted{
			Attempted: res.Attempted,
			Skipped:   res.Skipped,
			Deleted:   res.Deleted,
			Remaining: res.Remaining,
			Duration:  res.Duration,
		})
	}()

	inv, err := q.store.Inventory(ctx)
	if err != nil {
		q.logger.Error("failed to read inventory, ending pass", log.Err(err))
		return res
	}

	open := openGroups(inv)
	for _, item := range inv {
		if ctx.Err() != nil {
			break
		}
		if isBlocked(item, open) {
			res.Skipped++
			continue
		}

		t, err := q.store.Get(ctx, item.TaskID)
		switch {
		case errors.Is(err, taskstore.ErrNotFound):
			closeGroup(open, item.GroupStart)
			continue
		case err != nil && !errors.Is(err, taskstore.ErrCorruptRecord):
			q.logger.Error("failed to load task", log.Str("task_id", item.TaskID), log.Err(err))
			continue
		case err == nil:
			res.Attempted++
			err = q.attempt(ctx, t)
		}

		d := dispose(err)
		if !d.remove {
			q.logger.Debug("task kept", log.Str("task_id", item.TaskID), log.Err(err))
			continue
		}
		if derr := q.store.Delete(ctx, item.TaskID); derr != nil {
			q.logger.Error("failed to delete task, keeping it", log.Str("task_id", item.TaskID), log.Err(derr))
			continue
		}
		res.Deleted++
		closeGroup(open, item.GroupStart)
		if d.reason != "" {
			q.logger.Error("task discarded", log.Str("task_id", item.TaskID), log.Str("type", item.Type),
				log.Str("reason", d.reason), log.Err(err))
			eventbus.Publish(q.bus, eventbus.TaskDiscarded{TaskID: item.TaskID, Type: item.Type, Reason: d.reason})
		}
	}

	res.Remaining = q.Status(ctx).NumTasksInQueue
	q.logger.Info("queue pass finished",
		log.Int("attempted", res.Attempted), log.Int("skipped", res.Skipped),
		log.Int("deleted", res.Deleted), log.Int("remaining", res.Remaining))
	return res
}

// attempt runs one task, converting a runner panic into an error.
func (q *Queue) attempt(ctx context.Context, t taskstore.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("runner panicked", log.Str("task_id", t.ID), log.Str("type", t.Type), log.Any("panic", r))
			err = fmt.Errorf("queue: runner panic: %v", r)
		}
	}()
	return q.runner.Run(ctx, t)
}

func openGroups(inv []taskstore.InventoryItem) map[string]int {
	open := make(map[string]int)
	for _, it := range inv {
		if it.GroupStart != "" {
			open[it.GroupStart]++
		}
	}
	return open
}

// isBlocked reports whether any blocking group of it is open. The task's own
// opener does not count against itself.
func isBlocked(it taskstore.InventoryItem, open map[string]int) bool {
	for _, g := range it.BlockingGroups {
		n := open[g]
		if g == it.GroupStart {
			n--
		}
		if n > 0 {
			return true
		}
	}
	return false
}

func closeGroup(open map[string]int, group string) {
	if group != "" && open[group] > 0 {
		open[group]--
	}
}

// Status reports the live queue depth. Storage errors report zero.
func (q *Queue) Status(ctx context.Context) Status {
	inv, err := q.store.Inventory(ctx)
	if err != nil {
		q.logger.Warn("failed to read inventory for status", log.Err(err))
		return Status{}
	}
	return Status{NumTasksInQueue: len(inv)}
}

// Inventory returns the items matching the CEL filter expression, in
// creation order. An empty filter matches everything.
func (q *Queue) Inventory(ctx context.Context, filter string) ([]taskstore.InventoryItem, error) {
	f, err := newItemFilter(filter)
	if err != nil {
		return nil, err
	}
	inv, err := q.store.Inventory(ctx)
	if err != nil {
		return nil, err
	}
	now := q.opts.Now()
	out := make([]taskstore.InventoryItem, 0, len(inv))
	for _, it := range inv {
		if f.Match(it, now) {
			out = append(out, it)
		}
	}
	return out, nil
}

// DeleteExpired removes tasks older than TaskExpiry, except those that open a
// group some remaining task is blocked on.
func (q *Queue) DeleteExpired(ctx context.Context) (int, error) {
	inv, err := q.store.Inventory(ctx)
	if err != nil {
		return 0, err
	}
	needed := make(map[string]bool)
	for _, it := range inv {
		for _, g := range it.BlockingGroups {
			needed[g] = true
		}
	}

	cutoff := q.opts.Now().Add(-q.opts.TaskExpiry)
	deleted := 0
	for _, it := range inv {
		if !it.CreatedAt.Before(cutoff) {
			continue
		}
		if it.GroupStart != "" && needed[it.GroupStart] {
			continue
		}
		if err := q.store.Delete(ctx, it.TaskID); err != nil {
			return deleted, err
		}
		deleted++
		eventbus.Publish(q.bus, eventbus.TaskDiscarded{TaskID: it.TaskID, Type: it.Type, Reason: "expired"})
	}
	if deleted > 0 {
		q.logger.Info("expired tasks deleted", log.Int("count", deleted))
	}
	return deleted, nil
}

// Close cancels any armed delayed run, stops the active pass between tasks
// and waits for it. Later Run calls complete immediately without a pass.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.timer.Cancel()
	q.cancel()
	q.wg.Wait()
}
