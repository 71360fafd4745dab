package eventbus

import "time"

// QueueRunCompleted is published after every queue pass.
type QueueRunCompleted struct {
	Attempted int
	Skipped   int
	Deleted   int
	// Remaining is the live inventory size after the pass.
	Remaining int
	Duration  time.Duration
}

// TaskDiscarded is published when a task is deleted without being
// delivered.
type TaskDiscarded struct {
	TaskID string
	Type   string
	Reason string
}

// TaskAdded is published after a task is persisted.
type TaskAdded struct {
	TaskID string
	Type   string
	Depth  int
}
