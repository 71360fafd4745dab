// Package queue coordinates delivery of persisted tasks.
//
// # Passes
//
// A pass snapshots the inventory in creation order and counts, per group,
// how many snapshot tasks open it. Each task is then either skipped, when one
// of its blocking groups is still open, or handed to the Runner. A task whose
// outcome is terminal is deleted and closes one unit of the group it opened,
// which can unblock later tasks in the same pass. Transient outcomes leave the
// task for a later pass.
//
// Passes never overlap. A Run issued while a pass is active schedules exactly
// one follow-up pass, and every callback issued during the active pass fires
// when that follow-up completes.
//
// # Triggers
//
// After AddTask the queue runs immediately once MinTasksToRun tasks are
// waiting, and otherwise arms a delayed run (RunDelay) unless one is armed
// already.
package queue
