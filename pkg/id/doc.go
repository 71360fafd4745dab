// Package id provides the 128-bit, lexicographically sortable key that orders
// the task inventory.
//
// # Format
//
// An ID is 16 bytes big-endian: [8 bytes ms_timestamp][8 bytes sequence].
// Byte-wise comparison preserves creation order, and IDs generated within the
// same millisecond stay strictly increasing by sequence. Stored as a key
// suffix, an ID makes a plain forward scan return tasks in creation order.
//
// # Monotonicity
//
// A Generator never goes backwards within a process:
//   - if the wall clock regresses it pins to the last seen millisecond and
//     increments the sequence;
//   - if the sequence would overflow within a millisecond it waits for the
//     next millisecond.
//
// Seed lets a reopened store continue after the highest key it already holds,
// so order survives restarts even when the clock moved back across them.
package id
