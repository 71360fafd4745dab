// Package tasks defines the typed payload for each queued task type, the
// ordering groups they open or wait on, and how each becomes an HTTP request.
//
// Payloads are decoded once, at the boundary, by Decode. The Runner loads the
// payload of a stored task, builds its request and hands it to the transport.
package tasks
