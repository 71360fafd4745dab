// Package taskstore persists queued tasks and the ordered inventory that the
// run coordinator walks.
//
// # Keyspace
//
// The Pebble backend keeps every key under bgq/{queue}/:
//
//	task/{taskID}      - framed record: headerLen | header JSON | payload | crc32c
//	inv/{orderKey}     - JSON InventoryItem, 16-byte big-endian ordering key
//	meta/{name}        - small queue-scoped values (circuit pause end)
//
// Iterating inv/ in key order yields creation order. A task record and its
// inventory entry are always written and removed in the same batch.
//
// The sqlite subpackage provides the same Store contract on a single table.
package taskstore
