package taskstore

import (
	"fmt"

	"github.com/rzbill/bgq/pkg/id"
)

const (
	prefixTask = "task/"
	prefixInv  = "inv/"
	prefixMeta = "meta/"
)

// queuePrefix returns the base prefix for a queue.
// Format: bgq/{queue}/
func queuePrefix(queue string) string {
	return fmt.Sprintf("bgq/%s/", queue)
}

// TaskKey returns the record key for a task.
// Format: bgq/{queue}/task/{taskID}
func TaskKey(queue, taskID string) []byte {
	return []byte(queuePrefix(queue) + prefixTask + taskID)
}

// InvKey returns the inventory key for an ordering key.
// Format: bgq/{queue}/inv/{orderKey 16B}
func InvKey(queue string, orderKey id.ID) []byte {
	prefix := InvPrefix(queue)
	key := make([]byte, len(prefix)+id.Size)
	copy(key, prefix)
	copy(key[len(prefix):], orderKey[:])
	return key
}

// InvPrefix returns the prefix for inventory scans.
func InvPrefix(queue string) []byte {
	return []byte(queuePrefix(queue) + prefixInv)
}

// MetaKey returns the key of a queue-scoped metadata value.
// Format: bgq/{queue}/meta/{name}
func MetaKey(queue, name string) []byte {
	return []byte(queuePrefix(queue) + prefixMeta + name)
}

// orderKeyFromInvKey extracts the ordering key suffix of an inventory key.
func orderKeyFromInvKey(key []byte) (id.ID, bool) {
	if len(key) < id.Size {
		return id.Zero, false
	}
	k, err := id.FromBytes(key[len(key)-id.Size:])
	return k, err == nil
}
