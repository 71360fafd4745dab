package queue

import (
	"errors"

	"github.com/rzbill/bgq/internal/tasks"
	"github.com/rzbill/bgq/internal/taskstore"
	"github.com/rzbill/bgq/internal/transport"
)

// disposition is what a pass does with a task after attempting it.
type disposition struct {
	remove bool
	// reason is set when the task is removed without being delivered.
	reason string
}

var (
	keep      = disposition{}
	delivered = disposition{remove: true}
)

func discard(reason string) disposition {
	return disposition{remove: true, reason: reason}
}

// dispose maps a runner result to a disposition.
func dispose(err error) disposition {
	switch {
	case err == nil:
		return delivered
	case errors.Is(err, transport.ErrBadRequest):
		return discard("bad_request")
	case errors.Is(err, transport.ErrUnauthorized):
		return discard("unauthorized")
	case errors.Is(err, transport.ErrUnsuccessfulStatus):
		if code := transport.StatusCode(err); code >= 500 && code < 600 {
			return discard("server_error")
		}
		// Other non-2xx responses are kept and retried every pass.
		return keep
	case errors.Is(err, tasks.ErrUnknownType):
		return discard("unknown_type")
	case errors.Is(err, tasks.ErrInvalidPayload):
		return discard("invalid_payload")
	case errors.Is(err, taskstore.ErrCorruptRecord):
		return discard("corrupt_record")
	default:
		return keep
	}
}
