package queue

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rzbill/bgq/internal/tasks"
	"github.com/rzbill/bgq/internal/taskstore"
	"github.com/rzbill/bgq/internal/transport"
)

func TestDispose(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want disposition
	}{
		{"success", nil, delivered},
		{"bad request", &transport.RequestError{Kind: transport.KindBadRequest, StatusCode: 400}, discard("bad_request")},
		{"unauthorized", &transport.RequestError{Kind: transport.KindUnauthorized, StatusCode: 401}, discard("unauthorized")},
		{"server error exhausted", &transport.RequestError{Kind: transport.KindUnsuccessfulStatus, StatusCode: 503}, discard("server_error")},
		{"forbidden", &transport.RequestError{Kind: transport.KindUnsuccessfulStatus, StatusCode: 403}, keep},
		{"not found", &transport.RequestError{Kind: transport.KindUnsuccessfulStatus, StatusCode: 404}, keep},
		{"no request", &transport.RequestError{Kind: transport.KindNoRequestMade}, keep},
		{"network", &transport.RequestError{Kind: transport.KindNoOrBadNetwork}, keep},
		{"cancelled", &transport.RequestError{Kind: transport.KindCancelled}, keep},
		{"not configured", &transport.RequestError{Kind: transport.KindNotConfigured}, keep},
		{"unknown type", fmt.Errorf("%w: x", tasks.ErrUnknownType), discard("unknown_type")},
		{"invalid payload", fmt.Errorf("%w: x", tasks.ErrInvalidPayload), discard("invalid_payload")},
		{"corrupt", fmt.Errorf("get: %w", taskstore.ErrCorruptRecord), discard("corrupt_record")},
		{"other", errors.New("mystery"), keep},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, dispose(tc.err))
		})
	}
}
