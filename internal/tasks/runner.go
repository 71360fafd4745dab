package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rzbill/bgq/internal/taskstore"
	"github.com/rzbill/bgq/internal/transport"
	"github.com/rzbill/bgq/pkg/log"
)

// Doer performs one HTTP call. *transport.Client implements it.
type Doer interface {
	Do(ctx context.Context, params transport.Request) ([]byte, error)
}

// Runner delivers stored tasks through a Doer.
type Runner struct {
	client  Doer
	baseURL string
	logger  log.Logger
}

// NewRunner returns a Runner sending to baseURL (DefaultBaseURL when empty).
func NewRunner(client Doer, baseURL string, logger log.Logger) *Runner {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Runner{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.WithComponent("tasks"),
	}
}

// Run decodes the task payload and performs its request. Decode failures
// return ErrUnknownType or ErrInvalidPayload; everything else comes from the
// transport.
func (r *Runner) Run(ctx context.Context, t taskstore.Task) error {
	p, err := Decode(t.Type, t.Data)
	if err != nil {
		return err
	}
	method, path, body := p.Request()

	var raw []byte
	if body != nil {
		if raw, err = json.Marshal(body); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}
	r.logger.Debug("running task", log.Str("task_id", t.ID), log.Str("type", t.Type), log.Str("path", path))
	_, err = r.client.Do(ctx, transport.Request{Method: method, URL: r.baseURL + path, Body: raw})
	return err
}
