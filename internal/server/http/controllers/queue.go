package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rzbill/bgq/internal/eventbus"
	"github.com/rzbill/bgq/internal/queue"
	"github.com/rzbill/bgq/internal/runtime"
	"github.com/rzbill/bgq/pkg/log"
)

const eventBuffer = 64

// QueueController exposes the run coordinator over HTTP.
type QueueController struct {
	rt     *runtime.Runtime
	logger log.Logger
}

// NewQueueController creates a new queue controller.
func NewQueueController(rt *runtime.Runtime, logger log.Logger) *QueueController {
	return &QueueController{rt: rt, logger: logger}
}

// RegisterRoutes registers queue routes with the given mux.
func (c *QueueController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/queue/status", c.handleStatus)
	mux.HandleFunc("/v1/queue/tasks", c.handleAddTask)
	mux.HandleFunc("/v1/queue/run", c.handleRun)
	mux.HandleFunc("/v1/queue/inventory", c.handleInventory)
	mux.HandleFunc("/v1/queue/events", c.handleEvents)
}

func (c *QueueController) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	st := c.rt.Queue().Status(r.Context())
	resp := statusResp{NumTasksInQueue: st.NumTasksInQueue}
	if cs := c.rt.Circuit(); cs.Paused() {
		resp.PausedUntil = formatTime(cs.PausedUntil())
	}
	writeJSON(w, resp)
}

// handleAddTask persists a task. 400 for a malformed body or invalid task.
func (c *QueueController) handleAddTask(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req addTaskReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	var data any
	if len(req.Data) > 0 {
		p, err := queue.ParseTask(req.Type, req.Data)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		data = p
	}
	res, err := c.rt.Queue().AddTask(r.Context(), req.Type, data,
		queue.WithGroupStart(req.GroupStart), queue.WithBlockingGroups(req.BlockingGroups...))
	switch {
	case errors.Is(err, queue.ErrInvalidTask):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		c.logger.Error("add task failed", log.Err(err))
		writeError(w, http.StatusInternalServerError, "Failed to add task")
		return
	}
	writeCreated(w, res)
}

// handleRun runs one pass and returns its summary.
func (c *QueueController) handleRun(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	writeJSON(w, c.rt.Queue().RunSync(r.Context()))
}

func (c *QueueController) handleInventory(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	items, err := c.rt.Queue().Inventory(r.Context(), r.URL.Query().Get("filter"))
	switch {
	case errors.Is(err, queue.ErrInvalidFilter):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		c.logger.Error("inventory failed", log.Err(err))
		writeError(w, http.StatusInternalServerError, "Failed to read inventory")
		return
	}
	resp := inventoryResp{Items: make([]itemView, 0, len(items))}
	for _, it := range items {
		resp.Items = append(resp.Items, newItemView(it))
	}
	writeJSON(w, resp)
}

// handleEvents streams queue events as SSE until the client goes away. Events
// are dropped when the client falls behind.
func (c *QueueController) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	ch := make(chan queueEvent, eventBuffer)
	push := func(ev queueEvent) {
		select {
		case ch <- ev:
		default:
		}
	}
	bus := c.rt.Bus()
	subs := []*eventbus.Subscription{
		eventbus.Subscribe(bus, func(e eventbus.TaskAdded) {
			push(queueEvent{Name: "task_added", Data: map[string]any{"taskId": e.TaskID, "type": e.Type, "depth": e.Depth}})
		}),
		eventbus.Subscribe(bus, func(e eventbus.TaskDiscarded) {
			push(queueEvent{Name: "task_discarded", Data: map[string]any{"taskId": e.TaskID, "type": e.Type, "reason": e.Reason}})
		}),
		eventbus.Subscribe(bus, func(e eventbus.QueueRunCompleted) {
			push(queueEvent{Name: "run_completed", Data: map[string]any{
				"attempted": e.Attempted, "skipped": e.Skipped, "deleted": e.Deleted,
				"remaining": e.Remaining, "durationMs": e.Duration.Milliseconds(),
			}})
		}),
	}
	defer func() {
		for _, s := range subs {
			s.Close()
		}
	}()

	sink := newSSESink(w)
	if err := sink.Comment("connected"); err != nil {
		return
	}
	sink.Flush()
	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			if err := sink.Send(ev); err != nil {
				return
			}
			sink.Flush()
		}
	}
}
