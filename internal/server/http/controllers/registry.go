package controllers

import (
	"net/http"

	"github.com/rzbill/bgq/internal/runtime"
	"github.com/rzbill/bgq/pkg/log"
)

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general *GeneralController
	queue   *QueueController
}

// NewControllerRegistry initializes all controllers over rt.
func NewControllerRegistry(rt *runtime.Runtime, logger log.Logger) *ControllerRegistry {
	return &ControllerRegistry{
		general: NewGeneralController(rt),
		queue:   NewQueueController(rt, logger),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.queue.RegisterRoutes(mux)
}
