package controllers

import (
	"net/http"

	"github.com/rzbill/flocheck/internal/harness"
	"github.com/rzbill/flocheck/internal/runtime"
	"github.com/rzbill/flocheck/pkg/log"
)

// RunSource returns the current run, or nil before one has started.
type RunSource func() *harness.Handle

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general    *GeneralController
	subscriber *SubscriberController
	runs       *RunController
}

// NewControllerRegistry creates a new controller registry. The subscriber
// routes are only registered when rt hosts a subscriber.
func NewControllerRegistry(rt *runtime.Runtime, runs RunSource, logger log.Logger) *ControllerRegistry {
	r := &ControllerRegistry{
		general: NewGeneralController(rt),
		runs:    NewRunController(rt, runs),
	}
	if rt.Subscriber() != nil {
		r.subscriber = NewSubscriberController(rt, logger)
	}
	return r
}

// RegisterAllRoutes registers all controller routes with the given mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.runs.RegisterRoutes(mux)
	if r.subscriber != nil {
		r.subscriber.RegisterRoutes(mux)
	}
}
