package controllers

import (
	"errors"
	"io"
	"net/http"

	"github.com/rzbill/flocheck/internal/bus/dapr"
	"github.com/rzbill/flocheck/internal/event"
	"github.com/rzbill/flocheck/internal/inject"
	"github.com/rzbill/flocheck/internal/runtime"
	"github.com/rzbill/flocheck/internal/subscriber"
	"github.com/rzbill/flocheck/pkg/log"
)

// maxEventBody caps inbound delivery bodies; an event is a single id.
const maxEventBody = 64 << 10

// SubscriberController is the inbound delivery endpoint and the Dapr
// subscription discovery route.
type SubscriberController struct {
	rt      *runtime.Runtime
	handler *subscriber.Handler
	logger  log.Logger
}

func NewSubscriberController(rt *runtime.Runtime, logger log.Logger) *SubscriberController {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &SubscriberController{
		rt:      rt,
		handler: rt.Subscriber(),
		logger:  logger.WithComponent("http.subscriber"),
	}
}

func (c *SubscriberController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST "+c.rt.Config().Route, c.handleDeliver)
	mux.HandleFunc("GET /dapr/subscribe", c.handleDaprSubscribe)
	mux.HandleFunc("GET /v1/subscriber", c.handleStats)
}

// handleDeliver answers 200 with the event on accept, 500 on an injected
// rejection or ledger failure, and 400 when the body carries no id.
func (c *SubscriberController) handleDeliver(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	e, err := event.Decode(body)
	if err != nil {
		c.logger.Warn("undecodable delivery", log.Err(err))
		writeError(w, http.StatusBadRequest, "Invalid event")
		return
	}
	if err := c.handler.Handle(r.Context(), e); err != nil {
		if errors.Is(err, inject.ErrRejected) {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to record delivery")
		return
	}
	writeJSON(w, e)
}

func (c *SubscriberController) handleDaprSubscribe(w http.ResponseWriter, r *http.Request) {
	cfg := c.rt.Config()
	writeJSON(w, []dapr.Subscription{{
		PubsubName:      cfg.PubsubName,
		Topic:           cfg.Topic,
		Route:           cfg.Route,
		DeadLetterTopic: dapr.DeadLetterTopic(cfg.Topic),
	}})
}

func (c *SubscriberController) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, c.handler.Stats())
}
