// Package subscriber is the receiving side of a run: it applies the failure
// policy to each delivery and records accepted ids in the ledger.
package subscriber

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rzbill/flocheck/internal/event"
	"github.com/rzbill/flocheck/internal/inject"
	"github.com/rzbill/flocheck/internal/ledger"
	"github.com/rzbill/flocheck/pkg/log"
)

// Stats counts deliveries seen by a Handler.
type Stats struct {
	Delivered  uint64 `json:"delivered"`
	Accepted   uint64 `json:"accepted"`
	Duplicates uint64 `json:"duplicates"`
	Rejected   uint64 `json:"rejected"`
	Errors     uint64 `json:"errors"`
}

// Handler accepts or rejects deliveries. It satisfies bus.Handler.
type Handler struct {
	policy inject.Policy
	ledger ledger.Ledger
	logger log.Logger

	delivered, accepted, duplicates, rejected, errs atomic.Uint64
}

func NewHandler(p inject.Policy, l ledger.Ledger, logger log.Logger) *Handler {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Handler{policy: p, ledger: l, logger: logger.WithComponent("subscriber")}
}

// Handle returns inject.ErrRejected for an injected failure, without
// touching the ledger. Otherwise it records e.ID.
func (h *Handler) Handle(ctx context.Context, e event.Event) error {
	h.delivered.Add(1)
	if h.policy != nil && h.policy.ShouldReject(e.ID) {
		h.rejected.Add(1)
		h.logger.Warn("simulating failure for order", log.Int("id", e.ID))
		return fmt.Errorf("order %d: %w", e.ID, inject.ErrRejected)
	}
	added, err := h.ledger.Record(ctx, e.ID)
	if err != nil {
		h.errs.Add(1)
		h.logger.Error("ledger record failed", log.Int("id", e.ID), log.Err(err))
		return fmt.Errorf("record order %d: %w", e.ID, err)
	}
	if added {
		h.accepted.Add(1)
		h.logger.Info("subscriber received", log.Int("id", e.ID))
	} else {
		h.duplicates.Add(1)
		h.logger.Debug("duplicate delivery", log.Int("id", e.ID))
	}
	return nil
}

func (h *Handler) Stats() Stats {
	return Stats{
		Delivered:  h.delivered.Load(),
		Accepted:   h.accepted.Load(),
		Duplicates: h.duplicates.Load(),
		Rejected:   h.rejected.Load(),
		Errors:     h.errs.Load(),
	}
}
