// Package publish pushes a population of events through a bus publisher with
// a bounded number of publishes in flight and accounts for every attempt.
package publish

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/rzbill/flocheck/internal/bus"
	"github.com/rzbill/flocheck/internal/event"
	"github.com/rzbill/flocheck/pkg/log"
)

// Pipeline publishes events 1..N to one topic.
type Pipeline struct {
	Publisher bus.Publisher
	Pubsub    string
	Topic     string
	Logger    log.Logger
}

// Run publishes count events with at most maxConcurrency in flight and
// returns once every attempt has finished. Failed publishes are not retried.
// Cancelling ctx stops issuing new attempts; the ones not issued are counted
// as canceled.
func (p *Pipeline) Run(ctx context.Context, count, maxConcurrency int) Summary {
	logger := p.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = logger.With(log.Str("topic", p.Topic))

	sent := NewSentSet()
	if count <= 0 {
		return Summary{Sent: sent}
	}
	gate := NewGate(maxConcurrency)
	outcomes := make([]Outcome, count)

	var g errgroup.Group
	for e := range event.Sequence(count) {
		slot := &outcomes[e.ID-1]
		sent.Add(e.ID)
		if err := gate.Acquire(ctx); err != nil {
			*slot = Outcome{Event: e, Status: Canceled, Err: err}
			logger.Warn("publish canceled before start", log.Int("id", e.ID), log.Err(err))
			continue
		}
		g.Go(func() error {
			defer gate.Release()
			err := p.Publisher.Publish(ctx, p.Pubsub, p.Topic, e)
			*slot = Outcome{Event: e, Status: classify(err), Err: err}
			switch slot.Status {
			case Succeeded:
				logger.Info("published", log.Int("id", e.ID))
			case Canceled:
				logger.Warn("publish canceled", log.Int("id", e.ID), log.Err(err))
			default:
				logger.Error("publish failed", log.Int("id", e.ID), log.Err(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	sum := Summary{Sent: sent, MaxInFlight: gate.Capacity(), PeakInFlight: gate.Peak()}
	for _, o := range outcomes {
		switch o.Status {
		case Succeeded:
			sum.Succeeded++
		case Failed:
			sum.Failed++
		case Canceled:
			sum.Canceled++
		}
	}
	logger.Info("publishing complete",
		log.Int("succeeded", sum.Succeeded),
		log.Int("failed", sum.Failed),
		log.Int("canceled", sum.Canceled),
		log.Int("peak_in_flight", sum.PeakInFlight))
	return sum
}
