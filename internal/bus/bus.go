// Package bus defines the seam between the harness and a message bus.
//
// Drivers live in subpackages: embedded (a pebble-backed topic log with its
// own dispatcher), dapr (a sidecar's HTTP publish API) and amqp (RabbitMQ).
package bus

import (
	"context"
	"errors"

	"github.com/rzbill/flocheck/internal/event"
)

// ErrPublishFailed wraps any publish the bus did not accept.
var ErrPublishFailed = errors.New("publish failed")

// Publisher publishes one event to a named topic on a named pubsub component.
// Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, pubsub, topic string, e event.Event) error
}

// Handler receives one delivered event. A non-nil error is a rejection.
type Handler interface {
	Handle(ctx context.Context, e event.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, e event.Event) error

func (f HandlerFunc) Handle(ctx context.Context, e event.Event) error { return f(ctx, e) }

// Consumer is a driver that also pulls deliveries itself (rather than having
// them pushed at the HTTP endpoint). Consume blocks until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, h Handler) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, pubsub, topic string, e event.Event) error

func (f PublisherFunc) Publish(ctx context.Context, pubsub, topic string, e event.Event) error {
	return f(ctx, pubsub, topic, e)
}
