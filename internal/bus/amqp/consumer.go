package amqpbus

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/rzbill/flocheck/internal/bus"
	"github.com/rzbill/flocheck/internal/event"
	"github.com/rzbill/flocheck/pkg/log"
)

// attemptHeader counts deliveries of one event across republishes.
const attemptHeader = "x-flocheck-attempt"

// ConsumeChannel is the subset of *amqp.Channel the consumer needs.
type ConsumeChannel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Consumer feeds queue deliveries to a bus.Handler. A rejected delivery is
// republished with its attempt count bumped until MaxAttempts, then nacked
// without requeue so the broker dead-letters it.
type Consumer struct {
	Channel     ConsumeChannel
	Topology    Topology
	Prefetch    int
	MaxAttempts int
	Logger      log.Logger
}

// Consume blocks until ctx is done (returning nil) or the broker closes the
// delivery channel (returning ErrConsumerClosed).
func (c *Consumer) Consume(ctx context.Context, h bus.Handler) error {
	if c.Channel == nil {
		return ErrChannelRequired
	}
	logger := c.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = logger.WithComponent("bus.amqp").With(log.Str("queue", c.Topology.Queue))
	maxAttempts := c.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if c.Prefetch > 0 {
		if err := c.Channel.Qos(c.Prefetch, 0, false); err != nil {
			return err
		}
	}
	deliveries, err := c.Channel.Consume(c.Topology.Queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	logger.Info("consumer started", log.Int("max_attempts", maxAttempts))

	for {
		var d amqp.Delivery
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case d, ok = <-deliveries:
			if !ok {
				return ErrConsumerClosed
			}
		}
		c.handle(ctx, logger, h, d, maxAttempts)
	}
}

func (c *Consumer) handle(ctx context.Context, logger log.Logger, h bus.Handler, d amqp.Delivery, maxAttempts int) {
	e, err := event.Decode(d.Body)
	if err != nil {
		logger.Error("undecodable delivery, dead-lettering", log.Err(err))
		_ = d.Nack(false, false)
		return
	}
	attempt := attemptOf(d.Headers)
	if err := h.Handle(ctx, e); err == nil {
		_ = d.Ack(false)
		return
	}
	if attempt >= maxAttempts {
		logger.Warn("delivery attempts exhausted, dead-lettering", log.Int("id", e.ID), log.Int("attempt", attempt))
		_ = d.Nack(false, false)
		return
	}
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[attemptHeader] = int32(attempt + 1)
	err = c.Channel.PublishWithContext(ctx, c.Topology.Exchange, d.RoutingKey, false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Headers:      headers,
		Body:         d.Body,
	})
	if err != nil {
		// Let the broker redeliver the original instead.
		logger.Warn("republish failed, requeueing", log.Int("id", e.ID), log.Err(err))
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func attemptOf(h amqp.Table) int {
	switch v := h[attemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 1
	}
}
