// Package amqpbus runs the harness over RabbitMQ.
//
// Topology: a durable topic exchange carries events to a durable queue bound
// by topic name. The queue dead-letters into a DLX whose queue collects
// events the subscriber rejected MaxAttempts times. The publisher waits for a
// broker confirm on every publish.
package amqpbus

import (
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	ErrChannelRequired = errors.New("amqp: channel is required")
	ErrNacked          = errors.New("amqp: broker nacked publish")
	ErrConfirmTimeout  = errors.New("amqp: confirm timed out")
	ErrConsumerClosed  = errors.New("amqp: delivery channel closed")
)

// TopologyChannel is the subset of *amqp.Channel used to declare topology.
type TopologyChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// Topology names the exchanges and queues for one topic.
type Topology struct {
	Exchange string
	Queue    string
	Topic    string
}

func (t Topology) DLX() string { return t.Exchange + ".dlx" }
func (t Topology) DLQ() string { return t.Queue + ".dlq" }

// Declare creates the exchange, the dead-letter exchange and queue, and the
// main queue wired to dead-letter into the DLX. It is idempotent.
func (t Topology) Declare(ch TopologyChannel) error {
	if ch == nil {
		return ErrChannelRequired
	}
	if err := ch.ExchangeDeclare(t.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.Exchange, err)
	}
	if err := ch.ExchangeDeclare(t.DLX(), amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlx %s: %w", t.DLX(), err)
	}
	if _, err := ch.QueueDeclare(t.DLQ(), true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlq %s: %w", t.DLQ(), err)
	}
	if err := ch.QueueBind(t.DLQ(), "#", t.DLX(), false, nil); err != nil {
		return fmt.Errorf("bind dlq to dlx: %w", err)
	}
	args := amqp.Table{"x-dead-letter-exchange": t.DLX()}
	if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}
	if err := ch.QueueBind(t.Queue, t.Topic, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", t.Queue, err)
	}
	return nil
}
