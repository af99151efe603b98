package amqpbus

import (
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Conn holds one broker connection with separate publish and consume
// channels; confirm mode is per channel.
type Conn struct {
	conn    *amqp.Connection
	Publish *amqp.Channel
	Consume *amqp.Channel
}

// Dial connects to url, opens both channels and declares t.
func Dial(url string, t Topology) (*Conn, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp publish channel: %w", err)
	}
	con, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp consume channel: %w", err)
	}
	if err := t.Declare(pub); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Conn{conn: conn, Publish: pub, Consume: con}, nil
}

func (c *Conn) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return errors.Join(c.Publish.Close(), c.Consume.Close(), c.conn.Close())
}
