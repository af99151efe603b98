// Package dapr publishes through a Dapr sidecar's HTTP API.
//
// Delivery, redelivery and dead-lettering are the sidecar's business; the
// subscriber side is the inbound HTTP route advertised on /dapr/subscribe.
package dapr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rzbill/flocheck/internal/bus"
	"github.com/rzbill/flocheck/internal/event"
)

// Publisher posts events to {Addr}/v1.0/publish/{pubsub}/{topic}.
type Publisher struct {
	addr   string
	client *http.Client
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithHTTPClient overrides the default client.
func WithHTTPClient(c *http.Client) Option { return func(p *Publisher) { p.client = c } }

// NewPublisher returns a publisher for the sidecar at addr
// (e.g. "http://127.0.0.1:3500").
func NewPublisher(addr string, opts ...Option) *Publisher {
	p := &Publisher{
		addr:   strings.TrimRight(addr, "/"),
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Publisher) Publish(ctx context.Context, pubsub, topic string, e event.Event) error {
	u := p.addr + "/v1.0/publish/" + url.PathEscape(pubsub) + "/" + url.PathEscape(topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(event.Marshal(e)))
	if err != nil {
		return fmt.Errorf("%w: %v", bus.ErrPublishFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", bus.ErrPublishFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: sidecar returned %d: %s", bus.ErrPublishFailed, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Subscription is one entry of the /dapr/subscribe discovery response.
type Subscription struct {
	PubsubName      string `json:"pubsubname"`
	Topic           string `json:"topic"`
	Route           string `json:"route"`
	DeadLetterTopic string `json:"deadLetterTopic,omitempty"`
}

// DeadLetterTopic names the topic rejected deliveries are parked on.
func DeadLetterTopic(topic string) string { return topic + "-dlq" }
