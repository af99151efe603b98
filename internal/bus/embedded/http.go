package embedded

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rzbill/flocheck/internal/event"
)

// HTTPHandler delivers events by POSTing a CloudEvents envelope to URL, the
// way a pub/sub sidecar pushes to an application route. Any non-2xx response
// is a rejection.
type HTTPHandler struct {
	URL    string
	Pubsub string
	Topic  string
	Client *http.Client
}

type cloudEvent struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	Type            string          `json:"type"`
	DataContentType string          `json:"datacontenttype"`
	Topic           string          `json:"topic,omitempty"`
	PubsubName      string          `json:"pubsubname,omitempty"`
	Time            string          `json:"time"`
	Data            json.RawMessage `json:"data"`
}

func (h *HTTPHandler) Handle(ctx context.Context, e event.Event) error {
	body, err := json.Marshal(cloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.NewString(),
		Source:          "flocheck",
		Type:            "com.flocheck.event.sent",
		DataContentType: "application/json",
		Topic:           h.Topic,
		PubsubName:      h.Pubsub,
		Time:            time.Now().UTC().Format(time.RFC3339Nano),
		Data:            event.Marshal(e),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/cloudevents+json")
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("subscriber returned %d", resp.StatusCode)
	}
	return nil
}
