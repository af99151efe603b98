// Package event defines the harness event and the bounded source that
// produces the run's population of events.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strconv"
)

// ErrMalformed is returned when an inbound body carries no usable identifier.
var ErrMalformed = errors.New("malformed event")

// Event is the only payload the harness exchanges: a unique integer id.
type Event struct {
	ID int `json:"id"`
}

func (e Event) String() string { return "Event{id=" + strconv.Itoa(e.ID) + "}" }

// Sequence yields Event{1} through Event{n}. It yields nothing for n <= 0.
func Sequence(n int) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for i := 1; i <= n; i++ {
			if !yield(Event{ID: i}) {
				return
			}
		}
	}
}

// Marshal encodes e as its wire JSON.
func Marshal(e Event) []byte {
	// Event has a single int field; encoding cannot fail.
	b, _ := json.Marshal(e)
	return b
}

// wireEvent accepts the current "id" field and the legacy "orderId" field.
type wireEvent struct {
	ID      *int `json:"id"`
	OrderID *int `json:"orderId"`
}

// cloudEvent is the subset of a CloudEvents 1.0 JSON envelope we read.
type cloudEvent struct {
	SpecVersion string          `json:"specversion"`
	Data        json.RawMessage `json:"data"`
}

// Decode parses an inbound body. Sidecars such as Dapr wrap the published
// payload in a CloudEvents envelope; both forms are accepted.
func Decode(body []byte) (Event, error) {
	var ce cloudEvent
	if err := json.Unmarshal(body, &ce); err == nil && ce.SpecVersion != "" && len(ce.Data) > 0 {
		body = ce.Data
	}
	var w wireEvent
	if err := json.Unmarshal(body, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch {
	case w.ID != nil:
		return Event{ID: *w.ID}, nil
	case w.OrderID != nil:
		return Event{ID: *w.OrderID}, nil
	default:
		return Event{}, fmt.Errorf("%w: missing id", ErrMalformed)
	}
}
