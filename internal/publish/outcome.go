package publish

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/rzbill/flocheck/internal/event"
)

// Status classifies one publish attempt.
type Status int

const (
	Succeeded Status = iota
	Failed
	Canceled
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Outcome is the result of publishing one event.
type Outcome struct {
	Event  event.Event
	Status Status
	Err    error
}

// classify maps a publish error onto a Status.
func classify(err error) Status {
	switch {
	case err == nil:
		return Succeeded
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Canceled
	default:
		return Failed
	}
}

// SentSet records every id the pipeline attempted, whatever the outcome.
type SentSet struct {
	mu  sync.Mutex
	ids map[int]struct{}
}

func NewSentSet() *SentSet { return &SentSet{ids: make(map[int]struct{})} }

func (s *SentSet) Add(id int) {
	s.mu.Lock()
	s.ids[id] = struct{}{}
	s.mu.Unlock()
}

func (s *SentSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// IDs returns the attempted ids in ascending order.
func (s *SentSet) IDs() []int {
	s.mu.Lock()
	out := make([]int, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	s.mu.Unlock()
	slices.Sort(out)
	return out
}

// Summary tallies the outcomes of one pipeline run.
type Summary struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Canceled  int `json:"canceled"`
	// MaxInFlight is the gate capacity the run used; PeakInFlight is the
	// most publishes it actually had in flight at once.
	MaxInFlight  int      `json:"maxInFlight"`
	PeakInFlight int      `json:"peakInFlight"`
	Sent         *SentSet `json:"-"`
}

// Attempted is the number of ids handed to the bus or canceled before it.
func (s Summary) Attempted() int { return s.Succeeded + s.Failed + s.Canceled }
