package publish

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate bounds the number of publishes in flight.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int
	inFlight atomic.Int64
	peak     atomic.Int64
}

// NewGate returns a gate admitting k concurrent holders. k < 1 is treated as 1.
func NewGate(k int) *Gate {
	if k < 1 {
		k = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(k)), capacity: k}
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	n := g.inFlight.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return nil
}

// Release frees a slot. It never blocks.
func (g *Gate) Release() {
	g.inFlight.Add(-1)
	g.sem.Release(1)
}

func (g *Gate) Capacity() int { return g.capacity }

// Peak is the most holders the gate has admitted at once.
func (g *Gate) Peak() int { return int(g.peak.Load()) }

func (g *Gate) inUse() int { return int(g.inFlight.Load()) }
