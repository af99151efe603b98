package publish

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/flocheck/internal/bus"
	"github.com/rzbill/flocheck/internal/event"
)

func TestGateClampsCapacity(t *testing.T) {
	assert.Equal(t, 1, NewGate(0).Capacity())
	assert.Equal(t, 1, NewGate(-3).Capacity())
	assert.Equal(t, 4, NewGate(4).Capacity())
}

func TestGateAcquireHonorsContext(t *testing.T) {
	g := NewGate(1)
	require.NoError(t, g.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Acquire(ctx), context.DeadlineExceeded)

	g.Release()
	assert.Equal(t, 0, g.inUse())
	assert.Equal(t, 1, g.Peak())
}

// slowPublisher records the highest number of concurrent Publish calls.
type slowPublisher struct {
	delay   time.Duration
	fail    func(id int) bool
	current atomic.Int64
	peak    atomic.Int64
	mu      sync.Mutex
	seen    []int
}

func (p *slowPublisher) Publish(ctx context.Context, _, _ string, e event.Event) error {
	n := p.current.Add(1)
	defer p.current.Add(-1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}
	p.mu.Lock()
	p.seen = append(p.seen, e.ID)
	p.mu.Unlock()
	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if p.fail != nil && p.fail(e.ID) {
		return bus.ErrPublishFailed
	}
	return nil
}

func TestRunBoundsConcurrency(t *testing.T) {
	pub := &slowPublisher{delay: 5 * time.Millisecond}
	p := &Pipeline{Publisher: pub, Topic: "orders"}

	sum := p.Run(context.Background(), 40, 3)

	assert.Equal(t, 40, sum.Succeeded)
	assert.Zero(t, sum.Failed)
	assert.Zero(t, sum.Canceled)
	assert.LessOrEqual(t, pub.peak.Load(), int64(3))
	assert.Equal(t, 3, sum.MaxInFlight)
	assert.LessOrEqual(t, sum.PeakInFlight, 3)
	assert.Positive(t, sum.PeakInFlight)
	assert.Len(t, pub.seen, 40)
	assert.Equal(t, 40, sum.Sent.Len())
}

func TestRunCountsFailuresWithoutRetry(t *testing.T) {
	pub := &slowPublisher{fail: func(id int) bool { return id%5 == 0 }}
	p := &Pipeline{Publisher: pub}

	sum := p.Run(context.Background(), 20, 4)

	assert.Equal(t, 16, sum.Succeeded)
	assert.Equal(t, 4, sum.Failed)
	assert.Len(t, pub.seen, 20)
	ids := sum.Sent.IDs()
	require.Len(t, ids, 20)
	assert.Equal(t, 1, ids[0])
	assert.Equal(t, 20, ids[19])
}

func TestRunZeroCount(t *testing.T) {
	p := &Pipeline{Publisher: bus.PublisherFunc(func(context.Context, string, string, event.Event) error {
		t.Fatal("publish called")
		return nil
	})}
	sum := p.Run(context.Background(), 0, 5)
	assert.Zero(t, sum.Attempted())
	assert.Zero(t, sum.Sent.Len())
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls atomic.Int64
	p := &Pipeline{Publisher: bus.PublisherFunc(func(ctx context.Context, _, _ string, _ event.Event) error {
		calls.Add(1)
		return ctx.Err()
	})}

	sum := p.Run(ctx, 10, 2)

	assert.Equal(t, 10, sum.Attempted())
	assert.Equal(t, 10, sum.Canceled)
	assert.Equal(t, 10, sum.Sent.Len())
	assert.Zero(t, sum.Succeeded)
	// Attempts that won the gate before noticing cancellation still count.
	assert.LessOrEqual(t, calls.Load(), int64(10))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, Succeeded, classify(nil))
	assert.Equal(t, Canceled, classify(context.Canceled))
	assert.Equal(t, Canceled, classify(errors.Join(bus.ErrPublishFailed, context.DeadlineExceeded)))
	assert.Equal(t, Failed, classify(bus.ErrPublishFailed))
	assert.Equal(t, "failed", Failed.String())
}
