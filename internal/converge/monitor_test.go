package converge

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tick = 2 * time.Millisecond

func TestAwaitAlreadyComplete(t *testing.T) {
	var calls atomic.Int64
	c := CounterFunc(func(context.Context) (int, error) {
		calls.Add(1)
		return 10, nil
	})
	res, err := NewMonitor(c, Options{PollInterval: time.Hour}).Await(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, Result{Count: 10, Converged: true}, res)
	assert.EqualValues(t, 1, calls.Load())
}

func TestAwaitZeroTarget(t *testing.T) {
	c := CounterFunc(func(context.Context) (int, error) { return 0, nil })
	res, err := NewMonitor(c, Options{PollInterval: time.Hour}).Await(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, res.Converged)
}

func TestAwaitReachesTarget(t *testing.T) {
	var n atomic.Int64
	c := CounterFunc(func(context.Context) (int, error) { return int(n.Add(2)), nil })
	res, err := NewMonitor(c, Options{PollInterval: tick, MaxStagnantTicks: 3}).Await(context.Background(), 10)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.GreaterOrEqual(t, res.Count, 10)
}

func TestAwaitStallsAfterMaxTicks(t *testing.T) {
	c := CounterFunc(func(context.Context) (int, error) { return 7, nil })
	res, err := NewMonitor(c, Options{PollInterval: tick, MaxStagnantTicks: 5}).Await(context.Background(), 10)
	assert.ErrorIs(t, err, ErrNotConverged)
	assert.Equal(t, Result{Count: 7, Converged: false, Ticks: 5}, res)
}

func TestAwaitProgressResetsStagnation(t *testing.T) {
	// 1,1,2,2,3,3,3,3 ... never reaches 10.
	seq := []int{1, 1, 2, 2, 3}
	var i atomic.Int64
	c := CounterFunc(func(context.Context) (int, error) {
		k := int(i.Add(1)) - 1
		if k >= len(seq) {
			return seq[len(seq)-1], nil
		}
		return seq[k], nil
	})
	res, err := NewMonitor(c, Options{PollInterval: tick, MaxStagnantTicks: 3}).Await(context.Background(), 10)
	assert.ErrorIs(t, err, ErrNotConverged)
	assert.Equal(t, 3, res.Count)
	// seed(1) then ticks: 1(s1) 2(r) 2(s1) 3(r) 3 3 3 -> 7 ticks.
	assert.Equal(t, 7, res.Ticks)
}

func TestAwaitCountErrorsAreStagnant(t *testing.T) {
	boom := errors.New("redis down")
	c := CounterFunc(func(context.Context) (int, error) { return 0, boom })
	res, err := NewMonitor(c, Options{PollInterval: tick, MaxStagnantTicks: 2}).Await(context.Background(), 3)
	assert.ErrorIs(t, err, ErrNotConverged)
	assert.Equal(t, 2, res.Ticks)
	assert.Zero(t, res.Count)
}

func TestAwaitCanceled(t *testing.T) {
	c := CounterFunc(func(context.Context) (int, error) { return 4, nil })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := NewMonitor(c, Options{PollInterval: time.Hour}).Await(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 4, res.Count)
}

func TestNewMonitorDefaults(t *testing.T) {
	m := NewMonitor(CounterFunc(nil), Options{})
	assert.Equal(t, DefaultPollInterval, m.interval)
	assert.Equal(t, DefaultMaxStagnantTicks, m.maxStall)
}
