// Package converge decides when the receiving side has stopped making
// progress.
//
// A Monitor polls a counter at a fixed interval. It returns as soon as the
// count reaches the target, or once the count has not changed for
// MaxStagnantTicks consecutive polls. Stagnation is how a run under an
// at-least-once bus with permanent rejections finishes: the bus keeps
// redelivering, the count stops moving, and the monitor calls it.
package converge

import (
	"context"
	"errors"
	"time"

	"github.com/rzbill/flocheck/pkg/log"
)

// ErrNotConverged reports that the count stalled below the target. It is
// informational: the run still produces a report.
var ErrNotConverged = errors.New("delivery count stalled below target")

const (
	DefaultPollInterval     = 2 * time.Second
	DefaultMaxStagnantTicks = 5
)

// Counter is the read side of a delivery ledger.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// CounterFunc adapts a function to Counter.
type CounterFunc func(ctx context.Context) (int, error)

func (f CounterFunc) Count(ctx context.Context) (int, error) { return f(ctx) }

// Options tune a Monitor. Zero values take the defaults.
type Options struct {
	PollInterval     time.Duration
	MaxStagnantTicks int
	Logger           log.Logger
}

// Result is the last observation of one Await.
type Result struct {
	Count     int  `json:"count"`
	Converged bool `json:"converged"`
	Ticks     int  `json:"ticks"`
}

// Monitor polls a Counter until it converges or stalls.
type Monitor struct {
	counter  Counter
	interval time.Duration
	maxStall int
	logger   log.Logger
}

func NewMonitor(c Counter, opts Options) *Monitor {
	m := &Monitor{
		counter:  c,
		interval: opts.PollInterval,
		maxStall: opts.MaxStagnantTicks,
		logger:   opts.Logger,
	}
	if m.interval <= 0 {
		m.interval = DefaultPollInterval
	}
	if m.maxStall < 1 {
		m.maxStall = DefaultMaxStagnantTicks
	}
	if m.logger == nil {
		m.logger = log.NewNopLogger()
	}
	return m
}

// Await blocks until the count reaches target (Converged), stays unchanged
// for MaxStagnantTicks polls (ErrNotConverged), or ctx is done (ctx.Err()).
// The returned Result always carries the last count observed.
func (m *Monitor) Await(ctx context.Context, target int) (Result, error) {
	var res Result
	last, err := m.counter.Count(ctx)
	if err != nil {
		m.logger.Warn("initial ledger count failed", log.Err(err))
		last = 0
	}
	res.Count = last
	if err == nil && last >= target {
		res.Converged = true
		return res, nil
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	stagnant := 0
	for {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-ticker.C:
		}
		res.Ticks++

		n, err := m.counter.Count(ctx)
		if err != nil {
			stagnant++
			m.logger.Warn("ledger count failed", log.Err(err), log.Int("stagnant_ticks", stagnant))
		} else {
			res.Count = n
			if n >= target {
				res.Converged = true
				m.logger.Info("all expected messages received", log.Int("count", n), log.Int("target", target))
				return res, nil
			}
			if n == last {
				stagnant++
			} else {
				stagnant = 0
				last = n
			}
			m.logger.Debug("convergence tick",
				log.Int("count", n),
				log.Int("target", target),
				log.Int("stagnant_ticks", stagnant))
		}
		if stagnant >= m.maxStall {
			m.logger.Warn("message count stagnant, assuming delivery finished",
				log.Int("count", res.Count),
				log.Int("target", target),
				log.Int("ticks", res.Ticks))
			return res, ErrNotConverged
		}
	}
}
