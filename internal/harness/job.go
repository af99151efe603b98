// Package harness runs one delivery check end to end: wait for the receiving
// side, publish the population, wait for deliveries to settle, and report.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rzbill/flocheck/internal/converge"
	"github.com/rzbill/flocheck/internal/ledger"
	"github.com/rzbill/flocheck/internal/publish"
	"github.com/rzbill/flocheck/internal/reconcile"
	"github.com/rzbill/flocheck/pkg/log"
)

// Status is the lifecycle state of a run.
type Status int32

const (
	Pending Status = iota
	Publishing
	Converging
	Done
	Failed
	Canceled
)

var statusNames = [...]string{"pending", "publishing", "converging", "done", "failed", "canceled"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Terminal reports whether the run has finished.
func (s Status) Terminal() bool { return s >= Done }

// Result is what a finished run produced. Convergence and Report are only
// set when the job had a ledger to reconcile against.
type Result struct {
	RunID       string            `json:"runId"`
	Summary     publish.Summary   `json:"summary"`
	Convergence *converge.Result  `json:"convergence,omitempty"`
	Report      *reconcile.Report `json:"report,omitempty"`
	Started     time.Time         `json:"started"`
	Finished    time.Time         `json:"finished"`
}

// Job describes one run. Ledger may be nil when the accepted ids live
// somewhere this process cannot read; the run then stops after publishing.
// Otherwise the ledger is reset before the first publish, so its contents
// belong to this run alone.
type Job struct {
	RunID          string
	Count          int
	MaxConcurrency int
	StartDelay     time.Duration
	Pipeline       *publish.Pipeline
	Ledger         ledger.Ledger
	Monitor        converge.Options
	// Report receives the rendered delivery report. Defaults to stdout.
	Report io.Writer
	Logger log.Logger
}

// Handle tracks a started Job.
type Handle struct {
	runID  string
	status atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	res Result
	err error
}

// Start launches the job in its own goroutine. Cancelling ctx or calling
// Handle.Cancel stops it; Wait returns once it has stopped.
func (j *Job) Start(ctx context.Context) *Handle {
	runID := j.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{runID: runID, cancel: cancel, done: make(chan struct{})}
	h.res = Result{RunID: runID}
	go func() {
		defer close(h.done)
		defer cancel()
		j.run(ctx, h)
	}()
	return h
}

func (h *Handle) RunID() string { return h.runID }

func (h *Handle) Status() Status { return Status(h.status.Load()) }

// Done is closed when the run has stopped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cancel stops the run. It does not wait.
func (h *Handle) Cancel() { h.cancel() }

// Wait blocks until the run stops and returns its result. A stalled
// convergence is not an error; it shows up in Result.Convergence.
func (h *Handle) Wait() (Result, error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.res, h.err
}

// Snapshot returns the current status and, once terminal, the result.
func (h *Handle) Snapshot() (Status, *Result) {
	st := h.Status()
	if !st.Terminal() {
		return st, nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	res := h.res
	return st, &res
}

func (h *Handle) finish(st Status, err error) {
	h.mu.Lock()
	h.res.Finished = time.Now()
	h.err = err
	h.mu.Unlock()
	h.status.Store(int32(st))
}

func (j *Job) run(ctx context.Context, h *Handle) {
	logger := j.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = logger.WithComponent("harness").With(log.Str("run_id", h.runID))
	h.mu.Lock()
	h.res.Started = time.Now()
	h.mu.Unlock()

	if j.Pipeline == nil {
		h.finish(Failed, errors.New("harness: job has no pipeline"))
		return
	}

	if j.StartDelay > 0 {
		logger.Info("waiting for subscriber", log.Dur("delay", j.StartDelay))
		t := time.NewTimer(j.StartDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			h.finish(Canceled, ctx.Err())
			return
		case <-t.C:
		}
	}

	if j.Ledger != nil {
		if err := j.Ledger.Reset(ctx); err != nil {
			h.finish(Failed, fmt.Errorf("reset ledger: %w", err))
			return
		}
	}

	h.status.Store(int32(Publishing))
	logger.Info("starting to publish",
		log.Int("count", j.Count),
		log.Int("max_concurrency", j.MaxConcurrency))
	sum := j.Pipeline.Run(ctx, j.Count, j.MaxConcurrency)
	h.mu.Lock()
	h.res.Summary = sum
	h.mu.Unlock()
	logger.Info("finished attempting to publish",
		log.Int("count", j.Count),
		log.Int("attempted", sum.Attempted()))
	if ctx.Err() != nil {
		h.finish(Canceled, ctx.Err())
		return
	}

	if j.Ledger == nil {
		logger.Info("no readable ledger, skipping reconciliation",
			log.Int("succeeded", sum.Succeeded),
			log.Int("failed", sum.Failed),
			log.Int("canceled", sum.Canceled))
		h.finish(Done, nil)
		return
	}

	h.status.Store(int32(Converging))
	opts := j.Monitor
	if opts.Logger == nil {
		opts.Logger = logger
	}
	conv, err := converge.NewMonitor(j.Ledger, opts).Await(ctx, j.Count)
	h.mu.Lock()
	h.res.Convergence = &conv
	h.mu.Unlock()
	switch {
	case err == nil, errors.Is(err, converge.ErrNotConverged):
	default:
		h.finish(Canceled, err)
		return
	}

	accepted, err := j.Ledger.IDs(ctx)
	if err != nil {
		h.finish(Failed, fmt.Errorf("read ledger: %w", err))
		return
	}
	rep := reconcile.Reconcile(sum.Sent.IDs(), accepted)
	h.mu.Lock()
	h.res.Report = &rep
	h.mu.Unlock()

	w := j.Report
	if w == nil {
		w = os.Stdout
	}
	if err := reconcile.Render(w, rep); err != nil {
		logger.Warn("write report failed", log.Err(err))
	}
	if rep.Lossy() {
		logger.Error("message loss detected", log.Int("lost", len(rep.MissingIDs)))
	} else {
		logger.Info("all messages accounted for")
	}
	h.finish(Done, nil)
}
