package harness

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/flocheck/internal/bus"
	"github.com/rzbill/flocheck/internal/converge"
	"github.com/rzbill/flocheck/internal/event"
	"github.com/rzbill/flocheck/internal/inject"
	"github.com/rzbill/flocheck/internal/ledger"
	"github.com/rzbill/flocheck/internal/publish"
	pebblestore "github.com/rzbill/flocheck/internal/storage/pebble"
	"github.com/rzbill/flocheck/internal/subscriber"
)

// loopback delivers every publish straight to the subscriber handler,
// ignoring rejections like a bus that has given up on them.
func loopback(h bus.Handler) bus.Publisher {
	return bus.PublisherFunc(func(ctx context.Context, _, _ string, e event.Event) error {
		_ = h.Handle(ctx, e)
		return nil
	})
}

func newJob(count int, failRate float64, report *bytes.Buffer) (*Job, *ledger.Memory) {
	l := ledger.NewMemory()
	h := subscriber.NewHandler(inject.ThresholdPolicy{Total: count, FailRate: failRate}, l, nil)
	return &Job{
		RunID:          "run-1",
		Count:          count,
		MaxConcurrency: 5,
		Pipeline:       &publish.Pipeline{Publisher: loopback(h), Topic: "orders"},
		Ledger:         l,
		Monitor:        converge.Options{PollInterval: 2 * time.Millisecond, MaxStagnantTicks: 3},
		Report:         report,
	}, l
}

func TestJobReportsLoss(t *testing.T) {
	var out bytes.Buffer
	job, _ := newJob(10, 0.3, &out)

	h := job.Start(context.Background())
	res, err := h.Wait()
	require.NoError(t, err)

	assert.Equal(t, Done, h.Status())
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, 10, res.Summary.Succeeded)
	require.NotNil(t, res.Convergence)
	assert.False(t, res.Convergence.Converged)
	assert.Equal(t, 7, res.Convergence.Count)
	require.NotNil(t, res.Report)
	assert.Equal(t, []int{1, 2, 3}, res.Report.MissingIDs)
	assert.Contains(t, out.String(), "Lost Order IDs: [1, 2, 3]")
	assert.False(t, res.Finished.Before(res.Started))
}

func TestJobCleanRun(t *testing.T) {
	var out bytes.Buffer
	job, _ := newJob(25, 0, &out)
	res, err := job.Start(context.Background()).Wait()
	require.NoError(t, err)
	assert.True(t, res.Convergence.Converged)
	assert.False(t, res.Report.Lossy())
	assert.Contains(t, out.String(), "No message loss detected")
}

func TestJobStartsFromEmptyLedger(t *testing.T) {
	l := ledger.NewMemory()
	for id := 1; id <= 10; id++ {
		_, _ = l.Record(context.Background(), id)
	}
	var out bytes.Buffer
	job, _ := newJob(10, 0.3, &out)
	h := subscriber.NewHandler(inject.ThresholdPolicy{Total: 10, FailRate: 0.3}, l, nil)
	job.Pipeline.Publisher = loopback(h)
	job.Ledger = l

	res, err := job.Start(context.Background()).Wait()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, res.Report.MissingIDs)
}

func TestJobRepeatedOnDurableLedger(t *testing.T) {
	dir := t.TempDir()
	run := func(failRate float64) Result {
		db, err := pebblestore.Open(pebblestore.Options{DataDir: dir})
		require.NoError(t, err)
		defer db.Close()
		l, err := ledger.OpenPebble(db, "flocheck:ledger:orders")
		require.NoError(t, err)

		var out bytes.Buffer
		job, _ := newJob(10, failRate, &out)
		h := subscriber.NewHandler(inject.ThresholdPolicy{Total: 10, FailRate: failRate}, l, nil)
		job.Pipeline.Publisher = loopback(h)
		job.Ledger = l
		res, err := job.Start(context.Background()).Wait()
		require.NoError(t, err)
		return res
	}

	first := run(0)
	assert.False(t, first.Report.Lossy())

	second := run(0.3)
	require.NotNil(t, second.Report)
	assert.Equal(t, 7, second.Report.AcceptedCount)
	assert.Equal(t, []int{1, 2, 3}, second.Report.MissingIDs)
}

func TestJobWithoutLedgerStopsAfterPublishing(t *testing.T) {
	var out bytes.Buffer
	job, _ := newJob(4, 0, &out)
	job.Ledger = nil
	res, err := job.Start(context.Background()).Wait()
	require.NoError(t, err)
	assert.Nil(t, res.Report)
	assert.Equal(t, 4, res.Summary.Succeeded)
	assert.Empty(t, out.String())
}

func TestJobCancelDuringStartDelay(t *testing.T) {
	job, _ := newJob(4, 0, &bytes.Buffer{})
	job.StartDelay = time.Hour
	h := job.Start(context.Background())
	assert.False(t, h.Status().Terminal())
	st, res := h.Snapshot()
	assert.Equal(t, Pending, st)
	assert.Nil(t, res)

	h.Cancel()
	_, err := h.Wait()
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Canceled, h.Status())
}

func TestJobGeneratesRunID(t *testing.T) {
	job, _ := newJob(1, 0, &bytes.Buffer{})
	job.RunID = ""
	h := job.Start(context.Background())
	_, _ = h.Wait()
	assert.Len(t, h.RunID(), 36)
}

func TestStatusText(t *testing.T) {
	b, err := Converging.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "converging", string(b))
	assert.Equal(t, "unknown", Status(42).String())
	assert.True(t, Failed.Terminal())
	assert.False(t, Publishing.Terminal())
}
