// Package embedded is an in-process message bus on the pebble event log.
//
// Each pubsub/topic pair gets three logs: the topic itself, a retry topic and
// a dead-letter topic. A dispatcher reads the topic from a durable cursor and
// hands entries to a bus.Handler through a bounded worker pool. A rejected
// delivery is appended to the retry topic with an exponential backoff; once an
// event has been delivered MaxAttempts times without success it is appended
// to the dead-letter topic instead. Delivery is at-least-once: a batch
// interrupted by shutdown is delivered again on the next start.
package embedded

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rzbill/flocheck/internal/bus"
	"github.com/rzbill/flocheck/internal/event"
	"github.com/rzbill/flocheck/internal/eventlog"
	pebblestore "github.com/rzbill/flocheck/internal/storage/pebble"
	"github.com/rzbill/flocheck/pkg/log"
)

// Stats are running dispatcher totals.
type Stats struct {
	Published    uint64 `json:"published"`
	Delivered    uint64 `json:"delivered"`
	Redelivered  uint64 `json:"redelivered"`
	Rejected     uint64 `json:"rejected"`
	DeadLettered uint64 `json:"deadLettered"`
	// Heads maps every open topic log, retry and dead-letter logs included, to the
	// last sequence it assigned. Sequences persist across restarts.
	Heads map[string]uint64 `json:"heads,omitempty"`
}

// Bus is safe for concurrent use. It does not own db.
type Bus struct {
	db     *pebblestore.DB
	opts   Options
	logger log.Logger

	mu   sync.Mutex
	logs map[string]*eventlog.Log

	published, delivered, redelivered, rejected, deadLettered atomic.Uint64
}

func New(db *pebblestore.DB, opts Options) *Bus {
	opts.withDefaults()
	return &Bus{
		db:     db,
		opts:   opts,
		logger: opts.Logger.WithComponent("bus.embedded"),
		logs:   make(map[string]*eventlog.Log),
	}
}

func topicName(pubsub, topic string) string { return pubsub + "/" + topic }
func retryName(pubsub, topic string) string { return topicName(pubsub, topic) + ".retry" }
func dlqName(pubsub, topic string) string   { return topicName(pubsub, topic) + ".dlq" }

// openLog returns the cached Log for name. Logs must be shared so that
// sequence assignment and append notifications stay consistent.
func (b *Bus) openLog(name string) (*eventlog.Log, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if l, ok := b.logs[name]; ok {
		return l, nil
	}
	l, err := eventlog.OpenLog(b.db, name)
	if err != nil {
		return nil, err
	}
	b.logs[name] = l
	return l, nil
}

// Publish appends e to the topic log.
func (b *Bus) Publish(ctx context.Context, pubsub, topic string, e event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l, err := b.openLog(topicName(pubsub, topic))
	if err != nil {
		return fmt.Errorf("%w: %v", bus.ErrPublishFailed, err)
	}
	h := header{MsgID: uuid.New(), Attempt: 1}
	if _, err := l.Append(ctx, []eventlog.AppendRecord{{Header: h.encode(), Payload: event.Marshal(e)}}); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", bus.ErrPublishFailed, err)
	}
	b.published.Add(1)
	return nil
}

// Dispatch delivers pubsub/topic to h until ctx is done, then returns nil.
// Due retries are served before new entries.
func (b *Bus) Dispatch(ctx context.Context, pubsub, topic string, h bus.Handler) error {
	main, err := b.openLog(topicName(pubsub, topic))
	if err != nil {
		return err
	}
	retry, err := b.openLog(retryName(pubsub, topic))
	if err != nil {
		return err
	}
	dlq, err := b.openLog(dlqName(pubsub, topic))
	if err != nil {
		return err
	}
	d := &dispatcher{bus: b, handler: h, retry: retry, dlq: dlq,
		logger: b.logger.With(log.Str("topic", topicName(pubsub, topic)))}

	group := b.opts.Group
	mainTok := main.ResumeToken(group)
	retryTok := retry.ResumeToken(group)
	d.logger.Info("dispatcher started",
		log.Uint64("from_seq", mainTok.Seq()),
		log.Int("workers", b.opts.Workers),
		log.Int("max_attempts", b.opts.MaxAttempts))

	for {
		mainCh, retryCh := main.Appended(), retry.Appended()
		if ctx.Err() != nil {
			return nil
		}
		now := b.opts.Now()

		items, _ := retry.Read(eventlog.ReadOptions{Start: retryTok, Limit: b.opts.BatchSize})
		due, wake := dueRetries(items, now)
		if len(due) > 0 {
			if !d.deliver(ctx, due) {
				return nil
			}
			last := due[len(due)-1].Seq
			retryTok = eventlog.TokenFromSeq(last + 1)
			if err := retry.CommitCursor(group, last); err != nil {
				d.logger.Error("commit retry cursor failed", log.Err(err))
			}
			if _, err := retry.TrimThrough(ctx, last, 0); err != nil {
				d.logger.Warn("trim retry topic failed", log.Err(err))
			}
			continue
		}

		items, next := main.Read(eventlog.ReadOptions{Start: mainTok, Limit: b.opts.BatchSize})
		if len(items) > 0 {
			if !d.deliver(ctx, items) {
				return nil
			}
			mainTok = next
			if err := main.CommitCursor(group, items[len(items)-1].Seq); err != nil {
				d.logger.Error("commit cursor failed", log.Err(err))
			}
			continue
		}

		var timer *time.Timer
		var timerC <-chan time.Time
		if !wake.IsZero() {
			timer = time.NewTimer(max(wake.Sub(now), time.Millisecond))
			timerC = timer.C
		}
		select {
		case <-ctx.Done():
		case <-mainCh:
		case <-retryCh:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// dueRetries returns the leading retry entries whose backoff has elapsed and
// the time the first pending one becomes due (zero if none is pending).
func dueRetries(items []eventlog.Item, now time.Time) ([]eventlog.Item, time.Time) {
	for i, it := range items {
		h, err := decodeHeader(it.Header)
		if err == nil && h.NotBefore > now.UnixMilli() {
			return items[:i], time.UnixMilli(h.NotBefore)
		}
	}
	return items, time.Time{}
}

// DeadLetters returns the events parked on the dead-letter topic, in the
// order they were dead-lettered.
func (b *Bus) DeadLetters(pubsub, topic string) ([]event.Event, error) {
	l, err := b.openLog(dlqName(pubsub, topic))
	if err != nil {
		return nil, err
	}
	items, _ := l.Read(eventlog.ReadOptions{})
	out := make([]event.Event, 0, len(items))
	for _, it := range items {
		e, err := event.Decode(it.Payload)
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (b *Bus) Stats() Stats {
	st := Stats{
		Published:    b.published.Load(),
		Delivered:    b.delivered.Load(),
		Redelivered:  b.redelivered.Load(),
		Rejected:     b.rejected.Load(),
		DeadLettered: b.deadLettered.Load(),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.logs) > 0 {
		st.Heads = make(map[string]uint64, len(b.logs))
		for name, l := range b.logs {
			st.Heads[name] = l.LastSeq()
		}
	}
	return st
}

type dispatcher struct {
	bus     *Bus
	handler bus.Handler
	retry   *eventlog.Log
	dlq     *eventlog.Log
	logger  log.Logger
}

// deliver hands items to the handler with bounded concurrency and waits for
// all of them. It reports false if ctx ended, in which case the batch must not
// be committed.
func (d *dispatcher) deliver(ctx context.Context, items []eventlog.Item) bool {
	var g errgroup.Group
	g.SetLimit(d.bus.opts.Workers)
	for _, it := range items {
		g.Go(func() error {
			d.deliverOne(ctx, it)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err() == nil
}

func (d *dispatcher) deliverOne(ctx context.Context, it eventlog.Item) {
	h, herr := decodeHeader(it.Header)
	e, eerr := event.Decode(it.Payload)
	if herr != nil || eerr != nil {
		d.logger.Error("undecodable entry, dead-lettering", log.Uint64("seq", it.Seq))
		d.park(ctx, d.dlq, it.Header, it.Payload)
		d.bus.deadLettered.Add(1)
		return
	}
	if h.Attempt > 1 {
		d.bus.redelivered.Add(1)
	}
	err := d.handler.Handle(ctx, e)
	if err == nil {
		d.bus.delivered.Add(1)
		return
	}
	if ctx.Err() != nil {
		return
	}
	d.bus.rejected.Add(1)

	fields := []log.Field{log.Int("id", e.ID), log.Int("attempt", int(h.Attempt)), log.Err(err)}
	if int(h.Attempt) >= d.bus.opts.MaxAttempts {
		d.logger.Warn("delivery attempts exhausted, dead-lettering", fields...)
		d.park(ctx, d.dlq, h.encode(), it.Payload)
		d.bus.deadLettered.Add(1)
		return
	}
	delay := d.bus.opts.backoff(h.Attempt)
	next := header{MsgID: h.MsgID, Attempt: h.Attempt + 1, NotBefore: d.bus.opts.Now().Add(delay).UnixMilli()}
	d.logger.Debug("delivery rejected, scheduling retry", append(fields, log.Dur("backoff", delay))...)
	d.park(ctx, d.retry, next.encode(), it.Payload)
}

func (d *dispatcher) park(ctx context.Context, l *eventlog.Log, hdr, payload []byte) {
	if _, err := l.Append(ctx, []eventlog.AppendRecord{{Header: hdr, Payload: payload}}); err != nil {
		d.logger.Error("append failed", log.Str("log", l.Topic()), log.Err(err))
	}
}
