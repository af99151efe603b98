package eventlog

import (
	"context"
	"testing"
	"time"

	pebblestore "github.com/rzbill/flocheck/internal/storage/pebble"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	l, err := OpenLog(db, "orderpubsub/orders")
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	return l
}

func TestOpenLogRejectsEmptyTopic(t *testing.T) {
	db, err := pebblestore.Open(pebblestore.Options{InMemory: true})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	defer db.Close()
	if _, err := OpenLog(db, ""); err != ErrEmptyTopic {
		t.Fatalf("want ErrEmptyTopic, got %v", err)
	}
}

func TestAppendAssignsSequential(t *testing.T) {
	l := newTestLog(t)
	seqs, err := l.Append(context.Background(), []AppendRecord{{Header: []byte("h1"), Payload: []byte("p1")}, {Header: []byte("h2"), Payload: []byte("p2")}})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 2 {
		t.Fatalf("want seqs [1 2], got %v", seqs)
	}
	if l.LastSeq() != 2 {
		t.Fatalf("want lastSeq 2, got %d", l.LastSeq())
	}
}

func TestAppendDurableAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	l, err := OpenLog(db, "orders")
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	seqs, err := l.Append(ctx, []AppendRecord{{Payload: []byte("x")}})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("reopen pebble: %v", err)
	}
	t.Cleanup(func() { _ = db2.Close() })
	l2, err := OpenLog(db2, "orders")
	if err != nil {
		t.Fatalf("open log2: %v", err)
	}
	seqs2, err := l2.Append(ctx, []AppendRecord{{Payload: []byte("y")}})
	if err != nil {
		t.Fatalf("append2: %v", err)
	}
	if !(seqs[0] < seqs2[0]) {
		t.Fatalf("expected next seq > previous: prev=%d next=%d", seqs[0], seqs2[0])
	}
}

func TestAppendedWakesWaiter(t *testing.T) {
	l := newTestLog(t)
	ch := l.Appended()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = l.Append(context.Background(), []AppendRecord{{Payload: []byte("x")}})
	}()

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for append notification")
	}

	select {
	case <-l.Appended():
		t.Fatalf("fresh notify channel should be open")
	default:
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	db, err := pebblestore.Open(pebblestore.Options{InMemory: true})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	defer db.Close()
	a, _ := OpenLog(db, "orders")
	b, _ := OpenLog(db, "orders-retry")
	ctx := context.Background()
	_, _ = a.Append(ctx, []AppendRecord{{Payload: []byte("a")}})
	_, _ = b.Append(ctx, []AppendRecord{{Payload: []byte("b1")}, {Payload: []byte("b2")}})

	items, _ := a.Read(ReadOptions{})
	if len(items) != 1 || string(items[0].Payload) != "a" {
		t.Fatalf("orders saw %d items", len(items))
	}
}
