package pebblestore

import (
	"context"
	"errors"
	"iter"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/rzbill/flocheck/pkg/log"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = pebble.ErrNotFound

// ErrClosed is returned by NewIter after Close.
var ErrClosed = pebble.ErrClosed

// FsyncMode defines durability behavior for write operations.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways syncs the WAL on every committed batch.
	FsyncModeAlways
	// FsyncModeInterval lets Pebble coalesce WAL syncs within FsyncInterval.
	FsyncModeInterval
	// FsyncModeNever never forces a WAL sync from the application.
	FsyncModeNever
)

// Options configures the store.
type Options struct {
	// DataDir is the database directory. Ignored when InMemory is set.
	DataDir string
	// InMemory keeps everything on an in-memory filesystem.
	InMemory bool
	Fsync    FsyncMode
	// FsyncInterval controls group-commit when Fsync=FsyncModeInterval.
	FsyncInterval time.Duration
	// Logger receives Pebble's own log lines. Optional.
	Logger log.Logger
	// PebbleOptions allows advanced tuning of Pebble.
	PebbleOptions *pebble.Options
}

// Stats are running totals of store traffic.
type Stats struct {
	Writes      uint64 `json:"writes"`
	WriteBytes  uint64 `json:"writeBytes"`
	Reads       uint64 `json:"reads"`
	ReadBytes   uint64 `json:"readBytes"`
	Commits     uint64 `json:"commits"`
	CommitNanos uint64 `json:"commitNanos"`
}

// DB wraps a Pebble database with an fsync policy and a few helpers.
type DB struct {
	inner     *pebble.DB
	writeSync bool
	closed    atomic.Bool

	writes, writeBytes  atomic.Uint64
	reads, readBytes    atomic.Uint64
	commits, commitNano atomic.Uint64
}

// Open creates or opens a database.
func Open(opts Options) (*DB, error) {
	if opts.DataDir == "" && !opts.InMemory {
		return nil, errors.New("pebble: Options.DataDir is required")
	}

	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}
	if opts.InMemory {
		po.FS = vfs.NewMem()
	}
	if opts.Logger != nil {
		po.Logger = opts.Logger.WithComponent("pebble")
	}

	switch opts.Fsync {
	case FsyncModeAlways, FsyncModeNever:
	case FsyncModeInterval:
		if opts.FsyncInterval <= 0 {
			opts.FsyncInterval = 5 * time.Millisecond
		}
		po.WALMinSyncInterval = func() time.Duration { return opts.FsyncInterval }
	default:
		po.WALMinSyncInterval = func() time.Duration { return 5 * time.Millisecond }
	}

	dir := opts.DataDir
	if opts.InMemory && dir == "" {
		dir = "mem"
	}
	inner, err := pebble.Open(dir, po)
	if err != nil {
		return nil, err
	}
	return &DB{inner: inner, writeSync: opts.Fsync == FsyncModeAlways}, nil
}

// Close closes the database. It is safe on a nil DB.
func (db *DB) Close() error {
	if db == nil || db.inner == nil || !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	return db.inner.Close()
}

// NewBatch creates a batch for atomic multi-key updates.
func (db *DB) NewBatch() *pebble.Batch {
	return db.inner.NewBatch()
}

// CommitBatch commits b with the configured fsync policy.
func (db *DB) CommitBatch(ctx context.Context, b *pebble.Batch) error {
	if b == nil {
		return errors.New("pebble: nil batch")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	size := b.Len()
	syncMode := pebble.NoSync
	if db.writeSync {
		syncMode = pebble.Sync
	}
	err := b.Commit(syncMode)
	if err == nil {
		db.commits.Add(1)
		db.commitNano.Add(uint64(time.Since(start)))
		db.writes.Add(uint64(b.Count()))
		db.writeBytes.Add(uint64(size))
	}
	return err
}

// Set writes one key.
func (db *DB) Set(key, value []byte) error {
	b := db.inner.NewBatch()
	defer b.Close()
	if err := b.Set(key, value, nil); err != nil {
		return err
	}
	return db.CommitBatch(context.Background(), b)
}

// Delete removes one key.
func (db *DB) Delete(key []byte) error {
	b := db.inner.NewBatch()
	defer b.Close()
	if err := b.Delete(key, nil); err != nil {
		return err
	}
	return db.CommitBatch(context.Background(), b)
}

// Get returns a copy of the value for key, or ErrNotFound.
func (db *DB) Get(key []byte) ([]byte, error) {
	val, closer, err := db.inner.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	buf := append([]byte(nil), val...)
	db.reads.Add(1)
	db.readBytes.Add(uint64(len(buf)))
	return buf, nil
}

// Has reports whether key exists.
func (db *DB) Has(key []byte) (bool, error) {
	_, closer, err := db.inner.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	db.reads.Add(1)
	return true, nil
}

// NewIter creates a raw iterator.
func (db *DB) NewIter(opts *pebble.IterOptions) (*pebble.Iterator, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	return db.inner.NewIter(opts)
}

// ScanPrefix yields every key/value under prefix in key order. The slices are
// only valid until the next iteration step.
func (db *DB) ScanPrefix(prefix []byte) iter.Seq2[[]byte, []byte] {
	return func(yield func([]byte, []byte) bool) {
		it, err := db.inner.NewIter(&pebble.IterOptions{
			LowerBound: prefix,
			UpperBound: PrefixUpperBound(prefix),
		})
		if err != nil {
			return
		}
		defer it.Close()
		for ok := it.First(); ok; ok = it.Next() {
			if !yield(it.Key(), it.Value()) {
				return
			}
		}
	}
}

// DeletePrefix removes every key under prefix.
func (db *DB) DeletePrefix(prefix []byte) error {
	b := db.inner.NewBatch()
	defer b.Close()
	if err := b.DeleteRange(prefix, PrefixUpperBound(prefix), nil); err != nil {
		return err
	}
	return db.CommitBatch(context.Background(), b)
}

// Stats returns the running traffic totals.
func (db *DB) Stats() Stats {
	return Stats{
		Writes:      db.writes.Load(),
		WriteBytes:  db.writeBytes.Load(),
		Reads:       db.reads.Load(),
		ReadBytes:   db.readBytes.Load(),
		Commits:     db.commits.Load(),
		CommitNanos: db.commitNano.Load(),
	}
}

// PrefixUpperBound returns the smallest key greater than every key with the
// given prefix, or nil if there is none.
func PrefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
