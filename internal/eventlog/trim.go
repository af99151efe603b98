package eventlog

import (
	"context"

	"github.com/cockroachdb/pebble"
)

// TrimThrough deletes every entry with seq <= through, committing in batches
// of up to batchLimit deletes. The metadata key is kept, so sequence numbers
// are never reused. Returns the number of entries deleted.
func (l *Log) TrimThrough(ctx context.Context, through uint64, batchLimit int) (int, error) {
	if batchLimit <= 0 {
		batchLimit = 1024
	}
	upper := KeyLogEntry(l.topic, through)
	upper = append(upper, 0x00)
	it, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: KeyLogEntryPrefix(l.topic),
		UpperBound: upper,
	})
	if err != nil {
		return 0, err
	}
	defer it.Close()

	deleted := 0
	for ok := it.First(); ok; {
		b := l.db.NewBatch()
		n := 0
		for ; ok && n < batchLimit; ok = it.Next() {
			if err := b.Delete(it.Key(), nil); err != nil {
				b.Close()
				return deleted, err
			}
			n++
		}
		err := l.db.CommitBatch(ctx, b)
		b.Close()
		if err != nil {
			return deleted, err
		}
		deleted += n
	}
	return deleted, nil
}
