package eventlog

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble"
)

// Token encodes a read position as seq (8 bytes big-endian). The zero Token
// means "from the first entry" (or the last, for reverse reads).
type Token [8]byte

func TokenFromSeq(seq uint64) Token { var t Token; binary.BigEndian.PutUint64(t[:], seq); return t }
func (t Token) Seq() uint64         { return binary.BigEndian.Uint64(t[:]) }
func (t Token) IsZero() bool        { return t == Token{} }

type ReadOptions struct {
	Start   Token
	Limit   int
	Reverse bool
}

type Item struct {
	Seq     uint64
	Header  []byte
	Payload []byte
}

// Read returns up to Limit items starting at Start (inclusive) and the token
// of the item after the last one returned. When the log is exhausted the
// returned token points one past the end, so it can be passed straight back
// to Read once more entries arrive. Corrupt entries are skipped.
func (l *Log) Read(opts ReadOptions) ([]Item, Token) {
	prefix := KeyLogEntryPrefix(l.topic)
	items := make([]Item, 0, max(1, opts.Limit))
	next := opts.Start

	it, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: append(KeyLogEntry(l.topic, ^uint64(0)), 0x00),
	})
	if err != nil {
		return items, next
	}
	defer it.Close()

	seqOf := func() uint64 { return binary.BigEndian.Uint64(it.Key()[len(prefix):]) }
	full := func() bool { return opts.Limit > 0 && len(items) >= opts.Limit }
	collect := func() {
		if r, err := decodeEntry(it.Value()); err == nil {
			items = append(items, Item{Seq: seqOf(), Header: r.Header, Payload: r.Payload})
		}
	}

	if opts.Reverse {
		var ok bool
		if opts.Start.IsZero() {
			ok = it.Last()
		} else {
			ok = it.SeekLT(KeyLogEntry(l.topic, opts.Start.Seq()+1))
		}
		for ; ok && !full(); ok = it.Prev() {
			collect()
		}
		if ok {
			next = TokenFromSeq(seqOf())
		} else {
			next = Token{}
		}
		return items, next
	}

	ok := it.SeekGE(KeyLogEntry(l.topic, opts.Start.Seq()))
	for ; ok && !full(); ok = it.Next() {
		collect()
		next = TokenFromSeq(seqOf() + 1)
	}
	if ok {
		next = TokenFromSeq(seqOf())
	}
	return items, next
}
