// Package eventlog is the append-only topic log under the embedded bus.
//
// # Overview
//
// Each topic is one log persisted in Pebble. Keys sort lexicographically so
// a topic's entries form one contiguous range:
//   - log/{topic}/m               (metadata: lastSeq)
//   - log/{topic}/e/{seq_be8}     (entries)
//   - cursor/{topic}/{group}      (durable group cursors)
//
// Records are stored as: uvarint headerLen | header | payload | crc32c(header|payload).
//
// API surface (internal)
//
//	l, _ := OpenLog(db, "orderpubsub/orders")
//	seqs, _ := l.Append(ctx, []AppendRecord{{Header: h, Payload: p}})
//
//	// Forward/reverse reads with an optional start token and limit
//	items, next := l.Read(ReadOptions{Start: TokenFromSeq(seqs[0]), Limit: 100})
//
//	// Wake on append
//	select {
//	case <-l.Appended():
//	case <-ctx.Done():
//	}
//
//	// Durable consumer cursors never regress
//	_ = l.CommitCursor("dispatcher", seqs[len(seqs)-1])
//
//	// Drop entries a consumer no longer needs
//	_, _ = l.TrimThrough(ctx, seq, 512)
package eventlog
