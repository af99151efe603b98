package eventlog

import (
	"encoding/binary"
)

// CommitCursor stores the last processed seq for group. Commits at or below
// the stored value are ignored, so a cursor never moves backwards.
func (l *Log) CommitCursor(group string, seq uint64) error {
	key := KeyCursor(l.topic, group)
	if cur, err := l.db.Get(key); err == nil && len(cur) >= 8 {
		if seq <= binary.BigEndian.Uint64(cur[:8]) {
			return nil
		}
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return l.db.Set(key, b[:])
}

// Cursor loads the last processed seq for group.
func (l *Log) Cursor(group string) (uint64, bool) {
	cur, err := l.db.Get(KeyCursor(l.topic, group))
	if err != nil || len(cur) < 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(cur[:8]), true
}

// ResumeToken is where group should continue reading: one past its cursor,
// or the beginning of the log for a new group.
func (l *Log) ResumeToken(group string) Token {
	if seq, ok := l.Cursor(group); ok {
		return TokenFromSeq(seq + 1)
	}
	return Token{}
}
