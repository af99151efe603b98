package eventlog

import (
	"encoding/binary"
)

// Keyspace helpers for Pebble keys. Topics may contain '/'; the fixed-width
// sequence suffix keeps entry keys unambiguous.

var (
	sep        = byte('/')
	logPrefix  = []byte("log/")
	curPrefix  = []byte("cursor/")
	metaSuffix = []byte("/m")
	entrySeg   = []byte("/e/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// KeyLogMeta builds the topic metadata key.
func KeyLogMeta(topic string) []byte {
	k := make([]byte, 0, len(topic)+8)
	k = append(k, logPrefix...)
	k = append(k, topic...)
	return append(k, metaSuffix...)
}

// KeyLogEntryPrefix is the common prefix of every entry key of topic.
func KeyLogEntryPrefix(topic string) []byte {
	k := make([]byte, 0, len(topic)+16)
	k = append(k, logPrefix...)
	k = append(k, topic...)
	return append(k, entrySeg...)
}

// KeyLogEntry builds the entry key with a big-endian sequence for ordering.
func KeyLogEntry(topic string, seq uint64) []byte {
	return appendBE8(KeyLogEntryPrefix(topic), seq)
}

// KeyCursor builds the durable cursor key for a consumer group.
func KeyCursor(topic, group string) []byte {
	k := make([]byte, 0, len(topic)+len(group)+16)
	k = append(k, curPrefix...)
	k = append(k, topic...)
	k = append(k, sep)
	return append(k, group...)
}
