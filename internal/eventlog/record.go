package eventlog

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

// On disk an entry is uvarint(len(header)) | header | payload | crc32c, with
// the checksum taken over header and payload.

var (
	ErrTruncatedEntry = errors.New("eventlog: truncated entry")
	ErrCorruptEntry   = errors.New("eventlog: entry checksum mismatch")
)

const checksumLen = 4

var crcTable = crc32.MakeTable(crc32.Castagnoli)

func entryChecksum(header, payload []byte) uint32 {
	return crc32.Update(crc32.Checksum(header, crcTable), crcTable, payload)
}

func encodeEntry(r AppendRecord) []byte {
	out := make([]byte, 0, binary.MaxVarintLen64+len(r.Header)+len(r.Payload)+checksumLen)
	out = binary.AppendUvarint(out, uint64(len(r.Header)))
	out = append(out, r.Header...)
	out = append(out, r.Payload...)
	return binary.BigEndian.AppendUint32(out, entryChecksum(r.Header, r.Payload))
}

// decodeEntry returns copies of the header and payload, so the result stays
// valid after the iterator that produced b moves on.
func decodeEntry(b []byte) (AppendRecord, error) {
	hlen, n := binary.Uvarint(b)
	if n <= 0 {
		return AppendRecord{}, ErrTruncatedEntry
	}
	body := b[n:]
	if hlen > uint64(len(body)) || uint64(len(body))-hlen < checksumLen {
		return AppendRecord{}, ErrTruncatedEntry
	}
	end := len(body) - checksumLen
	header, payload := body[:hlen], body[hlen:end]
	if binary.BigEndian.Uint32(body[end:]) != entryChecksum(header, payload) {
		return AppendRecord{}, ErrCorruptEntry
	}
	return AppendRecord{
		Header:  append([]byte(nil), header...),
		Payload: append([]byte(nil), payload...),
	}, nil
}
