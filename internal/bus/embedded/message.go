package embedded

import (
	"encoding/binary"
	"errors"

	"github.com/google/uuid"
)

// header is stored in front of every log entry:
// msgID(16) | attempt(4 BE) | notBefore unix ms(8 BE)
type header struct {
	MsgID     uuid.UUID
	Attempt   uint32
	NotBefore int64
}

const headerLen = 16 + 4 + 8

var errBadHeader = errors.New("embedded: bad entry header")

func (h header) encode() []byte {
	b := make([]byte, headerLen)
	copy(b, h.MsgID[:])
	binary.BigEndian.PutUint32(b[16:], h.Attempt)
	binary.BigEndian.PutUint64(b[20:], uint64(h.NotBefore))
	return b
}

func decodeHeader(b []byte) (header, error) {
	if len(b) < headerLen {
		return header{}, errBadHeader
	}
	var h header
	copy(h.MsgID[:], b[:16])
	h.Attempt = binary.BigEndian.Uint32(b[16:])
	h.NotBefore = int64(binary.BigEndian.Uint64(b[20:]))
	return h, nil
}
