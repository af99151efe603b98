package ledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	pebblestore "github.com/rzbill/flocheck/internal/storage/pebble"
)

// Pebble is a durable Ledger. Ids live under ledger/{key}/{id_be8}; the
// count is rebuilt from a prefix scan on open so a restarted subscriber keeps
// its history.
type Pebble struct {
	db     *pebblestore.DB
	prefix []byte

	mu    sync.Mutex
	count int
}

// OpenPebble opens the ledger named key on db. The caller owns db.
func OpenPebble(db *pebblestore.DB, key string) (*Pebble, error) {
	p := &Pebble{db: db, prefix: keyPrefix(key)}
	for k := range db.ScanPrefix(p.prefix) {
		if len(k) == len(p.prefix)+8 {
			p.count++
		}
	}
	return p, nil
}

func keyPrefix(key string) []byte {
	k := make([]byte, 0, len(key)+8)
	k = append(k, "ledger/"...)
	k = append(k, key...)
	return append(k, '/')
}

func (p *Pebble) idKey(id int) []byte {
	k := append([]byte(nil), p.prefix...)
	return binary.BigEndian.AppendUint64(k, uint64(id))
}

func (p *Pebble) Record(ctx context.Context, id int) (bool, error) {
	if id < 0 {
		return false, fmt.Errorf("ledger: negative id %d", id)
	}
	key := p.idKey(id)
	p.mu.Lock()
	defer p.mu.Unlock()
	ok, err := p.db.Has(key)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	b := p.db.NewBatch()
	defer b.Close()
	if err := b.Set(key, nil, nil); err != nil {
		return false, err
	}
	if err := p.db.CommitBatch(ctx, b); err != nil {
		return false, err
	}
	p.count++
	return true, nil
}

func (p *Pebble) Count(context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count, nil
}

func (p *Pebble) IDs(context.Context) ([]int, error) {
	out := []int{}
	for k := range p.db.ScanPrefix(p.prefix) {
		if len(k) != len(p.prefix)+8 {
			continue
		}
		out = append(out, int(binary.BigEndian.Uint64(k[len(p.prefix):])))
	}
	// Big-endian keys scan in ascending id order.
	return out, nil
}

// Reset removes every recorded id.
func (p *Pebble) Reset(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.db.DeletePrefix(p.prefix); err != nil {
		return err
	}
	p.count = 0
	return nil
}

// Close is a no-op; the database belongs to the caller.
func (p *Pebble) Close() error { return nil }
