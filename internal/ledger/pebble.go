package ledger

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Pebble is the durable Store backend.
type Pebble struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) a pebble database at dir.
func OpenPebble(dir string) (*Pebble, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("ledger: open pebble at %s: %w", dir, err)
	}
	return &Pebble{db: db}, nil
}

func (p *Pebble) Get(key []byte) ([]byte, error) {
	v, closer, err := p.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ledger: get: %w", err)
	}
	out := make([]byte, len(v))
	copy(out, v)
	if err := closer.Close(); err != nil {
		return nil, fmt.Errorf("ledger: get close: %w", err)
	}
	return out, nil
}

func (p *Pebble) Put(key, value []byte) error {
	if err := p.db.Set(key, value, pebble.Sync); err != nil {
		return fmt.Errorf("ledger: put: %w", err)
	}
	return nil
}

func (p *Pebble) Delete(key []byte) error {
	if err := p.db.Delete(key, pebble.Sync); err != nil {
		return fmt.Errorf("ledger: delete: %w", err)
	}
	return nil
}

// Apply commits the batch with a sync write so a committed transaction
// survives process crash.
func (p *Pebble) Apply(ops []Op) error {
	b := p.db.NewBatch()
	defer b.Close()
	for _, op := range ops {
		var err error
		switch op.Type {
		case OpPut:
			err = b.Set(op.Key, op.Value, nil)
		case OpDelete:
			err = b.Delete(op.Key, nil)
		}
		if err != nil {
			return fmt.Errorf("ledger: batch op: %w", err)
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("ledger: batch commit: %w", err)
	}
	return nil
}

func (p *Pebble) NewIterator(prefix []byte) (Iterator, error) {
	opts := &pebble.IterOptions{}
	if len(prefix) > 0 {
		opts.LowerBound = prefix
		opts.UpperBound = prefixUpperBound(prefix)
	}
	it, err := p.db.NewIter(opts)
	if err != nil {
		return nil, fmt.Errorf("ledger: iterator: %w", err)
	}
	return &pebbleIterator{it: it, first: true}, nil
}

func (p *Pebble) Close() error {
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("ledger: close: %w", err)
	}
	return nil
}

type pebbleIterator struct {
	it    *pebble.Iterator
	first bool
}

func (pi *pebbleIterator) Next() bool {
	if pi.first {
		pi.first = false
		return pi.it.First()
	}
	return pi.it.Next()
}

func (pi *pebbleIterator) Key() []byte {
	k := pi.it.Key()
	out := make([]byte, len(k))
	copy(out, k)
	return out
}

func (pi *pebbleIterator) Value() []byte {
	v := pi.it.Value()
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

func (pi *pebbleIterator) Error() error { return pi.it.Error() }
func (pi *pebbleIterator) Close() error { return pi.it.Close() }
