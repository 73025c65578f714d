// Package ledger provides the contract's durable key-value state: a narrow
// store interface with pebble and in-memory backends, the single-byte prefix
// layout shared by every logical map, and an atomic per-transaction Session.
package ledger

import "errors"

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("ledger: key not found")

	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("ledger: store is closed")
)

// Store is the basic operation set any backend must support. Values returned
// by Get and iterators are owned by the caller (backends copy).
type Store interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error

	// NewIterator iterates all keys with the given prefix in ascending key
	// order. An empty prefix iterates the whole store.
	NewIterator(prefix []byte) (Iterator, error)

	// Apply commits a batch of operations atomically: either every operation
	// is durably applied or none is.
	Apply(ops []Op) error

	Close() error
}

// Iterator traverses store entries.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

// OpType discriminates batch operations.
type OpType int

const (
	OpPut OpType = iota
	OpDelete
)

// Op is a single operation in an atomic batch.
type Op struct {
	Type  OpType
	Key   []byte
	Value []byte
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix, or nil when no such bound exists (all-0xff prefix).
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
