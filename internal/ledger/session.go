package ledger

import (
	"bytes"
	"fmt"
	"sort"
)

// Session is the write overlay for one top-level transaction. Reads see the
// session's own writes first, then the underlying store; writes and deletes
// stay in the overlay until Commit applies them as one atomic batch. Dropping
// a session without committing discards every mutation, which is how a failed
// call leaves no trace.
//
// A session is not safe for concurrent use; the engine serializes top-level
// calls.
type Session struct {
	store   Store
	writes  map[string][]byte
	deletes map[string]struct{}
}

// NewSession creates an empty overlay over store.
func NewSession(store Store) *Session {
	return &Session{
		store:   store,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

// Get returns the value for key, honoring overlay writes and deletes.
func (s *Session) Get(key []byte) ([]byte, error) {
	k := string(key)
	if v, ok := s.writes[k]; ok {
		out := make([]byte, len(v))
		copy(out, v)
		return out, nil
	}
	if _, ok := s.deletes[k]; ok {
		return nil, ErrNotFound
	}
	return s.store.Get(key)
}

// Has reports whether key exists in the session view.
func (s *Session) Has(key []byte) (bool, error) {
	_, err := s.Get(key)
	if err == nil {
		return true, nil
	}
	if err == ErrNotFound {
		return false, nil
	}
	return false, err
}

// Put stages a write.
func (s *Session) Put(key, value []byte) {
	k := string(key)
	delete(s.deletes, k)
	v := make([]byte, len(value))
	copy(v, value)
	s.writes[k] = v
}

// Delete stages a delete.
func (s *Session) Delete(key []byte) {
	k := string(key)
	delete(s.writes, k)
	s.deletes[k] = struct{}{}
}

// Iterate walks every key with the given prefix in ascending order, merged
// across the store and the overlay. fn returning false stops the walk.
func (s *Session) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	merged := make(map[string][]byte)

	it, err := s.store.NewIterator(prefix)
	if err != nil {
		return err
	}
	for it.Next() {
		merged[string(it.Key())] = it.Value()
	}
	if err := it.Error(); err != nil {
		it.Close()
		return fmt.Errorf("ledger: session iterate: %w", err)
	}
	if err := it.Close(); err != nil {
		return err
	}

	for k, v := range s.writes {
		if bytes.HasPrefix([]byte(k), prefix) {
			merged[k] = v
		}
	}
	for k := range s.deletes {
		delete(merged, k)
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !fn([]byte(k), merged[k]) {
			return nil
		}
	}
	return nil
}

// Dirty reports whether the session holds any staged mutation.
func (s *Session) Dirty() bool {
	return len(s.writes) > 0 || len(s.deletes) > 0
}

// Commit applies the overlay to the store as one atomic batch and resets the
// overlay. On error nothing is applied and the overlay is preserved.
func (s *Session) Commit() error {
	if !s.Dirty() {
		return nil
	}
	ops := make([]Op, 0, len(s.writes)+len(s.deletes))

	// Deterministic batch order keeps backends and tests reproducible.
	keys := make([]string, 0, len(s.writes))
	for k := range s.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ops = append(ops, Op{Type: OpPut, Key: []byte(k), Value: s.writes[k]})
	}

	dels := make([]string, 0, len(s.deletes))
	for k := range s.deletes {
		dels = append(dels, k)
	}
	sort.Strings(dels)
	for _, k := range dels {
		ops = append(ops, Op{Type: OpDelete, Key: []byte(k)})
	}

	if err := s.store.Apply(ops); err != nil {
		return fmt.Errorf("ledger: session commit: %w", err)
	}
	s.writes = make(map[string][]byte)
	s.deletes = make(map[string]struct{})
	return nil
}
