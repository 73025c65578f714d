package ledger

import (
	"bytes"
	"sort"
	"sync"
)

// Memory is an in-memory Store used by tests and the mock wiring mode. It is
// safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *Memory) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.data[string(key)] = v
	return nil
}

func (m *Memory) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.data, string(key))
	return nil
}

func (m *Memory) Apply(ops []Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, op := range ops {
		switch op.Type {
		case OpPut:
			v := make([]byte, len(op.Value))
			copy(v, op.Value)
			m.data[string(op.Key)] = v
		case OpDelete:
			delete(m.data, string(op.Key))
		}
	}
	return nil
}

func (m *Memory) NewIterator(prefix []byte) (Iterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var keys []string
	for k := range m.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	entries := make([]memEntry, 0, len(keys))
	for _, k := range keys {
		v := make([]byte, len(m.data[k]))
		copy(v, m.data[k])
		entries = append(entries, memEntry{key: []byte(k), value: v})
	}
	return &memIterator{entries: entries, pos: -1}, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.data = nil
	return nil
}

type memEntry struct {
	key, value []byte
}

// memIterator iterates over a snapshot taken at creation time.
type memIterator struct {
	entries []memEntry
	pos     int
}

func (it *memIterator) Next() bool {
	it.pos++
	return it.pos < len(it.entries)
}

func (it *memIterator) Key() []byte   { return it.entries[it.pos].key }
func (it *memIterator) Value() []byte { return it.entries[it.pos].value }
func (it *memIterator) Error() error  { return nil }
func (it *memIterator) Close() error  { return nil }
