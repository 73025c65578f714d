package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionOverlayReads(t *testing.T) {
	store := NewMemory()
	require.NoError(t, store.Put([]byte("a"), []byte("old")))

	sess := NewSession(store)
	sess.Put([]byte("a"), []byte("new"))
	sess.Put([]byte("b"), []byte("fresh"))
	sess.Delete([]byte("a"))

	_, err := sess.Get([]byte("a"))
	assert.ErrorIs(t, err, ErrNotFound)

	v, err := sess.Get([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), v)

	// The store itself is untouched until commit.
	v, err = store.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), v)
}

func TestSessionCommitAppliesAtomically(t *testing.T) {
	store := NewMemory()
	require.NoError(t, store.Put([]byte("gone"), []byte("x")))

	sess := NewSession(store)
	sess.Put([]byte("k1"), []byte("v1"))
	sess.Put([]byte("k2"), []byte("v2"))
	sess.Delete([]byte("gone"))
	require.True(t, sess.Dirty())
	require.NoError(t, sess.Commit())
	assert.False(t, sess.Dirty())

	v, err := store.Get([]byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)
	_, err = store.Get([]byte("gone"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionDropDiscardsEverything(t *testing.T) {
	store := NewMemory()

	sess := NewSession(store)
	sess.Put([]byte("k"), []byte("v"))
	sess = nil
	_ = sess

	fresh := NewSession(store)
	_, err := fresh.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionIterateMergesOverlay(t *testing.T) {
	store := NewMemory()
	require.NoError(t, store.Put([]byte{0x30, 0x01}, []byte("a")))
	require.NoError(t, store.Put([]byte{0x30, 0x03}, []byte("c")))
	require.NoError(t, store.Put([]byte{0x31, 0x01}, []byte("other prefix")))

	sess := NewSession(store)
	sess.Put([]byte{0x30, 0x02}, []byte("b"))
	sess.Put([]byte{0x30, 0x03}, []byte("c2"))
	sess.Delete([]byte{0x30, 0x01})

	var keys [][]byte
	var vals []string
	require.NoError(t, sess.Iterate([]byte{0x30}, func(k, v []byte) bool {
		keys = append(keys, append([]byte(nil), k...))
		vals = append(vals, string(v))
		return true
	}))
	assert.Equal(t, [][]byte{{0x30, 0x02}, {0x30, 0x03}}, keys)
	assert.Equal(t, []string{"b", "c2"}, vals)
}

func TestSessionIterateEarlyStop(t *testing.T) {
	store := NewMemory()
	sess := NewSession(store)
	for _, k := range []byte{1, 2, 3} {
		sess.Put([]byte{0x40, k}, []byte{k})
	}
	var seen int
	require.NoError(t, sess.Iterate([]byte{0x40}, func(_, _ []byte) bool {
		seen++
		return seen < 2
	}))
	assert.Equal(t, 2, seen)
}

func TestMemoryStoreApply(t *testing.T) {
	store := NewMemory()
	require.NoError(t, store.Apply([]Op{
		{Type: OpPut, Key: []byte("a"), Value: []byte("1")},
		{Type: OpPut, Key: []byte("b"), Value: []byte("2")},
		{Type: OpDelete, Key: []byte("a")},
	}))
	_, err := store.Get([]byte("a"))
	assert.ErrorIs(t, err, ErrNotFound)
	v, err := store.Get([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)
}

func TestMemoryIteratorIsSnapshot(t *testing.T) {
	store := NewMemory()
	require.NoError(t, store.Put([]byte("p1"), []byte("x")))
	it, err := store.NewIterator([]byte("p"))
	require.NoError(t, err)
	require.NoError(t, store.Put([]byte("p2"), []byte("y")))

	var n int
	for it.Next() {
		n++
	}
	require.NoError(t, it.Close())
	assert.Equal(t, 1, n)
}
