package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestPebble(t *testing.T) *Pebble {
	t.Helper()
	db, err := OpenPebble(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPebbleRoundTrip(t *testing.T) {
	db := openTestPebble(t)

	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	v, err := db.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, db.Delete([]byte("k")))
	_, err = db.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPebbleApplyBatch(t *testing.T) {
	db := openTestPebble(t)
	require.NoError(t, db.Put([]byte("stale"), []byte("x")))

	require.NoError(t, db.Apply([]Op{
		{Type: OpPut, Key: []byte("a"), Value: []byte("1")},
		{Type: OpDelete, Key: []byte("stale")},
	}))

	v, err := db.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)
	_, err = db.Get([]byte("stale"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPebblePrefixIteration(t *testing.T) {
	db := openTestPebble(t)
	require.NoError(t, db.Put([]byte{0x30, 0x01}, []byte("a")))
	require.NoError(t, db.Put([]byte{0x30, 0x02}, []byte("b")))
	require.NoError(t, db.Put([]byte{0x31, 0x01}, []byte("c")))

	it, err := db.NewIterator([]byte{0x30})
	require.NoError(t, err)
	var keys [][]byte
	for it.Next() {
		keys = append(keys, append([]byte(nil), it.Key()...))
	}
	require.NoError(t, it.Error())
	require.NoError(t, it.Close())
	assert.Equal(t, [][]byte{{0x30, 0x01}, {0x30, 0x02}}, keys)
}

func TestPebbleSessionCommit(t *testing.T) {
	db := openTestPebble(t)

	sess := NewSession(db)
	sess.Put([]byte("a"), []byte("1"))
	sess.Put([]byte("b"), []byte("2"))
	require.NoError(t, sess.Commit())

	v, err := db.Get([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)
}
