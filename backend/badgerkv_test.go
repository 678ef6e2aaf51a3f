package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestBadger(t *testing.T) *BadgerKV {
	t.Helper()
	b, err := OpenBadger(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

// TestBadgerKV_RoundTrip verifies basic write/read/delete against an
// in-memory database.
func TestBadgerKV_RoundTrip(t *testing.T) {
	b := openTestBadger(t)

	require.NoError(t, b.Write("key", "value"))

	val, ok, err := b.Read("key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "value", val)

	require.NoError(t, b.Delete("key"))
	_, ok, err = b.Read("key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBadgerKV_ReadAbsent(t *testing.T) {
	b := openTestBadger(t)

	val, ok, err := b.Read("nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, val)
}

func TestBadgerKV_DeleteAbsent(t *testing.T) {
	b := openTestBadger(t)
	assert.NoError(t, b.Delete("nope"))
}

func TestBadgerKV_CountAndKeyAt(t *testing.T) {
	b := openTestBadger(t)

	require.NoError(t, b.Write("b", "2"))
	require.NoError(t, b.Write("a", "1"))
	require.NoError(t, b.Write("c", "3"))

	n, err := b.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Badger iterates in byte order.
	for i, want := range []string{"a", "b", "c"} {
		key, ok, err := b.KeyAt(i)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, key)
	}

	_, ok, err := b.KeyAt(3)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = b.KeyAt(-1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBadgerKV_Clear(t *testing.T) {
	b := openTestBadger(t)

	require.NoError(t, b.Write("a", "1"))
	require.NoError(t, b.Write("b", "2"))
	require.NoError(t, b.Clear())

	n, err := b.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBadgerKV_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	b, err := OpenBadger(BadgerConfig{Path: dir, SyncWrites: true})
	require.NoError(t, err)
	require.NoError(t, b.Write("todos", "[]"))
	require.NoError(t, b.Close())

	reopened, err := OpenBadger(BadgerConfig{Path: dir})
	require.NoError(t, err)
	defer reopened.Close()

	val, ok, err := reopened.Read("todos")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "[]", val)
}

func TestOpenBadger_RequiresPath(t *testing.T) {
	_, err := OpenBadger(BadgerConfig{})
	assert.Error(t, err)
}
