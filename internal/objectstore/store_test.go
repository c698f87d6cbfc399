package objectstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutGetDeleteList(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	s := NewMemoryStore()

	require.NoError(t, s.Put(ctx, "wal/seg-0", []byte("a")))
	require.NoError(t, s.Put(ctx, "wal/seg-1", []byte("b")))
	require.NoError(t, s.Put(ctx, "other/x", []byte("c")))

	data, err := s.Get(ctx, "wal/seg-0")
	require.NoError(t, err)
	require.Equal(t, []byte("a"), data)

	keys, err := s.List(ctx, "wal/")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"wal/seg-0", "wal/seg-1"}, keys)

	require.NoError(t, s.Delete(ctx, "wal/seg-0"))
	_, err = s.Get(ctx, "wal/seg-0")
	require.Error(t, err)
}

func TestDiskStore_PutGetDeleteList(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	s, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "wal/seg-0.bin", []byte("hello")))
	data, err := s.Get(ctx, "wal/seg-0.bin")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)

	keys, err := s.List(ctx, "wal/")
	require.NoError(t, err)
	require.Equal(t, []string{"wal/seg-0.bin"}, keys)

	require.NoError(t, s.Delete(ctx, "wal/seg-0.bin"))
	_, err = s.Get(ctx, "wal/seg-0.bin")
	require.Error(t, err)
}
