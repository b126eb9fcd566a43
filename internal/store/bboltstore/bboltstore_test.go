package bboltstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenPutGetClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, 0)
	require.NoError(t, err)

	require.NoError(t, s.Put("chunks", []byte("k"), []byte("v")))
	v, ok, err := s.Get("chunks", []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)

	require.NoError(t, s.Close())
}

func TestReopen_PersistsAcrossClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path, 0)
	require.NoError(t, err)
	require.NoError(t, s1.Put("chunks", []byte("k"), []byte("v")))
	require.NoError(t, s1.Close())

	s2, err := Open(path, 0)
	require.NoError(t, err)
	defer s2.Close()

	v, ok, err := s2.Get("chunks", []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)
}

func TestDeleteAll_RemovesBucket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, 0)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put("chunks", []byte("a"), []byte("1")))
	require.NoError(t, s.DeleteAll("chunks"))

	_, ok, err := s.Get("chunks", []byte("a"))
	require.NoError(t, err)
	require.False(t, ok)

	// DeleteAll on a never-created bucket is not an error.
	require.NoError(t, s.DeleteAll("never-existed"))
}

func TestForEach_VisitsAscendingKeyOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, 0)
	require.NoError(t, err)
	defer s.Close()

	for _, k := range []string{"c", "a", "b"} {
		require.NoError(t, s.Put("chunks", []byte(k), []byte(k)))
	}

	var seen []string
	require.NoError(t, s.ForEach("chunks", func(k, v []byte) error {
		seen = append(seen, string(k))
		return nil
	}))
	require.Equal(t, []string{"a", "b", "c"}, seen)
}
