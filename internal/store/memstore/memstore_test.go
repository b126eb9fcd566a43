package memstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutGet(t *testing.T) {
	s := New()
	defer s.Close()

	require.NoError(t, s.Put("p", []byte("k"), []byte("v")))
	v, ok, err := s.Get("p", []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)
}

func TestGet_MissingKeyOrPartition(t *testing.T) {
	s := New()
	defer s.Close()

	_, ok, err := s.Get("missing", []byte("k"))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Put("p", []byte("k"), []byte("v")))
	_, ok, err = s.Get("p", []byte("other"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDelete(t *testing.T) {
	s := New()
	defer s.Close()

	require.NoError(t, s.Put("p", []byte("k"), []byte("v")))
	require.NoError(t, s.Delete("p", []byte("k")))
	_, ok, err := s.Get("p", []byte("k"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteAll(t *testing.T) {
	s := New()
	defer s.Close()

	require.NoError(t, s.Put("p", []byte("a"), []byte("1")))
	require.NoError(t, s.Put("p", []byte("b"), []byte("2")))
	require.NoError(t, s.DeleteAll("p"))

	count := 0
	require.NoError(t, s.ForEach("p", func(k, v []byte) error { count++; return nil }))
	require.Zero(t, count)
}

func TestForEach_AscendingKeyOrder(t *testing.T) {
	s := New()
	defer s.Close()

	for _, k := range []string{"c", "a", "b"} {
		require.NoError(t, s.Put("p", []byte(k), []byte(k)))
	}

	var seen []string
	require.NoError(t, s.ForEach("p", func(k, v []byte) error {
		seen = append(seen, string(k))
		return nil
	}))
	require.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestPutCopiesValue(t *testing.T) {
	s := New()
	defer s.Close()

	buf := []byte("original")
	require.NoError(t, s.Put("p", []byte("k"), buf))
	buf[0] = 'X'

	v, _, err := s.Get("p", []byte("k"))
	require.NoError(t, err)
	require.Equal(t, "original", string(v))
}

func TestClose_RejectsFurtherOperations(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())

	err := s.Put("p", []byte("k"), []byte("v"))
	require.Error(t, err)

	_, _, err = s.Get("p", []byte("k"))
	require.Error(t, err)
}
