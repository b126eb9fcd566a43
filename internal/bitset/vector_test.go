package bitset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVector_GetSet(t *testing.T) {
	v := New(100)
	require.False(t, v.Get(42))
	v.Set(42, true)
	require.True(t, v.Get(42))
	v.Set(42, false)
	require.False(t, v.Get(42))
}

func TestVector_ByteLen(t *testing.T) {
	require.EqualValues(t, 0, ByteLen(0))
	require.EqualValues(t, 1, ByteLen(1))
	require.EqualValues(t, 1, ByteLen(8))
	require.EqualValues(t, 2, ByteLen(9))
}

func TestVector_Fill(t *testing.T) {
	v := New(17)
	v.Fill(true)
	for i := uint64(0); i < 17; i++ {
		require.True(t, v.Get(i))
	}
	v.Fill(false)
	for i := uint64(0); i < 17; i++ {
		require.False(t, v.Get(i))
	}
}

func TestVector_FromBytes_RoundTrip(t *testing.T) {
	v := New(16)
	v.Set(0, true)
	v.Set(15, true)
	clone := FromBytes(16, v.Bytes())
	require.True(t, clone.Get(0))
	require.True(t, clone.Get(15))
	require.False(t, clone.Get(1))
}
