package hashkernel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndices_Deterministic(t *testing.T) {
	a, err := Indices([]byte("alpha"), 5, 1024)
	require.NoError(t, err)
	b, err := Indices([]byte("alpha"), 5, 1024)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestIndices_CountAndRange(t *testing.T) {
	indices, err := Indices([]byte("beta"), 7, 512)
	require.NoError(t, err)
	require.Len(t, indices, 7)
	for _, idx := range indices {
		require.Less(t, idx, uint64(512))
	}
}

func TestIndices_DifferentKeysDiffer(t *testing.T) {
	a, err := Indices([]byte("alpha"), 5, 1<<20)
	require.NoError(t, err)
	b, err := Indices([]byte("gamma"), 5, 1<<20)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestIndices_RejectsZeroModulus(t *testing.T) {
	_, err := Indices([]byte("x"), 3, 0)
	require.Error(t, err)
}

func TestIndices_RejectsModulusSmallerThanK(t *testing.T) {
	_, err := Indices([]byte("x"), 10, 4)
	require.Error(t, err)
}
