// Package hashkernel computes the k bit indices a key maps to under the
// double-hashing scheme fixed by spec.md §4.1. The hash pair
// (Murmur3-x64-128 low64, FNV-1a-64) is a format invariant: chunks persisted
// to disk encode bit positions computed with these exact functions, so
// changing either is a wire-format break, not a refactor.
package hashkernel

import (
	"hash/fnv"

	"github.com/twmb/murmur3"

	"bloomkeep/bloomerr"
)

// murmurSeed is fixed by the format; see package doc.
const murmurSeed = 0

// h1h2 returns the two 64-bit hashes double-hashing derives indices from.
func h1h2(key []byte) (uint64, uint64) {
	h1, _ := murmur3.SeedSum128(murmurSeed, murmurSeed, key)

	f := fnv.New64a()
	_, _ = f.Write(key) // hash.Hash64.Write never returns an error
	h2 := f.Sum64()

	return h1, h2
}

// Indices returns the k bit positions in [0, m) that key maps to.
//
// It refuses to compute indices when m < k, since modular reduction would
// collapse the distribution of at least one index (spec.md §4.1); callers
// should treat this as unreachable in steady state because FilterParams
// construction already rejects such (m, k) pairs.
func Indices(key []byte, k, m uint64) ([]uint64, error) {
	if m == 0 {
		return nil, bloomerr.Hashf("modulus m must be > 0")
	}
	if m < k {
		return nil, bloomerr.Hashf("m (%d) must be >= k (%d)", m, k)
	}

	h1, h2 := h1h2(key)

	indices := make([]uint64, k)
	for i := uint64(0); i < k; i++ {
		indices[i] = (h1 + i*h2) % m
	}
	return indices, nil
}
