// Package sizing derives bit-vector width and hash-function count from the
// caller's capacity and false-positive-rate targets, per spec.md §3.
package sizing

import (
	"math"

	"bloomkeep/bloomerr"
)

// Params holds the derived (m, k) pair for a given (n, p).
type Params struct {
	// M is the number of bits in the bit vector.
	M uint64
	// K is the number of hash functions (bit indices computed per key).
	K uint64
}

// Derive computes (m, k) from expected item count n and target false
// positive rate p.
//
//	m = ceil(-n * ln(p) / (ln 2)^2)
//	k = max(1, round((m/n) * ln 2))
//
// Returns InvalidParams if p is not in (0, 1), n < 1, or the derived m < k
// (which would make the hash kernel refuse to compute indices).
func Derive(n uint64, p float64) (Params, error) {
	if n < 1 {
		return Params{}, bloomerr.InvalidParamsf("expected_items must be >= 1, got %d", n)
	}
	if !(p > 0 && p < 1) {
		return Params{}, bloomerr.InvalidParamsf("target_fpr must be in (0,1), got %v", p)
	}

	ln2 := math.Ln2
	nf := float64(n)

	m := uint64(math.Ceil(-nf * math.Log(p) / (ln2 * ln2)))
	if m < 1 {
		m = 1
	}

	k := uint64(math.Round((float64(m) / nf) * ln2))
	if k < 1 {
		k = 1
	}

	if m < k {
		return Params{}, bloomerr.InvalidParamsf("derived m (%d) < k (%d) for n=%d p=%v; increase expected_items or relax target_fpr", m, k, n, p)
	}

	return Params{M: m, K: k}, nil
}
