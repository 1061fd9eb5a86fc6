// Package bloomfilter implements a double-hashed Bloom filter sized by
// expected capacity and target false-positive rate, used by the probabilistic
// synchronization protocols to fingerprint decomposition keys.
package bloomfilter

import (
	"math"
	"math/rand/v2"

	"github.com/OneOfOne/xxhash"
	"github.com/pkg/errors"
)

// Filter is an approximate membership query structure: a bit array addressed
// by k independent hash functions, derived from two keyed 64-bit hashes via
// the Kirsch-Mitzenmacher double-hashing trick.
type Filter struct {
	bits  []uint64 // bit-packed, 64 bits per word
	m     uint64   // number of bit slots
	k     uint64   // number of hash functions
	seed0 uint64
	seed1 uint64
}

// New creates a Filter sized for capacity expected insertions at false
// positive rate epsilon. epsilon must lie in (0, 1).
func New(capacity int, epsilon float64) (*Filter, error) {
	if epsilon <= 0 || epsilon >= 1 {
		return nil, errors.Errorf("bloomfilter: epsilon must be in (0,1), got %f", epsilon)
	}

	n := float64(capacity)
	const ln2 = math.Ln2
	m := uint64(math.Ceil(-n * math.Log(epsilon) / (ln2 * ln2)))
	if m < 1 {
		m = 1
	}
	k := uint64(math.Ceil(-math.Log(epsilon) / ln2))
	if k < 1 {
		k = 1
	}

	return &Filter{
		bits:  make([]uint64, (m+63)/64),
		m:     m,
		k:     k,
		seed0: rand.Uint64(),
		seed1: rand.Uint64(),
	}, nil
}

// bitIndices returns the k bit positions derived from value under the
// receiver's two seeded hashes.
func (f *Filter) bitIndices(value []byte) []uint64 {
	h0 := xxhash.NewS64(f.seed0)
	h0.Write(value)
	a := h0.Sum64()

	h1 := xxhash.NewS64(f.seed1)
	h1.Write(value)
	b := h1.Sum64()

	idx := make([]uint64, f.k)
	for i := uint64(0); i < f.k; i++ {
		idx[i] = (a + i*b) % f.m
	}
	return idx
}

// Insert sets all k bits derived from value.
func (f *Filter) Insert(value []byte) {
	for _, bit := range f.bitIndices(value) {
		f.bits[bit/64] |= 1 << (bit % 64)
	}
}

// Contains reports whether all k bits derived from value are set. False
// positives are possible; false negatives are not.
func (f *Filter) Contains(value []byte) bool {
	for _, bit := range f.bitIndices(value) {
		if f.bits[bit/64]&(1<<(bit%64)) == 0 {
			return false
		}
	}
	return true
}

// BitLen returns the number of addressable bit slots in the filter.
func (f *Filter) BitLen() uint64 {
	return f.m
}

// SizeOf returns the wire payload size of the filter: the packed bit array
// plus the two 64-bit seeds that travel with it, since each peer builds its
// own filter with its own seeds.
func (f *Filter) SizeOf() int {
	bitBytes := (f.m + 7) / 8
	return int(bitBytes) + 16
}
