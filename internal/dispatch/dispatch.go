// Package dispatch implements the Merkle-style bucket dispatcher: it hashes
// an irredundant join-decomposition into B ordered buckets so that two peers
// holding the same decomposition for a bucket compute the same fingerprint,
// and a mismatch localizes exactly which bucket diverged.
package dispatch

import (
	"sort"
	"strconv"

	"github.com/OneOfOne/xxhash"
)

// Bucket holds the pieces assigned to one bucket index, kept in canonical
// order (ascending by hash) so that two peers who dispatch the same
// decomposition always iterate their buckets identically.
type Bucket[P any] struct {
	Index  int
	Pieces []P
	hashes []uint64
}

// KeyedHash computes a deterministic 64-bit hash of data under seed. Both
// peers in a session must agree on seed for fingerprints to be comparable.
func KeyedHash(seed uint64, data []byte) uint64 {
	h := xxhash.NewS64(seed)
	h.Write(data)
	return h.Sum64()
}

// NumBuckets returns the bucket count policy: ceil(loadFactor * cardinality),
// clamped to at least 1. loadFactor must be positive.
func NumBuckets(loadFactor float64, cardinality int) int {
	n := int(loadFactor*float64(cardinality) + 0.999999)
	if n < 1 {
		n = 1
	}
	return n
}

// Dispatch assigns each piece to bucket H(extract(piece)) mod numBuckets,
// where H is keyed by seed, and returns the numBuckets buckets (possibly
// empty) with their pieces in canonical order. extract must return the same
// key for a piece on every call, and must succeed for every piece produced by
// Split (a caller bug otherwise, surfaced as an error here rather than a
// silent empty bucket).
func Dispatch[P any](pieces []P, extract func(P) ([]byte, error), seed uint64, numBuckets int) ([]Bucket[P], error) {
	buckets := make([]Bucket[P], numBuckets)
	for i := range buckets {
		buckets[i].Index = i
	}

	for _, piece := range pieces {
		key, err := extract(piece)
		if err != nil {
			return nil, err
		}
		h := KeyedHash(seed, key)
		idx := int(h % uint64(numBuckets))
		buckets[idx].Pieces = append(buckets[idx].Pieces, piece)
		buckets[idx].hashes = append(buckets[idx].hashes, h)
	}

	for i := range buckets {
		sortByHash(&buckets[i])
	}
	return buckets, nil
}

// sortByHash reorders a bucket's pieces into ascending hash order in place.
func sortByHash[P any](b *Bucket[P]) {
	idx := make([]int, len(b.Pieces))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return b.hashes[idx[i]] < b.hashes[idx[j]] })

	pieces := make([]P, len(b.Pieces))
	hashes := make([]uint64, len(b.hashes))
	for newPos, oldPos := range idx {
		pieces[newPos] = b.Pieces[oldPos]
		hashes[newPos] = b.hashes[oldPos]
	}
	b.Pieces = pieces
	b.hashes = hashes
}

// Fingerprint returns the keyed hash of the concatenated decimal
// representations of a bucket's per-piece hashes, in canonical order. Two
// peers computing Fingerprint over identical bucket contents under the same
// seed always agree; a mismatch implies (with overwhelming probability) that
// the bucket contents differ.
func Fingerprint[P any](seed uint64, b Bucket[P]) uint64 {
	var buf []byte
	for _, h := range b.hashes {
		buf = strconv.AppendUint(buf, h, 10)
	}
	return KeyedHash(seed, buf)
}

// Fingerprints returns the per-bucket fingerprints of buckets, in bucket
// index order; this is the vector that travels over the wire to probe bucket
// equality.
func Fingerprints[P any](seed uint64, buckets []Bucket[P]) []uint64 {
	out := make([]uint64, len(buckets))
	for i, b := range buckets {
		out[i] = Fingerprint(seed, b)
	}
	return out
}
