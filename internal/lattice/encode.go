package lattice

import "encoding/binary"

// encodeKey builds a stable hash key for a (replica id, count) pair: the id
// bytes followed by the count's big-endian encoding. Kept distinct from a
// plain string join so that ids containing ':' cannot collide across
// different (id, count) pairs.
func encodeKey(id string, count uint64) []byte {
	buf := make([]byte, len(id)+8)
	copy(buf, id)
	binary.BigEndian.PutUint64(buf[len(id):], count)
	return buf
}

// encodeUID renders a uid as an 8-byte big-endian key, tagged with a single
// leading byte so insert-pieces and tombstone-pieces that happen to mint the
// same uid never collide in a Bloom filter or bucket dispatcher.
func encodeUID(tag byte, uid uint64) []byte {
	buf := make([]byte, 9)
	buf[0] = tag
	binary.BigEndian.PutUint64(buf[1:], uid)
	return buf
}
