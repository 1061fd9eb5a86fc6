package lattice

import "sort"

// ─────────────────────────────────────────────────────────────
// GCounter — grow-only counter
// ─────────────────────────────────────────────────────────────

// GCounter is a grow-only, per-replica counter. Join takes the component-wise
// maximum across replica ids, which makes increments commutative regardless
// of delivery order.
type GCounter[I ~string] struct {
	counts map[I]uint64
}

// NewGCounter creates a zeroed GCounter.
func NewGCounter[I ~string]() *GCounter[I] {
	return &GCounter[I]{counts: make(map[I]uint64)}
}

// Increment adds delta to replica id's local count.
func (c *GCounter[I]) Increment(id I, delta uint64) {
	c.counts[id] += delta
}

// Value returns the total count: the sum across all replica ids.
func (c *GCounter[I]) Value() uint64 {
	var total uint64
	for _, v := range c.counts {
		total += v
	}
	return total
}

// Zero returns a fresh zeroed GCounter.
func (c *GCounter[I]) Zero() *GCounter[I] {
	return NewGCounter[I]()
}

// Split returns one single-entry GCounter per replica id.
func (c *GCounter[I]) Split() []*GCounter[I] {
	pieces := make([]*GCounter[I], 0, len(c.counts))
	for id, v := range c.counts {
		pieces = append(pieces, &GCounter[I]{counts: map[I]uint64{id: v}})
	}
	return pieces
}

// Join merges deltas into the receiver: per-id maximum.
func (c *GCounter[I]) Join(deltas []*GCounter[I]) {
	for _, d := range deltas {
		if d == nil {
			continue
		}
		for id, v := range d.counts {
			if cur, ok := c.counts[id]; !ok || v > cur {
				c.counts[id] = v
			}
		}
	}
}

// Difference returns the entries where the receiver strictly exceeds remote,
// including entries absent from remote entirely.
func (c *GCounter[I]) Difference(remote *GCounter[I]) *GCounter[I] {
	out := NewGCounter[I]()
	for id, v := range c.counts {
		if rv, ok := remote.counts[id]; !ok || v > rv {
			out.counts[id] = v
		}
	}
	return out
}

// SizeOf returns 8 bytes per entry (a uint64 count per replica id).
func (c *GCounter[I]) SizeOf() int {
	return 8 * len(c.counts)
}

// FalseMatches returns the number of replica-id entries whose count differs
// between the receiver and remote.
func (c *GCounter[I]) FalseMatches(remote *GCounter[I]) int {
	ids := make(map[I]struct{}, len(c.counts)+len(remote.counts))
	for id := range c.counts {
		ids[id] = struct{}{}
	}
	for id := range remote.counts {
		ids[id] = struct{}{}
	}
	count := 0
	for id := range ids {
		if c.counts[id] != remote.counts[id] {
			count++
		}
	}
	return count
}

// ExtractKey returns the sole entry's replica id and count, encoded as the id
// bytes followed by the count as 8 big-endian bytes. It fails unless the
// receiver holds exactly one entry.
func (c *GCounter[I]) ExtractKey() ([]byte, error) {
	if len(c.counts) != 1 {
		return nil, ErrNotSingleton
	}
	ids := make([]I, 0, 1)
	for id := range c.counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	id := ids[0]
	return encodeKey(string(id), c.counts[id]), nil
}

var _ Lattice[*GCounter[string]] = (*GCounter[string])(nil)
