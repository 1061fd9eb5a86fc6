package lattice

import (
	"sort"

	"github.com/google/go-cmp/cmp"
)

// ─────────────────────────────────────────────────────────────
// DotContext — causal dot-context
// ─────────────────────────────────────────────────────────────

// Dot uniquely identifies one operation issued by a replica: a pair of
// (replica id, sequence number).
type Dot[I ~string] struct {
	Replica I
	Seq     uint64
}

// DotContext is a compact representation of a set of dots: a clock of
// contiguous prefixes (replica id → highest contiguous sequence number) plus
// a cloud of out-of-order dots that haven't been folded into the clock yet.
//
// DotContext does not implement Lattice: it is a supporting structure for
// minting and tracking causally-ordered operations (e.g. as a causal uid
// source in place of AWSet's random uids), not itself a value synchronized
// by the delta protocols.
type DotContext[I ~string] struct {
	clock map[I]uint64
	cloud map[Dot[I]]struct{}
}

// NewDotContext creates an empty DotContext.
func NewDotContext[I ~string]() *DotContext[I] {
	return &DotContext[I]{
		clock: make(map[I]uint64),
		cloud: make(map[Dot[I]]struct{}),
	}
}

// Contains reports whether dot is covered by the clock or present in the
// cloud.
func (c *DotContext[I]) Contains(dot Dot[I]) bool {
	if clk, ok := c.clock[dot.Replica]; ok && clk >= dot.Seq {
		return true
	}
	_, ok := c.cloud[dot]
	return ok
}

// Next increments and returns the next sequence number for replica id.
func (c *DotContext[I]) Next(id I) uint64 {
	c.clock[id]++
	return c.clock[id]
}

// sortedCloud returns the cloud's dots in canonical ascending order: smallest
// (replica, seq) pair first.
func (c *DotContext[I]) sortedCloud() []Dot[I] {
	dots := make([]Dot[I], 0, len(c.cloud))
	for d := range c.cloud {
		dots = append(dots, d)
	}
	sort.Slice(dots, func(i, j int) bool {
		if dots[i].Replica != dots[j].Replica {
			return dots[i].Replica < dots[j].Replica
		}
		return dots[i].Seq < dots[j].Seq
	})
	return dots
}

// Compact folds cloud dots into the clock wherever possible: a dot (id, n) is
// dropped into the clock when clock[id] == n-1 (extending the contiguous
// prefix by one), dropped entirely when clock[id] >= n (already covered), and
// otherwise left in the cloud as a genuine gap.
func (c *DotContext[I]) Compact() {
	for _, d := range c.sortedCloud() {
		clk, ok := c.clock[d.Replica]
		switch {
		case ok && clk == d.Seq-1:
			c.clock[d.Replica] = d.Seq
			delete(c.cloud, d)
		case ok && clk >= d.Seq:
			delete(c.cloud, d)
		}
	}
}

// Join merges other into the receiver: the clock becomes the component-wise
// maximum, the cloud becomes the union, and the result is compacted.
func (c *DotContext[I]) Join(other *DotContext[I]) {
	for id, remoteSeq := range other.clock {
		if localSeq, ok := c.clock[id]; !ok || remoteSeq > localSeq {
			c.clock[id] = remoteSeq
		}
	}
	for d := range other.cloud {
		c.cloud[d] = struct{}{}
	}
	c.Compact()
}

// Equal reports whether c and other hold identical clocks and clouds.
func (c *DotContext[I]) Equal(other *DotContext[I]) bool {
	return cmp.Equal(c.clock, other.clock) && cmp.Equal(c.cloud, other.cloud)
}
