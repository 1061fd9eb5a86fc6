// Package lattice implements the CRDT state types shared by the synchronization
// protocols: grow-only sets, grow-only counters, add-wins sets, and a causal
// dot-context. Every type here forms a bounded join-semilattice and exposes the
// same capability set so that the dispatcher and protocol packages can treat
// them uniformly.
package lattice

import "github.com/pkg/errors"

// ErrNotSingleton is returned by ExtractKey when the receiver does not carry
// exactly one irredundant piece, i.e. it was not produced by Split() or is the
// join of more than one decomposition.
var ErrNotSingleton = errors.New("lattice: extract requires a singleton decomposition")

// Lattice is the capability set every supported CRDT exposes. Self is the
// concrete carrier type itself (e.g. *GSet[string]); every decomposition
// produced by Split is again a value of type Self, which keeps the dispatcher
// and protocol code free of per-type special casing.
//
// Implementations own the state they return: Split, Difference and Zero never
// alias the receiver's internal storage, so callers may hold, iterate, and
// mutate decompositions freely before joining results back.
type Lattice[Self any] interface {
	// Zero returns a fresh, empty value of the same concrete type. Used by
	// protocols to aggregate a subset of decompositions back into one value.
	Zero() Self

	// Split returns the irredundant join-decomposition of the receiver: a set
	// of pairwise ⊑-incomparable pieces whose join reconstructs it.
	Split() []Self

	// Join merges deltas into the receiver in place.
	Join(deltas []Self)

	// Difference returns the minimal piece of the receiver not dominated by
	// remote, i.e. join(remote, Difference(remote)) == join(receiver, remote).
	Difference(remote Self) Self

	// SizeOf returns the wire payload size, in bytes, of the receiver under
	// the accounting rules of §6.
	SizeOf() int

	// FalseMatches returns the symmetric-difference cardinality of the
	// observable values of the receiver and remote. Used as the post-sync
	// convergence oracle.
	FalseMatches(remote Self) int

	// ExtractKey returns the hashable carrier bytes of a singleton
	// decomposition. It fails with ErrNotSingleton unless the receiver holds
	// exactly one irredundant piece.
	ExtractKey() ([]byte, error)
}
