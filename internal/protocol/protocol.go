// Package protocol implements the four synchronization algorithms: Baseline
// (exact, full-state), Bloom (probabilistic, filter-gated), Buckets (exact,
// Merkle-style fingerprinting) and BloomBuckets (filter-gated fingerprinting,
// the combination of the two). Each operates generically over any lattice
// type and records its message-by-message cost into a telemetry.Sink.
package protocol

import (
	"github.com/pkg/errors"

	"github.com/Polqt/crdtsync/internal/bloomfilter"
	"github.com/Polqt/crdtsync/internal/dispatch"
	"github.com/Polqt/crdtsync/internal/lattice"
	"github.com/Polqt/crdtsync/internal/telemetry"
)

// errSinkNotReady is returned by every algorithm when handed a sink that has
// already recorded events or been finished; a sink is single-use per sync.
var errSinkNotReady = errors.New("protocol: sink must be ready (no prior events, not finished)")

// extractKey adapts Lattice.ExtractKey to the shape dispatch.Dispatch wants.
func extractKey[S lattice.Lattice[S]](s S) ([]byte, error) {
	return s.ExtractKey()
}

// sumSizeOf totals SizeOf across a slice of pieces.
func sumSizeOf[S lattice.Lattice[S]](pieces []S) int {
	total := 0
	for _, p := range pieces {
		total += p.SizeOf()
	}
	return total
}

// buildFilter inserts the extracted key of every piece into a freshly sized
// Bloom filter.
func buildFilter[S lattice.Lattice[S]](pieces []S, epsilon float64) (*bloomfilter.Filter, error) {
	f, err := bloomfilter.New(len(pieces), epsilon)
	if err != nil {
		return nil, err
	}
	for _, p := range pieces {
		key, err := p.ExtractKey()
		if err != nil {
			return nil, err
		}
		f.Insert(key)
	}
	return f, nil
}

// partition splits pieces into those the filter reports as probably present
// (common) and those it reports as definitely absent (unknown).
func partition[S lattice.Lattice[S]](f *bloomfilter.Filter, pieces []S) (common, unknown []S, err error) {
	for _, p := range pieces {
		key, err := p.ExtractKey()
		if err != nil {
			return nil, nil, err
		}
		if f.Contains(key) {
			common = append(common, p)
		} else {
			unknown = append(unknown, p)
		}
	}
	return common, unknown, nil
}

// joinInto folds pieces into a fresh zero-value of the same concrete type as
// zero, which is used only as a template to call Zero on.
func joinInto[S lattice.Lattice[S]](zero S, pieces []S) S {
	state := zero.Zero()
	state.Join(pieces)
	return state
}

// bucketizeKeyed dispatches the decomposition pieces of state into
// numBuckets buckets under seed, returning both the buckets and their
// fingerprint vector.
func bucketizeKeyed[S lattice.Lattice[S]](state S, seed uint64, numBuckets int) ([]dispatch.Bucket[S], []uint64, error) {
	buckets, err := dispatch.Dispatch(state.Split(), extractKey[S], seed, numBuckets)
	if err != nil {
		return nil, nil, err
	}
	return buckets, dispatch.Fingerprints(seed, buckets), nil
}

// Baseline exchanges the entire local state up front, then exactly the
// deltas each side is missing from the other: two messages, no false
// positives, maximal bytes moved.
func Baseline[S lattice.Lattice[S]](local, remote S, sink *telemetry.Sink) error {
	if !sink.IsReady() {
		return errSinkNotReady
	}

	sink.Register(telemetry.LocalToRemote, local.SizeOf(), 0)

	remoteUnseen := local.Difference(remote)
	localUnseen := remote.Difference(local)

	sink.Register(telemetry.RemoteToLocal, localUnseen.SizeOf(), 0)

	remote.Join([]S{remoteUnseen})
	local.Join([]S{localUnseen})

	sink.Finish(local.FalseMatches(remote))
	return nil
}

// Bloom gates an exact difference behind a three-message Bloom filter
// exchange: local builds a filter over its decomposition and sends it, remote
// partitions its own decomposition against that filter and replies with a
// filter of its own plus anything the filter says local cannot have, and
// local repeats the partition to find what remote is missing. The algorithm
// does not guarantee full convergence; false positives on either filter
// silently drop pieces that are in fact needed.
func Bloom[S lattice.Lattice[S]](local, remote S, epsilon float64, sink *telemetry.Sink) error {
	if !sink.IsReady() {
		return errSinkNotReady
	}

	localPieces := local.Split()
	localFilter, err := buildFilter(localPieces, epsilon)
	if err != nil {
		return err
	}
	sink.Register(telemetry.LocalToRemote, 0, localFilter.SizeOf())

	remotePieces := remote.Split()
	common, localUnknown, err := partition(localFilter, remotePieces)
	if err != nil {
		return err
	}

	remoteFilter, err := buildFilter(common, epsilon)
	if err != nil {
		return err
	}
	sink.Register(telemetry.RemoteToLocal, sumSizeOf(localUnknown), remoteFilter.SizeOf())

	_, remoteUnknown, err := partition(remoteFilter, localPieces)
	if err != nil {
		return err
	}
	sink.Register(telemetry.LocalToRemote, sumSizeOf(remoteUnknown), 0)

	local.Join(localUnknown)
	remote.Join(remoteUnknown)

	sink.Finish(local.FalseMatches(remote))
	return nil
}

// Buckets assigns each side's decomposition to numBuckets buckets by a
// keyed hash, exchanges the per-bucket fingerprint vectors, and exactly
// resolves only the buckets whose fingerprints disagree: three messages,
// exact convergence, bytes proportional to divergence rather than state
// size. seed must be agreed upon by both peers ahead of the call.
func Buckets[S lattice.Lattice[S]](local, remote S, loadFactor float64, seed uint64, sink *telemetry.Sink) error {
	if !sink.IsReady() {
		return errSinkNotReady
	}

	localPieces := local.Split()
	numBuckets := dispatch.NumBuckets(loadFactor, len(localPieces))

	localBuckets, err := dispatch.Dispatch(localPieces, extractKey[S], seed, numBuckets)
	if err != nil {
		return err
	}
	localFP := dispatch.Fingerprints(seed, localBuckets)
	sink.Register(telemetry.LocalToRemote, 0, 8*len(localFP))

	remoteBuckets, err := dispatch.Dispatch(remote.Split(), extractKey[S], seed, numBuckets)
	if err != nil {
		return err
	}
	remoteFP := dispatch.Fingerprints(seed, remoteBuckets)

	remoteDiverging := map[int]S{}
	for i := range localFP {
		if localFP[i] != remoteFP[i] {
			remoteDiverging[i] = joinInto(local, remoteBuckets[i].Pieces)
		}
	}

	divergingState, divergingMeta := 0, 0
	for _, s := range remoteDiverging {
		divergingState += s.SizeOf()
		divergingMeta += 8
	}
	sink.Register(telemetry.RemoteToLocal, divergingState, divergingMeta)

	localDiverging := map[int]S{}
	for i := range remoteDiverging {
		localDiverging[i] = joinInto(local, localBuckets[i].Pieces)
	}

	var localUnseen, remoteUnseen []S
	for i, remoteState := range remoteDiverging {
		localUnseen = append(localUnseen, remoteState.Difference(localDiverging[i]))
	}
	for i, localState := range localDiverging {
		remoteUnseen = append(remoteUnseen, localState.Difference(remoteDiverging[i]))
	}
	sink.Register(telemetry.LocalToRemote, sumSizeOf(remoteUnseen), 0)

	local.Join(localUnseen)
	remote.Join(remoteUnseen)

	sink.Finish(local.FalseMatches(remote))
	return nil
}

// BloomBuckets combines both techniques: a Bloom-filter pass first discards
// pieces that are definitely absent on the other side, then the remaining
// probably-common pieces are bucketized and fingerprinted to exactly resolve
// whatever the filters let through as false positives. Four messages; exact
// convergence; typically the least total bytes of the four algorithms once
// the replicas are mostly synchronized.
func BloomBuckets[S lattice.Lattice[S]](local, remote S, epsilon, loadFactor float64, seed uint64, sink *telemetry.Sink) error {
	if !sink.IsReady() {
		return errSinkNotReady
	}

	localPieces := local.Split()
	localFilter, err := buildFilter(localPieces, epsilon)
	if err != nil {
		return err
	}
	sink.Register(telemetry.LocalToRemote, 0, localFilter.SizeOf())

	remoteCommon, localUnknown, err := partition(localFilter, remote.Split())
	if err != nil {
		return err
	}

	remoteFilter, err := buildFilter(remoteCommon, epsilon)
	if err != nil {
		return err
	}
	remoteCommonState := joinInto(local, remoteCommon)
	numBuckets := dispatch.NumBuckets(loadFactor, len(localPieces))
	remoteBuckets, remoteFP, err := bucketizeKeyed(remoteCommonState, seed, numBuckets)
	if err != nil {
		return err
	}
	sink.Register(telemetry.RemoteToLocal, sumSizeOf(localUnknown), remoteFilter.SizeOf()+8*len(remoteFP))

	localCommon, remoteUnknown, err := partition(remoteFilter, localPieces)
	if err != nil {
		return err
	}
	localCommonState := joinInto(local, localCommon)
	localBuckets, localFP, err := bucketizeKeyed(localCommonState, seed, numBuckets)
	if err != nil {
		return err
	}

	localDiverging := map[int]S{}
	for i := range localFP {
		if localFP[i] != remoteFP[i] {
			localDiverging[i] = joinInto(local, localBuckets[i].Pieces)
		}
	}

	divergingState, divergingMeta := 0, 0
	for _, s := range localDiverging {
		divergingState += s.SizeOf()
		divergingMeta += 8
	}
	sink.Register(telemetry.LocalToRemote, sumSizeOf(remoteUnknown)+divergingState, divergingMeta)

	remoteDiverging := map[int]S{}
	for i := range localDiverging {
		remoteDiverging[i] = joinInto(local, remoteBuckets[i].Pieces)
	}

	var remoteFalsePositives, localFalsePositives []S
	for i, remoteState := range remoteDiverging {
		localFalsePositives = append(localFalsePositives, remoteState.Difference(localDiverging[i]))
	}
	for i, localState := range localDiverging {
		remoteFalsePositives = append(remoteFalsePositives, localState.Difference(remoteDiverging[i]))
	}
	sink.Register(telemetry.RemoteToLocal, sumSizeOf(localFalsePositives), 0)

	remote.Join(remoteUnknown)
	remote.Join(remoteFalsePositives)
	local.Join(localUnknown)
	local.Join(localFalsePositives)

	sink.Finish(local.FalseMatches(remote))
	return nil
}
