package dispatch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polqt/crdtsync/internal/dispatch"
	"github.com/Polqt/crdtsync/internal/lattice"
)

func extractGSet(p *lattice.GSet[string]) ([]byte, error) {
	return p.ExtractKey()
}

func TestNumBuckets(t *testing.T) {
	assert.Equal(t, 3, dispatch.NumBuckets(1.0, 3))
	assert.Equal(t, 1, dispatch.NumBuckets(0.2, 3))
	assert.Equal(t, 15, dispatch.NumBuckets(5.0, 3))
	assert.Equal(t, 1, dispatch.NumBuckets(1.0, 0))
}

func TestDispatch_IsDeterministicAcrossPeers(t *testing.T) {
	set := lattice.NewGSet[string]()
	for _, v := range []string{"x", "y", "z", "w"} {
		set.Insert(v)
	}
	pieces := set.Split()

	const seed = uint64(42)
	bucketsA, err := dispatch.Dispatch(pieces, extractGSet, seed, 4)
	require.NoError(t, err)
	bucketsB, err := dispatch.Dispatch(pieces, extractGSet, seed, 4)
	require.NoError(t, err)

	fpA := dispatch.Fingerprints(seed, bucketsA)
	fpB := dispatch.Fingerprints(seed, bucketsB)
	assert.Equal(t, fpA, fpB)
}

func TestDispatch_MismatchLocalizesToDifferingBucket(t *testing.T) {
	local := lattice.NewGSet[string]()
	for _, v := range []string{"x", "y", "z"} {
		local.Insert(v)
	}
	remote := lattice.NewGSet[string]()
	for _, v := range []string{"y", "z", "w"} {
		remote.Insert(v)
	}

	const seed = uint64(7)
	localBuckets, err := dispatch.Dispatch(local.Split(), extractGSet, seed, 3)
	require.NoError(t, err)
	remoteBuckets, err := dispatch.Dispatch(remote.Split(), extractGSet, seed, 3)
	require.NoError(t, err)

	localFP := dispatch.Fingerprints(seed, localBuckets)
	remoteFP := dispatch.Fingerprints(seed, remoteBuckets)

	differing := 0
	for i := range localFP {
		if localFP[i] != remoteFP[i] {
			differing++
		}
	}
	assert.Greater(t, differing, 0, "disjoint elements must land in at least one differing bucket")
}

func TestDispatch_EmptyBucketsAreStable(t *testing.T) {
	set := lattice.NewGSet[string]()
	set.Insert("only")

	buckets, err := dispatch.Dispatch(set.Split(), extractGSet, 1, 5)
	require.NoError(t, err)
	assert.Len(t, buckets, 5)

	nonEmpty := 0
	for _, b := range buckets {
		if len(b.Pieces) > 0 {
			nonEmpty++
		}
	}
	assert.Equal(t, 1, nonEmpty)
}
