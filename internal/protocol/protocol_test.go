package protocol_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Polqt/crdtsync/internal/lattice"
	"github.com/Polqt/crdtsync/internal/protocol"
	"github.com/Polqt/crdtsync/internal/telemetry"
)

func wordSet(sentence string) *lattice.GSet[string] {
	set := lattice.NewGSet[string]()
	for _, w := range strings.Fields(sentence) {
		set.Insert(w)
	}
	return set
}

func newSink(t *testing.T) *telemetry.Sink {
	t.Helper()
	sink, err := telemetry.NewSink(telemetry.Kbps(0.5), telemetry.Kbps(0.5))
	require.NoError(t, err)
	return sink
}

func TestBaseline_GSetWordScenario(t *testing.T) {
	local := wordSet("Stuck In A Moment You Can't Get Out Of")
	remote := wordSet("I Still Haven't Found What I'm Looking For")

	sink := newSink(t)
	require.NoError(t, protocol.Baseline(local, remote, sink))

	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, 30, events[0].Bytes())
	assert.Equal(t, 35, events[1].Bytes())

	diffs, done := sink.FalseMatches()
	require.True(t, done)
	assert.Zero(t, diffs)
	assert.ElementsMatch(t, local.Elements(), remote.Elements())
}

func TestBaseline_RejectsAlreadyUsedSink(t *testing.T) {
	local := wordSet("a b c")
	remote := wordSet("c d")

	sink := newSink(t)
	require.NoError(t, protocol.Baseline(local, remote, sink))
	assert.Error(t, protocol.Baseline(local, remote, sink))
}

func TestBaseline_GCounterScenario(t *testing.T) {
	local := lattice.NewGCounter[string]()
	local.Increment("a", 3)
	local.Increment("b", 1)

	remote := lattice.NewGCounter[string]()
	remote.Increment("a", 2)
	remote.Increment("b", 4)
	remote.Increment("c", 1)

	sink := newSink(t)
	require.NoError(t, protocol.Baseline(local, remote, sink))

	assert.EqualValues(t, 8, local.Value())
	assert.EqualValues(t, 8, remote.Value())

	diffs, done := sink.FalseMatches()
	require.True(t, done)
	assert.Zero(t, diffs)
}

func TestBaseline_AWSetAddWinsScenario(t *testing.T) {
	local := lattice.NewAWSet[string]()
	local.Add("x")
	local.Add("y")

	remote := lattice.NewAWSet[string]()
	remote.Add("x")
	remote.Remove("x") // concurrent remove of x, never observed the local replica's concurrent add
	remote.Add("y")
	remote.Add("z")

	sink := newSink(t)
	require.NoError(t, protocol.Baseline(local, remote, sink))

	assert.ElementsMatch(t, []string{"x", "y", "z"}, local.Observable())
	assert.ElementsMatch(t, []string{"x", "y", "z"}, remote.Observable())

	diffs, done := sink.FalseMatches()
	require.True(t, done)
	assert.Zero(t, diffs)
}

func TestBloom_GSetConvergesWithLowEpsilon(t *testing.T) {
	local := wordSet("alpha bravo charlie delta echo foxtrot")
	remote := wordSet("delta echo foxtrot golf hotel india")

	sink := newSink(t)
	require.NoError(t, protocol.Bloom(local, remote, 0.0001, sink))

	diffs, done := sink.FalseMatches()
	require.True(t, done)
	assert.Zero(t, diffs, "a tight epsilon over a small universe should fully converge")
	assert.ElementsMatch(t, local.Elements(), remote.Elements())
}

func TestBuckets_GSetConverges(t *testing.T) {
	local := wordSet("Stuck In A Moment You Can't Get Out Of")
	remote := wordSet("I Still Haven't Found What I'm Looking For")

	sink := newSink(t)
	require.NoError(t, protocol.Buckets(local, remote, 1.25, 42, sink))

	diffs, done := sink.FalseMatches()
	require.True(t, done)
	assert.Zero(t, diffs)
	assert.ElementsMatch(t, local.Elements(), remote.Elements())
	assert.Len(t, sink.Events(), 3)
}

func TestBuckets_IsolatesDivergingBucketsOnly(t *testing.T) {
	local := wordSet("a b c d e f g h")
	remote := wordSet("a b c d e f g h") // already converged

	sink := newSink(t)
	require.NoError(t, protocol.Buckets(local, remote, 1.25, 7, sink))

	diffs, done := sink.FalseMatches()
	require.True(t, done)
	assert.Zero(t, diffs)

	// With identical replicas every bucket fingerprint matches, so beyond the
	// first (fingerprint exchange) message nothing more should need sending.
	events := sink.Events()
	require.Len(t, events, 3)
	assert.Zero(t, events[1].Bytes())
	assert.Zero(t, events[2].Bytes())
}

func TestBloomBuckets_GSetScenario(t *testing.T) {
	local := wordSet("a b c d e f g h i j k l")
	remote := wordSet("m n o p q r s t u v w x y z")

	sink := newSink(t)
	require.NoError(t, protocol.BloomBuckets(local, remote, 0.01, 1.01, 11, sink))

	diffs, done := sink.FalseMatches()
	require.True(t, done)
	assert.Zero(t, diffs)
	assert.Len(t, sink.Events(), 4)
	assert.ElementsMatch(t, local.Elements(), remote.Elements())
}

func TestBloomBuckets_IsDeterministicAcrossRuns(t *testing.T) {
	buildLocal := func() *lattice.GSet[string] { return wordSet("a b c d e") }
	buildRemote := func() *lattice.GSet[string] { return wordSet("c d e f g") }

	var totals []int
	for i := 0; i < 3; i++ {
		sink := newSink(t)
		require.NoError(t, protocol.BloomBuckets(buildLocal(), buildRemote(), 0.01, 1.5, 99, sink))
		diffs, done := sink.FalseMatches()
		require.True(t, done)
		assert.Zero(t, diffs)
		totals = append(totals, sink.TotalBytes())
	}

	assert.Equal(t, totals[0], totals[1])
	assert.Equal(t, totals[1], totals[2])
}
