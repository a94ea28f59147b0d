package del

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// UMI scenario geometry: head piece CCTG, closing primer GTACNNNNCA
// (static prefix GTAC, four degenerate bases, tail CA), anchor 4, the usual
// two cycles. L = 6.
func umiState(t *testing.T, opts Opts) *PipelineState {
	t.Helper()
	opts.AnchorSize = 4
	inv := loadTestInventory(t, "1.001\tAAA\n2.001\tCCC\n", opts)
	cp, err := ParseClosingPrimer("GTACNNNNCA")
	require.NoError(t, err)
	p, err := CompilePrimers([]string{"CCTG"}, []*ClosingPrimer{cp}, nil, inv, opts)
	require.NoError(t, err)
	v := BuildValidity(inv, p.ClosingPrimers, nil, nil)
	return NewPipelineState(p, inv, v, false, opts)
}

func umiRead(u string) string { return "CCTG" + "AAACCC" + "GTAC" + u + "CA" }

func TestAggregateSingleCompound(t *testing.T) {
	ps := umiState(t, DefaultOpts)
	for _, r := range []string{umiRead("AAAA"), umiRead("AAAA"), umiRead("AAAT")} {
		ps.ProcessRead(r, quals(len(r)))
	}
	require.Len(t, ps.Compounds, 1)
	key := MakeCompoundKey("GTAC", []TagCode{"1.001", "2.001"})
	cs := ps.Compounds[key]
	require.NotNil(t, cs)
	assert.Equal(t, 3, cs.Raw)
	assert.Equal(t, 3, cs.StrandNet)
	assert.Equal(t, 2, len(cs.UMIs))
	assert.Equal(t, 2, cs.UMIs["AAAA"])

	res := ps.Finalize()
	cs = res.Compounds[key]
	// Clean calibration: no base errors measured, both UMIs survive.
	assert.Equal(t, 2, cs.Dedup)
	assert.Equal(t, 1.0, cs.StrandBias)
	assert.InDelta(t, 1.0, cs.RawNorm, 1e-9)
	assert.True(t, cs.Expected)

	sum := res.PerCP["GTAC"]
	require.NotNil(t, sum)
	assert.Equal(t, 1, sum.Uniq)
	assert.Equal(t, 3, sum.MatchedReads)
	assert.Equal(t, 1, sum.LibrarySize)
}

func TestAggregateStrandNet(t *testing.T) {
	ps := umiState(t, DefaultOpts)
	fwd := umiRead("AAAA")
	for _, r := range []string{fwd, fwd, fwd, reverseComplement(fwd)} {
		ps.ProcessRead(r, quals(len(r)))
	}
	key := MakeCompoundKey("GTAC", []TagCode{"1.001", "2.001"})
	cs := ps.Compounds[key]
	require.NotNil(t, cs)
	assert.Equal(t, 4, cs.Raw)
	assert.Equal(t, 2, cs.StrandNet)
	res := ps.Finalize()
	assert.Equal(t, 0.5, res.Compounds[key].StrandBias)
	assert.Equal(t, 3, res.Stats.Forward)
	assert.Equal(t, 1, res.Stats.Reverse)
}

func TestAggregateReverseUMI(t *testing.T) {
	ps := umiState(t, DefaultOpts)
	rev := reverseComplement(umiRead("TGCA"))
	ps.ProcessRead(rev, quals(len(rev)))
	key := MakeCompoundKey("GTAC", []TagCode{"1.001", "2.001"})
	cs := ps.Compounds[key]
	require.NotNil(t, cs)
	assert.Equal(t, 1, cs.UMIs["TGCA"])
}

func TestAggregateMissingUMIPattern(t *testing.T) {
	ps := umiState(t, DefaultOpts)
	// The read ends right after the 3' anchor: the degenerate window is
	// gone, but the compound still matches.
	read := "CCTG" + "AAACCC" + "GTAC"
	ps.ProcessRead(read, quals(len(read)))
	assert.Equal(t, 1, ps.Stats.Matched)
	assert.Equal(t, 1, ps.Stats.Undedup)
	res := ps.Finalize()
	key := MakeCompoundKey("GTAC", []TagCode{"1.001", "2.001"})
	assert.Equal(t, 1, res.Compounds[key].Dedup)
}

func TestAggregateNoUMIOption(t *testing.T) {
	opts := DefaultOpts
	opts.NoUMI = true
	ps := umiState(t, opts)
	r := umiRead("AAAA")
	ps.ProcessRead(r, quals(len(r)))
	ps.ProcessRead(r, quals(len(r)))
	res := ps.Finalize()
	key := MakeCompoundKey("GTAC", []TagCode{"1.001", "2.001"})
	assert.Equal(t, 2, res.Compounds[key].Dedup)
}

func TestAggregateNoDedupOption(t *testing.T) {
	opts := DefaultOpts
	opts.NoDedup = true
	ps := umiState(t, opts)
	for _, u := range []string{"AAAA", "AAAA", "AAAT"} {
		r := umiRead(u)
		ps.ProcessRead(r, quals(len(r)))
	}
	res := ps.Finalize()
	key := MakeCompoundKey("GTAC", []TagCode{"1.001", "2.001"})
	assert.Equal(t, 2, res.Compounds[key].Dedup)
}

func TestAggregateRawSumsToMatched(t *testing.T) {
	ps := umiState(t, DefaultOpts)
	reads := []string{umiRead("AAAA"), umiRead("CCCC"), umiRead("GGGG"), "CCTGTTTTTTGTACAAAACA"}
	for _, r := range reads {
		ps.ProcessRead(r, quals(len(r)))
	}
	res := ps.Finalize()
	sum := 0
	for _, cs := range res.Compounds {
		sum += cs.Raw
	}
	assert.Equal(t, res.Stats.Matched, sum)
	assert.Equal(t, 1, res.Stats.Unfound)
}

func TestCompoundKeyRoundTrip(t *testing.T) {
	key := MakeCompoundKey("CC", []TagCode{"1.001", "2.017"})
	assert.Equal(t, "1.001+2.017", key.Tags)
	assert.Equal(t, []TagCode{"1.001", "2.017"}, key.Codes())
}

func TestFinalizeSortsByRawDescending(t *testing.T) {
	ps := umiState(t, DefaultOpts)
	inv := ps.inv
	// Register a second cycle-1 tag so two compounds exist.
	inv.Cycle(1).bySeq["TTT"] = "1.002"
	inv.Cycle(1).seqs["1.002"] = "TTT"
	ps.validity.valid["GTAC"]["1.002"] = true

	minor := "CCTG" + "TTTCCC" + "GTAC" + "AAAA" + "CA"
	major := umiRead("AAAA")
	for _, r := range []string{minor, major, major} {
		ps.ProcessRead(r, quals(len(r)))
	}
	res := ps.Finalize()
	require.Len(t, res.Keys, 2)
	assert.Equal(t, "1.001+2.001", res.Keys[0].Tags)
	assert.Equal(t, "1.002+2.001", res.Keys[1].Tags)
}
