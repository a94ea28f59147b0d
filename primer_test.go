package del

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClosingPrimer(t *testing.T) {
	cp, err := ParseClosingPrimer("CCAGCA")
	require.NoError(t, err)
	assert.Equal(t, ClosingPrimerID(""), cp.ID)
	assert.Equal(t, "CCAGCA", cp.StaticPrefix)
	assert.False(t, cp.HasDegen())

	cp, err = ParseClosingPrimer("CCNNNNCA")
	require.NoError(t, err)
	assert.Equal(t, ClosingPrimerID("CC"), cp.ID)
	assert.Equal(t, "CC", cp.StaticPrefix)
	assert.Equal(t, 4, cp.DegenLen)
	assert.Equal(t, "CA", cp.Tail)

	cp, err = ParseClosingPrimer("p1-GTACNNNNCA")
	require.NoError(t, err)
	assert.Equal(t, "p1", cp.Label)
	assert.Equal(t, ClosingPrimerID("p1GTAC"), cp.ID)
	assert.Equal(t, "GTAC", cp.StaticPrefix)
}

func TestParseClosingPrimers(t *testing.T) {
	cps, err := ParseClosingPrimers("CCAGCA,p1-GTACNNNNCA")
	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.Equal(t, "CCAGCA", cps[0].Seq)
	assert.Equal(t, "p1", cps[1].Label)
}

func scenarioPrimers(t *testing.T, opts Opts) (*Primers, *Inventory) {
	t.Helper()
	inv := loadTestInventory(t, "1.001\tAAA\n2.001\tCCC\n", opts)
	cp, err := ParseClosingPrimer("CCAGCA")
	require.NoError(t, err)
	p, err := CompilePrimers([]string{"CAGGTCAG"}, []*ClosingPrimer{cp}, nil, inv, opts)
	require.NoError(t, err)
	return p, inv
}

func TestCompilePrimers(t *testing.T) {
	opts := DefaultOpts
	opts.AnchorSize = 5
	p, _ := scenarioPrimers(t, opts)
	assert.Equal(t, 6, p.L)
	require.Len(t, p.Overhangs, 2)
	assert.Equal(t, "", p.Overhangs[1])
}

func TestCompilePrimersAnchorTooLarge(t *testing.T) {
	opts := DefaultOpts
	opts.AnchorSize = 9
	inv := loadTestInventory(t, "1.001\tAAA\n2.001\tCCC\n", opts)
	cp, err := ParseClosingPrimer("CCAGCA")
	require.NoError(t, err)
	_, err = CompilePrimers([]string{"CAGGTCAG"}, []*ClosingPrimer{cp}, nil, inv, opts)
	assert.Error(t, err)
}

func TestCompilePrimersAnchorEqualsPrimer(t *testing.T) {
	opts := DefaultOpts
	opts.AnchorSize = 6
	inv := loadTestInventory(t, "1.001\tAAA\n2.001\tCCC\n", opts)
	cp, err := ParseClosingPrimer("CCAGCA")
	require.NoError(t, err)
	_, err = CompilePrimers([]string{"CAGGTCAG"}, []*ClosingPrimer{cp}, nil, inv, opts)
	assert.NoError(t, err)
}

func TestCompilePrimersOverhangCount(t *testing.T) {
	opts := DefaultOpts
	opts.AnchorSize = 5
	inv := loadTestInventory(t, "1.001\tAAA\n2.001\tCCC\n", opts)
	cp, err := ParseClosingPrimer("CCAGCA")
	require.NoError(t, err)
	_, err = CompilePrimers([]string{"CAGGTCAG"}, []*ClosingPrimer{cp}, []string{"GG", "TT"}, inv, opts)
	assert.Error(t, err)
}

func TestFind5Forward(t *testing.T) {
	opts := DefaultOpts
	opts.AnchorSize = 5
	p, _ := scenarioPrimers(t, opts)
	hit, ok := p.find5("GTCAGAAACCCCCAGCA", false)
	require.True(t, ok)
	assert.True(t, hit.forward)
	assert.Equal(t, 5, hit.suffixPos)
}

func TestFind5Reverse(t *testing.T) {
	opts := DefaultOpts
	opts.AnchorSize = 5
	p, _ := scenarioPrimers(t, opts)
	hit, ok := p.find5("TGCTGGGGGTTTCTGAC", false)
	require.True(t, ok)
	assert.False(t, hit.forward)
	assert.Equal(t, 6, hit.suffixPos)
	require.NotNil(t, hit.cp)
	assert.Equal(t, "CCAGCA", hit.cp.Seq)
}

func TestFind5Near(t *testing.T) {
	opts := DefaultOpts
	opts.AnchorSize = 5
	p, _ := scenarioPrimers(t, opts)
	// One base inserted inside the anchor GTCAG.
	_, ok := p.find5("GTCTAGAAACCCCCAGCA", false)
	assert.False(t, ok)
	hit, ok := p.find5("GTCTAGAAACCCCCAGCA", true)
	require.True(t, ok)
	assert.True(t, hit.near)
	assert.Equal(t, 6, hit.suffixPos)
}

func TestFind3Exact(t *testing.T) {
	opts := DefaultOpts
	opts.AnchorSize = 5
	p, _ := scenarioPrimers(t, opts)
	hit := fiveHit{suffixPos: 5, forward: true}
	tagLen, cp, ok := p.find3Exact("AAACCCCCAGCA", hit)
	require.True(t, ok)
	assert.Equal(t, 6, tagLen)
	assert.Equal(t, "CCAGCA", cp.Seq)

	_, _, ok = p.find3Exact("AAACCCTTTTTT", hit)
	assert.False(t, ok)
}

func TestFind3Near(t *testing.T) {
	opts := DefaultOpts
	opts.AnchorSize = 5
	p, _ := scenarioPrimers(t, opts)
	hit := fiveHit{forward: true}
	// Tag-string one short: the anchor sits at offset L-1.
	tagLen, cp, ok := p.find3Near("AACCCCCAGCAGG", hit)
	require.True(t, ok)
	assert.Equal(t, 5, tagLen)
	assert.Equal(t, "CCAGCA", cp.Seq)
}

func TestInsertionVariants(t *testing.T) {
	variants := insertionVariants("ACGT")
	require.Len(t, variants, 4)
	// A base inserted after position 1.
	assert.True(t, variants[0].find("TTACCGTTT") >= 0)
	found := false
	for _, w := range variants {
		if w.find("ACGTT") == 0 {
			found = true
		}
	}
	assert.True(t, found)
}
