package del

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMatcher(t *testing.T, table string, overhangs []string, restricted bool, validity *Validity, opts Opts) *matcher {
	t.Helper()
	inv := loadTestInventory(t, table, opts)
	if validity == nil {
		validity = BuildValidity(inv, []*ClosingPrimer{{ID: "", Seq: "CCAGCA", StaticPrefix: "CCAGCA"}}, nil, nil)
	}
	return &matcher{
		inv:        inv,
		validity:   validity,
		overhangs:  overhangs,
		opts:       opts,
		restricted: restricted,
	}
}

func TestMatchExact(t *testing.T) {
	m := testMatcher(t, "1.001\tAAA\n2.001\tCCC\n", []string{"", ""}, false, nil, DefaultOpts)
	res := m.match([]candidate{{s: "AAACCC", editPos: -1}}, "", "")
	require.True(t, res.ok)
	assert.Equal(t, []TagCode{"1.001", "2.001"}, res.codes)
	assert.Empty(t, res.similar)
}

func TestMatchOverhang(t *testing.T) {
	m := testMatcher(t, "1.001\tAAA\n2.001\tCCC\n", []string{"GT", ""}, false, nil, DefaultOpts)
	res := m.match([]candidate{{s: "AAAGTCCC", editPos: -1}}, "", "")
	require.True(t, res.ok)
	assert.Equal(t, []TagCode{"1.001", "2.001"}, res.codes)

	// A corrupted overhang abandons the candidate when similar search is
	// off.
	res = m.match([]candidate{{s: "AAAGGCCC", editPos: -1}}, "", "")
	assert.False(t, res.ok)
}

func TestMatchSubstitution(t *testing.T) {
	opts := DefaultOpts
	opts.Similar = true
	m := testMatcher(t, "1.001\tAAA\n2.001\tCCC\n", []string{"", ""}, false, nil, opts)
	res := m.match([]candidate{{s: "ATACCC", editPos: -1}}, "", "")
	require.True(t, res.ok)
	assert.Equal(t, []TagCode{"1.001", "2.001"}, res.codes)
	assert.Equal(t, "var,1", res.similar)
}

func TestMatchSubstitutionOff(t *testing.T) {
	m := testMatcher(t, "1.001\tAAA\n2.001\tCCC\n", []string{"", ""}, false, nil, DefaultOpts)
	res := m.match([]candidate{{s: "ATACCC", editPos: -1}}, "", "")
	assert.False(t, res.ok)
}

func TestMatchStrictSkipsSubstitutionOnIndelCandidates(t *testing.T) {
	opts := DefaultOpts
	opts.Similar = true
	opts.SimilarStrict = true
	m := testMatcher(t, "1.001\tAAA\n2.001\tCCC\n", []string{"", ""}, false, nil, opts)

	// Plain candidates may still use one substitution.
	res := m.match([]candidate{{s: "ATACCC", editPos: -1}}, "", "")
	assert.True(t, res.ok)

	// Indel-corrected candidates may not stack a substitution on top.
	res = m.match([]candidate{{s: "ATACCC", editPos: 1}}, "", "del")
	assert.False(t, res.ok)
}

func TestMatchValidityRestriction(t *testing.T) {
	opts := DefaultOpts
	opts.Similar = true
	inv := loadTestInventory(t, "1.001\tAAA\n1.002\tTTT\n2.001\tCCC\n", opts)
	cp := &ClosingPrimer{ID: "", Seq: "CCAGCA", StaticPrefix: "CCAGCA"}
	invalid, err := ParseValidityRules(`^1\.002$`)
	require.NoError(t, err)
	v := BuildValidity(inv, []*ClosingPrimer{cp}, nil, invalid)
	m := &matcher{inv: inv, validity: v, overhangs: []string{"", ""}, opts: opts, restricted: true}

	// An exact read may still hit the unexpected code.
	res := m.match([]candidate{{s: "TTTCCC", editPos: -1}}, "", "")
	assert.True(t, res.ok)

	// A similar read may not land on it.
	res = m.match([]candidate{{s: "TTTCCC", editPos: 0}}, "", "del")
	assert.False(t, res.ok)

	// A similar read resolving to expected codes is fine.
	res = m.match([]candidate{{s: "AAACCC", editPos: 0}}, "", "del")
	assert.True(t, res.ok)
}

func TestMatchFirstCandidateWins(t *testing.T) {
	opts := DefaultOpts
	opts.Similar = true
	m := testMatcher(t, "1.001\tAAA\n1.002\tGAA\n2.001\tCCC\n", []string{"", ""}, false, nil, opts)
	cands := []candidate{
		{s: "GAACCC", editPos: 0},
		{s: "AAACCC", editPos: 1},
	}
	res := m.match(cands, "", "del")
	require.True(t, res.ok)
	assert.Equal(t, []TagCode{"1.002", "2.001"}, res.codes)
	assert.Equal(t, "del,0", res.similar)
}

func TestDetectChimera(t *testing.T) {
	m := testMatcher(t, "1.001\tAAA\n2.001\tCCC\n", []string{"", ""}, false, nil, DefaultOpts)
	assert.True(t, m.detectChimera("AAACCCCCC"))
	assert.False(t, m.detectChimera("AAACCCGGG"))
	// A repeated sequence that is not an inventory tag is not chimeric.
	assert.False(t, m.detectChimera("TTTGGGTTT"))
}
