package del

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastqOf(seqs ...string) string {
	var b strings.Builder
	for i, s := range seqs {
		b.WriteString("@read")
		b.WriteByte(byte('0' + i))
		b.WriteString("\n")
		b.WriteString(s)
		b.WriteString("\n+\n")
		b.WriteString(quals(len(s)))
		b.WriteString("\n")
	}
	return b.String()
}

func TestRunStream(t *testing.T) {
	ps := umiState(t, DefaultOpts)
	in := fastqOf(umiRead("AAAA"), umiRead("AAAT"), "CCTG")
	require.NoError(t, RunStream(ps, strings.NewReader(in), nil))
	assert.Equal(t, 3, ps.Stats.Total)
	assert.Equal(t, 2, ps.Stats.Matched)
	assert.Equal(t, 1, ps.Stats.Shorter)
}

func TestRunStreamReadLimit(t *testing.T) {
	opts := DefaultOpts
	opts.MaxReads = 2
	ps := umiState(t, opts)
	in := fastqOf(umiRead("AAAA"), umiRead("AAAT"), umiRead("CCCC"))
	require.NoError(t, RunStream(ps, strings.NewReader(in), nil))
	assert.Equal(t, 2, ps.Stats.Total)
}

func TestRunStreamDiagnostics(t *testing.T) {
	ps := umiState(t, DefaultOpts)
	var invalid, chimeras bytes.Buffer
	diag := &Diagnostics{Invalid: &invalid, Chimeras: &chimeras}
	in := fastqOf(umiRead("AAAA"), strings.Repeat("T", 20))
	require.NoError(t, RunStream(ps, strings.NewReader(in), diag))
	assert.True(t, strings.Contains(invalid.String(), strings.Repeat("T", 20)))
	assert.Equal(t, 0, chimeras.Len())
}
