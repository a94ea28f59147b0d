package del

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
)

// ClosingPrimer is a 3' flanking primer. Its sequence optionally contains a
// run of N bases marking the degenerate (UMI) window, followed by a static
// tail.
type ClosingPrimer struct {
	// ID is the label plus the non-degenerate prefix, or just the label when
	// the primer carries no N run.
	ID ClosingPrimerID
	// Label is the optional "<label>-" prefix given on the command line.
	Label string
	// Seq is the full primer sequence, N run included.
	Seq string
	// StaticPrefix is the sequence before the N run; equal to Seq when there
	// is no run.
	StaticPrefix string
	// DegenLen is the length of the N run; zero when absent.
	DegenLen int
	// Tail is the static sequence after the N run.
	Tail string
}

// HasDegen reports whether the primer carries a degenerate window.
func (cp *ClosingPrimer) HasDegen() bool { return cp.DegenLen > 0 }

// ParseClosingPrimer parses "SEQ" or "label-SEQ". The first run of N bases,
// if any, marks the degenerate window.
func ParseClosingPrimer(s string) (*ClosingPrimer, error) {
	cp := &ClosingPrimer{}
	if i := strings.Index(s, "-"); i >= 0 {
		cp.Label = s[:i]
		s = s[i+1:]
	}
	s = strings.ToUpper(s)
	if s == "" {
		return nil, errors.E(fmt.Sprintf("empty closing primer %q", s))
	}
	cp.Seq = s
	nStart := strings.IndexByte(s, 'N')
	if nStart < 0 {
		cp.StaticPrefix = s
		cp.ID = ClosingPrimerID(cp.Label)
		return cp, nil
	}
	nEnd := nStart
	for nEnd < len(s) && s[nEnd] == 'N' {
		nEnd++
	}
	cp.StaticPrefix = s[:nStart]
	cp.DegenLen = nEnd - nStart
	cp.Tail = s[nEnd:]
	cp.ID = ClosingPrimerID(cp.Label + cp.StaticPrefix)
	return cp, nil
}

// ParseClosingPrimers parses a comma-separated primer list.
func ParseClosingPrimers(s string) ([]*ClosingPrimer, error) {
	var cps []*ClosingPrimer
	for _, part := range strings.Split(s, ",") {
		if part == "" {
			continue
		}
		cp, err := ParseClosingPrimer(part)
		if err != nil {
			return nil, err
		}
		cps = append(cps, cp)
	}
	return cps, nil
}

// wildPattern is an anchor variant with one arbitrary position, modeling a
// single inserted base near the anchor.
type wildPattern struct {
	pat  string
	wild int // index within pat that matches any base
}

// matchAt reports whether the pattern matches s at offset i.
func (w wildPattern) matchAt(s string, i int) bool {
	if i < 0 || i+len(w.pat) > len(s) {
		return false
	}
	for j := 0; j < len(w.pat); j++ {
		if j == w.wild {
			continue
		}
		if s[i+j] != w.pat[j] {
			return false
		}
	}
	return true
}

// find returns the first offset at which the pattern matches s, or -1.
func (w wildPattern) find(s string) int {
	for i := 0; i+len(w.pat) <= len(s); i++ {
		if w.matchAt(s, i) {
			return i
		}
	}
	return -1
}

// insertionVariants builds the 1-insertion patterns of an anchor: after each
// anchor position, one arbitrary base may have been read in.
func insertionVariants(anchor string) []wildPattern {
	var variants []wildPattern
	for i := 1; i <= len(anchor); i++ {
		variants = append(variants, wildPattern{
			pat:  anchor[:i] + "." + anchor[i:],
			wild: i,
		})
	}
	return variants
}

// fiveAnchor is a compiled 5' anchor: matching it fixes the read orientation
// and, on the reverse strand, the closing primer.
type fiveAnchor struct {
	anchor  string
	near    []wildPattern
	forward bool
	cp      *ClosingPrimer // reverse-strand anchors only
}

// threeAnchor is a compiled 3' anchor searched within the anchored suffix.
type threeAnchor struct {
	anchor string
	cp     *ClosingPrimer // forward-strand anchors only
}

// Primers holds the compiled matchers for all head pieces and closing
// primers, plus the derived geometry of the tag region.
type Primers struct {
	HeadPieces     []string
	ClosingPrimers []*ClosingPrimer
	// Overhangs has one entry per cycle: cycles-1 real overhangs plus a
	// trailing empty one for indexing convenience.
	Overhangs  []string
	AnchorSize int
	// L is the expected tag-string length: the sum of cycle tag lengths and
	// overhang lengths.
	L int

	five     []fiveAnchor  // head pieces first, then reverse-complement closing primers
	threeFwd []threeAnchor // per closing primer
	threeRev []threeAnchor // per head piece, reverse-complemented
}

// CompilePrimers validates the primer geometry against the inventory and
// compiles the anchors. The overhang count must be exactly cycles-1; an empty
// list means consecutive cycle tags abut with no overhang between them. The
// anchor must fit inside every head piece and every closing-primer static
// prefix.
func CompilePrimers(headPieces []string, cps []*ClosingPrimer, overhangs []string, inv *Inventory, opts Opts) (*Primers, error) {
	if len(headPieces) == 0 {
		return nil, errors.E("no head pieces")
	}
	if len(cps) == 0 {
		return nil, errors.E("no closing primers")
	}
	if len(overhangs) == 0 && inv.NumCycles() > 1 {
		overhangs = make([]string, inv.NumCycles()-1)
	}
	if got, want := len(overhangs), inv.NumCycles()-1; got != want {
		return nil, errors.E(fmt.Sprintf("%d overhangs for %d cycles; want %d", got, inv.NumCycles(), want))
	}
	a := opts.AnchorSize
	p := &Primers{
		ClosingPrimers: cps,
		AnchorSize:     a,
	}
	for _, hp := range headPieces {
		p.HeadPieces = append(p.HeadPieces, strings.ToUpper(hp))
	}
	for _, o := range overhangs {
		p.Overhangs = append(p.Overhangs, strings.ToUpper(o))
	}
	p.Overhangs = append(p.Overhangs, "")
	p.L = inv.TagStringLength(p.Overhangs)

	for _, hp := range p.HeadPieces {
		if len(hp) < a {
			return nil, errors.E(fmt.Sprintf("anchor size %d exceeds head piece %q", a, hp))
		}
		anchor := hp[len(hp)-a:]
		p.five = append(p.five, fiveAnchor{
			anchor:  anchor,
			near:    insertionVariants(anchor),
			forward: true,
		})
		p.threeRev = append(p.threeRev, threeAnchor{anchor: reverseComplement(anchor)})
	}
	for _, cp := range cps {
		if len(cp.StaticPrefix) < a {
			return nil, errors.E(fmt.Sprintf("anchor size %d exceeds static prefix of closing primer %q", a, cp.Seq))
		}
		fwd := cp.Seq[:a]
		p.threeFwd = append(p.threeFwd, threeAnchor{anchor: fwd, cp: cp})
		rev := reverseComplement(fwd)
		p.five = append(p.five, fiveAnchor{
			anchor: rev,
			near:   insertionVariants(rev),
			cp:     cp,
		})
	}
	return p, nil
}

// fiveHit describes a located 5' anchor.
type fiveHit struct {
	// suffixPos is the index of the first base after the anchor: the start
	// of the anchored suffix.
	suffixPos int
	forward   bool
	cp        *ClosingPrimer // nil on the forward strand
	near      bool
}

// find5 locates the first matching 5' anchor in s, trying head pieces before
// reverse-complement closing primers. Under near, the 1-insertion variants
// are tried instead of the exact anchors.
func (p *Primers) find5(s string, near bool) (fiveHit, bool) {
	for _, f := range p.five {
		if !near {
			if i := strings.Index(s, f.anchor); i >= 0 {
				return fiveHit{suffixPos: i + len(f.anchor), forward: f.forward, cp: f.cp}, true
			}
			continue
		}
		for _, w := range f.near {
			if i := w.find(s); i >= 0 {
				return fiveHit{suffixPos: i + len(w.pat), forward: f.forward, cp: f.cp, near: true}, true
			}
		}
	}
	return fiveHit{}, false
}

// find3Exact finds the shortest prefix of the anchored suffix ending
// immediately before a 3' anchor. On the forward strand the matching anchor
// determines the closing primer; hit.cp wins on the reverse strand.
func (p *Primers) find3Exact(suffix string, hit fiveHit) (tagLen int, cp *ClosingPrimer, ok bool) {
	anchors := p.threeRev
	if hit.forward {
		anchors = p.threeFwd
	}
	tagLen = -1
	for _, t := range anchors {
		if i := strings.Index(suffix, t.anchor); i >= 0 && (tagLen < 0 || i < tagLen) {
			tagLen = i
			cp = t.cp
		}
	}
	if tagLen < 0 {
		return 0, nil, false
	}
	if !hit.forward {
		cp = hit.cp
	}
	return tagLen, cp, true
}

// find3Near matches a tag-string of length L-1, L, or L+1 followed by a 3'
// anchor, preferring the exact length.
func (p *Primers) find3Near(suffix string, hit fiveHit) (tagLen int, cp *ClosingPrimer, ok bool) {
	anchors := p.threeRev
	if hit.forward {
		anchors = p.threeFwd
	}
	for _, l := range [3]int{p.L, p.L - 1, p.L + 1} {
		if l < 0 || l+p.AnchorSize > len(suffix) {
			continue
		}
		for _, t := range anchors {
			if suffix[l:l+len(t.anchor)] == t.anchor {
				if hit.forward {
					return l, t.cp, true
				}
				return l, hit.cp, true
			}
		}
	}
	return 0, nil, false
}
