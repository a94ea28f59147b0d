package del

import (
	"fmt"
	"strings"
)

// candidate is one tag-string hypothesis. Indel-corrected candidates carry
// the position the correction was applied at.
type candidate struct {
	s       string
	editPos int // -1 for the uncorrected tag-string
}

// matcher resolves tag-strings against the inventory.
type matcher struct {
	inv       *Inventory
	validity  *Validity
	overhangs []string // one per cycle, trailing entry empty
	opts      Opts
	// restricted is set when valid/invalid rules are in force: similar reads
	// then only accept expected codes, since indel corrections often land on
	// unexpected codes by coincidence.
	restricted bool
}

// matchResult is the outcome of matching one read's candidate list.
type matchResult struct {
	ok      bool
	codes   []TagCode
	similar string // "del"/"ins" base label plus ",var,<pos>" appendices
}

// match walks the candidate list and returns the first fully matched one.
// baseSimilar is "del" or "ins" when the candidates were generated by indel
// correction, empty otherwise.
func (m *matcher) match(cands []candidate, cpID ClosingPrimerID, baseSimilar string) matchResult {
	for _, cand := range cands {
		codes, varLabels, ok := m.matchOne(cand.s, cpID, baseSimilar != "")
		if !ok {
			continue
		}
		res := matchResult{ok: true, codes: codes, similar: baseSimilar}
		if baseSimilar != "" && cand.editPos >= 0 {
			res.similar = fmt.Sprintf("%s,%d", res.similar, cand.editPos)
		}
		for _, l := range varLabels {
			if res.similar == "" {
				res.similar = l
			} else {
				res.similar += "," + l
			}
		}
		return res
	}
	return matchResult{}
}

// matchOne matches a single tag-string left to right, one cycle at a time.
func (m *matcher) matchOne(ts string, cpID ClosingPrimerID, indelCorrected bool) (codes []TagCode, varLabels []string, ok bool) {
	pos := 0
	for k, c := range m.inv.Cycles() {
		if pos+c.Length > len(ts) {
			return nil, nil, false
		}
		tag := ts[pos : pos+c.Length]
		overhang := m.overhangs[k]
		postEnd := pos + c.Length + len(overhang)
		if !m.opts.Similar {
			if postEnd > len(ts) || ts[pos+c.Length:postEnd] != overhang {
				return nil, nil, false
			}
		}

		code, found := c.Lookup(tag)
		if !found && m.opts.Similar && !(m.opts.SimilarStrict && indelCorrected) {
			code, found = m.substitutionLookup(c, tag)
			if found {
				subPos := m.substitutionPos(c, tag, code)
				varLabels = append(varLabels, fmt.Sprintf("var,%d", pos+subPos))
			}
		}
		if !found {
			return nil, nil, false
		}
		if m.restricted && (indelCorrected || len(varLabels) > 0) && !m.validity.Valid(cpID, code) {
			return nil, nil, false
		}
		codes = append(codes, code)
		pos += c.Length + len(overhang)
	}
	return codes, varLabels, true
}

// substitutionLookup tries every single-base substitution of tag against the
// cycle inventory; the first hit wins.
func (m *matcher) substitutionLookup(c *Cycle, tag string) (TagCode, bool) {
	buf := []byte(tag)
	for i := 0; i < len(buf); i++ {
		orig := buf[i]
		for _, b := range dnaBases {
			if b == orig {
				continue
			}
			buf[i] = b
			if code, ok := c.Lookup(string(buf)); ok {
				buf[i] = orig
				return code, true
			}
		}
		buf[i] = orig
	}
	return "", false
}

// substitutionPos returns the position at which tag differs from the
// sequence registered for code.
func (m *matcher) substitutionPos(c *Cycle, tag string, code TagCode) int {
	seq := c.Seq(code)
	for i := 0; i < len(tag) && i < len(seq); i++ {
		if tag[i] != seq[i] {
			return i
		}
	}
	return 0
}

// detectChimera scans every cycle independently at its natural offset: a
// read is chimeric when a cycle's tag hits the inventory and the same
// sequence occurs more than once in the tag-string, indicating a ligation
// artifact.
func (m *matcher) detectChimera(ts string) bool {
	pos := 0
	for k, c := range m.inv.Cycles() {
		if pos+c.Length > len(ts) {
			break
		}
		tag := ts[pos : pos+c.Length]
		if _, ok := c.Lookup(tag); ok && strings.Count(ts, tag) > 1 {
			return true
		}
		pos += c.Length + len(m.overhangs[k])
	}
	return false
}
