package del

// Stats counts per-read outcomes. Each read contributes to Total and to
// exactly one primary outcome category, decided by its first pass. Matches
// from recovery passes additionally count toward Matched and
// MatchedRecovered.
type Stats struct {
	// Total is the number of reads consumed from the stream.
	Total int
	// Shorter counts reads too short to contain a full tag region.
	Shorter int
	// Reduced counts reads whose tag-string is shorter than expected.
	Reduced int
	// Longer counts reads whose tag-string is longer than expected.
	Longer int
	// LowQual counts reads rejected by the base-quality gate.
	LowQual int
	// Invalid counts reads where no 5' anchor was found.
	Invalid int
	// Opened counts reads that found a 5' anchor but no 3' anchor.
	Opened int
	// OpenedOnly counts opened reads that were not processed further.
	OpenedOnly int
	// Forward and Reverse count valid reads by strand.
	// Forward + Reverse = Valid.
	Forward int
	Reverse int
	// Valid counts reads whose tag region was located and passed the gates.
	Valid int
	// Matched counts valid reads whose tag-string resolved to tag codes, plus
	// one for each match produced by a recovery pass.
	Matched int
	// MatchedRecovered counts matches produced by recovery passes.
	MatchedRecovered int
	// Unfound counts valid reads whose tag-string resolved to no tag codes.
	Unfound int
	// Similar counts matched reads that needed an indel or substitution.
	Similar int
	// Chimera counts reads with an unexpectedly repeated tag.
	Chimera int
	// Undedup counts matched reads whose degenerate region did not match the
	// closing-primer pattern.
	Undedup int
	// MaxTagLength tracks the longest tag-string seen.
	MaxTagLength int
}

// Merge adds the field values of the two Stats objects and creates new Stats.
// MaxTagLength takes the larger of the two values instead.
func (s Stats) Merge(o Stats) Stats {
	s.Total += o.Total
	s.Shorter += o.Shorter
	s.Reduced += o.Reduced
	s.Longer += o.Longer
	s.LowQual += o.LowQual
	s.Invalid += o.Invalid
	s.Opened += o.Opened
	s.OpenedOnly += o.OpenedOnly
	s.Forward += o.Forward
	s.Reverse += o.Reverse
	s.Valid += o.Valid
	s.Matched += o.Matched
	s.MatchedRecovered += o.MatchedRecovered
	s.Unfound += o.Unfound
	s.Similar += o.Similar
	s.Chimera += o.Chimera
	s.Undedup += o.Undedup
	if o.MaxTagLength > s.MaxTagLength {
		s.MaxTagLength = o.MaxTagLength
	}
	return s
}
