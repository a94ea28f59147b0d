package del

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/del/umi"
	"gonum.org/v1/gonum/stat"
)

// CompoundKey identifies a compound: the closing primer and the ordered tag
// codes of all cycles.
type CompoundKey struct {
	CP ClosingPrimerID
	// Tags is the "+"-joined tag code tuple, one code per cycle.
	Tags string
}

// MakeCompoundKey builds the key for a match.
func MakeCompoundKey(cp ClosingPrimerID, codes []TagCode) CompoundKey {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = string(c)
	}
	return CompoundKey{CP: cp, Tags: strings.Join(parts, "+")}
}

// Codes splits the key back into its tag code tuple.
func (k CompoundKey) Codes() []TagCode {
	parts := strings.Split(k.Tags, "+")
	codes := make([]TagCode, len(parts))
	for i, p := range parts {
		codes[i] = TagCode(p)
	}
	return codes
}

// CompoundStats is the per-compound accumulator and, after Finalize, the
// derived row of the output table.
type CompoundStats struct {
	Raw       int
	StrandNet int
	UMIs      umi.Multiset
	// NoUMI counts matched reads whose degenerate pattern did not hit.
	NoUMI int

	// Derived by Finalize.
	Dedup      int
	StrandBias float64
	RawNorm    float64
	DedupNorm  float64
	Expected   bool
	BinRaw     int
	BinDedup   int
	// OverLines and OverPlanes hold the pair-sum and single-sum
	// over-representation scores, indexed by OverType.
	OverLines  [nOverTypes]float64
	OverPlanes [nOverTypes]float64
}

// CPSummary aggregates per closing primer.
type CPSummary struct {
	ID ClosingPrimerID
	// Uniq is the number of distinct compounds.
	Uniq int
	// MatchedReads is the sum of raw counts.
	MatchedReads int
	LibrarySize  int
	RawMean      float64
	RawSD        float64
	DedupMean    float64
	DedupSD      float64
}

// PipelineState is the single mutable aggregate threaded through the
// pipeline stages. Compounds is mutated as reads flow in; Finalize freezes
// it and computes the derived statistics.
type PipelineState struct {
	opts       Opts
	primers    *Primers
	inv        *Inventory
	validity   *Validity
	classifier *Classifier
	extractors map[ClosingPrimerID]*umi.Extractor

	Stats       Stats
	Compounds   map[CompoundKey]*CompoundStats
	Calibration *umi.Calibration
	// TagCounts counts matched occurrences per tag code.
	TagCounts map[TagCode]int
	// Lengths is the located tag-string length histogram.
	Lengths map[int]int
	// ErrorPositions histograms where similar corrections landed.
	ErrorPositions map[int]int
}

// NewPipelineState wires the classifier and per-primer UMI extractors.
func NewPipelineState(primers *Primers, inv *Inventory, validity *Validity, restricted bool, opts Opts) *PipelineState {
	ps := &PipelineState{
		opts:           opts,
		primers:        primers,
		inv:            inv,
		validity:       validity,
		classifier:     NewClassifier(primers, inv, validity, restricted, opts),
		extractors:     map[ClosingPrimerID]*umi.Extractor{},
		Compounds:      map[CompoundKey]*CompoundStats{},
		Calibration:    umi.NewCalibration(),
		TagCounts:      map[TagCode]int{},
		Lengths:        map[int]int{},
		ErrorPositions: map[int]int{},
	}
	if !opts.NoUMI {
		for _, cp := range primers.ClosingPrimers {
			if cp.HasDegen() {
				ps.extractors[cp.ID] = umi.NewExtractor(cp.StaticPrefix, cp.DegenLen)
			}
		}
	}
	return ps
}

// Primers returns the compiled primers backing this state.
func (ps *PipelineState) Primers() *Primers { return ps.primers }

// Validity returns the validity sets backing this state.
func (ps *PipelineState) Validity() *Validity { return ps.validity }

// ProcessRead classifies one read and folds its matches into the compound
// map.
func (ps *PipelineState) ProcessRead(seq, qual string) ([]Match, Category) {
	matches, cat := ps.classifier.Classify(seq, qual, &ps.Stats)
	for _, m := range matches {
		ps.Lengths[m.TagLen]++
		key := MakeCompoundKey(m.CP.ID, m.Codes)
		cs := ps.Compounds[key]
		if cs == nil {
			cs = &CompoundStats{UMIs: umi.Multiset{}}
			ps.Compounds[key] = cs
		}
		cs.Raw++
		if m.Forward {
			cs.StrandNet++
		} else {
			cs.StrandNet--
		}
		for _, code := range m.Codes {
			ps.TagCounts[code]++
		}
		if ext := ps.extractors[m.CP.ID]; ext != nil {
			ps.recordUMI(ext, seq, m, cs)
		}
		ps.recordErrorPositions(m.Similar)
	}
	return matches, cat
}

// recordErrorPositions folds the positions out of a similar label
// ("del,3,var,7") into the error-position histogram.
func (ps *PipelineState) recordErrorPositions(label string) {
	if label == "" {
		return
	}
	parts := strings.Split(label, ",")
	for i := 0; i+1 < len(parts); i += 2 {
		if pos, err := strconv.Atoi(parts[i+1]); err == nil {
			ps.ErrorPositions[pos]++
		}
	}
}

// recordUMI extracts the degenerate window from the raw read and feeds the
// calibration multiset with the observed static-prefix window.
func (ps *PipelineState) recordUMI(ext *umi.Extractor, seq string, m Match, cs *CompoundStats) {
	var region string
	if m.Forward {
		start := m.TagPos + ps.primers.L - 1
		if start < 0 || start > len(seq) {
			cs.NoUMI++
			ps.Stats.Undedup++
			return
		}
		region = seq[start:]
	} else {
		region = reverseComplement(seq[:m.TagPos])
	}
	if u, ok := ext.Extract(region); ok {
		cs.UMIs.Add(u)
	} else {
		cs.NoUMI++
		ps.Stats.Undedup++
	}

	static := ext.StaticPrefix()
	var window string
	if m.Forward {
		start := m.TagPos + ps.primers.L
		if start >= 0 && start+len(static) <= len(seq) {
			window = seq[start : start+len(static)]
		}
	} else if len(region) >= len(static) {
		window = region[:len(static)]
	}
	if len(window) == len(static) {
		ps.Calibration.Observe(static, window)
	}
}

// Result is the frozen outcome of a run: the compound rows, per-primer
// summaries, and over-representation entries.
type Result struct {
	// Keys is the compound keys in output order.
	Keys      []CompoundKey
	Compounds map[CompoundKey]*CompoundStats
	PerCP     map[ClosingPrimerID]*CPSummary
	Over      []OverEntry
	BaseError []float64
	Stats     Stats
	// UMIDump is the distribution requested via Opts.DumpUMIFor.
	UMIDump umi.Multiset
}

// Finalize computes dedup counts, normalized counts, σ-bins, and the
// over-representation analysis. UMI multisets are released afterwards.
func (ps *PipelineState) Finalize() *Result {
	res := &Result{
		Compounds: ps.Compounds,
		PerCP:     map[ClosingPrimerID]*CPSummary{},
		Stats:     ps.Stats,
		BaseError: ps.Calibration.BaseError(ps.opts.MaxDegenErrors),
	}

	hasDegen := map[ClosingPrimerID]bool{}
	for _, cp := range ps.primers.ClosingPrimers {
		hasDegen[cp.ID] = cp.HasDegen() && !ps.opts.NoUMI
	}

	for key, cs := range ps.Compounds {
		res.Keys = append(res.Keys, key)
		switch {
		case !hasDegen[key.CP]:
			cs.Dedup = cs.Raw
		case ps.opts.NoDedup:
			cs.Dedup = len(cs.UMIs)
		default:
			cs.Dedup = umi.Dedup(cs.UMIs, res.BaseError, ps.opts.MaxDegenErrors, ps.opts.MaxDedupSetSize)
		}
		if hasDegen[key.CP] && cs.Dedup == 0 && cs.Raw > 0 {
			// Degenerate pattern never hit for this compound.
			cs.Dedup = 1
		}
		if cs.Raw > 0 {
			cs.StrandBias = math.Abs(float64(cs.StrandNet)) / float64(cs.Raw)
		}
		cs.Expected = true
		for _, code := range key.Codes() {
			if !ps.validity.Valid(key.CP, code) {
				cs.Expected = false
				break
			}
		}

		sum := res.PerCP[key.CP]
		if sum == nil {
			sum = &CPSummary{ID: key.CP, LibrarySize: ps.validity.LibrarySize(key.CP)}
			res.PerCP[key.CP] = sum
		}
		sum.Uniq++
		sum.MatchedReads += cs.Raw
	}

	// Deterministic order: raw count descending, key ascending. Outputs
	// past the sort cap are emitted unsorted to bound memory churn.
	if len(res.Keys) <= ps.opts.SortLimit {
		sort.Slice(res.Keys, func(i, j int) bool {
			a, b := ps.Compounds[res.Keys[i]], ps.Compounds[res.Keys[j]]
			if a.Raw != b.Raw {
				return a.Raw > b.Raw
			}
			if res.Keys[i].CP != res.Keys[j].CP {
				return res.Keys[i].CP < res.Keys[j].CP
			}
			return res.Keys[i].Tags < res.Keys[j].Tags
		})
	}

	for _, sum := range res.PerCP {
		rawVals := make([]float64, 0, sum.Uniq)
		dedupVals := make([]float64, 0, sum.Uniq)
		for key, cs := range ps.Compounds {
			if key.CP != sum.ID {
				continue
			}
			rawVals = append(rawVals, float64(cs.Raw))
			dedupVals = append(dedupVals, float64(cs.Dedup))
		}
		sum.RawMean, sum.RawSD = stat.MeanStdDev(rawVals, nil)
		sum.DedupMean, sum.DedupSD = stat.MeanStdDev(dedupVals, nil)
		if math.IsNaN(sum.RawSD) {
			sum.RawSD = 0
		}
		if math.IsNaN(sum.DedupSD) {
			sum.DedupSD = 0
		}
	}

	for key, cs := range ps.Compounds {
		sum := res.PerCP[key.CP]
		if sum.MatchedReads > 0 {
			norm := float64(sum.LibrarySize) / float64(sum.MatchedReads)
			cs.RawNorm = float64(cs.Raw) * norm
			cs.DedupNorm = float64(cs.Dedup) * norm
		}
		cs.BinRaw = sigmaBin(float64(cs.Raw), sum.RawMean, sum.RawSD)
		cs.BinDedup = sigmaBin(float64(cs.Dedup), sum.DedupMean, sum.DedupSD)
	}

	if !ps.opts.NoOverRep {
		res.Over = ps.analyzeOverRep(res)
	}

	// Capture the requested UMI distribution before releasing the
	// multisets; they are not needed past this point.
	if ps.opts.DumpUMIFor != "" {
		for key, cs := range ps.Compounds {
			if key.Tags == ps.opts.DumpUMIFor {
				res.UMIDump = umi.Multiset{}
				res.UMIDump.Merge(cs.UMIs)
				break
			}
		}
	}
	for _, cs := range ps.Compounds {
		cs.UMIs = nil
	}
	return res
}

// sigmaBin classifies v into ⌈(v−μ)/σ⌉; values at or below the mean, or a
// degenerate distribution, bin to zero.
func sigmaBin(v, mean, sd float64) int {
	if sd == 0 || v <= mean {
		return 0
	}
	return int(math.Ceil((v - mean) / sd))
}
