package del

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// OverType selects which per-compound count an over-representation pass
// aggregates.
type OverType int

const (
	// OverRaw aggregates raw counts.
	OverRaw OverType = iota
	// OverDedup aggregates deduplicated counts.
	OverDedup
	// OverUnique counts distinct compounds.
	OverUnique

	nOverTypes
)

func (t OverType) String() string {
	switch t {
	case OverRaw:
		return "raw"
	case OverDedup:
		return "dedup"
	case OverUnique:
		return "unique"
	}
	return "unknown"
}

// structKey identifies a plane (single cycle position and tag; C2 < 0) or a
// line (unordered pair of cycle positions and tags, C1 < C2).
type structKey struct {
	C1 int
	T1 TagCode
	C2 int
	T2 TagCode
}

func planeKey(c int, t TagCode) structKey {
	return structKey{C1: c, T1: t, C2: -1}
}

func lineKey(c1 int, t1 TagCode, c2 int, t2 TagCode) structKey {
	if c2 < c1 {
		c1, t1, c2, t2 = c2, t2, c1, t1
	}
	return structKey{C1: c1, T1: t1, C2: c2, T2: t2}
}

func (k structKey) isLine() bool { return k.C2 >= 0 }

func (k structKey) String() string {
	if k.isLine() {
		return fmt.Sprintf("%d:%s/%d:%s", k.C1+1, k.T1, k.C2+1, k.T2)
	}
	return fmt.Sprintf("%d:%s", k.C1+1, k.T1)
}

// OverEntry is one over-represented structure, reported in the .over output.
type OverEntry struct {
	CP        ClosingPrimerID
	Type      OverType
	Structure string
	Line      bool
	Value     float64
	Bin       int
}

// overState is the per-structure verdict for one (cp, type).
type overState struct {
	over bool
	bin  int
}

// analyzeOverRep accumulates tag and tag-pair counts per closing primer,
// classifies each structure against its μ+σ cutoff, and folds the verdicts
// back into per-compound scores.
func (ps *PipelineState) analyzeOverRep(res *Result) []OverEntry {
	var entries []OverEntry
	for _, sum := range res.PerCP {
		cpID := sum.ID

		// Accumulate per-structure raw/dedup/unique.
		accum := map[structKey]*[nOverTypes]float64{}
		add := func(k structKey, cs *CompoundStats) {
			v := accum[k]
			if v == nil {
				v = &[nOverTypes]float64{}
				accum[k] = v
			}
			v[OverRaw] += float64(cs.Raw)
			v[OverDedup] += float64(cs.Dedup)
			v[OverUnique]++
		}
		for key, cs := range ps.Compounds {
			if key.CP != cpID {
				continue
			}
			codes := key.Codes()
			for i, t := range codes {
				add(planeKey(i, t), cs)
				for j := i + 1; j < len(codes); j++ {
					add(lineKey(i, t, j, codes[j]), cs)
				}
			}
		}

		// Classify structures per class and type.
		verdicts := map[structKey]*[nOverTypes]overState{}
		for _, line := range []bool{false, true} {
			var keys []structKey
			for k := range accum {
				if k.isLine() == line {
					keys = append(keys, k)
				}
			}
			if len(keys) == 0 {
				continue
			}
			for t := OverType(0); t < nOverTypes; t++ {
				vals := make([]float64, len(keys))
				for i, k := range keys {
					vals[i] = accum[k][t]
				}
				mean, sd := stat.MeanStdDev(vals, nil)
				if math.IsNaN(sd) {
					sd = 0
				}
				for i, k := range keys {
					v := verdicts[k]
					if v == nil {
						v = &[nOverTypes]overState{}
						verdicts[k] = v
					}
					if sd > 0 && vals[i] > mean+sd {
						v[t] = overState{over: true, bin: sigmaBin(vals[i], mean, sd)}
					}
				}
			}
		}

		// Fold the verdicts into per-compound scores.
		for key, cs := range ps.Compounds {
			if key.CP != cpID {
				continue
			}
			codes := key.Codes()
			for t := OverType(0); t < nOverTypes; t++ {
				var lineScore, planeScore float64
				for i, tag := range codes {
					if v := verdicts[planeKey(i, tag)]; v != nil && v[t].over {
						planeScore++
						if v[t].bin > 1 {
							planeScore += 0.1
						}
					}
					for j := i + 1; j < len(codes); j++ {
						if v := verdicts[lineKey(i, tag, j, codes[j])]; v != nil && v[t].over {
							lineScore++
							if v[t].bin > 1 {
								lineScore += 0.1
							}
						}
					}
				}
				cs.OverLines[t] = lineScore
				cs.OverPlanes[t] = planeScore
			}
		}

		for k, v := range verdicts {
			for t := OverType(0); t < nOverTypes; t++ {
				if v[t].over {
					entries = append(entries, OverEntry{
						CP:        cpID,
						Type:      t,
						Structure: k.String(),
						Line:      k.isLine(),
						Value:     accum[k][t],
						Bin:       v[t].bin,
					})
				}
			}
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.CP != b.CP {
			return a.CP < b.CP
		}
		if a.Line != b.Line {
			return !a.Line
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		return a.Structure < b.Structure
	})
	return entries
}
