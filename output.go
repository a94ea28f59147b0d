package del

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
)

// outFile opens path for writing and returns a tsv writer over it.
func outFile(ctx context.Context, path string, e *errors.Once) (file.File, *tsv.Writer) {
	out, err := file.Create(ctx, path)
	if err != nil {
		e.Set(err)
		return nil, nil
	}
	return out, tsv.NewWriter(out.Writer(ctx))
}

func closeOut(ctx context.Context, out file.File, w *tsv.Writer, e *errors.Once) {
	if out == nil {
		return
	}
	e.Set(w.Flush())
	e.Set(out.Close(ctx))
}

// WriteOutputs writes the main tables (allTags, filtered, over, log) and the
// enabled companion files, all named tags_<prefix>.<kind>.
func (ps *PipelineState) WriteOutputs(ctx context.Context, prefix string, res *Result) error {
	e := errors.Once{}
	base := "tags_" + prefix

	ps.writeAllTags(ctx, base+".allTags", res, false, &e)

	found, missing := 0, 0
	for _, c := range ps.inv.Cycles() {
		for code := range c.seqs {
			if ps.TagCounts[code] > 0 {
				found++
			} else {
				missing++
			}
		}
	}
	if missing > found {
		ps.writeAllTags(ctx, base+".filtered", res, true, &e)
	}

	if !ps.opts.NoOverRep {
		ps.writeOver(ctx, base+".over", res, &e)
	}
	ps.writeLog(ctx, base+".log", res, &e)

	if ps.opts.DumpLengths {
		ps.writeIntHistogram(ctx, base+".lengths", ps.Lengths, &e)
	}
	if ps.opts.DumpErrors {
		ps.writeIntHistogram(ctx, base+".errors", ps.ErrorPositions, &e)
	}
	if ps.opts.DumpTagCounts {
		ps.writeTagCounts(ctx, base+".tagcounts", false, &e)
	}
	if ps.opts.DumpExisting {
		ps.writeTagCounts(ctx, base+".existingtags", true, &e)
	}
	if ps.opts.DumpExpected {
		ps.writeExpected(ctx, base+".expected", &e)
	}
	if res.UMIDump != nil {
		ps.writeUMIDump(ctx, base+".degen", res, &e)
	}
	return e.Err()
}

func (ps *PipelineState) writeAllTags(ctx context.Context, path string, res *Result, expectedOnly bool, e *errors.Once) {
	out, w := outFile(ctx, path, e)
	if out == nil {
		return
	}
	defer closeOut(ctx, out, w, e)

	for i := 0; i < ps.inv.NumCycles(); i++ {
		w.WriteString(fmt.Sprintf("TAG%d", i+1))
	}
	for _, col := range []string{"CP", "RAW", "DEDUP", "STRANDBIAS", "RAW_NORM", "DEDUP_NORM", "EXPECTED"} {
		w.WriteString(col)
	}
	if !ps.opts.NoOverRep {
		for _, col := range []string{
			"SDCOUNT_RAW", "SDCOUNT_DEDUP",
			"OVER_RAW_LINES", "OVER_DEDUP_LINES", "OVER_UNIQUE_LINES",
			"OVER_RAW_PLANES", "OVER_DEDUP_PLANES", "OVER_UNIQUE_PLANES",
		} {
			w.WriteString(col)
		}
	}
	e.Set(w.EndLine())

	n := 0
	for _, key := range res.Keys {
		cs := res.Compounds[key]
		if (expectedOnly || ps.opts.ExpectedOnly) && !cs.Expected {
			continue
		}
		for _, code := range key.Codes() {
			w.WriteString(string(code))
		}
		w.WriteString(string(key.CP))
		w.WriteString(strconv.Itoa(cs.Raw))
		w.WriteString(strconv.Itoa(cs.Dedup))
		w.WriteString(fmt.Sprintf("%.3f", cs.StrandBias))
		w.WriteString(fmt.Sprintf("%.3f", cs.RawNorm))
		w.WriteString(fmt.Sprintf("%.3f", cs.DedupNorm))
		if cs.Expected {
			w.WriteString("1")
		} else {
			w.WriteString("0")
		}
		if !ps.opts.NoOverRep {
			w.WriteString(strconv.Itoa(cs.BinRaw))
			w.WriteString(strconv.Itoa(cs.BinDedup))
			for t := OverType(0); t < nOverTypes; t++ {
				w.WriteString(fmt.Sprintf("%.1f", cs.OverLines[t]))
			}
			for t := OverType(0); t < nOverTypes; t++ {
				w.WriteString(fmt.Sprintf("%.1f", cs.OverPlanes[t]))
			}
		}
		e.Set(w.EndLine())
		n++
	}
	log.Printf("Wrote %d compounds to %s", n, path)
}

func (ps *PipelineState) writeOver(ctx context.Context, path string, res *Result, e *errors.Once) {
	out, w := outFile(ctx, path, e)
	if out == nil {
		return
	}
	defer closeOut(ctx, out, w, e)

	for _, col := range []string{"CP", "TYPE", "CLASS", "STRUCTURE", "VALUE", "SDBIN"} {
		w.WriteString(col)
	}
	e.Set(w.EndLine())
	for _, entry := range res.Over {
		w.WriteString(string(entry.CP))
		w.WriteString(entry.Type.String())
		if entry.Line {
			w.WriteString("line")
		} else {
			w.WriteString("plane")
		}
		w.WriteString(entry.Structure)
		w.WriteString(fmt.Sprintf("%.1f", entry.Value))
		w.WriteString(strconv.Itoa(entry.Bin))
		e.Set(w.EndLine())
	}
}

func (ps *PipelineState) writeLog(ctx context.Context, path string, res *Result, e *errors.Once) {
	out, err := file.Create(ctx, path)
	if err != nil {
		e.Set(err)
		return
	}
	w := out.Writer(ctx)
	p := func(format string, args ...interface{}) {
		_, err := fmt.Fprintf(w, format, args...)
		e.Set(err)
	}
	s := res.Stats
	p("total\t%d\n", s.Total)
	p("shorter\t%d\n", s.Shorter)
	p("reduced\t%d\n", s.Reduced)
	p("longer\t%d\n", s.Longer)
	p("lowQual\t%d\n", s.LowQual)
	p("invalid\t%d\n", s.Invalid)
	p("opened\t%d\n", s.Opened)
	p("openedOnly\t%d\n", s.OpenedOnly)
	p("forward\t%d\n", s.Forward)
	p("reverse\t%d\n", s.Reverse)
	p("valid\t%d\n", s.Valid)
	p("matched\t%d\n", s.Matched)
	p("matchedRecovered\t%d\n", s.MatchedRecovered)
	p("unfound\t%d\n", s.Unfound)
	p("similar\t%d\n", s.Similar)
	p("chimera\t%d\n", s.Chimera)
	p("undedup\t%d\n", s.Undedup)
	p("maxTagLength\t%d\n", s.MaxTagLength)
	p("duplicateTags\t%d\n", ps.inv.Duplicates)

	var cpIDs []string
	for id := range res.PerCP {
		cpIDs = append(cpIDs, string(id))
	}
	sort.Strings(cpIDs)
	for _, id := range cpIDs {
		sum := res.PerCP[ClosingPrimerID(id)]
		p("cp\t%s\tuniq=%d\treads=%d\tlibsize=%d\trawMean=%.3f\trawSD=%.3f\tdedupMean=%.3f\tdedupSD=%.3f\n",
			id, sum.Uniq, sum.MatchedReads, sum.LibrarySize,
			sum.RawMean, sum.RawSD, sum.DedupMean, sum.DedupSD)
	}
	for i := 1; i < len(res.BaseError); i++ {
		if res.BaseError[i] > 0 {
			p("baseError\t%d\t%g\n", i, res.BaseError[i])
		}
	}
	e.Set(out.Close(ctx))
}

func (ps *PipelineState) writeIntHistogram(ctx context.Context, path string, hist map[int]int, e *errors.Once) {
	out, w := outFile(ctx, path, e)
	if out == nil {
		return
	}
	defer closeOut(ctx, out, w, e)
	keys := make([]int, 0, len(hist))
	for k := range hist {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		w.WriteString(strconv.Itoa(k))
		w.WriteString(strconv.Itoa(hist[k]))
		e.Set(w.EndLine())
	}
}

func (ps *PipelineState) writeTagCounts(ctx context.Context, path string, existingOnly bool, e *errors.Once) {
	out, w := outFile(ctx, path, e)
	if out == nil {
		return
	}
	defer closeOut(ctx, out, w, e)
	for _, c := range ps.inv.Cycles() {
		codes := make([]string, 0, len(c.seqs))
		for code := range c.seqs {
			codes = append(codes, string(code))
		}
		sort.Strings(codes)
		for _, code := range codes {
			n := ps.TagCounts[TagCode(code)]
			if existingOnly && n == 0 {
				continue
			}
			w.WriteString(code)
			w.WriteString(strconv.Itoa(n))
			e.Set(w.EndLine())
		}
	}
}

func (ps *PipelineState) writeExpected(ctx context.Context, path string, e *errors.Once) {
	out, w := outFile(ctx, path, e)
	if out == nil {
		return
	}
	defer closeOut(ctx, out, w, e)
	for _, cp := range ps.primers.ClosingPrimers {
		for _, c := range ps.inv.Cycles() {
			codes := make([]string, 0, len(c.seqs))
			for code := range c.seqs {
				if ps.validity.Valid(cp.ID, code) {
					codes = append(codes, string(code))
				}
			}
			sort.Strings(codes)
			for _, code := range codes {
				w.WriteString(string(cp.ID))
				w.WriteString(strconv.Itoa(c.Number))
				w.WriteString(code)
				e.Set(w.EndLine())
			}
		}
	}
}

func (ps *PipelineState) writeUMIDump(ctx context.Context, path string, res *Result, e *errors.Once) {
	out, w := outFile(ctx, path, e)
	if out == nil {
		return
	}
	defer closeOut(ctx, out, w, e)
	umis := make([]string, 0, len(res.UMIDump))
	for u := range res.UMIDump {
		umis = append(umis, u)
	}
	sort.Strings(umis)
	for _, u := range umis {
		w.WriteString(u)
		w.WriteString(strconv.Itoa(res.UMIDump[u]))
		e.Set(w.EndLine())
	}
}
