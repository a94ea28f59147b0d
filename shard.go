package del

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// The shard artifact is line-oriented so the reducer can stream it: one line
// per compound,
//
//	tags,cpId,count,strandNet,umi1;umi2;...
//
// preceded by counter lines ("#stat,name,value"), calibration lines
// ("#calib,staticSeq,window,count"), and histogram lines
// ("#len,length,count" / "#errpos,pos,count" / "#tagcount,code,count").

// statFields pairs the serialized counter names with their fields.
func statFields(s *Stats) []struct {
	name string
	p    *int
} {
	return []struct {
		name string
		p    *int
	}{
		{"total", &s.Total},
		{"shorter", &s.Shorter},
		{"reduced", &s.Reduced},
		{"longer", &s.Longer},
		{"lowQual", &s.LowQual},
		{"invalid", &s.Invalid},
		{"opened", &s.Opened},
		{"openedOnly", &s.OpenedOnly},
		{"forward", &s.Forward},
		{"reverse", &s.Reverse},
		{"valid", &s.Valid},
		{"matched", &s.Matched},
		{"matchedRecovered", &s.MatchedRecovered},
		{"unfound", &s.Unfound},
		{"similar", &s.Similar},
		{"chimera", &s.Chimera},
		{"undedup", &s.Undedup},
		{"maxTagLength", &s.MaxTagLength},
	}
}

// WriteShardArtifact dumps the accumulated state of one shard worker.
func (ps *PipelineState) WriteShardArtifact(ctx context.Context, path string) (err error) {
	e := errors.Once{}
	defer func() { err = e.Err() }()
	out, err := file.Create(ctx, path)
	if err != nil {
		e.Set(err)
		return
	}
	defer func() { e.Set(out.Close(ctx)) }()
	w := bufio.NewWriter(out.Writer(ctx))
	defer func() { e.Set(w.Flush()) }()

	for _, f := range statFields(&ps.Stats) {
		fmt.Fprintf(w, "#stat,%s,%d\n", f.name, *f.p)
	}
	ps.Calibration.Each(func(staticSeq, window string, count int) {
		fmt.Fprintf(w, "#calib,%s,%s,%d\n", staticSeq, window, count)
	})
	for l, n := range ps.Lengths {
		fmt.Fprintf(w, "#len,%d,%d\n", l, n)
	}
	for p, n := range ps.ErrorPositions {
		fmt.Fprintf(w, "#errpos,%d,%d\n", p, n)
	}
	for code, n := range ps.TagCounts {
		fmt.Fprintf(w, "#tagcount,%s,%d\n", code, n)
	}

	for key, cs := range ps.Compounds {
		fmt.Fprintf(w, "%s,%s,%d,%d,", key.Tags, key.CP, cs.Raw, cs.StrandNet)
		first := true
		for u, n := range cs.UMIs {
			for i := 0; i < n; i++ {
				if !first {
					w.WriteByte(';') // nolint: errcheck
				}
				w.WriteString(u) // nolint: errcheck
				first = false
			}
		}
		w.WriteByte('\n') // nolint: errcheck
	}
	return
}

// WriteShardLog writes the human-readable per-shard counter summary.
func WriteShardLog(ctx context.Context, path string, stats Stats) (err error) {
	e := errors.Once{}
	defer func() { err = e.Err() }()
	out, err := file.Create(ctx, path)
	if err != nil {
		e.Set(err)
		return
	}
	defer func() { e.Set(out.Close(ctx)) }()
	w := out.Writer(ctx)
	for _, f := range statFields(&stats) {
		_, err := fmt.Fprintf(w, "%s\t%d\n", f.name, *f.p)
		e.Set(err)
	}
	return
}

// mergeArtifact folds one shard artifact into the state, streaming line by
// line.
func (ps *PipelineState) mergeArtifact(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1024*1024), 64*1024*1024)
	var shard Stats
	nLine := 0
	for sc.Scan() {
		nLine++
		line := sc.Text()
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if err := ps.mergeMetaLine(line, &shard); err != nil {
				return errors.E(err, fmt.Sprintf("line %d: %q", nLine, line))
			}
			continue
		}
		fields := strings.SplitN(line, ",", 5)
		if len(fields) != 5 {
			return errors.E(fmt.Sprintf("line %d: malformed compound line %q", nLine, line))
		}
		raw, err := strconv.Atoi(fields[2])
		if err != nil {
			return errors.E(err, fmt.Sprintf("line %d: %q", nLine, line))
		}
		net, err := strconv.Atoi(fields[3])
		if err != nil {
			return errors.E(err, fmt.Sprintf("line %d: %q", nLine, line))
		}
		key := CompoundKey{CP: ClosingPrimerID(fields[1]), Tags: fields[0]}
		cs := ps.Compounds[key]
		if cs == nil {
			cs = &CompoundStats{UMIs: map[string]int{}}
			ps.Compounds[key] = cs
		}
		cs.Raw += raw
		cs.StrandNet += net
		if fields[4] != "" {
			for _, u := range strings.Split(fields[4], ";") {
				cs.UMIs.Add(u)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	ps.Stats = ps.Stats.Merge(shard)
	return nil
}

func (ps *PipelineState) mergeMetaLine(line string, shard *Stats) error {
	fields := strings.Split(line, ",")
	switch fields[0] {
	case "#stat":
		if len(fields) != 3 {
			return errors.E("malformed stat line")
		}
		v, err := strconv.Atoi(fields[2])
		if err != nil {
			return err
		}
		for _, f := range statFields(shard) {
			if f.name == fields[1] {
				*f.p = v
				return nil
			}
		}
		return errors.E(fmt.Sprintf("unknown counter %q", fields[1]))
	case "#calib":
		if len(fields) != 4 {
			return errors.E("malformed calib line")
		}
		n, err := strconv.Atoi(fields[3])
		if err != nil {
			return err
		}
		ps.Calibration.ObserveN(fields[1], fields[2], n)
	case "#len", "#errpos":
		if len(fields) != 3 {
			return errors.E("malformed histogram line")
		}
		k, err := strconv.Atoi(fields[1])
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(fields[2])
		if err != nil {
			return err
		}
		if fields[0] == "#len" {
			ps.Lengths[k] += n
		} else {
			ps.ErrorPositions[k] += n
		}
	case "#tagcount":
		if len(fields) != 3 {
			return errors.E("malformed tagcount line")
		}
		n, err := strconv.Atoi(fields[2])
		if err != nil {
			return err
		}
		ps.TagCounts[TagCode(fields[1])] += n
	default:
		return errors.E(fmt.Sprintf("unknown meta line kind %q", fields[0]))
	}
	return nil
}

// Reduce merges the shard artifacts at the given paths into the state. The
// caller runs Finalize afterwards; dedup on the merged multisets equals
// dedup on the union of the shard multisets.
func (ps *PipelineState) Reduce(ctx context.Context, paths []string) error {
	for _, path := range paths {
		in, err := file.Open(ctx, path)
		if err != nil {
			return err
		}
		err = ps.mergeArtifact(in.Reader(ctx))
		if cerr := in.Close(ctx); err == nil {
			err = cerr
		}
		if err != nil {
			return errors.E(err, path)
		}
	}
	return nil
}
