package del

import (
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/del/encoding/fastq"
)

// Diagnostics holds the optional per-read companion outputs. Nil writers are
// skipped.
type Diagnostics struct {
	Invalid  io.Writer // unclassifiable reads
	Chimeras io.Writer // chimeric reads
	Recovery io.Writer // recovery-pass matches
}

// RunStream feeds a FASTQ stream through the pipeline state. It honors the
// read limit and logs progress the way long-running streams are expected to.
func RunStream(ps *PipelineState, r io.Reader, diag *Diagnostics) error {
	sc := fastq.NewScanner(r, fastq.ID|fastq.Seq|fastq.Qual)
	e := errors.Once{}
	var read fastq.Read
	for sc.Scan(&read) {
		matches, cat := ps.ProcessRead(read.Seq, read.Qual)
		if diag != nil {
			writeDiagnostics(diag, &read, matches, cat, &e)
		}
		if ps.Stats.Total%(1024*1024) == 0 {
			log.Printf("%d Mi reads, %d matched", ps.Stats.Total/(1024*1024), ps.Stats.Matched)
		}
		if ps.opts.MaxReads > 0 && ps.Stats.Total >= ps.opts.MaxReads {
			break
		}
	}
	e.Set(sc.Err())
	return e.Err()
}

func writeDiagnostics(diag *Diagnostics, read *fastq.Read, matches []Match, cat Category, e *errors.Once) {
	switch {
	case cat == CatInvalid && diag.Invalid != nil:
		_, err := fmt.Fprintf(diag.Invalid, "%s\t%s\n", read.ID, read.Seq)
		e.Set(err)
	case cat == CatChimera && diag.Chimeras != nil:
		_, err := fmt.Fprintf(diag.Chimeras, "%s\t%s\n", read.ID, read.Seq)
		e.Set(err)
	}
	if diag.Recovery != nil {
		for _, m := range matches {
			if !m.Recovered {
				continue
			}
			_, err := fmt.Fprintf(diag.Recovery, "%s\t%d\t%s\n", read.ID, m.TagPos, m.CP.ID)
			e.Set(err)
		}
	}
}
