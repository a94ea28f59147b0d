package main

/*
bio-del counts DNA-encoded-library compounds in sequencing reads. Each read
is expected to carry a concatenation of per-cycle tags between a head piece
and a closing primer; bio-del locates the tag region, resolves the tags
against per-cycle inventories, collapses PCR duplicates through the
degenerate window of the closing primer, and reports per-compound counts
with over-representation statistics.

Example:

   bio-del -f reads.fastq.gz -t tags.tsv -h CAGGTCAG -p CCAGCANNNNNNCC -s
*/

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/del"
	"github.com/grailbio/del/encoding/fastq"
)

var (
	fastqPath   = flag.String("f", "", "Input FASTQ file, plain or gzipped (required)")
	tagFiles    = flag.String("t", "", "Comma-separated tag-table files; an optional :libA:libB suffix restricts the library columns honored")
	headPieces  = flag.String("h", "", "Comma-separated head-piece sequences")
	overhangs   = flag.String("o", "", "Comma-separated overhang sequences between consecutive cycles")
	primers     = flag.String("p", "", "Comma-separated closing primers; an optional <label>- prefix names the primer")
	anchorSize  = flag.Int("a", del.DefaultOpts.AnchorSize, "Anchor size used to locate the tag region")
	minQual     = flag.Int("q", del.DefaultOpts.MinBaseQuality, "Minimum base quality inside the tag region (phred-33); 0 disables the gate")
	leftAnch    = flag.Bool("l", false, "Accept reads anchored only on the 5' side")
	similar     = flag.Bool("s", false, "Enable similar search: one error per cycle")
	strict      = flag.Bool("S", false, "Enable strict similar search: one error per tag-string (implies -s)")
	revCycles   = flag.Bool("i", false, "Reverse-complement tags from even cycles while loading the inventory")
	noUMI       = flag.Bool("N", false, "Disable degenerate-region (UMI) handling")
	noOverRep   = flag.Bool("O", false, "Disable the over-representation analysis")
	noDedup     = flag.Bool("D", false, "Disable the error-aware UMI cleanup")
	validPats   = flag.String("v", "", "Valid tag patterns: cp1;cp2;...;regex, comma-separated")
	invalidPats = flag.String("V", "", "Invalid tag patterns: cp1;cp2;...;regex, comma-separated")
	expectOnly  = flag.Bool("W", false, "Exclude unexpected compounds from the output")
	dumpUMI     = flag.String("d", "", "Dump the UMI distribution of one tag combination (tag1+tag2+...)")
	recovery    = flag.Bool("r", false, "Recovery mode: rescan the residual sequence after each located tag region")
	recoveryLog = flag.Bool("R", false, "Write the recovery-pass log")
	maxReads    = flag.Int("T", 0, "Stop after this many reads; 0 reads everything")
	shards      = flag.Int("x", 1, "Shard the input into this many workers")
	dumpInvalid = flag.Bool("I", false, "Write unclassifiable reads")
	dumpChim    = flag.Bool("X", false, "Write chimeric reads")
	dumpLens    = flag.Bool("L", false, "Write the tag-string length histogram")
	dumpErrs    = flag.Bool("E", false, "Write the corrected-error position histogram")
	dumpCounts  = flag.Bool("c", false, "Write per-tag match counts")
	dumpExist   = flag.Bool("e", false, "Write tags observed at least once")
	dumpExpect  = flag.Bool("w", false, "Write the expected tag grid per closing primer")
	configPath  = flag.String("config", "", "Run-configuration file; the first record matching -f fills unset flags")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s -f reads.fastq -t tags.tsv -h HEADPIECE -p CLOSINGPRIMER [flags]\n", os.Args[0])
	flag.PrintDefaults()
}

// outPrefix derives the output name from the input FASTQ name.
func outPrefix(path string) string {
	base := filepath.Base(path)
	for _, ext := range []string{".gz", ".fastq", ".fq"} {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

func applyConfig(ctx context.Context) {
	if *configPath == "" {
		return
	}
	cfg, ok, err := del.LoadConfig(ctx, *configPath, *fastqPath)
	if err != nil {
		log.Fatalf("config %s: %v", *configPath, err)
	}
	if !ok {
		return
	}
	log.Printf("Config record %q matched %s", cfg.FastqGlob, *fastqPath)
	if *tagFiles == "" {
		*tagFiles = strings.ReplaceAll(cfg.TagFiles, ";", ":")
	}
	if *headPieces == "" {
		*headPieces = cfg.HeadPieces
	}
	if *overhangs == "" {
		*overhangs = cfg.Overhangs
	}
	if *primers == "" {
		*primers = cfg.ClosingPrimers
	}
	if *validPats == "" {
		*validPats = cfg.ValidTags
	}
	if *invalidPats == "" {
		*invalidPats = cfg.InvalidTags
	}
	if cfg.ReverseCycles {
		*revCycles = true
	}
}

func buildState(ctx context.Context, opts del.Opts) *del.PipelineState {
	var specs []del.TagFileSpec
	for _, part := range strings.Split(*tagFiles, ",") {
		if part != "" {
			specs = append(specs, del.ParseTagFileSpec(part, ":"))
		}
	}
	if len(specs) == 0 {
		log.Fatalf("no tag files; pass -t")
	}
	inv, err := del.LoadInventory(ctx, specs, opts)
	if err != nil {
		log.Fatalf("load tags: %v", err)
	}

	cps, err := del.ParseClosingPrimers(*primers)
	if err != nil {
		log.Fatalf("closing primers: %v", err)
	}
	if inv.HasMemberships() {
		for _, cp := range cps {
			if !inv.KnowsClosingPrimer(cp.Seq) {
				log.Fatalf("closing primer %s not present in the tag table memberships", cp.Seq)
			}
		}
	}

	var hps, ovs []string
	for _, hp := range strings.Split(*headPieces, ",") {
		if hp != "" {
			hps = append(hps, hp)
		}
	}
	if *overhangs != "" {
		ovs = strings.Split(*overhangs, ",")
	}
	compiled, err := del.CompilePrimers(hps, cps, ovs, inv, opts)
	if err != nil {
		log.Fatalf("compile primers: %v", err)
	}

	validRules, err := del.ParseValidityRules(*validPats)
	if err != nil {
		log.Fatalf("-v: %v", err)
	}
	invalidRules, err := del.ParseValidityRules(*invalidPats)
	if err != nil {
		log.Fatalf("-V: %v", err)
	}
	validity := del.BuildValidity(inv, cps, validRules, invalidRules)
	restricted := len(validRules)+len(invalidRules) > 0
	return del.NewPipelineState(compiled, inv, validity, restricted, opts)
}

// openDiag creates a companion output and registers its cleanup.
func openDiag(path string, cleanups *[]func()) *os.File {
	out, err := os.Create(path)
	if err != nil {
		log.Fatalf("create %s: %v", path, err)
	}
	*cleanups = append(*cleanups, func() {
		if err := out.Close(); err != nil {
			log.Error.Printf("close %s: %v", path, err)
		}
	})
	return out
}

func runSingle(ctx context.Context, ps *del.PipelineState, prefix string, opts del.Opts) {
	r, closeIn, err := fastq.Open(ctx, *fastqPath)
	if err != nil {
		log.Fatalf("open %s: %v", *fastqPath, err)
	}
	diag := &del.Diagnostics{}
	var cleanups []func()
	if opts.DumpInvalid {
		diag.Invalid = openDiag("tags_"+prefix+".invalid", &cleanups)
	}
	if opts.DumpChimeras {
		diag.Chimeras = openDiag("tags_"+prefix+".chimeras", &cleanups)
	}
	if opts.RecoveryLog {
		diag.Recovery = openDiag("tags_"+prefix+".recovery", &cleanups)
	}
	if err := del.RunStream(ps, r, diag); err != nil {
		log.Fatalf("process %s: %v", *fastqPath, err)
	}
	if err := closeIn(); err != nil {
		log.Fatalf("close %s: %v", *fastqPath, err)
	}
	for _, fn := range cleanups {
		fn()
	}
}

func runSharded(ctx context.Context, prefix string, opts del.Opts) *del.PipelineState {
	n := opts.Shards
	shardFastq := make([]string, n)
	artifacts := make([]string, n)
	suffix := ".fastq"
	if strings.HasSuffix(*fastqPath, ".gz") {
		suffix = ".fastq.gz"
	}
	for i := range shardFastq {
		shardFastq[i] = fmt.Sprintf("shard_%s_%d%s", prefix, i, suffix)
		artifacts[i] = fmt.Sprintf("shard_%s_%d.allTags", prefix, i)
	}
	nReads, err := fastq.Split(ctx, *fastqPath, shardFastq)
	if err != nil {
		log.Fatalf("split %s: %v", *fastqPath, err)
	}
	log.Printf("Split %d reads into %d shards", nReads, n)

	workerOpts := opts
	if opts.MaxReads > 0 {
		workerOpts.MaxReads = (opts.MaxReads + n - 1) / n
	}
	err = traverse.Each(n, func(i int) error {
		ps := buildState(ctx, workerOpts)
		r, closeIn, err := fastq.Open(ctx, shardFastq[i])
		if err != nil {
			return err
		}
		if err := del.RunStream(ps, r, nil); err != nil {
			return err
		}
		if err := closeIn(); err != nil {
			return err
		}
		if err := ps.WriteShardArtifact(ctx, artifacts[i]); err != nil {
			return err
		}
		return del.WriteShardLog(ctx, fmt.Sprintf("shard_%s_%d.log", prefix, i), ps.Stats)
	})
	if err != nil {
		log.Fatalf("shard workers: %v", err)
	}

	reduced := buildState(ctx, opts)
	if err := reduced.Reduce(ctx, artifacts); err != nil {
		log.Fatalf("reduce: %v", err)
	}
	for _, path := range shardFastq {
		if err := file.Remove(ctx, path); err != nil {
			log.Error.Printf("remove %s: %v", path, err)
		}
	}
	return reduced
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()
	ctx := vcontext.Background()

	if *fastqPath == "" {
		usage()
		log.Fatalf("missing required -f")
	}
	applyConfig(ctx)
	if *headPieces == "" || *primers == "" {
		log.Fatalf("missing head pieces (-h) or closing primers (-p)")
	}
	if *strict {
		*similar = true
	}

	opts := del.DefaultOpts
	opts.AnchorSize = *anchorSize
	opts.MinBaseQuality = *minQual
	opts.LeftAnchored = *leftAnch
	opts.Similar = *similar
	opts.SimilarStrict = *strict
	opts.ReverseCycles = *revCycles
	opts.NoUMI = *noUMI
	opts.NoOverRep = *noOverRep
	opts.NoDedup = *noDedup
	opts.ExpectedOnly = *expectOnly
	opts.Recovery = *recovery
	opts.MaxReads = *maxReads
	opts.Shards = *shards
	opts.DumpInvalid = *dumpInvalid
	opts.DumpChimeras = *dumpChim
	opts.DumpLengths = *dumpLens
	opts.DumpErrors = *dumpErrs
	opts.DumpTagCounts = *dumpCounts
	opts.DumpExisting = *dumpExist
	opts.DumpExpected = *dumpExpect
	opts.RecoveryLog = *recoveryLog
	opts.DumpUMIFor = *dumpUMI

	prefix := outPrefix(*fastqPath)
	var ps *del.PipelineState
	if opts.Shards > 1 {
		ps = runSharded(ctx, prefix, opts)
	} else {
		ps = buildState(ctx, opts)
		runSingle(ctx, ps, prefix, opts)
	}

	log.Printf("Stats: %+v", ps.Stats)
	res := ps.Finalize()
	if err := ps.WriteOutputs(ctx, prefix, res); err != nil {
		log.Fatalf("write outputs: %v", err)
	}
	log.Printf("All done")
}
