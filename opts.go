package del

// Opts collects the knobs of the tag-counting pipeline.
type Opts struct {
	// AnchorSize is the number of primer bases used to locate the tag region:
	// the last AnchorSize bases of the head piece on the 5' side and the first
	// AnchorSize bases of the closing primer on the 3' side.
	AnchorSize int
	// MinBaseQuality rejects reads whose tag region contains a base at or
	// below this phred-33 threshold. Zero disables the gate.
	MinBaseQuality int
	// LeftAnchored accepts reads that located a 5' anchor but no 3' anchor,
	// taking the whole anchored suffix as the tag-string.
	LeftAnchored bool
	// Similar enables approximate matching: one indel per tag-string or one
	// substitution per cycle.
	Similar bool
	// SimilarStrict restricts approximate matching to one error per
	// tag-string: substitution search is skipped on candidates that already
	// carry an indel correction. Implies Similar.
	SimilarStrict bool
	// ReverseCycles reverse-complements tag sequences from even cycles while
	// loading the inventory.
	ReverseCycles bool
	// NoUMI disables degenerate-region handling entirely.
	NoUMI bool
	// NoOverRep disables the over-representation analysis.
	NoOverRep bool
	// NoDedup disables the error-aware UMI cleanup; dedup counts equal the
	// number of distinct UMIs.
	NoDedup bool
	// ExpectedOnly excludes unexpected compounds from the main output.
	ExpectedOnly bool
	// Recovery re-enters the classifier on the residual sequence after a
	// located tag region, catching concatemer reads.
	Recovery bool
	// MaxReads stops the stream after this many reads. Zero means no limit.
	MaxReads int
	// Shards is the number of shard workers the driver fans out to.
	Shards int

	// MaxDegenErrors bounds the per-UMI error count considered by the dedup
	// sweep.
	MaxDegenErrors int
	// MaxDedupSetSize bounds the dedup sweep; compounds with more UMI
	// observations keep their unique count.
	MaxDedupSetSize int
	// SortLimit bounds the output sort; larger outputs are emitted unsorted.
	SortLimit int
	// MinSeqLength is the smallest residual sequence the recovery loop will
	// re-enter the classifier with.
	MinSeqLength int

	// Diagnostic companion outputs.
	DumpInvalid   bool   // -I: unclassifiable reads
	DumpChimeras  bool   // -X: chimeric reads
	DumpLengths   bool   // -L: tag-string length histogram
	DumpErrors    bool   // -E: corrected-error position histogram
	DumpTagCounts bool   // -c: per-tag match counts
	DumpExisting  bool   // -e: tags observed at least once
	DumpExpected  bool   // -w: expected tag grid per closing primer
	RecoveryLog   bool   // -R: recovery-pass log
	DumpUMIFor    string // -d: UMI distribution for one tag combination
}

// DefaultOpts sets the default values of Opts.
var DefaultOpts = Opts{
	AnchorSize:      7,     // -a
	MinBaseQuality:  0,     // -q
	LeftAnchored:    false, // -l
	Similar:         false, // -s
	SimilarStrict:   false, // -S
	ReverseCycles:   false, // -i
	NoUMI:           false, // -N
	NoOverRep:       false, // -O
	NoDedup:         false, // -D
	ExpectedOnly:    false, // -W
	Recovery:        false, // -r
	Shards:          1,     // -x
	MaxDegenErrors:  3,
	MaxDedupSetSize: 10000,
	SortLimit:       100000,
	MinSeqLength:    10,
}
