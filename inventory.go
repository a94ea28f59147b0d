package del

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// TagCode identifies a tag: "<libraryPrefix><cycleNumber>.<index>", for
// example "DEL1.001". Within a cycle a given sequence maps to at most one
// TagCode.
type TagCode string

// ClosingPrimerID identifies a closing primer: any explicit label plus the
// non-degenerate prefix of its sequence, or the empty string when the primer
// has no degenerate run and no label.
type ClosingPrimerID string

// TagFileSpec names a tag-table file and, optionally, the library columns to
// honor. An empty Libraries list honors all columns.
type TagFileSpec struct {
	Path      string
	Libraries []string
}

// ParseTagFileSpec parses "path" or "path:libA:libB" (the config file uses
// ';' in place of ':').
func ParseTagFileSpec(s, sep string) TagFileSpec {
	parts := strings.Split(s, sep)
	spec := TagFileSpec{Path: parts[0]}
	for _, lib := range parts[1:] {
		if lib != "" {
			spec.Libraries = append(spec.Libraries, lib)
		}
	}
	return spec
}

// cycleCodeRE extracts the cycle number from a tag code.
var cycleCodeRE = regexp.MustCompile(`^(?:\S*?)(\d+)[.\-]\d+`)

// CycleOf parses the cycle number out of a tag code. The second return is
// false when the code does not carry one.
func CycleOf(code TagCode) (int, bool) {
	m := cycleCodeRE.FindStringSubmatch(string(code))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Cycle holds the accepted tags of one synthesis cycle. All tags in a cycle
// share one length.
type Cycle struct {
	Number int
	Length int
	// bySeq maps a tag sequence to its code. The first code registered for a
	// sequence wins; later ones are recorded as duplicates.
	bySeq map[string]TagCode
	// seqs maps back from code to sequence.
	seqs map[TagCode]string
}

// Lookup returns the code registered for seq.
func (c *Cycle) Lookup(seq string) (TagCode, bool) {
	code, ok := c.bySeq[seq]
	return code, ok
}

// Seq returns the sequence registered for code.
func (c *Cycle) Seq(code TagCode) string { return c.seqs[code] }

// Size returns the number of distinct tags in the cycle.
func (c *Cycle) Size() int { return len(c.bySeq) }

// Inventory is the read-only tag database built at startup: per-cycle tag
// tables, library memberships, and closing-primer membership rows.
type Inventory struct {
	cycles   []*Cycle       // ordered by cycle number
	byNumber map[int]*Cycle

	// libNames are the library column names from the #ID header, in column
	// order. Empty when no header was seen.
	libNames []string
	// tagLibs maps a tag code to the set of libraries that contain it.
	tagLibs map[TagCode]map[string]bool
	// cpLibs maps a closing-primer sequence (from CPL rows) to the set of
	// libraries using it.
	cpLibs map[string]map[string]bool

	// Duplicates counts tag rows whose sequence was already registered in
	// their cycle.
	Duplicates int
}

// HasMemberships reports whether any tag table declared library columns.
func (inv *Inventory) HasMemberships() bool { return len(inv.libNames) > 0 }

// Cycles returns the cycles in ascending cycle-number order.
func (inv *Inventory) Cycles() []*Cycle { return inv.cycles }

// NumCycles returns the number of cycles.
func (inv *Inventory) NumCycles() int { return len(inv.cycles) }

// Cycle returns the cycle with the given number, or nil.
func (inv *Inventory) Cycle(number int) *Cycle { return inv.byNumber[number] }

// TagStringLength returns the sum of per-cycle tag lengths plus the overhang
// lengths: the expected length L of a tag-string.
func (inv *Inventory) TagStringLength(overhangs []string) int {
	n := 0
	for _, c := range inv.cycles {
		n += c.Length
	}
	for _, o := range overhangs {
		n += len(o)
	}
	return n
}

// KnowsClosingPrimer reports whether a CPL row registered the sequence.
func (inv *Inventory) KnowsClosingPrimer(cpSeq string) bool {
	_, ok := inv.cpLibs[cpSeq]
	return ok
}

// LoadInventory reads the given tag tables and builds the inventory.
// Each file holds tab-separated lines of three kinds:
//
//	#ID <TAB> SEQUENCE <TAB> libName...   header naming membership columns
//	CPL <TAB> cpSeq <TAB> m...            closing-primer membership row
//	tagCode <TAB> tagSeq <TAB> m...       tag row
//
// Nonzero membership column i assigns the row to library i. Under
// opts.ReverseCycles, tags from even cycles are reverse-complemented before
// storage.
func LoadInventory(ctx context.Context, specs []TagFileSpec, opts Opts) (*Inventory, error) {
	inv := &Inventory{
		byNumber: map[int]*Cycle{},
		tagLibs:  map[TagCode]map[string]bool{},
		cpLibs:   map[string]map[string]bool{},
	}
	for _, spec := range specs {
		if err := inv.loadFile(ctx, spec, opts); err != nil {
			return nil, err
		}
	}
	sort.Slice(inv.cycles, func(i, j int) bool { return inv.cycles[i].Number < inv.cycles[j].Number })
	for _, c := range inv.cycles {
		log.Debug.Printf("cycle %d: %d tags, length %d", c.Number, c.Size(), c.Length)
	}
	return inv, nil
}

func (inv *Inventory) loadFile(ctx context.Context, spec TagFileSpec, opts Opts) error {
	in, err := file.Open(ctx, spec.Path)
	if err != nil {
		return err
	}
	defer in.Close(ctx) // nolint: errcheck

	honored := map[string]bool{}
	for _, lib := range spec.Libraries {
		honored[lib] = true
	}

	var header []string // library column names of the current file
	sc := bufio.NewScanner(in.Reader(ctx))
	nLine := 0
	for sc.Scan() {
		nLine++
		line := strings.TrimRight(sc.Text(), "\r\n")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		switch {
		case strings.HasPrefix(fields[0], "#"):
			if len(fields) < 2 {
				return errors.E(fmt.Sprintf("%s:%d: malformed header line %q", spec.Path, nLine, line))
			}
			header = fields[2:]
			for _, lib := range header {
				if len(honored) > 0 && !honored[lib] {
					continue
				}
				if !contains(inv.libNames, lib) {
					inv.libNames = append(inv.libNames, lib)
				}
			}
		case fields[0] == "CPL":
			if len(fields) < 2 {
				return errors.E(fmt.Sprintf("%s:%d: malformed CPL line %q", spec.Path, nLine, line))
			}
			cpSeq := strings.ToUpper(fields[1])
			libs := inv.cpLibs[cpSeq]
			if libs == nil {
				libs = map[string]bool{}
				inv.cpLibs[cpSeq] = libs
			}
			for _, lib := range memberLibs(header, fields[2:], honored) {
				libs[lib] = true
			}
		default:
			if err := inv.addTagRow(spec.Path, nLine, line, fields, header, honored, opts); err != nil {
				return err
			}
		}
	}
	return sc.Err()
}

func (inv *Inventory) addTagRow(path string, nLine int, line string, fields, header []string, honored map[string]bool, opts Opts) error {
	if len(fields) < 2 {
		return errors.E(fmt.Sprintf("%s:%d: malformed tag line %q", path, nLine, line))
	}
	code := TagCode(fields[0])
	seq := strings.ToUpper(fields[1])
	cycleNum, ok := CycleOf(code)
	if !ok {
		return errors.E(fmt.Sprintf("%s:%d: tag code %q carries no cycle number: %q", path, nLine, code, line))
	}
	if !isDNA(seq) {
		return errors.E(fmt.Sprintf("%s:%d: tag sequence %q is not plain DNA: %q", path, nLine, seq, line))
	}
	if opts.ReverseCycles && cycleNum%2 == 0 {
		seq = reverseComplement(seq)
	}

	c := inv.byNumber[cycleNum]
	if c == nil {
		c = &Cycle{
			Number: cycleNum,
			Length: len(seq),
			bySeq:  map[string]TagCode{},
			seqs:   map[TagCode]string{},
		}
		inv.byNumber[cycleNum] = c
		inv.cycles = append(inv.cycles, c)
	}
	if len(seq) != c.Length {
		return errors.E(fmt.Sprintf("%s:%d: tag %s has length %d, cycle %d tags have length %d: %q",
			path, nLine, code, len(seq), cycleNum, c.Length, line))
	}
	if _, dup := c.bySeq[seq]; dup {
		inv.Duplicates++
	} else {
		c.bySeq[seq] = code
		c.seqs[code] = seq
	}

	libs := inv.tagLibs[code]
	if libs == nil {
		libs = map[string]bool{}
		inv.tagLibs[code] = libs
	}
	for _, lib := range memberLibs(header, fields[2:], honored) {
		libs[lib] = true
	}
	return nil
}

// memberLibs returns the library names whose membership column is nonzero,
// restricted to the honored set when one was given.
func memberLibs(header, cols []string, honored map[string]bool) []string {
	var libs []string
	for i, col := range cols {
		if i >= len(header) {
			break
		}
		if col == "" || col == "0" {
			continue
		}
		if len(honored) > 0 && !honored[header[i]] {
			continue
		}
		libs = append(libs, header[i])
	}
	return libs
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
