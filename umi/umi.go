// Package umi extracts degenerate-region (UMI) substrings from reads and
// collapses near-duplicate UMIs using a base-error rate calibrated from the
// static closing-primer sequence observed in the same stream.
package umi

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/grailbio/del/util"
)

// Multiset is a count-keyed UMI multiset. Storing counts instead of
// concatenated strings keeps memory linear in the number of distinct UMIs.
type Multiset map[string]int

// Add records one observation of u.
func (m Multiset) Add(u string) { m[u]++ }

// AddN records n observations of u.
func (m Multiset) AddN(u string, n int) { m[u] += n }

// Size returns the total number of observations.
func (m Multiset) Size() int {
	n := 0
	for _, c := range m {
		n += c
	}
	return n
}

// Merge folds o into m.
func (m Multiset) Merge(o Multiset) {
	for u, c := range o {
		m[u] += c
	}
}

// Extractor captures the degenerate window trailing a static prefix.
type Extractor struct {
	staticPrefix string
	degenLen     int
	re           *regexp.Regexp
}

// NewExtractor compiles the pattern <staticPrefix>N{degenLen} once; Extract
// reuses it for every read.
func NewExtractor(staticPrefix string, degenLen int) *Extractor {
	return &Extractor{
		staticPrefix: staticPrefix,
		degenLen:     degenLen,
		re:           regexp.MustCompile(regexp.QuoteMeta(staticPrefix) + fmt.Sprintf("([ACGTN]{%d})", degenLen)),
	}
}

// Extract applies the compiled pattern to the region and returns the
// captured UMI.
func (e *Extractor) Extract(region string) (string, bool) {
	m := e.re.FindStringSubmatch(region)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// StaticPrefix returns the static sequence ahead of the degenerate window.
func (e *Extractor) StaticPrefix() string { return e.staticPrefix }

// Calibration accumulates, per static sequence, the windows observed where
// that sequence should appear. The per-base error rate at edit distance e is
// derived from how often the observed window sits at distance e.
type Calibration struct {
	counts map[string]map[string]int // staticSeq -> observed window -> count
}

// NewCalibration returns an empty calibration.
func NewCalibration() *Calibration {
	return &Calibration{counts: map[string]map[string]int{}}
}

// Observe records one window seen where staticSeq was expected.
func (c *Calibration) Observe(staticSeq, window string) {
	m := c.counts[staticSeq]
	if m == nil {
		m = map[string]int{}
		c.counts[staticSeq] = m
	}
	m[window]++
}

// ObserveN records n identical observations.
func (c *Calibration) ObserveN(staticSeq, window string, n int) {
	m := c.counts[staticSeq]
	if m == nil {
		m = map[string]int{}
		c.counts[staticSeq] = m
	}
	m[window] += n
}

// Merge folds o into c.
func (c *Calibration) Merge(o *Calibration) {
	for staticSeq, windows := range o.counts {
		for w, n := range windows {
			c.ObserveN(staticSeq, w, n)
		}
	}
}

// Each visits every (staticSeq, window, count) triple.
func (c *Calibration) Each(fn func(staticSeq, window string, count int)) {
	for staticSeq, windows := range c.counts {
		for w, n := range windows {
			fn(staticSeq, w, n)
		}
	}
}

// BaseError computes the per-base error probability for each edit distance
// e in [1, maxErrors]:
//
//	baseError[e] = (observations at distance e) / (total observations × |staticSeq|)
//
// taking the maximum across static sequences when several exist. Entries
// with no observations stay zero.
func (c *Calibration) BaseError(maxErrors int) []float64 {
	rates := make([]float64, maxErrors+1)
	for staticSeq, windows := range c.counts {
		total := 0
		atDist := make([]int, maxErrors+1)
		for w, n := range windows {
			total += n
			e := util.Levenshtein(staticSeq, w)
			if e >= 1 && e <= maxErrors {
				atDist[e] += n
			}
		}
		if total == 0 {
			continue
		}
		denom := float64(total) * float64(len(staticSeq))
		for e := 1; e <= maxErrors; e++ {
			if r := float64(atDist[e]) / denom; r > rates[e] {
				rates[e] = r
			}
		}
	}
	return rates
}

// Dedup collapses plausibly erroneous UMIs and returns the deduplicated
// count. A low-count UMI v is removed when a higher-count u exists with
// count(v) below the error-expectation threshold count(u)×|u|×baseError[e]
// and the extended edit distance between them at most e. Multisets larger
// than maxSetSize are left alone: their unique count is returned unchanged.
func Dedup(m Multiset, baseError []float64, maxErrors, maxSetSize int) int {
	if m.Size() > maxSetSize {
		return len(m)
	}
	dedup := len(m)
	if dedup < 2 {
		return dedup
	}

	// Descending by count, ties broken lexicographically, so the sweep is
	// deterministic regardless of map order.
	desc := make([]string, 0, len(m))
	for u := range m {
		desc = append(desc, u)
	}
	sort.Slice(desc, func(i, j int) bool {
		if m[desc[i]] != m[desc[j]] {
			return m[desc[i]] > m[desc[j]]
		}
		return desc[i] < desc[j]
	})
	asc := make([]string, len(desc))
	for i, u := range desc {
		asc[len(asc)-1-i] = u
	}
	// The least-counted unique never absorbs others and the most-counted
	// unique is never removed.
	desc = desc[:len(desc)-1]
	asc = asc[:len(asc)-1]

	removed := map[string]bool{}
	for _, u := range desc {
		if removed[u] {
			continue
		}
		for e := 1; e < len(baseError) && e <= maxErrors; e++ {
			if baseError[e] == 0 {
				continue
			}
			threshold := float64(m[u]) * float64(len(u)) * baseError[e]
			for _, v := range asc {
				if removed[v] || v == u {
					continue
				}
				if float64(m[v]) < threshold && util.MinSeqLD(u, v, e) <= e {
					removed[v] = true
					dedup--
					continue
				}
				// asc is sorted ascending by count: nothing further can
				// fall below the threshold.
				break
			}
		}
	}
	return dedup
}
