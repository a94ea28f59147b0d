package del

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/grailbio/base/errors"
)

// ValidityRule scopes a tag-code pattern to a set of closing primers. An
// empty CPs list applies the rule to every closing primer.
type ValidityRule struct {
	CPs   []string
	Regex *regexp.Regexp
}

// ParseValidityRule parses "<cp1>;<cp2>;...;<regex>": the last field is a
// regular expression matched against tag codes, the leading fields scope the
// rule to those closing primers.
func ParseValidityRule(s string) (ValidityRule, error) {
	fields := strings.Split(s, ";")
	pat := fields[len(fields)-1]
	re, err := regexp.Compile(pat)
	if err != nil {
		return ValidityRule{}, errors.E(err, fmt.Sprintf("validity pattern %q", s))
	}
	rule := ValidityRule{Regex: re}
	for _, cp := range fields[:len(fields)-1] {
		if cp != "" {
			rule.CPs = append(rule.CPs, cp)
		}
	}
	return rule, nil
}

// ParseValidityRules parses a comma-separated list of rules.
func ParseValidityRules(s string) ([]ValidityRule, error) {
	if s == "" {
		return nil, nil
	}
	var rules []ValidityRule
	for _, part := range strings.Split(s, ",") {
		rule, err := ParseValidityRule(part)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// appliesTo reports whether the rule covers the given closing primer. Scope
// fields match the primer's ID, its full sequence, or its label.
func (r ValidityRule) appliesTo(cp *ClosingPrimer) bool {
	if len(r.CPs) == 0 {
		return true
	}
	for _, s := range r.CPs {
		if s == string(cp.ID) || s == cp.Seq || s == cp.Label {
			return true
		}
	}
	return false
}

// Validity holds, per closing primer, the set of expected tag codes and the
// per-cycle cardinalities backing library-size normalization.
type Validity struct {
	valid       map[ClosingPrimerID]map[TagCode]bool
	perCycle    map[ClosingPrimerID]map[int]int
	librarySize map[ClosingPrimerID]int
}

// Valid reports whether code is expected for the given closing primer.
func (v *Validity) Valid(cpID ClosingPrimerID, code TagCode) bool {
	return v.valid[cpID][code]
}

// ValidCount returns the number of expected codes at a cycle.
func (v *Validity) ValidCount(cpID ClosingPrimerID, cycle int) int {
	return v.perCycle[cpID][cycle]
}

// LibrarySize returns the product over cycles of the number of expected tags
// at that cycle: the nominal compound count of the library behind cpID.
func (v *Validity) LibrarySize(cpID ClosingPrimerID) int {
	return v.librarySize[cpID]
}

// BuildValidity combines the inventory memberships with the command-line
// valid/invalid rules. Valid rules are applied first (additive), invalid
// rules second (subtractive). Without membership columns, every tag is
// expected everywhere.
func BuildValidity(inv *Inventory, cps []*ClosingPrimer, validRules, invalidRules []ValidityRule) *Validity {
	v := &Validity{
		valid:       map[ClosingPrimerID]map[TagCode]bool{},
		perCycle:    map[ClosingPrimerID]map[int]int{},
		librarySize: map[ClosingPrimerID]int{},
	}
	for _, cp := range cps {
		set := map[TagCode]bool{}
		if inv.HasMemberships() {
			cpLibs := inv.cpLibs[cp.Seq]
			for code, libs := range inv.tagLibs {
				for lib := range libs {
					if cpLibs[lib] {
						set[code] = true
						break
					}
				}
			}
		} else {
			for _, c := range inv.cycles {
				for _, code := range c.bySeq {
					set[code] = true
				}
			}
		}
		for _, rule := range validRules {
			if !rule.appliesTo(cp) {
				continue
			}
			for _, c := range inv.cycles {
				for _, code := range c.bySeq {
					if rule.Regex.MatchString(string(code)) {
						set[code] = true
					}
				}
			}
		}
		for _, rule := range invalidRules {
			if !rule.appliesTo(cp) {
				continue
			}
			for code := range set {
				if rule.Regex.MatchString(string(code)) {
					delete(set, code)
				}
			}
		}
		v.valid[cp.ID] = set

		perCycle := map[int]int{}
		size := 1
		for _, c := range inv.cycles {
			n := 0
			for _, code := range c.bySeq {
				if set[code] {
					n++
				}
			}
			perCycle[c.Number] = n
			size *= n
		}
		v.perCycle[cp.ID] = perCycle
		v.librarySize[cp.ID] = size
	}
	return v
}
