package del

import (
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/bio/biosimd"
)

// reverseComplement computes a reverse complement of the given DNA string.
func reverseComplement(seq string) string {
	buf := make([]byte, len(seq))
	biosimd.ReverseComp8NoValidate(buf, gunsafe.StringToBytes(seq))
	return gunsafe.BytesToString(buf)
}

// dnaBases are the candidate bases used when expanding indel variants of a
// tag-string.
var dnaBases = [4]byte{'A', 'C', 'G', 'T'}

// acgtIndex maps A, C, G, T to {0,1,2,3}. It maps other letters to 4.
var acgtIndex [256]uint8

func init() {
	for i := range acgtIndex {
		acgtIndex[i] = 4
	}
	acgtIndex['a'] = 0
	acgtIndex['A'] = 0
	acgtIndex['c'] = 1
	acgtIndex['C'] = 1
	acgtIndex['g'] = 2
	acgtIndex['G'] = 2
	acgtIndex['t'] = 3
	acgtIndex['T'] = 3
}

// isDNA reports whether seq consists only of ACGT bases.
func isDNA(seq string) bool {
	for i := 0; i < len(seq); i++ {
		if acgtIndex[seq[i]] > 3 {
			return false
		}
	}
	return true
}
