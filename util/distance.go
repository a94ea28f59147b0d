package util

// Levenshtein computes the Levenshtein distance between a and b: the number
// of insertions, deletions, and substitutions it takes to transform one
// string into the other. The working state is a two-row buffer indexed by
// integers, reused as the rows advance.
func Levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			v := prev[j-1] + cost
			if d := prev[j] + 1; d < v {
				v = d
			}
			if d := cur[j-1] + 1; d < v {
				v = d
			}
			cur[j] = v
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// MinSeqLD returns the minimum Levenshtein distance between a and b over
// end-extensions of b by up to maxIndel bases. Because a fixed number of
// bases is always sequenced, an indel inside b shifts every downstream base;
// padding b on the right with the corresponding slice of a, or dropping
// bases from its left, recovers the alignment a plain distance would
// overcount.
func MinSeqLD(a, b string, maxIndel int) int {
	min := Levenshtein(a, b)
	for n := 1; n <= maxIndel; n++ {
		if len(a) >= n {
			if d := Levenshtein(a, b+a[len(a)-n:]); d < min {
				min = d
			}
		}
		if len(b) >= n {
			if d := Levenshtein(a, b[n:]); d < min {
				min = d
			}
		}
	}
	return min
}
