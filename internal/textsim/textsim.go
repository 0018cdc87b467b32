// Package textsim implements the deterministic, model-free text comparison
// primitives used by the verification pipeline and MMR reranker: tokenization
// and Jaccard similarity over token sets.
package textsim

import "strings"

// Tokenize lowercases s, splits on ASCII whitespace, and deduplicates into a
// set. Unicode word bytes within a token are preserved untouched.
func Tokenize(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Jaccard computes |A ∩ B| / |A ∪ B| over the token sets of a and b,
// defined as 0 when either input is empty.
func Jaccard(a, b string) float64 {
	return JaccardTokenized(Tokenize(a), Tokenize(b))
}

// JaccardTokenized is the precomputed-sets variant used on hot paths where
// one side (typically an existing entry) has already been tokenized once
// and reused across many comparisons.
func JaccardTokenized(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(large) < len(small) {
		small, large = large, small
	}
	intersection := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
