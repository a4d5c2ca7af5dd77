package util

import (
	"fmt"
	"strings"
)

// maxSuggestDistance bounds how different a suggestion may be from the input.
const maxSuggestDistance = 3

// Suggest returns the candidate closest to input by case-insensitive edit
// distance, or "" when none is within a few edits. Ties go to the earlier
// candidate.
func Suggest(input string, candidates []string) string {
	in := strings.ToLower(strings.TrimSpace(input))
	bestDistance := maxSuggestDistance + 1
	var best string
	for _, c := range candidates {
		if d := levenshteinDistance(in, strings.ToLower(c)); d < bestDistance {
			bestDistance = d
			best = c
		}
	}
	return best
}

// UnknownError reports an unrecognised name of the given kind, with the
// closest candidate as a hint when there is one.
func UnknownError(kind, input string, candidates []string) error {
	if s := Suggest(input, candidates); s != "" {
		return fmt.Errorf("unknown %s %q, did you mean %q?", kind, input, s)
	}
	return fmt.Errorf("unknown %s %q", kind, input)
}

// levenshteinDistance is the minimum number of single-byte insertions,
// deletions or substitutions turning a into b.
func levenshteinDistance(a, b string) int {
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
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
