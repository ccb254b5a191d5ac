// internal/similarity/similarity.go
//
// Package similarity scores how alike two strings or two element signatures are. Scores are
// in [0, 1] and deterministic, so signatures captured on one run can be compared with the
// next.
package similarity

import (
	"unicode/utf8"

	"github.com/xkilldash9x/scalpel-heal/api/schemas"
)

// Fixed weights of the element comparison.
const (
	weightTag     = 3.0
	weightText    = 2.0
	weightClasses = 2.0
	weightID      = 1.0
	totalWeight   = weightTag + weightText + weightClasses + weightID
)

// Levenshtein returns the edit distance between a and b over runes, with unit costs for
// insertion, deletion and substitution.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	// Two rolling rows of the DP matrix.
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// String returns 0 when either string is empty, 1 for equal strings, and otherwise
// (longer - distance) / longer, with lengths counted in runes.
func String(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	longer := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	return float64(longer-Levenshtein(a, b)) / float64(longer)
}

// Elements scores two signatures by tag, text, class overlap and id. A nil signature
// scores 0.
func Elements(a, b *schemas.ElementSignature) float64 {
	if a == nil || b == nil {
		return 0
	}

	var score float64
	if a.Tag == b.Tag {
		score += weightTag
	}

	// Two empty texts count as an exact match.
	if a.Text == b.Text {
		score += weightText
	} else if a.Text != "" && b.Text != "" {
		score += String(a.Text, b.Text) * weightText
	}

	if len(a.Classes) > 0 || len(b.Classes) > 0 {
		score += classOverlap(a.Classes, b.Classes) * weightClasses
	}

	if a.ID != "" && b.ID != "" && a.ID == b.ID {
		score += weightID
	}

	return score / totalWeight
}

func classOverlap(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, c := range a {
		setA[c] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, c := range b {
		setB[c] = struct{}{}
	}

	common := 0
	for c := range setB {
		if _, ok := setA[c]; ok {
			common++
		}
	}
	return float64(common) / float64(max(len(setA), len(setB)))
}
