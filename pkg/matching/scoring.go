package matching

import (
	"math"
	"strings"
	"time"
)

// Scorer provides the string and date comparison primitives the engine
// scores with.
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// ExactMatch returns 1.0 for exact match, 0.0 otherwise
func (s *Scorer) ExactMatch(a, b string, caseSensitive bool) float64 {
	if !caseSensitive {
		a = strings.ToLower(a)
		b = strings.ToLower(b)
	}
	if a == b {
		return 1.0
	}
	return 0.0
}

// TokenSetSimilarity calculates the Jaccard similarity of the word sets of
// two strings. Tokens are lowercased and split on whitespace; duplicates
// collapse, so word order and repetition never change the score. Returns a
// value between 0.0 and 1.0; either side empty yields 0.0.
func (s *Scorer) TokenSetSimilarity(a, b string) float64 {
	aTokens := tokenSet(a)
	bTokens := tokenSet(b)

	if len(aTokens) == 0 || len(bTokens) == 0 {
		return 0.0
	}

	intersection := 0
	for token := range aTokens {
		if _, ok := bTokens[token]; ok {
			intersection++
		}
	}

	union := len(aTokens) + len(bTokens) - intersection
	return float64(intersection) / float64(union)
}

// Containment reports whether either string contains the other,
// case-insensitively. Empty strings contain nothing and are contained by
// nothing.
func (s *Scorer) Containment(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// DaysApart returns the absolute distance between two dates in whole days.
func (s *Scorer) DaysApart(a, b time.Time) int {
	return int(math.Abs(a.Sub(b).Hours()) / 24)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range strings.Fields(strings.ToLower(s)) {
		set[token] = struct{}{}
	}
	return set
}
