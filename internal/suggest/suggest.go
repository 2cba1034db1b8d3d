// Package suggest finds likely intended names for misspelled ones.
package suggest

import (
	"github.com/sahilm/fuzzy"
)

// Closest returns the candidate that best matches name. A candidate matches
// when one of the two is a subsequence of the other, so both missing and
// extra letters are forgiven. Matches must cover at least half of the longer
// string.
func Closest(name string, candidates []string) (string, bool) {
	if name == "" || len(candidates) == 0 {
		return "", false
	}

	best, bestScore := "", 0
	consider := func(candidate string, score int) {
		if !closeEnough(name, candidate) {
			return
		}
		if best == "" || score > bestScore {
			best, bestScore = candidate, score
		}
	}

	for _, m := range fuzzy.Find(name, candidates) {
		if m.Str != name {
			consider(m.Str, m.Score)
		}
	}
	for _, c := range candidates {
		if c == name {
			continue
		}
		if matches := fuzzy.Find(c, []string{name}); len(matches) > 0 {
			consider(c, matches[0].Score)
		}
	}
	return best, best != ""
}

func closeEnough(a, b string) bool {
	short, long := len(a), len(b)
	if short > long {
		short, long = long, short
	}
	return short*2 >= long
}
