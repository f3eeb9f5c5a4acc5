package domain

import (
	"fmt"

	"github.com/antzucaro/matchr"
)

// Scorer rates how alike two column names are on a 0–100 scale.
type Scorer interface {
	Score(canonical, incoming string) float64
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(canonical, incoming string) float64

func (f ScorerFunc) Score(canonical, incoming string) float64 { return f(canonical, incoming) }

// RatcliffObershelp scores names by the gestalt pattern-matching ratio:
// twice the number of characters in matching blocks over the combined
// length, times 100. Blocks are found recursively, longest first, with ties
// going to the block that starts earliest in the canonical name and then in
// the incoming one. Column names are far too short to need junk heuristics.
type RatcliffObershelp struct{}

func (RatcliffObershelp) Score(canonical, incoming string) float64 {
	a, b := []rune(canonical), []rune(incoming)
	total := len(a) + len(b)
	if total == 0 {
		return 100
	}
	return 200 * float64(matchingChars(a, b, 0, len(a), 0, len(b))) / float64(total)
}

func matchingChars(a, b []rune, alo, ahi, blo, bhi int) int {
	i, j, k := longestMatch(a, b, alo, ahi, blo, bhi)
	if k == 0 {
		return 0
	}
	n := k
	if alo < i && blo < j {
		n += matchingChars(a, b, alo, i, blo, j)
	}
	if i+k < ahi && j+k < bhi {
		n += matchingChars(a, b, i+k, ahi, j+k, bhi)
	}
	return n
}

// longestMatch finds the longest common block of a[alo:ahi] and b[blo:bhi].
func longestMatch(a, b []rune, alo, ahi, blo, bhi int) (besti, bestj, bestk int) {
	besti, bestj = alo, blo
	width := bhi - blo + 1
	prev := make([]int, width)
	cur := make([]int, width)
	for i := alo; i < ahi; i++ {
		for j := blo; j < bhi; j++ {
			if a[i] != b[j] {
				cur[j-blo+1] = 0
				continue
			}
			k := prev[j-blo] + 1
			cur[j-blo+1] = k
			if k > bestk {
				besti, bestj, bestk = i-k+1, j-k+1, k
			}
		}
		prev, cur = cur, prev
	}
	return besti, bestj, bestk
}

// JaroWinklerScorer scores names with the Jaro-Winkler similarity, scaled to
// 0–100. It favours shared prefixes, which suits names that drift by suffix.
type JaroWinklerScorer struct{}

func (JaroWinklerScorer) Score(canonical, incoming string) float64 {
	return 100 * matchr.JaroWinkler(canonical, incoming, false)
}

// ScorerByName resolves a configured scorer name.
func ScorerByName(name string) (Scorer, error) {
	switch name {
	case "", "ratcliff":
		return RatcliffObershelp{}, nil
	case "jarowinkler":
		return JaroWinklerScorer{}, nil
	default:
		return nil, fmt.Errorf("unknown similarity scorer %q", name)
	}
}
