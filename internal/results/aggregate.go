// Package results computes vote tallies. It is a pure function over vote
// records with no ordering requirement and no side effects.
package results

import "pollroom/pkg/types"

// Tally groups votes by option id and counts occurrences. Options nobody
// picked are absent from the map, not zero-filled; callers must treat a
// missing key as zero.
func Tally(votes []*types.Vote) map[string]int {
	tally := make(map[string]int)
	for _, v := range votes {
		tally[v.OptionID]++
	}
	return tally
}

// Total sums all counts in a tally.
func Total(tally map[string]int) int {
	total := 0
	for _, n := range tally {
		total += n
	}
	return total
}
