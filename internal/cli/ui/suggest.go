package ui

import (
	"sort"
	"strings"
)

const (
	// MaxSuggestDistance is the largest edit distance offered as a suggestion
	MaxSuggestDistance = 3
	// MaxSuggestions caps the number of suggestions
	MaxSuggestions = 3
)

// Suggest returns up to MaxSuggestions candidates within MaxSuggestDistance
// edits of name, closest first. Matching ignores case.
//
//	Suggest("Prodcut", []string{"Product", "Category"}) // [Product]
func Suggest(name string, candidates []string) []string {
	type match struct {
		value    string
		distance int
	}

	target := strings.ToLower(name)
	var matches []match
	for _, c := range candidates {
		if d := EditDistance(target, strings.ToLower(c)); d <= MaxSuggestDistance {
			matches = append(matches, match{c, d})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].distance < matches[j].distance
	})

	result := make([]string, 0, MaxSuggestions)
	for i := 0; i < len(matches) && i < MaxSuggestions; i++ {
		result = append(result, matches[i].value)
	}
	return result
}

// EditDistance returns the Levenshtein distance between a and b in runes
func EditDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = minOf(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func minOf(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
