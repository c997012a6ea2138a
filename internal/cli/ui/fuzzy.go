package ui

import (
	"sort"
	"strings"
)

const (
	// DefaultMaxDistance is the largest edit distance still offered as a suggestion
	DefaultMaxDistance = 3
	// DefaultMaxSuggestions caps the number of suggestions returned
	DefaultMaxSuggestions = 3
)

// FuzzyMatchOptions configures fuzzy matching behavior
type FuzzyMatchOptions struct {
	MaxDistance    int  // default 3
	MaxSuggestions int  // default 3
	CaseSensitive  bool // default false
}

type suggestion struct {
	value    string
	distance int
}

// FindSimilar returns the candidates closest to target by Levenshtein
// distance, nearest first. Ties keep candidate order.
//
//	FindSimilar("Employe", registry.Names(), nil) // ["Employee"]
func FindSimilar(target string, candidates []string, opts *FuzzyMatchOptions) []string {
	o := FuzzyMatchOptions{MaxDistance: DefaultMaxDistance, MaxSuggestions: DefaultMaxSuggestions}
	if opts != nil {
		o.CaseSensitive = opts.CaseSensitive
		if opts.MaxDistance > 0 {
			o.MaxDistance = opts.MaxDistance
		}
		if opts.MaxSuggestions > 0 {
			o.MaxSuggestions = opts.MaxSuggestions
		}
	}

	needle := target
	if !o.CaseSensitive {
		needle = strings.ToLower(target)
	}

	var found []suggestion
	for _, candidate := range candidates {
		hay := candidate
		if !o.CaseSensitive {
			hay = strings.ToLower(candidate)
		}
		if d := LevenshteinDistance(needle, hay); d <= o.MaxDistance {
			found = append(found, suggestion{value: candidate, distance: d})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].distance < found[j].distance
	})

	result := make([]string, 0, o.MaxSuggestions)
	for i := 0; i < len(found) && i < o.MaxSuggestions; i++ {
		result = append(result, found[i].value)
	}
	return result
}

// LevenshteinDistance is the minimum number of single-rune insertions,
// deletions or substitutions turning s1 into s2
func LevenshteinDistance(s1, s2 string) int {
	a, b := []rune(s1), []rune(s2)
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// FindBestMatch returns the closest candidate, or "" when none is close enough
func FindBestMatch(target string, candidates []string, opts *FuzzyMatchOptions) string {
	matches := FindSimilar(target, candidates, opts)
	if len(matches) == 0 {
		return ""
	}
	return matches[0]
}
