package enrich

import (
	"strings"

	"github.com/kalambet/pitcharena/internal/search"
)

// dedupeByURL keeps the first occurrence of each URL, preserving order.
func dedupeByURL(results []search.Result) []search.Result {
	seen := make(map[string]bool, len(results))
	out := make([]search.Result, 0, len(results))
	for _, r := range results {
		key := strings.TrimRight(strings.ToLower(r.URL), "/")
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// rankForDiversity reorders results so that each pick is the remaining
// result least similar to everything already selected, measured by token
// overlap of title+snippet. Near-duplicate hits from different queries sink
// to the back instead of crowding the bundle.
func rankForDiversity(results []search.Result) []search.Result {
	if len(results) <= 2 {
		return results
	}

	tokens := make([]map[string]bool, len(results))
	for i, r := range results {
		tokens[i] = tokenSet(r.Title + " " + r.Snippet)
	}

	selected := make([]search.Result, 0, len(results))
	selectedTokens := make([]map[string]bool, 0, len(results))
	remaining := make([]int, len(results))
	for i := range remaining {
		remaining[i] = i
	}

	for len(remaining) > 0 {
		best := 0
		bestOverlap := 2.0 // above any possible Jaccard value
		for pos, idx := range remaining {
			overlap := 0.0
			for _, sel := range selectedTokens {
				if j := jaccard(tokens[idx], sel); j > overlap {
					overlap = j
				}
			}
			// Strictly-less keeps original order among equals.
			if overlap < bestOverlap {
				bestOverlap = overlap
				best = pos
			}
		}
		idx := remaining[best]
		selected = append(selected, results[idx])
		selectedTokens = append(selectedTokens, tokens[idx])
		remaining = append(remaining[:best], remaining[best+1:]...)
	}

	return selected
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(text)) {
		f = strings.Trim(f, ".,;:!?\"'()[]")
		if len(f) >= 3 && !stopwords[f] {
			set[f] = true
		}
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
