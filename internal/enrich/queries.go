package enrich

import (
	"sort"
	"strings"
	"unicode"
)

// Research angles appended to the keyword query. Each produces one search,
// so the query set stays topically diversified without a generation call.
var angleSuffixes = []string{
	"current market trends",
	"existing competitors",
	"technical feasibility",
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true, "has": true,
	"have": true, "in": true, "is": true, "it": true, "its": true, "of": true,
	"on": true, "or": true, "our": true, "that": true, "the": true, "their": true,
	"this": true, "to": true, "uses": true, "using": true, "was": true, "we": true,
	"will": true, "with": true, "would": true, "you": true, "your": true,
}

// DeriveQueries builds 3-6 diversified search queries from the pitch using
// local heuristics only: the pitch head as a verbatim query, plus the top
// keywords combined with fixed research angles.
func DeriveQueries(pitch string) []string {
	queries := []string{headOf(pitch, 120)}

	base := strings.Join(topKeywords(pitch, 4), " ")
	if base == "" {
		base = headOf(pitch, 60)
	}
	for _, suffix := range angleSuffixes {
		queries = append(queries, base+" "+suffix)
	}
	return queries
}

// headOf returns the first maxChars of text, cut at a word boundary.
func headOf(text string, maxChars int) string {
	s := strings.Join(strings.Fields(text), " ")
	if len(s) <= maxChars {
		return s
	}
	cut := s[:maxChars]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut
}

// topKeywords returns the n most frequent non-stopword terms of the pitch,
// ties broken by first appearance so the result is deterministic.
func topKeywords(text string, n int) []string {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)

	pos := 0
	for _, field := range strings.Fields(strings.ToLower(text)) {
		word := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if len(word) < 3 || stopwords[word] {
			continue
		}
		if _, ok := counts[word]; !ok {
			firstSeen[word] = pos
		}
		counts[word]++
		pos++
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return firstSeen[words[i]] < firstSeen[words[j]]
	})

	if len(words) > n {
		words = words[:n]
	}
	return words
}
