package prevalidate

import (
	"regexp"
	"strings"
)

var nonAlnumRun = regexp.MustCompile(`[^a-z0-9]+`)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "being": true, "this": true,
	"that": true, "these": true, "those": true, "it": true, "its": true,
	"of": true, "in": true, "on": true, "at": true, "to": true, "for": true,
	"and": true, "or": true, "but": true, "with": true, "as": true, "by": true,
	"from": true, "not": true, "no": true, "can": true, "will": true,
	"may": true, "should": true, "would": true, "could": true, "has": true,
	"have": true, "had": true, "here": true, "there": true, "when": true,
	"does": true, "do": true,
}

var genericSuggestionWords = map[string]bool{
	"error": true, "fail": true, "silent": true, "ignore": true, "catch": true,
	"issue": true, "problem": true, "code": true, "function": true, "value": true,
	"check": true, "handle": true, "handling": true,
}

// NormalizeClaimTokens lowercases, splits on non-alphanumerics, strips stop
// words and generic suggestion words, collapses a long plural/verb suffix,
// and drops anything under 3 characters.
func NormalizeClaimTokens(text string) []string {
	lower := strings.ToLower(text)
	parts := nonAlnumRun.Split(lower, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" || stopWords[p] {
			continue
		}
		p = stripSuffix(p)
		if genericSuggestionWords[p] || len(p) < 3 {
			continue
		}
		out = append(out, p)
	}
	return out
}

var suffixes = []string{"ing", "ed", "es", "s"}

func stripSuffix(word string) string {
	if len(word) <= 5 {
		return word
	}
	for _, suf := range suffixes {
		if strings.HasSuffix(word, suf) && len(word)-len(suf) >= 3 {
			return word[:len(word)-len(suf)]
		}
	}
	return word
}

// TokenOverlap reports how many claim tokens also appear (as a substring
// match) among the snippet's identifier-ish tokens, and the fraction of
// claim tokens satisfied.
func TokenOverlap(claimTokens []string, snippet string) (overlapCount int, fraction float64) {
	if len(claimTokens) == 0 {
		return 0, 0
	}
	snippetLower := strings.ToLower(snippet)
	for _, t := range claimTokens {
		if strings.Contains(snippetLower, t) {
			overlapCount++
		}
	}
	return overlapCount, float64(overlapCount) / float64(len(claimTokens))
}
