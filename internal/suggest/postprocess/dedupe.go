// Package postprocess implements the Post-processor (C9): semantic
// dedupe, readiness annotation/filtering, selective smart rewrites, the
// speculative-impact filter, per-file balance capping, and diversity
// metrics, applied in the fixed order spec.md §4.9 names.
package postprocess

import (
	"regexp"
	"sort"
	"strings"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
)

var wordSplitRe = regexp.MustCompile(`[^a-z0-9]+`)

// wordSet returns the distinct lowercased word set of a suggestion's
// summary and detail combined, used by the Jaccard/overlap checks.
func wordSet(s core.Suggestion) map[string]bool {
	text := strings.ToLower(s.Summary + " " + s.Detail)
	set := make(map[string]bool)
	for _, w := range wordSplitRe.Split(text, -1) {
		if w != "" {
			set[w] = true
		}
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func overlapCoefficient(a, b map[string]bool) (intersection int, coeff float64) {
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	if minLen == 0 {
		return intersection, 0
	}
	return intersection, float64(intersection) / float64(minLen)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// overlaps reports whether two suggestions are semantic duplicates under
// spec.md §4.9 step 1's five overlap conditions.
func overlaps(a, b core.Suggestion) bool {
	if a.File == b.File && abs(a.Line-b.Line) <= 4 {
		return true
	}
	wa, wb := wordSet(a), wordSet(b)
	j := jaccard(wa, wb)
	if j >= 0.84 {
		return true
	}
	if a.Kind == b.Kind && j >= 0.66 {
		return true
	}
	if a.Kind == b.Kind {
		inter, coeff := overlapCoefficient(wa, wb)
		if inter >= 4 && coeff >= 0.5 {
			return true
		}
	}
	if a.File == b.File && j >= 0.58 {
		return true
	}
	return false
}

var priorityRank = map[core.Priority]int{core.PriorityHigh: 2, core.PriorityMedium: 1, core.PriorityLow: 0}
var confidenceRank = map[core.Confidence]int{core.ConfidenceHigh: 1, core.ConfidenceMedium: 0}

// Dedupe sorts suggestions by (priority desc, confidence desc, readiness
// desc, created_at desc) and greedily keeps each one that doesn't
// overlap any suggestion already kept. Running it twice on its own
// output is a fixpoint: every pair among the survivors was already
// checked non-overlapping on the first pass.
func Dedupe(suggestions []core.Suggestion) []core.Suggestion {
	sorted := make([]core.Suggestion, len(suggestions))
	copy(sorted, suggestions)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if priorityRank[a.Priority] != priorityRank[b.Priority] {
			return priorityRank[a.Priority] > priorityRank[b.Priority]
		}
		if confidenceRank[a.Confidence] != confidenceRank[b.Confidence] {
			return confidenceRank[a.Confidence] > confidenceRank[b.Confidence]
		}
		if a.ImplementationReadinessScore != b.ImplementationReadinessScore {
			return a.ImplementationReadinessScore > b.ImplementationReadinessScore
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	kept := make([]core.Suggestion, 0, len(sorted))
	for _, s := range sorted {
		dup := false
		for _, k := range kept {
			if overlaps(s, k) {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, s)
		}
	}
	return kept
}
