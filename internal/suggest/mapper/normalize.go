package mapper

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// NormalizeGroundedDetail trims and collapses a raw detail string,
// falling back to the summary when detail is empty.
func NormalizeGroundedDetail(detail, summary string) string {
	detail = collapseWhitespace(detail)
	if detail == "" {
		return collapseWhitespace(summary)
	}
	return detail
}

// NormalizeGroundedSummary collapses whitespace and, if the result is
// too short to be a useful grounded claim, anchors it explicitly to the
// evidence line so downstream validity checks have something concrete
// to evaluate. Returns "" if no usable summary can be produced.
func NormalizeGroundedSummary(summary, detail string, anchorLine int) string {
	summary = collapseWhitespace(summary)
	if summary == "" {
		summary = collapseWhitespace(detail)
	}
	if summary == "" {
		return ""
	}
	if !IsValidGroundedSummary(summary) && anchorLine > 0 {
		summary = fmt.Sprintf("%s (see line %d)", summary, anchorLine)
	}
	if !IsValidGroundedSummary(summary) {
		return ""
	}
	return summary
}

// IsValidGroundedSummary enforces the minimum word/character bar a
// grounded summary must clear to be considered a real claim rather than
// a fragment.
func IsValidGroundedSummary(summary string) bool {
	if len(summary) < core.SummaryMinChars {
		return false
	}
	words := strings.Fields(summary)
	return len(words) >= core.SummaryMinWords
}

var speculativeConnectors = []string{
	"causing", "leading to", "resulting in", "so that", "so users", ", so ", ", which ",
}

// TrimAtFirstSpeculativeConnector cuts a summary at the first speculative
// connector phrase, used by the post-processor's speculative-impact
// filter (spec.md §4.9 step 5b).
func TrimAtFirstSpeculativeConnector(summary string) (string, bool) {
	lower := strings.ToLower(summary)
	best := -1
	for _, c := range speculativeConnectors {
		if idx := strings.Index(lower, c); idx >= 0 && (best == -1 || idx < best) {
			best = idx
		}
	}
	if best == -1 {
		return summary, false
	}
	trimmed := strings.TrimRight(strings.TrimSpace(summary[:best]), ".,;: ")
	if trimmed == "" {
		return summary, false
	}
	return trimmed + ".", true
}

// ScrubUserFacingSpeculation removes common user-impact speculation
// wording from a rewritten summary, used by the overclaim rewriter (C7).
func ScrubUserFacingSpeculation(summary string) string {
	s := collapseWhitespace(summary)
	for _, c := range speculativeConnectors {
		if idx := strings.Index(strings.ToLower(s), c); idx >= 0 {
			s = strings.TrimRight(strings.TrimSpace(s[:idx]), ".,;: ") + "."
		}
	}
	return s
}
