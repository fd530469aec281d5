package postprocess

import (
	"regexp"
	"strings"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
	"github.com/evidentgo/suggestengine/internal/suggest/mapper"
)

var speculativeImpactMarkersRe = regexp.MustCompile(`(?i)(campaign reach|engagement|memory bloat|revenue|brand (?:reputation|damage)|lawsuit|compliance violation|churn|conversion rate|seo ranking|pr disaster)`)

var emptyCatchRe = regexp.MustCompile(`(?is)catch\s*(?:\([^)]*\))?\s*\{\s*(?://[^\n]*\n\s*)*\}`)
var perfTelemetryRe = regexp.MustCompile(`(?i)(PerformanceObserver|performance\.mark)`)
var lockCleanupRe = regexp.MustCompile(`(?i)\b(unlock|release)\b`)

type conservativeRewriteRule struct {
	match   func(snippet string) bool
	rewrite string
}

// conservativeRewriteTable matches known safe snippet shapes to a fixed,
// non-speculative replacement summary, per spec.md §4.9 step 5a. Matching
// is order-independent within a snippet: the marker and the empty catch
// block can appear in either order.
var conservativeRewriteTable = []conservativeRewriteRule{
	{
		match: func(snippet string) bool {
			return emptyCatchRe.MatchString(snippet) && perfTelemetryRe.MatchString(snippet)
		},
		rewrite: "Performance telemetry can be missing when this error path is silently ignored.",
	},
	{
		match: regexp.MustCompile(`(?i)(kv|key[_ ]?value).*(not configured|status:\s*['"]skipped['"])`).MatchString,
		rewrite: "This path silently skips recording when the key-value store is not configured.",
	},
	{
		match:   regexp.MustCompile(`(?i)\b(sadd|srem)\b`).MatchString,
		rewrite: "Audience-set membership can drift when this Redis operation silently fails.",
	},
	{
		match: func(snippet string) bool {
			return emptyCatchRe.MatchString(snippet) && lockCleanupRe.MatchString(snippet)
		},
		rewrite: "A held lock may not be released when this error path is silently ignored.",
	},
}

// conservativeRewriteFromSnippet returns a fixed, non-speculative summary
// when the snippet matches one of the known safe patterns.
func conservativeRewriteFromSnippet(snippet string) (string, bool) {
	for _, rule := range conservativeRewriteTable {
		if rule.match(snippet) {
			return rule.rewrite, true
		}
	}
	return "", false
}

func isSpeculative(summary string) bool {
	return !mapper.IsValidGroundedSummary(summary) || speculativeImpactMarkersRe.MatchString(summary)
}

// FilterSpeculativeImpact drops or rewrites suggestions whose summary
// overclaims user-facing or business impact beyond the evidence. It
// tries, in order: a conservative rewrite grounded in the snippet, a
// trim at the first speculative connector, then drops the suggestion.
func FilterSpeculativeImpact(suggestions []core.Suggestion, diag *core.SuggestionDiagnostics) []core.Suggestion {
	kept := make([]core.Suggestion, 0, len(suggestions))
	for _, s := range suggestions {
		if !isSpeculative(s.Summary) {
			kept = append(kept, s)
			continue
		}

		if rewritten, ok := conservativeRewriteFromSnippet(s.Evidence); ok {
			s.Summary = rewritten
			kept = append(kept, s)
			continue
		}

		if trimmed, ok := mapper.TrimAtFirstSpeculativeConnector(s.Summary); ok {
			renormalized := mapper.NormalizeGroundedSummary(trimmed, s.Detail, s.Line)
			if renormalized != "" && !isSpeculative(renormalized) {
				s.Summary = renormalized
				kept = append(kept, s)
				continue
			}
		}

		diag.SpeculativeImpactDropped++
	}
	return kept
}

// overclaimWordingMarkers mirrors the overclaim-rewrite trigger wording
// used by the smart-rewrite selection test (spec.md §4.9 step 4).
var overclaimWordingMarkersRe = regexp.MustCompile(`(?i)(will (?:cause|result in|lead to)|definitely|certainly|guaranteed to|always fails)`)

func hasOverclaimWording(s core.Suggestion) bool {
	return overclaimWordingMarkersRe.MatchString(strings.ToLower(s.Summary + " " + s.Detail))
}
