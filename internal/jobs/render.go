package jobs

import (
	"fmt"
	"strings"

	"github.com/evidentgo/suggestengine/internal/core"
	suggestcore "github.com/evidentgo/suggestengine/internal/suggest/core"
)

// toCoreSuggestion converts one engine suggestion into the github package's
// Suggestion shape ahead of FilterNonCodeSuggestions/PostStructuredReview,
// so posting reuses github.StatusUpdater's existing inline-comment
// formatting instead of duplicating it here.
func toCoreSuggestion(s suggestcore.Suggestion) core.Suggestion {
	return core.Suggestion{
		FilePath:   s.File,
		LineNumber: s.Line,
		StartLine:  s.Line,
		Severity:   string(s.Priority),
		Category:   string(s.Kind),
		Comment:    renderSuggestionComment(s),
		Confidence: confidenceScore(s.Confidence),
	}
}

// renderSuggestionComment builds the comment body for one suggestion: its
// grounded summary, optional implementation detail, and the evidence
// snippet it was validated against.
func renderSuggestionComment(s suggestcore.Suggestion) string {
	var b strings.Builder
	b.WriteString(s.Summary)
	if s.Detail != "" {
		b.WriteString("\n\n")
		b.WriteString(s.Detail)
	}
	if s.Evidence != "" {
		b.WriteString("\n\nEvidence:\n")
		b.WriteString(s.Evidence)
	}
	return b.String()
}

func confidenceScore(c suggestcore.Confidence) int {
	switch c {
	case suggestcore.ConfidenceHigh:
		return 90
	case suggestcore.ConfidenceMedium:
		return 60
	default:
		return 40
	}
}

// buildStructuredReview wraps the already-filtered suggestions and the
// gate's final snapshot into the shape github.StatusUpdater posts.
func buildStructuredReview(suggestions []core.Suggestion, gate suggestcore.SuggestionGateSnapshot) *core.StructuredReview {
	summary := fmt.Sprintf("%d grounded suggestion(s) survived validation (gate attempt %d, %s tier).",
		len(suggestions), gate.AttemptIndex, gate.ModelTier)
	verdict := "COMMENT"
	if !gate.Passed {
		verdict = "REQUEST_CHANGES"
	}
	if len(suggestions) == 0 {
		summary = "No grounded suggestions survived validation for this revision."
	}

	return &core.StructuredReview{
		Title:       "Evidence-Grounded Suggestions",
		Summary:     summary,
		Verdict:     verdict,
		Suggestions: suggestions,
	}
}

// renderMarkdownSummary renders a StructuredReview as the flat markdown
// stored in core.Review.ReviewContent, matching the DB record's original
// "plain rendered review text" contract.
func renderMarkdownSummary(review *core.StructuredReview) string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(review.Title)
	b.WriteString("\n\n")
	b.WriteString(review.Summary)
	b.WriteString("\n\n")
	for _, s := range review.Suggestions {
		fmt.Fprintf(&b, "- **%s** %s:%d [%s] — %s\n", s.Severity, s.FilePath, s.LineNumber, s.Category, s.Comment)
	}
	return b.String()
}
