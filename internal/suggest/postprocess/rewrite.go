package postprocess

import (
	"context"
	"log/slog"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
	"github.com/evidentgo/suggestengine/internal/suggest/mapper"
	"github.com/evidentgo/suggestengine/internal/suggest/validate"
)

// SmartRewrite spends at most maxCalls rewrite-then-revalidate round
// trips on suggestions that are borderline-ready (readiness within
// [minReadiness, 0.60]) or still carry overclaim wording, per spec.md
// §4.9 step 4. A suggestion is only replaced when its rewrite
// re-validates; otherwise it is kept unchanged.
func SmartRewrite(ctx context.Context, client *validate.Client, systemPrompt string, suggestions []core.Suggestion, tier core.ModelTier, minReadiness float64, maxCalls int, logger *slog.Logger) ([]core.Suggestion, core.Usage) {
	var usage core.Usage
	out := make([]core.Suggestion, len(suggestions))
	copy(out, suggestions)

	calls := 0
	for i := range out {
		if calls >= maxCalls {
			break
		}
		s := out[i]
		borderline := s.ImplementationReadinessScore >= minReadiness && s.ImplementationReadinessScore <= core.SmartRewriteReadinessUpperBound
		if !borderline && !hasOverclaimWording(s) {
			continue
		}

		calls++
		summary, detail, rewriteUsage, err := client.RewriteBorderline(ctx, systemPrompt, s, tier)
		usage.Add(rewriteUsage)
		if err != nil {
			logger.Warn("smart rewrite call failed", "error", err, "suggestion", s.ID)
			continue
		}

		normalized := mapper.NormalizeGroundedSummary(summary, detail, s.Line)
		if normalized == "" {
			continue
		}

		candidate := s
		candidate.Summary = normalized
		candidate.Detail = detail

		state, _, _, revalUsage, err := client.ValidateOne(ctx, systemPrompt, candidate, tier, core.SmartBorderlineRewriteMaxTokens, core.SmartBorderlineRewriteTimeout, false)
		usage.Add(revalUsage)
		if err != nil || state != core.ValidationValidated {
			continue
		}

		AnnotateReadiness(&candidate)
		out[i] = candidate
	}

	return out, usage
}
