package postprocess

import (
	"context"
	"log/slog"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
	"github.com/evidentgo/suggestengine/internal/suggest/validate"
)

// Run applies the fixed post-processing pipeline spec.md §4.9 names, in
// order: semantic dedupe, readiness annotation, readiness filter,
// selective smart rewrites, speculative-impact filter, per-file balance
// capping, and diversity metrics. It mutates diag with the readiness,
// speculative-drop, and diversity counters as it goes.
func Run(ctx context.Context, client *validate.Client, validationSystemPrompt string, tier core.ModelTier, suggestions []core.Suggestion, minReadiness float64, maxSmartRewrites int, diag *core.SuggestionDiagnostics, logger *slog.Logger) ([]core.Suggestion, core.Usage) {
	deduped := Dedupe(suggestions)
	AnnotateAll(deduped)

	filtered, meanBeforeFilter := FilterByReadiness(deduped, minReadiness)
	diag.ReadinessMeanBeforeFilter = meanBeforeFilter
	diag.ReadinessFilteredCount = len(deduped) - len(filtered)

	rewritten, usage := SmartRewrite(ctx, client, validationSystemPrompt, filtered, tier, minReadiness, maxSmartRewrites, logger)

	final := FilterSpeculativeImpact(rewritten, diag)
	final = BalanceFiles(final)

	dominantTopicRatio, uniqueTopicCount, dominantFileRatio, uniqueFileCount := DiversityMetrics(final)
	diag.DominantTopicRatio = dominantTopicRatio
	diag.UniqueTopicCount = uniqueTopicCount
	diag.DominantFileRatio = dominantFileRatio
	diag.UniqueFileCount = uniqueFileCount

	return final, usage
}
