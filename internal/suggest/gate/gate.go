// Package gate implements the Quality Gate & Retry Driver (C10): it
// drives the orchestrator, refinement loop, and post-processor through
// up to GateConfig.MaxAttempts attempts, scores each attempt against a
// SuggestionGateSnapshot, and returns the best attempt seen so far when
// the budget or attempt cap runs out before one fully passes.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/evidentgo/suggestengine/internal/suggest/audit"
	"github.com/evidentgo/suggestengine/internal/suggest/core"
	"github.com/evidentgo/suggestengine/internal/suggest/llmgateway"
	"github.com/evidentgo/suggestengine/internal/suggest/orchestrator"
	"github.com/evidentgo/suggestengine/internal/suggest/postprocess"
	"github.com/evidentgo/suggestengine/internal/suggest/refine"
	"github.com/evidentgo/suggestengine/internal/suggest/validate"
)

// ErrGatePassedWithZeroAttempts means Run was invoked with a MaxAttempts
// of zero or less, so no attempt could ever be scored.
var ErrGatePassedWithZeroAttempts = errors.New("gate: no attempts configured")

// ProgressEvent is reported after each attempt when Run is invoked
// through RunWithProgress.
type ProgressEvent struct {
	AttemptIndex int
	Snapshot     core.SuggestionGateSnapshot
}

// Request configures one gated run over a single evidence pack.
type Request struct {
	Pack                   []core.EvidenceItem
	GenSystemPrompt        string
	ValidationSystemPrompt string
	Memory                 string
	FileSummaries          map[string]string
	Config                 core.GateConfig
	InitialModelTier       core.ModelTier

	// RunID identifies this gated run in the audit log (C11). AuditSink
	// defaults to a no-op when nil, so callers that don't care about the
	// audit trail (e.g. the ask-a-question one-shot) pay nothing for it.
	RunID     string
	AuditSink audit.Sink
}

type attemptOutcome struct {
	suggestions []core.Suggestion
	diag        *core.SuggestionDiagnostics
	usage       core.Usage
	snapshot    core.SuggestionGateSnapshot
}

// Run drives the gated attempt loop and returns the best attempt found,
// along with its cumulative usage and diagnostics.
func Run(ctx context.Context, gw *llmgateway.Gateway, vclient *validate.Client, req Request, logger *slog.Logger) (core.GatedRunResult, error) {
	return RunWithProgress(ctx, gw, vclient, req, logger, nil)
}

// RunWithProgress is Run plus an optional onAttempt callback invoked
// after each attempt is scored, letting callers stream progress to a
// UI (spec.md §4.10's "progress callback" variant).
func RunWithProgress(ctx context.Context, gw *llmgateway.Gateway, vclient *validate.Client, req Request, logger *slog.Logger, onAttempt func(ProgressEvent)) (core.GatedRunResult, error) {
	cfg := req.Config
	if cfg.MaxAttempts <= 0 {
		return core.GatedRunResult{}, ErrGatePassedWithZeroAttempts
	}

	tier := req.InitialModelTier
	if tier == "" {
		tier = core.ModelTierSpeed
	}

	overallDeadline := time.Now().Add(core.SuggestGateBudget)
	var cumulative core.Usage
	var best *attemptOutcome

	for attemptIndex := 0; attemptIndex < cfg.MaxAttempts; attemptIndex++ {
		if attemptIndex > 0 {
			remaining := time.Until(overallDeadline)
			if remaining < core.GateRetryMinRemainingBudget {
				break
			}
			if best != nil && best.usage.CostUSD >= cfg.MaxSuggestCostUSD*core.GateRetryMaxAttemptCostFrac {
				break
			}
		}

		attemptStart := time.Now()
		outcome := runAttempt(ctx, gw, vclient, req, tier, attemptIndex, logger, auditSinkOrNoop(req.AuditSink))
		outcome.snapshot.AttemptMs = time.Since(attemptStart).Milliseconds()
		outcome.snapshot.AttemptCostUSD = outcome.usage.CostUSD
		cumulative.Add(outcome.usage)

		evaluateSnapshot(&outcome.snapshot, outcome.suggestions, cfg)
		if onAttempt != nil {
			onAttempt(ProgressEvent{AttemptIndex: attemptIndex, Snapshot: outcome.snapshot})
		}

		if best == nil || isBetter(outcome.snapshot, best.snapshot) {
			best = &outcome
		}
		if outcome.snapshot.Passed {
			break
		}

		tier = nextTier(tier, outcome, cfg)
	}

	if best == nil {
		return core.GatedRunResult{}, ErrGatePassedWithZeroAttempts
	}

	return core.GatedRunResult{
		Suggestions:     best.suggestions,
		CumulativeUsage: cumulative,
		Diagnostics:     best.diag,
		Gate:            best.snapshot,
	}, nil
}

func auditSinkOrNoop(s audit.Sink) audit.Sink {
	if s == nil {
		return audit.NoopSink{}
	}
	return s
}

// runAttempt runs one full orchestrator -> refine -> postprocess pass at
// the given model tier. Generation/refinement failures degrade to an
// empty, failing attempt rather than aborting the whole gate run, so a
// flaky tier doesn't prevent a later attempt (possibly at a higher
// tier) from succeeding.
func runAttempt(ctx context.Context, gw *llmgateway.Gateway, vclient *validate.Client, req Request, tier core.ModelTier, attemptIndex int, logger *slog.Logger, sink audit.Sink) attemptOutcome {
	diag := core.NewSuggestionDiagnostics()
	snapshot := core.SuggestionGateSnapshot{AttemptIndex: attemptIndex, ModelTier: string(tier)}

	orchestratorStart := time.Now()
	oRes, err := orchestrator.Run(ctx, gw, orchestrator.Request{
		SystemPrompt:  req.GenSystemPrompt,
		Pack:          req.Pack,
		Memory:        req.Memory,
		FileSummaries: req.FileSummaries,
		ModelTier:     tier,
	}, diag, logger)
	if err != nil {
		logger.Warn("gate attempt: generation wave failed", "attempt", attemptIndex, "error", err)
		return attemptOutcome{diag: diag, snapshot: snapshot}
	}

	provisional := make([]core.Suggestion, len(oRes.Mapped))
	for i, m := range oRes.Mapped {
		provisional[i] = m.Suggestion
	}

	var usage core.Usage
	usage.Add(oRes.Usage)

	remainingBalanced := core.BalancedBudget - time.Since(orchestratorStart)
	if remainingBalanced < 0 {
		remainingBalanced = 0
	}

	refRes, err := refine.Run(ctx, gw, vclient, refine.Request{
		Pack:                    req.Pack,
		Provisional:             provisional,
		GenSystemPrompt:         req.GenSystemPrompt,
		ValidationSystemPrompt:  req.ValidationSystemPrompt,
		Memory:                  req.Memory,
		FileSummaries:           req.FileSummaries,
		ModelTier:               tier,
		RemainingBalancedBudget: remainingBalanced,
	}, diag, logger)
	if err != nil {
		logger.Warn("gate attempt: refinement failed", "attempt", attemptIndex, "error", err)
		return attemptOutcome{diag: diag, snapshot: snapshot, usage: usage}
	}
	usage.Add(refRes.Usage)
	audit.RecordAll(ctx, sink, req.RunID, refRes.Rejected, time.Now())

	final, ppUsage := postprocess.Run(ctx, vclient, req.ValidationSystemPrompt, tier, refRes.Validated,
		req.Config.MinImplementationReadinessScore, req.Config.MaxSmartRewritesPerRun, diag, logger)
	usage.Add(ppUsage)
	audit.RecordAll(ctx, sink, req.RunID, final, time.Now())

	return attemptOutcome{suggestions: final, diag: diag, usage: usage, snapshot: snapshot}
}

// evaluateSnapshot fills in the scored fields of snapshot and decides
// pass/fail against cfg, recording every failing check in FailReasons.
func evaluateSnapshot(snapshot *core.SuggestionGateSnapshot, suggestions []core.Suggestion, cfg core.GateConfig) {
	snapshot.FinalCount = len(suggestions)
	snapshot.DisplayedValidRatio = displayedValidRatio(suggestions)
	snapshot.ReadinessMean = meanReadiness(suggestions)

	dominantTopicRatio, uniqueTopicCount, dominantFileRatio, uniqueFileCount := postprocess.DiversityMetrics(suggestions)
	snapshot.DominantTopicRatio = dominantTopicRatio
	snapshot.UniqueTopicCount = uniqueTopicCount
	snapshot.DominantFileRatio = dominantFileRatio
	snapshot.UniqueFileCount = uniqueFileCount

	var reasons []string
	if snapshot.FinalCount < cfg.MinFinalCount {
		reasons = append(reasons, "final_count_below_minimum")
	}
	if snapshot.FinalCount > cfg.MaxFinalCount {
		reasons = append(reasons, "final_count_above_maximum")
	}
	if snapshot.DisplayedValidRatio < cfg.MinDisplayedValidRatio {
		reasons = append(reasons, "displayed_valid_ratio_below_minimum")
	}
	if snapshot.ReadinessMean < cfg.MinImplementationReadinessScore {
		reasons = append(reasons, "readiness_mean_below_minimum")
	}
	if snapshot.DominantTopicRatio > core.DiversityDominantTopicRatioMax {
		reasons = append(reasons, "dominant_topic_ratio_above_maximum")
	}
	if snapshot.UniqueTopicCount < core.DiversityMinUniqueTopics && snapshot.FinalCount >= core.DiversityMinUniqueTopics {
		reasons = append(reasons, "unique_topic_count_below_minimum")
	}
	if snapshot.DominantFileRatio > core.DiversityDominantFileRatioMax {
		reasons = append(reasons, "dominant_file_ratio_above_maximum")
	}
	if snapshot.UniqueFileCount < core.DiversityMinUniqueFiles && snapshot.FinalCount >= core.DiversityMinUniqueFiles {
		reasons = append(reasons, "unique_file_count_below_minimum")
	}
	if snapshot.AttemptCostUSD > cfg.MaxSuggestCostUSD {
		reasons = append(reasons, "attempt_cost_above_maximum")
	}
	if cfg.MaxSuggestMs > 0 && snapshot.AttemptMs > cfg.MaxSuggestMs {
		reasons = append(reasons, "attempt_ms_above_maximum")
	}

	snapshot.FailReasons = reasons
	snapshot.Passed = len(reasons) == 0
}

func displayedValidRatio(suggestions []core.Suggestion) float64 {
	if len(suggestions) == 0 {
		return 0
	}
	validated := 0
	for _, s := range suggestions {
		if s.ValidationState == core.ValidationValidated {
			validated++
		}
	}
	return float64(validated) / float64(len(suggestions))
}

func meanReadiness(suggestions []core.Suggestion) float64 {
	if len(suggestions) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range suggestions {
		sum += s.ImplementationReadinessScore
	}
	return sum / float64(len(suggestions))
}

// isBetter implements the lexicographic best-attempt ordering: passed
// attempts always beat failed ones, then higher displayed-valid ratio,
// lower dominant-topic ratio, more unique topics, lower dominant-file
// ratio, more unique files, more final suggestions, lower cost, and
// finally lower latency.
func isBetter(a, b core.SuggestionGateSnapshot) bool {
	if a.Passed != b.Passed {
		return a.Passed
	}
	if a.DisplayedValidRatio != b.DisplayedValidRatio {
		return a.DisplayedValidRatio > b.DisplayedValidRatio
	}
	if a.DominantTopicRatio != b.DominantTopicRatio {
		return a.DominantTopicRatio < b.DominantTopicRatio
	}
	if a.UniqueTopicCount != b.UniqueTopicCount {
		return a.UniqueTopicCount > b.UniqueTopicCount
	}
	if a.DominantFileRatio != b.DominantFileRatio {
		return a.DominantFileRatio < b.DominantFileRatio
	}
	if a.UniqueFileCount != b.UniqueFileCount {
		return a.UniqueFileCount > b.UniqueFileCount
	}
	if a.FinalCount != b.FinalCount {
		return a.FinalCount > b.FinalCount
	}
	if a.AttemptCostUSD != b.AttemptCostUSD {
		return a.AttemptCostUSD < b.AttemptCostUSD
	}
	return a.AttemptMs < b.AttemptMs
}

// nextTier escalates Speed to Smart when the failed attempt shows a
// diversity failure or when at least half of the provisional batch was
// disposed of by deterministic auto-validation rather than genuine LLM
// judgment (a sign the speed-tier generations were too shallow to need
// real validation), per spec.md §4.10 step 5. Smart never escalates
// further; it simply retries.
func nextTier(current core.ModelTier, outcome attemptOutcome, _ core.GateConfig) core.ModelTier {
	if current == core.ModelTierSmart {
		return core.ModelTierSmart
	}

	diversityFailed := false
	for _, reason := range outcome.snapshot.FailReasons {
		switch reason {
		case "dominant_topic_ratio_above_maximum", "unique_topic_count_below_minimum",
			"dominant_file_ratio_above_maximum", "unique_file_count_below_minimum":
			diversityFailed = true
		}
	}

	provisionalCount := outcome.diag.MappedCount
	autoValidatedHeavy := provisionalCount > 0 && outcome.diag.DeterministicAutoValidated*2 >= provisionalCount

	if diversityFailed || autoValidatedHeavy {
		return core.ModelTierSmart
	}
	return core.ModelTierSpeed
}
