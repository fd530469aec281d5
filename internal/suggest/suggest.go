// Package suggest is the evidence-grounded code suggestion engine's
// public entry point (spec.md §6). It composes the Evidence Pack
// Builder (evidence), Generation Orchestrator (orchestrator), Refinement
// Loop (refine), Post-processor (postprocess), and Quality Gate (gate)
// into the three operations callers actually invoke; everything else in
// this module tree is an implementation detail reached only through
// these functions.
package suggest

import (
	"context"
	"log/slog"

	"github.com/evidentgo/suggestengine/internal/suggest/audit"
	"github.com/evidentgo/suggestengine/internal/suggest/core"
	"github.com/evidentgo/suggestengine/internal/suggest/evidence"
	"github.com/evidentgo/suggestengine/internal/suggest/gate"
	"github.com/evidentgo/suggestengine/internal/suggest/llmgateway"
	"github.com/evidentgo/suggestengine/internal/suggest/orchestrator"
	"github.com/evidentgo/suggestengine/internal/suggest/postprocess"
	"github.com/evidentgo/suggestengine/internal/suggest/refine"
	"github.com/evidentgo/suggestengine/internal/suggest/validate"
)

// Prompts bundles the two fixed system prompts spec.md §6 says this
// engine consumes as opaque strings from the collaborator layer.
type Prompts struct {
	Generation string
	Validation string
}

// AnalyzeCodebaseFastGrounded runs the orchestrator (and its mapping)
// alone: evidence selection plus the primary wave, top-ups, and mapping
// rescue, with no validation or post-processing. This is the "fast"
// surface spec.md §6 describes -- useful for previews and for driving
// the refinement loop's Provisional input from outside this package.
func AnalyzeCodebaseFastGrounded(
	ctx context.Context,
	gw *llmgateway.Gateway,
	repoRoot string,
	index core.Index,
	workCtx core.WorkContext,
	prompts Prompts,
	memory string,
	summaries map[string]string,
	generationModel core.ModelTier,
	logger *slog.Logger,
) ([]core.Suggestion, core.Usage, *core.SuggestionDiagnostics, error) {
	pack, _, err := evidence.BuildPack(repoRoot, index, workCtx)
	if err != nil {
		return nil, core.Usage{}, nil, err
	}

	diag := core.NewSuggestionDiagnostics()
	oRes, err := orchestrator.Run(ctx, gw, orchestrator.Request{
		SystemPrompt:  prompts.Generation,
		Pack:          pack,
		Memory:        memory,
		FileSummaries: summaries,
		ModelTier:     generationModel,
	}, diag, logger)
	if err != nil {
		return nil, core.Usage{}, diag, err
	}

	suggestions := make([]core.Suggestion, len(oRes.Mapped))
	for i, m := range oRes.Mapped {
		suggestions[i] = m.Suggestion
	}
	return suggestions, oRes.Usage, diag, nil
}

// RefineGroundedSuggestions drives validation over an already-mapped
// provisional batch, then regenerates on unused evidence up to the
// stretch target under budget, and finally runs post-processing
// (dedupe, readiness filtering, smart rewrites, file-balance capping,
// diversity metrics). It does not run the gate -- callers that want
// gating with bounded retries should use RunFastGroundedWithGate instead.
func RefineGroundedSuggestions(
	ctx context.Context,
	gw *llmgateway.Gateway,
	repoRoot string,
	index core.Index,
	workCtx core.WorkContext,
	prompts Prompts,
	memory string,
	summaries map[string]string,
	generationModel core.ModelTier,
	validationModel core.ModelTier,
	provisional []core.Suggestion,
	minReadiness float64,
	maxSmartRewrites int,
	diag *core.SuggestionDiagnostics,
	logger *slog.Logger,
) ([]core.Suggestion, core.Usage, *core.SuggestionDiagnostics, error) {
	pack, _, err := evidence.BuildPack(repoRoot, index, workCtx)
	if err != nil {
		return nil, core.Usage{}, diag, err
	}
	if diag == nil {
		diag = core.NewSuggestionDiagnostics()
	}

	vclient := &validate.Client{Gateway: gw}
	refRes, err := refine.Run(ctx, gw, vclient, refine.Request{
		Pack:                    pack,
		Provisional:             provisional,
		GenSystemPrompt:         prompts.Generation,
		ValidationSystemPrompt:  prompts.Validation,
		Memory:                  memory,
		FileSummaries:           summaries,
		ModelTier:               validationModel,
		RemainingBalancedBudget: core.BalancedBudget,
	}, diag, logger)
	if err != nil {
		return nil, core.Usage{}, diag, err
	}

	final, ppUsage := postprocess.Run(ctx, vclient, prompts.Validation, validationModel, refRes.Validated,
		minReadiness, maxSmartRewrites, diag, logger)

	var usage core.Usage
	usage.Add(refRes.Usage)
	usage.Add(ppUsage)

	return final, usage, diag, nil
}

// GatedRunOptions configures RunFastGroundedWithGate.
type GatedRunOptions struct {
	Prompts     Prompts
	Memory      string
	Summaries   map[string]string
	GateConfig  core.GateConfig
	RunID       string
	AuditSink   audit.Sink
	InitialTier core.ModelTier
	OnAttempt   func(gate.ProgressEvent)
}

// RunFastGroundedWithGate is the full pipeline end to end: build the
// evidence pack, then drive the Quality Gate & Retry Driver (C10) through
// up to GateConfig.MaxAttempts attempts of orchestrator -> refine ->
// post-process, auditing each attempt's rejected suggestions and its
// post-processed final list, and returning the best-scoring attempt.
func RunFastGroundedWithGate(
	ctx context.Context,
	gw *llmgateway.Gateway,
	repoRoot string,
	index core.Index,
	workCtx core.WorkContext,
	opts GatedRunOptions,
	logger *slog.Logger,
) (core.GatedRunResult, error) {
	pack, _, err := evidence.BuildPack(repoRoot, index, workCtx)
	if err != nil {
		return core.GatedRunResult{}, err
	}

	vclient := &validate.Client{Gateway: gw}
	req := gate.Request{
		Pack:                   pack,
		GenSystemPrompt:        opts.Prompts.Generation,
		ValidationSystemPrompt: opts.Prompts.Validation,
		Memory:                 opts.Memory,
		FileSummaries:          opts.Summaries,
		Config:                opts.GateConfig,
		InitialModelTier:       opts.InitialTier,
		RunID:                  opts.RunID,
		AuditSink:              opts.AuditSink,
	}

	if opts.OnAttempt != nil {
		return gate.RunWithProgress(ctx, gw, vclient, req, logger, opts.OnAttempt)
	}
	return gate.Run(ctx, gw, vclient, req, logger)
}
