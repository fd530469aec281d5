// Package refine implements the Refinement Loop (C8): it drives
// validation over the orchestrator's provisional batch, then regenerates
// on unused evidence across hard- and stretch-target phases under a
// validation deadline shared with the attempt's overall wall-clock budget.
package refine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
	"github.com/evidentgo/suggestengine/internal/suggest/llmgateway"
	"github.com/evidentgo/suggestengine/internal/suggest/mapper"
	"github.com/evidentgo/suggestengine/internal/suggest/orchestrator"
	"github.com/evidentgo/suggestengine/internal/suggest/validate"
)

// Request configures one refinement run over a single evidence pack.
type Request struct {
	Pack                   []core.EvidenceItem
	Provisional            []core.Suggestion
	GenSystemPrompt        string
	ValidationSystemPrompt string
	Memory                 string
	FileSummaries          map[string]string
	ModelTier              core.ModelTier
	// RemainingBalancedBudget is how much of the attempt's BALANCED_BUDGET
	// wall clock is left when Run is invoked (the orchestrator wave already
	// spent some of it). Both the validation deadline and the regeneration
	// loop's wall-clock check are derived from it.
	RemainingBalancedBudget time.Duration
}

// Result is the refinement loop's output: the final validated list
// (truncated to FINAL_TARGET_MAX) plus the usage it spent. Rejected
// carries every suggestion that reached a terminal Rejected state across
// the whole run, for C11 audit logging -- it is not otherwise surfaced.
type Result struct {
	Validated []core.Suggestion
	Rejected  []core.Suggestion
	Usage     core.Usage
}

// Run validates the provisional batch, then regenerates against unused
// (and, if scarce, previously-rejected-but-unblocked) evidence until the
// stretch target is reached or the budget runs out.
func Run(ctx context.Context, gw *llmgateway.Gateway, vclient *validate.Client, req Request, diag *core.SuggestionDiagnostics, logger *slog.Logger) (Result, error) {
	now := time.Now()
	wallDeadline := now.Add(req.RemainingBalancedBudget)
	validationDeadline := now.Add(core.ValidationRunDeadline)
	if req.RemainingBalancedBudget < core.ValidationRunDeadline {
		validationDeadline = now.Add(req.RemainingBalancedBudget)
	}

	var usage core.Usage
	var validated []core.Suggestion
	var rejected []core.Suggestion
	validatedEvidenceIDs := make(map[int]bool)
	rejectedAllIDs := make(map[int]bool)
	blockedIDs := make(map[int]bool)

	absorb := func(res validate.ChunkResult) {
		usage.Add(res.Usage)
		for _, s := range res.Suggestions {
			switch s.ValidationState {
			case core.ValidationValidated:
				validated = append(validated, s)
				validatedEvidenceIDs[s.PrimaryEvidenceID()] = true
			case core.ValidationRejected:
				id := s.PrimaryEvidenceID()
				rejectedAllIDs[id] = true
				rejected = append(rejected, s)
				if res.BlockedEvidenceIDs[id] {
					blockedIDs[id] = true
				}
			}
		}
	}

	if len(req.Provisional) > 0 {
		res := validate.RunChunk(ctx, vclient, req.ValidationSystemPrompt, req.Provisional, req.ModelTier, validatedEvidenceIDs, validationDeadline, diag, logger)
		absorb(res)
	}

	hardTarget := minInt(core.ValidatedHardTarget, len(req.Pack), core.FinalTargetMax)
	stretchTarget := minInt(core.ValidatedStretchTarget, len(req.Pack), core.FinalTargetMax)

	hardPhaseAttempts := 0
	stretchPhaseAttempts := 0
	relaxedUsed := false

	for len(validated) < stretchTarget {
		if time.Now().After(validationDeadline) {
			break
		}
		remainingValidation := time.Until(validationDeadline)
		if remainingValidation < core.ValidationMinRemainingBudget {
			break
		}
		if !time.Now().Before(wallDeadline) {
			break
		}

		var target int
		switch {
		case len(validated) < hardTarget && hardPhaseAttempts < core.RefinementHardPhaseMaxAttempts:
			target = hardTarget
			hardPhaseAttempts++
		case len(validated) < stretchTarget && stretchPhaseAttempts < core.RefinementStretchPhaseMaxAttempts &&
			usage.CostUSD < core.StretchPhaseMaxCostUSD && remainingValidation >= core.StretchPhaseMinRemainingValidation:
			target = stretchTarget
			stretchPhaseAttempts++
		default:
			break
		}
		if target == 0 {
			break
		}

		strict := buildRemainingPack(req.Pack, validatedEvidenceIDs, rejectedAllIDs)
		remaining := strict
		if len(strict) < core.RegenStrictMinPackSize && !relaxedUsed {
			relaxedUsed = true
			remaining = buildRemainingPack(req.Pack, validatedEvidenceIDs, blockedIDs)
		}
		if len(remaining) == 0 {
			break
		}

		localPack, localToOriginal := renumberPack(remaining)

		needed := target - len(validated)
		requestMin := clampInt(2*needed, 4, 12)
		requestMax := clampInt(3*needed, 4, 14)
		if requestMax < requestMin {
			requestMax = requestMin
		}

		callTimeout := core.RegenRequestTimeout
		if left := time.Until(wallDeadline); left < callTimeout {
			callTimeout = left
		}
		if callTimeout <= 0 {
			break
		}

		prompt := orchestrator.BuildUserPrompt(localPack, req.Memory, req.FileSummaries,
			fmt.Sprintf("Return %d to %d additional grounded suggestions, each with exactly one evidence_id.", requestMin, requestMax), nil)

		res, err := gw.CallWithPrimaryThenFallback(ctx, llmgateway.Request{
			System:     req.GenSystemPrompt,
			User:       prompt,
			ModelTier:  req.ModelTier,
			SchemaName: "grounded_suggestions",
			Schema:     mapper.GroundedSuggestionSchema(len(localPack)),
			MaxTokens:  core.RegenRequestMaxTokens,
			Timeout:    callTimeout,
		})
		if err != nil {
			logger.Warn("regeneration call failed", "error", err)
			continue
		}

		var gen mapper.RawGeneration
		if err := json.Unmarshal(res.Data, &gen); err != nil {
			logger.Warn("regeneration response did not decode", "error", err)
			continue
		}
		usage.Add(res.Usage)

		mapped, missing := mapper.MapRawItemsToGrounded(gen.Suggestions, localPack)
		diag.RawCount += len(gen.Suggestions)
		diag.MissingOrInvalidMapped += missing

		remapped := remapToOriginal(mapped, localToOriginal, req.Pack)
		remapped = dedupeByEvidenceID(remapped)
		if len(remapped) == 0 {
			continue
		}

		chunkRes := validate.RunChunk(ctx, vclient, req.ValidationSystemPrompt, remapped, req.ModelTier, validatedEvidenceIDs, validationDeadline, diag, logger)
		absorb(chunkRes)
	}

	if len(validated) > core.FinalTargetMax {
		validated = validated[:core.FinalTargetMax]
	}

	return Result{Validated: validated, Rejected: rejected, Usage: usage}, nil
}

func minInt(vs ...int) int {
	m := vs[0]
	for _, v := range vs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// buildRemainingPack returns the subset of pack whose ids are neither in
// used nor in exclude, preserving pack order.
func buildRemainingPack(pack []core.EvidenceItem, used, exclude map[int]bool) []core.EvidenceItem {
	out := make([]core.EvidenceItem, 0, len(pack))
	for _, item := range pack {
		if used[item.ID] || exclude[item.ID] {
			continue
		}
		out = append(out, item)
	}
	return out
}

// renumberPack assigns dense local ids 0..N-1 in input order and returns
// the local->original id map needed to remap suggestions back.
func renumberPack(items []core.EvidenceItem) ([]core.EvidenceItem, map[int]int) {
	local := make([]core.EvidenceItem, len(items))
	localToOriginal := make(map[int]int, len(items))
	for i, item := range items {
		original := item
		localID := i
		localToOriginal[localID] = item.ID
		original.ID = localID
		local[i] = original
	}
	return local, localToOriginal
}

// remapToOriginal rewrites each mapped suggestion's evidence ref, file,
// and line from a local renumbered pack back to the original pack's ids.
// Suggestions whose local id has no entry in localToOriginal are dropped.
func remapToOriginal(mapped []mapper.Mapped, localToOriginal map[int]int, originalPack []core.EvidenceItem) []core.Suggestion {
	byID := make(map[int]core.EvidenceItem, len(originalPack))
	for _, item := range originalPack {
		byID[item.ID] = item
	}

	out := make([]core.Suggestion, 0, len(mapped))
	for _, m := range mapped {
		originalID, ok := localToOriginal[m.EvidenceID]
		if !ok {
			continue
		}
		item, ok := byID[originalID]
		if !ok {
			continue
		}
		s := m.Suggestion
		s.File = item.File
		s.Line = item.Line
		s.Evidence = item.Snippet
		s.EvidenceRefs = []core.EvidenceRef{{SnippetID: item.ID, File: item.File, Line: item.Line}}
		out = append(out, s)
	}
	return out
}

// dedupeByEvidenceID keeps at most one suggestion per evidence id
// (first wins), matching the mapper's wave-level dedupe behavior.
func dedupeByEvidenceID(suggestions []core.Suggestion) []core.Suggestion {
	seen := make(map[int]bool, len(suggestions))
	out := make([]core.Suggestion, 0, len(suggestions))
	for _, s := range suggestions {
		id := s.PrimaryEvidenceID()
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, s)
	}
	return out
}
