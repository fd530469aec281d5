package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
	"github.com/evidentgo/suggestengine/internal/suggest/llmgateway"
	"github.com/evidentgo/suggestengine/internal/suggest/mapper"
)

var (
	// ErrNoPackItems means BuildPack returned an empty evidence pack: there
	// is nothing grounded to generate against.
	ErrNoPackItems = errors.New("orchestrator: evidence pack is empty")
	// ErrAllMappingFailed means every generation call either transport-failed
	// or returned content that mapped to zero suggestions.
	ErrAllMappingFailed = errors.New("orchestrator: no suggestion could be generated or mapped")
)

// Request configures one generation run over a single evidence pack.
type Request struct {
	SystemPrompt  string
	Pack          []core.EvidenceItem
	Memory        string
	FileSummaries map[string]string
	ModelTier     core.ModelTier
}

// Result is the orchestrator's output: the deduped, capped mapped
// suggestions plus usage and diagnostics deltas.
type Result struct {
	Mapped []mapper.Mapped
	Usage  core.Usage
}

// Run executes the primary wave, top-up loop, and mapping-rescue call
// against gw, bounded by core.BalancedBudget, and returns at most
// core.ProvisionalMax deduped suggestions. It records wave/call counts
// onto diag as it goes.
func Run(ctx context.Context, gw *llmgateway.Gateway, req Request, diag *core.SuggestionDiagnostics, logger *slog.Logger) (Result, error) {
	if len(req.Pack) == 0 {
		return Result{}, ErrNoPackItems
	}

	deadline := time.Now().Add(core.BalancedBudget)
	var usage core.Usage
	var allMapped []mapper.Mapped
	var anySucceeded bool
	var lastErr error

	// Primary wave.
	diag.Waves++
	primaryPrompt := BuildUserPrompt(req.Pack, req.Memory, req.FileSummaries,
		fmt.Sprintf("Return between %d and %d grounded suggestions.", core.PrimaryRequestMin, core.PrimaryRequestMax), nil)
	mapped, _, primaryUsage, err := callAndMapWithUsage(ctx, gw, req, primaryPrompt, core.PrimaryRequestMaxTokens, core.PrimaryRequestTimeout, deadline, false, diag)
	if err != nil {
		lastErr = err
		logger.Warn("primary generation wave failed", "error", err)
	} else {
		anySucceeded = true
		usage.Add(primaryUsage)
		allMapped = append(allMapped, mapped...)
	}

	// Mapping rescue runs before the top-up loop when the primary wave
	// produced content but nothing mapped: topping up against zero
	// mapped ids would just repeat the same unrestricted request.
	if diag.RawCount > 0 && len(allMapped) == 0 && time.Until(deadline) >= core.RegenRequestTimeout {
		diag.MappingRescueCalls++
		prompt := BuildUserPrompt(req.Pack, req.Memory, req.FileSummaries,
			"Return 10 to 20 suggestions, each with exactly one evidence_id from the pack above.", nil)
		rescueMapped, _, rescueUsage, err := callAndMapWithUsage(ctx, gw, req, prompt, core.RegenRequestMaxTokens, core.RegenRequestTimeout, deadline, false, diag)
		if err != nil {
			lastErr = err
			logger.Warn("mapping rescue call failed", "error", err)
		} else {
			anySucceeded = true
			usage.Add(rescueUsage)
			allMapped = append(allMapped, rescueMapped...)
		}
	}

	// Top-up loop.
	topupCalls := 0
	for len(allMapped) > 0 &&
		mapper.GroundedMappedCount(allMapped) < core.ValidatedHardTarget &&
		topupCalls < core.GenerationTopupMaxCalls &&
		time.Until(deadline) >= core.GenerationTopupTimeout {

		used := make(map[int]bool)
		for _, m := range allMapped {
			used[m.EvidenceID] = true
		}
		unused := unusedEvidenceIDs(req.Pack, used, core.SourcePatternMax)

		deficit := core.ValidatedHardTarget - mapper.GroundedMappedCount(allMapped)
		requestCount := deficit + 3
		if requestCount < 4 {
			requestCount = 4
		}
		if requestCount > 10 {
			requestCount = 10
		}

		prompt := BuildUserPrompt(req.Pack, req.Memory, req.FileSummaries,
			fmt.Sprintf("Return %d additional grounded suggestions not already covered.", requestCount), unused)

		topupMapped, _, topupUsage, err := callAndMapWithUsage(ctx, gw, req, prompt, core.TopupRequestMaxTokens, core.GenerationTopupTimeout, deadline, true, diag)
		topupCalls++
		diag.TopupCalls++
		if err != nil {
			lastErr = err
			logger.Warn("topup generation call failed", "error", err, "call", topupCalls)
			continue
		}
		anySucceeded = true
		usage.Add(topupUsage)

		before := mapper.GroundedMappedCount(allMapped)
		allMapped = append(allMapped, topupMapped...)
		if mapper.GroundedMappedCount(allMapped) == before {
			break
		}
	}

	capped := mapper.DedupeAndCap(allMapped, core.ProvisionalMax)
	diag.MappedCount = len(capped)

	if !anySucceeded && len(capped) == 0 {
		if lastErr != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrAllMappingFailed, truncateErr(lastErr))
		}
		return Result{}, ErrAllMappingFailed
	}
	if len(capped) == 0 {
		return Result{}, ErrAllMappingFailed
	}

	return Result{Mapped: capped, Usage: usage}, nil
}

func truncateErr(err error) string {
	s := err.Error()
	const max = 700
	if len(s) > max {
		return s[:max]
	}
	return s
}

// callAndMapWithUsage is a free function (not a closure) so it can be
// unit tested independently of Run's loop bookkeeping.
func callAndMapWithUsage(ctx context.Context, gw *llmgateway.Gateway, req Request, user string, maxTokens int, timeout time.Duration, deadline time.Time, limitedOnly bool, diag *core.SuggestionDiagnostics) ([]mapper.Mapped, int, core.Usage, error) {
	remaining := time.Until(deadline)
	if remaining < timeout {
		timeout = remaining
	}
	if timeout <= 0 {
		return nil, 0, core.Usage{}, fmt.Errorf("%w: budget exhausted", llmgateway.ErrTransport)
	}

	gwReq := llmgateway.Request{
		System:     req.SystemPrompt,
		User:       user,
		ModelTier:  req.ModelTier,
		SchemaName: "grounded_suggestions",
		Schema:     mapper.GroundedSuggestionSchema(len(req.Pack)),
		MaxTokens:  maxTokens,
		Timeout:    timeout,
	}

	var res llmgateway.Result
	var err error
	if limitedOnly {
		res, err = gw.CallLimited(ctx, gwReq)
	} else {
		res, err = gw.CallWithPrimaryThenFallback(ctx, gwReq)
	}
	if err != nil {
		return nil, 0, core.Usage{}, err
	}

	var gen mapper.RawGeneration
	if err := json.Unmarshal(res.Data, &gen); err != nil {
		return nil, 0, core.Usage{}, fmt.Errorf("%w: %v", llmgateway.ErrDecode, err)
	}

	mapped, missing := mapper.MapRawItemsToGrounded(gen.Suggestions, req.Pack)
	diag.RawCount += len(gen.Suggestions)
	diag.MissingOrInvalidMapped += missing
	return mapped, len(gen.Suggestions), res.Usage, nil
}
