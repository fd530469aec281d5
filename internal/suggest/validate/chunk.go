package validate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
	"github.com/evidentgo/suggestengine/internal/suggest/mapper"
	"github.com/evidentgo/suggestengine/internal/suggest/prevalidate"
)

// ChunkResult is the outcome of validating one chunk of suggestions: the
// same suggestions, in the same order, with validation state/class/reason
// filled in.
type ChunkResult struct {
	Suggestions []core.Suggestion
	Usage       core.Usage
	BlockedEvidenceIDs map[int]bool
}

var overclaimReasonMarkers = regexp.MustCompile(`(?i)(assumption|beyond evidence|impact|ui behavior|business impact)`)

// RunChunk applies the pre-validator to every suggestion, then LLM-validates
// whatever it deferred (batched first, falling back to bounded-concurrency
// per-item calls), retries transport failures once, and runs the inline
// overclaim-rewrite loop on non-transport rejections whose reason text
// suggests the claim overreached the evidence.
func RunChunk(ctx context.Context, client *Client, systemPrompt string, suggestions []core.Suggestion, tier core.ModelTier, validatedEvidenceIDs map[int]bool, deadline time.Time, diag *core.SuggestionDiagnostics, logger *slog.Logger) ChunkResult {
	out := make([]core.Suggestion, len(suggestions))
	copy(out, suggestions)

	chunkCounts := make(map[int]int, len(out))
	for _, s := range out {
		chunkCounts[s.PrimaryEvidenceID()]++
	}
	state := prevalidate.ChunkState{ValidatedEvidenceIDs: validatedEvidenceIDs, ChunkEvidenceCounts: chunkCounts}

	blocked := make(map[int]bool)
	var pending []int
	var usage core.Usage

	for i := range out {
		d := prevalidate.Evaluate(out[i], state)
		switch d.Outcome {
		case prevalidate.RejectPrevalidation:
			out[i].ValidationState = core.ValidationRejected
			out[i].RejectClass = core.RejectPrevalidation
			out[i].RejectReason = d.Reason
			diag.RejectionHistogram["prevalidation"]++
			if d.BlockEvidenceFromRegen {
				blocked[out[i].PrimaryEvidenceID()] = true
			}
		case prevalidate.AutoValidate:
			out[i].ValidationState = core.ValidationValidated
			out[i].RejectReason = ""
			diag.DeterministicAutoValidated++
			diag.RejectionHistogram["deterministic_auto_validated"]++
		default:
			pending = append(pending, i)
		}
	}

	if len(pending) > 0 {
		states, classes, reasons, batchUsage, remaining := validateBatchThenFallback(ctx, client, systemPrompt, out, pending, tier, deadline, logger)
		usage.Add(batchUsage)
		for j, idx := range pending {
			out[idx].ValidationState = states[j]
			out[idx].RejectClass = classes[j]
			out[idx].RejectReason = reasons[j]
		}
		pending = remaining
	}

	retryUsage := retryTransportFailures(ctx, client, systemPrompt, out, tier, deadline, logger)
	usage.Add(retryUsage)

	rewriteUsage := runOverclaimLoop(ctx, client, systemPrompt, out, tier, deadline, diag, logger)
	usage.Add(rewriteUsage)

	for i := range out {
		switch out[i].ValidationState {
		case core.ValidationValidated:
			diag.ValidatedCount++
		case core.ValidationRejected:
			diag.RejectedCount++
			// Prevalidation rejections already incremented the
			// "prevalidation" bucket above; counting them again here
			// under RejectClass ("Prevalidation") would double-count
			// them in RejectionHistogram and break the invariant that
			// bucket sums equal prevalidation + validator_* +
			// deterministic_auto_validated (spec.md Testable Property 9).
			if out[i].RejectClass != core.RejectPrevalidation {
				diag.RejectionHistogram[string(out[i].RejectClass)]++
			}
		}
	}

	return ChunkResult{Suggestions: out, Usage: usage, BlockedEvidenceIDs: blocked}
}

// validateBatchThenFallback tries one batched call; on failure it falls
// back to bounded-concurrency per-item calls (VALIDATION_CONCURRENCY = 3).
// It returns per-pending-index states/classes/reasons; its last return
// value is always nil, since Transport failures are retried afterwards
// by retryTransportFailures.
func validateBatchThenFallback(ctx context.Context, client *Client, systemPrompt string, all []core.Suggestion, pending []int, tier core.ModelTier, deadline time.Time, logger *slog.Logger) ([]core.ValidationState, []core.ValidationRejectClass, []string, core.Usage, []int) {
	n := len(pending)
	states := make([]core.ValidationState, n)
	classes := make([]core.ValidationRejectClass, n)
	reasons := make([]string, n)

	if n > 1 {
		batch := make([]core.Suggestion, n)
		for j, idx := range pending {
			batch[j] = all[idx]
		}
		perCall := core.ValidatorTimeout
		remaining := time.Until(deadline)
		timeout := perCall + core.ValidatorBatchTimeoutBuf
		if remaining < timeout {
			timeout = remaining
		}
		if timeout > 0 {
			bStates, bClasses, bReasons, usage, err := client.ValidateBatch(ctx, systemPrompt, batch, tier, timeout)
			if err == nil {
				return bStates, bClasses, bReasons, usage, nil
			}
			logger.Warn("batched validation call failed, falling back to per-item", "error", err)
		}
	}

	var usage core.Usage
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, core.ValidationConcurrency)

	for j, idx := range pending {
		j, idx := j, idx
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return nil
			}

			remaining := time.Until(deadline)
			if remaining <= 0 {
				mu.Lock()
				states[j], classes[j], reasons[j] = core.ValidationRejected, core.RejectTransport, "Validation failed: deadline exceeded"
				mu.Unlock()
				return nil
			}
			timeout := core.ValidatorTimeout
			if remaining < timeout {
				timeout = remaining
			}

			s, c, r, u, err := client.ValidateOne(gctx, systemPrompt, all[idx], tier, core.ValidatorMaxTokens, timeout, true)
			mu.Lock()
			defer mu.Unlock()
			usage.Add(u)
			if err != nil {
				states[j], classes[j], reasons[j] = core.ValidationRejected, core.RejectTransport, "Validation failed: transport error"
				return nil
			}
			states[j], classes[j], reasons[j] = s, c, r
			return nil
		})
	}
	_ = g.Wait()

	return states, classes, reasons, usage, nil
}

// retryTransportFailures requeues Transport-rejected suggestions once,
// sequentially (VALIDATION_RETRY_CONCURRENCY = 1), when enough validation
// budget remains.
func retryTransportFailures(ctx context.Context, client *Client, systemPrompt string, out []core.Suggestion, tier core.ModelTier, deadline time.Time, logger *slog.Logger) core.Usage {
	var usage core.Usage
	for i := range out {
		if out[i].ValidationState != core.ValidationRejected || out[i].RejectClass != core.RejectTransport {
			continue
		}
		remaining := time.Until(deadline)
		if remaining < core.ValidationRetryMinRemainingBudget {
			continue
		}
		timeout := core.ValidatorRetryTimeout
		if remaining < timeout {
			timeout = remaining
		}
		s, c, r, u, err := client.ValidateOne(ctx, systemPrompt, out[i], tier, core.ValidatorMaxTokens, timeout, true)
		usage.Add(u)
		if err != nil {
			logger.Warn("validation transport retry failed", "error", err, "suggestion", out[i].ID)
			continue
		}
		out[i].ValidationState = s
		out[i].RejectClass = c
		out[i].RejectReason = r
	}
	return usage
}

// runOverclaimLoop rewrites and re-validates non-transport rejections
// whose reason text suggests the claim overreached the evidence.
func runOverclaimLoop(ctx context.Context, client *Client, systemPrompt string, out []core.Suggestion, tier core.ModelTier, deadline time.Time, diag *core.SuggestionDiagnostics, logger *slog.Logger) core.Usage {
	var usage core.Usage
	for i := range out {
		if out[i].ValidationState != core.ValidationRejected || out[i].RejectClass == core.RejectTransport {
			continue
		}
		if !overclaimReasonMarkers.MatchString(out[i].RejectReason) {
			continue
		}
		remaining := time.Until(deadline)
		if remaining < core.OverclaimRewriteTimeout+core.OverclaimRevalidateTimeout {
			continue
		}

		summary, detail, rewriteUsage, err := client.RewriteOverclaim(ctx, systemPrompt, out[i], tier)
		usage.Add(rewriteUsage)
		if err != nil {
			logger.Warn("overclaim rewrite call failed", "error", err, "suggestion", out[i].ID)
			continue
		}

		scrubbed := mapper.ScrubUserFacingSpeculation(summary)
		normalized := mapper.NormalizeGroundedSummary(scrubbed, detail, out[i].Line)
		if normalized == "" {
			continue
		}

		candidate := out[i]
		candidate.Summary = normalized
		candidate.Detail = strings.TrimSpace(detail)

		s, c, r, revalUsage, err := client.ValidateOne(ctx, systemPrompt, candidate, tier, core.OverclaimRevalidateMaxTokens, core.OverclaimRevalidateTimeout, true)
		usage.Add(revalUsage)
		if err != nil {
			logger.Warn("overclaim revalidation call failed", "error", err, "suggestion", out[i].ID)
			continue
		}

		if s == core.ValidationValidated {
			candidate.ValidationState = core.ValidationValidated
			candidate.RejectClass = ""
			candidate.RejectReason = ""
			out[i] = candidate
			diag.OverclaimRewriteValidated++
		} else {
			candidate.ValidationState = s
			candidate.RejectClass = c
			candidate.RejectReason = fmt.Sprintf("overclaim rewrite rejected: %s", r)
			out[i] = candidate
		}
	}
	return usage
}
