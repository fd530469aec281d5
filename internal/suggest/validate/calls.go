package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
	"github.com/evidentgo/suggestengine/internal/suggest/llmgateway"
	"github.com/evidentgo/suggestengine/internal/suggest/mapper"
)

// Client wraps the structured LLM gateway with the validator's specific
// schemas, token/timeout budgets, and response parsing.
type Client struct {
	Gateway *llmgateway.Gateway
}

type singleValidationResponse struct {
	Validation string `json:"validation"`
	Reason     string `json:"reason"`
}

type batchValidationEntry struct {
	LocalIndex int    `json:"local_index"`
	Validation string `json:"validation"`
	Reason     string `json:"reason"`
}

type batchValidationResponse struct {
	Validations []batchValidationEntry `json:"validations"`
}

func validatorUserPrompt(s core.Suggestion) string {
	refs := ""
	for i, r := range s.EvidenceRefs {
		if i >= 3 {
			break
		}
		refs += fmt.Sprintf("[%d] %s:%d\n", r.SnippetID, r.File, r.Line)
	}
	return fmt.Sprintf("Summary: %s\nDetail: %s\nEvidence:\n%s\nSnippet:\n%s", s.Summary, s.Detail, refs, s.Evidence)
}

// ValidateOne performs the per-suggestion validator call.
func (c *Client) ValidateOne(ctx context.Context, systemPrompt string, s core.Suggestion, tier core.ModelTier, maxTokens int, timeout time.Duration, isValidatorCall bool) (core.ValidationState, core.ValidationRejectClass, string, core.Usage, error) {
	res, err := c.Gateway.CallWithPrimaryThenFallback(ctx, llmgateway.Request{
		System:          systemPrompt,
		User:            validatorUserPrompt(s),
		ModelTier:       tier,
		SchemaName:      "validation",
		Schema:          mapper.ValidationSchema(),
		MaxTokens:       maxTokens,
		Timeout:         timeout,
		IsValidatorCall: isValidatorCall,
	})
	if err != nil {
		return core.ValidationRejected, core.RejectTransport, "transport failure during validation", core.Usage{}, err
	}

	var parsed singleValidationResponse
	if err := json.Unmarshal(res.Data, &parsed); err != nil {
		return core.ValidationRejected, core.RejectTransport, "transport failure during validation", res.Usage, err
	}

	state, class := ClassifyState(parsed.Validation)
	state, class = ReconcileWithReason(state, class, parsed.Reason)
	return state, class, parsed.Reason, res.Usage, nil
}

// batchMaxTokens clamps 90*n to [90, 320] per spec.md §4.6.
func batchMaxTokens(n int) int {
	t := 90 * n
	if t < 90 {
		return 90
	}
	if t > 320 {
		return 320
	}
	return t
}

// ValidateBatch performs a single batched validator call across
// suggestions, returning one (state, class, reason) per input index in
// order. Missing entries are materialized as Rejected(Transport).
func (c *Client) ValidateBatch(ctx context.Context, systemPrompt string, suggestions []core.Suggestion, tier core.ModelTier, timeout time.Duration) ([]core.ValidationState, []core.ValidationRejectClass, []string, core.Usage, error) {
	n := len(suggestions)
	user := "Validate each suggestion below; respond with one entry per local_index.\n\n"
	for i, s := range suggestions {
		user += fmt.Sprintf("=== local_index %d ===\n%s\n\n", i, validatorUserPrompt(s))
	}

	res, err := c.Gateway.CallWithPrimaryThenFallback(ctx, llmgateway.Request{
		System:     systemPrompt,
		User:       user,
		ModelTier:  tier,
		SchemaName: "batch_validation",
		Schema:     mapper.BatchValidationSchema(),
		MaxTokens:  batchMaxTokens(n),
		Timeout:    timeout,
	})
	if err != nil {
		return nil, nil, nil, core.Usage{}, err
	}

	var parsed batchValidationResponse
	if err := json.Unmarshal(res.Data, &parsed); err != nil {
		return nil, nil, nil, res.Usage, err
	}

	states := make([]core.ValidationState, n)
	classes := make([]core.ValidationRejectClass, n)
	reasons := make([]string, n)
	for i := range states {
		states[i] = core.ValidationRejected
		classes[i] = core.RejectTransport
		reasons[i] = "Validation failed: missing batch result"
	}
	for _, entry := range parsed.Validations {
		if entry.LocalIndex < 0 || entry.LocalIndex >= n {
			continue
		}
		state, class := ClassifyState(entry.Validation)
		state, class = ReconcileWithReason(state, class, entry.Reason)
		states[entry.LocalIndex] = state
		classes[entry.LocalIndex] = class
		reasons[entry.LocalIndex] = entry.Reason
	}
	return states, classes, reasons, res.Usage, nil
}

// RewriteOverclaim asks the rewrite model for a grounded summary/detail
// pair stripped of speculative user-impact wording.
func (c *Client) RewriteOverclaim(ctx context.Context, systemPrompt string, s core.Suggestion, tier core.ModelTier) (summary, detail string, usage core.Usage, err error) {
	user := fmt.Sprintf("Rewrite this suggestion to keep the same core issue, remove speculative user-impact claims, and ground it strictly in the evidence.\nSummary: %s\nDetail: %s\nSnippet:\n%s", s.Summary, s.Detail, s.Evidence)
	res, err := c.Gateway.CallWithPrimaryThenFallback(ctx, llmgateway.Request{
		System:     systemPrompt,
		User:       user,
		ModelTier:  tier,
		SchemaName: "overclaim_rewrite",
		Schema:     mapper.RewriteSchema(),
		MaxTokens:  core.OverclaimRewriteMaxTokens,
		Timeout:    core.OverclaimRewriteTimeout,
	})
	if err != nil {
		return "", "", core.Usage{}, err
	}
	var parsed struct {
		Summary string `json:"summary"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(res.Data, &parsed); err != nil {
		return "", "", res.Usage, err
	}
	return parsed.Summary, parsed.Detail, res.Usage, nil
}

// RewriteBorderline asks the rewrite model to tighten a borderline-ready
// or overclaiming suggestion, used by the post-processor's selective
// smart-rewrite pass (spec.md §4.9 step 4). Same schema as
// RewriteOverclaim but with the smart-rewrite token/timeout budget.
func (c *Client) RewriteBorderline(ctx context.Context, systemPrompt string, s core.Suggestion, tier core.ModelTier) (summary, detail string, usage core.Usage, err error) {
	user := fmt.Sprintf("Tighten this suggestion so it is immediately actionable and strictly grounded in the evidence; keep the same core issue.\nSummary: %s\nDetail: %s\nSnippet:\n%s", s.Summary, s.Detail, s.Evidence)
	res, err := c.Gateway.CallWithPrimaryThenFallback(ctx, llmgateway.Request{
		System:     systemPrompt,
		User:       user,
		ModelTier:  tier,
		SchemaName: "smart_rewrite",
		Schema:     mapper.RewriteSchema(),
		MaxTokens:  core.SmartBorderlineRewriteMaxTokens,
		Timeout:    core.SmartBorderlineRewriteTimeout,
	})
	if err != nil {
		return "", "", core.Usage{}, err
	}
	var parsed struct {
		Summary string `json:"summary"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(res.Data, &parsed); err != nil {
		return "", "", res.Usage, err
	}
	return parsed.Summary, parsed.Detail, res.Usage, nil
}
