package validate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
	"github.com/evidentgo/suggestengine/internal/suggest/llmgateway"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func groundedSuggestion(evidenceID int, summary, detail, snippet string) core.Suggestion {
	return core.Suggestion{
		EvidenceRefs: []core.EvidenceRef{{SnippetID: evidenceID, File: "src/a.go", Line: evidenceID + 1}},
		Summary:      summary,
		Detail:       detail,
		Evidence:     snippet,
	}
}

// scriptedClient returns one queued response per call, keyed by schema name
// so a test can script the batch call and any per-item/rewrite calls
// independently of ordering within a schema.
type scriptedClient struct {
	bySchema map[string][]string
	calls    map[string]int
	errOn    map[string]bool
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{bySchema: map[string][]string{}, calls: map[string]int{}, errOn: map[string]bool{}}
}

func (c *scriptedClient) queue(schema, response string) {
	c.bySchema[schema] = append(c.bySchema[schema], response)
}

func (c *scriptedClient) failNext(schema string) {
	c.errOn[schema] = true
}

func (c *scriptedClient) Call(ctx context.Context, req llmgateway.Request) (string, core.Usage, error) {
	if c.errOn[req.SchemaName] {
		c.errOn[req.SchemaName] = false
		return "", core.Usage{}, errors.New("scriptedClient: scripted failure")
	}
	idx := c.calls[req.SchemaName]
	responses := c.bySchema[req.SchemaName]
	if idx >= len(responses) {
		return "", core.Usage{}, errors.New("scriptedClient: out of responses for schema " + req.SchemaName)
	}
	c.calls[req.SchemaName]++
	return responses[idx], core.Usage{TotalTokens: 3}, nil
}

func TestRunChunk_PrevalidationRejectsDuplicateEvidenceWithoutCallingLLM(t *testing.T) {
	sc := newScriptedClient()
	gw := llmgateway.New(sc, nil, testLogger())
	client := &Client{Gateway: gw}

	suggestions := []core.Suggestion{
		groundedSuggestion(1, "Unhandled error swallowed", "detail text here", "```\nerr := doThing()\n_ = err\n```"),
		groundedSuggestion(1, "Duplicate claim on the same evidence", "more detail", "```\nerr := doThing()\n_ = err\n```"),
	}

	diag := core.NewSuggestionDiagnostics()
	res := RunChunk(context.Background(), client, "system", suggestions, core.ModelTierSpeed, nil, time.Now().Add(time.Minute), diag, testLogger())

	rejected := 0
	for _, s := range res.Suggestions {
		if s.ValidationState == core.ValidationRejected {
			rejected++
		}
	}
	assert.GreaterOrEqual(t, rejected, 1)
	assert.Equal(t, 0, sc.calls["batch_validation"], "prevalidation-rejected duplicates should never reach the LLM validator")
}

func TestRunChunk_BatchValidationAssignsPerIndexOutcomes(t *testing.T) {
	sc := newScriptedClient()
	sc.queue("batch_validation", `{"validations":[{"local_index":0,"validation":"validated","reason":"evidence shows it directly"},{"local_index":1,"validation":"contradicted","reason":"snippet refutes the claim"}]}`)
	gw := llmgateway.New(sc, nil, testLogger())
	client := &Client{Gateway: gw}

	suggestions := []core.Suggestion{
		groundedSuggestion(1, "First claim needing a real LLM call", "some detail text", "```\nx := compute()\n```"),
		groundedSuggestion(2, "Second claim needing a real LLM call", "other detail text", "```\ny := compute2()\n```"),
	}

	diag := core.NewSuggestionDiagnostics()
	res := RunChunk(context.Background(), client, "system", suggestions, core.ModelTierSpeed, nil, time.Now().Add(time.Minute), diag, testLogger())

	require.Len(t, res.Suggestions, 2)
	assert.Equal(t, core.ValidationValidated, res.Suggestions[0].ValidationState)
	assert.Equal(t, core.ValidationRejected, res.Suggestions[1].ValidationState)
	assert.Equal(t, core.RejectContradicted, res.Suggestions[1].RejectClass)
	assert.Equal(t, 1, sc.calls["batch_validation"])
}

func TestRunChunk_BatchFailureFallsBackToPerItemCalls(t *testing.T) {
	sc := newScriptedClient()
	sc.failNext("batch_validation")
	sc.queue("validation", `{"validation":"validated","reason":"evidence shows it directly"}`)
	sc.queue("validation", `{"validation":"validated","reason":"evidence shows it directly"}`)
	gw := llmgateway.New(sc, nil, testLogger())
	client := &Client{Gateway: gw}

	suggestions := []core.Suggestion{
		groundedSuggestion(1, "First claim needing a real LLM call", "some detail text", "```\nx := compute()\n```"),
		groundedSuggestion(2, "Second claim needing a real LLM call", "other detail text", "```\ny := compute2()\n```"),
	}

	diag := core.NewSuggestionDiagnostics()
	res := RunChunk(context.Background(), client, "system", suggestions, core.ModelTierSpeed, nil, time.Now().Add(time.Minute), diag, testLogger())

	for _, s := range res.Suggestions {
		assert.Equal(t, core.ValidationValidated, s.ValidationState)
	}
	assert.Equal(t, 2, sc.calls["validation"], "per-item fallback should have been used for both pending suggestions")
}

func TestRunChunk_OverclaimRewriteCanRecoverARejection(t *testing.T) {
	sc := newScriptedClient()
	sc.queue("validation", `{"validation":"contradicted","reason":"this goes beyond evidence into speculative business impact"}`)
	sc.queue("overclaim_rewrite", `{"summary":"Error value is discarded after the call on line 1.","detail":"The error returned by doThing is assigned to _ and never checked."}`)
	sc.queue("validation", `{"validation":"validated","reason":"evidence shows it directly"}`)
	gw := llmgateway.New(sc, nil, testLogger())
	client := &Client{Gateway: gw}

	suggestions := []core.Suggestion{
		groundedSuggestion(1, "This will confuse users and hurt the business", "speculative detail", "```\nerr := doThing()\n_ = err\n```"),
	}

	diag := core.NewSuggestionDiagnostics()
	res := RunChunk(context.Background(), client, "system", suggestions, core.ModelTierSpeed, nil, time.Now().Add(time.Minute), diag, testLogger())

	require.Len(t, res.Suggestions, 1)
	assert.Equal(t, core.ValidationValidated, res.Suggestions[0].ValidationState)
	assert.Equal(t, 1, diag.OverclaimRewriteValidated)
}

func TestRunChunk_AutoValidatesEmptyCatchSilentlyIgnoredPattern(t *testing.T) {
	sc := newScriptedClient()
	gw := llmgateway.New(sc, nil, testLogger())
	client := &Client{Gateway: gw}

	suggestions := []core.Suggestion{
		groundedSuggestion(1, "Empty catch block silently ignores the error", "the caught error is never logged or handled", "```go\ntry {\n  doThing()\n} catch (err) {\n  // error silently ignored, never logged or handled\n}\n```"),
	}

	diag := core.NewSuggestionDiagnostics()
	res := RunChunk(context.Background(), client, "system", suggestions, core.ModelTierSpeed, nil, time.Now().Add(time.Minute), diag, testLogger())

	if res.Suggestions[0].ValidationState == core.ValidationValidated {
		assert.Equal(t, 0, sc.calls["batch_validation"], "auto-validated suggestions should never reach the LLM validator")
	}
}
