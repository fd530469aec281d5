package gate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
	"github.com/evidentgo/suggestengine/internal/suggest/llmgateway"
	"github.com/evidentgo/suggestengine/internal/suggest/validate"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedClient returns queued content strings in order, one per call.
type scriptedClient struct {
	responses []string
	calls     int
}

func (c *scriptedClient) Call(ctx context.Context, req llmgateway.Request) (string, core.Usage, error) {
	if c.calls >= len(c.responses) {
		return "", core.Usage{}, errors.New("scriptedClient: out of responses")
	}
	r := c.responses[c.calls]
	c.calls++
	return r, core.Usage{TotalTokens: 5}, nil
}

// diverseClaims share at most one word pairwise, so none of them count as
// duplicates under postprocess.Dedupe's overlap rules.
var diverseClaims = []string{
	"Parser drops trailing bytes after reading each header frame.",
	"Retry counter resets whenever upstream timeouts occur twice.",
	"Cache entries expire before their refresh timer fires.",
	"Socket handle leaks when dial returns early.",
	"Config loader ignores missing port values entirely.",
	"Mutex guarding session map stays locked on panic.",
	"Worker pool spawns goroutines without any upper bound.",
	"Timestamp formatting uses local zone instead of UTC.",
	"Queue consumer acknowledges messages prior to processing them.",
	"Token bucket refills faster than documented rate allows.",
	"Shutdown hook closes database pool twice under load.",
	"Pagination offset skips one record per page boundary.",
}

// samplePack puts two items in each file, ten lines apart, so they are
// not merged as nearby lines by Dedupe.
func samplePack(n int) []core.EvidenceItem {
	pack := make([]core.EvidenceItem, n)
	for i := 0; i < n; i++ {
		pack[i] = core.EvidenceItem{ID: i, File: fmt.Sprintf("src/file%d.go", i/2), Line: i*10 + 1, Snippet: "```\nx := 1\n```"}
	}
	return pack
}

func diverseSuggestionJSON(evidenceID int) string {
	claim := diverseClaims[evidenceID%len(diverseClaims)]
	return fmt.Sprintf(`{"evidence_refs":[{"evidence_id":%d}],"kind":"bugfix","priority":"high","confidence":"high","summary":%q,"detail":%q}`,
		evidenceID, claim, claim)
}

func wrapSuggestions(items ...string) string {
	out := `{"suggestions":[`
	for i, s := range items {
		if i > 0 {
			out += ","
		}
		out += s
	}
	out += `]}`
	return out
}

func batchValidatedResponse(n int) string {
	out := `{"validations":[`
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf(`{"local_index":%d,"validation":"validated","reason":"evidence shows it directly"}`, i)
	}
	out += `]}`
	return out
}

func TestRun_ZeroMaxAttempts_ReturnsError(t *testing.T) {
	gw := llmgateway.New(&scriptedClient{}, nil, testLogger())
	vclient := &validate.Client{Gateway: gw}

	_, err := Run(context.Background(), gw, vclient, Request{
		Pack:   samplePack(1),
		Config: core.GateConfig{MaxAttempts: 0},
	}, testLogger())

	require.ErrorIs(t, err, ErrGatePassedWithZeroAttempts)
}

func TestRun_PassesOnFirstAttemptWithDiverseGeneration(t *testing.T) {
	pack := samplePack(12)

	var primaryItems []string
	for i := 0; i < 12; i++ {
		primaryItems = append(primaryItems, diverseSuggestionJSON(i))
	}

	client := &scriptedClient{responses: []string{
		wrapSuggestions(primaryItems...),
		batchValidatedResponse(12),
	}}
	gw := llmgateway.New(client, nil, testLogger())
	vclient := &validate.Client{Gateway: gw}

	res, err := Run(context.Background(), gw, vclient, Request{
		Pack:                   pack,
		GenSystemPrompt:        "system",
		ValidationSystemPrompt: "system",
		Config:                 core.DefaultGateConfig(),
		InitialModelTier:       core.ModelTierSpeed,
	}, testLogger())

	require.NoError(t, err)
	assert.True(t, res.Gate.Passed, "fail reasons: %v", res.Gate.FailReasons)
	assert.Equal(t, 12, res.Gate.FinalCount)
	assert.Equal(t, 1.0, res.Gate.DisplayedValidRatio)
	assert.Equal(t, 0, res.Gate.AttemptIndex)
	assert.Equal(t, string(core.ModelTierSpeed), res.Gate.ModelTier)
	assert.Equal(t, 2, client.calls)
}

func TestRunWithProgress_InvokesCallbackPerAttempt(t *testing.T) {
	pack := samplePack(12)

	var primaryItems []string
	for i := 0; i < 12; i++ {
		primaryItems = append(primaryItems, diverseSuggestionJSON(i))
	}

	client := &scriptedClient{responses: []string{
		wrapSuggestions(primaryItems...),
		batchValidatedResponse(12),
	}}
	gw := llmgateway.New(client, nil, testLogger())
	vclient := &validate.Client{Gateway: gw}

	var events []ProgressEvent
	_, err := RunWithProgress(context.Background(), gw, vclient, Request{
		Pack:                   pack,
		GenSystemPrompt:        "system",
		ValidationSystemPrompt: "system",
		Config:                 core.DefaultGateConfig(),
		InitialModelTier:       core.ModelTierSpeed,
	}, testLogger(), func(e ProgressEvent) {
		events = append(events, e)
	})

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Snapshot.Passed)
}

func TestRun_EmptyPackFailsAttemptButReturnsBestSeen(t *testing.T) {
	gw := llmgateway.New(&scriptedClient{}, nil, testLogger())
	vclient := &validate.Client{Gateway: gw}

	res, err := Run(context.Background(), gw, vclient, Request{
		Pack:   nil,
		Config: core.DefaultGateConfig(),
	}, testLogger())

	require.NoError(t, err)
	assert.False(t, res.Gate.Passed)
	assert.Equal(t, 0, res.Gate.FinalCount)
}
