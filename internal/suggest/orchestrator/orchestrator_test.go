package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
	"github.com/evidentgo/suggestengine/internal/suggest/llmgateway"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func samplePack(n int) []core.EvidenceItem {
	pack := make([]core.EvidenceItem, n)
	for i := 0; i < n; i++ {
		pack[i] = core.EvidenceItem{ID: i, File: "src/a.go", Line: i + 1, Snippet: "```\nx\n```", WhyInteresting: "pattern match"}
	}
	return pack
}

// scriptedClient returns queued (content, err) pairs in order, one per call.
type scriptedClient struct {
	responses []scriptedResponse
	calls     int
}

type scriptedResponse struct {
	content string
	err     error
}

func (c *scriptedClient) Call(ctx context.Context, req llmgateway.Request) (string, core.Usage, error) {
	if c.calls >= len(c.responses) {
		return "", core.Usage{}, errors.New("scriptedClient: out of responses")
	}
	r := c.responses[c.calls]
	c.calls++
	return r.content, core.Usage{TotalTokens: 10}, r.err
}

func suggestionJSON(evidenceID int) string {
	return `{"evidence_refs":[{"evidence_id":` + itoa(evidenceID) + `}],"kind":"bugfix","priority":"high","confidence":"high","summary":"A real substantive grounded claim here.","detail":"Detail text explaining the claim in full."}`
}

func itoa(n int) string {
	digits := "0123456789"
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{digits[n%10]}, b...)
		n /= 10
	}
	return string(b)
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

func TestRun_PrimaryWaveSatisfiesHardTarget(t *testing.T) {
	var items []string
	for i := 0; i < 12; i++ {
		items = append(items, suggestionJSON(i))
	}
	client := &scriptedClient{responses: []scriptedResponse{{content: wrapSuggestions(items...)}}}
	gw := llmgateway.New(client, nil, testLogger())

	diag := core.NewSuggestionDiagnostics()
	res, err := Run(context.Background(), gw, Request{
		SystemPrompt: "sys",
		Pack:         samplePack(12),
		ModelTier:    core.ModelTierSpeed,
	}, diag, testLogger())

	require.NoError(t, err)
	assert.Len(t, res.Mapped, 12)
	assert.Equal(t, 1, diag.Waves)
	assert.Equal(t, 0, diag.TopupCalls)
}

func TestRun_TopupLoopFillsDeficit(t *testing.T) {
	primary := wrapSuggestions(suggestionJSON(0), suggestionJSON(1), suggestionJSON(2))
	topup := wrapSuggestions(suggestionJSON(3), suggestionJSON(4), suggestionJSON(5), suggestionJSON(6),
		suggestionJSON(7), suggestionJSON(8), suggestionJSON(9), suggestionJSON(10), suggestionJSON(11))

	client := &scriptedClient{responses: []scriptedResponse{
		{content: primary},
		{content: topup},
	}}
	gw := llmgateway.New(client, nil, testLogger())

	diag := core.NewSuggestionDiagnostics()
	res, err := Run(context.Background(), gw, Request{
		SystemPrompt: "sys",
		Pack:         samplePack(12),
		ModelTier:    core.ModelTierSpeed,
	}, diag, testLogger())

	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(res.Mapped), core.ValidatedHardTarget)
	assert.Equal(t, 1, diag.TopupCalls)
}

func TestRun_MappingRescueWhenPrimaryMapsNothing(t *testing.T) {
	badPrimary := wrapSuggestions(`{"evidence_refs":[{"evidence_id":999}],"kind":"bugfix","priority":"high","confidence":"high","summary":"Claim pointing nowhere useful at all.","detail":"d"}`)
	rescue := wrapSuggestions(suggestionJSON(0), suggestionJSON(1))

	client := &scriptedClient{responses: []scriptedResponse{
		{content: badPrimary},
		{content: rescue},
	}}
	gw := llmgateway.New(client, nil, testLogger())

	diag := core.NewSuggestionDiagnostics()
	res, err := Run(context.Background(), gw, Request{
		SystemPrompt: "sys",
		Pack:         samplePack(2),
		ModelTier:    core.ModelTierSpeed,
	}, diag, testLogger())

	require.NoError(t, err)
	assert.Len(t, res.Mapped, 2)
	assert.Equal(t, 1, diag.MappingRescueCalls)
}

func TestRun_EmptyPackFails(t *testing.T) {
	gw := llmgateway.New(&scriptedClient{}, nil, testLogger())
	diag := core.NewSuggestionDiagnostics()
	_, err := Run(context.Background(), gw, Request{Pack: nil}, diag, testLogger())
	assert.ErrorIs(t, err, ErrNoPackItems)
}

func TestRun_AllCallsFailReturnsAllMappingFailed(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{err: errors.New("boom")},
	}}
	gw := llmgateway.New(client, nil, testLogger())
	diag := core.NewSuggestionDiagnostics()
	_, err := Run(context.Background(), gw, Request{Pack: samplePack(2)}, diag, testLogger())
	assert.ErrorIs(t, err, ErrAllMappingFailed)
}
