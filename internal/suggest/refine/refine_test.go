package refine

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

func samplePack(n int) []core.EvidenceItem {
	pack := make([]core.EvidenceItem, n)
	for i := 0; i < n; i++ {
		pack[i] = core.EvidenceItem{ID: i, File: "src/a.go", Line: i + 1, Snippet: "```\nx := 1\n```"}
	}
	return pack
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

func suggestionJSON(evidenceID int) string {
	return `{"evidence_refs":[{"evidence_id":` + itoa(evidenceID) + `}],"kind":"bugfix","priority":"high","confidence":"high","summary":"A real substantive grounded claim here.","detail":"Detail text explaining the claim in full."}`
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

func provisionalSuggestion(pack []core.EvidenceItem, id int) core.Suggestion {
	item := pack[id]
	return core.Suggestion{
		ID:              "prov-" + itoa(id),
		Kind:            core.KindBugFix,
		Priority:        core.PriorityHigh,
		Confidence:      core.ConfidenceHigh,
		File:            item.File,
		Line:            item.Line,
		Summary:         "A real substantive grounded claim here.",
		Detail:          "Detail text explaining the claim in full.",
		EvidenceRefs:    []core.EvidenceRef{{SnippetID: item.ID, File: item.File, Line: item.Line}},
		Evidence:        item.Snippet,
		Source:          core.SourceLlmDeep,
		ValidationState: core.ValidationPending,
		CreatedAt:       time.Now(),
	}
}

func TestRun_InitialBatchFullyValidatedSkipsRegeneration(t *testing.T) {
	pack := samplePack(2)
	provisional := []core.Suggestion{provisionalSuggestion(pack, 0), provisionalSuggestion(pack, 1)}

	client := &scriptedClient{responses: []string{
		`{"validations":[{"local_index":0,"validation":"validated","reason":"evidence shows it directly"},{"local_index":1,"validation":"validated","reason":"evidence shows it directly"}]}`,
	}}
	gw := llmgateway.New(client, nil, testLogger())
	vclient := &validate.Client{Gateway: gw}

	diag := core.NewSuggestionDiagnostics()
	res, err := Run(context.Background(), gw, vclient, Request{
		Pack:                    pack,
		Provisional:             provisional,
		ModelTier:               core.ModelTierSpeed,
		RemainingBalancedBudget: 60 * time.Second,
	}, diag, testLogger())

	require.NoError(t, err)
	assert.Len(t, res.Validated, 2)
	assert.Equal(t, 1, client.calls)
}

func TestRun_RegeneratesOnUnusedEvidenceToReachHardTarget(t *testing.T) {
	pack := samplePack(12)
	provisional := []core.Suggestion{provisionalSuggestion(pack, 0)}

	var regenItems []string
	for i := 0; i < 11; i++ {
		regenItems = append(regenItems, suggestionJSON(i))
	}
	var batchEntries string
	for i := 0; i < 11; i++ {
		if i > 0 {
			batchEntries += ","
		}
		batchEntries += `{"local_index":` + itoa(i) + `,"validation":"validated","reason":"evidence shows it directly"}`
	}

	client := &scriptedClient{responses: []string{
		`{"validation":"validated","reason":"evidence shows it directly"}`,
		wrapSuggestions(regenItems...),
		`{"validations":[` + batchEntries + `]}`,
	}}
	gw := llmgateway.New(client, nil, testLogger())
	vclient := &validate.Client{Gateway: gw}

	diag := core.NewSuggestionDiagnostics()
	res, err := Run(context.Background(), gw, vclient, Request{
		Pack:                    pack,
		Provisional:             provisional,
		ModelTier:               core.ModelTierSpeed,
		RemainingBalancedBudget: 60 * time.Second,
	}, diag, testLogger())

	require.NoError(t, err)
	assert.Len(t, res.Validated, 12)
	assert.Equal(t, 3, client.calls)

	seen := make(map[string]bool)
	for _, s := range res.Validated {
		assert.False(t, seen[s.File+itoa(s.Line)], "evidence reused across validated suggestions")
		seen[s.File+itoa(s.Line)] = true
	}
}

func TestRun_PackSizeOneStopsAfterSingleValidation(t *testing.T) {
	pack := samplePack(1)
	provisional := []core.Suggestion{provisionalSuggestion(pack, 0)}

	client := &scriptedClient{responses: []string{
		`{"validation":"validated","reason":"evidence shows it directly"}`,
	}}
	gw := llmgateway.New(client, nil, testLogger())
	vclient := &validate.Client{Gateway: gw}

	diag := core.NewSuggestionDiagnostics()
	res, err := Run(context.Background(), gw, vclient, Request{
		Pack:                    pack,
		Provisional:             provisional,
		ModelTier:               core.ModelTierSpeed,
		RemainingBalancedBudget: 60 * time.Second,
	}, diag, testLogger())

	require.NoError(t, err)
	assert.Len(t, res.Validated, 1)
}
