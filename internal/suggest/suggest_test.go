package suggest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidentgo/suggestengine/internal/suggest/audit"
	"github.com/evidentgo/suggestengine/internal/suggest/core"
	"github.com/evidentgo/suggestengine/internal/suggest/llmgateway"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeIndex struct {
	files map[string]core.FileIndex
}

func (f fakeIndex) Files() map[string]core.FileIndex { return f.files }

type fakeWorkContext struct {
	branch  string
	changed []string
}

func (f fakeWorkContext) Branch() string            { return f.branch }
func (f fakeWorkContext) AllChangedFiles() []string { return f.changed }

func writeRepoFile(t *testing.T, root, rel string, lines int) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	content := ""
	for i := 1; i <= lines; i++ {
		content += "line content here\n"
	}
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func sampleRepo(t *testing.T) (string, core.Index, core.WorkContext) {
	t.Helper()
	root := t.TempDir()
	writeRepoFile(t, root, "src/hot.go", 60)
	writeRepoFile(t, root, "src/cold.go", 30)

	files := map[string]core.FileIndex{
		"src/hot.go": {
			Path:       "src/hot.go",
			LOC:        60,
			Complexity: 20,
			Symbols: []core.FileIndexSymbol{
				{Kind: "Function", Name: "Process", Line: 5, Complexity: 18, LineCount: 30},
			},
		},
		"src/cold.go": {
			Path:       "src/cold.go",
			LOC:        30,
			Complexity: 3,
		},
	}
	return root, fakeIndex{files: files}, fakeWorkContext{branch: "main", changed: []string{"src/hot.go"}}
}

// scriptedClient returns queued content strings in order, one per call,
// and errors once the script is exhausted.
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
	return r, core.Usage{TotalTokens: 4}, nil
}

var topicWords = []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel", "india", "juliet", "kilo", "lima"}

func diverseSuggestionJSON(evidenceID int) string {
	topic := topicWords[evidenceID%len(topicWords)]
	summary := fmt.Sprintf("This %s path never records telemetry properly.", topic)
	return fmt.Sprintf(`{"evidence_refs":[{"evidence_id":%d}],"kind":"bugfix","priority":"high","confidence":"high","summary":%q,"detail":"More explanation of the claim in full detail."}`,
		evidenceID, summary)
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

func TestAnalyzeCodebaseFastGrounded_ReturnsMappedSuggestions(t *testing.T) {
	root, idx, workCtx := sampleRepo(t)

	client := &scriptedClient{responses: []string{
		wrapSuggestions(diverseSuggestionJSON(0), diverseSuggestionJSON(1)),
	}}
	gw := llmgateway.New(client, nil, testLogger())

	suggestions, usage, diag, err := AnalyzeCodebaseFastGrounded(
		context.Background(), gw, root, idx, workCtx,
		Prompts{Generation: "gen system"}, "", nil, core.ModelTierSpeed, testLogger(),
	)

	require.NoError(t, err)
	assert.NotEmpty(t, suggestions)
	assert.Greater(t, usage.TotalTokens, 0)
	assert.NotNil(t, diag)
}

func TestRunFastGroundedWithGate_PassesAndRecordsAudit(t *testing.T) {
	root, idx, workCtx := sampleRepo(t)

	var primaryItems []string
	for i := 0; i < 12; i++ {
		primaryItems = append(primaryItems, diverseSuggestionJSON(i))
	}
	client := &scriptedClient{responses: []string{
		wrapSuggestions(primaryItems...),
		batchValidatedResponse(12),
	}}
	gw := llmgateway.New(client, nil, testLogger())

	capture := &capturingSink{}

	result, err := RunFastGroundedWithGate(context.Background(), gw, root, idx, workCtx, GatedRunOptions{
		Prompts:     Prompts{Generation: "gen system", Validation: "val system"},
		GateConfig:  core.DefaultGateConfig(),
		RunID:       "test-run",
		AuditSink:   capture,
		InitialTier: core.ModelTierSpeed,
	}, testLogger())

	require.NoError(t, err)
	assert.True(t, result.Gate.Passed, "fail reasons: %v", result.Gate.FailReasons)
	assert.NotEmpty(t, result.Suggestions)
	assert.NotEmpty(t, capture.records, "gated run should have audited at least one suggestion")
	for _, rec := range capture.records {
		assert.Equal(t, "test-run", rec.RunID)
	}
}

type capturingSink struct {
	records []audit.Record
}

func (c *capturingSink) Append(ctx context.Context, rec audit.Record) error {
	c.records = append(c.records, rec)
	return nil
}
