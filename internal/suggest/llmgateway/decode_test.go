package llmgateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_PlainObject(t *testing.T) {
	out, err := ExtractJSON(`{"suggestions": []}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"suggestions": []}`, string(out))
}

func TestExtractJSON_MarkdownFence(t *testing.T) {
	raw := "Here you go:\n```json\n{\"suggestions\": [1, 2]}\n```\n"
	out, err := ExtractJSON(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"suggestions": [1, 2]}`, string(out))
}

func TestExtractJSON_TrailingComma(t *testing.T) {
	raw := `{"suggestions": [1, 2,],}`
	out, err := ExtractJSON(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"suggestions": [1, 2]}`, string(out))
}

func TestExtractJSON_SmartQuotes(t *testing.T) {
	raw := "{“suggestions”: []}"
	out, err := ExtractJSON(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"suggestions": []}`, string(out))
}

func TestExtractJSON_BraceFindingFallback(t *testing.T) {
	raw := "Sure, the result is {\"suggestions\": []} and that's final."
	out, err := ExtractJSON(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"suggestions": []}`, string(out))
}

func TestExtractJSON_NoJSON(t *testing.T) {
	_, err := ExtractJSON("no json here at all")
	assert.Error(t, err)
}
