package mapper

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
)

func samplePack() []core.EvidenceItem {
	return []core.EvidenceItem{
		{ID: 0, File: "src/a.go", Line: 12, Snippet: "```\n12| try {\n```"},
		{ID: 1, File: "src/b.go", Line: 40, Snippet: "```\n40| x := 1\n```"},
	}
}

func TestCollectValidEvidenceRefs_ObjectForm(t *testing.T) {
	raw := RawSuggestion{}
	require.NoError(t, json.Unmarshal([]byte(`[{"evidence_id": 1}]`), &raw.EvidenceRefs))
	refs := collectValidEvidenceRefs(raw, samplePack())
	require.Len(t, refs, 1)
	assert.Equal(t, 1, refs[0].SnippetID)
}

func TestCollectValidEvidenceRefs_IntegerForm(t *testing.T) {
	raw := RawSuggestion{}
	require.NoError(t, json.Unmarshal([]byte(`[0]`), &raw.EvidenceRefs))
	refs := collectValidEvidenceRefs(raw, samplePack())
	require.Len(t, refs, 1)
	assert.Equal(t, 0, refs[0].SnippetID)
}

func TestCollectValidEvidenceRefs_StringForm(t *testing.T) {
	raw := RawSuggestion{}
	require.NoError(t, json.Unmarshal([]byte(`["1"]`), &raw.EvidenceRefs))
	refs := collectValidEvidenceRefs(raw, samplePack())
	require.Len(t, refs, 1)
	assert.Equal(t, 1, refs[0].SnippetID)
}

func TestCollectValidEvidenceRefs_TopLevelFallback(t *testing.T) {
	id := 0
	raw := RawSuggestion{EvidenceID: &id}
	refs := collectValidEvidenceRefs(raw, samplePack())
	require.Len(t, refs, 1)
	assert.Equal(t, 0, refs[0].SnippetID)
}

func TestCollectValidEvidenceRefs_TruncatesToOne(t *testing.T) {
	raw := RawSuggestion{}
	require.NoError(t, json.Unmarshal([]byte(`[0, 1]`), &raw.EvidenceRefs))
	refs := collectValidEvidenceRefs(raw, samplePack())
	require.Len(t, refs, 1)
}

func TestConvertRawSuggestion_DropsWhenEvidenceMissing(t *testing.T) {
	raw := RawSuggestion{}
	require.NoError(t, json.Unmarshal([]byte(`[99]`), &raw.EvidenceRefs))
	raw.Kind, raw.Priority, raw.Confidence = "bugfix", "high", "high"
	raw.Summary = "A real substantive claim about this code block here."
	_, ok := convertRawSuggestion(raw, samplePack())
	assert.False(t, ok)
}

func TestConvertRawSuggestion_DropsWhenSummaryEmpty(t *testing.T) {
	raw := RawSuggestion{}
	require.NoError(t, json.Unmarshal([]byte(`[0]`), &raw.EvidenceRefs))
	raw.Kind, raw.Priority, raw.Confidence = "bugfix", "high", "high"
	raw.Summary = ""
	_, ok := convertRawSuggestion(raw, samplePack())
	assert.False(t, ok)
}

func TestConvertRawSuggestion_Success(t *testing.T) {
	raw := RawSuggestion{}
	require.NoError(t, json.Unmarshal([]byte(`[0]`), &raw.EvidenceRefs))
	raw.Kind, raw.Priority, raw.Confidence = "security", "high", "high"
	raw.Summary = "Empty catch block silently ignores a thrown error here."
	raw.Detail = "The catch body is empty so failures vanish silently."

	m, ok := convertRawSuggestion(raw, samplePack())
	require.True(t, ok)
	assert.Equal(t, 0, m.EvidenceID)
	assert.Equal(t, core.KindBugFix, m.Suggestion.Kind)
	assert.Equal(t, core.PriorityHigh, m.Suggestion.Priority)
	assert.Len(t, m.Suggestion.EvidenceRefs, 1)
	assert.Equal(t, core.ValidationPending, m.Suggestion.ValidationState)
}

func TestDedupeAndCap(t *testing.T) {
	mapped := []Mapped{
		{EvidenceID: 0, Suggestion: core.Suggestion{ID: "a"}},
		{EvidenceID: 0, Suggestion: core.Suggestion{ID: "b"}},
		{EvidenceID: 1, Suggestion: core.Suggestion{ID: "c"}},
	}
	out := DedupeAndCap(mapped, 10)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Suggestion.ID)
	assert.Equal(t, "c", out[1].Suggestion.ID)
}

func TestIsValidGroundedSummary(t *testing.T) {
	assert.False(t, IsValidGroundedSummary("too short"))
	assert.True(t, IsValidGroundedSummary("This is a sufficiently long grounded summary claim."))
}
