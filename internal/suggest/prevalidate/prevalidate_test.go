package prevalidate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
)

func sugg(summary, detail, snippet string, evidenceID int) core.Suggestion {
	return core.Suggestion{
		Summary:      summary,
		Detail:       detail,
		Evidence:     snippet,
		EvidenceRefs: []core.EvidenceRef{{SnippetID: evidenceID}},
	}
}

func TestEvaluate_NoEvidenceRef(t *testing.T) {
	s := core.Suggestion{Summary: "x", Detail: "y"}
	d := Evaluate(s, ChunkState{})
	assert.Equal(t, RejectPrevalidation, d.Outcome)
	assert.False(t, d.BlockEvidenceFromRegen)
}

func TestEvaluate_DuplicateAcrossRun(t *testing.T) {
	s := sugg("a real claim here", "detail", "snippet", 5)
	d := Evaluate(s, ChunkState{ValidatedEvidenceIDs: map[int]bool{5: true}})
	assert.Equal(t, RejectPrevalidation, d.Outcome)
	assert.False(t, d.BlockEvidenceFromRegen)
}

func TestEvaluate_DuplicateWithinChunk(t *testing.T) {
	s := sugg("a real claim here", "detail", "snippet", 5)
	d := Evaluate(s, ChunkState{ChunkEvidenceCounts: map[int]int{5: 2}})
	assert.Equal(t, RejectPrevalidation, d.Outcome)
	assert.False(t, d.BlockEvidenceFromRegen)
}

func TestEvaluate_ContradictionClientID(t *testing.T) {
	s := sugg("The client id is not configured for this request", "detail", `client_id = "abc123realvalue"`, 1)
	d := Evaluate(s, ChunkState{})
	assert.Equal(t, RejectPrevalidation, d.Outcome)
	assert.True(t, d.BlockEvidenceFromRegen)
}

func TestEvaluate_ContradictionClientIDPlaceholderDoesNotContradict(t *testing.T) {
	s := sugg("The client id is not configured for this request", "detail", `client_id = "YOUR_CLIENT_ID"`, 1)
	d := Evaluate(s, ChunkState{})
	assert.NotEqual(t, "claim contradicted: client_id is configured with a non-placeholder literal", d.Reason)
}

func TestEvaluate_ContradictionAbsolutePath(t *testing.T) {
	s := sugg("Absolute path is not blocked in this handler", "detail",
		`if p.is_absolute() { return errors.New("absolute paths are not allowed") }`, 2)
	d := Evaluate(s, ChunkState{})
	assert.Equal(t, RejectPrevalidation, d.Outcome)
	assert.True(t, d.BlockEvidenceFromRegen)
}

func TestEvaluate_ContradictionCacheDir(t *testing.T) {
	s := sugg("The cache dir is not created before use", "detail",
		`cache_dir := filepath.Join(root, ".cache"); create_dir_all(cache_dir)`, 3)
	d := Evaluate(s, ChunkState{})
	assert.Equal(t, RejectPrevalidation, d.Outcome)
	assert.True(t, d.BlockEvidenceFromRegen)
}

func TestEvaluate_NonActionableSafeguardPraise(t *testing.T) {
	s := sugg("This already guards against a nil pointer dereference", "detail",
		`if x != nil { use(x) }`, 4)
	d := Evaluate(s, ChunkState{})
	assert.Equal(t, RejectPrevalidation, d.Outcome)
}

func TestEvaluate_NonActionableOverriddenByStrongDefectRisk(t *testing.T) {
	s := sugg("This already guards against a crash but a race condition remains possible", "detail",
		`if x != nil { use(x) }`, 4)
	d := Evaluate(s, ChunkState{})
	assert.Equal(t, Defer, d.Outcome)
}

func TestEvaluate_AutoValidateEmptyCatchSilentError(t *testing.T) {
	snippet := "// swallow errors silently, skip retry and logging here\ntry {\n  fetchData()\n} catch (err) {\n}\n"
	s := sugg("Errors here are silently swallowed by an empty catch block", "No logging or retry happens after fetchData fails.", snippet, 6)
	d := Evaluate(s, ChunkState{})
	assert.Equal(t, AutoValidate, d.Outcome)
}

func TestEvaluate_AutoValidateSkippedOnHighSpeculation(t *testing.T) {
	snippet := "// swallow errors silently, skip retry and logging here\ntry {\n  fetchData()\n} catch (err) {\n}\n"
	s := sugg("Errors here are silently swallowed, risking a lawsuit and revenue loss", "detail", snippet, 6)
	d := Evaluate(s, ChunkState{})
	assert.Equal(t, Defer, d.Outcome)
}

func TestEvaluate_DefersOtherwise(t *testing.T) {
	s := sugg("This function could be optimized for better performance", "It loops twice over the same slice.", "for i := range xs { for j := range xs { } }", 7)
	d := Evaluate(s, ChunkState{})
	assert.Equal(t, Defer, d.Outcome)
}

func TestNormalizeClaimTokens(t *testing.T) {
	tokens := NormalizeClaimTokens("The handler silently ignores a thrown exception completely")
	assert.Contains(t, tokens, "exception")
	assert.NotContains(t, tokens, "the")
	assert.NotContains(t, tokens, "silent")
}
