package postprocess

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
)

func sug(file string, line int, kind core.SuggestionKind, summary, detail string) core.Suggestion {
	return core.Suggestion{
		ID:           fmt.Sprintf("%s:%d", file, line),
		Kind:         kind,
		Priority:     core.PriorityMedium,
		Confidence:   core.ConfidenceMedium,
		File:         file,
		Line:         line,
		Summary:      summary,
		Detail:       detail,
		EvidenceRefs: []core.EvidenceRef{{SnippetID: line, File: file, Line: line}},
		Evidence:     "```\nfunc doWork() error {\n\tresult, err := computeExpensiveValue()\n\treturn err\n}\n```",
		CreatedAt:    time.Now(),
	}
}

func TestDedupe_DropsNearbyLinesInSameFile(t *testing.T) {
	a := sug("src/a.go", 10, core.KindBugFix, "The error from this call is never checked anywhere.", "detail a")
	b := sug("src/a.go", 12, core.KindBugFix, "A completely different wording about another topic entirely.", "detail b")
	b.CreatedAt = a.CreatedAt.Add(time.Second)

	// Equal priority, confidence and readiness: the newer suggestion wins.
	out := Dedupe([]core.Suggestion{a, b})
	require.Len(t, out, 1)
	assert.Equal(t, 12, out[0].Line)
}

func TestDedupe_KeepsDistinctFilesAndWording(t *testing.T) {
	a := sug("src/a.go", 10, core.KindBugFix, "The error from this call is never checked anywhere.", "detail a")
	b := sug("src/b.go", 90, core.KindOptimization, "This loop allocates a new slice on every single iteration.", "detail b")

	out := Dedupe([]core.Suggestion{a, b})
	assert.Len(t, out, 2)
}

func TestDedupe_IsFixpoint(t *testing.T) {
	a := sug("src/a.go", 10, core.KindBugFix, "The error from this call is never checked anywhere.", "detail a")
	b := sug("src/b.go", 90, core.KindOptimization, "This loop allocates a new slice on every single iteration.", "detail b")

	once := Dedupe([]core.Suggestion{a, b})
	twice := Dedupe(once)
	assert.Equal(t, once, twice)
}

func TestAnnotateReadiness_RewardsEditableFileAndEvidence(t *testing.T) {
	s := sug("src/a.go", 10, core.KindBugFix, "The error from this call is never checked anywhere.", "detail")
	AnnotateReadiness(&s)
	assert.Greater(t, s.ImplementationReadinessScore, 0.6)
	assert.Contains(t, s.ImplementationSketch, "src/a.go")
}

func TestAnnotateReadiness_PenalizesHistoricalFailMarkers(t *testing.T) {
	s := sug("src/a.go", 10, core.KindRefactoring, "This requires a large refactor across files to fix properly.", "A widespread rename would be needed.")
	AnnotateReadiness(&s)
	assert.Contains(t, s.ImplementationRiskFlags, "historical_fail_risk")
	assert.Less(t, s.ImplementationReadinessScore, 1.0)
}

func TestFilterByReadiness_DropsBelowMinimum(t *testing.T) {
	high := sug("src/a.go", 10, core.KindBugFix, "claim", "detail")
	high.ImplementationReadinessScore = 0.9
	low := sug("src/b.go", 20, core.KindBugFix, "claim", "detail")
	low.ImplementationReadinessScore = 0.2

	kept, mean := FilterByReadiness([]core.Suggestion{high, low}, 0.45)
	require.Len(t, kept, 1)
	assert.Equal(t, 0.9, kept[0].ImplementationReadinessScore)
	assert.InDelta(t, 0.55, mean, 1e-9)
}

func TestFilterSpeculativeImpact_TrimsAtConnectorThenDrops(t *testing.T) {
	s := sug("src/a.go", 10, core.KindImprovement, "This can reduce campaign reach, causing missed marketing emails.", "detail")
	diag := core.NewSuggestionDiagnostics()
	out := FilterSpeculativeImpact([]core.Suggestion{s}, diag)
	assert.Len(t, out, 0)
	assert.Equal(t, 1, diag.SpeculativeImpactDropped)
}

func TestFilterSpeculativeImpact_ConservativeRewriteForKnownPattern(t *testing.T) {
	s := sug("src/a.go", 10, core.KindBugFix, "This can cause a huge revenue impact and user lawsuit risk here.", "detail")
	s.Evidence = "```\n12| try {\n13|   performance.mark('x')\n14| } catch {}\n```"
	diag := core.NewSuggestionDiagnostics()
	out := FilterSpeculativeImpact([]core.Suggestion{s}, diag)
	require.Len(t, out, 1)
	assert.Contains(t, out[0].Summary, "telemetry")
	assert.Equal(t, 0, diag.SpeculativeImpactDropped)
}

func TestBalanceFiles_CapsPerFileButRefillsToFinalTargetMin(t *testing.T) {
	var suggestions []core.Suggestion
	for i := 0; i < 15; i++ {
		suggestions = append(suggestions, sug("src/a.go", i*10+1, core.KindBugFix, fmt.Sprintf("a distinct claim about iteration number %d here", i), "detail"))
	}
	out := BalanceFiles(suggestions)
	assert.Len(t, out, core.FinalTargetMin)
}

func TestDiversityMetrics_SingleTopicIsFullyDominant(t *testing.T) {
	var suggestions []core.Suggestion
	for i := 0; i < 4; i++ {
		suggestions = append(suggestions, sug("src/a.go", i*10+1, core.KindBugFix, "error handling is silently ignored here", "detail"))
	}
	dominantTopicRatio, uniqueTopics, _, _ := DiversityMetrics(suggestions)
	assert.Equal(t, 1.0, dominantTopicRatio)
	assert.Equal(t, 1, uniqueTopics)
}
