package postprocess

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
)

var broadScopeMarkersRe = regexp.MustCompile(`(?i)(across files|cross-file|refactor|restructure|sweep|multiple modules|many files)`)
var historicalFailMarkersRe = regexp.MustCompile(`(?i)(rename|move|restructure|widespread|global|large refactor|multi-step)`)

var editableExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".rs": true, ".java": true, ".rb": true, ".c": true, ".h": true, ".cpp": true,
	".cc": true, ".cs": true, ".php": true, ".swift": true, ".kt": true, ".scala": true,
}

var configExtensions = map[string]bool{
	".yaml": true, ".yml": true, ".json": true, ".toml": true, ".ini": true,
	".env": true, ".cfg": true, ".conf": true,
}

func quickCheckTargetability(file string) float64 {
	if file == "" {
		return 0.45
	}
	base := strings.ToLower(filepath.Base(file))
	if base == "dockerfile" || base == "makefile" {
		return 0.70
	}
	ext := strings.ToLower(filepath.Ext(file))
	if editableExtensions[ext] {
		return 1.0
	}
	if configExtensions[ext] {
		return 0.70
	}
	if ext == "" {
		return 0.45
	}
	return 0.55
}

func evidenceStrength(s core.Suggestion) float64 {
	strength := 0.20
	if len(s.EvidenceRefs) > 0 {
		strength += 0.45
	}
	if len(strings.ReplaceAll(s.Evidence, " ", "")) >= 40 {
		strength += 0.20
	}
	if s.Line > 0 {
		strength += 0.15
	}
	return strength
}

// scopeTightness treats every suggestion as single-file (it is always
// bound to exactly one evidence ref) and only degrades on broad-scope
// wording in the claim text, per spec.md §4.9 step 2.
func scopeTightness(s core.Suggestion) float64 {
	tightness := 1.0
	if broadScopeMarkersRe.MatchString(s.Summary + " " + s.Detail) {
		tightness -= 0.18
	}
	if tightness < 0 {
		tightness = 0
	}
	return tightness
}

func historicalFailPenalty(s core.Suggestion) float64 {
	if historicalFailMarkersRe.MatchString(s.Summary + " " + s.Detail) {
		return 0.45
	}
	return 1.0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// AnnotateReadiness computes the [0,1] readiness score, its risk flags,
// and the implementation sketch for one suggestion, mutating it in place.
func AnnotateReadiness(s *core.Suggestion) {
	es := evidenceStrength(*s)
	st := scopeTightness(*s)
	qt := quickCheckTargetability(s.File)
	hf := historicalFailPenalty(*s)

	s.ImplementationReadinessScore = clamp01(0.35*es + 0.35*st + 0.20*qt + 0.10*hf)

	var flags []string
	if es < 0.65 {
		flags = append(flags, "weak_evidence_anchor")
	}
	if st < 0.65 {
		flags = append(flags, "broad_or_multi_file_scope")
	}
	if qt < 0.65 {
		flags = append(flags, "low_quick_check_targetability")
	}
	if hf < 0.65 {
		flags = append(flags, "historical_fail_risk")
	}
	s.ImplementationRiskFlags = flags

	s.ImplementationSketch = fmt.Sprintf("Change %s around line %d to address: %s. Keep the edit scoped to the validated file(s) only.", s.File, s.Line, s.Summary)
}

// AnnotateAll runs AnnotateReadiness over every suggestion.
func AnnotateAll(suggestions []core.Suggestion) {
	for i := range suggestions {
		AnnotateReadiness(&suggestions[i])
	}
}

// FilterByReadiness drops suggestions whose readiness is below min,
// returning the survivors and the pre-filter mean readiness.
func FilterByReadiness(suggestions []core.Suggestion, min float64) ([]core.Suggestion, float64) {
	if len(suggestions) == 0 {
		return nil, 0
	}
	sum := 0.0
	for _, s := range suggestions {
		sum += s.ImplementationReadinessScore
	}
	mean := sum / float64(len(suggestions))

	kept := make([]core.Suggestion, 0, len(suggestions))
	for _, s := range suggestions {
		if s.ImplementationReadinessScore >= min {
			kept = append(kept, s)
		}
	}
	return kept, mean
}
