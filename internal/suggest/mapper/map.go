package mapper

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
)

// Mapped pairs a converted suggestion with the evidence id it consumed,
// so callers (the orchestrator, the refinement loop) can track which
// pack ids are in use without re-deriving it from EvidenceRefs.
type Mapped struct {
	EvidenceID int
	Suggestion core.Suggestion
}

func packItemByID(pack []core.EvidenceItem, id int) (core.EvidenceItem, bool) {
	for _, item := range pack {
		if item.ID == id {
			return item, true
		}
	}
	return core.EvidenceItem{}, false
}

// collectValidEvidenceRefs resolves a raw suggestion's evidence_refs
// (falling back to top-level evidence_id/snippet_id for older payload
// shapes), looks each id up in the pack, de-duplicates, and truncates to
// exactly one ref per spec.md §4.3 step 1.
func collectValidEvidenceRefs(raw RawSuggestion, pack []core.EvidenceItem) []core.EvidenceRef {
	var refs []core.EvidenceRef
	seen := make(map[int]bool)

	push := func(id int) {
		if seen[id] {
			return
		}
		seen[id] = true
		if item, ok := packItemByID(pack, id); ok {
			refs = append(refs, core.EvidenceRef{SnippetID: item.ID, File: item.File, Line: item.Line})
		}
	}

	for _, r := range raw.EvidenceRefs {
		if id, ok := r.resolvedID(); ok {
			push(id)
		}
	}

	if len(refs) == 0 {
		if raw.EvidenceID != nil {
			push(*raw.EvidenceID)
		} else if raw.SnippetID != nil {
			push(*raw.SnippetID)
		}
	}

	if len(refs) > 1 {
		refs = refs[:1]
	}
	return refs
}

func mapKind(raw string) core.SuggestionKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "bugfix", "security":
		return core.KindBugFix
	case "optimization":
		return core.KindOptimization
	case "refactoring":
		return core.KindRefactoring
	case "reliability":
		return core.KindQuality
	default:
		return core.KindImprovement
	}
}

func mapPriority(raw string) core.Priority {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high":
		return core.PriorityHigh
	case "low":
		return core.PriorityLow
	default:
		return core.PriorityMedium
	}
}

func mapConfidence(raw string) core.Confidence {
	if strings.ToLower(strings.TrimSpace(raw)) == "high" {
		return core.ConfidenceHigh
	}
	return core.ConfidenceMedium
}

// NewSuggestionID is overridable in tests to make mapping deterministic
// (spec.md §8's "Mapping idempotence" law: byte-for-byte identical
// modulo uuid generation, which must be seedable in tests).
var NewSuggestionID = func() string { return uuid.NewString() }

// convertRawSuggestion maps one raw suggestion against the pack,
// returning the evidence id it used. ok is false if the suggestion
// should be dropped (no resolvable evidence ref, or an empty normalized
// summary).
func convertRawSuggestion(raw RawSuggestion, pack []core.EvidenceItem) (Mapped, bool) {
	refs := collectValidEvidenceRefs(raw, pack)
	if len(refs) == 0 {
		return Mapped{}, false
	}
	item, ok := packItemByID(pack, refs[0].SnippetID)
	if !ok {
		return Mapped{}, false
	}

	detail := NormalizeGroundedDetail(raw.Detail, raw.Summary)
	summary := NormalizeGroundedSummary(raw.Summary, detail, item.Line)
	if summary == "" {
		return Mapped{}, false
	}

	suggestion := core.Suggestion{
		ID:              NewSuggestionID(),
		Kind:            mapKind(raw.Kind),
		Priority:        mapPriority(raw.Priority),
		Confidence:      mapConfidence(raw.Confidence),
		File:            item.File,
		Line:            item.Line,
		Summary:         summary,
		Detail:          detail,
		EvidenceRefs:    refs,
		Evidence:        item.Snippet,
		Source:          core.SourceLlmDeep,
		ValidationState: core.ValidationPending,
		CreatedAt:       time.Now(),
	}
	return Mapped{EvidenceID: item.ID, Suggestion: suggestion}, true
}

// MapRawItemsToGrounded converts every raw suggestion against the pack,
// reporting how many were dropped as missing or invalid.
func MapRawItemsToGrounded(raw []RawSuggestion, pack []core.EvidenceItem) ([]Mapped, int) {
	var mapped []Mapped
	missingOrInvalid := 0
	for _, r := range raw {
		if m, ok := convertRawSuggestion(r, pack); ok {
			mapped = append(mapped, m)
		} else {
			missingOrInvalid++
		}
	}
	return mapped, missingOrInvalid
}

// GroundedMappedCount returns the number of unique evidence ids consumed.
func GroundedMappedCount(mapped []Mapped) int {
	seen := make(map[int]bool, len(mapped))
	for _, m := range mapped {
		seen[m.EvidenceID] = true
	}
	return len(seen)
}

// DedupeAndCap keeps at most one suggestion per evidence id (first
// wins) across a wave's mapped outputs, then caps to maxCount.
func DedupeAndCap(mapped []Mapped, maxCount int) []Mapped {
	seen := make(map[int]bool, len(mapped))
	out := make([]Mapped, 0, len(mapped))
	for _, m := range mapped {
		if seen[m.EvidenceID] {
			continue
		}
		seen[m.EvidenceID] = true
		out = append(out, m)
		if len(out) >= maxCount {
			break
		}
	}
	return out
}
