// Package prevalidate implements the Deterministic Pre-validator (C5):
// cheap rule-based rejections and auto-validation applied before a
// suggestion is ever sent to the LLM validator.
package prevalidate

import (
	"github.com/evidentgo/suggestengine/internal/suggest/core"
)

// Outcome is the three-way decision the pre-validator can reach.
type Outcome int

const (
	Defer Outcome = iota
	RejectPrevalidation
	AutoValidate
)

// Decision is the pre-validator's verdict for one suggestion.
type Decision struct {
	Outcome          Outcome
	Reason           string
	BlockEvidenceFromRegen bool
}

// ChunkState carries the cross-suggestion bookkeeping the duplicate
// checks need: evidence ids already consumed by suggestions validated
// earlier in this run, and a count of each evidence id's occurrences
// within the current validation chunk.
type ChunkState struct {
	ValidatedEvidenceIDs map[int]bool
	ChunkEvidenceCounts  map[int]int
}

// Evaluate runs the full pre-validation rule set for one suggestion.
func Evaluate(s core.Suggestion, state ChunkState) Decision {
	primaryID := s.PrimaryEvidenceID()
	if primaryID < 0 {
		return Decision{Outcome: RejectPrevalidation, Reason: "no primary evidence reference", BlockEvidenceFromRegen: false}
	}

	if state.ValidatedEvidenceIDs != nil && state.ValidatedEvidenceIDs[primaryID] {
		return Decision{Outcome: RejectPrevalidation, Reason: "evidence id already consumed by a validated suggestion", BlockEvidenceFromRegen: false}
	}

	if state.ChunkEvidenceCounts != nil && state.ChunkEvidenceCounts[primaryID] > 1 {
		return Decision{Outcome: RejectPrevalidation, Reason: "evidence id appears more than once in this validation chunk", BlockEvidenceFromRegen: false}
	}

	claimText := s.Summary + " " + s.Detail
	snippet := s.Evidence

	if reason, ok := detectContradiction(claimText, snippet); ok {
		return Decision{Outcome: RejectPrevalidation, Reason: reason, BlockEvidenceFromRegen: true}
	}

	if reason, ok := detectNonActionability(claimText, snippet); ok {
		return Decision{Outcome: RejectPrevalidation, Reason: reason, BlockEvidenceFromRegen: true}
	}

	if qualifiesForAutoValidation(claimText, snippet) {
		return Decision{Outcome: AutoValidate, Reason: "empty catch with a silently-ignored error, evidence-grounded"}
	}

	return Decision{Outcome: Defer}
}
