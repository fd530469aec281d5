// Package mapper implements the Suggestion Mapper (C3): parsing raw LLM
// JSON into typed, evidence-grounded Suggestions.
package mapper

import (
	"encoding/json"
	"strconv"
	"strings"
)

// RawEvidenceRef accepts the untagged union the generator may emit for
// an evidence reference: an object, a bare integer, or a stringified
// integer (spec.md §9 "Dynamic JSON tolerance").
type RawEvidenceRef struct {
	ObjectEvidenceID *int
	ObjectSnippetID  *int
	IntegerID        *int
	StringID         *string
}

func (r *RawEvidenceRef) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	switch trimmed[0] {
	case '{':
		var obj struct {
			EvidenceID *int `json:"evidence_id"`
			SnippetID  *int `json:"snippet_id"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		r.ObjectEvidenceID = obj.EvidenceID
		r.ObjectSnippetID = obj.SnippetID
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		r.StringID = &s
		return nil
	default:
		var n int
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		r.IntegerID = &n
		return nil
	}
}

// resolvedID returns the id encoded by whichever union arm was populated.
func (r RawEvidenceRef) resolvedID() (int, bool) {
	if r.ObjectEvidenceID != nil {
		return *r.ObjectEvidenceID, true
	}
	if r.ObjectSnippetID != nil {
		return *r.ObjectSnippetID, true
	}
	if r.IntegerID != nil {
		return *r.IntegerID, true
	}
	if r.StringID != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(*r.StringID)); err == nil {
			return n, true
		}
	}
	return 0, false
}

// RawSuggestion is one generator-produced suggestion before mapping.
type RawSuggestion struct {
	EvidenceRefs []RawEvidenceRef `json:"evidence_refs"`
	EvidenceID   *int             `json:"evidence_id"`
	SnippetID    *int             `json:"snippet_id"`
	Kind         string           `json:"kind"`
	Priority     string           `json:"priority"`
	Confidence   string           `json:"confidence"`
	Summary      string           `json:"summary"`
	Detail       string           `json:"detail"`
}

// RawGeneration is the top-level generator response shape.
type RawGeneration struct {
	Suggestions []RawSuggestion `json:"suggestions"`
}
