// Package validate implements the LLM Validator (C6) and Overclaim
// Rewriter (C7): per-suggestion and batched evidence-grounded validation
// calls, state-string classification, reason reconciliation, transport
// retry, and the inline overclaim rewrite-then-revalidate loop.
package validate

import (
	"regexp"
	"strings"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
)

var spaceOrHyphen = regexp.MustCompile(`[\s-]+`)

func normalizeValidationString(raw string) string {
	return spaceOrHyphen.ReplaceAllString(strings.ToLower(strings.TrimSpace(raw)), "_")
}

var (
	contradictedMarkers = []string{"contradict", "unsupported", "not_supported", "not_valid", "assumption"}
	insufficientMarkers = []string{"insufficient", "not_enough_evidence", "unclear"}
	validatedMarkers    = []string{"validated", "valid", "supported"}
)

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// ClassifyState turns a raw "validation" string into a validation state
// and, for rejections, a reject class.
func ClassifyState(raw string) (core.ValidationState, core.ValidationRejectClass) {
	norm := normalizeValidationString(raw)

	if containsAny(norm, contradictedMarkers) {
		return core.ValidationRejected, core.RejectContradicted
	}
	if containsAny(norm, insufficientMarkers) {
		return core.ValidationRejected, core.RejectInsufficientEvidence
	}
	if containsAny(norm, validatedMarkers) {
		return core.ValidationValidated, ""
	}
	return core.ValidationRejected, core.RejectOther
}

var (
	negativeReasonMarkers = []string{"not support", "insufficient", "contradict", "beyond evidence", "assumption"}
	positiveReasonMarkers = []string{"evidence shows", "confirm", "directly shown"}
)

// ReconcileWithReason lets the free-text reason override a borderline
// classification: negative markers can downgrade Validated to Rejected;
// positive markers can upgrade a Rejected(Other) to Validated when no
// negative marker is present.
func ReconcileWithReason(state core.ValidationState, class core.ValidationRejectClass, reason string) (core.ValidationState, core.ValidationRejectClass) {
	lower := strings.ToLower(reason)
	hasNegative := containsAny(lower, negativeReasonMarkers)
	hasPositive := containsAny(lower, positiveReasonMarkers)

	if state == core.ValidationValidated && hasNegative {
		return core.ValidationRejected, core.RejectOther
	}
	if state == core.ValidationRejected && class == core.RejectOther && hasPositive && !hasNegative {
		return core.ValidationValidated, ""
	}
	return state, class
}
