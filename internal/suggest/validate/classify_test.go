package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
)

func TestClassifyState(t *testing.T) {
	cases := []struct {
		raw           string
		wantState     core.ValidationState
		wantRejectCls core.ValidationRejectClass
	}{
		{"validated", core.ValidationValidated, ""},
		{"Valid", core.ValidationValidated, ""},
		{"SUPPORTED", core.ValidationValidated, ""},
		{"contradicted", core.ValidationRejected, core.RejectContradicted},
		{"not-supported", core.ValidationRejected, core.RejectContradicted},
		{"insufficient evidence", core.ValidationRejected, core.RejectInsufficientEvidence},
		{"unclear", core.ValidationRejected, core.RejectInsufficientEvidence},
		{"garbage-response", core.ValidationRejected, core.RejectOther},
	}
	for _, c := range cases {
		state, class := ClassifyState(c.raw)
		assert.Equal(t, c.wantState, state, "raw=%q", c.raw)
		assert.Equal(t, c.wantRejectCls, class, "raw=%q", c.raw)
	}
}

func TestReconcileWithReason_NegativeReasonDowngradesValidated(t *testing.T) {
	state, class := ReconcileWithReason(core.ValidationValidated, "", "this claim is not supported by the snippet")
	assert.Equal(t, core.ValidationRejected, state)
	assert.Equal(t, core.RejectOther, class)
}

func TestReconcileWithReason_PositiveReasonUpgradesRejectOther(t *testing.T) {
	state, class := ReconcileWithReason(core.ValidationRejected, core.RejectOther, "the evidence shows this directly")
	assert.Equal(t, core.ValidationValidated, state)
	assert.Equal(t, core.ValidationRejectClass(""), class)
}

func TestReconcileWithReason_DoesNotUpgradeSpecificRejectClasses(t *testing.T) {
	state, class := ReconcileWithReason(core.ValidationRejected, core.RejectContradicted, "the evidence shows this directly")
	assert.Equal(t, core.ValidationRejected, state)
	assert.Equal(t, core.RejectContradicted, class)
}

func TestReconcileWithReason_BothMarkersPresentLeavesRejected(t *testing.T) {
	state, class := ReconcileWithReason(core.ValidationRejected, core.RejectOther, "evidence shows this but it's still an assumption")
	assert.Equal(t, core.ValidationRejected, state)
	assert.Equal(t, core.RejectOther, class)
}
