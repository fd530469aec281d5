package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileSinkAppendWritesOneJSONLinePerRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "suggest-audit.jsonl")

	sink, err := NewFileSink(path, true, testLogger())
	require.NoError(t, err)
	defer sink.Close()

	now := time.Unix(1_700_000_000, 0).UTC()
	rec := Record{
		Timestamp:         now,
		RunID:             "run-1",
		SuggestionID:      "sugg-1",
		EvidenceIDs:       []int{3},
		ValidationOutcome: OutcomeValidated,
		ValidationReason:  "evidence shows the unchecked error",
	}
	require.NoError(t, sink.Append(context.Background(), rec))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)

	var got Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, rec.RunID, got.RunID)
	assert.Equal(t, rec.SuggestionID, got.SuggestionID)
	assert.Equal(t, rec.ValidationOutcome, got.ValidationOutcome)
	assert.Nil(t, got.UserVerifyOutcome)
}

func TestFileSinkAppendIsAppendOnlyAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "suggest-audit.jsonl")

	sink, err := NewFileSink(path, false, testLogger())
	require.NoError(t, err)
	defer sink.Close()

	for i := 0; i < 3; i++ {
		rec := Record{RunID: "run-1", SuggestionID: "sugg", ValidationOutcome: OutcomeRejected}
		require.NoError(t, sink.Append(context.Background(), rec))
	}

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Len(t, lines, 3)
}

func TestRecordSuggestionMapsValidationStateToOutcome(t *testing.T) {
	cases := []struct {
		name    string
		s       core.Suggestion
		outcome ValidationOutcome
	}{
		{
			name:    "validated",
			s:       core.Suggestion{ID: "a", ValidationState: core.ValidationValidated},
			outcome: OutcomeValidated,
		},
		{
			name: "insufficient evidence",
			s: core.Suggestion{
				ID:              "b",
				ValidationState: core.ValidationRejected,
				RejectClass:     core.RejectInsufficientEvidence,
			},
			outcome: OutcomeInsufficientEvidence,
		},
		{
			name: "contradicted falls back to rejected",
			s: core.Suggestion{
				ID:              "c",
				ValidationState: core.ValidationRejected,
				RejectClass:     core.RejectContradicted,
			},
			outcome: OutcomeRejected,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.outcome, outcomeFor(tc.s))
		})
	}
}

func TestRecordSuggestionSwallowsSinkErrors(t *testing.T) {
	sink := &erroringSink{}
	assert.NotPanics(t, func() {
		RecordSuggestion(context.Background(), sink, "run-1", core.Suggestion{ID: "x"}, time.Now())
	})
	assert.Equal(t, 1, sink.calls)
}

func TestRecordAllRecordsEverySuggestionInOrder(t *testing.T) {
	sink := &capturingSink{}
	suggestions := []core.Suggestion{
		{ID: "a", ValidationState: core.ValidationValidated, EvidenceRefs: []core.EvidenceRef{{SnippetID: 1}}},
		{ID: "b", ValidationState: core.ValidationRejected, RejectClass: core.RejectContradicted},
	}
	RecordAll(context.Background(), sink, "run-9", suggestions, time.Now())

	require.Len(t, sink.records, 2)
	assert.Equal(t, "a", sink.records[0].SuggestionID)
	assert.Equal(t, []int{1}, sink.records[0].EvidenceIDs)
	assert.Equal(t, "b", sink.records[1].SuggestionID)
	assert.Equal(t, OutcomeRejected, sink.records[1].ValidationOutcome)
}

func TestNoopSinkDiscardsSilently(t *testing.T) {
	assert.NoError(t, NoopSink{}.Append(context.Background(), Record{}))
}

func TestMultiSinkFansOutToEverySink(t *testing.T) {
	a := &capturingSink{}
	b := &capturingSink{}
	multi := MultiSink{Sinks: []Sink{a, b, nil}}

	rec := Record{RunID: "run-1", SuggestionID: "sugg-1", ValidationOutcome: OutcomeValidated}
	require.NoError(t, multi.Append(context.Background(), rec))

	require.Len(t, a.records, 1)
	require.Len(t, b.records, 1)
	assert.Equal(t, "sugg-1", a.records[0].SuggestionID)
	assert.Equal(t, "sugg-1", b.records[0].SuggestionID)
}

func TestMultiSinkReturnsFirstErrorButStillWritesOthers(t *testing.T) {
	failing := &erroringSink{}
	ok := &capturingSink{}
	multi := MultiSink{Sinks: []Sink{failing, ok}}

	err := multi.Append(context.Background(), Record{SuggestionID: "x"})
	assert.Error(t, err)
	assert.Equal(t, 1, failing.calls)
	assert.Len(t, ok.records, 1, "a failing sink must not block the others from being written")
}

type erroringSink struct{ calls int }

func (s *erroringSink) Append(context.Context, Record) error {
	s.calls++
	return assertError
}

var assertError = &sinkError{"boom"}

type sinkError struct{ msg string }

func (e *sinkError) Error() string { return e.msg }

type capturingSink struct{ records []Record }

func (s *capturingSink) Append(_ context.Context, rec Record) error {
	s.records = append(s.records, rec)
	return nil
}
