// Package audit implements the Audit Log (C11): an append-only sink of
// per-suggestion outcome records. Durability is best-effort -- a write
// failure is logged and swallowed, never propagated to the caller,
// mirroring the teacher's "save, log on failure, don't abort" posture
// around internal/storage.Store.SaveReview.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
)

// ValidationOutcome is the terminal classification recorded for a
// suggestion, independent of the engine's internal ValidationRejectClass
// taxonomy -- spec.md §4.11 only distinguishes these three buckets.
type ValidationOutcome string

const (
	OutcomeValidated           ValidationOutcome = "validated"
	OutcomeRejected            ValidationOutcome = "rejected"
	OutcomeInsufficientEvidence ValidationOutcome = "insufficient_evidence"
)

// Record is one append-only entry: a single suggestion's fate within a run.
type Record struct {
	Timestamp         time.Time         `json:"timestamp"`
	RunID             string            `json:"run_id"`
	SuggestionID      string            `json:"suggestion_id"`
	EvidenceIDs       []int             `json:"evidence_ids"`
	ValidationOutcome ValidationOutcome `json:"validation_outcome"`
	ValidationReason  string            `json:"validation_reason"`
	UserVerifyOutcome *string           `json:"user_verify_outcome"`
}

// Sink is the external collaborator contract from spec.md §6: append a
// record, best-effort, idempotence not required.
type Sink interface {
	Append(ctx context.Context, rec Record) error
}

// NoopSink discards every record. Useful for callers (tests, ask-a-question
// one-shots) that have no repo-scoped log file to write to.
type NoopSink struct{}

func (NoopSink) Append(context.Context, Record) error { return nil }

// FileSink appends newline-delimited JSON records to a single per-repo
// file, one *os.File held open for the sink's lifetime. Writes are
// serialized with a mutex since multiple validation fan-out goroutines
// may record outcomes concurrently within one run.
type FileSink struct {
	mu     sync.Mutex
	file   *os.File
	logger *slog.Logger
	// sync controls whether every append calls fsync (SPEC_FULL.md §A.2:
	// flush-on-append, not flush-on-close, so a crash mid-run doesn't
	// lose already-decided outcomes).
	sync bool
}

// NewFileSink opens (creating if needed) the append-only log file at path.
func NewFileSink(path string, syncEveryAppend bool, logger *slog.Logger) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open log file: %w", err)
	}
	return &FileSink{file: f, logger: logger, sync: syncEveryAppend}, nil
}

// Append writes rec as one JSON line. Errors are logged, not returned as
// fatal to callers that can't usefully react mid-pipeline; Append still
// returns the error so a caller that cares (e.g. a health check) can see it.
func (s *FileSink) Append(_ context.Context, rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		s.logger.Warn("audit: failed to marshal record", "suggestion_id", rec.SuggestionID, "error", err)
		return err
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Write(line); err != nil {
		s.logger.Warn("audit: failed to append record", "suggestion_id", rec.SuggestionID, "error", err)
		return err
	}
	if s.sync {
		if err := s.file.Sync(); err != nil {
			s.logger.Warn("audit: failed to fsync log file", "error", err)
			return err
		}
	}
	return nil
}

// Close closes the underlying file. Best-effort: errors are logged.
func (s *FileSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.file.Close(); err != nil {
		s.logger.Warn("audit: failed to close log file", "error", err)
	}
}

// PostgresSink mirrors every record into suggestion_quality_records
// (SPEC_FULL.md DOMAIN STACK, C: "additional to the per-repo append-only
// file"), reusing the teacher's sqlx + lib/pq stack from internal/storage.
// The append-only file remains the required sink; this one is additive
// and best-effort, same "log on failure, don't abort" posture as FileSink.
type PostgresSink struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresSink wraps an already-connected *sqlx.DB.
func NewPostgresSink(db *sqlx.DB, logger *slog.Logger) *PostgresSink {
	return &PostgresSink{db: db, logger: logger}
}

func (s *PostgresSink) Append(ctx context.Context, rec Record) error {
	const query = `
		INSERT INTO suggestion_quality_records
			(run_id, suggestion_id, evidence_ids, validation_outcome, validation_reason, user_verify_outcome, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.db.ExecContext(ctx, query,
		rec.RunID, rec.SuggestionID, pq.Array(rec.EvidenceIDs), string(rec.ValidationOutcome),
		rec.ValidationReason, rec.UserVerifyOutcome, rec.Timestamp)
	if err != nil {
		s.logger.Warn("audit: postgres mirror insert failed", "suggestion_id", rec.SuggestionID, "error", err)
		return err
	}
	return nil
}

// MultiSink fans one record out to every underlying sink, collecting (but
// not aborting on) individual failures, so a single call site can write
// to several sinks (for example the append-only file and the Postgres
// mirror). app.NewApp currently wires the file sink alone.
type MultiSink struct {
	Sinks []Sink
}

func (m MultiSink) Append(ctx context.Context, rec Record) error {
	var firstErr error
	for _, sink := range m.Sinks {
		if sink == nil {
			continue
		}
		if err := sink.Append(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// outcomeFor maps a Suggestion's terminal validation_state/reject_class
// to the audit log's three-bucket ValidationOutcome.
func outcomeFor(s core.Suggestion) ValidationOutcome {
	if s.ValidationState == core.ValidationValidated {
		return OutcomeValidated
	}
	if s.RejectClass == core.RejectInsufficientEvidence {
		return OutcomeInsufficientEvidence
	}
	return OutcomeRejected
}

// RecordSuggestion builds and appends one Record for s, swallowing any
// Append error: audit logging must never abort or slow down the pipeline
// it observes.
func RecordSuggestion(ctx context.Context, sink Sink, runID string, s core.Suggestion, now time.Time) {
	if sink == nil {
		return
	}
	ids := make([]int, 0, len(s.EvidenceRefs))
	for _, r := range s.EvidenceRefs {
		ids = append(ids, r.SnippetID)
	}
	rec := Record{
		Timestamp:         now,
		RunID:             runID,
		SuggestionID:      s.ID,
		EvidenceIDs:       ids,
		ValidationOutcome: outcomeFor(s),
		ValidationReason:  s.RejectReason,
		UserVerifyOutcome: nil,
	}
	_ = sink.Append(ctx, rec)
}

// RecordAll appends one record per suggestion in suggestions, in order.
func RecordAll(ctx context.Context, sink Sink, runID string, suggestions []core.Suggestion, now time.Time) {
	for _, s := range suggestions {
		RecordSuggestion(ctx, sink, runID, s, now)
	}
}
