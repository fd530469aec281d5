// Package core holds the data types shared across the suggestion engine:
// evidence items, suggestions, and the observability records produced
// alongside them. Nothing in this package performs I/O.
package core

import "time"

// EvidenceSource identifies which candidate-enumeration pass produced an
// EvidenceItem. Higher Priority wins ties during global ranking.
type EvidenceSource int

const (
	SourcePattern EvidenceSource = iota
	SourceHotspot
	SourceCore
)

// Priority returns the tie-break priority for the source: Pattern > Hotspot > Core.
func (s EvidenceSource) Priority() int {
	switch s {
	case SourcePattern:
		return 3
	case SourceHotspot:
		return 2
	case SourceCore:
		return 1
	default:
		return 0
	}
}

func (s EvidenceSource) String() string {
	switch s {
	case SourcePattern:
		return "pattern"
	case SourceHotspot:
		return "hotspot"
	case SourceCore:
		return "core"
	default:
		return "unknown"
	}
}

// PatternKind tags the specific detector that produced a Pattern candidate.
type PatternKind string

const (
	PatternGodModule             PatternKind = "GodModule"
	PatternPotentialResourceLeak PatternKind = "PotentialResourceLeak"
	PatternMissingErrorHandling  PatternKind = "MissingErrorHandling"
	PatternTodoMarker            PatternKind = "TodoMarker"
)

// PatternSeverity mirrors the index's detected-pattern severity scale.
type PatternSeverity string

const (
	SeverityInfo   PatternSeverity = "Info"
	SeverityLow    PatternSeverity = "Low"
	SeverityMedium PatternSeverity = "Medium"
	SeverityHigh   PatternSeverity = "High"
)

// PatternReliability mirrors the index's detected-pattern reliability scale.
type PatternReliability string

const (
	ReliabilityLow    PatternReliability = "Low"
	ReliabilityMedium PatternReliability = "Medium"
	ReliabilityHigh   PatternReliability = "High"
)

// EvidenceItem is a chunk of code offered to the model as grounding.
type EvidenceItem struct {
	ID             int
	File           string
	Line           int
	Snippet        string
	WhyInteresting string
	Source         EvidenceSource
	PatternKind    PatternKind
}

// EvidencePackStats summarizes the composition of a built pack.
type EvidencePackStats struct {
	PatternCount int
	HotspotCount int
	CoreCount    int
	Line1Ratio   float64
}

// SuggestionKind classifies what kind of change a suggestion proposes.
type SuggestionKind string

const (
	KindBugFix       SuggestionKind = "BugFix"
	KindImprovement  SuggestionKind = "Improvement"
	KindOptimization SuggestionKind = "Optimization"
	KindRefactoring  SuggestionKind = "Refactoring"
	KindQuality      SuggestionKind = "Quality"
)

type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
)

// SuggestionSource records how a suggestion entered the pipeline. The
// engine only ever produces LlmDeep suggestions; the tag exists so the
// type matches the lifecycle spec.md describes and is future-proof
// against other generators feeding the same post-processor.
type SuggestionSource string

const SourceLlmDeep SuggestionSource = "LlmDeep"

// ValidationState is the three-state machine a suggestion moves through.
type ValidationState string

const (
	ValidationPending   ValidationState = "Pending"
	ValidationValidated ValidationState = "Validated"
	ValidationRejected  ValidationState = "Rejected"
)

// ValidationRejectClass classifies why a rejected suggestion was rejected.
type ValidationRejectClass string

const (
	RejectContradicted          ValidationRejectClass = "Contradicted"
	RejectInsufficientEvidence  ValidationRejectClass = "InsufficientEvidence"
	RejectTransport             ValidationRejectClass = "Transport"
	RejectOther                 ValidationRejectClass = "Other"
	RejectPrevalidation         ValidationRejectClass = "Prevalidation"
)

// EvidenceRef points a suggestion back at the pack item that grounds it.
type EvidenceRef struct {
	SnippetID int
	File      string
	Line      int
}

// Suggestion is a candidate improvement anchored to exactly one evidence ref.
type Suggestion struct {
	ID         string
	Kind       SuggestionKind
	Priority   Priority
	Confidence Confidence

	File    string
	Line    int
	Summary string
	Detail  string

	EvidenceRefs []EvidenceRef
	Evidence     string

	Source          SuggestionSource
	ValidationState ValidationState
	RejectClass     ValidationRejectClass
	RejectReason    string

	ImplementationReadinessScore float64
	ImplementationRiskFlags      []string
	ImplementationSketch         string

	CreatedAt time.Time
}

// PrimaryEvidenceID returns the snippet id of the suggestion's sole
// evidence ref, or -1 if it has none.
func (s *Suggestion) PrimaryEvidenceID() int {
	if len(s.EvidenceRefs) == 0 {
		return -1
	}
	return s.EvidenceRefs[0].SnippetID
}

// Usage tracks LLM token consumption and derived cost for a run.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CostUSD          float64
}

func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
	u.CostUSD += other.CostUSD
}

// RejectionHistogram counts how suggestions were rejected, keyed by a
// human-readable bucket name (deterministic prevalidation reasons,
// validator reject classes, and the single "deterministic_auto_validated"
// bucket for accepted-without-LLM-call outcomes).
type RejectionHistogram map[string]int

// SuggestionDiagnostics accumulates per-run counters surfaced to callers.
type SuggestionDiagnostics struct {
	Waves                        int
	TopupCalls                   int
	MappingRescueCalls           int
	RawCount                     int
	MappedCount                  int
	MissingOrInvalidMapped       int
	ValidatedCount               int
	RejectedCount                int
	DeterministicAutoValidated   int
	OverclaimRewriteValidated    int
	SpeculativeImpactDropped     int
	RejectionHistogram           RejectionHistogram
	DominantTopicRatio           float64
	UniqueTopicCount             int
	DominantFileRatio            float64
	UniqueFileCount              int
	ReadinessMeanBeforeFilter    float64
	ReadinessFilteredCount       int
	Notes                        []string
}

// NewSuggestionDiagnostics returns a zero-valued diagnostics record with
// its histogram initialized.
func NewSuggestionDiagnostics() *SuggestionDiagnostics {
	return &SuggestionDiagnostics{RejectionHistogram: make(RejectionHistogram)}
}

// SuggestionGateSnapshot is the per-attempt pass/fail record.
type SuggestionGateSnapshot struct {
	AttemptIndex            int
	ModelTier               string
	Passed                  bool
	FinalCount              int
	DisplayedValidRatio     float64
	DominantTopicRatio      float64
	UniqueTopicCount        int
	DominantFileRatio       float64
	UniqueFileCount         int
	ReadinessMean           float64
	AttemptCostUSD          float64
	AttemptMs               int64
	FailReasons             []string
}

// GateConfig carries the operator-tunable thresholds for C10.
type GateConfig struct {
	MaxAttempts                      int
	MinFinalCount                    int
	MaxFinalCount                    int
	MinDisplayedValidRatio           float64
	MinImplementationReadinessScore  float64
	MaxSuggestCostUSD                float64
	MaxSuggestMs                     int64
	MaxSmartRewritesPerRun           int
}

// DefaultGateConfig matches spec.md §4.10's stated defaults.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MaxAttempts:                     2,
		MinFinalCount:                   10,
		MaxFinalCount:                   20,
		MinDisplayedValidRatio:          1.0,
		MinImplementationReadinessScore: 0.45,
		MaxSuggestCostUSD:               0.035,
		MaxSuggestMs:                    70_000,
		MaxSmartRewritesPerRun:          8,
	}
}

// GatedRunResult is what run_fast_grounded_with_gate returns to callers.
type GatedRunResult struct {
	Suggestions    []Suggestion
	CumulativeUsage Usage
	Diagnostics    *SuggestionDiagnostics
	Gate           SuggestionGateSnapshot
}

// FileIndexSymbol describes one indexed symbol inside a file.
type FileIndexSymbol struct {
	Kind       string // Function | Method | Struct | Enum | Class
	Name       string
	Line       int
	Complexity float64
	LineCount  int
}

// FileIndexPattern describes one detected pattern inside a file.
type FileIndexPattern struct {
	Kind        PatternKind
	File        string
	Line        int
	Description string
	Severity    PatternSeverity
	Reliability PatternReliability
}

// FileSummary carries the index's precomputed relationship data for a file.
type FileSummary struct {
	Purpose    string
	Exports    []string
	UsedBy     []string
	DependsOn  []string
}

// FileIndex is one entry of the external code-index collaborator (§6).
type FileIndex struct {
	Path       string
	LOC        int
	Complexity float64
	Symbols    []FileIndexSymbol
	Patterns   []FileIndexPattern
	Summary    FileSummary
}

// Index is the read-only code-index collaborator contract.
type Index interface {
	Files() map[string]FileIndex
}

// WorkContext is the read-only work-context collaborator contract.
type WorkContext interface {
	Branch() string
	AllChangedFiles() []string
}
