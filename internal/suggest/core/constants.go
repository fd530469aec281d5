package core

import "time"

// Named budgets and thresholds. Every value here matches a constant
// named in spec.md §4; they live together so the engine's behavior is
// auditable against the spec in one place. These values are fixed; the
// operator-tunable gate thresholds live in GateConfig instead
// (DefaultGateConfig holds their defaults, and internal/config's
// SuggestConfig.GateConfig builds one from configuration).
const (
	HighComplexityThreshold = 20.0
	GodModuleLOCThreshold   = 800

	PackMax                       = 60
	EvidenceSnippetLinesBefore    = 5
	EvidenceSnippetLinesAfter     = 8
	FinalTargetMin                = 10
	FinalTargetMax                = 20
	ValidatedSoftFloor            = 10
	ValidatedHardTarget           = 12
	ValidatedStretchTarget        = 20
	ProvisionalTargetMin          = 26
	ProvisionalTargetMax          = 40
	ProvisionalMax                = 40

	SourcePatternMax  = 24
	SourceHotspotMax  = 20
	SourceCoreMax     = 16
	GodModuleMax      = 4
	PerFileMax        = 3
	AnchorsPerFileMax = 3
	ChangedFileMax    = 10
	NeighborFileMax   = 12

	RefinementHardPhaseMaxAttempts    = 4
	RefinementStretchPhaseMaxAttempts = 2
	GenerationTopupMaxCalls           = 4
	GenerationTopupTimeout            = 4500 * time.Millisecond
	RegenStrictMinPackSize            = ProvisionalTargetMin

	BalancedBudget                = 60_000 * time.Millisecond
	SuggestGateBudget              = 70_000 * time.Millisecond
	GateRetryMinRemainingBudget    = 8_000 * time.Millisecond
	GateRetryMaxAttemptCostFrac    = 0.70

	ValidationConcurrency      = 3
	ValidationRetryConcurrency = 1

	PrimaryRequestMin         = 22
	PrimaryRequestMax         = 30
	PrimaryRequestMaxTokens   = 1800
	PrimaryRequestTimeout     = 6200 * time.Millisecond
	TopupRequestMaxTokens     = 1000
	RegenRequestMaxTokens     = 800
	RegenRequestTimeout       = 7200 * time.Millisecond
	ValidatorMaxTokens        = 90
	ValidatorTimeout          = 4500 * time.Millisecond
	ValidatorRetryTimeout     = 3200 * time.Millisecond
	ValidatorBatchMaxTokens   = 320
	ValidatorBatchTimeoutBuf  = 1600 * time.Millisecond

	ValidationRetryMaxPerSuggestion     = 1
	ValidationRetryMinRemainingBudget   = 4_000 * time.Millisecond
	ValidationRunDeadline               = 30_000 * time.Millisecond
	ValidationMinRemainingBudget        = 2_500 * time.Millisecond

	OverclaimRewriteMaxTokens     = 70
	OverclaimRewriteTimeout       = 2000 * time.Millisecond
	OverclaimRevalidateMaxTokens  = 70
	OverclaimRevalidateTimeout    = 2000 * time.Millisecond

	SmartBorderlineRewriteMaxTokens = 90
	SmartBorderlineRewriteTimeout   = 2600 * time.Millisecond

	StretchPhaseMaxCostUSD              = 0.012
	StretchPhaseMinRemainingValidation  = 6_000 * time.Millisecond

	SummaryMinWords = 5
	SummaryMinChars = 24

	DiversityDominantTopicRatioMax = 0.60
	DiversityMinUniqueTopics       = 4
	DiversityDominantFileRatioMax  = 0.60
	DiversityMinUniqueFiles        = 4
	DiversityFileBalancePerFileCap = 3

	DefaultMinImplementationReadinessScore = 0.45
	DefaultMaxSmartRewritesPerRun          = 8
	SmartRewriteReadinessUpperBound        = 0.60
)

// ModelTier names the two generation quality levels the gate driver
// escalates between. These correspond to spec.md's "Speed"/"Smart"
// tiers and to this repo's Open Question 1 resolution (SPEC_FULL.md §A.1).
type ModelTier string

const (
	ModelTierSpeed ModelTier = "speed"
	ModelTierSmart ModelTier = "smart"
)
