package postprocess

import (
	"strings"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
	"github.com/evidentgo/suggestengine/internal/suggest/prevalidate"
)

// BalanceFiles caps the number of suggestions kept per file to
// DIVERSITY_FILE_BALANCE_PER_FILE_CAP, in the suggestions' existing
// order (already priority/confidence/readiness sorted by Dedupe), then
// lets overflow back in -- in that same order, highest-ranked overflow
// first -- only far enough to meet FINAL_TARGET_MIN.
func BalanceFiles(suggestions []core.Suggestion) []core.Suggestion {
	perFile := make(map[string]int)
	var kept, overflow []core.Suggestion
	for _, s := range suggestions {
		if perFile[s.File] < core.DiversityFileBalancePerFileCap {
			perFile[s.File]++
			kept = append(kept, s)
		} else {
			overflow = append(overflow, s)
		}
	}

	for _, s := range overflow {
		if len(kept) >= core.FinalTargetMin {
			break
		}
		kept = append(kept, s)
	}
	return kept
}

// topicKey builds a diversity topic key: "{kind}:{up to 3 non-generic
// content tokens}", falling back to "{kind}:{file}" when the claim text
// yields no usable content tokens.
func topicKey(s core.Suggestion) string {
	tokens := prevalidate.NormalizeClaimTokens(s.Summary + " " + s.Detail)
	if len(tokens) == 0 {
		return string(s.Kind) + ":" + s.File
	}
	if len(tokens) > 3 {
		tokens = tokens[:3]
	}
	return string(s.Kind) + ":" + strings.Join(tokens, "_")
}

// DiversityMetrics computes the dominant-topic / dominant-file ratios
// and unique counts spec.md §4.9 step 7 and §4.10 check against.
func DiversityMetrics(suggestions []core.Suggestion) (dominantTopicRatio float64, uniqueTopicCount int, dominantFileRatio float64, uniqueFileCount int) {
	if len(suggestions) == 0 {
		return 0, 0, 0, 0
	}

	topicCounts := make(map[string]int)
	fileCounts := make(map[string]int)
	for _, s := range suggestions {
		topicCounts[topicKey(s)]++
		fileCounts[s.File]++
	}

	n := float64(len(suggestions))
	maxTopic := 0
	for _, c := range topicCounts {
		if c > maxTopic {
			maxTopic = c
		}
	}
	maxFile := 0
	for _, c := range fileCounts {
		if c > maxFile {
			maxFile = c
		}
	}

	return float64(maxTopic) / n, len(topicCounts), float64(maxFile) / n, len(fileCounts)
}
