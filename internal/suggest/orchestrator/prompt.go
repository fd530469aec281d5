// Package orchestrator implements the Generation Orchestrator (C4):
// primary wave, top-up loop, and mapping-rescue call against the
// structured LLM gateway, bounded by BalancedBudget.
package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
)

const maxFileSummaryChars = 180

// BuildUserPrompt renders the numbered evidence pack, an optional memory
// block, truncated file summaries, a count hint, and (for top-ups) a
// restriction to a specific set of unused evidence ids.
func BuildUserPrompt(pack []core.EvidenceItem, memory string, summaries map[string]string, countHint string, restrictToIDs []int) string {
	var b strings.Builder

	b.WriteString("Evidence pack:\n")
	for _, item := range pack {
		fmt.Fprintf(&b, "[%d] %s:%d (%s) - %s\n%s\n\n", item.ID, item.File, item.Line, item.Source, item.WhyInteresting, item.Snippet)
	}

	if strings.TrimSpace(memory) != "" {
		b.WriteString("Repo memory:\n")
		b.WriteString(memory)
		b.WriteString("\n\n")
	}

	if len(summaries) > 0 {
		keys := make([]string, 0, len(summaries))
		for k := range summaries {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("File summaries:\n")
		for _, k := range keys {
			s := summaries[k]
			if len(s) > maxFileSummaryChars {
				s = s[:maxFileSummaryChars]
			}
			fmt.Fprintf(&b, "- %s: %s\n", k, s)
		}
		b.WriteString("\n")
	}

	if len(restrictToIDs) > 0 {
		fmt.Fprintf(&b, "Use ONLY evidence_id values from this set for this top-up: %v\n\n", restrictToIDs)
	}

	b.WriteString(countHint)
	return b.String()
}

// unusedEvidenceIDs returns up to max pack ids not present in used,
// in ascending id order.
func unusedEvidenceIDs(pack []core.EvidenceItem, used map[int]bool, max int) []int {
	var ids []int
	for _, item := range pack {
		if !used[item.ID] {
			ids = append(ids, item.ID)
			if len(ids) >= max {
				break
			}
		}
	}
	return ids
}
