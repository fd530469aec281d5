// Package evidence implements the Evidence Pack Builder (C1): it turns a
// code index and work context into a deterministic, quota-bounded,
// ranked list of EvidenceItems with secrets redacted from every snippet.
package evidence

import (
	"sort"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
)

type draft struct {
	candidate
	snippet string
}

func sourceLimit(source core.EvidenceSource) int {
	switch source {
	case core.SourcePattern:
		return core.SourcePatternMax
	case core.SourceHotspot:
		return core.SourceHotspotMax
	case core.SourceCore:
		return core.SourceCoreMax
	default:
		return 0
	}
}

// BuildPack deterministically selects and ranks evidence from the repo.
func BuildPack(repoRoot string, index core.Index, ctx core.WorkContext) ([]core.EvidenceItem, core.EvidencePackStats, error) {
	files := index.Files()
	changedList := ctx.AllChangedFiles()
	changed := make(map[string]bool, len(changedList))
	for _, f := range changedList {
		changed[f] = true
	}

	candidates := enumerateCandidates(files, changed, changedList)
	drafts := toDrafts(repoRoot, candidates)
	drafts = filterTestLike(drafts)

	sort.SliceStable(drafts, func(i, j int) bool {
		a, b := drafts[i], drafts[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.source.Priority() != b.source.Priority() {
			return a.source.Priority() > b.source.Priority()
		}
		if severityRank(a.severity) != severityRank(b.severity) {
			return severityRank(a.severity) > severityRank(b.severity)
		}
		if a.file != b.file {
			return a.file < b.file
		}
		return a.line < b.line
	})

	selected := selectWithQuotas(drafts)

	items := make([]core.EvidenceItem, 0, len(selected))
	line1 := 0
	perSource := map[core.EvidenceSource]int{}
	for i, d := range selected {
		items = append(items, core.EvidenceItem{
			ID:             i,
			File:           d.file,
			Line:           d.line,
			Snippet:        d.snippet,
			WhyInteresting: d.whyInteresting,
			Source:         d.source,
			PatternKind:    d.patternKind,
		})
		perSource[d.source]++
		if d.line == 1 {
			line1++
		}
	}

	stats := core.EvidencePackStats{
		PatternCount: perSource[core.SourcePattern],
		HotspotCount: perSource[core.SourceHotspot],
		CoreCount:    perSource[core.SourceCore],
	}
	if len(items) > 0 {
		stats.Line1Ratio = float64(line1) / float64(len(items))
	}
	return items, stats, nil
}

func enumerateCandidates(files map[string]core.FileIndex, changed map[string]bool, changedList []string) []candidate {
	var all []candidate
	all = append(all, patternCandidates(files, changed)...)
	all = append(all, hotspotCandidates(files, changed)...)
	all = append(all, coreCandidates(files, changed)...)
	all = append(all, changedFileCandidates(files, changedList)...)
	all = append(all, neighborCandidates(files, changed)...)
	if len(all) == 0 {
		all = coverageFallbackCandidates(files)
	}
	return all
}

func toDrafts(repoRoot string, candidates []candidate) []draft {
	drafts := make([]draft, 0, len(candidates))
	for _, c := range candidates {
		snippet, err := readSnippet(repoRoot, c.file, c.line)
		if err != nil {
			continue
		}
		drafts = append(drafts, draft{candidate: c, snippet: snippet})
	}
	return drafts
}

func filterTestLike(drafts []draft) []draft {
	out := drafts[:0]
	for _, d := range drafts {
		if isTestLikePath(d.file) || snippetLooksLikeTest(d.snippet) {
			continue
		}
		out = append(out, d)
	}
	return out
}

type admissionKey struct {
	file string
	line int
}

// selectWithQuotas walks the globally ranked drafts twice: the first
// pass enforces per-file, per-source, and god-module quotas; the second
// pass relaxes the per-source quota (keeping per-file/god-module caps)
// to fill out the pack up to PackMax.
func selectWithQuotas(ranked []draft) []draft {
	admitted := make(map[admissionKey]bool)
	perFile := make(map[string]int)
	perSource := make(map[core.EvidenceSource]int)
	godModuleCount := 0

	var selected []draft
	admit := func(d draft) {
		key := admissionKey{d.file, d.line}
		admitted[key] = true
		perFile[d.file]++
		perSource[d.source]++
		if d.patternKind == core.PatternGodModule {
			godModuleCount++
		}
		selected = append(selected, d)
	}

	for _, d := range ranked {
		if len(selected) >= core.PackMax {
			break
		}
		key := admissionKey{d.file, d.line}
		if admitted[key] {
			continue
		}
		if perFile[d.file] >= core.PerFileMax {
			continue
		}
		if perSource[d.source] >= sourceLimit(d.source) {
			continue
		}
		if d.patternKind == core.PatternGodModule && godModuleCount >= core.GodModuleMax {
			continue
		}
		admit(d)
	}

	if len(selected) < core.PackMax {
		for _, d := range ranked {
			if len(selected) >= core.PackMax {
				break
			}
			key := admissionKey{d.file, d.line}
			if admitted[key] {
				continue
			}
			if perFile[d.file] >= core.PerFileMax {
				continue
			}
			if d.patternKind == core.PatternGodModule && godModuleCount >= core.GodModuleMax {
				continue
			}
			admit(d)
		}
	}

	return selected
}
