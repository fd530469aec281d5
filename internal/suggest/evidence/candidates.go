package evidence

import (
	"sort"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
)

// candidate is an intermediate scored evidence draft, before filtering,
// global ranking, and quota-based selection.
type candidate struct {
	score          float64
	source         core.EvidenceSource
	severity       core.PatternSeverity
	file           string
	line           int
	patternKind    core.PatternKind
	whyInteresting string
}

func severityScore(sev core.PatternSeverity) float64 {
	switch sev {
	case core.SeverityInfo:
		return 0.5
	case core.SeverityLow:
		return 1
	case core.SeverityMedium:
		return 2
	case core.SeverityHigh:
		return 3
	default:
		return 0
	}
}

func severityRank(sev core.PatternSeverity) int {
	switch sev {
	case core.SeverityHigh:
		return 3
	case core.SeverityMedium:
		return 2
	case core.SeverityLow:
		return 1
	case core.SeverityInfo:
		return 0
	default:
		return -1
	}
}

func reliabilityScore(rel core.PatternReliability) float64 {
	switch rel {
	case core.ReliabilityLow:
		return 0.1
	case core.ReliabilityMedium:
		return 0.3
	case core.ReliabilityHigh:
		return 0.55
	default:
		return 0
	}
}

// changedBoost follows spec.md's explicit 0.2 value (SPEC_FULL.md §A.5).
func changedBoost(file string, changed map[string]bool) float64 {
	if changed[file] {
		return 0.2
	}
	return 0
}

func patternBonus(kind core.PatternKind) float64 {
	switch kind {
	case core.PatternPotentialResourceLeak:
		return 0.35
	case core.PatternGodModule:
		return -0.35
	default:
		return 0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// patternCandidates builds one candidate per detected pattern, excluding
// MissingErrorHandling and TodoMarker.
func patternCandidates(files map[string]core.FileIndex, changed map[string]bool) []candidate {
	var out []candidate
	for _, fi := range files {
		for _, p := range fi.Patterns {
			if p.Kind == core.PatternMissingErrorHandling || p.Kind == core.PatternTodoMarker {
				continue
			}
			line := p.Line
			if p.Kind == core.PatternGodModule {
				line = bestFunctionLine(fi)
			}
			if line < 1 {
				line = 1
			}
			score := severityScore(p.Severity) + reliabilityScore(p.Reliability) +
				changedBoost(p.File, changed) + patternBonus(p.Kind)
			out = append(out, candidate{
				score:          score,
				source:         core.SourcePattern,
				severity:       p.Severity,
				file:           p.File,
				line:           line,
				patternKind:    p.Kind,
				whyInteresting: p.Description,
			})
		}
	}
	return out
}

func sortedFiles(files map[string]core.FileIndex) []core.FileIndex {
	out := make([]core.FileIndex, 0, len(files))
	for _, fi := range files {
		out = append(out, fi)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Complexity != out[j].Complexity {
			return out[i].Complexity > out[j].Complexity
		}
		if out[i].LOC != out[j].LOC {
			return out[i].LOC > out[j].LOC
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// hotspotCandidates takes the top 10 high-complexity/large files and
// generates up to AnchorsPerFileMax exploratory anchors each.
func hotspotCandidates(files map[string]core.FileIndex, changed map[string]bool) []candidate {
	var qualifying []core.FileIndex
	for _, fi := range sortedFiles(files) {
		if fi.Complexity > core.HighComplexityThreshold || fi.LOC > core.GodModuleLOCThreshold {
			qualifying = append(qualifying, fi)
		}
	}
	if len(qualifying) > 10 {
		qualifying = qualifying[:10]
	}

	var out []candidate
	for _, fi := range qualifying {
		anchors := anchorsForFile(fi, core.AnchorsPerFileMax)
		for rank, line := range anchors {
			score := 2.1 + minF(fi.Complexity/60, 1) + changedBoost(fi.Path, changed) - 0.10*float64(rank)
			out = append(out, candidate{
				score:          score,
				source:         core.SourceHotspot,
				file:           fi.Path,
				line:           line,
				whyInteresting: "high-complexity hotspot",
			})
		}
	}
	return out
}

// coreCandidates takes the top 10 files by inbound fan-in (used_by.len
// >= 3) and generates 2 anchors each.
func coreCandidates(files map[string]core.FileIndex, changed map[string]bool) []candidate {
	var qualifying []core.FileIndex
	for _, fi := range files {
		if len(fi.Summary.UsedBy) >= 3 {
			qualifying = append(qualifying, fi)
		}
	}
	sort.Slice(qualifying, func(i, j int) bool {
		if len(qualifying[i].Summary.UsedBy) != len(qualifying[j].Summary.UsedBy) {
			return len(qualifying[i].Summary.UsedBy) > len(qualifying[j].Summary.UsedBy)
		}
		return qualifying[i].Path < qualifying[j].Path
	})
	if len(qualifying) > 10 {
		qualifying = qualifying[:10]
	}

	var out []candidate
	for _, fi := range qualifying {
		anchors := anchorsForFile(fi, 2)
		usedBy := float64(len(fi.Summary.UsedBy))
		for rank, line := range anchors {
			score := 1.7 + minF(usedBy/25, 1) + changedBoost(fi.Path, changed) - 0.08*float64(rank)
			out = append(out, candidate{
				score:          score,
				source:         core.SourceCore,
				file:           fi.Path,
				line:           line,
				whyInteresting: "widely depended-upon file",
			})
		}
	}
	return out
}

// changedFileCandidates explores up to ChangedFileMax changed files with
// 3 anchors each. These candidates are sourced as Core per spec.md's
// source taxonomy {Pattern, Hotspot, Core} (changed-file and neighbor
// exploration both surface as Core-priority evidence).
func changedFileCandidates(files map[string]core.FileIndex, changedList []string) []candidate {
	n := len(changedList)
	if n > core.ChangedFileMax {
		n = core.ChangedFileMax
	}
	var out []candidate
	for _, path := range changedList[:n] {
		fi, ok := files[path]
		if !ok {
			continue
		}
		anchors := anchorsForFile(fi, 3)
		for rank, line := range anchors {
			score := 2.0 + minF(fi.Complexity/70, 1) + minF(float64(fi.LOC)/1200, 0.3) - 0.10*float64(rank)
			out = append(out, candidate{
				score:          score,
				source:         core.SourceCore,
				file:           fi.Path,
				line:           line,
				whyInteresting: "changed in this work",
			})
		}
	}
	return out
}

// neighborCandidates explores up to NeighborFileMax files that depend on
// or are depended on by changed files, excluding the changed set itself,
// with 1 anchor each.
func neighborCandidates(files map[string]core.FileIndex, changed map[string]bool) []candidate {
	neighborSet := make(map[string]bool)
	for path := range changed {
		fi, ok := files[path]
		if !ok {
			continue
		}
		for _, dep := range fi.Summary.DependsOn {
			if !changed[dep] {
				neighborSet[dep] = true
			}
		}
		for _, user := range fi.Summary.UsedBy {
			if !changed[user] {
				neighborSet[user] = true
			}
		}
	}

	neighbors := make([]string, 0, len(neighborSet))
	for path := range neighborSet {
		neighbors = append(neighbors, path)
	}
	sort.Strings(neighbors)
	if len(neighbors) > core.NeighborFileMax {
		neighbors = neighbors[:core.NeighborFileMax]
	}

	var out []candidate
	for _, path := range neighbors {
		fi, ok := files[path]
		if !ok {
			continue
		}
		anchors := anchorsForFile(fi, 1)
		usedBy := float64(len(fi.Summary.UsedBy))
		for _, line := range anchors {
			score := 1.8 + minF(usedBy/20, 1) + minF(fi.Complexity/80, 0.8)
			out = append(out, candidate{
				score:          score,
				source:         core.SourceCore,
				file:           fi.Path,
				line:           line,
				whyInteresting: "neighbor of changed file",
			})
		}
	}
	return out
}

// coverageFallbackCandidates is used only when every other pass produced
// zero candidates: up to PackMax files by (complexity desc, loc desc,
// path asc), one anchor each.
func coverageFallbackCandidates(files map[string]core.FileIndex) []candidate {
	ordered := sortedFiles(files)
	if len(ordered) > core.PackMax {
		ordered = ordered[:core.PackMax]
	}
	var out []candidate
	for _, fi := range ordered {
		anchors := anchorsForFile(fi, 1)
		if len(anchors) == 0 {
			continue
		}
		score := 0.8 + minF(fi.Complexity/40, 1) + minF(float64(fi.LOC)/600, 1)*0.2
		out = append(out, candidate{
			score:          score,
			source:         core.SourceCore,
			file:           fi.Path,
			line:           anchors[0],
			whyInteresting: "coverage fallback",
		})
	}
	return out
}
