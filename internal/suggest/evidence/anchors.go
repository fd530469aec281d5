package evidence

import (
	"sort"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
)

func isAnchorableSymbol(kind string) bool {
	switch kind {
	case "Function", "Method", "Struct", "Enum", "Class":
		return true
	default:
		return false
	}
}

// bestFunctionLine returns the line of the file's highest-complexity
// Function symbol, or 1 if the file has none.
func bestFunctionLine(fi core.FileIndex) int {
	best := -1.0
	bestLine := 1
	for _, sym := range fi.Symbols {
		if sym.Kind != "Function" {
			continue
		}
		if best < 0 || sym.Complexity > best ||
			(sym.Complexity == best && sym.Line < bestLine) {
			best = sym.Complexity
			bestLine = sym.Line
		}
	}
	return bestLine
}

// anchorsForFile computes up to n exploratory anchor lines for a file:
// the top symbol start lines by (complexity desc, line_count desc, line
// asc), then the best-function line, a middle line for oversized files,
// and a tail line, truncated to n and de-duplicated preserving order.
func anchorsForFile(fi core.FileIndex, n int) []int {
	symbols := make([]core.FileIndexSymbol, 0, len(fi.Symbols))
	for _, sym := range fi.Symbols {
		if isAnchorableSymbol(sym.Kind) {
			symbols = append(symbols, sym)
		}
	}
	sort.SliceStable(symbols, func(i, j int) bool {
		if symbols[i].Complexity != symbols[j].Complexity {
			return symbols[i].Complexity > symbols[j].Complexity
		}
		if symbols[i].LineCount != symbols[j].LineCount {
			return symbols[i].LineCount > symbols[j].LineCount
		}
		return symbols[i].Line < symbols[j].Line
	})

	seen := make(map[int]bool)
	var lines []int
	push := func(line int) {
		if line < 1 {
			line = 1
		}
		if !seen[line] {
			seen[line] = true
			lines = append(lines, line)
		}
	}

	for _, sym := range symbols {
		if len(lines) >= n {
			break
		}
		push(sym.Line)
	}

	push(bestFunctionLine(fi))
	if fi.LOC > core.GodModuleLOCThreshold {
		push(fi.LOC / 2)
	}
	push(maxInt(1, fi.LOC-20))

	if len(lines) > n {
		lines = lines[:n]
	}
	return lines
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
