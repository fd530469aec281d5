package evidence

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
)

// readSnippet renders a fenced, line-numbered window of `file` around
// `anchorLine`, [anchorLine-before, anchorLine+after], then redacts
// secrets. file is repo-relative; repoRoot anchors the read.
func readSnippet(repoRoot, file string, anchorLine int) (string, error) {
	cleaned, ok := toRepoRelative(repoRoot, file)
	if !ok {
		return "", fmt.Errorf("path %q is not under repo root, ignored for evidence", file)
	}

	full := filepath.Join(repoRoot, cleaned)
	f, err := os.Open(full)
	if err != nil {
		return "", err
	}
	defer f.Close()

	lines, err := readAllLines(f)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("file %q is empty", file)
	}
	if anchorLine < 1 {
		anchorLine = 1
	}
	if anchorLine > len(lines) {
		anchorLine = len(lines)
	}

	start := anchorLine - core.EvidenceSnippetLinesBefore
	if start < 1 {
		start = 1
	}
	end := anchorLine + core.EvidenceSnippetLinesAfter
	if end > len(lines) {
		end = len(lines)
	}

	var b strings.Builder
	b.WriteString("```\n")
	for i := start; i <= end; i++ {
		fmt.Fprintf(&b, "%d| %s\n", i, lines[i-1])
	}
	b.WriteString("```")

	return RedactSecrets(b.String()), nil
}

func readAllLines(f *os.File) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// toRepoRelative rewrites an absolute path under repoRoot to repo-relative,
// and passes through paths that are already repo-relative. Paths that are
// absolute but outside repoRoot are rejected per the file-system contract.
func toRepoRelative(repoRoot, file string) (string, bool) {
	clean := filepath.Clean(file)
	if !filepath.IsAbs(clean) {
		return clean, true
	}
	rel, err := filepath.Rel(filepath.Clean(repoRoot), clean)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return rel, true
}
