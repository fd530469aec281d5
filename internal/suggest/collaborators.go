package suggest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
)

// filesystemIndex is a minimal, local-filesystem-backed implementation of
// core.Index: it walks the repo root once, estimating complexity with a
// cheap cyclomatic heuristic rather than a real language parser. Full repo
// indexing is explicitly out of scope for this engine (spec.md §1); this is
// just enough of a collaborator to drive the pipeline against a real
// working copy from any entry point (CLI, HTTP, terminal).
type filesystemIndex struct {
	files map[string]core.FileIndex
}

func (i filesystemIndex) Files() map[string]core.FileIndex { return i.files }

// StaticIndex adapts an already-built file map into a core.Index, letting
// callers enrich a filesystem walk's output (e.g. with codeindex-derived
// neighbor edges) before handing it to the pipeline.
type StaticIndex map[string]core.FileIndex

func (s StaticIndex) Files() map[string]core.FileIndex { return s }

var indexSkipDirs = []string{".git", "node_modules", "vendor", "dist", "build", ".venv"}

// BuildFilesystemIndex walks repoRoot and returns a core.Index over every
// source file it finds.
func BuildFilesystemIndex(repoRoot string) (core.Index, error) {
	files := make(map[string]core.FileIndex)

	err := filepath.Walk(repoRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			for _, skip := range indexSkipDirs {
				if info.Name() == skip {
					return filepath.SkipDir
				}
			}
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".go" && ext != ".ts" && ext != ".tsx" && ext != ".js" && ext != ".py" && ext != ".rs" {
			return nil
		}

		rel, err := filepath.Rel(repoRoot, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		text := string(content)
		loc := strings.Count(text, "\n") + 1

		files[rel] = core.FileIndex{
			Path:       rel,
			LOC:        loc,
			Complexity: estimateComplexity(text),
			Symbols:    nil,
			Patterns:   nil,
			Summary:    core.FileSummary{},
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("suggest: walking repo: %w", err)
	}
	return filesystemIndex{files: files}, nil
}

// estimateComplexity counts branch-introducing keywords/operators as a
// stand-in for a real cyclomatic-complexity pass.
func estimateComplexity(text string) float64 {
	branchMarkers := []string{"if ", "if(", "for ", "for(", "switch ", "switch(", "case ", "&&", "||", "catch"}
	count := 1.0
	for _, m := range branchMarkers {
		count += float64(strings.Count(text, m))
	}
	return count
}

// gitWorkContext reports the checked-out branch and every path go-git's
// status marks as changed in the worktree or the index (added, modified,
// deleted, renamed or untracked), matching the "current branch
// plus changed files" contract of spec.md §6.
type gitWorkContext struct {
	branch  string
	changed []string
}

func (w gitWorkContext) Branch() string { return w.branch }

func (w gitWorkContext) AllChangedFiles() []string { return w.changed }

// BuildGitWorkContext opens repoRoot as a git repository and reports its
// current branch and dirty-worktree file set as a core.WorkContext.
func BuildGitWorkContext(repoRoot string) (core.WorkContext, error) {
	repo, err := git.PlainOpen(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("suggest: opening git repo: %w", err)
	}
	head, err := repo.Head()
	branch := ""
	if err == nil {
		branch = head.Name().Short()
	}

	wt, err := repo.Worktree()
	if err != nil {
		return gitWorkContext{branch: branch}, nil
	}
	status, err := wt.Status()
	if err != nil {
		return gitWorkContext{branch: branch}, nil
	}

	var changed []string
	for path, s := range status {
		if s.Worktree != git.Unmodified || s.Staging != git.Unmodified {
			changed = append(changed, filepath.ToSlash(path))
		}
	}
	sort.Strings(changed)
	return gitWorkContext{branch: branch, changed: changed}, nil
}
