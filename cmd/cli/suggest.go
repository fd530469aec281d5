package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/spf13/cobra"

	"github.com/evidentgo/suggestengine/internal/config"
	"github.com/evidentgo/suggestengine/internal/suggest"
	"github.com/evidentgo/suggestengine/internal/suggest/audit"
	suggestcore "github.com/evidentgo/suggestengine/internal/suggest/core"
	"github.com/evidentgo/suggestengine/internal/suggest/llmgateway"
)

// fsIndex is a minimal, local-filesystem-backed implementation of
// suggestcore.Index: it walks the repo root once, estimating complexity
// with a cheap cyclomatic heuristic rather than a real language parser.
// Full repo indexing is explicitly out of scope for this engine
// (spec.md §1); this is just enough of a collaborator to drive the
// pipeline from the CLI against a real working copy.
type fsIndex struct {
	files map[string]suggestcore.FileIndex
}

func (i fsIndex) Files() map[string]suggestcore.FileIndex { return i.files }

var branchLikePaths = []string{".git", "node_modules", "vendor", "dist", "build", ".venv"}

func buildFsIndex(repoRoot string) (fsIndex, error) {
	files := make(map[string]suggestcore.FileIndex)

	err := filepath.Walk(repoRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			for _, skip := range branchLikePaths {
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
		complexity := estimateComplexity(text)

		files[rel] = suggestcore.FileIndex{
			Path:       rel,
			LOC:        loc,
			Complexity: complexity,
			Symbols:    nil,
			Patterns:   nil,
			Summary:    suggestcore.FileSummary{},
		}
		return nil
	})
	if err != nil {
		return fsIndex{}, fmt.Errorf("suggest: walking repo: %w", err)
	}
	return fsIndex{files: files}, nil
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

func buildGitWorkContext(repoRoot string) (gitWorkContext, error) {
	repo, err := git.PlainOpen(repoRoot)
	if err != nil {
		return gitWorkContext{}, fmt.Errorf("suggest: opening git repo: %w", err)
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

// buildGateway wires the two StructuredClient routes the teacher's AI
// config already names: Ollama as the "speed" primary, Gemini (via the
// genai SDK) as the "smart" fallback, the same wiring as app.buildGateway.
func buildGateway(cfg *config.Config, logger *slog.Logger) (*llmgateway.Gateway, error) {
	primary := llmgateway.NewOllamaClient(cfg.AI.OllamaHost, cfg.AI.GeneratorModel)

	var fallback llmgateway.StructuredClient
	if cfg.AI.GeminiAPIKey != "" {
		ctx := context.Background()
		genaiClient, err := llmgateway.NewGenaiClient(ctx, cfg.AI.GeminiAPIKey, cfg.AI.GeneratorModel)
		if err != nil {
			return nil, fmt.Errorf("suggest: building genai fallback client: %w", err)
		}
		fallback = genaiClient
	}

	return llmgateway.New(primary, fallback, logger), nil
}

var suggestCmd = &cobra.Command{
	Use:   "suggest [path]",
	Short: "Generate evidence-grounded code suggestions for a local repository.",
	Long: `Runs the evidence-grounded suggestion engine end to end against a local
working copy: builds the evidence pack, drives generation and validation
through the quality gate, and prints the final suggestion list.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoPath := args[0]
		logger := slog.Default()

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		idx, err := buildFsIndex(repoPath)
		if err != nil {
			return err
		}
		workCtx, err := buildGitWorkContext(repoPath)
		if err != nil {
			return err
		}

		gw, err := buildGateway(cfg, logger)
		if err != nil {
			return err
		}

		sink, err := audit.NewFileSink(cfg.Suggest.AuditLogPath, cfg.Suggest.AuditLogFsync, logger)
		if err != nil {
			logger.Warn("suggest: audit log disabled, falling back to no-op sink", "error", err)
			sink = nil
		} else {
			defer sink.Close()
		}
		var auditSink audit.Sink = audit.NoopSink{}
		if sink != nil {
			auditSink = sink
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Minute)
		defer cancel()

		result, err := suggest.RunFastGroundedWithGate(ctx, gw, repoPath, idx, workCtx, suggest.GatedRunOptions{
			Prompts: suggest.Prompts{
				Generation: groundedSuggestionSystemPrompt,
				Validation: evidenceValidationSystemPrompt,
			},
			GateConfig:  cfg.Suggest.GateConfig(),
			RunID:       fmt.Sprintf("cli-%d", time.Now().UnixNano()),
			AuditSink:   auditSink,
			InitialTier: suggestcore.ModelTier(cfg.Suggest.GenerationModel),
		}, logger)
		if err != nil {
			return fmt.Errorf("suggest: %w", err)
		}

		fmt.Printf("Gate passed: %v (attempt %d, %d suggestions)\n",
			result.Gate.Passed, result.Gate.AttemptIndex, len(result.Suggestions))
		for _, s := range result.Suggestions {
			fmt.Printf("\n[%s/%s] %s:%d\n  %s\n", s.Kind, s.Priority, s.File, s.Line, s.Summary)
		}
		if !result.Gate.Passed {
			fmt.Printf("\nquality_gate_missed_best_effort: %v\n", result.Gate.FailReasons)
		}
		return nil
	},
}

// groundedSuggestionSystemPrompt and evidenceValidationSystemPrompt are
// the two fixed system prompts spec.md §6 treats as opaque strings owned
// by the collaborator layer. They're kept here rather than in internal/suggest
// because the engine itself never composes them -- only the user prompt.
const groundedSuggestionSystemPrompt = `You are a senior engineer reviewing a codebase. You will be given a
numbered list of evidence snippets pulled directly from the repository. For
each suggestion you propose, reference exactly one evidence_id. Never invent
code that is not shown. Ground every claim strictly in the snippet text.`

const evidenceValidationSystemPrompt = `You are verifying whether a proposed code suggestion is actually
supported by the evidence snippet it cites. Respond with "validated" only
if the snippet directly shows the claimed issue. Respond with "contradicted"
if the snippet refutes the claim, or "insufficient_evidence" if the snippet
does not show enough to judge.`

func init() {
	rootCmd.AddCommand(suggestCmd)
}
