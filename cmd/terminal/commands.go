package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert/yaml"

	"github.com/evidentgo/suggestengine/internal/app"
	"github.com/evidentgo/suggestengine/internal/core"
	"github.com/evidentgo/suggestengine/internal/repomanager"
	"github.com/evidentgo/suggestengine/internal/storage"
	suggestcore "github.com/evidentgo/suggestengine/internal/suggest/core"
	"github.com/evidentgo/suggestengine/internal/suggest/llmgateway"
	"github.com/evidentgo/suggestengine/internal/wire"
)

func initializeAppCmd() tea.Cmd {
	return func() tea.Msg {
		app, cleanup, err := wire.InitializeApp(context.Background())
		if err != nil {
			return appInitializedMsg{err: err}
		}

		if err := app.Cfg.ValidateForCLI(); err != nil {
			cleanup()
			return appInitializedMsg{err: fmt.Errorf("cli configuration validation failed: %w", err)}
		}

		return appInitializedMsg{app: app}
	}
}

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrConfigParsing  = errors.New("config parsing failed")
)

// loadRepoConfig loads and parses the .code-warden.yml file from a repository path.
func loadRepoConfig(repoPath string) (*core.RepoConfig, error) {
	configPath := filepath.Join(repoPath, ".code-warden.yml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return core.DefaultRepoConfig(), ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read .code-warden.yml: %w", err)
	}
	config := core.DefaultRepoConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigParsing, err)
	}
	return config, nil
}

func scanRepoCmd(app *app.App, path, repoFullName string, force bool) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		updateResult, err := app.RepoMgr.ScanLocalRepo(ctx, path, repoFullName, force)
		if err != nil {
			return errorMsg{err}
		}

		repoConfig, err := loadRepoConfig(updateResult.RepoPath)
		if err != nil {
			if errors.Is(err, ErrConfigNotFound) {
				app.Logger.Info("no .code-warden.yml found, using defaults", "repo", updateResult.RepoFullName)
			} else {
				app.Logger.Warn("failed to parse .code-warden.yml, using defaults", "error", err, "repo", updateResult.RepoFullName)
			}
			repoConfig = core.DefaultRepoConfig()
		}

		repoRecord, err := app.RepoMgr.GetRepoRecord(ctx, updateResult.RepoFullName)
		if err != nil {
			return errorMsg{err}
		}
		collectionName := repoRecord.QdrantCollectionName
		_ = repoConfig // repo-level exclude rules are applied by RepoMgr.ScanLocalRepo itself

		if updateResult.IsInitialClone || len(updateResult.FilesToAddOrUpdate) > 0 {
			files := make(map[string]suggestcore.FileIndex, len(updateResult.FilesToAddOrUpdate))
			for _, f := range updateResult.FilesToAddOrUpdate {
				files[f] = suggestcore.FileIndex{Path: f}
			}
			if app.CodeIndex != nil && len(files) > 0 {
				if err := app.CodeIndex.Sync(ctx, collectionName, updateResult.RepoPath, files); err != nil {
					return errorMsg{err}
				}
			}
		}
		if err := app.RepoMgr.UpdateRepoSHA(ctx, updateResult.RepoFullName, updateResult.HeadSHA); err != nil {
			return errorMsg{err}
		}
		return scanCompleteMsg{
			repoPath:       path,
			repoFullName:   updateResult.RepoFullName,
			collectionName: collectionName,
		}
	}
}

// answerQuestionCmd issues a single one-shot structured call through the
// gateway -- the terminal's /question path never had its own retrieval
// step, it relied on the RAG service's context stuffing. Without that, the
// question is answered directly against the model with no evidence pack.
func answerQuestionCmd(app *app.App, collectionName, question string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		res, err := app.Gateway.CallWithPrimaryThenFallback(ctx, llmgateway.Request{
			System: "You are a helpful assistant answering questions about a codebase " +
				"identified by its code index collection. Answer concisely.",
			User:       fmt.Sprintf("Collection: %s\n\nQuestion: %s", collectionName, question),
			SchemaName: "terminal_answer",
			Schema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"answer": map[string]any{"type": "string"}},
				"required":   []string{"answer"},
			},
			MaxTokens: 1024,
			Timeout:   50 * time.Second,
		})
		if err != nil {
			return errorMsg{err}
		}

		var decoded struct {
			Answer string `json:"answer"`
		}
		if err := json.Unmarshal(res.Data, &decoded); err != nil {
			return errorMsg{fmt.Errorf("decoding answer: %w", err)}
		}
		return answerCompleteMsg{content: decoded.Answer}
	}
}

func addRepoCmd(app *app.App, fullName, path string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		existingRepo, err := app.Store.GetRepositoryByFullName(ctx, fullName)
		if err != nil {
			return repoAddedMsg{err: fmt.Errorf("failed to check for existing repository: %w", err)}
		}
		if existingRepo != nil {
			return repoAddedMsg{err: fmt.Errorf("repository '%s' is already registered", fullName)}
		}
		collectionName := repomanager.GenerateCollectionName(fullName, app.Cfg.AI.EmbedderModel)
		newRepo := &storage.Repository{
			FullName:             fullName,
			ClonePath:            path,
			QdrantCollectionName: collectionName,
			EmbedderModelName:    app.Cfg.AI.EmbedderModel,
		}
		if err := app.Store.CreateRepository(ctx, newRepo); err != nil {
			return repoAddedMsg{err: fmt.Errorf("failed to create repository record: %w", err)}
		}
		return repoAddedMsg{repoFullName: fullName, repoPath: path}
	}
}

func loadReposCmd(app *app.App) tea.Cmd {
	return func() tea.Msg {
		repos, err := app.Store.GetAllRepositories(context.Background())
		return reposLoadedMsg{repos: repos, err: err}
	}
}
