// File: ./internal/repomanager/manager.go
// Package repomanager handles the persistent cloning and updating of Git repositories.
package repomanager

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/evidentgo/suggestengine/internal/config"
	"github.com/evidentgo/suggestengine/internal/core"
	"github.com/evidentgo/suggestengine/internal/gitutil"
	"github.com/evidentgo/suggestengine/internal/storage"
)

// manager implements the core.RepoManager interface.
type manager struct {
	cfg         *config.Config
	store       storage.Store
	vectorStore storage.VectorStore
	gitClient   *gitutil.Client
	logger      *slog.Logger
	repoMux     sync.Map // To lock operations on a per-repository basis
}

// RepoManager defines the contract for a service that manages local repository clones.
type RepoManager interface {
	// SyncRepo ensures a repository is cloned and up-to-date with the given SHA.
	// It returns the local path and lists of files that have changed since the last indexed SHA.
	SyncRepo(ctx context.Context, event *core.GitHubEvent, token string) (*core.UpdateResult, error)

	// ScanLocalRepo indexes a repository already checked out on disk, without
	// cloning through GitHub. Used by the interactive terminal.
	ScanLocalRepo(ctx context.Context, repoPath, repoFullName string, force bool) (*core.UpdateResult, error)

	// GetRepoRecord retrieves the repository's state from the database.
	GetRepoRecord(ctx context.Context, repoFullName string) (*storage.Repository, error)

	// UpdateRepoSHA updates the last indexed SHA for a repository.
	UpdateRepoSHA(ctx context.Context, repoFullName, newSHA string) error
}

// New creates a new RepoManager.
func New(cfg *config.Config, store storage.Store, vectorStore storage.VectorStore, gitClient *gitutil.Client, logger *slog.Logger) RepoManager {
	return &manager{
		cfg:         cfg,
		store:       store,
		vectorStore: vectorStore,
		gitClient:   gitClient,
		logger:      logger,
	}
}

// SyncRepo is the core method that handles cloning or updating a repository
// for a GitHub-driven event. It locks per-repository to avoid racing
// concurrent webhook deliveries, then delegates to syncRepo.
func (m *manager) SyncRepo(ctx context.Context, event *core.GitHubEvent, token string) (*core.UpdateResult, error) {
	val, _ := m.repoMux.LoadOrStore(event.RepoFullName, &sync.Mutex{})
	mux := val.(*sync.Mutex)
	mux.Lock()
	defer mux.Unlock()

	return m.syncRepo(ctx, event, token)
}

// ScanLocalRepo indexes a repository that is already present on disk,
// locking per-repository the same way SyncRepo does.
func (m *manager) ScanLocalRepo(ctx context.Context, repoPath, repoFullName string, force bool) (*core.UpdateResult, error) {
	key := repoFullName
	if key == "" {
		key = repoPath
	}
	val, _ := m.repoMux.LoadOrStore(key, &sync.Mutex{})
	mux := val.(*sync.Mutex)
	mux.Lock()
	defer mux.Unlock()

	return m.scanLocalRepo(ctx, repoPath, repoFullName, force)
}

// GetRepoRecord retrieves a repository's state from the database.
func (m *manager) GetRepoRecord(ctx context.Context, repoFullName string) (*storage.Repository, error) {
	return m.store.GetRepositoryByFullName(ctx, repoFullName)
}

// UpdateRepoSHA updates the last indexed SHA for a repository after a successful sync.
func (m *manager) UpdateRepoSHA(ctx context.Context, repoFullName, newSHA string) error {
	repo, err := m.store.GetRepositoryByFullName(ctx, repoFullName)
	if err != nil {
		return fmt.Errorf("failed to get repo for SHA update: %w", err)
	}
	if repo == nil {
		return fmt.Errorf("cannot update SHA for non-existent repo: %s", repoFullName)
	}
	repo.LastIndexedSHA = newSHA
	return m.store.UpdateRepository(ctx, repo)
}

func (m *manager) listRepoFiles(repoPath string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(repoPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.Contains(path, ".git") {
			return nil
		}
		relPath, err := filepath.Rel(repoPath, path)
		if err != nil {
			return err
		}
		files = append(files, relPath)
		return nil
	})
	return files, err
}
