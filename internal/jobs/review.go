// Package jobs defines background tasks such as code reviews.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/evidentgo/suggestengine/internal/codeindex"
	"github.com/evidentgo/suggestengine/internal/config"
	"github.com/evidentgo/suggestengine/internal/core"
	"github.com/evidentgo/suggestengine/internal/github"
	"github.com/evidentgo/suggestengine/internal/gitutil"
	"github.com/evidentgo/suggestengine/internal/storage"
	"github.com/evidentgo/suggestengine/internal/suggest"
	"github.com/evidentgo/suggestengine/internal/suggest/audit"
	suggestcore "github.com/evidentgo/suggestengine/internal/suggest/core"
	"github.com/evidentgo/suggestengine/internal/suggest/llmgateway"
)

var collectionNameRegexp = regexp.MustCompile("[^a-z0-9_-]+")

// groundedSuggestionSystemPrompt and evidenceValidationSystemPrompt mirror
// the prompts server/handler/suggest.go and cmd/cli/suggest.go use: spec.md
// §6 treats these as opaque strings owned by the collaborator layer, so the
// webhook-triggered path supplies the same two verbatim.
const groundedSuggestionSystemPrompt = `You are a senior engineer reviewing a codebase. You will be given a
numbered list of evidence snippets pulled directly from the repository. For
each suggestion you propose, reference exactly one evidence_id. Never invent
code that is not shown. Ground every claim strictly in the snippet text.`

const evidenceValidationSystemPrompt = `You are verifying whether a proposed code suggestion is actually
supported by the evidence snippet it cites. Respond with "validated" only
if the snippet directly shows the claimed issue. Respond with "contradicted"
if the snippet refutes the claim, or "insufficient_evidence" if the snippet
does not show enough to judge.`

// ReviewJob runs the evidence-grounded suggestion engine (internal/suggest)
// against a PR's head commit and posts the result as a GitHub PR review.
type ReviewJob struct {
	cfg         *config.Config
	gateway     *llmgateway.Gateway
	auditSink   audit.Sink
	codeIndex   *codeindex.Store
	reviewStore storage.Store
	repoStore   storage.Store
	gitClient   *gitutil.Client
	logger      *slog.Logger
	repoPath    string
}

// NewReviewJob creates a new ReviewJob with all its dependencies. codeIndex
// may be nil when no vector store is configured; the engine falls back to a
// plain filesystem index with no neighbor exploration in that case.
func NewReviewJob(cfg *config.Config, gateway *llmgateway.Gateway, auditSink audit.Sink, codeIndex *codeindex.Store, reviewStore storage.Store, repoStore storage.Store, logger *slog.Logger, repoPath string) core.Job {
	if cfg == nil || gateway == nil || auditSink == nil || reviewStore == nil || repoStore == nil || logger == nil || repoPath == "" {
		panic("NewReviewJob received a nil or empty dependency")
	}
	return &ReviewJob{
		cfg:         cfg,
		gateway:     gateway,
		auditSink:   auditSink,
		codeIndex:   codeIndex,
		reviewStore: reviewStore,
		repoStore:   repoStore,
		gitClient:   gitutil.NewClient(logger),
		logger:      logger,
		repoPath:    repoPath,
	}
}

// Run acts as a router, directing the event to the correct review flow.
func (j *ReviewJob) Run(ctx context.Context, event *core.GitHubEvent) error {
	if err := j.validateInputs(event); err != nil {
		j.logger.Error("Input validation failed", "error", err)
		return err
	}
	return j.runReview(ctx, event)
}

// runReview clones (or refreshes) the PR's repository at its head SHA, runs
// the gated suggestion pipeline against it, and posts the result as a
// structured PR review.
func (j *ReviewJob) runReview(ctx context.Context, event *core.GitHubEvent) (err error) {
	j.logger.Info("Starting suggestion review job", "repo", event.RepoFullName, "pr", event.PRNumber)

	ghToken, statusUpdater, checkRunID, err := j.setupReview(ctx, event, "Suggestion Review", "Evidence-grounded analysis in progress...")
	if err != nil {
		return err
	}

	defer func() {
		if err != nil && statusUpdater != nil {
			j.updateStatusOnError(ctx, statusUpdater, event, checkRunID, err)
		}
	}()

	clonePath, err := j.syncClone(ctx, event, ghToken)
	if err != nil {
		return fmt.Errorf("failed to sync repository: %w", err)
	}

	index, err := suggest.BuildFilesystemIndex(clonePath)
	if err != nil {
		return fmt.Errorf("failed to index repository: %w", err)
	}
	workCtx, err := suggest.BuildGitWorkContext(clonePath)
	if err != nil {
		return fmt.Errorf("failed to read repository work context: %w", err)
	}

	if j.codeIndex != nil {
		collectionName := codeindex.CollectionName(event.RepoFullName)
		if syncErr := j.codeIndex.Sync(ctx, collectionName, clonePath, index.Files()); syncErr != nil {
			j.logger.Warn("code index sync failed, neighbor exploration stays static", "repo", event.RepoFullName, "error", syncErr)
		} else {
			enriched := codeindex.Populate(ctx, j.codeIndex, collectionName, index.Files(), workCtx.AllChangedFiles(), suggestcore.NeighborFileMax)
			index = suggest.StaticIndex(enriched)
		}
	}

	runID := fmt.Sprintf("job-%s-pr%d-%d", collectionNameRegexp.ReplaceAllString(strings.ToLower(event.RepoFullName), "-"), event.PRNumber, checkRunID)
	result, err := suggest.RunFastGroundedWithGate(ctx, j.gateway, clonePath, index, workCtx, suggest.GatedRunOptions{
		Prompts: suggest.Prompts{
			Generation: groundedSuggestionSystemPrompt,
			Validation: evidenceValidationSystemPrompt,
		},
		GateConfig:  j.cfg.Suggest.GateConfig(),
		RunID:       runID,
		AuditSink:   j.auditSink,
		InitialTier: suggestcore.ModelTier(j.cfg.Suggest.GenerationModel),
	}, j.logger)
	if err != nil {
		return fmt.Errorf("failed to run suggestion engine: %w", err)
	}

	converted := make([]core.Suggestion, 0, len(result.Suggestions))
	for _, s := range result.Suggestions {
		converted = append(converted, toCoreSuggestion(s))
	}
	filtered := FilterNonCodeSuggestions(j.logger, converted)
	review := buildStructuredReview(filtered, result.Gate)

	if err = statusUpdater.PostStructuredReview(ctx, event, review); err != nil {
		return fmt.Errorf("failed to post review: %w", err)
	}

	dbReview := &core.Review{
		RepoFullName:  event.RepoFullName,
		PRNumber:      event.PRNumber,
		HeadSHA:       event.HeadSHA,
		ReviewContent: renderMarkdownSummary(review),
	}
	if err = j.reviewStore.SaveReview(ctx, dbReview); err != nil {
		j.logger.Error("failed to save review to database", "error", err)
		// We log this but don't fail the job, as the user has received the review.
	}

	if err = statusUpdater.Completed(ctx, event, checkRunID, "success", "Review Complete", fmt.Sprintf("%d grounded suggestion(s) posted.", len(filtered))); err != nil {
		return fmt.Errorf("failed to update completion status: %w", err)
	}

	j.logger.Info("Suggestion review job completed successfully", "suggestions", len(filtered))
	return nil
}

// syncClone ensures a local clone of the event's repository exists, checked
// out at the event's head SHA, and returns its path. The first time a repo
// is seen it is cloned fresh and registered in the DB; afterwards its
// existing clone is fetched and re-checked-out in place.
func (j *ReviewJob) syncClone(ctx context.Context, event *core.GitHubEvent, ghToken string) (string, error) {
	repo, err := j.repoStore.GetRepositoryByFullName(ctx, event.RepoFullName)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("failed to get repository from DB: %w", err)
	}

	if repo == nil {
		clonePath := filepath.Join(j.repoPath, collectionNameRegexp.ReplaceAllString(strings.ToLower(event.RepoFullName), "-"))
		cloneCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		if _, err := j.gitClient.Clone(cloneCtx, event.RepoCloneURL, clonePath, ghToken); err != nil {
			return "", fmt.Errorf("failed to clone repository: %w", err)
		}

		repo = &storage.Repository{
			FullName:             event.RepoFullName,
			ClonePath:            clonePath,
			QdrantCollectionName: codeindex.CollectionName(event.RepoFullName),
			LastIndexedSHA:       event.HeadSHA,
		}
		if err := j.repoStore.CreateRepository(ctx, repo); err != nil {
			return "", fmt.Errorf("failed to create repository entry in DB: %w", err)
		}
		return clonePath, nil
	}

	gitRepo, err := j.gitClient.Open(repo.ClonePath)
	if err != nil {
		return "", fmt.Errorf("failed to open cloned repository: %w", err)
	}
	if err := j.gitClient.Fetch(ctx, gitRepo, ghToken); err != nil {
		return "", fmt.Errorf("failed to fetch repository updates: %w", err)
	}
	if err := j.gitClient.Checkout(gitRepo, event.HeadSHA); err != nil {
		return "", fmt.Errorf("failed to checkout head SHA: %w", err)
	}

	repo.LastIndexedSHA = event.HeadSHA
	if err := j.repoStore.UpdateRepository(ctx, repo); err != nil {
		return "", fmt.Errorf("failed to update repository entry in DB: %w", err)
	}
	return repo.ClonePath, nil
}

// setupReview initializes the GitHub client, gets PR details, and sets the initial status.
func (j *ReviewJob) setupReview(ctx context.Context, event *core.GitHubEvent, title, summary string) (ghToken string, statusUpdater github.StatusUpdater, checkRunID int64, err error) {
	ghClient, ghToken, err := github.CreateInstallationClient(ctx, j.cfg, event.InstallationID, j.logger)
	if err != nil {
		err = fmt.Errorf("failed to create GitHub client: %w", err)
		return
	}

	pr, err := ghClient.GetPullRequest(ctx, event.RepoOwner, event.RepoName, event.PRNumber)
	if err != nil {
		err = fmt.Errorf("failed to get PR details: %w", err)
		return
	}
	if pr.GetHead() == nil || pr.GetHead().GetSHA() == "" {
		err = fmt.Errorf("PR #%d has no valid head SHA", event.PRNumber)
		return
	}
	event.HeadSHA = pr.GetHead().GetSHA()

	statusUpdater = github.NewStatusUpdater(ghClient, j.logger)
	checkRunID, err = statusUpdater.InProgress(ctx, event, title, summary)
	if err != nil {
		err = fmt.Errorf("failed to set in-progress status: %w", err)
		return
	}

	return
}

// updateStatusOnError logs the job error and updates the GitHub check run.
func (j *ReviewJob) updateStatusOnError(ctx context.Context, statusUpdater github.StatusUpdater, event *core.GitHubEvent, checkRunID int64, jobErr error) {
	j.logger.Error("Review job step failed", "error", jobErr, "repo", event.RepoFullName, "pr", event.PRNumber)
	if err := statusUpdater.Completed(ctx, event, checkRunID, "failure", "Review Failed", jobErr.Error()); err != nil {
		j.logger.Error("Failed to update failure status on GitHub", "original_error", jobErr, "status_update_error", err)
	}
}

// validateInputs ensures the event contains all required fields.
func (j *ReviewJob) validateInputs(event *core.GitHubEvent) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	switch {
	case event.RepoOwner == "":
		return errors.New("repository owner cannot be empty")
	case event.RepoName == "":
		return errors.New("repository name cannot be empty")
	case event.RepoFullName == "":
		return errors.New("repository full name cannot be empty")
	case event.RepoCloneURL == "":
		return errors.New("repository clone URL cannot be empty")
	case event.PRNumber <= 0:
		return fmt.Errorf("pull request number must be positive, got: %d", event.PRNumber)
	case event.InstallationID <= 0:
		return fmt.Errorf("installation ID must be positive, got: %d", event.InstallationID)
	}
	return nil
}
