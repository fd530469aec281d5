package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/evidentgo/suggestengine/internal/codeindex"
	"github.com/evidentgo/suggestengine/internal/config"
	"github.com/evidentgo/suggestengine/internal/storage"
	"github.com/evidentgo/suggestengine/internal/suggest"
	"github.com/evidentgo/suggestengine/internal/suggest/audit"
	suggestcore "github.com/evidentgo/suggestengine/internal/suggest/core"
	"github.com/evidentgo/suggestengine/internal/suggest/llmgateway"
)

// groundedSuggestionSystemPrompt and evidenceValidationSystemPrompt are the
// two fixed system prompts spec.md §6 treats as opaque strings owned by the
// collaborator layer. The engine itself never composes them, only the user
// prompt, so callers supply them verbatim.
const groundedSuggestionSystemPrompt = `You are a senior engineer reviewing a codebase. You will be given a
numbered list of evidence snippets pulled directly from the repository. For
each suggestion you propose, reference exactly one evidence_id. Never invent
code that is not shown. Ground every claim strictly in the snippet text.`

const evidenceValidationSystemPrompt = `You are verifying whether a proposed code suggestion is actually
supported by the evidence snippet it cites. Respond with "validated" only
if the snippet directly shows the claimed issue. Respond with "contradicted"
if the snippet refutes the claim, or "insufficient_evidence" if the snippet
does not show enough to judge.`

// SuggestHandler runs the evidence-grounded suggestion engine (internal/suggest)
// against an already-cloned repository and returns the gated result as JSON.
type SuggestHandler struct {
	cfg       *config.Config
	store     storage.Store
	gateway   *llmgateway.Gateway
	auditSink audit.Sink
	codeIndex *codeindex.Store
	logger    *slog.Logger
}

// NewSuggestHandler wires a SuggestHandler from the application's shared
// suggestion-engine collaborators (built once in app.NewApp).
func NewSuggestHandler(cfg *config.Config, store storage.Store, gateway *llmgateway.Gateway, auditSink audit.Sink, codeIndex *codeindex.Store, logger *slog.Logger) *SuggestHandler {
	return &SuggestHandler{
		cfg:       cfg,
		store:     store,
		gateway:   gateway,
		auditSink: auditSink,
		codeIndex: codeIndex,
		logger:    logger,
	}
}

// Handle serves POST /repos/{id}/suggest: {id} is the URL-escaped
// owner/repo full name of a repository already registered via the webhook
// or sync flow. It runs the fast-grounded-with-gate pipeline against the
// repository's local clone and returns the resulting core.GatedRunResult.
func (h *SuggestHandler) Handle(w http.ResponseWriter, r *http.Request) {
	repoFullName, err := url.QueryUnescape(chi.URLParam(r, "id"))
	if err != nil || repoFullName == "" {
		http.Error(w, "invalid repository id", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	repo, err := h.store.GetRepositoryByFullName(ctx, repoFullName)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		h.logger.Error("suggest: failed to look up repository", "repo", repoFullName, "error", err)
		http.Error(w, "failed to look up repository", http.StatusInternalServerError)
		return
	}
	if repo == nil {
		http.Error(w, "repository not registered", http.StatusNotFound)
		return
	}

	index, err := suggest.BuildFilesystemIndex(repo.ClonePath)
	if err != nil {
		h.logger.Error("suggest: failed to index repository", "repo", repoFullName, "error", err)
		http.Error(w, "failed to index repository", http.StatusInternalServerError)
		return
	}
	workCtx, err := suggest.BuildGitWorkContext(repo.ClonePath)
	if err != nil {
		h.logger.Error("suggest: failed to read work context", "repo", repoFullName, "error", err)
		http.Error(w, "failed to read repository work context", http.StatusInternalServerError)
		return
	}

	if h.codeIndex != nil {
		collectionName := codeindex.CollectionName(repoFullName)
		if err := h.codeIndex.Sync(ctx, collectionName, repo.ClonePath, index.Files()); err != nil {
			h.logger.Warn("suggest: code index sync failed, neighbor exploration stays static", "repo", repoFullName, "error", err)
		} else {
			enriched := codeindex.Populate(ctx, h.codeIndex, collectionName, index.Files(), workCtx.AllChangedFiles(), suggestcore.NeighborFileMax)
			index = suggest.StaticIndex(enriched)
		}
	}

	runID := fmt.Sprintf("http-%s-%d", repo.FullName, time.Now().UnixNano())
	result, err := suggest.RunFastGroundedWithGate(ctx, h.gateway, repo.ClonePath, index, workCtx, suggest.GatedRunOptions{
		Prompts: suggest.Prompts{
			Generation: groundedSuggestionSystemPrompt,
			Validation: evidenceValidationSystemPrompt,
		},
		GateConfig:  h.cfg.Suggest.GateConfig(),
		RunID:       runID,
		AuditSink:   h.auditSink,
		InitialTier: suggestcore.ModelTier(h.cfg.Suggest.GenerationModel),
	}, h.logger)
	if err != nil {
		h.logger.Error("suggest: gated run failed", "repo", repoFullName, "error", err)
		http.Error(w, fmt.Sprintf("suggest run failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.logger.Error("suggest: failed to encode result", "repo", repoFullName, "error", err)
	}
}
