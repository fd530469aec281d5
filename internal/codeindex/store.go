// Package codeindex persists a repository's per-file index into Qdrant so
// that neighbor exploration (evidence source C1) can walk semantic
// relationships instead of only the static DependsOn/UsedBy edges a
// filesystem walk can see.
package codeindex

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sevigo/goframe/schema"

	"github.com/evidentgo/suggestengine/internal/storage"
	suggestcore "github.com/evidentgo/suggestengine/internal/suggest/core"
)

// Store indexes file content into a per-repo Qdrant collection and answers
// nearest-neighbor queries over it.
type Store struct {
	vectorStore storage.VectorStore
	logger      *slog.Logger
}

// New wraps an already-constructed vector store. The caller owns the
// embedder/host configuration baked into vectorStore.
func New(vectorStore storage.VectorStore, logger *slog.Logger) *Store {
	return &Store{vectorStore: vectorStore, logger: logger}
}

// CollectionName derives the per-repo Qdrant collection the suggestion
// engine's code index lives in, distinct from the review pipeline's own
// per-repo collections so a running review job never fights the suggest
// engine's evidence gathering over the same vectors.
func CollectionName(repoFullName string) string {
	return fmt.Sprintf("codeindex-%s", repoFullName)
}

// Sync embeds and stores every file's content under path, keyed by its
// repo-relative path in document metadata. Best-effort per file: a file
// that fails to read or embed is skipped and logged rather than aborting
// the whole sync, matching the engine's "never let an auxiliary collaborator
// block the pipeline" posture.
func (s *Store) Sync(ctx context.Context, collectionName, repoRoot string, files map[string]suggestcore.FileIndex) error {
	docs := make([]schema.Document, 0, len(files))
	for path := range files {
		content, err := os.ReadFile(repoRoot + string(os.PathSeparator) + path)
		if err != nil {
			s.logger.Warn("codeindex: skipping unreadable file", "path", path, "error", err)
			continue
		}
		docs = append(docs, schema.NewDocument(string(content), map[string]any{"path": path}))
	}
	if len(docs) == 0 {
		return nil
	}
	if err := s.vectorStore.AddDocuments(ctx, collectionName, docs); err != nil {
		return fmt.Errorf("codeindex: syncing %d files: %w", len(docs), err)
	}
	return nil
}

// Neighbors returns up to k other files whose content is semantically
// closest to path's, excluding path itself.
func (s *Store) Neighbors(ctx context.Context, collectionName string, files map[string]suggestcore.FileIndex, path string, k int) ([]string, error) {
	fi, ok := files[path]
	if !ok {
		return nil, nil
	}
	query := fi.Summary.Purpose
	if query == "" {
		query = path
	}
	docs, err := s.vectorStore.SimilaritySearch(ctx, collectionName, query, k+1)
	if err != nil {
		return nil, fmt.Errorf("codeindex: neighbor search for %s: %w", path, err)
	}
	neighbors := make([]string, 0, len(docs))
	for _, d := range docs {
		other, _ := d.Metadata["path"].(string)
		if other == "" || other == path {
			continue
		}
		neighbors = append(neighbors, other)
		if len(neighbors) >= k {
			break
		}
	}
	return neighbors, nil
}

// Populate fills in DependsOn for every changed file from Neighbors,
// returning a copy of files with those edges added. Files not present in
// changed are returned unmodified. This is what lets evidence.BuildPack's
// neighbor exploration reach beyond whatever static DependsOn/UsedBy a
// caller's Index implementation already knows about.
func Populate(ctx context.Context, store *Store, collectionName string, files map[string]suggestcore.FileIndex, changed []string, perFile int) map[string]suggestcore.FileIndex {
	if store == nil {
		return files
	}
	out := make(map[string]suggestcore.FileIndex, len(files))
	for path, fi := range files {
		out[path] = fi
	}
	for _, path := range changed {
		fi, ok := out[path]
		if !ok {
			continue
		}
		neighbors, err := store.Neighbors(ctx, collectionName, files, path, perFile)
		if err != nil {
			store.logger.Warn("codeindex: neighbor lookup failed, falling back to static edges", "path", path, "error", err)
			continue
		}
		fi.Summary.DependsOn = mergeUnique(fi.Summary.DependsOn, neighbors)
		out[path] = fi
	}
	return out
}

func mergeUnique(existing, extra []string) []string {
	seen := make(map[string]bool, len(existing))
	out := make([]string, 0, len(existing)+len(extra))
	for _, v := range existing {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, v := range extra {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
