// Package app initializes and orchestrates the main components of the Code Warden application.
// It wires together the configuration, server, and other services.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sevigo/goframe/embeddings"
	"github.com/sevigo/goframe/llms/gemini"
	"github.com/sevigo/goframe/llms/ollama"

	"github.com/evidentgo/suggestengine/internal/codeindex"
	"github.com/evidentgo/suggestengine/internal/config"
	"github.com/evidentgo/suggestengine/internal/core"
	"github.com/evidentgo/suggestengine/internal/db"
	"github.com/evidentgo/suggestengine/internal/gitutil"
	"github.com/evidentgo/suggestengine/internal/jobs"
	"github.com/evidentgo/suggestengine/internal/repomanager"
	"github.com/evidentgo/suggestengine/internal/server"
	"github.com/evidentgo/suggestengine/internal/storage"
	"github.com/evidentgo/suggestengine/internal/suggest/audit"
	"github.com/evidentgo/suggestengine/internal/suggest/llmgateway"
)

// App holds the main application components.
type App struct {
	Store     storage.Store
	RepoMgr   repomanager.RepoManager
	GitClient *gitutil.Client
	Cfg       *config.Config
	Logger    *slog.Logger

	// Gateway, AuditSink and CodeIndex back the evidence-grounded suggestion
	// engine (internal/suggest); NewApp hands the same instances to the
	// review job and the HTTP server, and the terminal's /question command
	// uses Gateway from this container.
	Gateway   *llmgateway.Gateway
	AuditSink audit.Sink
	CodeIndex *codeindex.Store

	server     *server.Server
	dispatcher core.JobDispatcher
}

// newOllamaHTTPClient creates an HTTP client with longer timeouts for Ollama requests.
// Ollama can take a while to process requests, so we need more generous timeouts.
func newOllamaHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxConnsPerHost:     10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableKeepAlives:   false,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   15 * time.Minute,
	}
}

// NewApp sets up the application with all its dependencies.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, func(), error) {
	logger.Info("initializing Code Warden application",
		"llm_provider", cfg.AI.LLMProvider,
		"embedder_provider", cfg.AI.EmbedderProvider,
		"generator_model", cfg.AI.GeneratorModel,
		"embedder_model", cfg.AI.EmbedderModel,
		"max_workers", cfg.Server.MaxWorkers,
		"repo_path", cfg.Storage.RepoPath,
	)

	dbConn, dbCleanup, err := initDatabase(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(dbConn.DB)
	gitClient := gitutil.NewClient(logger.With("component", "gitutil"))

	embedder, err := NewEmbedder(ctx, cfg, logger)
	if err != nil {
		dbCleanup()
		return nil, nil, err
	}

	vectorStore := storage.NewQdrantVectorStore(cfg.Storage.QdrantHost, embedder, logger)
	repoManager := repomanager.New(cfg, store, vectorStore, gitClient, logger)

	gateway, err := buildGateway(ctx, cfg, logger)
	if err != nil {
		dbCleanup()
		return nil, nil, err
	}
	auditSink := buildAuditSink(cfg, logger)
	codeIndex := codeindex.New(vectorStore, logger.With("component", "codeindex"))

	reviewJob := jobs.NewReviewJob(cfg, gateway, auditSink, codeIndex, store, store, logger, cfg.Storage.RepoPath)
	dispatcher := jobs.NewDispatcher(reviewJob, cfg.Server.MaxWorkers, logger)

	httpServer := server.NewServer(ctx, cfg, dispatcher, store, gateway, auditSink, codeIndex, logger)

	logger.Info("Code Warden application initialized successfully")
	return &App{
			Store:      store,
			RepoMgr:    repoManager,
			GitClient:  gitClient,
			Logger:     logger,
			Gateway:    gateway,
			AuditSink:  auditSink,
			CodeIndex:  codeIndex,
			server:     httpServer,
			dispatcher: dispatcher,
			Cfg:        cfg,
		}, func() {
			dbCleanup()
		}, nil
}

// buildGateway wires the two StructuredClient routes the configured AI
// section names: Ollama as the "speed" primary, Gemini (via the genai SDK)
// as the "smart" fallback.
func buildGateway(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*llmgateway.Gateway, error) {
	primary := llmgateway.NewOllamaClient(cfg.AI.OllamaHost, cfg.AI.GeneratorModel)

	var fallback llmgateway.StructuredClient
	if cfg.AI.GeminiAPIKey != "" {
		genaiClient, err := llmgateway.NewGenaiClient(ctx, cfg.AI.GeminiAPIKey, cfg.AI.GeneratorModel)
		if err != nil {
			return nil, fmt.Errorf("suggest: building genai fallback client: %w", err)
		}
		fallback = genaiClient
	}

	return llmgateway.New(primary, fallback, logger), nil
}

// buildAuditSink opens the required append-only file sink, falling back to
// a no-op sink (never a fatal error) if the path can't be opened.
func buildAuditSink(cfg *config.Config, logger *slog.Logger) audit.Sink {
	fileSink, err := audit.NewFileSink(cfg.Suggest.AuditLogPath, cfg.Suggest.AuditLogFsync, logger)
	if err != nil {
		logger.Warn("suggest: audit log disabled, falling back to no-op sink", "error", err)
		return audit.NoopSink{}
	}
	return fileSink
}

// NewEmbedder builds the configured embedder, exported so the CLI and
// terminal entry points can stand up a vector store without duplicating
// the provider switch NewApp uses.
func NewEmbedder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (embeddings.Embedder, error) {
	logger.Info("connecting to embedder", "provider", cfg.AI.EmbedderProvider, "model", cfg.AI.EmbedderModel)
	var embedderLLM embeddings.Embedder
	var err error

	switch cfg.AI.EmbedderProvider {
	case "gemini":
		embedderLLM, err = gemini.New(ctx,
			gemini.WithEmbeddingModel(cfg.AI.EmbedderModel),
			gemini.WithAPIKey(cfg.AI.GeminiAPIKey),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini embedder: %w", err)
		}
	case "ollama":
		embedderLLM, err = ollama.New(
			ollama.WithServerURL(cfg.AI.OllamaHost),
			ollama.WithModel(cfg.AI.EmbedderModel),
			ollama.WithHTTPClient(newOllamaHTTPClient()),
			ollama.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama embedder: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported embedder provider: %s", cfg.AI.EmbedderProvider)
	}

	if err != nil {
		logger.Error("failed to connect to embedder LLM", "error", err)
		return nil, fmt.Errorf("failed to create embedder LLM: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(embedderLLM)
	if err != nil {
		logger.Error("failed to create embedder service", "error", err)
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

// Start runs the HTTP server.
func (a *App) Start() error {
	a.Logger.Info("starting Code Warden",
		"server_port", a.Cfg.Server.Port,
		"max_workers", a.Cfg.Server.MaxWorkers)

	err := a.server.Start()
	if err != nil {
		a.Logger.Error("failed to start HTTP server", "error", err)
		return err
	}

	return nil
}

// Stop shuts down the application cleanly.
func (a *App) Stop() error {
	var shutdownErr error
	a.Logger.Info("shutting down Code Warden services")

	// Stop the job dispatcher, allowing in-flight jobs to finish.
	a.dispatcher.Stop()

	// Stop the HTTP server to prevent new incoming requests.
	if a.server != nil {
		serverErr := a.server.Stop()
		if serverErr != nil {
			a.Logger.Error("error during HTTP server shutdown", "error", serverErr)
			shutdownErr = errors.Join(shutdownErr, serverErr)
		}
	}

	if shutdownErr != nil {
		a.Logger.Error("Code Warden stopped with errors", "error", shutdownErr)
	} else {
		a.Logger.Info("Code Warden stopped successfully")
	}
	return shutdownErr
}

// initDatabase connects to the DB and runs migrations
func initDatabase(cfg *config.DBConfig) (*db.DB, func(), error) {
	dbConn, cleanup, err := db.NewDatabase(cfg)
	if err != nil {
		return nil, func() {}, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := dbConn.RunMigrations(); err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("failed to run database migrations: %w", err)
	}
	return dbConn, cleanup, nil
}

