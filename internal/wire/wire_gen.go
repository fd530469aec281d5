// Code generated manually. DO NOT EDIT.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package wire

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/evidentgo/suggestengine/internal/app"
	"github.com/evidentgo/suggestengine/internal/config"
	"github.com/evidentgo/suggestengine/internal/logger"
)

// InitializeApp loads configuration, sets up logging, and defers the rest
// of the dependency graph -- database, vector store, LLM clients, the
// review job dispatcher, the HTTP server, and the evidence-grounded
// suggestion engine's collaborators -- to app.NewApp, which is the single
// place that graph is assembled.
func InitializeApp(ctx context.Context) (*app.App, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	var logWriter io.Writer
	switch cfg.Logging.Output {
	case "stderr":
		logWriter = os.Stderr
	case "file":
		f, _ := os.OpenFile("code-warden.log", os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		logWriter = f
	default:
		logWriter = os.Stdout
	}
	slogLogger := logger.NewLogger(cfg.Logging, logWriter)

	return app.NewApp(ctx, cfg, slogLogger)
}
