// Package llmgateway implements the Structured LLM Gateway (C2): a
// provider-agnostic "call with schema, tokens, timeout" operation with
// primary/fallback routing and tolerant JSON decoding. It never inspects
// or invents suggestion-shaped fields; callers unmarshal the returned
// raw JSON themselves.
package llmgateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
)

// Request is one structured-JSON call.
type Request struct {
	System         string
	User           string
	ModelTier      core.ModelTier
	SchemaName     string
	Schema         map[string]any
	MaxTokens      int
	Timeout        time.Duration
	IsValidatorCall bool
}

// Result is a successful structured call: the cleaned JSON payload plus
// token usage.
type Result struct {
	Data  json.RawMessage
	Usage core.Usage
}

// StructuredClient is one concrete provider route (e.g. a local "speed"
// model over HTTP, or a hosted "smart" model over an SDK). Content is the
// raw model text, which the Gateway cleans into JSON; the client itself
// does no JSON repair.
type StructuredClient interface {
	Call(ctx context.Context, req Request) (content string, usage core.Usage, err error)
}

var (
	// ErrTransport covers connection failures, timeouts, and malformed
	// batch results -- anything retryable once under budget.
	ErrTransport = errors.New("llmgateway: transport failure")
	// ErrDecode covers schema-decode failures and truncation that
	// tolerant cleanup could not repair.
	ErrDecode = errors.New("llmgateway: response did not decode to valid JSON")
)

// Gateway routes structured calls across a primary and fallback client.
type Gateway struct {
	primary  StructuredClient
	fallback StructuredClient
	logger   *slog.Logger
}

// New builds a Gateway. fallback may be nil, in which case
// CallWithPrimaryThenFallback makes only the primary attempt (still
// limited to 2/3 of the timeout) and returns its error on failure.
func New(primary, fallback StructuredClient, logger *slog.Logger) *Gateway {
	return &Gateway{primary: primary, fallback: fallback, logger: logger}
}

// CallWithPrimaryThenFallback tries primary with 2/3 of the timeout; on
// any error it retries fallback with the remaining timeout, unless this
// is a validator call and the remaining timeout would be under 800ms.
func (g *Gateway) CallWithPrimaryThenFallback(ctx context.Context, req Request) (Result, error) {
	total := req.Timeout
	primaryBudget := total * 2 / 3

	start := time.Now()
	res, err := g.call(ctx, g.primary, req, primaryBudget)
	if err == nil {
		return res, nil
	}

	if g.fallback == nil {
		return Result{}, err
	}

	elapsed := time.Since(start)
	remaining := total - elapsed
	if req.IsValidatorCall && remaining < 800*time.Millisecond {
		return Result{}, err
	}
	if remaining <= 0 {
		return Result{}, err
	}

	g.logger.Warn("primary llm route failed, retrying fallback", "error", err, "schema", req.SchemaName)
	return g.call(ctx, g.fallback, req, remaining)
}

// CallLimited makes a single attempt against primary with the full budget.
func (g *Gateway) CallLimited(ctx context.Context, req Request) (Result, error) {
	return g.call(ctx, g.primary, req, req.Timeout)
}

func (g *Gateway) call(ctx context.Context, client StructuredClient, req Request, timeout time.Duration) (Result, error) {
	if client == nil {
		return Result{}, fmt.Errorf("%w: no client configured", ErrTransport)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	content, usage, err := client.Call(callCtx, req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	clean, err := ExtractJSON(content)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return Result{Data: clean, Usage: usage}, nil
}
