package llmgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
)

// newOllamaHTTPClient tunes timeouts for local model inference, which can
// be slow and bursty. Mirrors the teacher's newOllamaHTTPClient.
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
	}
	return &http.Client{Transport: transport, Timeout: 15 * time.Minute}
}

// OllamaClient is the "speed" StructuredClient route: a local model
// served by Ollama, queried over its generate endpoint with JSON mode.
type OllamaClient struct {
	Host       string
	Model      string
	httpClient *http.Client
}

func NewOllamaClient(host, model string) *OllamaClient {
	return &OllamaClient{Host: host, Model: model, httpClient: newOllamaHTTPClient()}
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system,omitempty"`
	Prompt  string         `json:"prompt"`
	Format  string         `json:"format,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (c *OllamaClient) Call(ctx context.Context, req Request) (string, core.Usage, error) {
	model := c.Model
	body := ollamaGenerateRequest{
		Model:  model,
		System: req.System,
		Prompt: req.User,
		Format: "json",
		Stream: false,
		Options: map[string]any{
			"num_predict": req.MaxTokens,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", core.Usage{}, err
	}

	url := fmt.Sprintf("%s/api/generate", c.Host)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", core.Usage{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", core.Usage{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", core.Usage{}, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", core.Usage{}, err
	}

	usage := core.Usage{
		PromptTokens:     out.PromptEvalCount,
		CompletionTokens: out.EvalCount,
		TotalTokens:      out.PromptEvalCount + out.EvalCount,
	}
	return out.Response, usage, nil
}
