package llmgateway

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
)

// GenaiClient is the "smart" StructuredClient route: a hosted Gemini
// model queried through the official google.golang.org/genai SDK with a
// JSON response schema.
type GenaiClient struct {
	client *genai.Client
	model  string
}

func NewGenaiClient(ctx context.Context, apiKey, model string) (*GenaiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GenaiClient{client: client, model: model}, nil
}

func (c *GenaiClient) Call(ctx context.Context, req Request) (string, core.Usage, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		MaxOutputTokens:   int32(req.MaxTokens),
	}
	if req.Schema != nil {
		cfg.ResponseSchema = schemaFromMap(req.Schema)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.User), cfg)
	if err != nil {
		return "", core.Usage{}, fmt.Errorf("genai generate content: %w", err)
	}

	usage := core.Usage{}
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	return resp.Text(), usage, nil
}

// schemaFromMap translates the engine's generic JSON-schema maps (shared
// with the Ollama "format: json" route) into the genai SDK's typed
// schema so both providers are driven off one schema definition.
func schemaFromMap(m map[string]any) *genai.Schema {
	schema := &genai.Schema{}
	if t, ok := m["type"].(string); ok {
		schema.Type = genaiTypeFromString(t)
	}
	if props, ok := m["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if sub, ok := raw.(map[string]any); ok {
				schema.Properties[name] = schemaFromMap(sub)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		schema.Items = schemaFromMap(items)
	}
	if req, ok := m["required"].([]string); ok {
		schema.Required = req
	}
	if enumRaw, ok := m["enum"].([]any); ok {
		for _, v := range enumRaw {
			if s, ok := v.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	return schema
}

func genaiTypeFromString(t string) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeUnspecified
	}
}
