package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/datalex-labs/datalex-core/internal/core/domain"
	"github.com/datalex-labs/datalex-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Enricher = (*Enricher)(nil)

// DefaultEnrichMaxChars caps how much document text goes into the prompt.
// Roughly 16k tokens at 4 characters per token.
const DefaultEnrichMaxChars = 64000

// Enricher produces a summary and keyword list for a legal document using
// a chat completion with a JSON response format.
type Enricher struct {
	client   openai.Client
	model    string
	maxChars int
}

// EnricherConfig holds configuration for the enricher.
type EnricherConfig struct {
	APIKey   string
	BaseURL  string // Optional: override for compatible endpoints
	Model    string // Default: gpt-4o
	MaxChars int    // Prompt text budget (default: 64000)
}

// NewEnricher creates an OpenAI-backed enricher.
func NewEnricher(cfg EnricherConfig) (*Enricher, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4o
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultEnrichMaxChars
	}

	return &Enricher{
		client:   openai.NewClient(opts...),
		model:    model,
		maxChars: maxChars,
	}, nil
}

// Enrich asks the model for a short summary and keyword list.
func (e *Enricher) Enrich(ctx context.Context, doc *domain.LegalDocument) (*driven.Enrichment, error) {
	text := doc.ContentText
	if len(text) > e.maxChars {
		text = text[:e.maxChars]
	}

	prompt := fmt.Sprintf(`Analyze this legal document and provide:
1. A concise summary (2-3 sentences) of what the document regulates
2. A list of 5-10 keywords covering its legal subject matter

Document title: %s
Date adopted: %s

Document text:
%s

Respond in JSON format:
{"summary": "What this document regulates", "keywords": ["keyword1", "keyword2"]}`,
		doc.Title, doc.DateAdopted, text)

	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: e.model,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	var enrichment driven.Enrichment
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &enrichment); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &enrichment, nil
}
