// Package openai adapts the OpenAI API to the pipeline's model ports:
// embedding generation for the embed stage and summary/keyword extraction
// for the enrich stage.
package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/datalex-labs/datalex-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Embedder = (*Embedder)(nil)

const (
	// DefaultEmbeddingModel is the embedding model used for chunk vectors.
	DefaultEmbeddingModel = "text-embedding-3-small"

	// DefaultEmbeddingDimension is the vector dimension of text-embedding-3-small.
	DefaultEmbeddingDimension = 1536
)

// Embedder generates chunk embeddings via the OpenAI embeddings API,
// retrying rate-limited requests with exponential backoff.
type Embedder struct {
	client    openai.Client
	model     string
	dimension int
}

// EmbedderConfig holds configuration for the embedder.
type EmbedderConfig struct {
	APIKey    string
	BaseURL   string // Optional: override for compatible endpoints
	Model     string // Default: text-embedding-3-small
	Dimension int    // Default: 1536
}

// NewEmbedder creates an OpenAI-backed embedder.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = DefaultEmbeddingDimension
	}

	return &Embedder{
		client:    openai.NewClient(opts...),
		model:     model,
		dimension: dimension,
	}, nil
}

// GenerateEmbeddings embeds the given texts in one API request, retrying
// with exponential backoff on rate limit errors. Other errors fail
// immediately.
func (e *Embedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var embeddings [][]float32

	operation := func() error {
		resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: e.model,
		})
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("got %d embeddings for %d texts", len(resp.Data), len(texts)))
		}

		embeddings = make([][]float32, len(resp.Data))
		for i, data := range resp.Data {
			embeddings[i] = toFloat32(data.Embedding)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("generate embeddings: %w", err)
	}
	return embeddings, nil
}

// Dimension returns the embedding vector dimension.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// isRateLimitError checks if the error is a rate limit error (HTTP 429).
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 narrows the API's float64 vectors for storage.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
