// Package adapters connects the vendor embedding services to the
// model.EmbeddingClient interface the pipeline consumes.
package adapters

import (
	"context"
	"fmt"
	"os"

	"github.com/pulsecast/pulsecast/adapters/openai"
	"github.com/pulsecast/pulsecast/adapters/voyage"
)

// VoyageEmbeddingAdapter adapts the Voyage service to the EmbeddingClient
// interface.
type VoyageEmbeddingAdapter struct {
	service *voyage.Service
}

// NewVoyageEmbeddingAdapter creates the default embedding backend. A nil
// apiKey falls back to the VOYAGEAI_API_KEY environment variable.
func NewVoyageEmbeddingAdapter(apiKey *string) (*VoyageEmbeddingAdapter, error) {
	key, err := loadEnvVar(apiKey, "VOYAGEAI_API_KEY")
	if err != nil {
		return nil, err
	}
	return &VoyageEmbeddingAdapter{service: voyage.NewService(*key)}, nil
}

// GenerateEmbedding implements EmbeddingClient.
func (a *VoyageEmbeddingAdapter) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return a.service.GenerateEmbedding(ctx, text)
}

// Model returns the pretrained model identity for checkpoints.
func (a *VoyageEmbeddingAdapter) Model() string { return a.service.Model() }

// Dimensions returns the embedding dimension.
func (a *VoyageEmbeddingAdapter) Dimensions() int { return a.service.Dimensions() }

// OpenAIEmbeddingAdapter adapts the OpenAI client to the EmbeddingClient
// interface.
type OpenAIEmbeddingAdapter struct {
	client *openai.Client
}

// NewOpenAIEmbeddingAdapter creates the alternative embedding backend. A nil
// apiKey falls back to the OPENAI_API_KEY environment variable.
func NewOpenAIEmbeddingAdapter(apiKey *string) (*OpenAIEmbeddingAdapter, error) {
	key, err := loadEnvVar(apiKey, "OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}
	return &OpenAIEmbeddingAdapter{client: openai.NewClient(*key)}, nil
}

// GenerateEmbedding implements EmbeddingClient.
func (a *OpenAIEmbeddingAdapter) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return a.client.GenerateEmbedding(ctx, text)
}

// Model returns the pretrained model identity for checkpoints.
func (a *OpenAIEmbeddingAdapter) Model() string { return a.client.Model() }

// Dimensions returns the embedding dimension.
func (a *OpenAIEmbeddingAdapter) Dimensions() int { return a.client.Dimensions() }

// loadEnvVar loads an environment variable into a pointer if no value is
// provided.
func loadEnvVar(target *string, envKey string) (*string, error) {
	if target != nil && *target != "" {
		return target, nil
	}
	v := os.Getenv(envKey)
	if v == "" {
		return nil, fmt.Errorf("missing %s: pass a key or set the environment variable", envKey)
	}
	return &v, nil
}
