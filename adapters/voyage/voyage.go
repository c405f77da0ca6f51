// Package voyage wraps the Voyage AI embedding API behind the embedding
// interface the text tower consumes.
package voyage

import (
	"context"
	"fmt"

	"github.com/austinfhunter/voyageai"
)

// DefaultModel is the pretrained representation model used when none is
// configured.
const DefaultModel = "voyage-3.5-lite"

// DefaultDimensions is the output dimension requested from the model.
const DefaultDimensions = 1024

// Service generates embeddings through Voyage AI.
type Service struct {
	client     *voyageai.VoyageClient
	model      string
	dimensions int
}

// NewService creates a Voyage embedding service.
func NewService(apiKey string) *Service {
	return &Service{
		client: voyageai.NewClient(&voyageai.VoyageClientOpts{
			Key: apiKey,
		}),
		model:      DefaultModel,
		dimensions: DefaultDimensions,
	}
}

// SetModel overrides the embedding model.
func (s *Service) SetModel(model string) { s.model = model }

// SetDimensions overrides the requested output dimension.
func (s *Service) SetDimensions(dims int) { s.dimensions = dims }

// Model returns the configured model identity.
func (s *Service) Model() string { return s.model }

// Dimensions returns the configured output dimension.
func (s *Service) Dimensions() int { return s.dimensions }

// GenerateEmbedding returns the embedding for a single text.
func (s *Service) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	dims := s.dimensions
	embeddings, err := s.client.Embed(
		[]string{text},
		s.model,
		&voyageai.EmbeddingRequestOpts{
			OutputDimension: &dims,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("voyage embed: %w", err)
	}
	if len(embeddings.Data) == 0 {
		return nil, fmt.Errorf("voyage embed: empty response")
	}
	return embeddings.Data[0].Embedding, nil
}
