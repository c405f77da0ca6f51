package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/pulsecast/pulsecast/pkg/types"
)

// EmbeddingClient generates a fixed-size vector for a text. Implementations
// wrap pretrained representation models (Voyage AI, OpenAI); their parameters
// live behind the API and are never part of the optimizer's parameter set.
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// blankTextSentinel stands in for a fully empty text window so the frozen
// tower's "nothing happened" vector is deterministic and cacheable.
const blankTextSentinel = "no recorded events"

// TextEncoder is the frozen text tower. It contributes zero trainable
// parameters; its cost is inference-time compute only, which is why sample
// text windows are embedded once up front and reused across every epoch.
type TextEncoder struct {
	client EmbeddingClient
	model  string
	dim    int
}

// NewTextEncoder wraps an embedding client. The model identity and dimension
// are recorded in checkpoints so a loaded model refuses mismatched towers.
func NewTextEncoder(client EmbeddingClient, model string, dim int) *TextEncoder {
	return &TextEncoder{client: client, model: model, dim: dim}
}

// Model returns the identity of the underlying pretrained model.
func (t *TextEncoder) Model() string { return t.model }

// Dim returns the embedding dimension.
func (t *TextEncoder) Dim() int { return t.dim }

// Embed returns the vector for one text window. Empty input embeds the blank
// sentinel rather than erroring.
func (t *TextEncoder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		text = blankTextSentinel
	}
	vec, err := t.client.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed text window: %w", err)
	}
	if len(vec) != t.dim {
		return nil, fmt.Errorf("embedding model %s returned %d dimensions, expected %d", t.model, len(vec), t.dim)
	}
	return vec, nil
}

// EmbedSamples fills TextEmbedding for every sample that does not have one
// yet. Samples are otherwise immutable; this is the single enrichment pass
// that runs between sample construction and training.
func (t *TextEncoder) EmbedSamples(ctx context.Context, samples []*types.Sample) error {
	for _, s := range samples {
		if s.TextEmbedding != nil {
			continue
		}
		vec, err := t.Embed(ctx, s.TextWindow)
		if err != nil {
			return fmt.Errorf("sample %s: %w", s.Key(), err)
		}
		s.TextEmbedding = vec
	}
	return nil
}
