// Package openai is a minimal client for the OpenAI embeddings endpoint,
// used as the alternative pretrained text representation backend.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pulsecast/pulsecast/internal/retry"
)

const defaultBaseURL = "https://api.openai.com/v1"

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "text-embedding-3-small"

// DefaultDimensions is the output dimension requested from the model.
const DefaultDimensions = 1536

// Client calls the OpenAI embeddings API with retry on transient failures.
type Client struct {
	APIKey      string
	BaseURL     string
	HTTPClient  *http.Client
	RetryConfig retry.Config

	model      string
	dimensions int
}

// NewClient creates an OpenAI embeddings client.
func NewClient(apiKey string) *Client {
	return &Client{
		APIKey:      apiKey,
		BaseURL:     defaultBaseURL,
		HTTPClient:  http.DefaultClient,
		RetryConfig: retry.DefaultConfig(),
		model:       DefaultModel,
		dimensions:  DefaultDimensions,
	}
}

// SetModel overrides the embedding model.
func (c *Client) SetModel(model string) { c.model = model }

// SetDimensions overrides the requested output dimension.
func (c *Client) SetDimensions(dims int) { c.dimensions = dims }

// Model returns the configured model identity.
func (c *Client) Model() string { return c.model }

// Dimensions returns the configured output dimension.
func (c *Client) Dimensions() int { return c.dimensions }

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// httpStatusError marks responses worth retrying (rate limits, 5xx).
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("openai embeddings: status %d: %s", e.status, e.body)
}

func retryableStatus(err error) bool {
	if se, ok := err.(*httpStatusError); ok {
		return se.status == http.StatusTooManyRequests || se.status >= 500
	}
	// Network-level errors are transient until proven otherwise.
	return true
}

// GenerateEmbedding returns the embedding for a single text.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{
		Input:      []string{text},
		Model:      c.model,
		Dimensions: c.dimensions,
	})
	if err != nil {
		return nil, err
	}

	var out embeddingResponse
	err = retry.Do(ctx, c.RetryConfig, func(int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/embeddings", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.APIKey)

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return &httpStatusError{status: resp.StatusCode, body: string(raw)}
		}
		out = embeddingResponse{}
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("openai embeddings: parse response: %w", err)
		}
		return nil
	}, retryableStatus)
	if err != nil {
		return nil, err
	}
	if out.Error != nil {
		return nil, fmt.Errorf("openai embeddings: %s", out.Error.Message)
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings: empty response")
	}
	return out.Data[0].Embedding, nil
}
