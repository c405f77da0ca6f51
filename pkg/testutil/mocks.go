// Package testutil holds the hand-rolled mocks and fixture builders shared
// by the package tests.
package testutil

import (
	"context"
	"crypto/sha256"
	"sync"

	"github.com/pulsecast/pulsecast/dataset"
	"github.com/pulsecast/pulsecast/pkg/types"
)

// MockEmbeddingClient is a deterministic in-process stand-in for the frozen
// pretrained text model. Identical text always yields the identical vector.
type MockEmbeddingClient struct {
	// Dim is the vector size; defaults to 8 if zero.
	Dim int
	// GenerateEmbeddingFunc overrides the default behavior when set.
	GenerateEmbeddingFunc func(ctx context.Context, text string) ([]float32, error)

	mu        sync.Mutex
	CallCount int
	LastText  string
}

// GenerateEmbedding implements the EmbeddingClient interface.
func (m *MockEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.CallCount++
	m.LastText = text
	m.mu.Unlock()

	if m.GenerateEmbeddingFunc != nil {
		return m.GenerateEmbeddingFunc(ctx, text)
	}
	dim := m.Dim
	if dim == 0 {
		dim = 8
	}
	// Derive a stable pseudo-embedding from the text hash.
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = float32(sum[i%len(sum)])/255.0 - 0.5
	}
	return vec, nil
}

// MockSeriesStore serves in-memory projects through the SeriesStore
// interface.
type MockSeriesStore struct {
	Projects map[string]struct {
		Metrics *dataset.MetricSeries
		Texts   *dataset.TextSeries
	}
	Order []string
}

// NewMockSeriesStore returns an empty store.
func NewMockSeriesStore() *MockSeriesStore {
	return &MockSeriesStore{
		Projects: make(map[string]struct {
			Metrics *dataset.MetricSeries
			Texts   *dataset.TextSeries
		}),
	}
}

// Add registers a project.
func (m *MockSeriesStore) Add(metrics *dataset.MetricSeries, texts *dataset.TextSeries) {
	m.Projects[metrics.ProjectID] = struct {
		Metrics *dataset.MetricSeries
		Texts   *dataset.TextSeries
	}{metrics, texts}
	m.Order = append(m.Order, metrics.ProjectID)
}

// ListProjects implements SeriesStore.
func (m *MockSeriesStore) ListProjects(ctx context.Context) ([]string, error) {
	out := make([]string, len(m.Order))
	copy(out, m.Order)
	return out, nil
}

// LoadProject implements SeriesStore.
func (m *MockSeriesStore) LoadProject(ctx context.Context, projectID string) (*dataset.MetricSeries, *dataset.TextSeries, error) {
	p := m.Projects[projectID]
	return p.Metrics, p.Texts, nil
}

// GapFreeSeries builds a metric series of n consecutive months starting at
// start, with feature f of month i valued base[f]+i. The skip set (by month
// offset from start) leaves explicit gaps.
func GapFreeSeries(projectID string, start types.Month, n int, base []float64, skip map[int]bool) *dataset.MetricSeries {
	s := dataset.NewMetricSeries(projectID, len(base))
	for i := 0; i < n; i++ {
		if skip[i] {
			continue
		}
		vals := make([]float64, len(base))
		for f := range base {
			vals[f] = base[f] + float64(i)
		}
		if err := s.Set(start.Add(i), vals); err != nil {
			panic(err)
		}
	}
	return s
}
