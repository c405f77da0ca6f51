// Package pulsecast forecasts the monthly health trajectory of open-source
// projects by fusing two signal types per project: a numeric monthly metric
// series and a short text description of each month's notable events. A
// trainable recurrent tower encodes the numbers, a frozen pretrained model
// encodes the text, and a fusion network joins them ahead of the forecast
// heads.
package pulsecast

import (
	"context"

	"github.com/pulsecast/pulsecast/dataset"
	"github.com/pulsecast/pulsecast/model"
)

// SeriesStore supplies the per-project monthly tables produced by the
// data-ingestion side. dataset.Store is the SQLite implementation.
type SeriesStore interface {
	ListProjects(ctx context.Context) ([]string, error)
	LoadProject(ctx context.Context, projectID string) (*dataset.MetricSeries, *dataset.TextSeries, error)
}

// EmbeddingClient is re-exported so callers wiring a pipeline only import
// this package.
type EmbeddingClient = model.EmbeddingClient
