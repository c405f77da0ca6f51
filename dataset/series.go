// Package dataset turns raw per-project monthly series into the pooled,
// split training samples the trainer consumes. It also holds the SQLite
// store that the data-ingestion side writes into.
package dataset

import (
	"fmt"
	"sort"

	"github.com/pulsecast/pulsecast/pkg/types"
)

// MetricSeries is one project's ordered monthly metric table. Months are
// strictly increasing and unique; a missing month is an explicit gap, never
// silently bridged.
type MetricSeries struct {
	ProjectID string

	arity  int
	months []types.Month
	values map[types.Month][]float64
}

// NewMetricSeries returns an empty series expecting the given feature arity
// on every month.
func NewMetricSeries(projectID string, arity int) *MetricSeries {
	return &MetricSeries{
		ProjectID: projectID,
		arity:     arity,
		values:    make(map[types.Month][]float64),
	}
}

// Arity returns the per-month feature count.
func (s *MetricSeries) Arity() int { return s.arity }

// Len returns the number of months present.
func (s *MetricSeries) Len() int { return len(s.months) }

// Set records the metric vector for a month. Duplicate months and wrong-arity
// vectors are rejected.
func (s *MetricSeries) Set(m types.Month, vals []float64) error {
	if len(vals) != s.arity {
		return &types.ConfigurationError{
			Field:  "features",
			Reason: fmt.Sprintf("project %s month %s has %d features, series expects %d", s.ProjectID, m, len(vals), s.arity),
		}
	}
	if _, ok := s.values[m]; ok {
		return &types.DataValidityError{ProjectID: s.ProjectID, Month: m, Reason: "duplicate month"}
	}
	cp := make([]float64, len(vals))
	copy(cp, vals)
	s.values[m] = cp

	i := sort.Search(len(s.months), func(i int) bool { return s.months[i] >= m })
	s.months = append(s.months, 0)
	copy(s.months[i+1:], s.months[i:])
	s.months[i] = m
	return nil
}

// At returns the metric vector for a month, if present.
func (s *MetricSeries) At(m types.Month) ([]float64, bool) {
	v, ok := s.values[m]
	return v, ok
}

// Months returns the present months in ascending order.
func (s *MetricSeries) Months() []types.Month {
	out := make([]types.Month, len(s.months))
	copy(out, s.months)
	return out
}

// First and Last return the series bounds; both are zero for an empty series.
func (s *MetricSeries) First() types.Month {
	if len(s.months) == 0 {
		return 0
	}
	return s.months[0]
}

func (s *MetricSeries) Last() types.Month {
	if len(s.months) == 0 {
		return 0
	}
	return s.months[len(s.months)-1]
}

// HasRange reports whether every month in [from, from+n) is present.
func (s *MetricSeries) HasRange(from types.Month, n int) bool {
	for i := 0; i < n; i++ {
		if _, ok := s.values[from.Add(i)]; !ok {
			return false
		}
	}
	return true
}

// TextSeries is one project's monthly event-text table. It shares the month
// key space with the project's MetricSeries but is independently sparse; a
// missing month degrades to an empty string rather than invalidating windows.
type TextSeries struct {
	ProjectID string
	texts     map[types.Month]string
}

// NewTextSeries returns an empty text series.
func NewTextSeries(projectID string) *TextSeries {
	return &TextSeries{ProjectID: projectID, texts: make(map[types.Month]string)}
}

// Set records the event text for a month, overwriting any previous entry.
func (s *TextSeries) Set(m types.Month, text string) {
	s.texts[m] = text
}

// At returns the event text for a month, empty if absent.
func (s *TextSeries) At(m types.Month) string {
	return s.texts[m]
}

// Len returns the number of months with recorded text.
func (s *TextSeries) Len() int { return len(s.texts) }
