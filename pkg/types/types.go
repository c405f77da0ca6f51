package types

import (
	"fmt"
	"time"
)

// Month is a calendar month expressed as a count of months since year zero.
// Consecutive integers are consecutive calendar months, so gap detection and
// window arithmetic are plain integer math.
type Month int

// ParseMonth parses a month key in "YYYY-MM" form.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return 0, fmt.Errorf("invalid month key %q: %w", s, err)
	}
	return Month(t.Year()*12 + int(t.Month()) - 1), nil
}

// MonthOf converts a time to its containing Month.
func MonthOf(t time.Time) Month {
	return Month(t.Year()*12 + int(t.Month()) - 1)
}

// String renders the month back into its "YYYY-MM" key form.
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", int(m)/12, int(m)%12+1)
}

// Add returns the month n calendar months later (or earlier for negative n).
func (m Month) Add(n int) Month {
	return m + Month(n)
}

// Sample is one training example cut from a single project's aligned series.
// It is created once by the sample builder and never mutated afterward; the
// one exception is TextEmbedding, which the embedding pass fills exactly once
// before training because the text tower is frozen.
type Sample struct {
	ProjectID string
	// AnchorMonth is the first month of the target window, i.e. the first
	// month not included in the input window.
	AnchorMonth Month

	// Window is the numeric input, Window[i][f] = feature f in month
	// AnchorMonth-W+i. Always W consecutive, gap-free months.
	Window [][]float64

	// TextWindow is the concatenated event text of the K months before the
	// anchor, one "[YYYY-MM] ..." line per month, empty months contributing
	// only their marker.
	TextWindow string

	// Target is the forecast target, Target[h][m] = target metric m in month
	// AnchorMonth+h. Always H consecutive, gap-free months.
	Target [][]float64

	// TextEmbedding is the frozen text tower's vector for TextWindow. Nil
	// until the embedding pass has run.
	TextEmbedding []float32
}

// Key identifies the sample uniquely across the pooled set.
func (s *Sample) Key() string {
	return s.ProjectID + "@" + s.AnchorMonth.String()
}

// Split is a disjoint partition of the pooled samples. Every pooled sample
// appears in exactly one of the three subsets.
type Split struct {
	Train []*Sample
	Val   []*Sample
	Test  []*Sample
}

// Size returns the total number of samples across the three subsets.
func (s *Split) Size() int {
	return len(s.Train) + len(s.Val) + len(s.Test)
}

// StepMetrics holds the four accuracy metrics for one slice of predictions.
type StepMetrics struct {
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	// MAPE is computed over non-zero targets only; points with a target of
	// exactly zero are excluded from its denominator but still contribute to
	// MAE, RMSE and R2.
	MAPE float64 `json:"mape"`
	R2   float64 `json:"r2"`
}

// EvaluationReport is the held-out accuracy report for one checkpoint.
type EvaluationReport struct {
	Global StepMetrics `json:"global"`
	// ByHorizon[h] holds the metrics for forecast step h+1 in isolation.
	ByHorizon []StepMetrics `json:"by_horizon"`

	Samples int `json:"samples"`
	// MAPEExcluded counts prediction points skipped by the MAPE denominator
	// because their target value was zero.
	MAPEExcluded int    `json:"mape_excluded"`
	RunID        string `json:"run_id,omitempty"`
}

// Forecast is the predictor's output for one project.
type Forecast struct {
	ProjectID string `json:"project_id"`
	// AnchorMonth is the first forecast month, immediately after the input
	// window the forecast was computed from.
	AnchorMonth Month   `json:"-"`
	Months      []Month `json:"-"`

	// Values[h][m] is the forecast for target metric m at horizon step h+1.
	Values [][]float64 `json:"values"`
}
