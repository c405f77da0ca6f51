package train

import (
	"context"
	"errors"
	"testing"

	"github.com/pulsecast/pulsecast/dataset"
	"github.com/pulsecast/pulsecast/pkg/testutil"
	"github.com/pulsecast/pulsecast/pkg/types"
)

func predictorUnderTest(t *testing.T) *Predictor {
	t.Helper()
	ck, _ := testCheckpoint(t)
	p, err := NewPredictor(ck, &testutil.MockEmbeddingClient{Dim: 4}, "test-model")
	if err != nil {
		t.Fatalf("NewPredictor: %v", err)
	}
	return p
}

// series builds a one-feature metric series over the month offsets given.
func series(t *testing.T, offsets ...int) *dataset.MetricSeries {
	t.Helper()
	start, err := types.ParseMonth("2024-01")
	if err != nil {
		t.Fatalf("ParseMonth: %v", err)
	}
	s := dataset.NewMetricSeries("proj", 1)
	for _, i := range offsets {
		if err := s.Set(start.Add(i), []float64{float64(i)}); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	return s
}

func TestNewPredictorRejectsModelMismatch(t *testing.T) {
	ck, _ := testCheckpoint(t)
	_, err := NewPredictor(ck, &testutil.MockEmbeddingClient{Dim: 4}, "some-other-model")
	var cerr *types.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("got %v, want ConfigurationError", err)
	}
	if cerr.Field != "text_model" {
		t.Errorf("field %q, want text_model", cerr.Field)
	}
}

func TestPredictProducesForecast(t *testing.T) {
	p := predictorUnderTest(t)
	metrics := series(t, 0, 1, 2, 3, 4, 5)
	texts := dataset.NewTextSeries("proj")
	texts.Set(metrics.Last(), "maintainer stepped down")

	forecast, err := p.Predict(context.Background(), metrics, texts)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if forecast.ProjectID != "proj" {
		t.Errorf("project %q", forecast.ProjectID)
	}
	// The anchor is the month right after the last observed one.
	if forecast.AnchorMonth != metrics.Last().Add(1) {
		t.Errorf("anchor %s, want %s", forecast.AnchorMonth, metrics.Last().Add(1))
	}
	if len(forecast.Values) != 2 || len(forecast.Months) != 2 {
		t.Fatalf("forecast spans %d/%d steps, want 2", len(forecast.Values), len(forecast.Months))
	}
	for h, m := range forecast.Months {
		if m != forecast.AnchorMonth.Add(h) {
			t.Errorf("month[%d] = %s, want %s", h, m, forecast.AnchorMonth.Add(h))
		}
		if len(forecast.Values[h]) != 1 {
			t.Errorf("step %d has %d target values, want 1", h, len(forecast.Values[h]))
		}
		if !isFinite(forecast.Values[h][0]) {
			t.Errorf("step %d value %v not finite", h, forecast.Values[h][0])
		}
	}
}

func TestPredictDeterministicForSameInput(t *testing.T) {
	p := predictorUnderTest(t)
	metrics := series(t, 0, 1, 2, 3)

	a, err := p.Predict(context.Background(), metrics, nil)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	b, err := p.Predict(context.Background(), metrics, nil)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	for h := range a.Values {
		if a.Values[h][0] != b.Values[h][0] {
			t.Fatal("repeated predictions over identical input differ")
		}
	}
}

func TestPredictRejectsShortSeries(t *testing.T) {
	p := predictorUnderTest(t)
	_, err := p.Predict(context.Background(), series(t, 0, 1, 2), nil)
	var derr *types.DataValidityError
	if !errors.As(err, &derr) {
		t.Fatalf("got %v, want DataValidityError", err)
	}
}

func TestPredictRejectsGapInWindow(t *testing.T) {
	p := predictorUnderTest(t)
	// Four months present but not consecutive: the window ending at the
	// latest month has a hole and must be rejected, not bridged.
	_, err := p.Predict(context.Background(), series(t, 0, 1, 3, 4), nil)
	var derr *types.DataValidityError
	if !errors.As(err, &derr) {
		t.Fatalf("got %v, want DataValidityError", err)
	}
}

func TestPredictRejectsArityMismatch(t *testing.T) {
	p := predictorUnderTest(t)
	s := dataset.NewMetricSeries("proj", 2)
	var cerr *types.ConfigurationError
	if _, err := p.Predict(context.Background(), s, nil); !errors.As(err, &cerr) {
		t.Fatalf("got %v, want ConfigurationError", err)
	}
}

func TestPredictEmbedsTextWindowBeforeAnchor(t *testing.T) {
	ck, _ := testCheckpoint(t)
	mock := &testutil.MockEmbeddingClient{Dim: 4}
	p, err := NewPredictor(ck, mock, "test-model")
	if err != nil {
		t.Fatalf("NewPredictor: %v", err)
	}

	metrics := series(t, 0, 1, 2, 3)
	texts := dataset.NewTextSeries("proj")
	texts.Set(metrics.Last(), "cut a major release")

	if _, err := p.Predict(context.Background(), metrics, texts); err != nil {
		t.Fatalf("Predict: %v", err)
	}
	// Lookback 2 covers the last two observed months.
	want := "[2024-03]\n[2024-04] cut a major release"
	if mock.LastText != want {
		t.Errorf("embedded text:\n got %q\nwant %q", mock.LastText, want)
	}
}
