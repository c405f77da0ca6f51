package dataset

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/pulsecast/pulsecast/pkg/types"
)

func month(t *testing.T, key string) types.Month {
	t.Helper()
	m, err := types.ParseMonth(key)
	if err != nil {
		t.Fatalf("ParseMonth(%q): %v", key, err)
	}
	return m
}

// consecutiveSeries builds n gap-free months starting at start, with feature
// f of month i valued float64(f*100 + i). Offsets in skip are left out.
func consecutiveSeries(t *testing.T, start types.Month, n, arity int, skip ...int) *MetricSeries {
	t.Helper()
	skipSet := make(map[int]bool, len(skip))
	for _, i := range skip {
		skipSet[i] = true
	}
	s := NewMetricSeries("proj", arity)
	for i := 0; i < n; i++ {
		if skipSet[i] {
			continue
		}
		vals := make([]float64, arity)
		for f := range vals {
			vals[f] = float64(f*100 + i)
		}
		if err := s.Set(start.Add(i), vals); err != nil {
			t.Fatalf("Set month %d: %v", i, err)
		}
	}
	return s
}

func TestBuildSamplesCountGapFree(t *testing.T) {
	// 24 consecutive months with W=12, H=3 admit 24-12-3+1 = 10 anchors.
	start := month(t, "2022-01")
	metrics := consecutiveSeries(t, start, 24, 2)
	cfg := BuilderConfig{Window: 12, Horizon: 3, TextLookback: 3, TargetFeatures: []int{0}}

	samples, err := BuildSamples(metrics, nil, cfg)
	if err != nil {
		t.Fatalf("BuildSamples: %v", err)
	}
	if len(samples) != 10 {
		t.Fatalf("got %d samples, want 10", len(samples))
	}

	// Anchors ascend one month at a time from first+W.
	for i, s := range samples {
		if want := start.Add(12 + i); s.AnchorMonth != want {
			t.Errorf("sample %d anchor %s, want %s", i, s.AnchorMonth, want)
		}
	}
}

func TestBuildSamplesWindowAndTargetContents(t *testing.T) {
	start := month(t, "2022-01")
	metrics := consecutiveSeries(t, start, 16, 3)
	cfg := BuilderConfig{Window: 12, Horizon: 3, TextLookback: 2, TargetFeatures: []int{2, 0}}

	samples, err := BuildSamples(metrics, nil, cfg)
	if err != nil {
		t.Fatalf("BuildSamples: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}

	s := samples[0] // anchor at offset 12
	if len(s.Window) != 12 {
		t.Fatalf("window length %d, want 12", len(s.Window))
	}
	// Window row 0 is month offset 0, row 11 is offset 11 (the anchor excluded).
	if !reflect.DeepEqual(s.Window[0], []float64{0, 100, 200}) {
		t.Errorf("window[0] = %v", s.Window[0])
	}
	if !reflect.DeepEqual(s.Window[11], []float64{11, 111, 211}) {
		t.Errorf("window[11] = %v", s.Window[11])
	}
	// Targets pick only the configured features, in configured order, for
	// months t..t+H-1.
	if !reflect.DeepEqual(s.Target[0], []float64{212, 12}) {
		t.Errorf("target[0] = %v", s.Target[0])
	}
	if !reflect.DeepEqual(s.Target[2], []float64{214, 14}) {
		t.Errorf("target[2] = %v", s.Target[2])
	}
}

func TestBuildSamplesGapInvalidatesOverlappingAnchors(t *testing.T) {
	// One missing month in the middle of 24 kills every anchor whose window
	// or horizon overlaps it. With W=12, H=3 and the gap at offset 13, no
	// anchor survives at all.
	start := month(t, "2022-01")
	metrics := consecutiveSeries(t, start, 24, 1, 13)
	cfg := BuilderConfig{Window: 12, Horizon: 3, TextLookback: 3, TargetFeatures: []int{0}}

	samples, err := BuildSamples(metrics, nil, cfg)
	if err != nil {
		t.Fatalf("BuildSamples: %v", err)
	}
	if len(samples) != 0 {
		t.Fatalf("got %d samples across a fatal gap, want 0", len(samples))
	}
}

func TestBuildSamplesGapNearEdgeLeavesValidAnchors(t *testing.T) {
	// A gap at offset 2 only blocks windows reaching back that far; anchors
	// from offset 15 onward have clean ranges again.
	start := month(t, "2022-01")
	metrics := consecutiveSeries(t, start, 30, 1, 2)
	cfg := BuilderConfig{Window: 12, Horizon: 3, TextLookback: 3, TargetFeatures: []int{0}}

	samples, err := BuildSamples(metrics, nil, cfg)
	if err != nil {
		t.Fatalf("BuildSamples: %v", err)
	}
	// Valid anchors: t = 15..28-3+1=... offsets 15 through 27 inclusive.
	if len(samples) != 13 {
		t.Fatalf("got %d samples, want 13", len(samples))
	}
	if samples[0].AnchorMonth != start.Add(15) {
		t.Errorf("first anchor %s, want %s", samples[0].AnchorMonth, start.Add(15))
	}
}

func TestBuildSamplesTooShortSeries(t *testing.T) {
	start := month(t, "2022-01")
	metrics := consecutiveSeries(t, start, 14, 1)
	cfg := BuilderConfig{Window: 12, Horizon: 3, TextLookback: 3, TargetFeatures: []int{0}}

	samples, err := BuildSamples(metrics, nil, cfg)
	if err != nil {
		t.Fatalf("BuildSamples: %v", err)
	}
	if len(samples) != 0 {
		t.Fatalf("got %d samples from a 14-month series, want 0", len(samples))
	}
}

func TestBuildSamplesDeterministic(t *testing.T) {
	start := month(t, "2022-01")
	metrics := consecutiveSeries(t, start, 24, 2)
	texts := NewTextSeries("proj")
	texts.Set(start.Add(10), "shipped v2")
	cfg := BuilderConfig{Window: 12, Horizon: 3, TextLookback: 3, TargetFeatures: []int{1}}

	a, err := BuildSamples(metrics, texts, cfg)
	if err != nil {
		t.Fatalf("BuildSamples: %v", err)
	}
	b, err := BuildSamples(metrics, texts, cfg)
	if err != nil {
		t.Fatalf("BuildSamples: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("two builds over identical inputs differ")
	}
}

func TestBuildSamplesConfigValidation(t *testing.T) {
	start := month(t, "2022-01")
	metrics := consecutiveSeries(t, start, 24, 2)

	cases := []BuilderConfig{
		{Window: 0, Horizon: 3, TextLookback: 1, TargetFeatures: []int{0}},
		{Window: 12, Horizon: 0, TextLookback: 1, TargetFeatures: []int{0}},
		{Window: 12, Horizon: 3, TextLookback: 0, TargetFeatures: []int{0}},
		{Window: 12, Horizon: 3, TextLookback: 13, TargetFeatures: []int{0}},
		{Window: 12, Horizon: 3, TextLookback: 3, TargetFeatures: nil},
		{Window: 12, Horizon: 3, TextLookback: 3, TargetFeatures: []int{2}},
	}
	for i, cfg := range cases {
		_, err := BuildSamples(metrics, nil, cfg)
		var cerr *types.ConfigurationError
		if !errors.As(err, &cerr) {
			t.Errorf("case %d: got %v, want ConfigurationError", i, err)
		}
	}
}

func TestTextWindowFormat(t *testing.T) {
	anchor := month(t, "2023-01")
	texts := NewTextSeries("proj")
	texts.Set(month(t, "2022-11"), "major release")
	// 2022-10 and 2022-12 deliberately have no text.

	got := TextWindow(texts, anchor, 3)
	want := "[2022-10]\n[2022-11] major release\n[2022-12]"
	if got != want {
		t.Errorf("TextWindow:\n got %q\nwant %q", got, want)
	}
}

func TestTextWindowNilSeries(t *testing.T) {
	anchor := month(t, "2023-01")
	got := TextWindow(nil, anchor, 2)
	if !strings.Contains(got, "[2022-11]") || !strings.Contains(got, "[2022-12]") {
		t.Errorf("TextWindow over nil series lost month markers: %q", got)
	}
}
