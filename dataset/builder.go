package dataset

import (
	"fmt"
	"strings"

	"github.com/pulsecast/pulsecast/pkg/types"
)

// BuilderConfig controls the sliding-window sample construction.
type BuilderConfig struct {
	// Window is the input length W in months.
	Window int
	// Horizon is the number of future months H forecast per sample.
	Horizon int
	// TextLookback is the number of months K of event text concatenated into
	// the text window. Must satisfy 0 < K <= W.
	TextLookback int
	// TargetFeatures indexes the metric vector entries that are forecast.
	TargetFeatures []int
}

// Validate surfaces impossible window geometry before any samples are cut.
func (c BuilderConfig) Validate(arity int) error {
	if c.Window < 1 {
		return &types.ConfigurationError{Field: "window", Reason: "must be >= 1"}
	}
	if c.Horizon < 1 {
		return &types.ConfigurationError{Field: "horizon", Reason: "must be >= 1"}
	}
	if c.TextLookback < 1 || c.TextLookback > c.Window {
		return &types.ConfigurationError{
			Field:  "text_lookback",
			Reason: fmt.Sprintf("must be in [1, window]; got %d with window %d", c.TextLookback, c.Window),
		}
	}
	if len(c.TargetFeatures) == 0 {
		return &types.ConfigurationError{Field: "target_features", Reason: "at least one target feature required"}
	}
	for _, f := range c.TargetFeatures {
		if f < 0 || f >= arity {
			return &types.ConfigurationError{
				Field:  "target_features",
				Reason: fmt.Sprintf("index %d out of range for %d features", f, arity),
			}
		}
	}
	return nil
}

// BuildSamples slides an anchor across one project's aligned series and
// returns every valid sample, ordered by anchor month ascending. An anchor is
// valid when the W months before it and the H months from it onward are all
// present; a gap in either range rejects the anchor. Missing event text never
// rejects an anchor — the month contributes an empty entry to the text
// window. The function is pure: identical inputs yield the identical ordered
// sample sequence.
func BuildSamples(metrics *MetricSeries, texts *TextSeries, cfg BuilderConfig) ([]*types.Sample, error) {
	if err := cfg.Validate(metrics.Arity()); err != nil {
		return nil, err
	}
	if metrics.Len() < cfg.Window+cfg.Horizon {
		return nil, nil
	}

	var samples []*types.Sample
	first, last := metrics.First(), metrics.Last()

	// Anchor t runs over months with a full window behind it and a full
	// horizon from it onward: first+W <= t <= last-H+1.
	for t := first.Add(cfg.Window); t <= last.Add(-cfg.Horizon + 1); t = t.Add(1) {
		if !metrics.HasRange(t.Add(-cfg.Window), cfg.Window) {
			continue
		}
		if !metrics.HasRange(t, cfg.Horizon) {
			continue
		}

		window := make([][]float64, cfg.Window)
		for i := 0; i < cfg.Window; i++ {
			vals, _ := metrics.At(t.Add(i - cfg.Window))
			row := make([]float64, len(vals))
			copy(row, vals)
			window[i] = row
		}

		target := make([][]float64, cfg.Horizon)
		for h := 0; h < cfg.Horizon; h++ {
			vals, _ := metrics.At(t.Add(h))
			row := make([]float64, len(cfg.TargetFeatures))
			for j, f := range cfg.TargetFeatures {
				row[j] = vals[f]
			}
			target[h] = row
		}

		samples = append(samples, &types.Sample{
			ProjectID:   metrics.ProjectID,
			AnchorMonth: t,
			Window:      window,
			TextWindow:  TextWindow(texts, t, cfg.TextLookback),
			Target:      target,
		})
	}
	return samples, nil
}

// TextWindow concatenates the event text of the K months before the anchor
// in chronological order, one marker line per month. Months without text
// contribute only their marker, which keeps the window's month positions
// unambiguous for the text model. The predictor uses the same construction
// so inference inputs mirror training inputs exactly.
func TextWindow(texts *TextSeries, anchor types.Month, lookback int) string {
	var b strings.Builder
	for i := lookback; i >= 1; i-- {
		m := anchor.Add(-i)
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteByte('[')
		b.WriteString(m.String())
		b.WriteByte(']')
		if texts != nil {
			if txt := strings.TrimSpace(texts.At(m)); txt != "" {
				b.WriteByte(' ')
				b.WriteString(txt)
			}
		}
	}
	return b.String()
}
