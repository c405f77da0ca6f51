package model

import (
	"math"

	"github.com/pulsecast/pulsecast/pkg/types"
)

// Normalizer holds per-feature z-score statistics. The statistics are fit
// from the training split only and then applied unchanged to validation,
// test and inference inputs, so no held-out information leaks into them.
// They travel with the checkpoint; inference never refits them.
type Normalizer struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// FitNormalizer computes per-feature mean and standard deviation over every
// month of every training-split input window. Constant features get a std of
// 1 so normalization stays invertible.
func FitNormalizer(train []*types.Sample, features int) *Normalizer {
	n := &Normalizer{
		Mean: make([]float64, features),
		Std:  make([]float64, features),
	}
	var count float64
	for _, s := range train {
		for _, row := range s.Window {
			for f, v := range row {
				n.Mean[f] += v
			}
		}
		count += float64(len(s.Window))
	}
	if count == 0 {
		for f := range n.Std {
			n.Std[f] = 1
		}
		return n
	}
	for f := range n.Mean {
		n.Mean[f] /= count
	}
	for _, s := range train {
		for _, row := range s.Window {
			for f, v := range row {
				d := v - n.Mean[f]
				n.Std[f] += d * d
			}
		}
	}
	for f := range n.Std {
		n.Std[f] = math.Sqrt(n.Std[f] / count)
		if n.Std[f] == 0 {
			n.Std[f] = 1
		}
	}
	return n
}

// Normalize maps a raw feature value into z-score space.
func (n *Normalizer) Normalize(f int, v float64) float64 {
	return (v - n.Mean[f]) / n.Std[f]
}

// Denormalize maps a z-score back into raw units.
func (n *Normalizer) Denormalize(f int, v float64) float64 {
	return v*n.Std[f] + n.Mean[f]
}

// NormalizeWindow returns a normalized copy of a W-by-F input window.
func (n *Normalizer) NormalizeWindow(window [][]float64) [][]float64 {
	out := make([][]float64, len(window))
	for i, row := range window {
		nr := make([]float64, len(row))
		for f, v := range row {
			nr[f] = n.Normalize(f, v)
		}
		out[i] = nr
	}
	return out
}

// NormalizeTarget returns a normalized copy of an H-by-M target, where
// targetFeatures maps each target column back to its feature index.
func (n *Normalizer) NormalizeTarget(target [][]float64, targetFeatures []int) [][]float64 {
	out := make([][]float64, len(target))
	for h, row := range target {
		nr := make([]float64, len(row))
		for m, v := range row {
			nr[m] = n.Normalize(targetFeatures[m], v)
		}
		out[h] = nr
	}
	return out
}
