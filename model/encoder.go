// Package model assembles the dual-tower forecasting network: a recurrent
// tower over the numeric monthly window, a frozen pretrained tower over the
// text window, a fusion block joining the two, and per-target prediction
// heads. Only the numeric tower, fusion block and heads are trainable.
package model

import (
	"math/rand"

	"github.com/pulsecast/pulsecast/nn"
)

const initStd = 0.08

// TimeSeriesEncoder maps a W-by-F normalized window to a fixed-size vector.
// A GRU consumes the months in order and the final hidden state is the
// window's representation, so permuting the months changes the output.
type TimeSeriesEncoder struct {
	cell *nn.GRUCell
}

// NewTimeSeriesEncoder builds the numeric tower for the configured feature
// arity. The arity is fixed here, at construction time, not per call.
func NewTimeSeriesEncoder(features, hidden int, rng *rand.Rand) *TimeSeriesEncoder {
	return &TimeSeriesEncoder{cell: nn.NewGRUCell(features, hidden, initStd, rng)}
}

// Encode runs the window through the recurrence and returns the last hidden
// state as a column vector.
func (e *TimeSeriesEncoder) Encode(g *nn.Graph, window [][]float64) *nn.Mat {
	h := e.cell.InitialState()
	for _, row := range window {
		h = e.cell.Step(g, nn.ColVec(row), h)
	}
	return h
}

// OutputSize returns the tower's representation dimension.
func (e *TimeSeriesEncoder) OutputSize() int { return e.cell.HiddenSize }

// Params lists the tower's trainable matrices.
func (e *TimeSeriesEncoder) Params() []nn.NamedParam {
	return e.cell.Params("encoder")
}
