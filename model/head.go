package model

import (
	"fmt"
	"math/rand"

	"github.com/pulsecast/pulsecast/nn"
)

// PredictionHead projects the joint representation onto one target metric's
// forecast over the full horizon. Each target gets its own head over the
// shared joint representation; per-target loss weights combine their errors.
type PredictionHead struct {
	w *nn.Mat
	b *nn.Mat
}

// NewPredictionHead builds a head mapping a joint-dim vector to horizon
// outputs.
func NewPredictionHead(joint, horizon int, rng *rand.Rand) *PredictionHead {
	return &PredictionHead{
		w: nn.NewRandMat(horizon, joint, initStd, rng),
		b: nn.NewMat(horizon, 1),
	}
}

// Forecast returns the head's H-by-1 output for the joint representation.
func (p *PredictionHead) Forecast(g *nn.Graph, joint *nn.Mat) *nn.Mat {
	return g.Add(g.Mul(p.w, joint), p.b)
}

// Params lists the head's trainable matrices under a per-target prefix.
func (p *PredictionHead) Params(target int) []nn.NamedParam {
	prefix := fmt.Sprintf("head%d", target)
	return []nn.NamedParam{
		{Name: prefix + ".w", Mat: p.w},
		{Name: prefix + ".b", Mat: p.b},
	}
}
