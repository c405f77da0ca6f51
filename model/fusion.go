package model

import (
	"math/rand"

	"github.com/pulsecast/pulsecast/nn"
)

// FusionNetwork joins the two tower outputs into one representation through
// two non-linear projections. This is where interactions between numeric
// trend and textual events are learned; neither tower sees the other.
type FusionNetwork struct {
	w1, b1 *nn.Mat
	w2, b2 *nn.Mat
}

// NewFusionNetwork builds the fusion block for the concatenated tower output
// size inSize and joint representation size joint.
func NewFusionNetwork(inSize, joint int, rng *rand.Rand) *FusionNetwork {
	return &FusionNetwork{
		w1: nn.NewRandMat(joint, inSize, initStd, rng),
		b1: nn.NewMat(joint, 1),
		w2: nn.NewRandMat(joint, joint, initStd, rng),
		b2: nn.NewMat(joint, 1),
	}
}

// Fuse concatenates the tower outputs and projects them to the joint
// representation.
func (f *FusionNetwork) Fuse(g *nn.Graph, series, text *nn.Mat) *nn.Mat {
	x := g.Concat(series, text)
	h := g.Relu(g.Add(g.Mul(f.w1, x), f.b1))
	return g.Tanh(g.Add(g.Mul(f.w2, h), f.b2))
}

// Params lists the block's trainable matrices.
func (f *FusionNetwork) Params() []nn.NamedParam {
	return []nn.NamedParam{
		{Name: "fusion.w1", Mat: f.w1}, {Name: "fusion.b1", Mat: f.b1},
		{Name: "fusion.w2", Mat: f.w2}, {Name: "fusion.b2", Mat: f.b2},
	}
}
