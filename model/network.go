package model

import (
	"fmt"
	"math/rand"

	"github.com/pulsecast/pulsecast/nn"
	"github.com/pulsecast/pulsecast/pkg/types"
)

// NetworkConfig fixes the architecture. It is persisted in checkpoints so a
// loaded network is rebuilt with the exact same shapes.
type NetworkConfig struct {
	// Features is the numeric feature arity F of each month.
	Features int `json:"features"`
	// Horizon is the number of forecast steps H.
	Horizon int `json:"horizon"`
	// Targets is the number of jointly forecast metrics M.
	Targets int `json:"targets"`
	// TextDim is the frozen text tower's output dimension.
	TextDim int `json:"text_dim"`
	// EncoderDim is the numeric tower's representation size.
	EncoderDim int `json:"encoder_dim"`
	// FusionDim is the joint representation size.
	FusionDim int `json:"fusion_dim"`
}

// Validate rejects degenerate shapes before any weights are allocated.
func (c NetworkConfig) Validate() error {
	check := func(field string, v int) error {
		if v < 1 {
			return &types.ConfigurationError{Field: field, Reason: "must be >= 1"}
		}
		return nil
	}
	for _, f := range []struct {
		name string
		v    int
	}{
		{"features", c.Features}, {"horizon", c.Horizon}, {"targets", c.Targets},
		{"text_dim", c.TextDim}, {"encoder_dim", c.EncoderDim}, {"fusion_dim", c.FusionDim},
	} {
		if err := check(f.name, f.v); err != nil {
			return err
		}
	}
	return nil
}

// Network is the trainable half of the model: numeric tower, fusion block
// and prediction heads. The frozen text tower lives outside it — the network
// only ever sees its output vectors, so the optimizer's parameter set is
// trainable by construction rather than by per-step filtering.
type Network struct {
	Config  NetworkConfig
	Encoder *TimeSeriesEncoder
	Fusion  *FusionNetwork
	Heads   []*PredictionHead
}

// NewNetwork allocates a network with freshly initialised weights drawn from
// rng.
func NewNetwork(cfg NetworkConfig, rng *rand.Rand) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := &Network{
		Config:  cfg,
		Encoder: NewTimeSeriesEncoder(cfg.Features, cfg.EncoderDim, rng),
		Fusion:  NewFusionNetwork(cfg.EncoderDim+cfg.TextDim, cfg.FusionDim, rng),
	}
	for m := 0; m < cfg.Targets; m++ {
		n.Heads = append(n.Heads, NewPredictionHead(cfg.FusionDim, cfg.Horizon, rng))
	}
	return n, nil
}

// Forward computes the per-target forecasts for one normalized window and
// its frozen text vector. The returned slice holds one H-by-1 matrix per
// target metric, in normalized space.
func (n *Network) Forward(g *nn.Graph, window [][]float64, textVec []float32) []*nn.Mat {
	text := nn.NewMat(n.Config.TextDim, 1)
	for i, v := range textVec {
		text.W[i] = float64(v)
	}
	series := n.Encoder.Encode(g, window)
	joint := n.Fusion.Fuse(g, series, text)

	outs := make([]*nn.Mat, len(n.Heads))
	for m, head := range n.Heads {
		outs[m] = head.Forecast(g, joint)
	}
	return outs
}

// NamedParams lists every trainable matrix with its checkpoint name, in a
// stable order.
func (n *Network) NamedParams() []nn.NamedParam {
	params := n.Encoder.Params()
	params = append(params, n.Fusion.Params()...)
	for m, head := range n.Heads {
		params = append(params, head.Params(m)...)
	}
	return params
}

// Params lists the trainable matrices in the same stable order, for the
// optimizer.
func (n *Network) Params() []*nn.Mat {
	named := n.NamedParams()
	out := make([]*nn.Mat, len(named))
	for i, p := range named {
		out[i] = p.Mat
	}
	return out
}

// State exports the weights in checkpoint form.
func (n *Network) State() map[string][][]float64 {
	state := make(map[string][][]float64)
	for _, p := range n.NamedParams() {
		state[p.Name] = p.Mat.Export()
	}
	return state
}

// LoadState overwrites the weights from checkpoint form. Every parameter
// must be present with a matching shape.
func (n *Network) LoadState(state map[string][][]float64) error {
	for _, p := range n.NamedParams() {
		rows, ok := state[p.Name]
		if !ok {
			return fmt.Errorf("checkpoint state missing parameter %s", p.Name)
		}
		if !p.Mat.Import(rows) {
			return fmt.Errorf("checkpoint parameter %s has wrong shape", p.Name)
		}
	}
	return nil
}
