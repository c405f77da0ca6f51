package nn

import "math/rand"

// GRUCell is a single gated recurrent unit layer operating on column vectors.
type GRUCell struct {
	InputSize  int
	HiddenSize int

	// Update gate, reset gate and candidate weights. W* act on the input,
	// U* on the previous hidden state, B* are biases.
	Wz, Uz, Bz *Mat
	Wr, Ur, Br *Mat
	Wc, Uc, Bc *Mat
}

// NewGRUCell initialises a GRU cell with small random weights.
func NewGRUCell(inputSize, hiddenSize int, std float64, rng *rand.Rand) *GRUCell {
	return &GRUCell{
		InputSize:  inputSize,
		HiddenSize: hiddenSize,
		Wz:         NewRandMat(hiddenSize, inputSize, std, rng),
		Uz:         NewRandMat(hiddenSize, hiddenSize, std, rng),
		Bz:         NewMat(hiddenSize, 1),
		Wr:         NewRandMat(hiddenSize, inputSize, std, rng),
		Ur:         NewRandMat(hiddenSize, hiddenSize, std, rng),
		Br:         NewMat(hiddenSize, 1),
		Wc:         NewRandMat(hiddenSize, inputSize, std, rng),
		Uc:         NewRandMat(hiddenSize, hiddenSize, std, rng),
		Bc:         NewMat(hiddenSize, 1),
	}
}

// InitialState returns the zero hidden state.
func (c *GRUCell) InitialState() *Mat {
	return NewMat(c.HiddenSize, 1)
}

// Step advances the cell by one timestep: x is the input column vector, h the
// previous hidden state. Returns the next hidden state.
func (c *GRUCell) Step(g *Graph, x, h *Mat) *Mat {
	z := g.Sigmoid(g.Add(g.Add(g.Mul(c.Wz, x), g.Mul(c.Uz, h)), c.Bz))
	r := g.Sigmoid(g.Add(g.Add(g.Mul(c.Wr, x), g.Mul(c.Ur, h)), c.Br))
	cand := g.Tanh(g.Add(g.Add(g.Mul(c.Wc, x), g.Mul(c.Uc, g.Eltmul(r, h))), c.Bc))
	// h' = (1-z) ∘ h + z ∘ cand
	return g.Add(g.Eltmul(g.OneMinus(z), h), g.Eltmul(z, cand))
}

// Params lists the cell's weight matrices with stable names under the given
// prefix. The order is fixed so optimizer state and checkpoints line up.
func (c *GRUCell) Params(prefix string) []NamedParam {
	return []NamedParam{
		{prefix + ".wz", c.Wz}, {prefix + ".uz", c.Uz}, {prefix + ".bz", c.Bz},
		{prefix + ".wr", c.Wr}, {prefix + ".ur", c.Ur}, {prefix + ".br", c.Br},
		{prefix + ".wc", c.Wc}, {prefix + ".uc", c.Uc}, {prefix + ".bc", c.Bc},
	}
}

// NamedParam couples a parameter matrix with the stable name it is
// checkpointed under.
type NamedParam struct {
	Name string
	Mat  *Mat
}
