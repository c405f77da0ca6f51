package nn

import "math"

// Graph records the operations of one forward pass so they can be replayed in
// reverse for backpropagation. The backprop flag is the execution mode: a
// training pass records the tape, a validation or inference pass skips it.
// Each forward pass builds its own Graph; there is no process-wide mode.
type Graph struct {
	backprop bool
	tape     []func()
}

// NewGraph returns a graph. Pass backprop=false for validation and inference
// passes, which then cost no tape memory.
func NewGraph(backprop bool) *Graph {
	return &Graph{backprop: backprop}
}

// Backward replays the recorded tape in reverse, accumulating gradients into
// the DW buffers of every matrix that participated in the pass.
func (g *Graph) Backward() {
	for i := len(g.tape) - 1; i >= 0; i-- {
		g.tape[i]()
	}
}

func (g *Graph) record(f func()) {
	if g.backprop {
		g.tape = append(g.tape, f)
	}
}

// Mul is matrix multiplication: out = a * b.
func (g *Graph) Mul(a, b *Mat) *Mat {
	if a.Cols != b.Rows {
		panic("nn: Mul shape mismatch")
	}
	out := NewMat(a.Rows, b.Cols)
	for r := 0; r < a.Rows; r++ {
		for k := 0; k < a.Cols; k++ {
			av := a.W[r*a.Cols+k]
			if av == 0 {
				continue
			}
			for c := 0; c < b.Cols; c++ {
				out.W[r*out.Cols+c] += av * b.W[k*b.Cols+c]
			}
		}
	}
	g.record(func() {
		for r := 0; r < a.Rows; r++ {
			for c := 0; c < b.Cols; c++ {
				d := out.DW[r*out.Cols+c]
				if d == 0 {
					continue
				}
				for k := 0; k < a.Cols; k++ {
					a.DW[r*a.Cols+k] += b.W[k*b.Cols+c] * d
					b.DW[k*b.Cols+c] += a.W[r*a.Cols+k] * d
				}
			}
		}
	})
	return out
}

// Add is elementwise addition of same-shaped matrices.
func (g *Graph) Add(a, b *Mat) *Mat {
	if a.Rows != b.Rows || a.Cols != b.Cols {
		panic("nn: Add shape mismatch")
	}
	out := NewMat(a.Rows, a.Cols)
	for i := range out.W {
		out.W[i] = a.W[i] + b.W[i]
	}
	g.record(func() {
		for i := range out.DW {
			a.DW[i] += out.DW[i]
			b.DW[i] += out.DW[i]
		}
	})
	return out
}

// Sub is elementwise subtraction: out = a - b.
func (g *Graph) Sub(a, b *Mat) *Mat {
	if a.Rows != b.Rows || a.Cols != b.Cols {
		panic("nn: Sub shape mismatch")
	}
	out := NewMat(a.Rows, a.Cols)
	for i := range out.W {
		out.W[i] = a.W[i] - b.W[i]
	}
	g.record(func() {
		for i := range out.DW {
			a.DW[i] += out.DW[i]
			b.DW[i] -= out.DW[i]
		}
	})
	return out
}

// Eltmul is the elementwise (Hadamard) product.
func (g *Graph) Eltmul(a, b *Mat) *Mat {
	if a.Rows != b.Rows || a.Cols != b.Cols {
		panic("nn: Eltmul shape mismatch")
	}
	out := NewMat(a.Rows, a.Cols)
	for i := range out.W {
		out.W[i] = a.W[i] * b.W[i]
	}
	g.record(func() {
		for i := range out.DW {
			a.DW[i] += b.W[i] * out.DW[i]
			b.DW[i] += a.W[i] * out.DW[i]
		}
	})
	return out
}

// OneMinus computes 1 - m elementwise. Used by the GRU update gate.
func (g *Graph) OneMinus(m *Mat) *Mat {
	out := NewMat(m.Rows, m.Cols)
	for i := range out.W {
		out.W[i] = 1 - m.W[i]
	}
	g.record(func() {
		for i := range out.DW {
			m.DW[i] -= out.DW[i]
		}
	})
	return out
}

// Tanh applies tanh elementwise.
func (g *Graph) Tanh(m *Mat) *Mat {
	out := NewMat(m.Rows, m.Cols)
	for i := range out.W {
		out.W[i] = math.Tanh(m.W[i])
	}
	g.record(func() {
		for i := range out.DW {
			m.DW[i] += (1 - out.W[i]*out.W[i]) * out.DW[i]
		}
	})
	return out
}

// Sigmoid applies the logistic function elementwise.
func (g *Graph) Sigmoid(m *Mat) *Mat {
	out := NewMat(m.Rows, m.Cols)
	for i := range out.W {
		out.W[i] = 1 / (1 + math.Exp(-m.W[i]))
	}
	g.record(func() {
		for i := range out.DW {
			m.DW[i] += out.W[i] * (1 - out.W[i]) * out.DW[i]
		}
	})
	return out
}

// Relu applies max(0, x) elementwise.
func (g *Graph) Relu(m *Mat) *Mat {
	out := NewMat(m.Rows, m.Cols)
	for i := range out.W {
		if m.W[i] > 0 {
			out.W[i] = m.W[i]
		}
	}
	g.record(func() {
		for i := range out.DW {
			if m.W[i] > 0 {
				m.DW[i] += out.DW[i]
			}
		}
	})
	return out
}

// Concat stacks two column vectors into one.
func (g *Graph) Concat(a, b *Mat) *Mat {
	if a.Cols != 1 || b.Cols != 1 {
		panic("nn: Concat expects column vectors")
	}
	out := NewMat(a.Rows+b.Rows, 1)
	copy(out.W[:a.Rows], a.W)
	copy(out.W[a.Rows:], b.W)
	g.record(func() {
		for i := 0; i < a.Rows; i++ {
			a.DW[i] += out.DW[i]
		}
		for i := 0; i < b.Rows; i++ {
			b.DW[i] += out.DW[a.Rows+i]
		}
	})
	return out
}

// Sum collapses a matrix into a 1x1 scalar by summing all elements.
func (g *Graph) Sum(m *Mat) *Mat {
	out := NewMat(1, 1)
	for _, v := range m.W {
		out.W[0] += v
	}
	g.record(func() {
		for i := range m.DW {
			m.DW[i] += out.DW[0]
		}
	})
	return out
}

// Scale multiplies every element by the constant c.
func (g *Graph) Scale(m *Mat, c float64) *Mat {
	out := NewMat(m.Rows, m.Cols)
	for i := range out.W {
		out.W[i] = m.W[i] * c
	}
	g.record(func() {
		for i := range out.DW {
			m.DW[i] += c * out.DW[i]
		}
	})
	return out
}
