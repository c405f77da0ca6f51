package nn

import (
	"math"
	"math/rand"
	"testing"
)

// numGrad estimates dL/dp[i] by central differences with the given forward
// function, which must not record a tape.
func numGrad(forward func() float64, p *Mat, i int) float64 {
	const eps = 1e-6
	orig := p.W[i]
	p.W[i] = orig + eps
	lp := forward()
	p.W[i] = orig - eps
	lm := forward()
	p.W[i] = orig
	return (lp - lm) / (2 * eps)
}

func gradClose(analytic, numeric float64) bool {
	return math.Abs(analytic-numeric) <= 1e-5*(1+math.Abs(numeric))
}

// The loss here mirrors the trainer's per-step shape: squared error of a tanh
// layer against a constant, summed to a scalar.
func TestGraphBackwardMatchesNumericalGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	w := NewRandMat(2, 3, 0.5, rng)
	b := NewRandMat(2, 1, 0.5, rng)
	x := ColVec([]float64{0.3, -1.2, 0.8})
	y := ColVec([]float64{0.1, -0.4})

	forward := func() float64 {
		g := NewGraph(false)
		diff := g.Sub(g.Tanh(g.Add(g.Mul(w, x), b)), y)
		return g.Sum(g.Eltmul(diff, diff)).W[0]
	}

	w.ZeroGrad()
	b.ZeroGrad()
	g := NewGraph(true)
	diff := g.Sub(g.Tanh(g.Add(g.Mul(w, x), b)), y)
	loss := g.Sum(g.Eltmul(diff, diff))
	loss.DW[0] = 1
	g.Backward()

	for i := range w.W {
		if num := numGrad(forward, w, i); !gradClose(w.DW[i], num) {
			t.Errorf("w[%d]: analytic %v, numeric %v", i, w.DW[i], num)
		}
	}
	for i := range b.W {
		if num := numGrad(forward, b, i); !gradClose(b.DW[i], num) {
			t.Errorf("b[%d]: analytic %v, numeric %v", i, b.DW[i], num)
		}
	}
}

func TestGraphGatedOpsGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	a := NewRandMat(3, 1, 0.5, rng)
	b := NewRandMat(2, 1, 0.5, rng)
	w := NewRandMat(4, 5, 0.5, rng)

	forward := func() float64 {
		g := NewGraph(false)
		joint := g.Concat(a, b)
		gate := g.Sigmoid(g.Mul(w, joint))
		mixed := g.Eltmul(g.OneMinus(gate), g.Relu(g.Scale(gate, 3)))
		return g.Sum(mixed).W[0]
	}

	a.ZeroGrad()
	b.ZeroGrad()
	w.ZeroGrad()
	g := NewGraph(true)
	joint := g.Concat(a, b)
	gate := g.Sigmoid(g.Mul(w, joint))
	mixed := g.Eltmul(g.OneMinus(gate), g.Relu(g.Scale(gate, 3)))
	out := g.Sum(mixed)
	out.DW[0] = 1
	g.Backward()

	for name, p := range map[string]*Mat{"a": a, "b": b, "w": w} {
		for i := range p.W {
			if num := numGrad(forward, p, i); !gradClose(p.DW[i], num) {
				t.Errorf("%s[%d]: analytic %v, numeric %v", name, i, p.DW[i], num)
			}
		}
	}
}

func TestGraphWithoutBackpropRecordsNoTape(t *testing.T) {
	w := ColVec([]float64{2})
	x := ColVec([]float64{3})
	g := NewGraph(false)
	out := g.Mul(w, x)
	out.DW[0] = 1
	g.Backward()
	if w.DW[0] != 0 {
		t.Error("inference graph propagated gradients")
	}
}

func TestGRUStepGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	cell := NewGRUCell(2, 3, 0.5, rng)
	x1 := ColVec([]float64{0.5, -0.2})
	x2 := ColVec([]float64{-1.0, 0.7})

	forward := func() float64 {
		g := NewGraph(false)
		h := cell.Step(g, x2, cell.Step(g, x1, cell.InitialState()))
		return g.Sum(h).W[0]
	}

	params := cell.Params("gru")
	for _, p := range params {
		p.Mat.ZeroGrad()
	}
	g := NewGraph(true)
	h := cell.Step(g, x2, cell.Step(g, x1, cell.InitialState()))
	out := g.Sum(h)
	out.DW[0] = 1
	g.Backward()

	for _, p := range params {
		for i := range p.Mat.W {
			if num := numGrad(forward, p.Mat, i); !gradClose(p.Mat.DW[i], num) {
				t.Errorf("%s[%d]: analytic %v, numeric %v", p.Name, i, p.Mat.DW[i], num)
			}
		}
	}
}

func TestGRUStepShapes(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cell := NewGRUCell(4, 6, 0.08, rng)
	g := NewGraph(false)
	h := cell.Step(g, ColVec(make([]float64, 4)), cell.InitialState())
	if h.Rows != 6 || h.Cols != 1 {
		t.Errorf("hidden shape %dx%d, want 6x1", h.Rows, h.Cols)
	}
	if len(cell.Params("x")) != 9 {
		t.Errorf("GRU exposes %d params, want 9", len(cell.Params("x")))
	}
}
