package nn

import "math"

// Adam is the Adam optimizer with bias correction and per-element gradient
// clipping. It owns its moment buffers, keyed by position in the parameter
// slice, so the same slice (in the same order) must be passed on every step.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64
	// Clip bounds the absolute value of each gradient element before the
	// update. Zero disables clipping.
	Clip float64

	step int
	m    [][]float64
	v    [][]float64
}

// NewAdam returns an Adam solver with the usual defaults for everything but
// the learning rate.
func NewAdam(lr float64) *Adam {
	return &Adam{
		LR:    lr,
		Beta1: 0.9,
		Beta2: 0.999,
		Eps:   1e-8,
		Clip:  5.0,
	}
}

// Step applies one update to every parameter and clears their gradients.
func (s *Adam) Step(params []*Mat) {
	if s.m == nil {
		s.m = make([][]float64, len(params))
		s.v = make([][]float64, len(params))
		for i, p := range params {
			s.m[i] = make([]float64, len(p.W))
			s.v[i] = make([]float64, len(p.W))
		}
	}
	s.step++
	mCorr := 1 - math.Pow(s.Beta1, float64(s.step))
	vCorr := 1 - math.Pow(s.Beta2, float64(s.step))

	for i, p := range params {
		m, v := s.m[i], s.v[i]
		for j, grad := range p.DW {
			if s.Clip > 0 {
				if grad > s.Clip {
					grad = s.Clip
				} else if grad < -s.Clip {
					grad = -s.Clip
				}
			}
			m[j] = s.Beta1*m[j] + (1-s.Beta1)*grad
			v[j] = s.Beta2*v[j] + (1-s.Beta2)*grad*grad
			mHat := m[j] / mCorr
			vHat := v[j] / vCorr
			p.W[j] -= s.LR * mHat / (math.Sqrt(vHat) + s.Eps)
			p.DW[j] = 0
		}
	}
}
