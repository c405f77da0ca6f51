// Package nn implements the small dense neural-network substrate used by the
// forecasting model: a matrix type with gradients, a reverse-mode autodiff
// graph, a GRU cell, and an Adam solver. Everything runs on the CPU in plain
// float64.
package nn

import "math/rand"

// Mat is a dense row-major matrix with an accompanying gradient buffer.
type Mat struct {
	Rows, Cols int
	W          []float64
	DW         []float64
}

// NewMat returns a zero matrix of the given shape.
func NewMat(rows, cols int) *Mat {
	return &Mat{
		Rows: rows,
		Cols: cols,
		W:    make([]float64, rows*cols),
		DW:   make([]float64, rows*cols),
	}
}

// NewRandMat returns a matrix initialised from a zero-mean gaussian with the
// given standard deviation. The caller supplies the rng so initialisation is
// reproducible under a fixed seed.
func NewRandMat(rows, cols int, std float64, rng *rand.Rand) *Mat {
	m := NewMat(rows, cols)
	for i := range m.W {
		m.W[i] = rng.NormFloat64() * std
	}
	return m
}

// ColVec returns an n-by-1 matrix holding a copy of vals.
func ColVec(vals []float64) *Mat {
	m := NewMat(len(vals), 1)
	copy(m.W, vals)
	return m
}

// At returns the element at (row, col).
func (m *Mat) At(row, col int) float64 {
	return m.W[row*m.Cols+col]
}

// Set assigns the element at (row, col).
func (m *Mat) Set(row, col int, v float64) {
	m.W[row*m.Cols+col] = v
}

// ZeroGrad clears the gradient buffer.
func (m *Mat) ZeroGrad() {
	for i := range m.DW {
		m.DW[i] = 0
	}
}

// Clone returns a deep copy of the weights with a fresh gradient buffer.
func (m *Mat) Clone() *Mat {
	out := NewMat(m.Rows, m.Cols)
	copy(out.W, m.W)
	return out
}

// Export returns the weights as a row slice-of-slices, the form used by the
// JSON checkpoint.
func (m *Mat) Export() [][]float64 {
	rows := make([][]float64, m.Rows)
	for r := 0; r < m.Rows; r++ {
		row := make([]float64, m.Cols)
		copy(row, m.W[r*m.Cols:(r+1)*m.Cols])
		rows[r] = row
	}
	return rows
}

// Import overwrites the weights from checkpoint form. The shape must match.
func (m *Mat) Import(rows [][]float64) bool {
	if len(rows) != m.Rows {
		return false
	}
	for r, row := range rows {
		if len(row) != m.Cols {
			return false
		}
		copy(m.W[r*m.Cols:(r+1)*m.Cols], row)
	}
	return true
}
