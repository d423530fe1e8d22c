package models

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// toDense packs rows into a matrix. Callers guarantee len(x) > 0.
func toDense(x [][]float64) *mat.Dense {
	m := mat.NewDense(len(x), len(x[0]), nil)
	for i, row := range x {
		m.SetRow(i, row)
	}
	return m
}

// randomDense fills an r×c matrix with N(0, scale²) draws.
func randomDense(r, c int, scale float64, rng *rand.Rand) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = rng.NormFloat64() * scale
	}
	return mat.NewDense(r, c, data)
}

// addRowVector adds the column vector b (len = cols) to every row of m.
func addRowVector(m *mat.Dense, b *mat.Dense) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, m.At(i, j)+b.At(j, 0))
		}
	}
}

// softmaxRows replaces each row of m with its softmax.
func softmaxRows(m *mat.Dense) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		mx := floats.Max(row)
		for j := range row {
			row[j] = math.Exp(row[j] - mx)
		}
		floats.Scale(1/floats.Sum(row), row)
	}
}

// rowsOf unpacks a matrix into row slices.
func rowsOf(m *mat.Dense) [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}

// subtractOneHot turns softmax probabilities into the cross-entropy
// gradient with respect to the logits.
func subtractOneHot(p *mat.Dense, y []int) {
	for i, c := range y {
		p.Set(i, c, p.At(i, c)-1)
	}
}

// colSums returns the per-column sums of m as a c×1 matrix.
func colSums(m *mat.Dense) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(c, 1, nil)
	for j := 0; j < c; j++ {
		out.Set(j, 0, floats.Sum(mat.Col(nil, j, m)))
	}
	return out
}

// miniBatches shuffles 0..n-1 and cuts it into batches of at most size.
func miniBatches(n, size int, rng *rand.Rand) [][]int {
	if size <= 0 || size > n {
		size = n
	}
	perm := rng.Perm(n)
	var out [][]int
	for start := 0; start < n; start += size {
		out = append(out, perm[start:min(start+size, n)])
	}
	return out
}

// gather selects rows and labels by position.
func gather(x [][]float64, y []int, idx []int) ([][]float64, []int) {
	bx := make([][]float64, len(idx))
	by := make([]int, len(idx))
	for i, j := range idx {
		bx[i] = x[j]
		by[i] = y[j]
	}
	return bx, by
}

// scaler standardises features with statistics from the last Fit.
type scaler struct {
	mean, std []float64
}

func fitScaler(x [][]float64) *scaler {
	f := len(x[0])
	s := &scaler{mean: make([]float64, f), std: make([]float64, f)}
	col := make([]float64, len(x))
	for j := 0; j < f; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		m, sd := stat.MeanStdDev(col, nil)
		if sd == 0 || math.IsNaN(sd) {
			sd = 1
		}
		s.mean[j], s.std[j] = m, sd
	}
	return s
}

func (s *scaler) transform(x [][]float64) [][]float64 {
	if s == nil {
		return x
	}
	out := make([][]float64, len(x))
	for i, row := range x {
		r := make([]float64, len(row))
		for j, v := range row {
			r[j] = (v - s.mean[j]) / s.std[j]
		}
		out[i] = r
	}
	return out
}

func oneHot(label, classes int) []float64 {
	v := make([]float64, classes)
	if label >= 0 && label < classes {
		v[label] = 1
	}
	return v
}
