package models

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/inference-sim/fedsim/sim"
	"gonum.org/v1/gonum/mat"
)

// MLP is the averaging network of type B: one tanh hidden layer followed by
// a softmax output, trained with mini-batch backpropagation on raw features.
// Parameters: W1 (hidden×features), b1 (hidden×1), W2 (classes×hidden),
// b2 (classes×1).
type MLP struct {
	classes int
	lr      float64
	epochs  int
	batch   int
	rng     *rand.Rand

	w1, b1, w2, b2 *mat.Dense
	ready          bool
}

// NewMLP creates a type B network with Xavier-scaled random weights.
func NewMLP(cfg sim.ModelConfig) *MLP {
	return &MLP{
		classes: cfg.Classes,
		lr:      cfg.LearningRate,
		epochs:  cfg.Epochs,
		batch:   cfg.BatchSize,
		rng:     cfg.Rng,
		w1:      randomDense(mlpHidden, cfg.Features, 1/math.Sqrt(float64(cfg.Features)), cfg.Rng),
		b1:      mat.NewDense(mlpHidden, 1, nil),
		w2:      randomDense(cfg.Classes, mlpHidden, 1/math.Sqrt(mlpHidden), cfg.Rng),
		b2:      mat.NewDense(cfg.Classes, 1, nil),
	}
}

// Fit continues training from the current parameters.
func (m *MLP) Fit(x [][]float64, y []int) error {
	if len(x) == 0 {
		return nil
	}
	if len(x) != len(y) {
		return fmt.Errorf("mlp fit: %d rows but %d labels", len(x), len(y))
	}
	for e := 0; e < m.epochs; e++ {
		for _, idx := range miniBatches(len(x), m.batch, m.rng) {
			bx, by := gather(x, y, idx)
			m.step(toDense(bx), by)
		}
	}
	m.ready = true
	return nil
}

func (m *MLP) hidden(x *mat.Dense) *mat.Dense {
	var h mat.Dense
	h.Mul(x, m.w1.T())
	addRowVector(&h, m.b1)
	h.Apply(func(_, _ int, v float64) float64 { return math.Tanh(v) }, &h)
	return &h
}

func (m *MLP) output(h *mat.Dense) *mat.Dense {
	var z mat.Dense
	z.Mul(h, m.w2.T())
	addRowVector(&z, m.b2)
	softmaxRows(&z)
	return &z
}

func (m *MLP) step(x *mat.Dense, y []int) {
	n, _ := x.Dims()
	h := m.hidden(x)
	g := m.output(h)
	subtractOneHot(g, y)
	g.Scale(1/float64(n), g)

	// Hidden-layer error uses W2 before it is updated.
	var dh mat.Dense
	dh.Mul(g, m.w2)
	dh.Apply(func(i, j int, v float64) float64 {
		t := h.At(i, j)
		return v * (1 - t*t)
	}, &dh)

	var dw2 mat.Dense
	dw2.Mul(g.T(), h)
	dw2.Scale(m.lr, &dw2)
	m.w2.Sub(m.w2, &dw2)
	db2 := colSums(g)
	db2.Scale(m.lr, db2)
	m.b2.Sub(m.b2, db2)

	var dw1 mat.Dense
	dw1.Mul(dh.T(), x)
	dw1.Scale(m.lr, &dw1)
	m.w1.Sub(m.w1, &dw1)
	db1 := colSums(&dh)
	db1.Scale(m.lr, db1)
	m.b1.Sub(m.b1, db1)
}

// PredictProba returns per-class probabilities for each row.
func (m *MLP) PredictProba(x [][]float64) ([][]float64, error) {
	if len(x) == 0 {
		return [][]float64{}, nil
	}
	if !m.ready {
		return sim.UniformProba(len(x), m.classes), nil
	}
	xd := toDense(x)
	return rowsOf(m.output(m.hidden(xd))), nil
}

// Parameters returns copies of W1, b1, W2, b2.
func (m *MLP) Parameters() []*mat.Dense {
	return []*mat.Dense{mat.DenseCopyOf(m.w1), mat.DenseCopyOf(m.b1), mat.DenseCopyOf(m.w2), mat.DenseCopyOf(m.b2)}
}

// SetParameters loads W1, b1, W2, b2; shapes must match.
func (m *MLP) SetParameters(params []*mat.Dense) error {
	if err := checkShapes([]*mat.Dense{m.w1, m.b1, m.w2, m.b2}, params); err != nil {
		return fmt.Errorf("mlp: %w", err)
	}
	m.w1.Copy(params[0])
	m.b1.Copy(params[1])
	m.w2.Copy(params[2])
	m.b2.Copy(params[3])
	m.ready = true
	return nil
}

// Clone returns an independent copy. The RNG stream is shared.
func (m *MLP) Clone() sim.Model {
	c := *m
	c.w1 = mat.DenseCopyOf(m.w1)
	c.b1 = mat.DenseCopyOf(m.b1)
	c.w2 = mat.DenseCopyOf(m.w2)
	c.b2 = mat.DenseCopyOf(m.b2)
	return &c
}
