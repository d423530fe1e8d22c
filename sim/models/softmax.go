package models

import (
	"fmt"
	"math/rand/v2"

	"github.com/inference-sim/fedsim/sim"
	"gonum.org/v1/gonum/mat"
)

// Softmax is multinomial logistic regression trained by mini-batch gradient
// descent on the cross-entropy loss. Parameters: W (classes×features) and
// b (classes×1).
type Softmax struct {
	classes int
	lr      float64
	epochs  int
	batch   int
	rng     *rand.Rand

	warm        bool // continue from current parameters instead of reinitialising
	standardize bool
	scale       *scaler

	w, b  *mat.Dense
	ready bool // fitted at least once, or parameters loaded
}

// NewSoftmax creates the averaging network of type A. It keeps its
// parameters between fits and trains on raw features so parameters stay
// comparable across clients.
func NewSoftmax(cfg sim.ModelConfig) *Softmax {
	return &Softmax{
		classes: cfg.Classes,
		lr:      cfg.LearningRate,
		epochs:  cfg.Epochs,
		batch:   cfg.BatchSize,
		rng:     cfg.Rng,
		warm:    true,
		w:       randomDense(cfg.Classes, cfg.Features, 0.01, cfg.Rng),
		b:       mat.NewDense(cfg.Classes, 1, nil),
	}
}

// NewLogisticRegression creates the ensemble catalogue's logistic
// regression: standardised features, full-batch descent, refit from zero on
// every Fit.
func NewLogisticRegression(cfg sim.ModelConfig) *Softmax {
	return &Softmax{
		classes:     cfg.Classes,
		lr:          ensembleLearningRate,
		epochs:      ensembleEpochs,
		rng:         cfg.Rng,
		standardize: true,
		w:           mat.NewDense(cfg.Classes, cfg.Features, nil),
		b:           mat.NewDense(cfg.Classes, 1, nil),
	}
}

// Fit trains on the given rows. Zero rows leave the model untouched.
func (m *Softmax) Fit(x [][]float64, y []int) error {
	if len(x) == 0 {
		return nil
	}
	if len(x) != len(y) {
		return fmt.Errorf("softmax fit: %d rows but %d labels", len(x), len(y))
	}
	if !m.warm {
		m.w.Zero()
		m.b.Zero()
	}
	if m.standardize {
		m.scale = fitScaler(x)
		x = m.scale.transform(x)
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

func (m *Softmax) step(x *mat.Dense, y []int) {
	n, _ := x.Dims()
	p := m.forward(x)
	subtractOneHot(p, y)

	var dw mat.Dense
	dw.Mul(p.T(), x)
	dw.Scale(m.lr/float64(n), &dw)
	m.w.Sub(m.w, &dw)

	db := colSums(p)
	db.Scale(m.lr/float64(n), db)
	m.b.Sub(m.b, db)
}

// forward returns the class probabilities for each row of x.
func (m *Softmax) forward(x *mat.Dense) *mat.Dense {
	var z mat.Dense
	z.Mul(x, m.w.T())
	addRowVector(&z, m.b)
	softmaxRows(&z)
	return &z
}

// PredictProba returns per-class probabilities for each row.
func (m *Softmax) PredictProba(x [][]float64) ([][]float64, error) {
	if len(x) == 0 {
		return [][]float64{}, nil
	}
	if !m.ready {
		return sim.UniformProba(len(x), m.classes), nil
	}
	if m.standardize {
		x = m.scale.transform(x)
	}
	return rowsOf(m.forward(toDense(x))), nil
}

// Parameters returns copies of W and b.
func (m *Softmax) Parameters() []*mat.Dense {
	return []*mat.Dense{mat.DenseCopyOf(m.w), mat.DenseCopyOf(m.b)}
}

// SetParameters loads W and b; shapes must match.
func (m *Softmax) SetParameters(params []*mat.Dense) error {
	if err := checkShapes([]*mat.Dense{m.w, m.b}, params); err != nil {
		return fmt.Errorf("softmax: %w", err)
	}
	m.w.Copy(params[0])
	m.b.Copy(params[1])
	m.ready = true
	return nil
}

// Clone returns an independent copy. The RNG stream is shared.
func (m *Softmax) Clone() sim.Model {
	c := *m
	c.w = mat.DenseCopyOf(m.w)
	c.b = mat.DenseCopyOf(m.b)
	return &c
}

// checkShapes verifies that got matches want element by element.
func checkShapes(want, got []*mat.Dense) error {
	if len(got) != len(want) {
		return fmt.Errorf("got %d parameter matrices, want %d", len(got), len(want))
	}
	for i := range want {
		wr, wc := want[i].Dims()
		gr, gc := got[i].Dims()
		if wr != gr || wc != gc {
			return fmt.Errorf("parameter %d is %dx%d, want %dx%d", i, gr, gc, wr, wc)
		}
	}
	return nil
}
