package models

import (
	"fmt"
	mrand "math/rand"
	"math/rand/v2"

	"github.com/inference-sim/fedsim/sim"
	randomforest "github.com/malaschitz/randomForest"
	"gonum.org/v1/gonum/floats"
)

// RandomForest wraps a bagged decision-tree forest. Class probabilities are
// the forest's vote shares.
//
// The forest library draws from the process-wide math/rand generator. Fit
// reseeds it from the client's model stream and the library builds trees one
// at a time (see register.go), so a forest depends only on the run seed.
// Fits must not run concurrently.
type RandomForest struct {
	classes int
	trees   int
	rng     *rand.Rand
	// forest is replaced, never mutated, by Fit; clones share it.
	forest *randomforest.Forest
}

// NewRandomForest creates an untrained forest.
func NewRandomForest(cfg sim.ModelConfig) *RandomForest {
	return &RandomForest{classes: cfg.Classes, trees: forestTrees, rng: cfg.Rng}
}

// Fit grows a fresh forest on the given rows. Zero rows leave the model untouched.
func (m *RandomForest) Fit(x [][]float64, y []int) error {
	if len(x) == 0 {
		return nil
	}
	if len(x) != len(y) {
		return fmt.Errorf("random forest fit: %d rows but %d labels", len(x), len(y))
	}
	if m.rng != nil {
		mrand.Seed(m.rng.Int64())
	}
	forest := &randomforest.Forest{}
	forest.Data = randomforest.ForestData{X: x, Class: y}
	forest.Train(m.trees)
	m.forest = forest
	return nil
}

// PredictProba returns normalised vote shares padded to the full class count.
func (m *RandomForest) PredictProba(x [][]float64) ([][]float64, error) {
	if m.forest == nil {
		return sim.UniformProba(len(x), m.classes), nil
	}
	out := make([][]float64, len(x))
	for i, row := range x {
		p := make([]float64, m.classes)
		// Vote covers the classes seen in training: 0..max label.
		copy(p, m.forest.Vote(row))
		if sum := floats.Sum(p); sum > 0 {
			floats.Scale(1/sum, p)
		} else {
			p = sim.UniformProba(1, m.classes)[0]
		}
		out[i] = p
	}
	return out, nil
}

// Clone returns a copy sharing the trained forest, which is read-only.
func (m *RandomForest) Clone() sim.Model {
	c := *m
	return &c
}
