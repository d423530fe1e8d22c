package models

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/drakos74/go-ex-machina/xmachina/ml"
	"github.com/drakos74/go-ex-machina/xmachina/net"
	"github.com/drakos74/go-ex-machina/xmachina/net/ff"
	"github.com/drakos74/go-ex-machina/xmath"
	"github.com/inference-sim/fedsim/sim"
)

// NeuralNetwork is the ensemble catalogue's feed-forward network: one
// sigmoid hidden layer and a sigmoid output per class, trained sample by
// sample on one-hot targets. Output activations are normalised into class
// probabilities.
type NeuralNetwork struct {
	features int
	classes  int
	rng      *rand.Rand

	scale   *scaler
	network *ff.Network
	// layers tracks the live weights of each layer; the cells update them in place.
	layers []*net.Weights
}

// NewNeuralNetwork creates an untrained network.
func NewNeuralNetwork(cfg sim.ModelConfig) *NeuralNetwork {
	return &NeuralNetwork{features: cfg.Features, classes: cfg.Classes, rng: cfg.Rng}
}

// build assembles the network. gens supplies weight and bias generators per layer.
func (m *NeuralNetwork) build(gens [2][2]xmath.VectorGenerator) {
	m.layers = make([]*net.Weights, 2)
	capture := func(n, k int, module ml.Module, weights *net.Weights, meta net.Meta) net.Neuron {
		m.layers[meta.Layer] = weights
		return net.NewActivationCell(n, k, module, weights, meta)
	}
	layer := func(i int) net.NeuronFactory {
		return net.NewBuilder().
			WithModule(ml.Base().
				WithRate(ml.Learn(ensembleLearningRate, ensembleLearningRate)).
				WithActivation(ml.Sigmoid)).
			WithWeights(gens[i][0], gens[i][1]).
			Factory(capture)
	}
	m.network = ff.New(m.features, m.classes).
		Add(neuralHidden, layer(0)).
		Add(m.classes, layer(1))
}

// seeded draws uniform weights in ±1/sqrt(fan-in) from the model's stream.
func (m *NeuralNetwork) seeded() xmath.VectorGenerator {
	return func(p, _ int) xmath.Vector {
		bound := 1 / math.Sqrt(float64(p))
		w := xmath.Vec(p)
		for i := range w {
			w[i] = (m.rng.Float64()*2 - 1) * bound
		}
		return w
	}
}

// Fit rebuilds the network and trains it on the given rows.
// Zero rows leave the model untouched.
func (m *NeuralNetwork) Fit(x [][]float64, y []int) error {
	if len(x) == 0 {
		return nil
	}
	if len(x) != len(y) {
		return fmt.Errorf("neural network fit: %d rows but %d labels", len(x), len(y))
	}
	m.scale = fitScaler(x)
	xs := m.scale.transform(x)
	gen := m.seeded()
	m.build([2][2]xmath.VectorGenerator{{gen, xmath.Const(0)}, {gen, xmath.Const(0)}})
	for e := 0; e < ensembleEpochs; e++ {
		for _, i := range m.rng.Perm(len(xs)) {
			m.network.Train(xmath.Vector(xs[i]), oneHot(y[i], m.classes))
		}
	}
	return nil
}

// PredictProba returns normalised output activations.
func (m *NeuralNetwork) PredictProba(x [][]float64) ([][]float64, error) {
	if m.network == nil {
		return sim.UniformProba(len(x), m.classes), nil
	}
	out := make([][]float64, len(x))
	for i, row := range m.scale.transform(x) {
		v := m.network.Predict(xmath.Vector(row))
		sum := v.Sum()
		if sum <= 0 || math.IsNaN(sum) {
			out[i] = sim.UniformProba(1, m.classes)[0]
			continue
		}
		out[i] = v.Mult(1 / sum)
	}
	return out, nil
}

// Clone rebuilds an identical network from copies of the current weights.
// Cells keep per-call buffers, so a trained network cannot be shared.
func (m *NeuralNetwork) Clone() sim.Model {
	c := &NeuralNetwork{features: m.features, classes: m.classes, rng: m.rng, scale: m.scale}
	if m.network == nil {
		return c
	}
	var gens [2][2]xmath.VectorGenerator
	for i, w := range m.layers {
		gens[i] = [2]xmath.VectorGenerator{xmath.Row(w.W.Copy()...), xmath.Row(w.B.Copy())}
	}
	c.build(gens)
	return c
}
