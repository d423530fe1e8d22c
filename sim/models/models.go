// Package models holds the concrete local model variants a federated client
// can own. Every variant implements sim.Model; the averaging networks also
// implement sim.ParameterModel.
//
// Ensemble catalogue (heterogeneous, refit from scratch on every Fit):
//   - LogisticRegression: softmax regression on gonum matrices
//   - KNN: majority vote of the nearest rows under github.com/cdipaolo/goml distance
//   - RandomForest: github.com/malaschitz/randomForest
//   - NeuralNetwork: github.com/drakos74/go-ex-machina feed-forward network
//
// Averaging networks (homogeneous, warm-started from their current
// parameters so the global average carries across rounds):
//   - NeuralNetwork-A: softmax regression
//   - NeuralNetwork-B: one hidden tanh layer
package models

import (
	"fmt"

	"github.com/inference-sim/fedsim/sim"
)

// Fixed hyper-parameters of the ensemble catalogue. The run's training
// settings apply to the averaging networks only.
const (
	ensembleLearningRate = 0.1
	ensembleEpochs       = 50
	neighbours           = 5
	forestTrees          = 50
	neuralHidden         = 16
	mlpHidden            = 16
)

// New builds a model for the given architecture tag.
func New(arch string, cfg sim.ModelConfig) (sim.Model, error) {
	switch arch {
	case sim.ArchLogisticRegression:
		return NewLogisticRegression(cfg), nil
	case sim.ArchKNN:
		return NewKNN(cfg), nil
	case sim.ArchRandomForest:
		return NewRandomForest(cfg), nil
	case sim.ArchNeuralNetwork:
		return NewNeuralNetwork(cfg), nil
	case sim.ArchNetworkA:
		return NewSoftmax(cfg), nil
	case sim.ArchNetworkB:
		return NewMLP(cfg), nil
	default:
		return nil, fmt.Errorf("%q: %w", arch, sim.ErrUnknownModel)
	}
}
