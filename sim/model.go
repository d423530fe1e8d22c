package sim

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// ErrUnknownModel is returned when an architecture tag has no registered constructor.
var ErrUnknownModel = errors.New("unknown model architecture")

// Model is the capability every local model variant exposes. The federation
// layer holds models only through this interface and never assumes a
// concrete type.
//
// Fit trains on the rows given (the caller always passes the whole visible
// history). Ensemble variants retrain from scratch; parameter variants
// continue from their current parameters. Fitting on zero rows is a no-op.
// A model that has never been fitted predicts uniform probabilities.
type Model interface {
	Fit(x [][]float64, y []int) error
	PredictProba(x [][]float64) ([][]float64, error)
	// Clone returns a deep, independent copy; training the copy never
	// affects the original.
	Clone() Model
}

// ParameterModel is a Model whose state is a fixed-shape list of parameter
// matrices, so it can take part in parameter averaging.
type ParameterModel interface {
	Model
	Parameters() []*mat.Dense
	SetParameters(params []*mat.Dense) error
}

// ModelConfig groups the hyper-parameters handed to model constructors.
type ModelConfig struct {
	Features     int        // input width
	Classes      int        // output width
	LearningRate float64    // gradient step for trainable variants
	Epochs       int        // passes over the visible rows per Fit
	BatchSize    int        // mini-batch size for gradient variants
	Rng          *rand.Rand // initialisation and shuffling stream
}

// Validate checks the sizes every variant relies on.
func (c ModelConfig) Validate() error {
	if c.Features < 1 {
		return fmt.Errorf("model needs at least one feature, got %d", c.Features)
	}
	if c.Classes < 1 {
		return fmt.Errorf("model needs at least one class, got %d", c.Classes)
	}
	if c.Rng == nil {
		return errors.New("model config has no RNG")
	}
	return nil
}

// Architecture tags. The ensemble catalogue holds heterogeneous variants;
// the averaging networks share one parameter shape per tag.
const (
	ArchLogisticRegression = "LogisticRegression"
	ArchKNN                = "KNN"
	ArchRandomForest       = "RandomForest"
	ArchNeuralNetwork      = "NeuralNetwork"
	ArchNetworkA           = "NeuralNetwork-A"
	ArchNetworkB           = "NeuralNetwork-B"
)

// EnsembleCatalogue is the rotation order of ensemble-based clients.
var EnsembleCatalogue = []string{ArchLogisticRegression, ArchKNN, ArchRandomForest, ArchNeuralNetwork}

// validNetworkTypes maps the averaging network type letter to its tag.
var validNetworkTypes = map[string]string{"A": ArchNetworkA, "B": ArchNetworkB}

// IsValidNetworkType reports whether t names an averaging network type.
func IsValidNetworkType(t string) bool {
	_, ok := validNetworkTypes[t]
	return ok
}

// NetworkArch returns the architecture tag for an averaging network type letter.
func NetworkArch(t string) (string, error) {
	arch, ok := validNetworkTypes[t]
	if !ok {
		return "", fmt.Errorf("network type %q: %w", t, ErrUnknownModel)
	}
	return arch, nil
}

// AllocateArch picks client id's architecture by rotating through catalogue
// starting at offset.
func AllocateArch(catalogue []string, id, offset int) string {
	n := len(catalogue)
	return catalogue[((id+offset)%n+n)%n]
}

// NewModelFunc is the model factory. It is set by sim/models' init(), which
// keeps concrete variants (and their libraries) out of this package.
var NewModelFunc func(arch string, cfg ModelConfig) (Model, error)

// NewModel builds a model for the given architecture tag.
// Panics if no factory has been registered.
func NewModel(arch string, cfg ModelConfig) (Model, error) {
	if NewModelFunc == nil {
		panic("NewModelFunc not registered: import sim/models to register it")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("model %s: %w", arch, err)
	}
	return NewModelFunc(arch, cfg)
}

// UniformProba returns n rows of equal class probabilities.
func UniformProba(n, classes int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		row := make([]float64, classes)
		for j := range row {
			row[j] = 1 / float64(classes)
		}
		out[i] = row
	}
	return out
}
