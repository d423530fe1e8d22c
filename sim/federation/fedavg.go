package federation

import (
	"errors"
	"fmt"

	"github.com/inference-sim/fedsim/sim"
	"gonum.org/v1/gonum/mat"
)

// ErrArchitectureMismatch is returned when parameter averaging is asked to
// combine clients that do not share one architecture.
var ErrArchitectureMismatch = errors.New("clients do not share one architecture")

// FedAvgServer averages the parameters of homogeneous client models,
// weighting each client by its visible data volume.
type FedAvgServer struct {
	arch     string
	template sim.ParameterModel // carries the architecture the global parameters load into
	global   []*mat.Dense
	weights  []float64
}

// NewFedAvgServer binds the server to the clients' common architecture.
// Every client must carry the same tag and a ParameterModel with the same
// parameter shapes; otherwise the error wraps ErrArchitectureMismatch.
func NewFedAvgServer(clients []*Client) (*FedAvgServer, error) {
	if len(clients) == 0 {
		return nil, errors.New("fedavg server needs at least one client")
	}
	first, ok := clients[0].Model().(sim.ParameterModel)
	if !ok {
		return nil, fmt.Errorf("client %d model %s has no parameters: %w", clients[0].ID, clients[0].Arch, ErrArchitectureMismatch)
	}
	shapes := first.Parameters()
	for _, c := range clients[1:] {
		if c.Arch != clients[0].Arch {
			return nil, fmt.Errorf("client %d is %s, client %d is %s: %w",
				clients[0].ID, clients[0].Arch, c.ID, c.Arch, ErrArchitectureMismatch)
		}
		pm, ok := c.Model().(sim.ParameterModel)
		if !ok {
			return nil, fmt.Errorf("client %d model %s has no parameters: %w", c.ID, c.Arch, ErrArchitectureMismatch)
		}
		if err := sameShapes(shapes, pm.Parameters()); err != nil {
			return nil, fmt.Errorf("client %d: %v: %w", c.ID, err, ErrArchitectureMismatch)
		}
	}
	return &FedAvgServer{
		arch:     clients[0].Arch,
		template: first.Clone().(sim.ParameterModel),
	}, nil
}

// Arch returns the architecture tag the server is bound to.
func (s *FedAvgServer) Arch() string { return s.arch }

// UpdateGlobalModel sets the global parameters to Σ_i w_i · params_i with
// w_i = counts[i]/Σcounts (uniform when Σcounts is 0).
func (s *FedAvgServer) UpdateGlobalModel(clients []*Client, counts []int) error {
	if len(clients) != len(counts) {
		panic(fmt.Sprintf("FedAvgServer.UpdateGlobalModel: %d clients, %d counts", len(clients), len(counts)))
	}
	weights := dataWeights(counts)
	var global []*mat.Dense
	for i, c := range clients {
		pm, ok := c.Model().(sim.ParameterModel)
		if !ok {
			return fmt.Errorf("client %d: %w", c.ID, ErrArchitectureMismatch)
		}
		params := pm.Parameters()
		if global == nil {
			global = make([]*mat.Dense, len(params))
			for p, m := range params {
				r, cols := m.Dims()
				global[p] = mat.NewDense(r, cols, nil)
			}
		}
		if err := sameShapes(global, params); err != nil {
			return fmt.Errorf("client %d: %v: %w", c.ID, err, ErrArchitectureMismatch)
		}
		for p, m := range params {
			scaled := mat.DenseCopyOf(m)
			scaled.Scale(weights[i], scaled)
			global[p].Add(global[p], scaled)
		}
	}
	s.global = global
	s.weights = weights
	return nil
}

// AveragedWeights returns the per-client weights of the last update, in
// client order.
func (s *FedAvgServer) AveragedWeights() []float64 { return append([]float64(nil), s.weights...) }

// GlobalParameters returns a copy of the global parameters, or nil before
// the first update.
func (s *FedAvgServer) GlobalParameters() []*mat.Dense { return copyParams(s.global) }

// Distribute loads the global parameters into every client's model.
func (s *FedAvgServer) Distribute(clients []*Client) error {
	if s.global == nil {
		return nil
	}
	for _, c := range clients {
		pm, ok := c.Model().(sim.ParameterModel)
		if !ok {
			return fmt.Errorf("client %d: %w", c.ID, ErrArchitectureMismatch)
		}
		if err := pm.SetParameters(copyParams(s.global)); err != nil {
			return fmt.Errorf("loading global parameters into client %d: %w", c.ID, err)
		}
	}
	return nil
}

// globalModel returns a fresh model of the bound architecture holding the
// global parameters.
func (s *FedAvgServer) globalModel() (sim.ParameterModel, error) {
	if s.global == nil {
		return nil, errors.New("fedavg server has no global model yet")
	}
	m := s.template.Clone().(sim.ParameterModel)
	if err := m.SetParameters(copyParams(s.global)); err != nil {
		return nil, fmt.Errorf("loading global parameters: %w", err)
	}
	return m, nil
}

// Evaluate returns the global model's accuracy on x, y.
func (s *FedAvgServer) Evaluate(x [][]float64, y []int, classes int) (float64, error) {
	m, err := s.globalModel()
	if err != nil {
		return 0, err
	}
	scores, err := sim.Evaluate(m, x, y, classes, sim.MetricAccuracy)
	if err != nil {
		return 0, fmt.Errorf("fedavg evaluate: %w", err)
	}
	return scores.Accuracy, nil
}

// ComputeMetrics returns the full metric set of the global model on x, y.
func (s *FedAvgServer) ComputeMetrics(x [][]float64, y []int, classes int) (sim.ClassificationMetrics, error) {
	m, err := s.globalModel()
	if err != nil {
		return sim.ClassificationMetrics{}, err
	}
	proba, err := m.PredictProba(x)
	if err != nil {
		return sim.ClassificationMetrics{}, fmt.Errorf("fedavg metrics: %w", err)
	}
	return sim.ComputeMetrics(proba, y, classes), nil
}

func sameShapes(want, got []*mat.Dense) error {
	if len(want) != len(got) {
		return fmt.Errorf("%d parameter matrices, want %d", len(got), len(want))
	}
	for p := range want {
		wr, wc := want[p].Dims()
		gr, gc := got[p].Dims()
		if wr != gr || wc != gc {
			return fmt.Errorf("parameter %d is %dx%d, want %dx%d", p, gr, gc, wr, wc)
		}
	}
	return nil
}

func copyParams(params []*mat.Dense) []*mat.Dense {
	if params == nil {
		return nil
	}
	out := make([]*mat.Dense, len(params))
	for i, p := range params {
		out[i] = mat.DenseCopyOf(p)
	}
	return out
}
