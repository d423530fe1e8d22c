package sim

import (
	"errors"
	"fmt"
	"math"
)

// Strategy selects the server-side aggregation algorithm.
type Strategy string

const (
	// StrategyEBL aggregates heterogeneous client models into a weighted-vote ensemble.
	StrategyEBL Strategy = "ebl"
	// StrategyFedAvg averages homogeneous client parameters by data volume.
	StrategyFedAvg Strategy = "fedavg"
)

// validStrategies is the set of recognized strategy names.
var validStrategies = map[Strategy]bool{StrategyEBL: true, StrategyFedAvg: true}

// IsValidStrategy reports whether name is a recognized strategy.
func IsValidStrategy(name string) bool { return validStrategies[Strategy(name)] }

// TrainingConfig groups local training hyper-parameters.
type TrainingConfig struct {
	LearningRate   float64 `yaml:"learning_rate"`    // gradient step (default 0.01)
	Epochs         int     `yaml:"epochs"`           // passes per round (default 5)
	TrainBatchSize int     `yaml:"train_batch_size"` // mini-batch size (default 32)
	EvalBatchSize  int     `yaml:"eval_batch_size"`  // rows per prediction chunk (default 64)
}

// DataConfig groups dataset location and splitting.
type DataConfig struct {
	Path   string     `yaml:"path"`   // CSV with a header row
	Target string     `yaml:"target"` // label column (default "label")
	Name   string     `yaml:"name"`   // free-form dataset name for reports
	Split  [3]float64 `yaml:"split"`  // train/val/test ratios (default 0.8/0.1/0.1)
}

// ReportConfig groups output locations.
type ReportConfig struct {
	LogDir          string `yaml:"log_dir"`          // report root (default ./logs)
	Tag             string `yaml:"tag"`              // suffix for report file names
	MetricsTextfile string `yaml:"metrics_textfile"` // optional prometheus textfile path
}

// SimulationConfig is the complete configuration of one federated run.
type SimulationConfig struct {
	Rounds          int         `yaml:"rounds"`           // communication rounds (default 10)
	Clients         int         `yaml:"clients"`          // client population (default 3)
	Seed            int64       `yaml:"seed"`             // master seed (default 1)
	DirichletAlpha  float64     `yaml:"dirichlet_alpha"`  // training split concentration (default 100)
	ReleaseMode     ReleaseMode `yaml:"release_mode"`     // per-round data release (default uniform)
	Strategy        Strategy    `yaml:"strategy"`         // ebl (default) or fedavg
	EnableGrouping  bool        `yaml:"enable_grouping"`  // EBL: vote per architecture group
	ModelAllocation int         `yaml:"model_allocation"` // EBL: catalogue rotation offset
	ModelType       string      `yaml:"model_type"`       // FedAvg: network type letter (default A)

	Training TrainingConfig `yaml:"training"`
	Data     DataConfig     `yaml:"data"`
	Report   ReportConfig   `yaml:"report"`
}

// DefaultSimulationConfig returns the stock configuration.
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		Rounds:         10,
		Clients:        3,
		Seed:           1,
		DirichletAlpha: 100,
		ReleaseMode:    ReleaseUniform,
		Strategy:       StrategyEBL,
		ModelType:      "A",
		Training: TrainingConfig{
			LearningRate:   0.01,
			Epochs:         5,
			TrainBatchSize: 32,
			EvalBatchSize:  64,
		},
		Data: DataConfig{
			Target: "label",
			Split:  [3]float64{0.8, 0.1, 0.1},
		},
		Report: ReportConfig{LogDir: "./logs"},
	}
}

// Validate returns the first configuration violation found, or nil.
func (c SimulationConfig) Validate() error {
	if c.Rounds < 1 {
		return fmt.Errorf("rounds must be >= 1, got %d", c.Rounds)
	}
	if c.Clients < 1 {
		return fmt.Errorf("clients must be >= 1, got %d", c.Clients)
	}
	if c.DirichletAlpha <= 0 || math.IsNaN(c.DirichletAlpha) || math.IsInf(c.DirichletAlpha, 0) {
		return fmt.Errorf("dirichlet alpha must be a positive finite number, got %v", c.DirichletAlpha)
	}
	if !validReleaseModes[c.ReleaseMode] {
		return fmt.Errorf("unknown release mode %q; valid modes: %v", c.ReleaseMode, ValidReleaseModeNames())
	}
	if !validStrategies[c.Strategy] {
		return fmt.Errorf("unknown strategy %q; valid strategies: ebl, fedavg", c.Strategy)
	}
	if c.Strategy == StrategyFedAvg && !IsValidNetworkType(c.ModelType) {
		return fmt.Errorf("unknown model type %q; valid types: A, B", c.ModelType)
	}
	if c.Training.LearningRate <= 0 || math.IsNaN(c.Training.LearningRate) {
		return fmt.Errorf("learning rate must be > 0, got %v", c.Training.LearningRate)
	}
	if c.Training.Epochs < 1 {
		return fmt.Errorf("epochs must be >= 1, got %d", c.Training.Epochs)
	}
	if c.Training.TrainBatchSize < 1 || c.Training.EvalBatchSize < 1 {
		return fmt.Errorf("batch sizes must be >= 1, got train=%d eval=%d", c.Training.TrainBatchSize, c.Training.EvalBatchSize)
	}
	sum := 0.0
	for _, r := range c.Data.Split {
		if r < 0 {
			return fmt.Errorf("split ratios must be non-negative, got %v", c.Data.Split)
		}
		sum += r
	}
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("split ratios must sum to 1, got %v", c.Data.Split)
	}
	if c.Data.Target == "" {
		return errors.New("target column must not be empty")
	}
	return nil
}

// LearningType is the server row label for the strategy.
func (c SimulationConfig) LearningType() string {
	if c.Strategy == StrategyFedAvg {
		return "FedAvg"
	}
	return "EBL"
}

// ShortName is the strategy's short form used in log and report file names.
func (c SimulationConfig) ShortName() string {
	if c.Strategy == StrategyFedAvg {
		return "awl"
	}
	return "ebl"
}

// ReportSubdir is the per-strategy report directory name.
func (c SimulationConfig) ReportSubdir() string {
	if c.Strategy == StrategyFedAvg {
		return "averaging-weights-learning"
	}
	return "ensemble-based-learning"
}
