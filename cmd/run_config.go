package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/fedsim/sim"
)

// loadRunConfig decodes a YAML run configuration over the defaults.
// Unknown keys are rejected so typos fail loudly.
func loadRunConfig(path string) (sim.SimulationConfig, error) {
	cfg := sim.DefaultSimulationConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading run config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing run config %s: %w", path, err)
	}
	return cfg, nil
}

// resolveConfig builds the run configuration: defaults, then the --config
// file if given, then every flag the user set explicitly.
func resolveConfig(cmd *cobra.Command) (sim.SimulationConfig, error) {
	cfg := sim.DefaultSimulationConfig()
	if configPath != "" {
		var err error
		if cfg, err = loadRunConfig(configPath); err != nil {
			return cfg, err
		}
	}
	if err := applyFlags(cmd.Flags(), &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyFlags copies explicitly set flags into cfg.
func applyFlags(flags *pflag.FlagSet, cfg *sim.SimulationConfig) error {
	set := flags.Changed
	if set("rounds") {
		cfg.Rounds = rounds
	}
	if set("clients") {
		cfg.Clients = clients
	}
	if set("seed") {
		cfg.Seed = seed
	}
	if set("dirichlet-alpha") {
		cfg.DirichletAlpha = dirichletAlpha
	}
	if set("data-distrib-mode") {
		cfg.ReleaseMode = sim.ReleaseMode(releaseMode)
	}
	if set("fedavg") {
		cfg.Strategy = sim.StrategyEBL
		if fedavg {
			cfg.Strategy = sim.StrategyFedAvg
		}
	}
	if set("enable-grouping") {
		cfg.EnableGrouping = enableGrouping
	}
	if set("model-allocation") {
		cfg.ModelAllocation = modelAllocation
	}
	if set("model-type") {
		cfg.ModelType = modelType
	}
	if set("epochs") {
		cfg.Training.Epochs = epochs
	}
	if set("lr") {
		cfg.Training.LearningRate = learningRate
	}
	if set("train-batch-size") {
		cfg.Training.TrainBatchSize = trainBatchSize
	}
	if set("evaluate-batch-size") {
		cfg.Training.EvalBatchSize = evalBatchSize
	}
	if set("data-path") {
		cfg.Data.Path = dataPath
	}
	if set("data-split") {
		if len(dataSplit) != 3 {
			return fmt.Errorf("--data-split needs 3 ratios, got %d", len(dataSplit))
		}
		copy(cfg.Data.Split[:], dataSplit)
	}
	if set("target") {
		cfg.Data.Target = target
	}
	if set("dataset-name") {
		cfg.Data.Name = datasetName
	}
	if set("log-dir") {
		cfg.Report.LogDir = logDir
	}
	if set("tag") {
		cfg.Report.Tag = tag
	}
	if set("metrics-textfile") {
		cfg.Report.MetricsTextfile = metricsTextfile
	}
	return nil
}
