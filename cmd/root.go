package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/fedsim/sim"
	"github.com/inference-sim/fedsim/sim/federation"
	_ "github.com/inference-sim/fedsim/sim/models"
	"github.com/inference-sim/fedsim/sim/report"
)

var (
	// CLI flags for the round loop
	rounds          int       // Communication rounds
	clients         int       // Number of participating clients
	seed            int64     // Master seed for partitioning, release and model init
	dirichletAlpha  float64   // Concentration of the training label split
	releaseMode     string    // Per-round data release mode
	fedavg          bool      // Use parameter averaging instead of the ensemble
	enableGrouping  bool      // EBL: vote per architecture group
	modelAllocation int       // EBL: catalogue rotation offset
	modelType       string    // FedAvg network type
	epochs          int       // Local training epochs
	learningRate    float64   // Local learning rate
	trainBatchSize  int       // Local mini-batch size
	evalBatchSize   int       // Rows per prediction chunk
	dataPath        string    // CSV dataset path
	dataSplit       []float64 // Train/val/test ratios
	target          string    // Label column
	datasetName     string    // Dataset name for the run header
	logDir          string    // Report and log directory
	tag             string    // Suffix for report file names
	metricsTextfile string    // Optional prometheus textfile path
	verbose         bool      // Log to stderr instead of the run log file
	logLevel        string    // Log verbosity level
	configPath      string    // Optional YAML run configuration
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "fedsim",
	Short: "Federated learning simulator comparing FedAvg and ensemble-based learning",
}

// runCmd runs one federated simulation from flags and an optional config file
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a federated learning simulation",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
		zerolog.SetGlobalLevel(libraryLevel(level))

		cfg, err := resolveConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if err := cfg.Validate(); err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}
		if cfg.Data.Path == "" {
			logrus.Fatalf("Dataset path not provided (--data-path). Exiting simulation.")
		}

		layout := layoutFor(cfg)
		if !verbose {
			closer, err := logToFile(layout.LogPath())
			if err != nil {
				logrus.Fatalf("%v", err)
			}
			defer closer.Close()
		}

		startTime := time.Now()
		summary, err := runSimulation(cfg)
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		logrus.Infof("Simulation complete in %s: final accuracy %.3f (best %.3f at round %d)",
			time.Since(startTime).Round(time.Millisecond), summary.FinalTestAccuracy,
			summary.BestTestAccuracy, summary.BestRound)
	},
}

func layoutFor(cfg sim.SimulationConfig) report.Layout {
	return report.Layout{
		Dir:    cfg.Report.LogDir,
		Subdir: cfg.ReportSubdir(),
		Short:  cfg.ShortName(),
		Tag:    cfg.Report.Tag,
	}
}

// logToFile redirects logrus to a fresh log file at path.
func logToFile(path string) (io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating log file: %w", err)
	}
	logrus.SetOutput(f)
	zlog.Logger = zlog.Output(f)
	return f, nil
}

// libraryLevel maps the run's logrus level onto zerolog, which the neural
// network library logs through. Its per-step training logs are trace level
// and only show with --log trace.
func libraryLevel(level logrus.Level) zerolog.Level {
	switch level {
	case logrus.TraceLevel:
		return zerolog.TraceLevel
	case logrus.DebugLevel:
		return zerolog.DebugLevel
	case logrus.InfoLevel:
		return zerolog.InfoLevel
	case logrus.WarnLevel:
		return zerolog.WarnLevel
	case logrus.ErrorLevel:
		return zerolog.ErrorLevel
	case logrus.FatalLevel:
		return zerolog.FatalLevel
	default:
		return zerolog.PanicLevel
	}
}

// runSimulation loads and splits the dataset, runs every round and writes
// the reports.
func runSimulation(cfg sim.SimulationConfig) (*report.RunSummary, error) {
	ds, err := sim.LoadCSV(cfg.Data.Path, cfg.Data.Target)
	if err != nil {
		return nil, err
	}
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed))
	train, val, test, err := ds.Split(cfg.Data.Split, rng.ForSubsystem(sim.SubsystemSplit))
	if err != nil {
		return nil, err
	}
	logrus.Infof("Loaded %d rows (%d features, %d classes): train=%d, val=%d, test=%d",
		ds.Len(), ds.NumFeatures(), ds.NumClasses(), train.Len(), val.Len(), test.Len())

	s, err := federation.NewSimulator(cfg, train, val, test, rng)
	if err != nil {
		return nil, err
	}
	logrus.Info("Partitioning data")
	for i, part := range s.TrainPartition() {
		logrus.Infof("Client%d: train=%d, val=%d, test=%d", i, len(part), len(s.ValPartition()[i]), test.Len())
	}
	if err := s.Run(); err != nil {
		return nil, err
	}

	layout := layoutFor(cfg)
	if err := report.Export(layout, s.Trace()); err != nil {
		return nil, err
	}
	summary := s.Summary()
	header := report.NewRunHeader(cfg.LearningType(), cfg.Seed, cfg.Data.Name, cfg)
	header.Summary = summary
	if err := header.WriteFile(layout.HeaderPath()); err != nil {
		return nil, err
	}
	if cfg.Report.MetricsTextfile != "" {
		if err := report.WriteMetricsTextfile(cfg.Report.MetricsTextfile, summary); err != nil {
			return nil, err
		}
	}
	logrus.Infof("Reports written to %s (run %s)", cfg.Report.LogDir, header.RunID)
	return summary, nil
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	d := sim.DefaultSimulationConfig()

	runCmd.Flags().StringVar(&configPath, "config", "", "YAML run configuration; explicitly set flags override it")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log to the terminal instead of the run log file")
	runCmd.Flags().Int64Var(&seed, "seed", d.Seed, "Random seed value")

	// Round loop
	runCmd.Flags().IntVar(&rounds, "rounds", d.Rounds, "Communication rounds")
	runCmd.Flags().IntVar(&clients, "clients", d.Clients, "Number of participating clients")
	runCmd.Flags().Float64Var(&dirichletAlpha, "dirichlet-alpha", d.DirichletAlpha, "Dirichlet concentration of the training label split")
	runCmd.Flags().StringVar(&releaseMode, "data-distrib-mode", string(d.ReleaseMode), "Data release mode over rounds (uniform, sequential, stratified)")
	runCmd.Flags().BoolVar(&fedavg, "fedavg", false, "Use Federated Averaging instead of Ensemble-based Learning")
	runCmd.Flags().BoolVar(&enableGrouping, "enable-grouping", d.EnableGrouping, "Group ensemble members of the same architecture")
	runCmd.Flags().IntVar(&modelAllocation, "model-allocation", d.ModelAllocation, "Start offset in the circular model catalogue")
	runCmd.Flags().StringVar(&modelType, "model-type", d.ModelType, "FedAvg network type (A, B)")

	// Local training
	runCmd.Flags().IntVar(&epochs, "epochs", d.Training.Epochs, "Client training epochs")
	runCmd.Flags().Float64Var(&learningRate, "lr", d.Training.LearningRate, "Learning rate")
	runCmd.Flags().IntVar(&trainBatchSize, "train-batch-size", d.Training.TrainBatchSize, "Training mini-batch size")
	runCmd.Flags().IntVar(&evalBatchSize, "evaluate-batch-size", d.Training.EvalBatchSize, "Evaluation batch size")

	// Data
	runCmd.Flags().StringVar(&dataPath, "data-path", d.Data.Path, "Path to the CSV dataset")
	runCmd.Flags().Float64SliceVar(&dataSplit, "data-split", d.Data.Split[:], "Train/val/test split ratios")
	runCmd.Flags().StringVar(&target, "target", d.Data.Target, "Target column name")
	runCmd.Flags().StringVar(&datasetName, "dataset-name", d.Data.Name, "Dataset name")

	// Reports
	runCmd.Flags().StringVar(&logDir, "log-dir", d.Report.LogDir, "Directory for logs and reports")
	runCmd.Flags().StringVar(&tag, "tag", d.Report.Tag, "Tag added to report file names")
	runCmd.Flags().StringVar(&metricsTextfile, "metrics-textfile", d.Report.MetricsTextfile, "Write end-of-run prometheus gauges to this file")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
