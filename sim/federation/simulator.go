package federation

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/inference-sim/fedsim/sim"
	"github.com/inference-sim/fedsim/sim/report"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// Simulator drives the communication rounds of one federated run.
// Rounds run strictly in order; within a round clients run in ascending id
// order, and the server step runs only after every client has finished.
type Simulator struct {
	config sim.SimulationConfig
	train  *sim.Dataset
	val    *sim.Dataset
	test   *sim.Dataset
	rng    *sim.PartitionedRNG

	trainParts sim.Partition
	valParts   sim.Partition
	testRows   []int

	clients []*Client
	ebl     *EBLServer
	fedavg  *FedAvgServer

	trace  *report.RunTrace
	hasRun bool
}

// NewSimulator partitions the datasets and builds the client population and
// server for cfg.Strategy. The training split is partitioned with the
// Dirichlet concentration, the validation split iid, and the test split is
// kept whole as the shared evaluation set.
func NewSimulator(cfg sim.SimulationConfig, train, val, test *sim.Dataset, rng *sim.PartitionedRNG) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if train == nil || val == nil || test == nil {
		return nil, errors.New("simulator needs train, validation and test datasets")
	}
	if rng == nil {
		panic("NewSimulator: nil PartitionedRNG")
	}
	classes := train.NumClasses()
	if val.NumClasses() != classes || test.NumClasses() != classes {
		return nil, fmt.Errorf("class count differs across splits: train %d, val %d, test %d",
			classes, val.NumClasses(), test.NumClasses())
	}

	s := &Simulator{
		config: cfg,
		train:  train,
		val:    val,
		test:   test,
		rng:    rng,
		trace:  report.NewRunTrace(cfg.LearningType()),
	}

	var err error
	s.trainParts, err = sim.DirichletPartition(train.Y, classes, cfg.Clients, cfg.DirichletAlpha,
		rng.ForSubsystem(sim.SubsystemPartition))
	if err != nil {
		return nil, fmt.Errorf("partitioning training data: %w", err)
	}
	s.valParts, err = sim.IIDPartition(val.Len(), cfg.Clients, rng.ForSubsystem(sim.SubsystemPartitionVal))
	if err != nil {
		return nil, fmt.Errorf("partitioning validation data: %w", err)
	}
	testParts, err := sim.IIDPartition(test.Len(), 1, rng.ForSubsystem(sim.SubsystemPartitionTest))
	if err != nil {
		return nil, fmt.Errorf("partitioning test data: %w", err)
	}
	s.testRows = testParts[0]

	s.trace.Distribution = make([][]int, cfg.Clients)
	for i, part := range s.trainParts {
		s.trace.Distribution[i] = train.LabelCounts(part)
	}

	if err := s.buildClients(); err != nil {
		return nil, err
	}
	if cfg.Strategy == sim.StrategyFedAvg {
		s.fedavg, err = NewFedAvgServer(s.clients)
		if err != nil {
			return nil, err
		}
	} else {
		s.ebl = NewEBLServer()
	}
	logrus.Info("Server is initialized")
	return s, nil
}

func (s *Simulator) modelConfig(rngName string) sim.ModelConfig {
	return sim.ModelConfig{
		Features:     s.train.NumFeatures(),
		Classes:      s.train.NumClasses(),
		LearningRate: s.config.Training.LearningRate,
		Epochs:       s.config.Training.Epochs,
		BatchSize:    s.config.Training.TrainBatchSize,
		Rng:          s.rng.ForSubsystem(rngName),
	}
}

// buildClients allocates architectures and models. Ensemble clients rotate
// through the catalogue; averaging clients share one network type and start
// from one common initialisation.
func (s *Simulator) buildClients() error {
	logrus.Info("Model architectures")
	var initial []*mat.Dense
	if s.config.Strategy == sim.StrategyFedAvg {
		arch, err := sim.NetworkArch(s.config.ModelType)
		if err != nil {
			return err
		}
		global, err := sim.NewModel(arch, s.modelConfig(sim.SubsystemGlobalModel))
		if err != nil {
			return fmt.Errorf("building global model: %w", err)
		}
		pm, ok := global.(sim.ParameterModel)
		if !ok {
			return fmt.Errorf("global model %s: %w", arch, ErrArchitectureMismatch)
		}
		initial = pm.Parameters()
	}

	s.clients = make([]*Client, s.config.Clients)
	for i := range s.clients {
		arch := sim.AllocateArch(sim.EnsembleCatalogue, i, s.config.ModelAllocation)
		if s.config.Strategy == sim.StrategyFedAvg {
			arch, _ = sim.NetworkArch(s.config.ModelType)
		}
		model, err := sim.NewModel(arch, s.modelConfig(sim.SubsystemModel(i)))
		if err != nil {
			return fmt.Errorf("building client %d model: %w", i, err)
		}
		if initial != nil {
			pm, ok := model.(sim.ParameterModel)
			if !ok {
				return fmt.Errorf("client %d model %s: %w", i, arch, ErrArchitectureMismatch)
			}
			if err := pm.SetParameters(copyParams(initial)); err != nil {
				return fmt.Errorf("initialising client %d: %w", i, err)
			}
		}
		scheduler, err := sim.NewRoundScheduler(s.config.ReleaseMode, s.rng.ForSubsystem(sim.SubsystemScheduler(i)))
		if err != nil {
			return err
		}
		s.clients[i] = NewClient(i, arch, model, scheduler, s.trainParts[i], s.config.Training.EvalBatchSize)
		logrus.Infof("Client%d archtype: %s", i, arch)
	}
	return nil
}

// Run executes every communication round. Any client or server failure
// aborts the run. Panics if called more than once.
func (s *Simulator) Run() error {
	if s.hasRun {
		panic("Simulator.Run() called more than once")
	}
	s.hasRun = true

	for round := 0; round < s.config.Rounds; round++ {
		logrus.Infof("########## Communication round %d ##########", round)
		if round > 0 && s.fedavg != nil {
			if err := s.fedavg.Distribute(s.clients); err != nil {
				return fmt.Errorf("round %d: %w", round, err)
			}
			logrus.Info("Clients load the global model")
		}
		for _, c := range s.clients {
			if err := s.clientStep(round, c); err != nil {
				return fmt.Errorf("round %d: %w", round, err)
			}
		}
		if err := s.serverStep(round); err != nil {
			return fmt.Errorf("round %d: %w", round, err)
		}
	}
	return nil
}

// clientStep releases, trains and evaluates one client for one round.
func (s *Simulator) clientStep(round int, c *Client) error {
	ensembleRun := s.ebl != nil
	if round > 0 && ensembleRun {
		c.SetEnsembleModel(s.ebl.SharedEnsemble())
		logrus.Infof("Client%d gets the ensemble model", c.ID)
	}

	// Averaging clients never re-draw a visible row; ensemble clients may.
	batchSize := sim.BatchSize(len(c.Partition()), s.config.Rounds)
	batch := c.Release(s.train.Y, batchSize, !ensembleRun)
	if len(batch) == 0 && batchSize > 0 {
		logrus.Warnf("Client%d partition exhausted; training on %d visible rows", c.ID, c.DataPoints())
	}
	logrus.Infof("Client%d trains locally (datapoints=%d, new=%d)", c.ID, c.DataPoints(), len(batch))

	start := time.Now()
	if err := c.Fit(s.train); err != nil {
		return err
	}
	trainingTime := time.Since(start).Seconds()

	classes := s.train.NumClasses()
	valX, valY := s.val.Rows(s.valParts[c.ID])
	val, err := c.Evaluate(valX, valY, classes, sim.MetricAUC)
	if err != nil {
		return err
	}
	testX, testY := s.test.Rows(s.testRows)
	start = time.Now()
	test, err := c.Evaluate(testX, testY, classes, sim.MetricAUC)
	if err != nil {
		return err
	}
	inferenceTime := time.Since(start).Seconds()

	logrus.Infof("Client%d accuracy on validation set: %.3f", c.ID, val.Accuracy)
	logrus.Infof("Client%d accuracy on test set: %.3f", c.ID, test.Accuracy)
	if math.IsNaN(val.MacroAUC) {
		logrus.Warnf("Client%d validation AUC undefined (single observed class)", c.ID)
	}

	if round > 0 && ensembleRun {
		if err := c.UpdateLocalScores(valX, valY); err != nil {
			return err
		}
		logrus.Infof("Client%d updates the scores of its local copy of the shared model", c.ID)
	}

	s.trace.RecordClient(report.ClientRecord{
		TrainingTime:      trainingTime,
		InferenceTime:     inferenceTime,
		LocalValAccuracy:  val.Accuracy,
		LocalTestAccuracy: test.Accuracy,
		LocalValMicroAUC:  val.MicroAUC,
		LocalValMacroAUC:  val.MacroAUC,
		TestMicroAUC:      test.MicroAUC,
		TestMacroAUC:      test.MacroAUC,
		RoundID:           round,
		ModelArchType:     c.Arch,
		ClientID:          c.ID,
		TotalDataPoints:   c.DataPoints(),
		NewDataPoints:     len(batch),
	})
	return nil
}

// serverStep aggregates after every client of the round has finished, then
// evaluates the global model on the test set.
func (s *Simulator) serverStep(round int) error {
	counts := make([]int, len(s.clients))
	for i, c := range s.clients {
		counts[i] = c.DataPoints()
	}
	testX, testY := s.test.Rows(s.testRows)
	classes := s.train.NumClasses()

	record := report.ServerRecord{RoundID: round, LearningType: s.config.LearningType()}
	// TestAccuracy comes from the server's Evaluate; the rest from ComputeMetrics.
	var metrics sim.ClassificationMetrics

	if s.ebl != nil {
		if round == 0 {
			s.ebl.SetSharedModel(NewEnsemble(s.clients, s.config.EnableGrouping, classes))
			logrus.Info("A shared model (ensemble) is created")
		} else {
			if err := s.ebl.UpdateEnsemble(s.clients, counts); err != nil {
				return fmt.Errorf("updating ensemble: %w", err)
			}
			logrus.Info("Server updates ensemble model")
		}
		shared := s.ebl.SharedEnsemble()
		start := time.Now()
		acc, err := shared.Evaluate(testX, testY)
		if err != nil {
			return err
		}
		record.InferenceTime = time.Since(start).Seconds()
		if metrics, err = shared.ComputeMetrics(testX, testY); err != nil {
			return err
		}
		metrics.Accuracy = acc
		record.Scores = shared.MemberScores()
		logrus.Infof("Ensemble accuracy on global test set: %.3f", acc)
		logrus.Infof("Ensemble models' scores: %v", round3(s.ebl.SharedEnsemble().Scores()))
	} else {
		if err := s.fedavg.UpdateGlobalModel(s.clients, counts); err != nil {
			return fmt.Errorf("updating global model: %w", err)
		}
		record.Weights = s.fedavg.AveragedWeights()
		logrus.Info("Server updates global model")
		logrus.Infof("Averaged datapoints weights: %v", round3(record.Weights))
		start := time.Now()
		acc, err := s.fedavg.Evaluate(testX, testY, classes)
		if err != nil {
			return err
		}
		if n := len(testY); n > 0 {
			record.InferenceTime = time.Since(start).Seconds() / float64(n)
		}
		if metrics, err = s.fedavg.ComputeMetrics(testX, testY, classes); err != nil {
			return err
		}
		metrics.Accuracy = acc
		logrus.Infof("Global accuracy on test set: %.3f", acc)
	}

	record.TestAccuracy = metrics.Accuracy
	record.Precision = metrics.Precision
	record.Recall = metrics.Recall
	record.TestMicroAUC = metrics.MicroAUC
	record.TestMacroAUC = metrics.MacroAUC
	record.ConfusionMatrix = metrics.ConfusionMatrix
	s.trace.RecordServer(record)
	return nil
}

// Clients returns the client population in id order.
func (s *Simulator) Clients() []*Client { return s.clients }

// TrainPartition returns the training partition.
func (s *Simulator) TrainPartition() sim.Partition { return s.trainParts }

// ValPartition returns the validation partition.
func (s *Simulator) ValPartition() sim.Partition { return s.valParts }

// EBLServer returns the ensemble server, or nil for an averaging run.
func (s *Simulator) EBLServer() *EBLServer { return s.ebl }

// FedAvgServer returns the averaging server, or nil for an ensemble run.
func (s *Simulator) FedAvgServer() *FedAvgServer { return s.fedavg }

// Trace returns the run's records.
func (s *Simulator) Trace() *report.RunTrace { return s.trace }

// Summary aggregates the run's records.
// Panics if called before Run() has completed.
func (s *Simulator) Summary() *report.RunSummary {
	if !s.hasRun {
		panic("Simulator.Summary() called before Run()")
	}
	return report.Summarize(s.trace)
}

func round3(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Round(x*1000) / 1000
	}
	return out
}
