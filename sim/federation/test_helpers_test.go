package federation

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/inference-sim/fedsim/sim"
	"github.com/inference-sim/fedsim/sim/internal/testutil"
	"github.com/inference-sim/fedsim/sim/report"
	_ "github.com/inference-sim/fedsim/sim/models"
)

// constModel always votes for one class.
type constModel struct {
	label   int
	classes int
	fits    int
}

func (m *constModel) Fit(x [][]float64, _ []int) error {
	if len(x) > 0 {
		m.fits++
	}
	return nil
}

func (m *constModel) PredictProba(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i := range out {
		row := make([]float64, m.classes)
		row[m.label] = 1
		out[i] = row
	}
	return out, nil
}

func (m *constModel) Clone() sim.Model {
	c := *m
	return &c
}

func newTestScheduler(t *testing.T, mode sim.ReleaseMode, seed uint64) *sim.RoundScheduler {
	t.Helper()
	s, err := sim.NewRoundScheduler(mode, rand.New(rand.NewPCG(seed, seed+1)))
	if err != nil {
		t.Fatalf("NewRoundScheduler: %v", err)
	}
	return s
}

// constClients builds one client per label; archs[i] tags client i.
func constClients(t *testing.T, labels []int, archs []string, classes int) []*Client {
	t.Helper()
	clients := make([]*Client, len(labels))
	for i, l := range labels {
		clients[i] = NewClient(i, archs[i], &constModel{label: l, classes: classes},
			newTestScheduler(t, sim.ReleaseUniform, uint64(i)), nil, 0)
	}
	return clients
}

// blobSplits returns train/val/test datasets cut from one blob table.
func blobSplits(t *testing.T, n, classes int, seed int64) (train, val, test *sim.Dataset) {
	t.Helper()
	x, y := testutil.Blobs(n, classes, 4, 4, uint64(seed))
	names := make([]string, classes)
	for i := range names {
		names[i] = string(rune('a' + i))
	}
	ds, err := sim.NewDataset(testutil.FeatureNames(4), names, x, y)
	if err != nil {
		t.Fatalf("NewDataset: %v", err)
	}
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(seed))
	train, val, test, err = ds.Split([3]float64{0.8, 0.1, 0.1}, rng.ForSubsystem(sim.SubsystemSplit))
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	return train, val, test
}

func testSimConfig(strategy sim.Strategy) sim.SimulationConfig {
	cfg := sim.DefaultSimulationConfig()
	cfg.Strategy = strategy
	cfg.Rounds = 3
	cfg.Clients = 3
	cfg.Seed = 7
	cfg.Training.Epochs = 2
	cfg.Training.TrainBatchSize = 16
	cfg.Training.EvalBatchSize = 8
	return cfg
}

func newTestSimulator(t *testing.T, cfg sim.SimulationConfig, rows int) *Simulator {
	t.Helper()
	train, val, test := blobSplits(t, rows, 3, cfg.Seed)
	s, err := NewSimulator(cfg, train, val, test, sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed)))
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	return s
}

func csvOf(t *testing.T, tbl *report.Table) string {
	t.Helper()
	var buf bytes.Buffer
	if err := tbl.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	return buf.String()
}
