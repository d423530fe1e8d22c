package federation

import (
	"errors"
	"testing"

	"github.com/inference-sim/fedsim/sim"
	"github.com/inference-sim/fedsim/sim/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulator_RoundCount_ClientAndServerRows(t *testing.T) {
	for _, strategy := range []sim.Strategy{sim.StrategyEBL, sim.StrategyFedAvg} {
		t.Run(string(strategy), func(t *testing.T) {
			// GIVEN R=3 rounds and C=3 clients
			cfg := testSimConfig(strategy)
			s := newTestSimulator(t, cfg, 240)

			// WHEN the run completes
			require.NoError(t, s.Run())

			// THEN there are R×C client rows and R server rows
			rt := s.Trace()
			assert.Len(t, rt.Clients, cfg.Rounds*cfg.Clients)
			assert.Len(t, rt.Servers, cfg.Rounds)
			for i, r := range rt.Clients {
				assert.Equal(t, i/cfg.Clients, r.RoundID)
				assert.Equal(t, i%cfg.Clients, r.ClientID, "clients run in id order")
			}
			for r, rec := range rt.Servers {
				assert.Equal(t, r, rec.RoundID)
				assert.Equal(t, cfg.LearningType(), rec.LearningType)
				assert.Len(t, rec.ConfusionMatrix, 9)
			}
		})
	}
}

func TestSimulator_FedAvg_WeightsSumToOneEveryRound(t *testing.T) {
	cfg := testSimConfig(sim.StrategyFedAvg)
	s := newTestSimulator(t, cfg, 240)
	require.NoError(t, s.Run())

	for _, rec := range s.Trace().Servers {
		require.Len(t, rec.Weights, cfg.Clients)
		sum := 0.0
		for _, w := range rec.Weights {
			sum += w
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "round %d", rec.RoundID)
		assert.Empty(t, rec.Scores)
	}
}

func TestSimulator_FedAvg_VisibleSetGrowsWithoutDuplicates(t *testing.T) {
	// GIVEN an averaging run
	cfg := testSimConfig(sim.StrategyFedAvg)
	cfg.Rounds = 4
	s := newTestSimulator(t, cfg, 240)

	// WHEN it runs
	require.NoError(t, s.Run())

	// THEN each client gains exactly one batch per round and never repeats a row
	for _, c := range s.Clients() {
		batch := sim.BatchSize(len(c.Partition()), cfg.Rounds)
		for _, r := range s.Trace().Clients {
			if r.ClientID == c.ID {
				assert.Equal(t, batch*(r.RoundID+1), r.TotalDataPoints)
				assert.Equal(t, batch, r.NewDataPoints)
			}
		}
		seen := map[int]bool{}
		for _, idx := range c.Visible() {
			assert.False(t, seen[idx], "client %d saw row %d twice", c.ID, idx)
			seen[idx] = true
		}
	}
}

func TestSimulator_EBL_VisibleSetGrowsByBatchEveryRound(t *testing.T) {
	cfg := testSimConfig(sim.StrategyEBL)
	cfg.Clients = 2
	cfg.Rounds = 4
	s := newTestSimulator(t, cfg, 200)
	require.NoError(t, s.Run())

	for _, c := range s.Clients() {
		batch := sim.BatchSize(len(c.Partition()), cfg.Rounds)
		assert.Equal(t, batch*cfg.Rounds, c.DataPoints())
	}
}

func TestSimulator_EBL_ScoreShape(t *testing.T) {
	tests := []struct {
		name      string
		clients   int
		grouping  bool
		wantUnits int
	}{
		{"one unit per member", 3, false, 3},
		{"one unit per architecture", 5, true, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testSimConfig(sim.StrategyEBL)
			cfg.Clients = tt.clients
			cfg.Rounds = 2
			cfg.EnableGrouping = tt.grouping
			s := newTestSimulator(t, cfg, 200)
			require.NoError(t, s.Run())

			e := s.EBLServer().SharedEnsemble()
			require.NotNil(t, e)
			assert.Equal(t, tt.wantUnits, e.Units())
			sum := 0.0
			for _, sc := range e.Scores() {
				assert.GreaterOrEqual(t, sc, 0.0)
				sum += sc
			}
			assert.InDelta(t, 1.0, sum, 1e-9)
			for _, rec := range s.Trace().Servers {
				assert.Len(t, rec.Scores, tt.clients, "P columns are per client")
				assert.Empty(t, rec.Weights)
			}
		})
	}
}

func TestSimulator_ArchitectureAllocation(t *testing.T) {
	cfg := testSimConfig(sim.StrategyEBL)
	cfg.Rounds = 1
	cfg.Clients = 2
	cfg.ModelAllocation = 1
	s := newTestSimulator(t, cfg, 120)
	require.NoError(t, s.Run())

	assert.Equal(t, sim.ArchKNN, s.Clients()[0].Arch)
	assert.Equal(t, sim.ArchRandomForest, s.Clients()[1].Arch)
	assert.Equal(t, sim.ArchKNN, s.Trace().Clients[0].ModelArchType)
}

func TestSimulator_FedAvg_ClientsShareInitialParameters(t *testing.T) {
	cfg := testSimConfig(sim.StrategyFedAvg)
	cfg.ModelType = "B"
	s := newTestSimulator(t, cfg, 120)

	first := params(s.Clients()[0])
	for _, c := range s.Clients()[1:] {
		assert.Equal(t, sim.ArchNetworkB, c.Arch)
		for p, m := range params(c) {
			assert.Equal(t, first[p].RawMatrix().Data, m.RawMatrix().Data)
		}
	}
}

func stripTimings(rt *report.RunTrace) *report.RunTrace {
	out := *rt
	out.Clients = append([]report.ClientRecord(nil), rt.Clients...)
	out.Servers = append([]report.ServerRecord(nil), rt.Servers...)
	for i := range out.Clients {
		out.Clients[i].TrainingTime, out.Clients[i].InferenceTime = 0, 0
	}
	for i := range out.Servers {
		out.Servers[i].InferenceTime = 0
	}
	return &out
}

func TestSimulator_Determinism_SameSeedSameRun(t *testing.T) {
	// Four EBL clients cover the whole catalogue, random forest included.
	ebl := testSimConfig(sim.StrategyEBL)
	ebl.Clients = len(sim.EnsembleCatalogue)
	for _, cfg := range []sim.SimulationConfig{ebl, testSimConfig(sim.StrategyFedAvg)} {
		t.Run(string(cfg.Strategy), func(t *testing.T) {
			a := newTestSimulator(t, cfg, 200)
			b := newTestSimulator(t, cfg, 200)
			require.NoError(t, a.Run())
			require.NoError(t, b.Run())

			assert.Equal(t, a.TrainPartition(), b.TrainPartition())
			assert.Equal(t, a.ValPartition(), b.ValPartition())
			ta, tb := stripTimings(a.Trace()), stripTimings(b.Trace())
			// NaN never compares equal; compare the CSV rendering instead.
			assert.Equal(t, csvOf(t, ta.ClientTable()), csvOf(t, tb.ClientTable()))
			assert.Equal(t, csvOf(t, ta.ServerTable()), csvOf(t, tb.ServerTable()))
		})
	}
}

func TestSimulator_DifferentSeedDifferentPartition(t *testing.T) {
	cfg := testSimConfig(sim.StrategyFedAvg)
	a := newTestSimulator(t, cfg, 200)
	cfg.Seed = 8
	b := newTestSimulator(t, cfg, 200)
	assert.NotEqual(t, a.TrainPartition(), b.TrainPartition())
}

func TestSimulator_Distribution_CoversTrainingSet(t *testing.T) {
	cfg := testSimConfig(sim.StrategyEBL)
	s := newTestSimulator(t, cfg, 200)

	dist := s.Trace().Distribution
	require.Len(t, dist, cfg.Clients)
	total := 0
	for i, counts := range dist {
		assert.Len(t, counts, 3)
		n := 0
		for _, c := range counts {
			n += c
		}
		assert.Equal(t, len(s.TrainPartition()[i]), n)
		total += n
	}
	assert.Equal(t, 160, total)
}

func TestSimulator_EmptyVisibleSet_Tolerated(t *testing.T) {
	// GIVEN more rounds than rows per client, so every batch is empty
	cfg := testSimConfig(sim.StrategyFedAvg)
	cfg.Rounds = 20
	s := newTestSimulator(t, cfg, 40)

	// WHEN it runs
	err := s.Run()

	// THEN nothing fails and clients report no data
	require.NoError(t, err)
	for _, r := range s.Trace().Clients {
		assert.Equal(t, 0, r.TotalDataPoints)
	}
	assert.Len(t, s.Trace().Servers, 20)
}

func TestNewSimulator_InvalidConfig(t *testing.T) {
	train, val, test := blobSplits(t, 60, 3, 1)
	cfg := testSimConfig(sim.StrategyEBL)
	cfg.Rounds = 0
	_, err := NewSimulator(cfg, train, val, test, sim.NewPartitionedRNG(1))
	assert.Error(t, err)
}

func TestNewSimulator_MissingDataset(t *testing.T) {
	train, val, _ := blobSplits(t, 60, 3, 1)
	_, err := NewSimulator(testSimConfig(sim.StrategyEBL), train, val, nil, sim.NewPartitionedRNG(1))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrArchitectureMismatch))
}

func TestSimulator_RunTwice_Panics(t *testing.T) {
	cfg := testSimConfig(sim.StrategyFedAvg)
	cfg.Rounds = 1
	s := newTestSimulator(t, cfg, 60)
	assert.Panics(t, func() { s.Summary() })
	require.NoError(t, s.Run())
	assert.Equal(t, 1, s.Summary().Rounds)
	assert.Panics(t, func() { _ = s.Run() })
}

func TestSimulator_ServerTestAccuracy_FromEvaluate(t *testing.T) {
	for _, strategy := range []sim.Strategy{sim.StrategyEBL, sim.StrategyFedAvg} {
		t.Run(string(strategy), func(t *testing.T) {
			// GIVEN a finished run
			s := newTestSimulator(t, testSimConfig(strategy), 200)
			require.NoError(t, s.Run())
			testX, testY := s.test.Rows(s.testRows)

			// WHEN the final server model is evaluated again on the test set
			var acc float64
			var err error
			if s.EBLServer() != nil {
				acc, err = s.EBLServer().SharedEnsemble().Evaluate(testX, testY)
			} else {
				acc, err = s.FedAvgServer().Evaluate(testX, testY, s.train.NumClasses())
			}
			require.NoError(t, err)

			// THEN the last server row recorded that accuracy
			servers := s.Trace().Servers
			require.NotEmpty(t, servers)
			assert.Equal(t, acc, servers[len(servers)-1].TestAccuracy)
		})
	}
}
