package cmd

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/fedsim/sim"
)

// writeDataset writes n rows of three separated classes with a "label" column.
func writeDataset(t *testing.T, dir string, n int) string {
	t.Helper()
	rng := rand.New(rand.NewPCG(1, 2))
	path := filepath.Join(dir, "data.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w := csv.NewWriter(f)
	require.NoError(t, w.Write([]string{"x0", "x1", "label"}))
	for i := 0; i < n; i++ {
		c := i % 3
		require.NoError(t, w.Write([]string{
			fmt.Sprint(float64(c)*4 + rng.NormFloat64()),
			fmt.Sprint(float64(c)*4 + rng.NormFloat64()),
			[]string{"cat", "dog", "eel"}[c],
		}))
	}
	w.Flush()
	require.NoError(t, w.Error())
	return path
}

func smallRunConfig(t *testing.T, strategy sim.Strategy) sim.SimulationConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := sim.DefaultSimulationConfig()
	cfg.Strategy = strategy
	cfg.Rounds = 2
	cfg.Clients = 2
	cfg.Training.Epochs = 2
	cfg.Data.Path = writeDataset(t, dir, 150)
	cfg.Data.Name = "blobs"
	cfg.Report.LogDir = filepath.Join(dir, "logs")
	cfg.Report.Tag = "t"
	cfg.Report.MetricsTextfile = filepath.Join(dir, "metrics", "fedsim.prom")
	return cfg
}

func TestRunSimulation_WritesReports(t *testing.T) {
	for _, strategy := range []sim.Strategy{sim.StrategyEBL, sim.StrategyFedAvg} {
		t.Run(string(strategy), func(t *testing.T) {
			// GIVEN a small dataset and a two-round configuration
			cfg := smallRunConfig(t, strategy)

			// WHEN the simulation runs end to end
			summary, err := runSimulation(cfg)

			// THEN every report file exists and the summary covers both rounds
			require.NoError(t, err)
			assert.Equal(t, 2, summary.Rounds)
			assert.Len(t, summary.ClientTestAccuracy, 2)

			layout := layoutFor(cfg)
			for _, p := range []string{layout.ClientsPath(), layout.ServerPath(), layout.DistributionPath(),
				layout.HeaderPath(), cfg.Report.MetricsTextfile} {
				_, err := os.Stat(p)
				assert.NoError(t, err, p)
			}

			data, err := os.ReadFile(layout.HeaderPath())
			require.NoError(t, err)
			var header map[string]any
			require.NoError(t, yaml.Unmarshal(data, &header))
			assert.Equal(t, cfg.LearningType(), header["learning_type"])
			assert.Equal(t, "blobs", header["dataset"])
			assert.NotEmpty(t, header["run_id"])
		})
	}
}

func TestRunSimulation_MissingTarget(t *testing.T) {
	cfg := smallRunConfig(t, sim.StrategyEBL)
	cfg.Data.Target = "species"

	_, err := runSimulation(cfg)
	assert.ErrorIs(t, err, sim.ErrUnknownTarget)
}

func TestLayoutFor_StrategyNames(t *testing.T) {
	cfg := sim.DefaultSimulationConfig()
	cfg.Report.LogDir = "out"
	cfg.Report.Tag = "x"

	assert.Equal(t, filepath.Join("out", "ensemble-based-learning", "server_ebl_history_x.csv"), layoutFor(cfg).ServerPath())
	cfg.Strategy = sim.StrategyFedAvg
	assert.Equal(t, filepath.Join("out", "averaging-weights-learning", "clients_awl_history_x.csv"), layoutFor(cfg).ClientsPath())
	assert.Equal(t, filepath.Join("out", "awl_x.log"), layoutFor(cfg).LogPath())
}

func TestLogToFile_RedirectsLogrus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ebl_t.log")
	closer, err := logToFile(path)
	require.NoError(t, err)
	saved := zlog.Logger
	t.Cleanup(func() {
		logrus.SetOutput(os.Stderr)
		zlog.Logger = saved
	})

	logrus.Error("redirected")
	zlog.Error().Msg("library line")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "redirected")
	assert.Contains(t, string(data), "library line")
}

func TestLibraryLevel_FollowsLogLevel(t *testing.T) {
	tests := []struct {
		level logrus.Level
		want  zerolog.Level
	}{
		{logrus.TraceLevel, zerolog.TraceLevel},
		{logrus.DebugLevel, zerolog.DebugLevel},
		{logrus.InfoLevel, zerolog.InfoLevel},
		{logrus.WarnLevel, zerolog.WarnLevel},
		{logrus.ErrorLevel, zerolog.ErrorLevel},
		{logrus.FatalLevel, zerolog.FatalLevel},
		{logrus.PanicLevel, zerolog.PanicLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, libraryLevel(tt.level))
		})
	}
}

func TestLibraryLevel_InfoDropsTrainingTrace(t *testing.T) {
	// GIVEN the default run level applied to the library logger
	saved := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(saved) })
	zerolog.SetGlobalLevel(libraryLevel(logrus.InfoLevel))

	// WHEN the library emits a per-step trace line
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	logger.Trace().Msg("step")

	// THEN nothing is written
	assert.Empty(t, buf.String())
}
