package federation

import (
	"testing"

	"github.com/inference-sim/fedsim/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func partitionOf(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return p
}

func TestClient_Release_ExcludingVisible_NoDuplicates(t *testing.T) {
	// GIVEN a client with a 20-row partition released 6 rows per round
	labels := make([]int, 20)
	c := NewClient(0, "x", &constModel{classes: 2}, newTestScheduler(t, sim.ReleaseUniform, 3), partitionOf(20), 0)

	// WHEN released four times with exclusion
	var sizes []int
	for r := 0; r < 4; r++ {
		c.Release(labels, 6, true)
		sizes = append(sizes, c.DataPoints())
	}

	// THEN the set grows by 6 until the partition runs out, without repeats
	assert.Equal(t, []int{6, 12, 18, 20}, sizes)
	seen := map[int]bool{}
	for _, idx := range c.Visible() {
		assert.False(t, seen[idx], "row %d released twice", idx)
		seen[idx] = true
	}
}

func TestClient_Release_WithoutExclusion_GrowsByBatchEveryRound(t *testing.T) {
	labels := make([]int, 10)
	c := NewClient(0, "x", &constModel{classes: 2}, newTestScheduler(t, sim.ReleaseUniform, 3), partitionOf(10), 0)

	for r := 1; r <= 5; r++ {
		batch := c.Release(labels, 4, false)
		assert.Len(t, batch, 4)
		assert.Equal(t, 4*r, c.DataPoints())
	}
	// 20 draws from 10 rows must repeat some row.
	visible := c.Visible()
	distinct := map[int]bool{}
	for _, idx := range visible {
		distinct[idx] = true
	}
	assert.Less(t, len(distinct), len(visible))
}

func TestClient_Fit_EmptyVisibleSet_NoOp(t *testing.T) {
	m := &constModel{classes: 2}
	c := NewClient(0, "x", m, newTestScheduler(t, sim.ReleaseUniform, 1), nil, 0)
	train, _, _ := blobSplits(t, 50, 2, 1)

	require.NoError(t, c.Fit(train))
	assert.Equal(t, 0, m.fits)
}

func TestPredictChunked_MatchesWholeBatch(t *testing.T) {
	train, val, _ := blobSplits(t, 120, 3, 2)
	cfg := sim.ModelConfig{Features: 4, Classes: 3, LearningRate: 0.1, Epochs: 5, BatchSize: 8,
		Rng: sim.NewPartitionedRNG(1).ForSubsystem(sim.SubsystemModel(0))}
	model, err := sim.NewModel(sim.ArchNetworkA, cfg)
	require.NoError(t, err)
	require.NoError(t, model.Fit(train.X, train.Y))

	whole, err := model.PredictProba(val.X)
	require.NoError(t, err)
	for _, batch := range []int{0, 1, 5, 7, len(val.X), 1000} {
		chunked, err := predictChunked(model, val.X, batch)
		require.NoError(t, err)
		require.Len(t, chunked, len(whole), "batch %d", batch)
		for i := range whole {
			assert.InDeltaSlice(t, whole[i], chunked[i], 1e-12, "batch %d row %d", batch, i)
		}
	}
}

func TestClient_SetEnsembleModel_StoresIndependentCopy(t *testing.T) {
	// GIVEN a server ensemble
	clients := constClients(t, []int{0, 1}, []string{"a", "b"}, 2)
	shared := NewEnsemble(clients, false, 2)

	// WHEN a client takes a copy and re-scores it
	clients[0].SetEnsembleModel(shared)
	local := clients[0].EnsembleModel()
	local.setScores([]float64{1, 0})

	// THEN the server ensemble is untouched and members are not aliased
	assert.Equal(t, []float64{0.5, 0.5}, shared.Scores())
	assert.NotSame(t, shared.Members()[0].Model, local.Members()[0].Model)
}

func TestClient_UpdateLocalScores(t *testing.T) {
	clients := constClients(t, []int{0, 1, 1}, []string{"a", "b", "c"}, 2)
	clients[0].SetEnsembleModel(NewEnsemble(clients, false, 2))

	// three of four validation rows are class 1
	x := [][]float64{{0}, {0}, {0}, {0}}
	y := []int{1, 1, 1, 0}
	require.NoError(t, clients[0].UpdateLocalScores(x, y))
	assert.Equal(t, []float64{0.25, 0.75, 0.75}, clients[0].LocalScores())
}

func TestClient_UpdateLocalScores_WithoutEnsemble_Errors(t *testing.T) {
	c := constClients(t, []int{0}, []string{"a"}, 2)[0]
	assert.Error(t, c.UpdateLocalScores(nil, nil))
}
