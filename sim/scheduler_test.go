package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func newTestScheduler(t *testing.T, mode ReleaseMode, seed int64) *RoundScheduler {
	t.Helper()
	s, err := NewRoundScheduler(mode, NewPartitionedRNG(NewSimulationKey(seed)).ForSubsystem(SubsystemScheduler(0)))
	require.NoError(t, err)
	return s
}

func TestRoundScheduler_ExcludeVisible_GrowsByBatchWithoutDuplicates(t *testing.T) {
	partition := seq(50)
	labels := make([]int, 50)
	rounds := 4
	batch := BatchSize(len(partition), rounds) // 12
	s := newTestScheduler(t, ReleaseUniform, 1)

	var visible VisibleSet
	for r := 0; r < rounds; r++ {
		got := s.Release(partition, labels, visible.Indices(), batch)
		visible.Append(got)
		assert.Len(t, got, batch, "round %d", r)
		assert.Equal(t, (r+1)*batch, visible.Len(), "round %d", r)
		assert.Equal(t, visible.Len(), visible.Distinct(), "round %d: duplicate index released", r)
	}

	// Two rows remain, then the pool is exhausted.
	tail := s.Release(partition, labels, visible.Indices(), batch)
	assert.Len(t, tail, 2)
	visible.Append(tail)
	empty := s.Release(partition, labels, visible.Indices(), batch)
	assert.Empty(t, empty)
	assert.Equal(t, 50, visible.Distinct())
}

func TestRoundScheduler_NoExclusion_GrowsByBatchEveryRound(t *testing.T) {
	partition := seq(20)
	labels := make([]int, 20)
	rounds := 5
	batch := BatchSize(len(partition), rounds) // 4
	s := newTestScheduler(t, ReleaseUniform, 3)

	var visible VisibleSet
	for r := 0; r < rounds+3; r++ {
		visible.Append(s.Release(partition, labels, nil, batch))
		assert.Equal(t, (r+1)*batch, visible.Len(), "round %d", r)
	}
	// 32 entries drawn from 20 rows: duplicates are unavoidable.
	assert.Less(t, visible.Distinct(), visible.Len())
}

func TestRoundScheduler_Release_Deterministic(t *testing.T) {
	partition := seq(30)
	labels := make([]int, 30)
	a := newTestScheduler(t, ReleaseUniform, 9).Release(partition, labels, nil, 10)
	b := newTestScheduler(t, ReleaseUniform, 9).Release(partition, labels, nil, 10)
	assert.Equal(t, a, b)
}

func TestRoundScheduler_Sequential_FollowsPartitionOrder(t *testing.T) {
	partition := []int{7, 3, 9, 1, 5}
	labels := make([]int, 10)
	s := newTestScheduler(t, ReleaseSequential, 1)

	first := s.Release(partition, labels, nil, 2)
	assert.Equal(t, []int{7, 3}, first)
	second := s.Release(partition, labels, first, 2)
	assert.Equal(t, []int{9, 1}, second)
}

func TestRoundScheduler_Stratified_KeepsLabelMix(t *testing.T) {
	// 30 rows of label 0, 10 of label 1 -> a batch of 8 holds 6 and 2.
	partition := seq(40)
	labels := make([]int, 40)
	for i := 30; i < 40; i++ {
		labels[i] = 1
	}
	s := newTestScheduler(t, ReleaseStratified, 4)

	got := s.Release(partition, labels, nil, 8)
	require.Len(t, got, 8)
	ones := 0
	for _, idx := range got {
		ones += labels[idx]
	}
	assert.Equal(t, 2, ones)
}

func TestRoundScheduler_BatchLargerThanPool_ReturnsRemaining(t *testing.T) {
	for _, mode := range []ReleaseMode{ReleaseUniform, ReleaseSequential, ReleaseStratified} {
		t.Run(string(mode), func(t *testing.T) {
			s := newTestScheduler(t, mode, 1)
			got := s.Release([]int{0, 1, 2}, []int{0, 1, 0}, []int{1}, 10)
			assert.ElementsMatch(t, []int{0, 2}, got)
		})
	}
}

func TestRoundScheduler_EmptyPartition_NoPanic(t *testing.T) {
	s := newTestScheduler(t, ReleaseUniform, 1)
	assert.Empty(t, s.Release(nil, nil, nil, 5))
	assert.Empty(t, s.Release([]int{1, 2}, []int{0, 0, 0}, nil, 0))
}

func TestNewRoundScheduler_UnknownMode(t *testing.T) {
	_, err := NewRoundScheduler("bursty", NewPartitionedRNG(NewSimulationKey(1)).ForSubsystem("x"))
	assert.Error(t, err)
	assert.False(t, IsValidReleaseMode("bursty"))
	assert.True(t, IsValidReleaseMode("uniform"))
}

func TestBatchSize(t *testing.T) {
	assert.Equal(t, 8, BatchSize(80, 10))
	assert.Equal(t, 0, BatchSize(3, 10))
	assert.Equal(t, 0, BatchSize(10, 0))
}
