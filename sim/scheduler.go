package sim

import (
	"fmt"
	"math/rand/v2"
	"sort"
)

// ReleaseMode names how a round's batch is drawn from a client's partition.
type ReleaseMode string

const (
	// ReleaseUniform samples the batch uniformly without replacement.
	ReleaseUniform ReleaseMode = "uniform"
	// ReleaseSequential takes the next rows in partition order.
	ReleaseSequential ReleaseMode = "sequential"
	// ReleaseStratified keeps the batch's label mix proportional to the pool's.
	ReleaseStratified ReleaseMode = "stratified"
)

// validReleaseModes is the set of recognized release modes.
var validReleaseModes = map[ReleaseMode]bool{
	ReleaseUniform:    true,
	ReleaseSequential: true,
	ReleaseStratified: true,
}

// IsValidReleaseMode reports whether name is a recognized release mode.
func IsValidReleaseMode(name string) bool { return validReleaseModes[ReleaseMode(name)] }

// ValidReleaseModeNames returns the recognized release modes, sorted.
func ValidReleaseModeNames() []string {
	names := make([]string, 0, len(validReleaseModes))
	for m := range validReleaseModes {
		names = append(names, string(m))
	}
	sort.Strings(names)
	return names
}

// BatchSize is the per-round release size for a partition of the given size.
func BatchSize(partitionSize, rounds int) int {
	if rounds <= 0 {
		return 0
	}
	return partitionSize / rounds
}

// RoundScheduler releases a client's training data a slice at a time.
// One scheduler serves one client; its RNG is that client's scheduler stream.
type RoundScheduler struct {
	mode ReleaseMode
	rng  *rand.Rand
}

// NewRoundScheduler creates a scheduler for the given mode.
func NewRoundScheduler(mode ReleaseMode, rng *rand.Rand) (*RoundScheduler, error) {
	if !validReleaseModes[mode] {
		return nil, fmt.Errorf("unknown release mode %q; valid modes: %v", mode, ValidReleaseModeNames())
	}
	return &RoundScheduler{mode: mode, rng: rng}, nil
}

// Mode returns the scheduler's release mode.
func (s *RoundScheduler) Mode() ReleaseMode { return s.mode }

// Release returns up to batchSize indices drawn from partition, skipping any
// index present in exclude. labels is indexed by dataset row and is only
// consulted by the stratified mode. When fewer than batchSize candidates
// remain, every remaining candidate is returned; an exhausted pool yields an
// empty batch.
func (s *RoundScheduler) Release(partition, labels, exclude []int, batchSize int) []int {
	candidates := withoutIndices(partition, exclude)
	if batchSize <= 0 || len(candidates) == 0 {
		return []int{}
	}
	k := min(batchSize, len(candidates))
	switch s.mode {
	case ReleaseSequential:
		return append([]int(nil), candidates[:k]...)
	case ReleaseStratified:
		return s.stratified(candidates, labels, k)
	default:
		return s.sample(candidates, k)
	}
}

// sample draws k of pool without replacement (partial Fisher-Yates on a copy).
func (s *RoundScheduler) sample(pool []int, k int) []int {
	c := append([]int(nil), pool...)
	for i := 0; i < k; i++ {
		j := i + s.rng.IntN(len(c)-i)
		c[i], c[j] = c[j], c[i]
	}
	return c[:k]
}

// stratified splits k across labels by largest remainder of their share of
// the pool (ties to the lower label), samples within each label, and
// shuffles the result.
func (s *RoundScheduler) stratified(pool, labels []int, k int) []int {
	byLabel := make(map[int][]int)
	var keys []int
	for _, idx := range pool {
		l := labels[idx]
		if _, ok := byLabel[l]; !ok {
			keys = append(keys, l)
		}
		byLabel[l] = append(byLabel[l], idx)
	}
	sort.Ints(keys)

	quota := make(map[int]int, len(keys))
	type rem struct {
		label int
		frac  float64
	}
	rems := make([]rem, 0, len(keys))
	assigned := 0
	for _, l := range keys {
		exact := float64(k) * float64(len(byLabel[l])) / float64(len(pool))
		q := int(exact)
		quota[l] = q
		assigned += q
		rems = append(rems, rem{label: l, frac: exact - float64(q)})
	}
	sort.SliceStable(rems, func(i, j int) bool { return rems[i].frac > rems[j].frac })
	for i := 0; assigned < k; i++ {
		l := rems[i%len(rems)].label
		if quota[l] < len(byLabel[l]) {
			quota[l]++
			assigned++
		}
	}

	batch := make([]int, 0, k)
	for _, l := range keys {
		batch = append(batch, s.sample(byLabel[l], quota[l])...)
	}
	s.rng.Shuffle(len(batch), func(i, j int) { batch[i], batch[j] = batch[j], batch[i] })
	return batch
}

func withoutIndices(pool, exclude []int) []int {
	if len(exclude) == 0 {
		return pool
	}
	skip := make(map[int]bool, len(exclude))
	for _, idx := range exclude {
		skip[idx] = true
	}
	out := make([]int, 0, len(pool))
	for _, idx := range pool {
		if !skip[idx] {
			out = append(out, idx)
		}
	}
	return out
}

// VisibleSet is the ordered, append-only list of training rows a client has
// been given. It may hold duplicates when batches overlap.
type VisibleSet struct {
	indices []int
}

// Append adds a released batch to the end of the set.
func (v *VisibleSet) Append(batch []int) {
	v.indices = append(v.indices, batch...)
}

// Len returns the number of entries, duplicates included.
func (v *VisibleSet) Len() int { return len(v.indices) }

// Indices returns a copy of the entries in release order.
func (v *VisibleSet) Indices() []int {
	return append([]int(nil), v.indices...)
}

// Distinct returns the number of unique row indices.
func (v *VisibleSet) Distinct() int {
	seen := make(map[int]struct{}, len(v.indices))
	for _, idx := range v.indices {
		seen[idx] = struct{}{}
	}
	return len(seen)
}
