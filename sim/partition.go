package sim

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distmv"
)

// maxPartitionAttempts bounds the redraws of a Dirichlet partition whose
// smallest client falls under the minimum size. The final draw is kept.
const maxPartitionAttempts = 100

// minClientSamples is the per-client floor requested from DirichletPartition,
// capped at N/clients for small datasets.
const minClientSamples = 10

// Partition maps client id (slice position) to the dataset indices it owns.
// Client index sets are pairwise disjoint and together cover the dataset.
type Partition [][]int

// Clients returns the number of clients in the partition.
func (p Partition) Clients() int { return len(p) }

// Sizes returns the number of indices per client.
func (p Partition) Sizes() []int {
	sizes := make([]int, len(p))
	for i, idx := range p {
		sizes[i] = len(idx)
	}
	return sizes
}

// DirichletPartition splits the rows labeled by labels across clients with a
// per-class Dirichlet draw of the given concentration.
//
// Classes are visited in ascending id order. For each class, a proportion
// vector over clients is drawn from Dir(alpha, ..., alpha); clients already
// holding at least N/clients rows get proportion zero, the rest is
// renormalised, and the shuffled class rows are cut at the cumulative
// proportions. High alpha approaches an iid split; low alpha hands most of a
// class to one or few clients.
//
// The whole draw is repeated while some client holds fewer than
// min(10, N/clients) rows, up to maxPartitionAttempts; the final draw is kept
// even if a client is left empty.
func DirichletPartition(labels []int, numClasses, clients int, alpha float64, rng *rand.Rand) (Partition, error) {
	if clients < 1 {
		return nil, fmt.Errorf("partition needs at least one client, got %d", clients)
	}
	if alpha <= 0 || math.IsNaN(alpha) || math.IsInf(alpha, 0) {
		return nil, fmt.Errorf("dirichlet concentration must be a positive finite number, got %v", alpha)
	}
	byClass := make([][]int, numClasses)
	for i, l := range labels {
		if l < 0 || l >= numClasses {
			return nil, fmt.Errorf("label %d at row %d outside [0, %d)", l, i, numClasses)
		}
		byClass[l] = append(byClass[l], i)
	}

	n := len(labels)
	fairShare := n / clients
	required := min(minClientSamples, fairShare)

	concentration := make([]float64, clients)
	for i := range concentration {
		concentration[i] = alpha
	}
	dir := distmv.NewDirichlet(concentration, rng)

	var part Partition
	for attempt := 0; attempt < maxPartitionAttempts; attempt++ {
		part = make(Partition, clients)
		for _, rows := range byClass {
			if len(rows) == 0 {
				continue
			}
			idx := append([]int(nil), rows...)
			rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
			props := classProportions(dir.Rand(nil), part, fairShare, rng)
			cutByProportions(idx, props, part)
		}
		if floats.Min(toFloats(part.Sizes())) >= float64(required) {
			break
		}
	}
	for _, idx := range part {
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	}
	return part, nil
}

// classProportions applies the fair-share cap to a raw Dirichlet draw and
// normalises it. A draw that degenerates (all mass capped away, or gamma
// underflow at tiny concentrations) falls back to the uncapped draw, then to
// a single randomly chosen client.
func classProportions(raw []float64, part Partition, fairShare int, rng *rand.Rand) []float64 {
	props := append([]float64(nil), raw...)
	for j := range props {
		if len(part[j]) >= fairShare {
			props[j] = 0
		}
	}
	if normalize(props) {
		return props
	}
	props = append(props[:0], raw...)
	if normalize(props) {
		return props
	}
	for j := range props {
		props[j] = 0
	}
	props[rng.IntN(len(props))] = 1
	return props
}

// normalize scales v to sum to 1 in place. It reports false when the sum is
// zero or not finite, leaving v untouched.
func normalize(v []float64) bool {
	sum := floats.Sum(v)
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return false
	}
	floats.Scale(1/sum, v)
	return true
}

// cutByProportions appends consecutive runs of idx to each client, sized by
// the cumulative proportions. The last client takes the remainder.
func cutByProportions(idx []int, props []float64, part Partition) {
	start := 0
	cum := 0.0
	for j := 0; j < len(props)-1; j++ {
		cum += props[j]
		end := int(cum * float64(len(idx)))
		end = max(start, min(end, len(idx)))
		part[j] = append(part[j], idx[start:end]...)
		start = end
	}
	last := len(props) - 1
	part[last] = append(part[last], idx[start:]...)
}

// IIDPartition shuffles n row indices and cuts them into near-equal
// contiguous chunks; the first n%clients clients get one extra row.
func IIDPartition(n, clients int, rng *rand.Rand) (Partition, error) {
	if clients < 1 {
		return nil, fmt.Errorf("partition needs at least one client, got %d", clients)
	}
	perm := rng.Perm(n)
	part := make(Partition, clients)
	base, extra := n/clients, n%clients
	start := 0
	for j := 0; j < clients; j++ {
		size := base
		if j < extra {
			size++
		}
		part[j] = perm[start : start+size : start+size]
		start += size
	}
	return part, nil
}

func toFloats(v []int) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
