package models

import (
	"fmt"
	"sort"

	"github.com/cdipaolo/goml/base"
	"github.com/inference-sim/fedsim/sim"
)

// KNN classifies by a majority vote of the k nearest standardised training
// rows under euclidean distance. Probabilities are the neighbours' vote
// shares, so an argmax tie goes to the lowest class.
type KNN struct {
	classes int
	k       int
	scale   *scaler
	// x and y are replaced, never mutated, by Fit; clones share them.
	x [][]float64
	y []int
	// distance is the goml metric used to rank neighbours.
	distance base.DistanceMeasure
}

// NewKNN creates an untrained classifier.
func NewKNN(cfg sim.ModelConfig) *KNN {
	return &KNN{classes: cfg.Classes, k: neighbours, distance: base.EuclideanDistance}
}

// Fit stores the standardised rows. Zero rows leave the model untouched.
func (m *KNN) Fit(x [][]float64, y []int) error {
	if len(x) == 0 {
		return nil
	}
	if len(x) != len(y) {
		return fmt.Errorf("knn fit: %d rows but %d labels", len(x), len(y))
	}
	m.scale = fitScaler(x)
	m.x = m.scale.transform(x)
	m.y = append([]int(nil), y...)
	return nil
}

// PredictProba returns each row's neighbour vote shares.
func (m *KNN) PredictProba(x [][]float64) ([][]float64, error) {
	if m.x == nil {
		return sim.UniformProba(len(x), m.classes), nil
	}
	out := make([][]float64, len(x))
	for i, row := range m.scale.transform(x) {
		out[i] = m.vote(row)
	}
	return out, nil
}

// vote ranks every stored row by distance to q; equal distances keep
// training order.
func (m *KNN) vote(q []float64) []float64 {
	idx := make([]int, len(m.x))
	dist := make([]float64, len(m.x))
	for i, row := range m.x {
		idx[i] = i
		dist[i] = m.distance(q, row)
	}
	sort.SliceStable(idx, func(a, b int) bool { return dist[idx[a]] < dist[idx[b]] })

	k := min(m.k, len(idx))
	p := make([]float64, m.classes)
	for _, i := range idx[:k] {
		if l := m.y[i]; l >= 0 && l < m.classes {
			p[l] += 1 / float64(k)
		}
	}
	return p
}

// Clone returns a copy sharing the stored training rows, which are read-only.
func (m *KNN) Clone() sim.Model {
	c := *m
	return &c
}
