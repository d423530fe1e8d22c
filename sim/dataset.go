package sim

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"sort"
	"strconv"
)

var (
	// ErrEmptyDataset is returned when a CSV file has a header but no rows.
	ErrEmptyDataset = errors.New("dataset has no rows")
	// ErrUnknownTarget is returned when the target column is missing from the header.
	ErrUnknownTarget = errors.New("target column not found")
)

// Dataset is an immutable labeled feature table. Rows are addressed by their
// position (0..Len()-1); partitions and visible sets are index sets into it.
type Dataset struct {
	Features []string    // feature column names, in file order
	Classes  []string    // label names; class id = position
	X        [][]float64 // row-major features, one slice per row
	Y        []int       // class id per row
}

// NewDataset builds a dataset from already-encoded rows. Row slices are
// shared, not copied; callers must not mutate them afterwards.
func NewDataset(features []string, classes []string, x [][]float64, y []int) (*Dataset, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("feature rows (%d) and labels (%d) differ in length", len(x), len(y))
	}
	for i, row := range x {
		if len(row) != len(features) {
			return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), len(features))
		}
		if y[i] < 0 || y[i] >= len(classes) {
			return nil, fmt.Errorf("row %d has label %d outside [0, %d)", i, y[i], len(classes))
		}
	}
	return &Dataset{Features: features, Classes: classes, X: x, Y: y}, nil
}

// LoadCSV reads a headered CSV file. The target column holds class labels of
// any form; every other column must parse as a float64. Labels are mapped to
// dense class ids in ascending order (numeric when every label is numeric).
func LoadCSV(path, target string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading dataset header: %w", err)
	}
	targetCol := -1
	var features []string
	for i, name := range header {
		if name == target {
			targetCol = i
			continue
		}
		features = append(features, name)
	}
	if targetCol < 0 {
		return nil, fmt.Errorf("%q in %s: %w", target, path, ErrUnknownTarget)
	}

	var x [][]float64
	var raw []string
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading dataset line %d: %w", line, err)
		}
		row := make([]float64, 0, len(features))
		for i, cell := range rec {
			if i == targetCol {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %q: %w", line, header[i], err)
			}
			row = append(row, v)
		}
		x = append(x, row)
		raw = append(raw, rec[targetCol])
	}
	if len(x) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyDataset)
	}

	classes := sortedLabels(raw)
	ids := make(map[string]int, len(classes))
	for i, c := range classes {
		ids[c] = i
	}
	y := make([]int, len(raw))
	for i, l := range raw {
		y[i] = ids[l]
	}
	return NewDataset(features, classes, x, y)
}

func sortedLabels(raw []string) []string {
	seen := make(map[string]bool)
	var labels []string
	numeric := true
	for _, l := range raw {
		if seen[l] {
			continue
		}
		seen[l] = true
		labels = append(labels, l)
		if _, err := strconv.ParseFloat(l, 64); err != nil {
			numeric = false
		}
	}
	if numeric {
		sort.Slice(labels, func(i, j int) bool {
			a, _ := strconv.ParseFloat(labels[i], 64)
			b, _ := strconv.ParseFloat(labels[j], 64)
			return a < b
		})
	} else {
		sort.Strings(labels)
	}
	return labels
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.Y) }

// NumClasses returns the number of distinct class ids.
func (d *Dataset) NumClasses() int { return len(d.Classes) }

// NumFeatures returns the number of feature columns.
func (d *Dataset) NumFeatures() int { return len(d.Features) }

// Rows gathers the features and labels addressed by indices. Feature rows are
// shared with the dataset. Duplicate indices yield duplicate rows.
func (d *Dataset) Rows(indices []int) ([][]float64, []int) {
	x := make([][]float64, len(indices))
	y := make([]int, len(indices))
	for i, idx := range indices {
		x[i] = d.X[idx]
		y[i] = d.Y[idx]
	}
	return x, y
}

// Subset returns a new dataset holding the given rows, re-indexed from 0.
// The class list is kept whole so class ids stay comparable across subsets.
func (d *Dataset) Subset(indices []int) *Dataset {
	x, y := d.Rows(indices)
	return &Dataset{Features: d.Features, Classes: d.Classes, X: x, Y: y}
}

// All returns every row index in order.
func (d *Dataset) All() []int {
	idx := make([]int, d.Len())
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// LabelCounts counts class ids over indices. The result has NumClasses entries.
func (d *Dataset) LabelCounts(indices []int) []int {
	counts := make([]int, d.NumClasses())
	for _, idx := range indices {
		counts[d.Y[idx]]++
	}
	return counts
}

// Split shuffles the rows and cuts them into train, validation and test
// datasets by ratio. The test part takes the remainder.
func (d *Dataset) Split(ratios [3]float64, rng *rand.Rand) (train, val, test *Dataset, err error) {
	sum := 0.0
	for _, r := range ratios {
		if r < 0 {
			return nil, nil, nil, fmt.Errorf("split ratios must be non-negative, got %v", ratios)
		}
		sum += r
	}
	if math.Abs(sum-1) > 1e-6 {
		return nil, nil, nil, fmt.Errorf("split ratios must sum to 1, got %v (sum %g)", ratios, sum)
	}
	perm := rng.Perm(d.Len())
	n := float64(d.Len())
	nTrain := int(math.Floor(ratios[0]*n + 1e-9))
	nVal := int(math.Floor(ratios[1]*n + 1e-9))
	if nTrain+nVal > d.Len() {
		nVal = d.Len() - nTrain
	}
	return d.Subset(perm[:nTrain]), d.Subset(perm[nTrain : nTrain+nVal]), d.Subset(perm[nTrain+nVal:]), nil
}
