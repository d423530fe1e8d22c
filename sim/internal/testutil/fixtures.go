// Package testutil provides shared test fixtures for the federated simulator:
// synthetic labeled datasets, CSV fixture files, and float assertions used
// across sim/, sim/models/ and sim/federation/ tests.
package testutil

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
)

// Blobs generates n rows of well-separated gaussian clusters. Row i has
// class i % classes, so classes are balanced; class c is centred at
// c*spread on every feature with unit noise.
func Blobs(n, classes, features int, spread float64, seed uint64) ([][]float64, []int) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	x := make([][]float64, n)
	y := make([]int, n)
	for i := 0; i < n; i++ {
		c := i % classes
		row := make([]float64, features)
		for f := range row {
			row[f] = float64(c)*spread + rng.NormFloat64()
		}
		x[i] = row
		y[i] = c
	}
	return x, y
}

// FeatureNames returns f0..f{n-1}.
func FeatureNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("f%d", i)
	}
	return names
}

// WriteBlobsCSV writes a Blobs dataset to dir/name with a "label" column
// last, and returns the file path.
func WriteBlobsCSV(t *testing.T, dir, name string, n, classes, features int, seed uint64) string {
	t.Helper()
	x, y := Blobs(n, classes, features, 4, seed)
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating fixture: %v", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(append(FeatureNames(features), "label")); err != nil {
		t.Fatalf("writing fixture header: %v", err)
	}
	for i, row := range x {
		rec := make([]string, 0, features+1)
		for _, v := range row {
			rec = append(rec, fmt.Sprintf("%g", v))
		}
		rec = append(rec, fmt.Sprintf("%d", y[i]))
		if err := w.Write(rec); err != nil {
			t.Fatalf("writing fixture row: %v", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		t.Fatalf("flushing fixture: %v", err)
	}
	return path
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
