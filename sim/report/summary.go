package report

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// RunSummary aggregates the final state of a RunTrace.
type RunSummary struct {
	Rounds                 int             `yaml:"rounds"`
	FinalTestAccuracy      float64         `yaml:"final_test_accuracy"`
	FinalTestMacroAUC      float64         `yaml:"final_test_macro_auc"`
	BestTestAccuracy       float64         `yaml:"best_test_accuracy"`
	BestRound              int             `yaml:"best_round"`
	MeanClientTestAccuracy float64         `yaml:"mean_client_test_accuracy"`
	ClientTestAccuracy     map[int]float64 `yaml:"client_test_accuracy"`
}

// Summarize computes aggregate statistics from a RunTrace.
// Safe for nil or empty traces (returns zero-value fields, NaN AUC).
func Summarize(rt *RunTrace) *RunSummary {
	summary := &RunSummary{
		FinalTestMacroAUC:  math.NaN(),
		ClientTestAccuracy: make(map[int]float64),
	}
	if rt == nil || len(rt.Servers) == 0 {
		return summary
	}

	summary.Rounds = len(rt.Servers)
	last := rt.Servers[len(rt.Servers)-1]
	summary.FinalTestAccuracy = last.TestAccuracy
	summary.FinalTestMacroAUC = last.TestMacroAUC
	summary.BestTestAccuracy = -1
	for _, s := range rt.Servers {
		// Strictly greater keeps the earliest round on ties.
		if s.TestAccuracy > summary.BestTestAccuracy {
			summary.BestTestAccuracy = s.TestAccuracy
			summary.BestRound = s.RoundID
		}
	}

	var accs []float64
	for _, c := range rt.Clients {
		if c.RoundID == last.RoundID {
			summary.ClientTestAccuracy[c.ClientID] = c.LocalTestAccuracy
			accs = append(accs, c.LocalTestAccuracy)
		}
	}
	if len(accs) > 0 {
		summary.MeanClientTestAccuracy = stat.Mean(accs, nil)
	}
	return summary
}
