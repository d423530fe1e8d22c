// Package report records per-round federated-learning results and persists
// them as tabular files. This package has no dependencies on sim/ or
// sim/federation/; it stores pure data types.
package report

import "fmt"

// Field is one named value of a report row.
type Field struct {
	Key   string
	Value any
}

// Row is an ordered list of named values. Key order is the column order a
// table adopts when it first sees the key.
type Row []Field

// ClientRecord captures one client's results for one round.
type ClientRecord struct {
	TrainingTime      float64 // seconds spent in local Fit
	InferenceTime     float64 // seconds spent predicting the test set
	LocalValAccuracy  float64
	LocalTestAccuracy float64
	LocalValMicroAUC  float64 // NaN when undefined
	LocalValMacroAUC  float64
	TestMicroAUC      float64
	TestMacroAUC      float64
	RoundID           int
	ModelArchType     string
	ClientID          int
	TotalDataPoints   int // visible-set size after this round's release
	NewDataPoints     int // size of this round's release
}

// Row returns the record's fields in report column order.
func (r ClientRecord) Row() Row {
	return Row{
		{"TrainingTime", r.TrainingTime},
		{"InferenceTime", r.InferenceTime},
		{"LocalValAccuracy", r.LocalValAccuracy},
		{"LocalTestAccuracy", r.LocalTestAccuracy},
		{"LocalValMicroAUC", r.LocalValMicroAUC},
		{"LocalValMacroAUC", r.LocalValMacroAUC},
		{"TestMicroAUC", r.TestMicroAUC},
		{"TestMacroAUC", r.TestMacroAUC},
		{"RoundId", r.RoundID},
		{"ModelArchType", r.ModelArchType},
		{"ClientId", r.ClientID},
		{"TotalDataPoints", r.TotalDataPoints},
		{"NewDataPoints", r.NewDataPoints},
	}
}

// ServerRecord captures the server's results for one round.
type ServerRecord struct {
	InferenceTime   float64 // seconds predicting the test set (per row for FedAvg)
	RoundID         int
	LearningType    string // "EBL" or "FedAvg"
	TestAccuracy    float64
	Precision       float64
	Recall          float64
	TestMicroAUC    float64
	TestMacroAUC    float64
	Scores          []float64 // EBL: per-client ensemble score, by client id
	Weights         []float64 // FedAvg: per-client averaging weight, by client id
	ConfusionMatrix []int     // row-major, classes²
}

// Row returns the record's fields in report column order. Scores become
// P0..Pn, weights W0..Wn, and the confusion matrix CM0..CMk.
func (r ServerRecord) Row() Row {
	row := Row{
		{"InferenceTime", r.InferenceTime},
		{"RoundId", r.RoundID},
		{"LearningType", r.LearningType},
		{"TestAccuracy", r.TestAccuracy},
		{"Precision", r.Precision},
		{"Recall", r.Recall},
		{"TestMicroAUC", r.TestMicroAUC},
		{"TestMacroAUC", r.TestMacroAUC},
	}
	for j, s := range r.Scores {
		row = append(row, Field{fmt.Sprintf("P%d", j), s})
	}
	for j, w := range r.Weights {
		row = append(row, Field{fmt.Sprintf("W%d", j), w})
	}
	for k, c := range r.ConfusionMatrix {
		row = append(row, Field{fmt.Sprintf("CM%d", k), c})
	}
	return row
}
