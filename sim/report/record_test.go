package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys(r Row) []string {
	out := make([]string, len(r))
	for i, f := range r {
		out[i] = f.Key
	}
	return out
}

func TestClientRecord_Row_ColumnOrder(t *testing.T) {
	r := ClientRecord{RoundID: 2, ClientID: 1, ModelArchType: "KNN", TotalDataPoints: 30, NewDataPoints: 10}
	assert.Equal(t, []string{
		"TrainingTime", "InferenceTime", "LocalValAccuracy", "LocalTestAccuracy",
		"LocalValMicroAUC", "LocalValMacroAUC", "TestMicroAUC", "TestMacroAUC",
		"RoundId", "ModelArchType", "ClientId", "TotalDataPoints", "NewDataPoints",
	}, keys(r.Row()))
}

func TestServerRecord_Row_ExpandsVectors(t *testing.T) {
	// GIVEN an EBL record with two client scores and a 2x2 confusion matrix
	r := ServerRecord{
		RoundID:         0,
		LearningType:    "EBL",
		Scores:          []float64{0.4, 0.6},
		ConfusionMatrix: []int{3, 1, 0, 4},
	}

	// WHEN flattened
	row := r.Row()

	// THEN scores and matrix cells follow the scalar metrics
	k := keys(row)
	require.Len(t, k, 8+2+4)
	assert.Equal(t, []string{"P0", "P1", "CM0", "CM1", "CM2", "CM3"}, k[8:])
	assert.Equal(t, 0.6, row[9].Value)
	assert.Equal(t, 4, row[13].Value)
}

func TestServerRecord_Row_FedAvgWeights(t *testing.T) {
	r := ServerRecord{LearningType: "FedAvg", Weights: []float64{0.25, 0.75}}
	k := keys(r.Row())
	assert.Equal(t, []string{"W0", "W1"}, k[8:])
}

func TestRunTrace_DistributionTable_LabelsByClient(t *testing.T) {
	// GIVEN two clients with per-label counts
	rt := NewRunTrace("EBL")
	rt.Distribution = [][]int{{5, 0, 2}, {1, 7, 3}}

	// WHEN tabulated
	tbl := rt.DistributionTable()

	// THEN one row per label, one column per client
	assert.Equal(t, []string{"0", "1"}, tbl.Columns())
	require.Equal(t, 3, tbl.Len())
	v, _ := tbl.Value(1, "1")
	assert.Equal(t, 7, v)
	v, _ = tbl.Value(2, "0")
	assert.Equal(t, 2, v)
}

func TestRunTrace_Record_Appends(t *testing.T) {
	rt := NewRunTrace("FedAvg")
	rt.RecordClient(ClientRecord{ClientID: 0})
	rt.RecordClient(ClientRecord{ClientID: 1})
	rt.RecordServer(ServerRecord{RoundID: 0})

	assert.Equal(t, 2, rt.ClientTable().Len())
	assert.Equal(t, 1, rt.ServerTable().Len())
}
