package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Metric selects what Evaluate reports.
type Metric string

const (
	MetricAccuracy Metric = "accuracy"
	MetricAUC      Metric = "AUC"
)

// Scores is the result of an evaluation. Accuracy is always set; the AUC
// fields are set for MetricAUC and are NaN when undefined.
type Scores struct {
	Accuracy float64
	MicroAUC float64
	MacroAUC float64
}

// ClassificationMetrics is the full server-side metric set.
type ClassificationMetrics struct {
	Accuracy        float64
	Precision       float64 // macro: unweighted mean over classes
	Recall          float64 // macro: unweighted mean over classes
	MicroAUC        float64 // one-vs-rest, pooled over all (row, class) pairs
	MacroAUC        float64 // one-vs-rest, mean over classes with a defined AUC
	ConfusionMatrix []int   // row-major, rows = true class, cols = predicted
}

// Argmax returns the index of the largest entry; ties go to the lowest index.
func Argmax(row []float64) int {
	if len(row) == 0 {
		return 0
	}
	return floats.MaxIdx(row)
}

// PredictLabels turns probability rows into class ids.
func PredictLabels(proba [][]float64) []int {
	labels := make([]int, len(proba))
	for i, row := range proba {
		labels[i] = Argmax(row)
	}
	return labels
}

// Evaluate scores m on the given rows. An empty evaluation set yields
// accuracy 0 and NaN AUCs.
func Evaluate(m Model, x [][]float64, y []int, classes int, metric Metric) (Scores, error) {
	proba, err := m.PredictProba(x)
	if err != nil {
		return Scores{}, fmt.Errorf("predicting: %w", err)
	}
	return ScoreProba(proba, y, classes, metric), nil
}

// ScoreProba scores precomputed probability rows.
func ScoreProba(proba [][]float64, y []int, classes int, metric Metric) Scores {
	s := Scores{Accuracy: Accuracy(y, PredictLabels(proba)), MicroAUC: math.NaN(), MacroAUC: math.NaN()}
	if metric == MetricAUC {
		s.MicroAUC, s.MacroAUC = AUC(y, proba, classes)
	}
	return s
}

// Accuracy is the fraction of matching labels; 0 for empty input.
func Accuracy(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	hit := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			hit++
		}
	}
	return float64(hit) / float64(len(yTrue))
}

// AUC computes one-vs-rest ROC AUCs. A class with no positive or no negative
// rows has no ROC curve and is left out of the macro mean; if no class has a
// curve both results are NaN.
func AUC(yTrue []int, proba [][]float64, classes int) (micro, macro float64) {
	var pooledScores []float64
	var pooledLabels []bool
	var perClass []float64
	for c := 0; c < classes; c++ {
		scores := make([]float64, len(yTrue))
		labels := make([]bool, len(yTrue))
		for i := range yTrue {
			scores[i] = proba[i][c]
			labels[i] = yTrue[i] == c
		}
		pooledScores = append(pooledScores, scores...)
		pooledLabels = append(pooledLabels, labels...)
		if auc := rocAUC(scores, labels); !math.IsNaN(auc) {
			perClass = append(perClass, auc)
		}
	}
	macro = math.NaN()
	if len(perClass) > 0 {
		macro = stat.Mean(perClass, nil)
	}
	return rocAUC(pooledScores, pooledLabels), macro
}

// rocAUC integrates the ROC curve of scores against binary labels.
// NaN when either side is empty.
func rocAUC(scores []float64, positive []bool) float64 {
	pos := 0
	for _, p := range positive {
		if p {
			pos++
		}
	}
	if pos == 0 || pos == len(positive) {
		return math.NaN()
	}
	y := append([]float64(nil), scores...)
	cls := append([]bool(nil), positive...)
	stat.SortWeightedLabeled(y, cls, nil)
	tpr, fpr, _ := stat.ROC(nil, y, cls, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

// ConfusionMatrix counts (true, predicted) pairs, flattened row-major.
func ConfusionMatrix(yTrue, yPred []int, classes int) []int {
	cm := make([]int, classes*classes)
	for i := range yTrue {
		cm[yTrue[i]*classes+yPred[i]]++
	}
	return cm
}

// MacroPrecisionRecall averages per-class precision and recall with equal
// class weight. A class never predicted has precision 0; a class never
// present has recall 0.
func MacroPrecisionRecall(cm []int, classes int) (precision, recall float64) {
	if classes == 0 {
		return 0, 0
	}
	p := make([]float64, classes)
	r := make([]float64, classes)
	for c := 0; c < classes; c++ {
		tp := float64(cm[c*classes+c])
		predicted, actual := 0.0, 0.0
		for k := 0; k < classes; k++ {
			predicted += float64(cm[k*classes+c])
			actual += float64(cm[c*classes+k])
		}
		if predicted > 0 {
			p[c] = tp / predicted
		}
		if actual > 0 {
			r[c] = tp / actual
		}
	}
	return stat.Mean(p, nil), stat.Mean(r, nil)
}

// ComputeMetrics derives the full metric set from probability rows.
func ComputeMetrics(proba [][]float64, y []int, classes int) ClassificationMetrics {
	pred := PredictLabels(proba)
	cm := ConfusionMatrix(y, pred, classes)
	precision, recall := MacroPrecisionRecall(cm, classes)
	micro, macro := AUC(y, proba, classes)
	return ClassificationMetrics{
		Accuracy:        Accuracy(y, pred),
		Precision:       precision,
		Recall:          recall,
		MicroAUC:        micro,
		MacroAUC:        macro,
		ConfusionMatrix: cm,
	}
}
