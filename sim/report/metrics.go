package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// WriteMetricsTextfile exports the run summary as prometheus gauges in the
// node-exporter textfile format.
func WriteMetricsTextfile(path string, s *RunSummary) error {
	reg := prometheus.NewRegistry()

	accuracy := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fedsim_server_test_accuracy",
		Help: "Global model accuracy on the shared test set after the last round.",
	})
	macroAUC := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fedsim_server_test_macro_auc",
		Help: "Global model macro one-vs-rest AUC after the last round.",
	})
	rounds := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fedsim_rounds_total",
		Help: "Communication rounds completed.",
	})
	clientAccuracy := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fedsim_client_test_accuracy",
		Help: "Local model accuracy on the shared test set after the last round.",
	}, []string{"client"})

	reg.MustRegister(accuracy, macroAUC, rounds, clientAccuracy)

	accuracy.Set(s.FinalTestAccuracy)
	macroAUC.Set(s.FinalTestMacroAUC)
	rounds.Set(float64(s.Rounds))
	for id, acc := range s.ClientTestAccuracy {
		clientAccuracy.WithLabelValues(strconv.Itoa(id)).Set(acc)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
