package federation

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// EBLServer holds the shared ensemble of an ensemble-based run.
type EBLServer struct {
	shared *Ensemble
}

// NewEBLServer creates a server with no ensemble yet.
func NewEBLServer() *EBLServer { return &EBLServer{} }

// SetSharedModel installs the ensemble built from the round-0 client models.
func (s *EBLServer) SetSharedModel(e *Ensemble) { s.shared = e }

// SharedEnsemble returns the server's ensemble, or nil before round 0 ends.
func (s *EBLServer) SharedEnsemble() *Ensemble { return s.shared }

// UpdateEnsemble re-scores the shared ensemble and refreshes its members with
// the clients' newly trained models.
//
// A unit's score is the data-volume-weighted mean of the clients' local
// scores for it: score[u] = Σ_i counts[i]/Σcounts · local_i[u]. The vector is
// then normalised to sum to 1; if every unit scored 0 the scores become
// uniform. Panics if no ensemble has been set.
func (s *EBLServer) UpdateEnsemble(clients []*Client, counts []int) error {
	if s.shared == nil {
		panic("EBLServer.UpdateEnsemble called before SetSharedModel")
	}
	if len(clients) != len(counts) {
		panic(fmt.Sprintf("EBLServer.UpdateEnsemble: %d clients, %d counts", len(clients), len(counts)))
	}
	weights := dataWeights(counts)
	scores := make([]float64, s.shared.Units())
	for i, c := range clients {
		local := c.LocalScores()
		if len(local) != len(scores) {
			return fmt.Errorf("client %d has %d local scores, ensemble has %d units", c.ID, len(local), len(scores))
		}
		floats.AddScaled(scores, weights[i], local)
	}
	if total := floats.Sum(scores); total > 0 {
		floats.Scale(1/total, scores)
	} else {
		scores = uniformWeights(len(scores))
	}
	s.shared.setScores(scores)
	return s.shared.refresh(clients)
}

// dataWeights returns counts[i]/Σcounts, or uniform weights when Σcounts is 0.
func dataWeights(counts []int) []float64 {
	w := make([]float64, len(counts))
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return uniformWeights(len(counts))
	}
	for i, n := range counts {
		w[i] = float64(n) / float64(total)
	}
	return w
}

func uniformWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}
