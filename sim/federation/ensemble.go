package federation

import (
	"fmt"

	"github.com/inference-sim/fedsim/sim"
	"gonum.org/v1/gonum/floats"
)

// Member is one client model held by an ensemble.
type Member struct {
	ClientID int
	Arch     string
	Model    sim.Model
}

// Ensemble is a weighted-vote combination of heterogeneous client models.
//
// Members are grouped into voting units. Without grouping every member is
// its own unit; with grouping the members sharing an architecture tag form
// one unit whose prediction is the mean of its members' probabilities. Each
// unit casts a hard vote for its top class, weighted by the unit's score.
// Scores are non-negative and sum to 1.
type Ensemble struct {
	members  []Member
	grouping bool
	units    [][]int // member indices per voting unit, in first-seen order
	scores   []float64
	classes  int
}

// NewEnsemble builds an ensemble from clones of the clients' current models,
// one member per client in the given order, with equal unit scores.
// Panics if clients is empty.
func NewEnsemble(clients []*Client, grouping bool, classes int) *Ensemble {
	if len(clients) == 0 {
		panic("NewEnsemble: no clients")
	}
	e := &Ensemble{grouping: grouping, classes: classes}
	byArch := make(map[string]int)
	for i, c := range clients {
		e.members = append(e.members, Member{ClientID: c.ID, Arch: c.Arch, Model: c.Model().Clone()})
		if !grouping {
			e.units = append(e.units, []int{i})
			continue
		}
		u, ok := byArch[c.Arch]
		if !ok {
			u = len(e.units)
			byArch[c.Arch] = u
			e.units = append(e.units, nil)
		}
		e.units[u] = append(e.units[u], i)
	}
	e.scores = uniformWeights(len(e.units))
	return e
}

// Clone returns a deep copy: member models are cloned, so scoring or
// training through the copy never touches the original.
func (e *Ensemble) Clone() *Ensemble {
	c := &Ensemble{
		members:  make([]Member, len(e.members)),
		grouping: e.grouping,
		units:    make([][]int, len(e.units)),
		scores:   append([]float64(nil), e.scores...),
		classes:  e.classes,
	}
	for i, m := range e.members {
		c.members[i] = Member{ClientID: m.ClientID, Arch: m.Arch, Model: m.Model.Clone()}
	}
	for u, idx := range e.units {
		c.units[u] = append([]int(nil), idx...)
	}
	return c
}

// Grouping reports whether members vote by architecture group.
func (e *Ensemble) Grouping() bool { return e.grouping }

// Members returns the members in client order.
func (e *Ensemble) Members() []Member { return append([]Member(nil), e.members...) }

// Units returns the number of voting units.
func (e *Ensemble) Units() int { return len(e.units) }

// UnitArch returns the architecture tag of each unit's first member.
func (e *Ensemble) UnitArch() []string {
	out := make([]string, len(e.units))
	for u, idx := range e.units {
		out[u] = e.members[idx[0]].Arch
	}
	return out
}

// Scores returns a copy of the unit score vector.
func (e *Ensemble) Scores() []float64 { return append([]float64(nil), e.scores...) }

// MemberScores returns each member's unit score, ordered by member (client)
// order. With grouping a group's score is repeated for each of its members.
func (e *Ensemble) MemberScores() []float64 {
	out := make([]float64, len(e.members))
	for u, idx := range e.units {
		for _, m := range idx {
			out[m] = e.scores[u]
		}
	}
	return out
}

// setScores replaces the unit scores. Panics on a length mismatch.
func (e *Ensemble) setScores(scores []float64) {
	if len(scores) != len(e.units) {
		panic(fmt.Sprintf("Ensemble.setScores: %d scores for %d units", len(scores), len(e.units)))
	}
	e.scores = append([]float64(nil), scores...)
}

// refresh replaces each member's model with a clone of the same client's
// current model.
func (e *Ensemble) refresh(clients []*Client) error {
	byID := make(map[int]*Client, len(clients))
	for _, c := range clients {
		byID[c.ID] = c
	}
	for i, m := range e.members {
		c, ok := byID[m.ClientID]
		if !ok {
			return fmt.Errorf("ensemble member for client %d has no client", m.ClientID)
		}
		e.members[i].Model = c.Model().Clone()
	}
	return nil
}

// unitProba returns unit u's class probabilities for x.
func (e *Ensemble) unitProba(u int, x [][]float64) ([][]float64, error) {
	idx := e.units[u]
	first, err := e.members[idx[0]].Model.PredictProba(x)
	if err != nil {
		return nil, fmt.Errorf("member %d: %w", e.members[idx[0]].ClientID, err)
	}
	if len(idx) == 1 {
		return first, nil
	}
	sum := make([][]float64, len(first))
	for i, row := range first {
		sum[i] = append([]float64(nil), row...)
	}
	for _, m := range idx[1:] {
		proba, err := e.members[m].Model.PredictProba(x)
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", e.members[m].ClientID, err)
		}
		for i := range sum {
			floats.Add(sum[i], proba[i])
		}
	}
	for i := range sum {
		floats.Scale(1/float64(len(idx)), sum[i])
	}
	return sum, nil
}

// unitLabels returns each unit's predicted class per row.
func (e *Ensemble) unitLabels(x [][]float64) ([][]int, error) {
	labels := make([][]int, len(e.units))
	for u := range e.units {
		proba, err := e.unitProba(u, x)
		if err != nil {
			return nil, err
		}
		labels[u] = sim.PredictLabels(proba)
	}
	return labels, nil
}

// PredictProba returns, per row, the score mass each class received from
// the unit votes, normalised to sum to 1.
func (e *Ensemble) PredictProba(x [][]float64) ([][]float64, error) {
	labels, err := e.unitLabels(x)
	if err != nil {
		return nil, err
	}
	total := floats.Sum(e.scores)
	if total <= 0 {
		return sim.UniformProba(len(x), e.classes), nil
	}
	out := make([][]float64, len(x))
	for i := range x {
		row := make([]float64, e.classes)
		for u := range e.units {
			if l := labels[u][i]; l < e.classes {
				row[l] += e.scores[u]
			}
		}
		floats.Scale(1/total, row)
		out[i] = row
	}
	return out, nil
}

// Predict returns the winning class per row; ties go to the lowest class id.
func (e *Ensemble) Predict(x [][]float64) ([]int, error) {
	proba, err := e.PredictProba(x)
	if err != nil {
		return nil, err
	}
	return sim.PredictLabels(proba), nil
}

// Evaluate returns the ensemble's accuracy on x, y.
func (e *Ensemble) Evaluate(x [][]float64, y []int) (float64, error) {
	pred, err := e.Predict(x)
	if err != nil {
		return 0, fmt.Errorf("ensemble evaluate: %w", err)
	}
	return sim.Accuracy(y, pred), nil
}

// ComputeMetrics returns the full metric set of the ensemble on x, y.
func (e *Ensemble) ComputeMetrics(x [][]float64, y []int) (sim.ClassificationMetrics, error) {
	proba, err := e.PredictProba(x)
	if err != nil {
		return sim.ClassificationMetrics{}, fmt.Errorf("ensemble metrics: %w", err)
	}
	return sim.ComputeMetrics(proba, y, e.classes), nil
}

// UnitAccuracies returns each voting unit's accuracy on x, y.
func (e *Ensemble) UnitAccuracies(x [][]float64, y []int) ([]float64, error) {
	labels, err := e.unitLabels(x)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(e.units))
	for u := range e.units {
		out[u] = sim.Accuracy(y, labels[u])
	}
	return out, nil
}
