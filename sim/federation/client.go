package federation

import (
	"errors"
	"fmt"

	"github.com/inference-sim/fedsim/sim"
	"github.com/sirupsen/logrus"
)

// Client owns one local model and the slice of training data released to it
// so far.
type Client struct {
	ID   int
	Arch string // architecture tag of the local model

	model     sim.Model
	scheduler *sim.RoundScheduler
	partition []int // training rows this client may ever see
	visible   sim.VisibleSet
	evalBatch int

	ensemble    *Ensemble // EBL: private copy of the server ensemble
	localScores []float64 // EBL: per-unit accuracy of ensemble on local validation data
}

// NewClient creates a client with an empty visible set.
// Panics if model or scheduler is nil.
func NewClient(id int, arch string, model sim.Model, scheduler *sim.RoundScheduler, partition []int, evalBatch int) *Client {
	if model == nil {
		panic(fmt.Sprintf("NewClient: client %d has no model", id))
	}
	if scheduler == nil {
		panic(fmt.Sprintf("NewClient: client %d has no scheduler", id))
	}
	return &Client{
		ID:        id,
		Arch:      arch,
		model:     model,
		scheduler: scheduler,
		partition: partition,
		evalBatch: evalBatch,
	}
}

// Model returns the client's local model.
func (c *Client) Model() sim.Model { return c.model }

// Partition returns the client's training partition.
func (c *Client) Partition() []int { return c.partition }

// Visible returns a copy of the visible training rows in release order.
func (c *Client) Visible() []int { return c.visible.Indices() }

// DataPoints is the visible-set size, duplicates included.
func (c *Client) DataPoints() int { return c.visible.Len() }

// Release draws the next batch from the client's partition and appends it to
// the visible set. With excludeVisible the batch never repeats a visible row;
// without it a batch may re-draw rows already seen.
func (c *Client) Release(labels []int, batchSize int, excludeVisible bool) []int {
	var exclude []int
	if excludeVisible {
		exclude = c.visible.Indices()
	}
	batch := c.scheduler.Release(c.partition, labels, exclude, batchSize)
	c.visible.Append(batch)
	return batch
}

// Fit retrains the local model on every visible row of train.
func (c *Client) Fit(train *sim.Dataset) error {
	if c.visible.Len() == 0 {
		logrus.Warnf("Client%d has no visible training rows; model left unchanged", c.ID)
		return nil
	}
	x, y := train.Rows(c.visible.Indices())
	if err := c.model.Fit(x, y); err != nil {
		return fmt.Errorf("client %d fit: %w", c.ID, err)
	}
	return nil
}

// Evaluate scores the local model on x, y, predicting evalBatch rows at a time.
func (c *Client) Evaluate(x [][]float64, y []int, classes int, metric sim.Metric) (sim.Scores, error) {
	proba, err := predictChunked(c.model, x, c.evalBatch)
	if err != nil {
		return sim.Scores{}, fmt.Errorf("client %d evaluate: %w", c.ID, err)
	}
	return sim.ScoreProba(proba, y, classes, metric), nil
}

// SetEnsembleModel stores an independent copy of the server ensemble.
func (c *Client) SetEnsembleModel(e *Ensemble) {
	c.ensemble = e.Clone()
}

// EnsembleModel returns the client's private ensemble copy, or nil.
func (c *Client) EnsembleModel() *Ensemble { return c.ensemble }

// UpdateLocalScores re-scores every voting unit of the client's ensemble copy
// by its accuracy on the client's validation rows.
func (c *Client) UpdateLocalScores(x [][]float64, y []int) error {
	if c.ensemble == nil {
		return errors.New("update local scores: no ensemble model set")
	}
	scores, err := c.ensemble.UnitAccuracies(x, y)
	if err != nil {
		return fmt.Errorf("client %d local scores: %w", c.ID, err)
	}
	c.localScores = scores
	return nil
}

// LocalScores returns the last per-unit scores computed by UpdateLocalScores.
func (c *Client) LocalScores() []float64 {
	return append([]float64(nil), c.localScores...)
}

// predictChunked predicts x in chunks of at most batch rows.
func predictChunked(m sim.Model, x [][]float64, batch int) ([][]float64, error) {
	if batch <= 0 || batch >= len(x) {
		return m.PredictProba(x)
	}
	out := make([][]float64, 0, len(x))
	for start := 0; start < len(x); start += batch {
		end := min(start+batch, len(x))
		proba, err := m.PredictProba(x[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, proba...)
	}
	return out, nil
}
