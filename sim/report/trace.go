package report

import "strconv"

// RunTrace collects every record of a federated run.
type RunTrace struct {
	LearningType string
	Clients      []ClientRecord
	Servers      []ServerRecord
	// Distribution holds training label counts: Distribution[client][label].
	Distribution [][]int
}

// NewRunTrace creates a RunTrace ready for recording.
func NewRunTrace(learningType string) *RunTrace {
	return &RunTrace{
		LearningType: learningType,
		Clients:      make([]ClientRecord, 0),
		Servers:      make([]ServerRecord, 0),
	}
}

// RecordClient appends a client round record.
func (rt *RunTrace) RecordClient(record ClientRecord) {
	rt.Clients = append(rt.Clients, record)
}

// RecordServer appends a server round record.
func (rt *RunTrace) RecordServer(record ServerRecord) {
	rt.Servers = append(rt.Servers, record)
}

// ClientTable returns the client records as a table.
func (rt *RunTrace) ClientTable() *Table {
	t := NewTable()
	for _, r := range rt.Clients {
		t.Append(r.Row())
	}
	return t
}

// ServerTable returns the server records as a table.
func (rt *RunTrace) ServerTable() *Table {
	t := NewTable()
	for _, r := range rt.Servers {
		t.Append(r.Row())
	}
	return t
}

// DistributionTable returns one row per label and one column per client id,
// holding training label counts.
func (rt *RunTrace) DistributionTable() *Table {
	t := NewTable()
	if len(rt.Distribution) == 0 {
		return t
	}
	labels := 0
	for _, counts := range rt.Distribution {
		labels = max(labels, len(counts))
	}
	for l := 0; l < labels; l++ {
		row := make(Row, 0, len(rt.Distribution))
		for c, counts := range rt.Distribution {
			n := 0
			if l < len(counts) {
				n = counts[l]
			}
			row = append(row, Field{Key: strconv.Itoa(c), Value: n})
		}
		t.Append(row)
	}
	return t
}
