package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

// Table is a column-ordered collection of rows whose schema may grow:
// a key first seen in a later row adds a column, and earlier rows leave
// that column empty.
type Table struct {
	columns []string
	index   map[string]int
	rows    []map[string]any
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{index: make(map[string]int)}
}

// Append adds a row, extending the column set with any new keys in order.
func (t *Table) Append(row Row) {
	values := make(map[string]any, len(row))
	for _, f := range row {
		if _, ok := t.index[f.Key]; !ok {
			t.index[f.Key] = len(t.columns)
			t.columns = append(t.columns, f.Key)
		}
		values[f.Key] = f.Value
	}
	t.rows = append(t.rows, values)
}

// Columns returns the column names in first-seen order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Value returns the value at (row, column) and whether it was set.
func (t *Table) Value(row int, column string) (any, bool) {
	v, ok := t.rows[row][column]
	return v, ok
}

// WriteCSV writes a header line and one line per row. Missing values and
// NaN floats are written as empty cells.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.columns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	rec := make([]string, len(t.columns))
	for i, row := range t.rows {
		for j, col := range t.columns {
			rec[j] = formatCell(row[col])
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the table to path, creating parent directories.
func (t *Table) WriteCSVFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := t.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int:
		return strconv.Itoa(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
