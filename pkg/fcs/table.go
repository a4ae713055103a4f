package fcs

import (
	"fmt"
)

// EventTable is a dense events x channels matrix stored row-major. It is never
// modified after construction; accessors return copies.
type EventTable struct {
	names []string
	index map[string]int
	rows  int
	data  []float64
}

// NewEventTable builds a table from row-major values. len(data) must equal
// rows*len(names) and names must be unique.
func NewEventTable(names []string, rows int, data []float64) (*EventTable, error) {
	if rows < 0 || len(data) != rows*len(names) {
		return nil, fmt.Errorf("event table: %d values do not fill %d rows x %d columns", len(data), rows, len(names))
	}
	index := make(map[string]int, len(names))
	for i, n := range names {
		if _, dup := index[n]; dup {
			return nil, fmt.Errorf("event table: duplicate column %q", n)
		}
		index[n] = i
	}
	return &EventTable{
		names: append([]string(nil), names...),
		index: index,
		rows:  rows,
		data:  data,
	}, nil
}

// Rows is the number of events.
func (t *EventTable) Rows() int { return t.rows }

// Cols is the number of channels.
func (t *EventTable) Cols() int { return len(t.names) }

// Names returns the column names in channel order.
func (t *EventTable) Names() []string { return append([]string(nil), t.names...) }

// ColumnIndex looks up a column by channel name.
func (t *EventTable) ColumnIndex(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// At returns the value of channel col for event row.
func (t *EventTable) At(row, col int) float64 {
	return t.data[row*len(t.names)+col]
}

// Row returns a copy of one event.
func (t *EventTable) Row(row int) []float64 {
	c := len(t.names)
	return append([]float64(nil), t.data[row*c:(row+1)*c]...)
}

// Column returns a copy of one channel across all events.
func (t *EventTable) Column(name string) ([]float64, error) {
	col, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("event table: no column %q", name)
	}
	out := make([]float64, t.rows)
	c := len(t.names)
	for r := range out {
		out[r] = t.data[r*c+col]
	}
	return out, nil
}

// Matrix returns the table as a slice of rows.
func (t *EventTable) Matrix() [][]float64 {
	out := make([][]float64, t.rows)
	for r := range out {
		out[r] = t.Row(r)
	}
	return out
}

// Filter returns a new table with the events for which keep reports true.
// keep must not retain or modify the row slice.
func (t *EventTable) Filter(keep func(row []float64) bool) *EventTable {
	c := len(t.names)
	var data []float64
	rows := 0
	for r := 0; r < t.rows; r++ {
		row := t.data[r*c : (r+1)*c : (r+1)*c]
		if keep(row) {
			data = append(data, row...)
			rows++
		}
	}
	return &EventTable{names: t.names, index: t.index, rows: rows, data: data}
}
