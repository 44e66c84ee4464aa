package domain

import "github.com/guregu/null/v6"

// ResultTable is the flattened output of a successful query.
// Every row in Rows has exactly len(Columns) cells.
type ResultTable struct {
	Columns []string        `json:"columns"`
	Rows    [][]null.String `json:"rows"`
}

// Len returns the number of data rows (the header is not counted).
func (t *ResultTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the query produced no data rows.
func (t *ResultTable) Empty() bool {
	return t.Len() == 0
}

// ColumnIndex returns the position of a column, or -1 when absent.
func (t *ResultTable) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns the cells of the named column.
// Parameters:
//   - name: column name from the header.
// Returns:
//   - []null.String: one cell per data row.
//   - bool: false if the column does not exist.
func (t *ResultTable) Column(name string) ([]null.String, bool) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, false
	}
	cells := make([]null.String, len(t.Rows))
	for i, row := range t.Rows {
		cells[i] = row[idx]
	}
	return cells, true
}

// Records returns header and rows as plain strings, nulls rendered empty.
func (t *ResultTable) Records() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, append([]string(nil), t.Columns...))
	for _, row := range t.Rows {
		rec := make([]string, len(row))
		for i, cell := range row {
			rec[i] = cell.ValueOrZero()
		}
		out = append(out, rec)
	}
	return out
}
