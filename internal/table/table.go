// Package table holds the in-memory form of every tabular artifact the
// pipeline persists: entity files, datamart files and the summary.
//
// A Table is a header plus rows of string cells. An empty cell means the
// attribute is absent. Exact-row equality is cell-wise string equality.
package table

import (
	"dicommart/pkg/contracts/domain"
)

// Table is an ordered set of named columns and string rows. Rows always have
// exactly len(Columns()) cells. A Table is not safe for concurrent mutation.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// New creates an empty table with the given header. Duplicate names collapse
// onto their first occurrence.
func New(columns []string) *Table {
	t := &Table{index: make(map[string]int, len(columns))}
	for _, c := range columns {
		t.addColumn(c)
	}
	return t
}

// FromRecord creates a one-row table holding rec.
func FromRecord(rec domain.AttributeRecord) *Table {
	t := New(rec.Columns())
	t.rows = append(t.rows, rec.Row())
	return t
}

// Columns returns a copy of the header.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Index returns the position of column name.
func (t *Table) Index(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// HasColumn reports whether name is part of the header.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Row returns a copy of row i.
func (t *Table) Row(i int) []string {
	out := make([]string, len(t.rows[i]))
	copy(out, t.rows[i])
	return out
}

// Rows returns a copy of all rows.
func (t *Table) Rows() [][]string {
	out := make([][]string, len(t.rows))
	for i := range t.rows {
		out[i] = t.Row(i)
	}
	return out
}

// Record returns row i as an AttributeRecord.
func (t *Table) Record(i int) domain.AttributeRecord {
	return domain.RecordFromRow(t.columns, t.rows[i])
}

// Cell returns the value of column name in row i; ok is false when the
// column does not exist or the cell is empty.
func (t *Table) Cell(i int, name string) (string, bool) {
	j, ok := t.index[name]
	if !ok || t.rows[i][j] == "" {
		return "", false
	}
	return t.rows[i][j], true
}

// Column returns every value of column name, in row order.
func (t *Table) Column(name string) ([]string, bool) {
	j, ok := t.index[name]
	if !ok {
		return nil, false
	}
	out := make([]string, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[j]
	}
	return out, true
}

// AppendRow appends a row aligned with the current header. Short rows are
// padded with empty cells; extra cells are dropped.
func (t *Table) AppendRow(row []string) {
	r := make([]string, len(t.columns))
	copy(r, row)
	t.rows = append(t.rows, r)
}

// AppendRecord appends rec, first extending the header with any of rec's
// columns it does not have yet.
func (t *Table) AppendRecord(rec domain.AttributeRecord) {
	t.Concat(FromRecord(rec))
}

// Concat appends every row of other. The resulting header is the union of
// both headers, t's columns first; cells of missing columns are empty.
func (t *Table) Concat(other *Table) {
	grew := false
	for _, c := range other.columns {
		if t.addColumn(c) {
			grew = true
		}
	}
	if grew {
		for i, row := range t.rows {
			padded := make([]string, len(t.columns))
			copy(padded, row)
			t.rows[i] = padded
		}
	}

	for _, src := range other.rows {
		row := make([]string, len(t.columns))
		for j, c := range other.columns {
			row[t.index[c]] = src[j]
		}
		t.rows = append(t.rows, row)
	}
}

// DropDuplicates removes rows that are equal in every column to a later row,
// keeping the last occurrence at its position. It returns how many rows were
// removed.
func (t *Table) DropDuplicates() int {
	seen := make(map[[FingerprintSize]byte]struct{}, len(t.rows))
	keep := make([]bool, len(t.rows))
	kept := 0
	for i := len(t.rows) - 1; i >= 0; i-- {
		fp := Fingerprint(t.rows[i])
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		keep[i] = true
		kept++
	}

	removed := len(t.rows) - kept
	if removed == 0 {
		return 0
	}
	out := make([][]string, 0, kept)
	for i, row := range t.rows {
		if keep[i] {
			out = append(out, row)
		}
	}
	t.rows = out
	return removed
}

// Project returns a new table holding only columns, in that order. Columns
// t does not have are filled with empty cells.
func (t *Table) Project(columns []string) *Table {
	out := New(columns)
	src := make([]int, len(out.columns))
	for j, c := range out.columns {
		if i, ok := t.index[c]; ok {
			src[j] = i
		} else {
			src[j] = -1
		}
	}
	out.rows = make([][]string, 0, len(t.rows))
	for _, row := range t.rows {
		r := make([]string, len(out.columns))
		for j, i := range src {
			if i >= 0 {
				r[j] = row[i]
			}
		}
		out.rows = append(out.rows, r)
	}
	return out
}

// Filter keeps the rows for which keep returns true.
func (t *Table) Filter(keep func(row []string) bool) {
	out := t.rows[:0]
	for _, row := range t.rows {
		if keep(row) {
			out = append(out, row)
		}
	}
	for i := len(out); i < len(t.rows); i++ {
		t.rows[i] = nil
	}
	t.rows = out
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := New(t.columns)
	out.rows = t.Rows()
	return out
}

func (t *Table) addColumn(name string) bool {
	if _, ok := t.index[name]; ok {
		return false
	}
	t.index[name] = len(t.columns)
	t.columns = append(t.columns, name)
	return true
}
