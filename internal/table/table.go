// Package table holds the row-major numeric table that flows between pipeline stages.
package table

import (
	"errors"
	"fmt"
	"sort"
)

var ErrShape = errors.New("table shape mismatch")

// Table is a row-indexed numeric table. Rows[i][j] is the value of Columns[j] at row i.
type Table struct {
	Columns []string    `json:"columns"`
	Rows    [][]float64 `json:"rows"`
}

func New(columns []string, rows [][]float64) (*Table, error) {
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if _, ok := seen[c]; ok {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrShape, c)
		}
		seen[c] = struct{}{}
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrShape, i, len(r), len(columns))
		}
	}
	return &Table{Columns: columns, Rows: rows}, nil
}

// Zeros returns a table of n zero rows over columns.
func Zeros(columns []string, n int) *Table {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, len(columns))
	}
	return &Table{Columns: append([]string(nil), columns...), Rows: rows}
}

// FromColumns builds a table from named columns of equal length. Columns are ordered by name.
func FromColumns(cols map[string][]float64) (*Table, error) {
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return FromOrderedColumns(names, cols)
}

func FromOrderedColumns(names []string, cols map[string][]float64) (*Table, error) {
	n := -1
	for _, name := range names {
		values, ok := cols[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrShape, name)
		}
		if n >= 0 && len(values) != n {
			return nil, fmt.Errorf("%w: column %q has %d values, want %d", ErrShape, name, len(values), n)
		}
		n = len(values)
	}
	if n < 0 {
		n = 0
	}

	t := Zeros(names, n)
	for j, name := range names {
		for i, v := range cols[name] {
			t.Rows[i][j] = v
		}
	}
	return t, nil
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

func (t *Table) Width() int {
	if t == nil {
		return 0
	}
	return len(t.Columns)
}

func (t *Table) Empty() bool {
	return t.Len() == 0 && t.Width() == 0
}

func (t *Table) Index(name string) int {
	for j, c := range t.Columns {
		if c == name {
			return j
		}
	}
	return -1
}

func (t *Table) Column(name string) ([]float64, bool) {
	j := t.Index(name)
	if j < 0 {
		return nil, false
	}
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[j]
	}
	return out, true
}

// ColumnMap returns every column keyed by name.
func (t *Table) ColumnMap() map[string][]float64 {
	out := make(map[string][]float64, len(t.Columns))
	for _, c := range t.Columns {
		out[c], _ = t.Column(c)
	}
	return out
}

func (t *Table) Clone() *Table {
	rows := make([][]float64, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = append([]float64(nil), r...)
	}
	return &Table{Columns: append([]string(nil), t.Columns...), Rows: rows}
}

// AddColumn appends a column, replacing an existing column of the same name in place.
func (t *Table) AddColumn(name string, values []float64) error {
	if len(values) != len(t.Rows) {
		return fmt.Errorf("%w: column %q has %d values, table has %d rows", ErrShape, name, len(values), len(t.Rows))
	}
	if j := t.Index(name); j >= 0 {
		for i, v := range values {
			t.Rows[i][j] = v
		}
		return nil
	}
	t.Columns = append(t.Columns, name)
	for i, v := range values {
		t.Rows[i] = append(t.Rows[i], v)
	}
	return nil
}

// Take returns the rows at the given positions, in order. Positions may repeat.
func (t *Table) Take(idx []int) (*Table, error) {
	rows := make([][]float64, len(idx))
	for k, i := range idx {
		if i < 0 || i >= len(t.Rows) {
			return nil, fmt.Errorf("%w: row %d out of range [0,%d)", ErrShape, i, len(t.Rows))
		}
		rows[k] = append([]float64(nil), t.Rows[i]...)
	}
	return &Table{Columns: append([]string(nil), t.Columns...), Rows: rows}, nil
}

// Slice returns rows [from, to) sharing no memory with t.
func (t *Table) Slice(from, to int) *Table {
	out := &Table{Columns: append([]string(nil), t.Columns...), Rows: make([][]float64, 0, to-from)}
	for _, r := range t.Rows[from:to] {
		out.Rows = append(out.Rows, append([]float64(nil), r...))
	}
	return out
}

// Select keeps the named columns in the given order.
func (t *Table) Select(names []string) (*Table, error) {
	idx := make([]int, len(names))
	for k, name := range names {
		j := t.Index(name)
		if j < 0 {
			return nil, fmt.Errorf("%w: unknown column %q", ErrShape, name)
		}
		idx[k] = j
	}
	out := Zeros(names, len(t.Rows))
	for i, r := range t.Rows {
		for k, j := range idx {
			out.Rows[i][k] = r[j]
		}
	}
	return out, nil
}

// DropZeroColumns removes every column whose values are all zero.
func (t *Table) DropZeroColumns() *Table {
	keep := make([]string, 0, len(t.Columns))
	for j, c := range t.Columns {
		for _, r := range t.Rows {
			if r[j] != 0 {
				keep = append(keep, c)
				break
			}
		}
	}
	out, _ := t.Select(keep)
	return out
}

// Apply replaces every value v with fn(v).
func (t *Table) Apply(fn func(float64) float64) {
	for _, r := range t.Rows {
		for j, v := range r {
			r[j] = fn(v)
		}
	}
}

// Concat stacks tables vertically. The result carries the union of columns in order of first
// appearance; a column absent from one input is zero for that input's rows.
func Concat(tables ...*Table) *Table {
	var columns []string
	pos := map[string]int{}
	total := 0
	for _, t := range tables {
		if t == nil {
			continue
		}
		total += len(t.Rows)
		for _, c := range t.Columns {
			if _, ok := pos[c]; !ok {
				pos[c] = len(columns)
				columns = append(columns, c)
			}
		}
	}

	out := &Table{Columns: columns, Rows: make([][]float64, 0, total)}
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, r := range t.Rows {
			row := make([]float64, len(columns))
			for j, c := range t.Columns {
				row[pos[c]] = r[j]
			}
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Join appends the columns of right to left, aligning rows by position. The result has as many
// rows as left; rows of left without a counterpart in right get zeros.
func Join(left, right *Table) (*Table, error) {
	for _, c := range right.Columns {
		if left.Index(c) >= 0 {
			return nil, fmt.Errorf("%w: column %q on both sides of join", ErrShape, c)
		}
	}
	out := &Table{
		Columns: append(append([]string(nil), left.Columns...), right.Columns...),
		Rows:    make([][]float64, len(left.Rows)),
	}
	for i, r := range left.Rows {
		row := make([]float64, 0, len(out.Columns))
		row = append(row, r...)
		if i < len(right.Rows) {
			row = append(row, right.Rows[i]...)
		} else {
			row = append(row, make([]float64, len(right.Columns))...)
		}
		out.Rows[i] = row
	}
	return out, nil
}
