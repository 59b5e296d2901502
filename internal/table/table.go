// Package table holds the in-memory, column-oriented tables the analysis
// pipeline works on: loading them from CSV, normalizing headers and cell
// types, joining, filtering and null handling.
//
// Cells are stored as pgtype values so that a blank CSV cell is simply a
// value with Valid=false. Tables are treated as immutable: every operation
// returns a new *Table and never modifies its receiver.
package table

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Kind is the storage type of a column.
type Kind int

const (
	KindText Kind = iota
	KindDate
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindDate:
		return "date"
	case KindFloat:
		return "float"
	default:
		return "unknown"
	}
}

// dateKeyLayout is the canonical rendering of date cells used for join keys.
const dateKeyLayout = "2006-01-02"

// Column is a named, typed vector of cells. Only the slice matching Kind is
// populated.
type Column struct {
	Name   string
	Kind   Kind
	Text   []pgtype.Text
	Dates  []pgtype.Date
	Floats []pgtype.Float8
}

// TextColumn builds a text column, treating "" as null.
func TextColumn(name string, values ...string) *Column {
	cells := make([]pgtype.Text, len(values))
	for i, v := range values {
		cells[i] = pgtype.Text{String: v, Valid: v != ""}
	}
	return &Column{Name: name, Kind: KindText, Text: cells}
}

// Len returns the number of cells in the column.
func (c *Column) Len() int {
	switch c.Kind {
	case KindDate:
		return len(c.Dates)
	case KindFloat:
		return len(c.Floats)
	default:
		return len(c.Text)
	}
}

// IsNull reports whether cell i is null.
func (c *Column) IsNull(i int) bool {
	switch c.Kind {
	case KindDate:
		return !c.Dates[i].Valid
	case KindFloat:
		return !c.Floats[i].Valid
	default:
		return !c.Text[i].Valid
	}
}

// Key returns the canonical string form of cell i and false if it is null.
func (c *Column) Key(i int) (string, bool) {
	if c.IsNull(i) {
		return "", false
	}
	switch c.Kind {
	case KindDate:
		return c.Dates[i].Time.Format(dateKeyLayout), true
	case KindFloat:
		return strconv.FormatFloat(c.Floats[i].Float64, 'g', -1, 64), true
	default:
		return c.Text[i].String, true
	}
}

// renamed returns a shallow copy of the column under a new name.
func (c *Column) renamed(name string) *Column {
	cp := *c
	cp.Name = name
	return &cp
}

// take returns a new column holding the cells at the given row positions.
func (c *Column) take(rows []int) *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	switch c.Kind {
	case KindDate:
		out.Dates = make([]pgtype.Date, len(rows))
		for i, r := range rows {
			out.Dates[i] = c.Dates[r]
		}
	case KindFloat:
		out.Floats = make([]pgtype.Float8, len(rows))
		for i, r := range rows {
			out.Floats[i] = c.Floats[r]
		}
	default:
		out.Text = make([]pgtype.Text, len(rows))
		for i, r := range rows {
			out.Text[i] = c.Text[r]
		}
	}
	return out
}

// HeaderIndex maps column names to their position in the table.
// Lookups are exact and case-sensitive.
type HeaderIndex map[string]int

// MakeHeaderIndex creates a HeaderIndex from a header row.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		idx[h] = i
	}
	return idx
}

// Table is an ordered set of equally long columns.
type Table struct {
	name    string
	columns []*Column
	index   HeaderIndex
	rows    int
}

// New assembles a table from columns. All columns must have the same length
// and distinct names.
func New(name string, columns ...*Column) (*Table, error) {
	t := &Table{
		name:    name,
		columns: columns,
		index:   make(HeaderIndex, len(columns)),
	}
	for i, c := range columns {
		if _, dup := t.index[c.Name]; dup {
			return nil, fmt.Errorf("table %s: duplicate column %q", name, c.Name)
		}
		t.index[c.Name] = i
		if i == 0 {
			t.rows = c.Len()
		} else if c.Len() != t.rows {
			return nil, fmt.Errorf("table %s: column %q has %d rows, expected %d", name, c.Name, c.Len(), t.rows)
		}
	}
	return t, nil
}

// Name returns the table's name, usually the source file it was loaded from.
func (t *Table) Name() string { return t.name }

// Len returns the number of rows.
func (t *Table) Len() int { return t.rows }

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

func (t *Table) lookup(names ...string) ([]*Column, error) {
	cols := make([]*Column, len(names))
	for i, n := range names {
		c, ok := t.Column(n)
		if !ok {
			return nil, fmt.Errorf("table %s: column not found: %q", t.name, n)
		}
		cols[i] = c
	}
	return cols, nil
}

// Text returns the text cell at (column, row).
func (t *Table) Text(column string, row int) (pgtype.Text, error) {
	c, ok := t.Column(column)
	if !ok {
		return pgtype.Text{}, fmt.Errorf("table %s: column not found: %q", t.name, column)
	}
	if c.Kind != KindText {
		return pgtype.Text{}, fmt.Errorf("table %s: column %q is %s, not text", t.name, column, c.Kind)
	}
	return c.Text[row], nil
}

// Date returns the date cell at (column, row).
func (t *Table) Date(column string, row int) (pgtype.Date, error) {
	c, ok := t.Column(column)
	if !ok {
		return pgtype.Date{}, fmt.Errorf("table %s: column not found: %q", t.name, column)
	}
	if c.Kind != KindDate {
		return pgtype.Date{}, fmt.Errorf("table %s: column %q is %s, not date", t.name, column, c.Kind)
	}
	return c.Dates[row], nil
}

// Float returns the float cell at (column, row).
func (t *Table) Float(column string, row int) (pgtype.Float8, error) {
	c, ok := t.Column(column)
	if !ok {
		return pgtype.Float8{}, fmt.Errorf("table %s: column not found: %q", t.name, column)
	}
	if c.Kind != KindFloat {
		return pgtype.Float8{}, fmt.Errorf("table %s: column %q is %s, not float", t.name, column, c.Kind)
	}
	return c.Floats[row], nil
}

// take builds a table from the given row positions, in that order.
func (t *Table) take(rows []int) *Table {
	cols := make([]*Column, len(t.columns))
	for i, c := range t.columns {
		cols[i] = c.take(rows)
	}
	return &Table{name: t.name, columns: cols, index: t.index, rows: len(rows)}
}

// Where returns the rows whose cell in column exactly equals value. Date
// cells compare by their YYYY-MM-DD form. An unknown column or no match
// yields an empty table with the same columns.
func (t *Table) Where(column, value string) *Table {
	c, ok := t.Column(column)
	if !ok {
		return t.take(nil)
	}
	var rows []int
	for i := 0; i < t.rows; i++ {
		if k, ok := c.Key(i); ok && k == value {
			rows = append(rows, i)
		}
	}
	return t.take(rows)
}

// DropNulls removes every row that has a null in any of the given columns.
func (t *Table) DropNulls(columns ...string) (*Table, error) {
	cols, err := t.lookup(columns...)
	if err != nil {
		return nil, err
	}
	rows := make([]int, 0, t.rows)
next:
	for i := 0; i < t.rows; i++ {
		for _, c := range cols {
			if c.IsNull(i) {
				continue next
			}
		}
		rows = append(rows, i)
	}
	return t.take(rows), nil
}

// DistinctOn keeps the first row for each distinct combination of the given
// columns. Rows with a null in any of them are kept as-is.
func (t *Table) DistinctOn(columns ...string) (*Table, error) {
	cols, err := t.lookup(columns...)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, t.rows)
	rows := make([]int, 0, t.rows)
	for i := 0; i < t.rows; i++ {
		key, ok := rowKey(cols, i)
		if ok {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		rows = append(rows, i)
	}
	return t.take(rows), nil
}

// Unique returns the sorted distinct non-null values of a column.
func (t *Table) Unique(column string) ([]string, error) {
	cols, err := t.lookup(column)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for i := 0; i < t.rows; i++ {
		if k, ok := cols[0].Key(i); ok {
			set[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// NullCount is the number of null cells in one column.
type NullCount struct {
	Column string
	Nulls  int
}

// NullCounts returns the null count of every column, in column order.
func (t *Table) NullCounts() []NullCount {
	out := make([]NullCount, len(t.columns))
	for i, c := range t.columns {
		n := 0
		for r := 0; r < t.rows; r++ {
			if c.IsNull(r) {
				n++
			}
		}
		out[i] = NullCount{Column: c.Name, Nulls: n}
	}
	return out
}

// rowKey joins the canonical keys of the given columns for row i with a
// unit separator. It reports false if any of them is null.
func rowKey(cols []*Column, i int) (string, bool) {
	if len(cols) == 1 {
		return cols[0].Key(i)
	}
	var b []byte
	for j, c := range cols {
		k, ok := c.Key(i)
		if !ok {
			return "", false
		}
		if j > 0 {
			b = append(b, 0x1f)
		}
		b = append(b, k...)
	}
	return string(b), true
}

// DateOf is a small helper for building date cells in callers and tests.
func DateOf(year int, month time.Month, day int) pgtype.Date {
	return pgtype.Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), Valid: true}
}
