package table

// normalize.go converts raw text columns into typed columns.
//
// Source datasets arrive with long, human-readable headers and every cell as
// text. Normalize renames headers to short identifiers and parses the date
// column; ConvertFloats parses measurement columns. Both return pgtype values
// with Valid=false for blank cells, so sparse data flows through as nulls.

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// dateLayouts are tried in order. ISO comes first since both source datasets
// use it; only four-digit-year layouts are accepted.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02", "2006.01.02",
	"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
	"Jan 2, 2006", "2 Jan 2006", "January 2, 2006",
	"20060102",
}

// nullTokens are cell values read as missing in numeric columns, in addition
// to the empty string.
var nullTokens = map[string]bool{
	"NA": true, "N/A": true, "NaN": true, "nan": true, "null": true, "NULL": true, "#N/A": true,
}

// ParseError reports a non-empty cell that could not be converted to the
// column's target type.
type ParseError struct {
	Column string
	Row    int // 1-based data row; 0 when the column itself is missing
	Value  string
	Kind   Kind
}

func (e *ParseError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("parse: column not found: %q", e.Column)
	}
	return fmt.Sprintf("parse: column %q row %d: invalid %s %q", e.Column, e.Row, e.Kind, e.Value)
}

// ParseDate converts a string to a pgtype.Date at midnight UTC.
// Returns invalid if the string is empty or matches no known layout.
func ParseDate(s string) pgtype.Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Date{Valid: false}
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			y, m, d := t.Date()
			return pgtype.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true}
		}
	}
	return pgtype.Date{Valid: false}
}

// ParseFloat converts a string to a pgtype.Float8.
// Blank cells and common missing-value tokens are null; the second result is
// false only for a non-empty value that is not a finite number.
func ParseFloat(s string) (pgtype.Float8, bool) {
	s = strings.TrimSpace(s)
	if s == "" || nullTokens[s] {
		return pgtype.Float8{Valid: false}, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return pgtype.Float8{Valid: false}, false
	}
	return pgtype.Float8{Float64: f, Valid: true}, true
}

// Normalize returns a copy of t with headers renamed per rename (unlisted
// headers pass through) and dateColumn, named after renaming, parsed into a
// date column. Empty date cells become null dates; any other unparseable
// value fails with *ParseError.
func Normalize(t *Table, rename map[string]string, dateColumn string) (*Table, error) {
	cols := make([]*Column, len(t.columns))
	for i, c := range t.columns {
		if to, ok := rename[c.Name]; ok {
			cols[i] = c.renamed(to)
		} else {
			cols[i] = c
		}
	}

	renamed, err := New(t.name, cols...)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}

	i, ok := renamed.index[dateColumn]
	if !ok {
		return nil, &ParseError{Column: dateColumn, Kind: KindDate}
	}
	src := renamed.columns[i]
	if src.Kind == KindDate {
		return renamed, nil
	}
	if src.Kind != KindText {
		return nil, fmt.Errorf("normalize: column %q is %s, cannot parse as date", dateColumn, src.Kind)
	}

	dates := make([]pgtype.Date, len(src.Text))
	for r, cell := range src.Text {
		if !cell.Valid || strings.TrimSpace(cell.String) == "" {
			continue
		}
		d := ParseDate(cell.String)
		if !d.Valid {
			return nil, &ParseError{Column: dateColumn, Row: r + 1, Value: cell.String, Kind: KindDate}
		}
		dates[r] = d
	}
	renamed.columns[i] = &Column{Name: dateColumn, Kind: KindDate, Dates: dates}
	return renamed, nil
}

// ConvertFloats returns a copy of t with the named text columns parsed as
// floats. A value that is neither blank, a missing-value token nor a finite
// number fails with *ParseError.
func (t *Table) ConvertFloats(columns ...string) (*Table, error) {
	cols := append([]*Column(nil), t.columns...)
	for _, name := range columns {
		i, ok := t.index[name]
		if !ok {
			return nil, &ParseError{Column: name, Kind: KindFloat}
		}
		src := cols[i]
		if src.Kind == KindFloat {
			continue
		}
		if src.Kind != KindText {
			return nil, fmt.Errorf("convert: column %q is %s, cannot parse as float", name, src.Kind)
		}

		floats := make([]pgtype.Float8, len(src.Text))
		for r, cell := range src.Text {
			if !cell.Valid {
				continue
			}
			f, ok := ParseFloat(cell.String)
			if !ok {
				return nil, &ParseError{Column: name, Row: r + 1, Value: cell.String, Kind: KindFloat}
			}
			floats[r] = f
		}
		cols[i] = &Column{Name: name, Kind: KindFloat, Floats: floats}
	}
	return &Table{name: t.name, columns: cols, index: t.index, rows: t.rows}, nil
}
