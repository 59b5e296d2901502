package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/JonMunkholm/excessdeaths/internal/table"
)

// Export columns, in order.
const (
	ColCountry   = "Country"
	ColSlope     = "Slope"
	ColIntercept = "Intercept"
	ColRSquared  = "R_squared"
)

// Header is the export's header row.
var Header = []string{ColCountry, ColSlope, ColIntercept, ColRSquared}

// Precision is the number of decimal places floats are written with.
const Precision = 4

// DefaultFileName is the export written by a batch run.
const DefaultFileName = "regression_results.csv"

// WriteCSV writes results as CSV: Header, then one row per result in order.
func WriteCSV(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range results {
		row := []string{r.Country, formatFloat(r.Slope), formatFloat(r.Intercept), formatFloat(r.RSquared)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Export truncates path and writes results to it.
func Export(path string, results []Result) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("export: %w", cerr)
		}
	}()

	if err := WriteCSV(f, results); err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}
	return nil
}

// ReadCSV parses an export back into results.
func ReadCSV(r io.Reader) ([]Result, error) {
	t, err := table.Read(r, "export")
	if err != nil {
		return nil, err
	}
	t, err = t.ConvertFloats(ColSlope, ColIntercept, ColRSquared)
	if err != nil {
		return nil, err
	}

	out := make([]Result, t.Len())
	for i := range out {
		country, err := t.Text(ColCountry, i)
		if err != nil {
			return nil, err
		}
		out[i].Country = country.String
		for _, f := range []struct {
			col string
			dst *float64
		}{
			{ColSlope, &out[i].Slope},
			{ColIntercept, &out[i].Intercept},
			{ColRSquared, &out[i].RSquared},
		} {
			v, err := t.Float(f.col, i)
			if err != nil {
				return nil, err
			}
			if !v.Valid {
				return nil, &table.ParseError{Column: f.col, Row: i + 1, Kind: table.KindFloat}
			}
			*f.dst = v.Float64
		}
	}
	return out, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', Precision, 64)
}
