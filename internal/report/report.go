// Package report accumulates per-country regression results, formats them
// for export and builds the chart requests handed to a Renderer.
package report

import (
	"fmt"
	"io"

	"github.com/JonMunkholm/excessdeaths/internal/regression"
)

// Result is the regression outcome for one country.
type Result struct {
	Country   string  `json:"country"`
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RSquared  float64 `json:"r_squared"`
}

// FromModel builds the Result for country from a fitted model.
func FromModel(country string, m regression.Model) Result {
	return Result{
		Country:   country,
		Slope:     m.Slope,
		Intercept: m.Intercept,
		RSquared:  m.RSquared,
	}
}

// Accumulator collects results in the order countries were processed.
// The zero value is ready to use.
type Accumulator struct {
	results []Result
}

// Add appends r.
func (a *Accumulator) Add(r Result) {
	a.results = append(a.results, r)
}

// Len returns the number of accumulated results.
func (a *Accumulator) Len() int {
	return len(a.results)
}

// Results returns a copy of the accumulated results.
func (a *Accumulator) Results() []Result {
	out := make([]Result, len(a.results))
	copy(out, a.results)
	return out
}

// WriteSummary prints the per-country coefficients the way an analyst reads
// them on a console.
func WriteSummary(w io.Writer, r Result) error {
	_, err := fmt.Fprintf(w, "Slope: %.4f\nIntercept: %.4f\nR² Score: %.4f\n", r.Slope, r.Intercept, r.RSquared)
	return err
}
