// Package regression fits a univariate ordinary-least-squares line.
//
// For samples (x, y):
//
//	slope     = cov(x, y) / var(x)
//	intercept = mean(y) - slope*mean(x)
//	R²        = 1 - SS_res/SS_tot
//
// Population moments come from github.com/montanaflynn/stats; the ratio is
// the same for population and sample estimators.
package regression

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
)

// MinPoints is the smallest sample a line can be fitted to.
const MinPoints = 2

// Point is one (predictor, response) sample.
type Point struct {
	X float64
	Y float64
}

// Model is a fitted line and its coefficient of determination.
type Model struct {
	Slope     float64
	Intercept float64
	RSquared  float64
	N         int
}

// Predict returns the fitted response at x.
func (m Model) Predict(x float64) float64 {
	return m.Slope*x + m.Intercept
}

// Reason classifies a DegenerateInputError.
type Reason int

const (
	ReasonTooFewPoints Reason = iota + 1
	ReasonZeroVariance
	ReasonNonFinite
)

func (r Reason) String() string {
	switch r {
	case ReasonTooFewPoints:
		return "too few points"
	case ReasonZeroVariance:
		return "zero variance in predictor"
	case ReasonNonFinite:
		return "non-finite value"
	default:
		return "unknown"
	}
}

// DegenerateInputError reports a sample no unique line can be fitted to.
type DegenerateInputError struct {
	Reason Reason
	N      int
}

func (e *DegenerateInputError) Error() string {
	return fmt.Sprintf("regression: degenerate input (%s, n=%d)", e.Reason, e.N)
}

// Fit computes the least-squares line through points.
//
// Fewer than MinPoints samples, identical x values, or a NaN/Inf anywhere
// fail with *DegenerateInputError. When every y is identical the line is
// flat: slope 0, intercept at that value, and R² reported as 1 since the
// residuals are all zero.
func Fit(points []Point) (Model, error) {
	n := len(points)
	if n < MinPoints {
		return Model{}, &DegenerateInputError{Reason: ReasonTooFewPoints, N: n}
	}

	xs := make(stats.Float64Data, n)
	ys := make(stats.Float64Data, n)
	for i, p := range points {
		if !finite(p.X) || !finite(p.Y) {
			return Model{}, &DegenerateInputError{Reason: ReasonNonFinite, N: n}
		}
		xs[i], ys[i] = p.X, p.Y
	}

	varX, err := stats.PopulationVariance(xs)
	if err != nil {
		return Model{}, fmt.Errorf("regression: variance: %w", err)
	}
	if varX == 0 || allEqual(xs) {
		return Model{}, &DegenerateInputError{Reason: ReasonZeroVariance, N: n}
	}

	meanX, err := stats.Mean(xs)
	if err != nil {
		return Model{}, fmt.Errorf("regression: mean: %w", err)
	}
	meanY, err := stats.Mean(ys)
	if err != nil {
		return Model{}, fmt.Errorf("regression: mean: %w", err)
	}

	if allEqual(ys) {
		return Model{Slope: 0, Intercept: ys[0], RSquared: 1, N: n}, nil
	}

	cov, err := stats.CovariancePopulation(xs, ys)
	if err != nil {
		return Model{}, fmt.Errorf("regression: covariance: %w", err)
	}

	m := Model{N: n}
	m.Slope = cov / varX
	m.Intercept = meanY - m.Slope*meanX

	var ssRes, ssTot float64
	for i := range xs {
		r := ys[i] - m.Predict(xs[i])
		d := ys[i] - meanY
		ssRes += r * r
		ssTot += d * d
	}
	m.RSquared = 1 - ssRes/ssTot
	return m, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// allEqual catches constant columns whose computed variance is a rounding
// residue rather than exactly zero.
func allEqual(data stats.Float64Data) bool {
	for _, v := range data[1:] {
		if v != data[0] {
			return false
		}
	}
	return true
}
