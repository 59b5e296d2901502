// Package pipeline runs the analysis end to end: load and join the sources,
// then for each requested country select its rows, fit the regression,
// request charts and accumulate the result. Countries are processed one at a
// time in the order given.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/JonMunkholm/excessdeaths/internal/chart"
	"github.com/JonMunkholm/excessdeaths/internal/dataset"
	"github.com/JonMunkholm/excessdeaths/internal/logging"
	"github.com/JonMunkholm/excessdeaths/internal/regression"
	"github.com/JonMunkholm/excessdeaths/internal/report"
	"github.com/JonMunkholm/excessdeaths/internal/table"
)

// Minimum sample sizes of the two ways the analysis is used.
const (
	BatchMinSamples       = 10
	InteractiveMinSamples = regression.MinPoints
)

// DefaultCountries is the batch selection when none is configured.
var DefaultCountries = []string{"India", "United States", "Brazil", "Germany", "Bangladesh"}

// ErrInsufficientData marks a country with fewer joined rows than the
// minimum sample size. It is a skip, not a failure.
var ErrInsufficientData = errors.New("insufficient data")

// Params configures one run. Paths are used exactly as given.
type Params struct {
	VaccinationFile string
	DeathsFile      string

	// OutputFile receives the results export; empty skips the export.
	OutputFile string

	// ChartDir receives PNG charts when Run is given a nil renderer; empty
	// disables chart rendering.
	ChartDir string

	Countries     []string
	MinSampleSize int
	Dedupe        bool
}

func (p Params) minSamples() int {
	if p.MinSampleSize < regression.MinPoints {
		return regression.MinPoints
	}
	return p.MinSampleSize
}

// Skip records a country left out of the results and why.
type Skip struct {
	Country string
	Reason  error
}

// Message is the user-facing line for the skip.
func (s Skip) Message() string {
	var degenerate *regression.DegenerateInputError
	if errors.As(s.Reason, &degenerate) {
		return fmt.Sprintf("Degenerate data for %s (%s), skipping...", s.Country, degenerate.Reason)
	}
	return fmt.Sprintf("Insufficient data for %s, skipping...", s.Country)
}

// Outcome is everything a run produced.
type Outcome struct {
	RunID    string
	Rows     int // joined rows across all countries
	Analyses []Analysis
	Results  []report.Result
	Skips    []Skip
}

// Analysis is the per-country product of a successful fit.
type Analysis struct {
	Country    string
	Records    []dataset.JoinedRecord
	Model      regression.Model
	Result     report.Result
	TimeSeries report.TimeSeriesChart
	Regression report.RegressionChart
}

// Run loads both sources and analyzes p.Countries. Load and parse failures
// abort the run before anything is written; per-country problems become
// Skips. The export, when configured, is written only after every country
// has been processed.
func Run(ctx context.Context, p Params, renderer report.Renderer) (*Outcome, error) {
	runID := uuid.NewString()
	ctx = logging.ContextWithRunID(ctx, runID)
	logger := logging.FromContext(ctx)

	if renderer == nil {
		renderer = report.Discard
		if p.ChartDir != "" {
			fr, err := chart.NewFileRenderer(p.ChartDir)
			if err != nil {
				return nil, err
			}
			renderer = fr
		}
	}

	logger.Info("analysis started",
		"countries", len(p.Countries),
		"min_sample_size", p.minSamples(),
		"dedupe", p.Dedupe,
	)

	joined, err := dataset.Load(ctx, dataset.Sources{
		VaccinationFile: p.VaccinationFile,
		DeathsFile:      p.DeathsFile,
		Dedupe:          p.Dedupe,
	})
	if err != nil {
		return nil, err
	}

	out, err := Analyze(ctx, joined, p.Countries, p.minSamples(), renderer)
	if err != nil {
		return nil, err
	}
	out.RunID = runID

	if p.OutputFile != "" {
		if err := report.Export(p.OutputFile, out.Results); err != nil {
			return nil, err
		}
		logger.Info("regression results saved", "path", p.OutputFile, "results", len(out.Results))
	}

	logger.Info("analysis finished", "results", len(out.Results), "skipped", len(out.Skips))
	return out, nil
}

// Analyze runs the per-country steps over an already joined table.
func Analyze(ctx context.Context, joined *table.Table, countries []string, minSamples int, renderer report.Renderer) (*Outcome, error) {
	var acc report.Accumulator
	out := &Outcome{Rows: joined.Len()}

	for _, country := range countries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		a, err := AnalyzeCountry(ctx, joined, country, minSamples)
		if err != nil {
			if isSkip(err) {
				skip := Skip{Country: country, Reason: err}
				logging.WithFields(ctx, "country", country).Warn(skip.Message(), "reason", err)
				out.Skips = append(out.Skips, skip)
				continue
			}
			return nil, err
		}

		if err := renderer.RenderTimeSeries(ctx, a.TimeSeries); err != nil {
			return nil, fmt.Errorf("render %s: %w", country, err)
		}
		if err := renderer.RenderRegression(ctx, a.Regression); err != nil {
			return nil, fmt.Errorf("render %s: %w", country, err)
		}

		acc.Add(a.Result)
		out.Analyses = append(out.Analyses, a)
	}

	out.Results = acc.Results()
	return out, nil
}

// AnalyzeCountry selects country's rows from joined and fits them. A country
// with fewer than minSamples rows fails with ErrInsufficientData; an
// unfittable sample fails with *regression.DegenerateInputError.
func AnalyzeCountry(ctx context.Context, joined *table.Table, country string, minSamples int) (Analysis, error) {
	if minSamples < regression.MinPoints {
		minSamples = regression.MinPoints
	}
	logger := logging.WithFields(ctx, "country", country)

	records, err := dataset.Select(joined, country)
	if err != nil {
		return Analysis{}, err
	}
	if len(records) < minSamples {
		return Analysis{}, fmt.Errorf("%w: %s has %d rows, need %d", ErrInsufficientData, country, len(records), minSamples)
	}

	points := report.Points(records)
	m, err := regression.Fit(points)
	if err != nil {
		return Analysis{}, err
	}

	result := report.FromModel(country, m)
	logger.Info("regression fitted",
		"rows", len(records),
		"slope", m.Slope,
		"intercept", m.Intercept,
		"r_squared", m.RSquared,
	)

	return Analysis{
		Country:    country,
		Records:    records,
		Model:      m,
		Result:     result,
		TimeSeries: report.TimeSeries(country, records),
		Regression: report.Regression(country, points, m),
	}, nil
}

func isSkip(err error) bool {
	var degenerate *regression.DegenerateInputError
	return errors.Is(err, ErrInsufficientData) || errors.As(err, &degenerate)
}
