package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/excessdeaths/internal/dataset"
	"github.com/JonMunkholm/excessdeaths/internal/regression"
	"github.com/JonMunkholm/excessdeaths/internal/report"
	"github.com/JonMunkholm/excessdeaths/internal/table"
)

// series describes one synthetic country: n consecutive days where
// vax = i*step and excess = slope*vax + intercept.
type series struct {
	country   string
	n         int
	step      float64
	slope     float64
	intercept float64
}

func writeSources(t *testing.T, countries ...series) (vaxPath, deathsPath string) {
	t.Helper()
	var vax, deaths strings.Builder
	fmt.Fprintf(&vax, "Entity,Day,%q\n", dataset.HeaderVaxPerMillion)
	fmt.Fprintf(&deaths, "Entity,Day,%q,%q\n", dataset.HeaderExcessDeathsPer100k, dataset.HeaderCovidDeathsPer100k)

	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range countries {
		for i := 0; i < s.n; i++ {
			day := start.AddDate(0, 0, i).Format("2006-01-02")
			x := float64(i) * s.step
			fmt.Fprintf(&vax, "%s,%s,%g\n", s.country, day, x)
			fmt.Fprintf(&deaths, "%s,%s,%g,\n", s.country, day, s.slope*x+s.intercept)
		}
	}

	dir := t.TempDir()
	vaxPath = filepath.Join(dir, "vax.csv")
	deathsPath = filepath.Join(dir, "deaths.csv")
	require.NoError(t, os.WriteFile(vaxPath, []byte(vax.String()), 0o644))
	require.NoError(t, os.WriteFile(deathsPath, []byte(deaths.String()), 0o644))
	return vaxPath, deathsPath
}

func joinedTable(t *testing.T, countries ...series) *table.Table {
	t.Helper()
	vaxPath, deathsPath := writeSources(t, countries...)
	joined, err := dataset.Load(context.Background(), dataset.Sources{VaccinationFile: vaxPath, DeathsFile: deathsPath})
	require.NoError(t, err)
	return joined
}

type recordingRenderer struct {
	timeSeries []string
	regression []string
	err        error
}

func (r *recordingRenderer) RenderTimeSeries(_ context.Context, c report.TimeSeriesChart) error {
	r.timeSeries = append(r.timeSeries, c.Country)
	return r.err
}

func (r *recordingRenderer) RenderRegression(_ context.Context, c report.RegressionChart) error {
	r.regression = append(r.regression, c.Country)
	return r.err
}

func countries(results []report.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Country
	}
	return out
}

func TestAnalyze_CountryIsolation(t *testing.T) {
	joined := joinedTable(t,
		series{country: "Solo", n: 1, step: 1, slope: 1},
		series{country: "Pair", n: 3, step: 2, slope: 0.5, intercept: 1},
	)

	renderer := &recordingRenderer{}
	out, err := Analyze(context.Background(), joined, []string{"Solo", "Pair"}, InteractiveMinSamples, renderer)
	require.NoError(t, err)

	assert.Equal(t, []string{"Pair"}, countries(out.Results))
	require.Len(t, out.Skips, 1)
	assert.Equal(t, "Solo", out.Skips[0].Country)
	assert.ErrorIs(t, out.Skips[0].Reason, ErrInsufficientData)
	assert.Equal(t, "Insufficient data for Solo, skipping...", out.Skips[0].Message())

	assert.Equal(t, []string{"Pair"}, renderer.timeSeries)
	assert.Equal(t, []string{"Pair"}, renderer.regression)
}

func TestAnalyze_MinimumSampleThreshold(t *testing.T) {
	joined := joinedTable(t,
		series{country: "Nine", n: 9, step: 1, slope: 2, intercept: 3},
		series{country: "Ten", n: 10, step: 1, slope: 2, intercept: 3},
	)

	out, err := Analyze(context.Background(), joined, []string{"Nine", "Ten"}, BatchMinSamples, report.Discard)
	require.NoError(t, err)

	assert.Equal(t, []string{"Ten"}, countries(out.Results))
	require.Len(t, out.Skips, 1)
	assert.Equal(t, "Nine", out.Skips[0].Country)

	r := out.Results[0]
	assert.InDelta(t, 2.0, r.Slope, 1e-9)
	assert.InDelta(t, 3.0, r.Intercept, 1e-9)
	assert.InDelta(t, 1.0, r.RSquared, 1e-9)
}

func TestAnalyze_DegenerateIsSkipped(t *testing.T) {
	joined := joinedTable(t,
		series{country: "Flat", n: 5, step: 0, slope: 1, intercept: 4},
		series{country: "Fine", n: 5, step: 1, slope: 1},
	)

	out, err := Analyze(context.Background(), joined, []string{"Flat", "Missing", "Fine"}, InteractiveMinSamples, report.Discard)
	require.NoError(t, err)

	assert.Equal(t, []string{"Fine"}, countries(out.Results))
	require.Len(t, out.Skips, 2)

	var degenerate *regression.DegenerateInputError
	require.ErrorAs(t, out.Skips[0].Reason, &degenerate)
	assert.Equal(t, regression.ReasonZeroVariance, degenerate.Reason)
	assert.Contains(t, out.Skips[0].Message(), "Degenerate data for Flat")

	assert.Equal(t, "Missing", out.Skips[1].Country)
	assert.ErrorIs(t, out.Skips[1].Reason, ErrInsufficientData)
}

func TestAnalyze_OrderFollowsCountries(t *testing.T) {
	joined := joinedTable(t,
		series{country: "A", n: 4, step: 1, slope: 1},
		series{country: "B", n: 4, step: 1, slope: 2},
		series{country: "C", n: 4, step: 1, slope: 3},
	)

	out, err := Analyze(context.Background(), joined, []string{"C", "A", "B"}, InteractiveMinSamples, report.Discard)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A", "B"}, countries(out.Results))
}

func TestAnalyze_RendererFailureAborts(t *testing.T) {
	joined := joinedTable(t, series{country: "A", n: 4, step: 1, slope: 1})
	boom := errors.New("disk full")

	_, err := Analyze(context.Background(), joined, []string{"A"}, InteractiveMinSamples, &recordingRenderer{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestAnalyze_Cancelled(t *testing.T) {
	joined := joinedTable(t, series{country: "A", n: 4, step: 1, slope: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Analyze(ctx, joined, []string{"A"}, InteractiveMinSamples, report.Discard)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeCountry(t *testing.T) {
	joined := joinedTable(t, series{country: "A", n: 4, step: 10, slope: -0.1, intercept: 50})

	a, err := AnalyzeCountry(context.Background(), joined, "A", 0)
	require.NoError(t, err)
	assert.Len(t, a.Records, 4)
	assert.InDelta(t, -0.1, a.Result.Slope, 1e-9)
	assert.Len(t, a.TimeSeries.Vaccinations, 4)
	assert.Len(t, a.Regression.Fitted, 4)
	assert.Equal(t, "A - Regression Analysis", a.Regression.Title)
}

func TestRun_WritesExport(t *testing.T) {
	vaxPath, deathsPath := writeSources(t,
		series{country: "India", n: 12, step: 100, slope: 0.01, intercept: 2},
		series{country: "Germany", n: 3, step: 100, slope: 0.02},
	)
	outPath := filepath.Join(t.TempDir(), report.DefaultFileName)

	out, err := Run(context.Background(), Params{
		VaccinationFile: vaxPath,
		DeathsFile:      deathsPath,
		OutputFile:      outPath,
		Countries:       []string{"India", "Germany"},
		MinSampleSize:   BatchMinSamples,
	}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, 15, out.Rows)

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()
	got, err := report.ReadCSV(f)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "India", got[0].Country)
	assert.InDelta(t, 0.01, got[0].Slope, 0.5e-4)
	assert.InDelta(t, 2.0, got[0].Intercept, 0.5e-4)
}

func TestRun_ChartDir(t *testing.T) {
	vaxPath, deathsPath := writeSources(t, series{country: "Chile", n: 4, step: 1, slope: 1})
	chartDir := filepath.Join(t.TempDir(), "charts")

	_, err := Run(context.Background(), Params{
		VaccinationFile: vaxPath,
		DeathsFile:      deathsPath,
		ChartDir:        chartDir,
		Countries:       []string{"Chile"},
	}, nil)
	require.NoError(t, err)

	entries, err := os.ReadDir(chartDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRun_LoadErrorWritesNothing(t *testing.T) {
	vaxPath, _ := writeSources(t, series{country: "A", n: 4, step: 1, slope: 1})
	outPath := filepath.Join(t.TempDir(), report.DefaultFileName)

	_, err := Run(context.Background(), Params{
		VaccinationFile: vaxPath,
		DeathsFile:      filepath.Join(t.TempDir(), "absent.csv"),
		OutputFile:      outPath,
		Countries:       []string{"A"},
	}, report.Discard)

	var loadErr *table.LoadError
	require.ErrorAs(t, err, &loadErr)
	_, statErr := os.Stat(outPath)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}
