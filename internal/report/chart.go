package report

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/excessdeaths/internal/dataset"
	"github.com/JonMunkholm/excessdeaths/internal/regression"
)

// Axis and series labels shared by every renderer.
const (
	LabelDate          = "Date"
	LabelRate          = "Rate"
	LabelVaxSeries     = "Vaccinations per million"
	LabelExcessSeries  = "Excess deaths per 100k"
	LabelVaxAxis       = "Vaccinations per million (7-day avg)"
	LabelExcessAxis    = "Excess deaths per 100k"
	LabelRegressionFit = "Regression Line"
)

// DatedValue is one point of a time series.
type DatedValue struct {
	Day   time.Time
	Value float64
}

// TimeSeriesChart asks for both measures of one country plotted over time.
// Vaccinations and ExcessDeaths are aligned: index i is the same day.
type TimeSeriesChart struct {
	Country      string
	Title        string
	Vaccinations []DatedValue
	ExcessDeaths []DatedValue
}

// RegressionChart asks for the samples of one country as a scatter with the
// fitted line. Fitted[i] is the model's prediction at Points[i].X.
type RegressionChart struct {
	Country string
	Title   string
	Points  []regression.Point
	Fitted  []float64
	Model   regression.Model
}

// TimeSeries builds the time-series request for country's joined rows.
func TimeSeries(country string, records []dataset.JoinedRecord) TimeSeriesChart {
	c := TimeSeriesChart{
		Country:      country,
		Title:        fmt.Sprintf("%s - Vaccination and Excess Deaths Over Time", country),
		Vaccinations: make([]DatedValue, len(records)),
		ExcessDeaths: make([]DatedValue, len(records)),
	}
	for i, r := range records {
		c.Vaccinations[i] = DatedValue{Day: r.Day, Value: r.VaxPerMillion}
		c.ExcessDeaths[i] = DatedValue{Day: r.Day, Value: r.ExcessDeathsPer100k}
	}
	return c
}

// Regression builds the regression request for points fitted by m.
func Regression(country string, points []regression.Point, m regression.Model) RegressionChart {
	c := RegressionChart{
		Country: country,
		Title:   fmt.Sprintf("%s - Regression Analysis", country),
		Points:  append([]regression.Point(nil), points...),
		Fitted:  make([]float64, len(points)),
		Model:   m,
	}
	for i, p := range points {
		c.Fitted[i] = m.Predict(p.X)
	}
	return c
}

// Points converts joined rows into regression samples: vaccination rate as
// the predictor, excess deaths as the response.
func Points(records []dataset.JoinedRecord) []regression.Point {
	out := make([]regression.Point, len(records))
	for i, r := range records {
		out[i] = regression.Point{X: r.VaxPerMillion, Y: r.ExcessDeathsPer100k}
	}
	return out
}

// Renderer draws chart requests.
type Renderer interface {
	RenderTimeSeries(ctx context.Context, c TimeSeriesChart) error
	RenderRegression(ctx context.Context, c RegressionChart) error
}

// Discard is a Renderer that draws nothing.
var Discard Renderer = discard{}

type discard struct{}

func (discard) RenderTimeSeries(context.Context, TimeSeriesChart) error { return nil }
func (discard) RenderRegression(context.Context, RegressionChart) error { return nil }
