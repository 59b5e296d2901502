// Package chart draws the time-series and regression charts as PNG images.
package chart

import (
	"bytes"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/JonMunkholm/excessdeaths/internal/report"
)

// Style defines the canvas and colors of a chart.
type Style struct {
	Width      int
	Height     int
	Padding    float64 // outer margin, room for title and axis labels
	GridLines  int
	Background [3]float64
	Grid       [4]float64 // RGBA
	Vax        [3]float64
	Excess     [3]float64
	Scatter    [4]float64 // RGBA
	Fit        [3]float64
}

// DefaultStyle matches the proportions of the analysis notebooks: wide time
// series, slightly narrower scatter, blue for vaccinations, red for deaths
// and for the fitted line.
func DefaultStyle() Style {
	return Style{
		Width:      1200,
		Height:     600,
		Padding:    70,
		GridLines:  5,
		Background: [3]float64{1, 1, 1},
		Grid:       [4]float64{0.8, 0.8, 0.8, 1},
		Vax:        [3]float64{0.12, 0.47, 0.71},
		Excess:     [3]float64{0.84, 0.15, 0.16},
		Scatter:    [4]float64{0.12, 0.47, 0.71, 0.5},
		Fit:        [3]float64{0.84, 0.15, 0.16},
	}
}

// Generator renders chart requests to PNG bytes.
type Generator struct {
	style Style
	title font.Face
	body  font.Face
}

// NewGenerator parses the embedded Go fonts and returns a generator using
// style.
func NewGenerator(style Style) (*Generator, error) {
	title, err := loadFont(gobold.TTF, 16)
	if err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}
	body, err := loadFont(goregular.TTF, 12)
	if err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}
	return &Generator{style: style, title: title, body: body}, nil
}

// TimeSeriesPNG draws both measures of c against date on a shared axis.
func (g *Generator) TimeSeriesPNG(c report.TimeSeriesChart) ([]byte, error) {
	start := time.Now()
	defer func() {
		slog.Debug("time series chart rendered",
			"country", c.Country,
			"points", len(c.Vaccinations),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()

	var xs, ys []float64
	for _, series := range [][]report.DatedValue{c.Vaccinations, c.ExcessDeaths} {
		for _, v := range series {
			xs = append(xs, dayValue(v.Day))
			ys = append(ys, v.Value)
		}
	}

	p := g.newPlot(c.Title, report.LabelDate, report.LabelRate, xs, ys)
	p.xTick = func(x float64) string { return dayFromValue(x).Format("2006-01") }

	p.drawFrame()
	if len(xs) > 0 {
		p.drawSeries(c.Vaccinations, g.style.Vax)
		p.drawSeries(c.ExcessDeaths, g.style.Excess)
	}
	p.drawLegend([]legendEntry{
		{label: report.LabelVaxSeries, color: g.style.Vax},
		{label: report.LabelExcessSeries, color: g.style.Excess},
	})
	return p.encode()
}

// RegressionPNG draws the samples of c as a scatter with the fitted line.
func (g *Generator) RegressionPNG(c report.RegressionChart) ([]byte, error) {
	start := time.Now()
	defer func() {
		slog.Debug("regression chart rendered",
			"country", c.Country,
			"points", len(c.Points),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()

	xs := make([]float64, 0, len(c.Points))
	ys := make([]float64, 0, 2*len(c.Points))
	for i, pt := range c.Points {
		xs = append(xs, pt.X)
		ys = append(ys, pt.Y)
		if i < len(c.Fitted) {
			ys = append(ys, c.Fitted[i])
		}
	}

	p := g.newPlot(c.Title, report.LabelVaxAxis, report.LabelExcessAxis, xs, ys)
	p.drawFrame()

	dc := p.dc
	s := g.style.Scatter
	dc.SetRGBA(s[0], s[1], s[2], s[3])
	for _, pt := range c.Points {
		dc.DrawCircle(p.px(pt.X), p.py(pt.Y), 3)
		dc.Fill()
	}

	if lo, hi, ok := bounds(xs); ok && len(c.Fitted) == len(c.Points) {
		dc.SetRGB(g.style.Fit[0], g.style.Fit[1], g.style.Fit[2])
		dc.SetLineWidth(2)
		dc.DrawLine(p.px(lo), p.py(c.Model.Predict(lo)), p.px(hi), p.py(c.Model.Predict(hi)))
		dc.Stroke()
	}

	p.drawLegend([]legendEntry{
		{label: c.Country + " Data", color: [3]float64{s[0], s[1], s[2]}, dot: true},
		{label: report.LabelRegressionFit, color: g.style.Fit},
	})
	return p.encode()
}

// plot maps data coordinates onto the canvas area inside the padding.
type plot struct {
	g              *Generator
	dc             *gg.Context
	title          string
	xLabel, yLabel string
	x0, x1, y0, y1 float64
	xTick          func(float64) string
}

func (g *Generator) newPlot(title, xLabel, yLabel string, xs, ys []float64) *plot {
	p := &plot{
		g:      g,
		dc:     gg.NewContext(g.style.Width, g.style.Height),
		title:  title,
		xLabel: xLabel,
		yLabel: yLabel,
		xTick:  func(x float64) string { return formatTick(x) },
	}
	p.x0, p.x1 = padded(xs)
	p.y0, p.y1 = padded(ys)
	return p
}

func (p *plot) left() float64   { return p.g.style.Padding }
func (p *plot) right() float64  { return float64(p.g.style.Width) - p.g.style.Padding/2 }
func (p *plot) top() float64    { return p.g.style.Padding / 1.5 }
func (p *plot) bottom() float64 { return float64(p.g.style.Height) - p.g.style.Padding }

func (p *plot) px(x float64) float64 {
	return p.left() + (x-p.x0)/(p.x1-p.x0)*(p.right()-p.left())
}

func (p *plot) py(y float64) float64 {
	return p.bottom() - (y-p.y0)/(p.y1-p.y0)*(p.bottom()-p.top())
}

func (p *plot) drawFrame() {
	dc, st := p.dc, p.g.style
	dc.SetRGB(st.Background[0], st.Background[1], st.Background[2])
	dc.Clear()

	dc.SetFontFace(p.g.body)
	dc.SetLineWidth(1)
	for i := 0; i <= st.GridLines; i++ {
		f := float64(i) / float64(st.GridLines)
		x := p.x0 + f*(p.x1-p.x0)
		y := p.y0 + f*(p.y1-p.y0)

		dc.SetRGBA(st.Grid[0], st.Grid[1], st.Grid[2], st.Grid[3])
		dc.DrawLine(p.px(x), p.top(), p.px(x), p.bottom())
		dc.DrawLine(p.left(), p.py(y), p.right(), p.py(y))
		dc.Stroke()

		dc.SetRGB(0.2, 0.2, 0.2)
		dc.DrawStringAnchored(p.xTick(x), p.px(x), p.bottom()+14, 0.5, 0.5)
		dc.DrawStringAnchored(formatTick(y), p.left()-8, p.py(y), 1, 0.5)
	}

	dc.SetRGB(0, 0, 0)
	dc.DrawRectangle(p.left(), p.top(), p.right()-p.left(), p.bottom()-p.top())
	dc.Stroke()

	dc.DrawStringAnchored(p.xLabel, (p.left()+p.right())/2, p.bottom()+38, 0.5, 0.5)
	dc.Push()
	dc.RotateAbout(gg.Radians(-90), 16, (p.top()+p.bottom())/2)
	dc.DrawStringAnchored(p.yLabel, 16, (p.top()+p.bottom())/2, 0.5, 0.5)
	dc.Pop()

	dc.SetFontFace(p.g.title)
	dc.DrawStringAnchored(p.title, float64(st.Width)/2, p.top()/2, 0.5, 0.5)
	dc.SetFontFace(p.g.body)
}

func (p *plot) drawSeries(series []report.DatedValue, color [3]float64) {
	if len(series) == 0 {
		return
	}
	dc := p.dc
	dc.SetRGB(color[0], color[1], color[2])
	dc.SetLineWidth(2)
	dc.MoveTo(p.px(dayValue(series[0].Day)), p.py(series[0].Value))
	for _, v := range series[1:] {
		dc.LineTo(p.px(dayValue(v.Day)), p.py(v.Value))
	}
	dc.Stroke()
}

type legendEntry struct {
	label string
	color [3]float64
	dot   bool
}

func (p *plot) drawLegend(entries []legendEntry) {
	dc := p.dc
	x, y := p.left()+12, p.top()+16
	for _, e := range entries {
		dc.SetRGB(e.color[0], e.color[1], e.color[2])
		if e.dot {
			dc.DrawCircle(x+10, y, 4)
			dc.Fill()
		} else {
			dc.SetLineWidth(2)
			dc.DrawLine(x, y, x+20, y)
			dc.Stroke()
		}
		dc.SetRGB(0.1, 0.1, 0.1)
		dc.DrawStringAnchored(e.label, x+28, y, 0, 0.35)
		y += 18
	}
}

func (p *plot) encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// padded returns an axis range covering values with a 5% margin. Empty or
// constant input still yields a non-empty range.
func padded(values []float64) (float64, float64) {
	lo, hi, ok := bounds(values)
	if !ok {
		return 0, 1
	}
	if lo == hi {
		return lo - 1, hi + 1
	}
	margin := (hi - lo) * 0.05
	return lo - margin, hi + margin
}

func bounds(values []float64) (lo, hi float64, ok bool) {
	if len(values) == 0 {
		return 0, 0, false
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi, true
}

func formatTick(v float64) string {
	switch a := math.Abs(v); {
	case a >= 1e4:
		return fmt.Sprintf("%.0fk", v/1e3)
	case a >= 100:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%.1f", v)
	}
}

// Dates are plotted as days since the Unix epoch.
func dayValue(t time.Time) float64 {
	return float64(t.Unix()) / 86400
}

func dayFromValue(v float64) time.Time {
	return time.Unix(int64(v*86400), 0).UTC()
}

// loadFont loads a font from byte data
func loadFont(fontData []byte, size float64) (font.Face, error) {
	f, err := truetype.Parse(fontData)
	if err != nil {
		return nil, err
	}
	face := truetype.NewFace(f, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	return face, nil
}
