// Package templates holds the dashboard's HTML components.
package templates

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/a-h/templ"
)

// DashboardData is everything the dashboard page shows for one country.
type DashboardData struct {
	Countries []string
	Selected  string
	Rows      int

	// Fitted is false when the country was skipped; Notice says why.
	Fitted    bool
	Notice    string
	Slope     float64
	Intercept float64
	RSquared  float64
}

const style = `body{font-family:system-ui,sans-serif;margin:0;display:flex;min-height:100vh;color:#222}
aside{width:240px;padding:1rem;background:#f4f5f7;border-right:1px solid #ddd}
main{flex:1;padding:1.5rem 2rem}
img{max-width:100%;border:1px solid #ddd;margin-bottom:1rem}
.warn{padding:.75rem 1rem;background:#fff4e5;border:1px solid #f0b35a}
.error{padding:.75rem 1rem;background:#fdecea;border:1px solid #e57373}
dl{display:grid;grid-template-columns:max-content auto;gap:.25rem 1rem}
dt{font-weight:600}`

// layout wraps body in the page chrome.
func layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, "<!DOCTYPE html><html lang=\"en\"><head><meta charset=\"utf-8\"><title>%s</title><style>%s</style></head><body>",
			templ.EscapeString(title), style); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</body></html>")
		return err
	})
}

// countryPicker renders the sidebar select, submitting on change.
func countryPicker(countries []string, selected string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<aside><form method="get" action="/"><label for="country">Select a Country</label><br><select id="country" name="country" onchange="this.form.submit()">`); err != nil {
			return err
		}
		for _, c := range countries {
			sel := ""
			if c == selected {
				sel = " selected"
			}
			if _, err := fmt.Fprintf(w, `<option value="%s"%s>%s</option>`, templ.EscapeString(c), sel, templ.EscapeString(c)); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</select> <noscript><button type="submit">Show</button></noscript></form><p><a href="/api/export">Download regression_results.csv</a></p></aside>`)
		return err
	})
}

// Dashboard renders the analysis page for d.Selected. With nothing selected
// it shows only the picker and d.Notice.
func Dashboard(d DashboardData) templ.Component {
	if d.Selected == "" {
		return emptyDashboard(d)
	}
	title := d.Selected + ": Vaccination vs Excess Deaths"
	chartBase := "/chart/" + url.PathEscape(d.Selected)

	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := countryPicker(d.Countries, d.Selected).Render(ctx, w); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "<main><h1>%s</h1><p>%d joined days</p>", templ.EscapeString(title), d.Rows); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, `<h2>Time Series Plot</h2><img src="%s/timeseries.png" alt="%s">`,
			templ.EscapeString(chartBase), templ.EscapeString(d.Selected+" time series")); err != nil {
			return err
		}

		if _, err := io.WriteString(w, "<h2>Linear Regression</h2>"); err != nil {
			return err
		}
		if !d.Fitted {
			_, err := fmt.Fprintf(w, `<p class="warn">%s</p></main>`, templ.EscapeString(d.Notice))
			return err
		}
		_, err := fmt.Fprintf(w, `<img src="%s/regression.png" alt="%s"><dl><dt>Slope</dt><dd>%.4f</dd><dt>Intercept</dt><dd>%.4f</dd><dt>R² Score</dt><dd>%.4f</dd></dl></main>`,
			templ.EscapeString(chartBase), templ.EscapeString(d.Selected+" regression"), d.Slope, d.Intercept, d.RSquared)
		return err
	})

	return layout(title, body)
}

func emptyDashboard(d DashboardData) templ.Component {
	const title = "Vaccination vs Excess Deaths"
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := countryPicker(d.Countries, "").Render(ctx, w); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, `<main><h1>%s</h1><p class="warn">%s</p></main>`, title, templ.EscapeString(d.Notice))
		return err
	})
	return layout(title, body)
}

// ErrorPage renders a full-page error with its support code.
func ErrorPage(message, action, code string) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<main><div class="error" role="alert"><strong>%s</strong> <span>(Code: %s)</span>`,
			templ.EscapeString(message), templ.EscapeString(code))
		if err != nil {
			return err
		}
		if action != "" {
			if _, err := fmt.Fprintf(w, "<p>%s</p>", templ.EscapeString(action)); err != nil {
				return err
			}
		}
		_, err = io.WriteString(w, `</div><p><a href="/">Back to dashboard</a></p></main>`)
		return err
	})
	return layout("Error", body)
}
