package web

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/excessdeaths/internal/apperr"
	"github.com/JonMunkholm/excessdeaths/internal/dataset"
	"github.com/JonMunkholm/excessdeaths/internal/pipeline"
	"github.com/JonMunkholm/excessdeaths/internal/report"
	"github.com/JonMunkholm/excessdeaths/internal/store"
	"github.com/JonMunkholm/excessdeaths/internal/web/templates"
)

// AnalysisResponse is the JSON body of /api/analysis/{country}.
type AnalysisResponse struct {
	Country   string  `json:"country"`
	Rows      int     `json:"rows"`
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RSquared  float64 `json:"r_squared"`
}

const noCountriesNotice = "No countries appear in both datasets."

// skippedHeader lists the countries an export left out, as
// country=CODE pairs separated by "; ". Country names are path-escaped.
const skippedHeader = "X-Skipped-Countries"

// RunResponse is the JSON body of /api/runs/latest.
type RunResponse struct {
	RunID     string          `json:"run_id"`
	CreatedAt string          `json:"created_at"`
	Results   []report.Result `json:"results"`
}

// countryParam returns the decoded {country} path segment.
func countryParam(r *http.Request) string {
	raw := chi.URLParam(r, "country")
	if c, err := url.PathUnescape(raw); err == nil {
		return c
	}
	return raw
}

func (s *Server) known(country string) bool {
	for _, c := range s.countries {
		if c == country {
			return true
		}
	}
	return false
}

// handleDashboard renders the page for ?country=, defaulting to the first
// country in the sorted list.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	selected := r.URL.Query().Get("country")
	if selected == "" {
		if len(s.countries) == 0 {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			templates.Dashboard(templates.DashboardData{Notice: noCountriesNotice}).Render(ctx, w)
			return
		}
		selected = s.countries[0]
	}
	if !s.known(selected) {
		s.respondError(w, r, fmt.Errorf("%w: %q", dataset.ErrUnknownCountry, selected), http.StatusNotFound)
		return
	}

	data := templates.DashboardData{Countries: s.countries, Selected: selected}

	a, err := pipeline.AnalyzeCountry(ctx, s.joined, selected, s.opts.MinSampleSize)
	switch {
	case err == nil:
		data.Rows = len(a.Records)
		data.Fitted = true
		data.Slope, data.Intercept, data.RSquared = a.Model.Slope, a.Model.Intercept, a.Model.RSquared
	case statusFor(err) == http.StatusUnprocessableEntity:
		records, selErr := dataset.Select(s.joined, selected)
		if selErr != nil {
			s.respondError(w, r, selErr, http.StatusInternalServerError)
			return
		}
		data.Rows = len(records)
		data.Notice = apperr.MapError(err).Message + "."
	default:
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	templates.Dashboard(data).Render(ctx, w)
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]any{"status": "ok", "countries": len(s.countries), "rows": s.joined.Len()})
}

// handleListCountries returns the sorted country list.
func (s *Server) handleListCountries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string][]string{"countries": s.countries})
}

// handleAnalysis returns one country's coefficients.
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	country := countryParam(r)
	if !s.known(country) {
		s.respondError(w, r, fmt.Errorf("%w: %q", dataset.ErrUnknownCountry, country), http.StatusNotFound)
		return
	}

	a, err := pipeline.AnalyzeCountry(r.Context(), s.joined, country, s.opts.MinSampleSize)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	writeJSON(w, r, AnalysisResponse{
		Country:   country,
		Rows:      len(a.Records),
		Slope:     a.Result.Slope,
		Intercept: a.Result.Intercept,
		RSquared:  a.Result.RSquared,
	})
}

// handleTimeSeriesChart draws the country's series. Unlike the regression it
// needs no minimum sample.
func (s *Server) handleTimeSeriesChart(w http.ResponseWriter, r *http.Request) {
	country := countryParam(r)
	if !s.known(country) {
		s.respondError(w, r, fmt.Errorf("%w: %q", dataset.ErrUnknownCountry, country), http.StatusNotFound)
		return
	}

	records, err := dataset.Select(s.joined, country)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	png, err := s.charts.TimeSeriesPNG(report.TimeSeries(country, records))
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writePNG(w, png)
}

// handleRegressionChart draws the scatter and fitted line.
func (s *Server) handleRegressionChart(w http.ResponseWriter, r *http.Request) {
	country := countryParam(r)
	if !s.known(country) {
		s.respondError(w, r, fmt.Errorf("%w: %q", dataset.ErrUnknownCountry, country), http.StatusNotFound)
		return
	}

	a, err := pipeline.AnalyzeCountry(r.Context(), s.joined, country, s.opts.MinSampleSize)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	png, err := s.charts.RegressionPNG(a.Regression)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writePNG(w, png)
}

// handleExport streams the results CSV for the configured countries.
// Skipped countries are left out of the body, as in a batch run, and named
// in the X-Skipped-Countries header.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	out, err := pipeline.Analyze(r.Context(), s.joined, s.opts.ExportCountries, s.opts.MinSampleSize, report.Discard)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	if len(out.Skips) > 0 {
		w.Header().Set(skippedHeader, skippedList(out.Skips))
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.DefaultFileName))
	if err := report.WriteCSV(w, out.Results); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
	}
}

// handleLatestRun returns the newest stored batch run.
func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		s.respondError(w, r, store.ErrDisabled, http.StatusNotFound)
		return
	}

	run, err := s.opts.Store.LatestRun(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNoRuns) {
			status = http.StatusNotFound
		}
		s.respondError(w, r, err, status)
		return
	}

	writeJSON(w, r, RunResponse{
		RunID:     run.ID.String(),
		CreatedAt: run.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		Results:   run.Results,
	})
}

func skippedList(skips []pipeline.Skip) string {
	parts := make([]string, len(skips))
	for i, sk := range skips {
		parts[i] = url.PathEscape(sk.Country) + "=" + apperr.MapError(sk.Reason).Code
	}
	return strings.Join(parts, "; ")
}

func writePNG(w http.ResponseWriter, png []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Write(png)
}
