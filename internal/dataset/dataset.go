// Package dataset knows the shape of the two source datasets (daily vaccine
// doses and cumulative excess deaths, one row per country-day) and turns them
// into the joined, analysis-ready table.
package dataset

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/excessdeaths/internal/table"
)

// Join keys shared by both datasets.
const (
	ColEntity = "Entity"
	ColDay    = "Day"
)

// Short column identifiers used after normalization.
const (
	ColVaxPerMillion       = "vax_per_million"
	ColExcessDeathsPer100k = "excess_deaths_per_100k"
	ColCovidDeathsPer100k  = "covid_deaths_per_100k"
)

// Source headers as published.
const (
	HeaderVaxPerMillion       = "COVID-19 doses (daily, 7-day average, per million people)"
	HeaderExcessDeathsPer100k = "Cumulative excess deaths per 100,000 people (central estimate)"
	HeaderCovidDeathsPer100k  = "Total confirmed deaths due to COVID-19 per 100,000 people"
)

// VaccinationRenames maps the vaccination dataset's headers to identifiers.
var VaccinationRenames = map[string]string{
	HeaderVaxPerMillion: ColVaxPerMillion,
}

// DeathRenames maps the mortality dataset's headers to identifiers.
var DeathRenames = map[string]string{
	HeaderExcessDeathsPer100k: ColExcessDeathsPer100k,
	HeaderCovidDeathsPer100k:  ColCovidDeathsPer100k,
}

// ErrUnknownCountry reports a country name absent from the joined table.
var ErrUnknownCountry = errors.New("unknown country")

// RequiredColumns must be non-null for a joined row to enter the analysis.
var RequiredColumns = []string{ColVaxPerMillion, ColExcessDeathsPer100k}

// VaccinationRecord is one country-day of the vaccination dataset.
type VaccinationRecord struct {
	Country       string
	Day           pgtype.Date
	VaxPerMillion pgtype.Float8
}

// DeathRecord is one country-day of the mortality dataset.
type DeathRecord struct {
	Country             string
	Day                 pgtype.Date
	ExcessDeathsPer100k pgtype.Float8
	CovidDeathsPer100k  pgtype.Float8
}

// JoinedRecord is a country-day present in both datasets with both analysis
// values set.
type JoinedRecord struct {
	Country             string
	Day                 time.Time
	VaxPerMillion       float64
	ExcessDeathsPer100k float64
}

// Sources names the two input files. Paths are used as given; callers
// resolve them.
type Sources struct {
	VaccinationFile string
	DeathsFile      string

	// Dedupe keeps only the first row per (Entity, Day) in each source before
	// joining. Off by default, which lets duplicated dates weigh twice.
	Dedupe bool
}

// Prepare normalizes one loaded source: renames headers, parses Day and
// converts the listed measurement columns that are present.
func Prepare(raw *table.Table, renames map[string]string, measures ...string) (*table.Table, error) {
	t, err := table.Normalize(raw, renames, ColDay)
	if err != nil {
		return nil, err
	}
	present := make([]string, 0, len(measures))
	for _, m := range measures {
		if _, ok := t.Column(m); ok {
			present = append(present, m)
		}
	}
	return t.ConvertFloats(present...)
}

// Build joins normalized vaccination and death tables on (Entity, Day) and
// drops rows missing either analysis value. Both tables must carry their
// required measurement column. inspect, when non-nil, sees the joined table
// before the drop.
func Build(vax, deaths *table.Table, dedupe bool, inspect func(joined *table.Table)) (*table.Table, error) {
	if _, ok := vax.Column(ColVaxPerMillion); !ok {
		return nil, &table.ParseError{Column: ColVaxPerMillion, Kind: table.KindFloat}
	}
	if _, ok := deaths.Column(ColExcessDeathsPer100k); !ok {
		return nil, &table.ParseError{Column: ColExcessDeathsPer100k, Kind: table.KindFloat}
	}

	if dedupe {
		var err error
		if vax, err = vax.DistinctOn(ColEntity, ColDay); err != nil {
			return nil, err
		}
		if deaths, err = deaths.DistinctOn(ColEntity, ColDay); err != nil {
			return nil, err
		}
	}

	joined, err := table.InnerJoin(vax, deaths, ColEntity, ColDay)
	if err != nil {
		return nil, err
	}
	if inspect != nil {
		inspect(joined)
	}
	return joined.DropNulls(RequiredColumns...)
}

// Select returns the joined rows for one country, by exact name, in table
// order. No match is an empty slice, not an error.
func Select(joined *table.Table, country string) ([]JoinedRecord, error) {
	rows := joined.Where(ColEntity, country)
	out := make([]JoinedRecord, 0, rows.Len())
	for i := 0; i < rows.Len(); i++ {
		day, err := rows.Date(ColDay, i)
		if err != nil {
			return nil, err
		}
		vax, err := rows.Float(ColVaxPerMillion, i)
		if err != nil {
			return nil, err
		}
		excess, err := rows.Float(ColExcessDeathsPer100k, i)
		if err != nil {
			return nil, err
		}
		if !day.Valid || !vax.Valid || !excess.Valid {
			return nil, fmt.Errorf("select %s: row %d has nulls; table was not built with Build", country, i+1)
		}
		out = append(out, JoinedRecord{
			Country:             country,
			Day:                 day.Time,
			VaxPerMillion:       vax.Float64,
			ExcessDeathsPer100k: excess.Float64,
		})
	}
	return out, nil
}

// Countries returns the sorted distinct country names of a joined table.
func Countries(joined *table.Table) ([]string, error) {
	return joined.Unique(ColEntity)
}
