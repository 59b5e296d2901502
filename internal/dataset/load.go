package dataset

import (
	"context"

	"github.com/JonMunkholm/excessdeaths/internal/logging"
	"github.com/JonMunkholm/excessdeaths/internal/table"
)

// Load reads both source files and returns the joined table. Any load or
// parse failure is returned as is (*table.LoadError, *table.ParseError).
func Load(ctx context.Context, src Sources) (*table.Table, error) {
	logger := logging.FromContext(ctx)

	rawVax, err := table.Load(src.VaccinationFile)
	if err != nil {
		return nil, err
	}
	rawDeaths, err := table.Load(src.DeathsFile)
	if err != nil {
		return nil, err
	}
	logger.Info("sources loaded",
		"vaccination_file", src.VaccinationFile,
		"vaccination_rows", rawVax.Len(),
		"deaths_file", src.DeathsFile,
		"deaths_rows", rawDeaths.Len(),
	)

	vax, err := Prepare(rawVax, VaccinationRenames, ColVaxPerMillion)
	if err != nil {
		return nil, err
	}
	deaths, err := Prepare(rawDeaths, DeathRenames, ColExcessDeathsPer100k, ColCovidDeathsPer100k)
	if err != nil {
		return nil, err
	}

	vaxRecords, err := Vaccinations(vax)
	if err != nil {
		return nil, err
	}
	deathRecords, err := Deaths(deaths)
	if err != nil {
		return nil, err
	}
	vc, dc := VaccinationCoverage(vaxRecords), DeathCoverage(deathRecords)
	logger.Info("source coverage",
		"vaccination_countries", vc.Countries,
		"vaccination_missing", vc.Missing,
		"deaths_countries", dc.Countries,
		"deaths_missing", dc.Missing,
	)

	if src.Dedupe {
		logger.Info("deduplicating sources on (Entity, Day)")
	}
	joined, err := Build(vax, deaths, src.Dedupe, func(joined *table.Table) {
		for _, nc := range joined.NullCounts() {
			if nc.Nulls > 0 {
				logger.Info("missing values after join", "column", nc.Column, "nulls", nc.Nulls)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	logger.Info("sources joined", "rows", joined.Len())
	return joined, nil
}

// Coverage summarizes one prepared source.
type Coverage struct {
	Rows      int
	Countries int
	Missing   int // rows whose measurement is null
}

// VaccinationCoverage counts countries and missing doses in recs.
func VaccinationCoverage(recs []VaccinationRecord) Coverage {
	c := Coverage{Rows: len(recs)}
	seen := make(map[string]struct{})
	for _, r := range recs {
		seen[r.Country] = struct{}{}
		if !r.VaxPerMillion.Valid {
			c.Missing++
		}
	}
	c.Countries = len(seen)
	return c
}

// DeathCoverage counts countries and missing excess death estimates in recs.
func DeathCoverage(recs []DeathRecord) Coverage {
	c := Coverage{Rows: len(recs)}
	seen := make(map[string]struct{})
	for _, r := range recs {
		seen[r.Country] = struct{}{}
		if !r.ExcessDeathsPer100k.Valid {
			c.Missing++
		}
	}
	c.Countries = len(seen)
	return c
}

// Vaccinations converts a prepared vaccination table into records.
func Vaccinations(t *table.Table) ([]VaccinationRecord, error) {
	out := make([]VaccinationRecord, t.Len())
	for i := range out {
		country, err := t.Text(ColEntity, i)
		if err != nil {
			return nil, err
		}
		day, err := t.Date(ColDay, i)
		if err != nil {
			return nil, err
		}
		vax, err := t.Float(ColVaxPerMillion, i)
		if err != nil {
			return nil, err
		}
		out[i] = VaccinationRecord{Country: country.String, Day: day, VaxPerMillion: vax}
	}
	return out, nil
}

// Deaths converts a prepared mortality table into records. The confirmed
// COVID-19 death rate is optional in the source and left null when absent.
func Deaths(t *table.Table) ([]DeathRecord, error) {
	_, hasCovid := t.Column(ColCovidDeathsPer100k)
	out := make([]DeathRecord, t.Len())
	for i := range out {
		country, err := t.Text(ColEntity, i)
		if err != nil {
			return nil, err
		}
		day, err := t.Date(ColDay, i)
		if err != nil {
			return nil, err
		}
		excess, err := t.Float(ColExcessDeathsPer100k, i)
		if err != nil {
			return nil, err
		}
		rec := DeathRecord{Country: country.String, Day: day, ExcessDeathsPer100k: excess}
		if hasCovid {
			if rec.CovidDeathsPer100k, err = t.Float(ColCovidDeathsPer100k, i); err != nil {
				return nil, err
			}
		}
		out[i] = rec
	}
	return out, nil
}
