package dataset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/excessdeaths/internal/table"
)

const vaxCSV = `Entity,Code,Day,COVID-19 doses (daily, 7-day average, per million people)
India,IND,2021-01-01,100
India,IND,2021-01-02,200
India,IND,2021-01-03,
Chile,CHL,2021-01-01,50
Chile,CHL,2021-01-01,55
USA,USA,2021-01-01,70
`

const deathsCSV = `Entity,Code,Day,Cumulative excess deaths per 100,000 people (central estimate),Total confirmed deaths due to COVID-19 per 100,000 people
India,IND,2021-01-01,1.5,0.5
India,IND,2021-01-02,2.5,
India,IND,2021-01-03,3.5,0.7
Chile,CHL,2021-01-01,9,1
United States,USA,2021-01-01,4,2
`

// Headers above contain commas, so they are quoted when written.
func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(quoteHeader(content)), 0o644))
	return path
}

func quoteHeader(content string) string {
	for _, h := range []string{HeaderVaxPerMillion, HeaderExcessDeathsPer100k, HeaderCovidDeathsPer100k} {
		content = strings.Replace(content, h, `"`+h+`"`, 1)
	}
	return content
}

func sources(t *testing.T) Sources {
	return Sources{
		VaccinationFile: writeCSV(t, "vax.csv", vaxCSV),
		DeathsFile:      writeCSV(t, "deaths.csv", deathsCSV),
	}
}

func TestLoad(t *testing.T) {
	joined, err := Load(context.Background(), sources(t))
	require.NoError(t, err)

	// India day 3 has no vaccination value; Chile's duplicate day joins twice;
	// USA and United States are different entities.
	assert.Equal(t, 4, joined.Len())

	countries, err := Countries(joined)
	require.NoError(t, err)
	assert.Equal(t, []string{"Chile", "India"}, countries)

	assert.Contains(t, joined.Columns(), ColCovidDeathsPer100k)
	assert.Contains(t, joined.Columns(), "Code_x")
	assert.Contains(t, joined.Columns(), "Code_y")
}

func TestLoad_Dedupe(t *testing.T) {
	src := sources(t)
	src.Dedupe = true

	joined, err := Load(context.Background(), src)
	require.NoError(t, err)

	chile, err := Select(joined, "Chile")
	require.NoError(t, err)
	require.Len(t, chile, 1)
	assert.Equal(t, 50.0, chile[0].VaxPerMillion)
}

func TestLoad_Errors(t *testing.T) {
	src := sources(t)
	src.DeathsFile = filepath.Join(t.TempDir(), "missing.csv")

	_, err := Load(context.Background(), src)
	var loadErr *table.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	src = sources(t)
	src.VaccinationFile = writeCSV(t, "bad.csv", "Entity,Day,"+HeaderVaxPerMillion+"\nIndia,someday,1\n")
	_, err = Load(context.Background(), src)
	var parseErr *table.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, ColDay, parseErr.Column)
	assert.Equal(t, 1, parseErr.Row)
}

func TestBuild_MissingMeasure(t *testing.T) {
	raw, err := table.New("vax", table.TextColumn(ColEntity, "India"), table.TextColumn(ColDay, "2021-01-01"))
	require.NoError(t, err)
	prepared, err := Prepare(raw, VaccinationRenames, ColVaxPerMillion)
	require.NoError(t, err)

	_, err = Build(prepared, prepared, false, nil)
	var parseErr *table.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, ColVaxPerMillion, parseErr.Column)
	assert.Zero(t, parseErr.Row)
}

func TestBuild_InspectSeesRowsBeforeDrop(t *testing.T) {
	rawVax, err := table.Load(writeCSV(t, "vax.csv", vaxCSV))
	require.NoError(t, err)
	vax, err := Prepare(rawVax, VaccinationRenames, ColVaxPerMillion)
	require.NoError(t, err)
	rawDeaths, err := table.Load(writeCSV(t, "deaths.csv", deathsCSV))
	require.NoError(t, err)
	deaths, err := Prepare(rawDeaths, DeathRenames, ColExcessDeathsPer100k, ColCovidDeathsPer100k)
	require.NoError(t, err)

	var before int
	var vaxNulls int
	joined, err := Build(vax, deaths, false, func(j *table.Table) {
		before = j.Len()
		for _, nc := range j.NullCounts() {
			if nc.Column == ColVaxPerMillion {
				vaxNulls = nc.Nulls
			}
		}
	})
	require.NoError(t, err)

	assert.Equal(t, 5, before)
	assert.Equal(t, 1, vaxNulls)
	assert.Equal(t, 4, joined.Len())
}

func TestCoverage(t *testing.T) {
	raw, err := table.Load(writeCSV(t, "vax.csv", vaxCSV))
	require.NoError(t, err)
	vax, err := Prepare(raw, VaccinationRenames, ColVaxPerMillion)
	require.NoError(t, err)
	vrecs, err := Vaccinations(vax)
	require.NoError(t, err)
	assert.Equal(t, Coverage{Rows: 6, Countries: 3, Missing: 1}, VaccinationCoverage(vrecs))

	raw, err = table.Load(writeCSV(t, "deaths.csv", deathsCSV))
	require.NoError(t, err)
	deaths, err := Prepare(raw, DeathRenames, ColExcessDeathsPer100k, ColCovidDeathsPer100k)
	require.NoError(t, err)
	drecs, err := Deaths(deaths)
	require.NoError(t, err)
	assert.Equal(t, Coverage{Rows: 5, Countries: 3, Missing: 0}, DeathCoverage(drecs))

	assert.Equal(t, Coverage{}, VaccinationCoverage(nil))
}

func TestSelect(t *testing.T) {
	joined, err := Load(context.Background(), sources(t))
	require.NoError(t, err)

	india, err := Select(joined, "India")
	require.NoError(t, err)
	want := []JoinedRecord{
		{Country: "India", Day: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), VaxPerMillion: 100, ExcessDeathsPer100k: 1.5},
		{Country: "India", Day: time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC), VaxPerMillion: 200, ExcessDeathsPer100k: 2.5},
	}
	assert.Equal(t, want, india)

	for _, name := range []string{"india", "USA", "United States", "Atlantis"} {
		got, err := Select(joined, name)
		require.NoError(t, err)
		assert.Empty(t, got, "Select(%q)", name)
	}
}

func TestRecords(t *testing.T) {
	raw, err := table.Load(writeCSV(t, "deaths.csv", deathsCSV))
	require.NoError(t, err)
	deaths, err := Prepare(raw, DeathRenames, ColExcessDeathsPer100k, ColCovidDeathsPer100k)
	require.NoError(t, err)

	recs, err := Deaths(deaths)
	require.NoError(t, err)
	require.Len(t, recs, 5)
	assert.Equal(t, "India", recs[1].Country)
	assert.Equal(t, table.DateOf(2021, 1, 2), recs[1].Day)
	assert.True(t, recs[1].ExcessDeathsPer100k.Valid)
	assert.False(t, recs[1].CovidDeathsPer100k.Valid)

	raw, err = table.Load(writeCSV(t, "vax.csv", vaxCSV))
	require.NoError(t, err)
	vax, err := Prepare(raw, VaccinationRenames, ColVaxPerMillion)
	require.NoError(t, err)

	vrecs, err := Vaccinations(vax)
	require.NoError(t, err)
	require.Len(t, vrecs, 6)
	assert.False(t, vrecs[2].VaxPerMillion.Valid)
	assert.Equal(t, 55.0, vrecs[4].VaxPerMillion.Float64)
}
