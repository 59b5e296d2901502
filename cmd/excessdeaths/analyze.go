package main

//
// Batch analysis
//

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/excessdeaths/internal/pipeline"
	"github.com/JonMunkholm/excessdeaths/internal/report"
	"github.com/JonMunkholm/excessdeaths/internal/store"
)

// analyzeSubcommand returns the analyze subcommand.
func analyzeSubcommand(g *globals) *cobra.Command {
	a := &analyzer{g: g}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Fit every selected country and export regression_results.csv",
		Args:  cobra.NoArgs,
		RunE:  a.main,
	}

	flags := cmd.Flags()
	flags.StringVarP(&a.output, "output", "o", "", "results CSV path (env OUTPUT_FILE)")
	flags.StringVar(&a.chartDir, "chart-dir", "", "directory for PNG charts; empty disables them (env CHART_DIR)")
	flags.StringArrayVarP(&a.countries, "country", "c", nil, "country to analyze; repeat for several (env COUNTRIES)")
	flags.IntVar(&a.minSamples, "min-samples", 0, "fewest joined rows a country needs (env MIN_SAMPLE_SIZE)")
	flags.BoolVar(&a.store, "store", false, "also save the results to the database at DATABASE_URL")
	return cmd
}

// analyzer holds the analyze flags.
type analyzer struct {
	g *globals

	output     string
	chartDir   string
	countries  []string
	minSamples int
	store      bool
}

// params merges the configuration with the flags that were set.
func (a *analyzer) params(cmd *cobra.Command) (pipeline.Params, error) {
	cfg := a.g.cfg
	p := pipeline.Params{
		VaccinationFile: cfg.Data.VaccinationFile,
		DeathsFile:      cfg.Data.DeathsFile,
		OutputFile:      cfg.Data.OutputFile,
		ChartDir:        cfg.Data.ChartDir,
		Countries:       cfg.Analysis.Countries,
		MinSampleSize:   cfg.Analysis.MinSampleSize,
		Dedupe:          cfg.Analysis.Dedupe,
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		p.OutputFile = a.output
	}
	if flags.Changed("chart-dir") {
		p.ChartDir = a.chartDir
	}
	if flags.Changed("country") {
		p.Countries = a.countries
	}
	if flags.Changed("min-samples") {
		p.MinSampleSize = a.minSamples
	}
	if len(p.Countries) == 0 {
		p.Countries = pipeline.DefaultCountries
	}

	// The flags above bypass the resolution done when loading config.
	return p, resolvePaths(&p.OutputFile, &p.ChartDir)
}

// main is the main function of the analyze subcommand.
func (a *analyzer) main(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if a.store && !a.g.cfg.Database.Enabled() {
		return store.ErrDisabled
	}

	p, err := a.params(cmd)
	if err != nil {
		return err
	}

	out, err := pipeline.Run(ctx, p, nil)
	if err != nil {
		return err
	}
	if err := printOutcome(cmd.OutOrStdout(), p.Countries, out); err != nil {
		return err
	}
	if p.OutputFile != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "\nRegression results saved to %s\n", p.OutputFile)
	}
	if p.ChartDir != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Charts saved to %s\n", p.ChartDir)
	}

	if !a.store {
		return nil
	}
	runID, err := uuid.Parse(out.RunID)
	if err != nil {
		return fmt.Errorf("run id: %w", err)
	}
	pool, err := store.Connect(ctx, a.g.cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	s := store.New(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := s.SaveRun(ctx, runID, out.Results); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), storedMessage(runID, len(out.Results)))
	return nil
}

// storedMessage reports a saved run. A run where every country was skipped
// is still recorded, with no results.
func storedMessage(runID uuid.UUID, results int) string {
	if results == 0 {
		return fmt.Sprintf("Saved run %s to the database with no results; every country was skipped", runID)
	}
	return fmt.Sprintf("Saved run %s to the database with %d results", runID, results)
}

// printOutcome writes a summary or a skip line per country, in the order
// they were requested.
func printOutcome(w io.Writer, countries []string, out *pipeline.Outcome) error {
	analyses := make(map[string]report.Result, len(out.Analyses))
	for _, a := range out.Analyses {
		analyses[a.Country] = a.Result
	}
	skips := make(map[string]pipeline.Skip, len(out.Skips))
	for _, s := range out.Skips {
		skips[s.Country] = s
	}

	for _, c := range countries {
		if r, ok := analyses[c]; ok {
			if _, err := fmt.Fprintf(w, "\nAnalyzing %s...\n", c); err != nil {
				return err
			}
			if err := report.WriteSummary(w, r); err != nil {
				return err
			}
			continue
		}
		if s, ok := skips[c]; ok {
			if _, err := fmt.Fprintln(w, s.Message()); err != nil {
				return err
			}
			continue
		}
		return errors.New("no outcome for " + c)
	}
	return nil
}
