package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/excessdeaths/internal/dataset"
)

// countriesSubcommand returns the countries subcommand, which lists every
// country present in both sources after the join.
func countriesSubcommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "countries",
		Short: "List the countries available for analysis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			joined, err := dataset.Load(cmd.Context(), sources(g))
			if err != nil {
				return err
			}
			countries, err := dataset.Countries(joined)
			if err != nil {
				return err
			}
			for _, c := range countries {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}
}

func sources(g *globals) dataset.Sources {
	return dataset.Sources{
		VaccinationFile: g.cfg.Data.VaccinationFile,
		DeathsFile:      g.cfg.Data.DeathsFile,
		Dedupe:          g.cfg.Analysis.Dedupe,
	}
}
