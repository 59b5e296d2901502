// Command excessdeaths regresses excess mortality on vaccination rates per
// country, as a batch export or an interactive dashboard.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/excessdeaths/internal/apperr"
	"github.com/JonMunkholm/excessdeaths/internal/config"
	"github.com/JonMunkholm/excessdeaths/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := rootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		fmt.Fprintln(os.Stderr, apperr.FormatUserError(err))
		stop()
		os.Exit(1)
	}
}

// globals are the flags shared by every subcommand.
type globals struct {
	cfg *config.Config

	vaccinationFile string
	deathsFile      string
	dedupe          bool
	logLevel        string
	logFormat       string
}

// rootCommand builds the command tree. Configuration is loaded once, before
// any subcommand runs, and flags given on the command line override it.
func rootCommand() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "excessdeaths",
		Short:         "Relate COVID-19 vaccination rates to excess deaths per country",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.load(cmd, os.LookupEnv)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&g.vaccinationFile, "vaccination-file", "", "daily vaccine doses CSV (env VACCINATION_FILE)")
	flags.StringVar(&g.deathsFile, "deaths-file", "", "cumulative excess deaths CSV (env DEATHS_FILE)")
	flags.BoolVar(&g.dedupe, "dedupe", false, "keep only the first row per country and day in each source (env ANALYSIS_DEDUPE)")
	flags.StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	flags.StringVar(&g.logFormat, "log-format", "", "text or json (env LOG_FORMAT)")

	root.AddCommand(analyzeSubcommand(g))
	root.AddCommand(countriesSubcommand(g))
	root.AddCommand(serveSubcommand(g))
	return root
}

// load reads .env, then the environment through lookup, then the flags.
func (g *globals) load(cmd *cobra.Command, lookup config.LookupFunc) error {
	// Load .env file if it exists (Overload overwrites existing env vars)
	envLoaded := godotenv.Overload() == nil

	cfg, err := config.LoadFrom(lookup)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("vaccination-file") {
		cfg.Data.VaccinationFile = g.vaccinationFile
	}
	if flags.Changed("deaths-file") {
		cfg.Data.DeathsFile = g.deathsFile
	}
	if flags.Changed("dedupe") {
		cfg.Analysis.Dedupe = g.dedupe
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = g.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = g.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	err = resolvePaths(&cfg.Data.VaccinationFile, &cfg.Data.DeathsFile, &cfg.Data.OutputFile, &cfg.Data.ChartDir)
	if err != nil {
		return err
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "env_file", envLoaded, "config", cfg.String())

	g.cfg = cfg
	return nil
}

// resolvePaths makes each non-empty path absolute against the working
// directory, so every subcommand logs and opens the same files.
func resolvePaths(paths ...*string) error {
	for _, path := range paths {
		if *path == "" {
			continue
		}
		abs, err := filepath.Abs(*path)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", *path, err)
		}
		*path = abs
	}
	return nil
}
