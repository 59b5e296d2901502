package main

//
// Dashboard
//

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/excessdeaths/internal/dataset"
	"github.com/JonMunkholm/excessdeaths/internal/pipeline"
	"github.com/JonMunkholm/excessdeaths/internal/store"
	"github.com/JonMunkholm/excessdeaths/internal/web"
)

// serveSubcommand returns the serve subcommand.
func serveSubcommand(g *globals) *cobra.Command {
	s := &server{g: g}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the per-country dashboard",
		Args:  cobra.NoArgs,
		RunE:  s.main,
	}

	flags := cmd.Flags()
	flags.StringVar(&s.host, "host", "", "interface to bind (env SERVER_HOST)")
	flags.IntVar(&s.port, "port", 0, "port to listen on (env SERVER_PORT)")
	flags.IntVar(&s.minSamples, "min-samples", pipeline.InteractiveMinSamples, "fewest joined rows a country needs for a fit")
	return cmd
}

// server holds the serve flags.
type server struct {
	g *globals

	host       string
	port       int
	minSamples int
}

// main is the main function of the serve subcommand.
func (s *server) main(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := s.g.cfg
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = s.host
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = s.port
	}

	joined, err := dataset.Load(ctx, sources(s.g))
	if err != nil {
		return err
	}

	opts := web.Options{
		ExportCountries: cfg.Analysis.Countries,
		MinSampleSize:   s.minSamples,
		Server:          cfg.Server,
	}
	if cfg.Database.Enabled() {
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		opts.Store = store.New(pool)
		if err := opts.Store.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	srv, err := web.NewServer(joined, opts)
	if err != nil {
		return err
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := srv.Start(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("server stopped")
	return nil
}
