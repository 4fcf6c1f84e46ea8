package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"stealthcompany.com/mooshu/internal/api"
	"stealthcompany.com/mooshu/internal/config"
	"stealthcompany.com/mooshu/internal/dal"
	"stealthcompany.com/mooshu/internal/ingest"
	"stealthcompany.com/mooshu/internal/metrics"
	"stealthcompany.com/mooshu/internal/orchestrator"
	"stealthcompany.com/mooshu/internal/patient"
	"stealthcompany.com/mooshu/pkg/zerolog_config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "mooshu-api",
		Short:        "Patient registry API server",
		SilenceUsage: true,
		// serve is the default
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(ingestCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the patient registry API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the collections, indexes or tables the store needs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}

			ctx := commandContext(cmd)
			backend, err := dal.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer backend.Close()

			if err := backend.EnsureSchema(ctx); err != nil {
				return err
			}
			log.Info().Str("driver", cfg.StoreDriver).Msg("Migration complete")
			return nil
		},
	}
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Bulk import patients from a JSON array file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")

			cfg, err := setup()
			if err != nil {
				return err
			}

			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			defer f.Close()

			ctx := commandContext(cmd)
			backend, err := dal.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer backend.Close()

			if cfg.AutoMigrate {
				if err := backend.EnsureSchema(ctx); err != nil {
					return err
				}
			}

			res, err := ingest.Patients(ctx, f, patient.NewService(backend))
			if err != nil {
				return err
			}
			if res.Failed > 0 {
				return fmt.Errorf("%d of %d patients could not be stored", res.Failed, res.Total)
			}
			return nil
		},
	}
	cmd.Flags().String("file", "", "path to a JSON array of patients")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// setup loads configuration and starts the logger.
func setup() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	zerolog_config.SetAppPrefix("mooshu-api")
	if err := zerolog_config.StartupWithEnv(cfg.ElasticsearchURL, cfg.LogIndex, cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("start logger: %w", err)
	}
	return cfg, nil
}

func runServer(parent context.Context) error {
	cfg, err := setup()
	if err != nil {
		return err
	}

	log.Info().Msg("Starting mooshu-api service")

	if parent == nil {
		parent = context.Background()
	}
	sh := orchestrator.NewSignalHandler()
	defer sh.Stop()
	ctx := sh.HandleSignals(parent)

	backend, err := dal.Open(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open patient store")
		return err
	}
	defer func() {
		log.Info().Msg("Closing patient store...")
		if err := backend.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close patient store")
		}
	}()

	if cfg.AutoMigrate {
		if err := backend.EnsureSchema(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to prepare patient store")
			return err
		}
	}

	if cfg.EnableSystemMetrics {
		metrics.StartSystemMetrics(ctx, cfg.SystemMetricsInterval)
	}

	handler := api.NewHandler(patient.NewService(backend), backend.Ping)
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.SetupRoutes(handler, cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().
			Str("port", cfg.Port).
			Str("driver", cfg.StoreDriver).
			Msg("Server starting")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown failed")
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		return err
	}

	log.Info().Msg("API service shutdown complete")
	return nil
}
