// Package main runs the lista dev backend: a local content API and push
// service for running the client end to end without the hosted services.
//
//	lista-dev --config lista.yaml
//	lista-dev --data-dir ./data --log-level debug
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nkkko/lista/internal/config"
	"github.com/nkkko/lista/internal/engine"
	"github.com/nkkko/lista/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("Dev backend failed")
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var (
		configPath string
		dataDir    string
		logLevel   string
		inMemory   bool
		noSeed     bool
	)
	cmd := &cobra.Command{
		Use:          "lista-dev",
		Short:        "Run the local content API and push service",
		Version:      version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath, config.Overrides{
				DataDir:  dataDir,
				LogLevel: logLevel,
			})
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if inMemory {
				cfg.Storage.InMemory = true
			}

			if err := logging.Setup(cfg.ToLoggingConfig()); err != nil {
				return fmt.Errorf("failed to set up logging: %w", err)
			}

			engineCfg := cfg.ToEngineConfig()
			if noSeed {
				engineCfg.SeedProducts = nil
			}

			e, err := engine.New(engineCfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info().
				Str("api", cfg.Server.Addr).
				Str("push", cfg.Push.Addr).
				Msg("Lista dev backend starting")
			return e.Start(ctx)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory for persisted content")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&inMemory, "in-memory", false, "Keep content in memory only")
	cmd.Flags().BoolVar(&noSeed, "no-seed", false, "Do not seed the product catalog")
	return cmd
}
