// Package main provides the lista terminal client.
//
// It signs in against the content API, shows and edits shopping lists, and
// can stay connected to the push service to follow changes made by other
// members.
//
// # Basic Usage
//
// Sign in against the dev backend and create a list:
//
//	lista login --name Ana
//	lista create "Groceries"
//
// Follow realtime updates:
//
//	lista watch
//
// # Environment Variables
//
//   - LISTA_API_BASE_URL: content API base URL
//   - LISTA_REALTIME_URL: push service websocket URL
//   - LISTA_TOKEN_KEY: passphrase protecting the stored token
package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var version = "dev"

// globalFlags are shared by every subcommand
type globalFlags struct {
	configPath  string
	apiURL      string
	realtimeURL string
	dataDir     string
	logLevel    string
}

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		log.Debug().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached
func buildRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:          "lista",
		Short:        "Shared shopping lists in the terminal",
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&flags.apiURL, "api", "", "Content API base URL")
	rootCmd.PersistentFlags().StringVar(&flags.realtimeURL, "push", "", "Push service websocket URL")
	rootCmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "Directory for local state")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		buildLoginCmd(flags),
		buildLogoutCmd(flags),
		buildWhoamiCmd(flags),
		buildListsCmd(flags),
		buildCreateCmd(flags),
		buildRenameCmd(flags),
		buildDeleteCmd(flags),
		buildLeaveCmd(flags),
		buildCopyCmd(flags),
		buildReorderCmd(flags),
		buildShareCmd(flags),
		buildShowCmd(flags),
		buildSearchCmd(flags),
		buildAddCmd(flags),
		buildRemoveCmd(flags),
		buildCheckCmd(flags),
		buildBagCmd(flags),
		buildQuantityCmd(flags),
		buildWatchCmd(flags),
	)
	return rootCmd
}
