// Package commands implements the skyvault CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skyvault-io/skyvault/internal/logger"
	"github.com/skyvault-io/skyvault/pkg/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "skyvault",
	Short: "SkyVault - personal cloud storage engine",
	Long: `SkyVault is a multi-tenant personal cloud storage backend: per-user
file trees, public share links, trash, starring, search and an
asynchronous audit trail, over local encrypted blobs or S3.

Use "skyvault [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: /etc/skyvault/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sweepCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("skyvault %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}

// loadConfig loads the configuration and initialises the process logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}
