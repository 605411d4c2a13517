package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skyvault-io/skyvault/internal/logger"
	"github.com/skyvault-io/skyvault/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations and exit",
	Long: `Opens the metadata store, applies schema migrations and creates the
indices the engine depends on, then exits. The serve command does this
on startup too; migrate exists for init containers and CI.`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	defer st.Close()

	logger.Info("database migration complete", "database", string(cfg.Database.Type))
	return nil
}
