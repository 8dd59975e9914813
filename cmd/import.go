package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/storefront/internal/sqlite"
	"github.com/conneroisu/storefront/internal/tenant"
)

var importCmd = &cobra.Command{
	Use:   "import <seed.yml>",
	Short: "Load stores and catalog data into a SQLite database",
	Long: `Import a YAML seed of stores and their catalogs into the SQLite database
named by --dsn. Existing rows with the same ids are replaced.

Example:
  storefront import stores.yml --dsn file:stores.db`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Directory.DSN == "" {
		return fmt.Errorf("--dsn is required")
	}

	seed, err := tenant.LoadSeedFile(args[0])
	if err != nil {
		return err
	}
	db, err := sqlite.Open(cfg.Directory.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Import(cmd.Context(), seed); err != nil {
		return fmt.Errorf("import %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d store(s) into %s\n", len(seed.Stores), cfg.Directory.DSN)
	return nil
}
