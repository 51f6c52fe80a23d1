package main

import (
	"context"
	"fmt"

	"github.com/jonathan/kids-video-pipeline/internal/db"
	"github.com/spf13/cobra"
)

var migrateCommand = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	RunE:  runMigrateCmd,
}

func init() {
	rootCmd.AddCommand(migrateCommand)
}

func runMigrateCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Open migrates.
	store, err := db.Open(context.Background(), cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return err
	}
	store.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "Database schema is up to date (%s)\n", cfg.Database.Driver)
	return nil
}
