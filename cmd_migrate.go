package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"noisemap/internal/storage/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long:  `Apply the reading-store schema to the database selected by DATABASE_URL/PG_DSN or SQLITE_PATH.`,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, dialect, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	if db == nil {
		return errors.New("migrate: DATABASE_URL, PG_DSN or SQLITE_PATH is required")
	}
	defer db.Close()

	status, err := migrations.Up(db, dialect, logger)
	if err != nil {
		return err
	}
	state := "up to date"
	if status.Applied {
		state = "applied"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s schema %s at version %d\n", dialect, state, status.Version)
	return nil
}
