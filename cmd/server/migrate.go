package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/garyjia/approval-engine/internal/container"
	"github.com/garyjia/approval-engine/pkg/database"
)

var migrateStatus bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Migrate applies the embedded schema migrations, or those in
database.migrations_dir when it is set, to the configured database.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "list applied versions without migrating")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	out := cmd.OutOrStdout()

	if migrateStatus {
		applied, err := migrator.AppliedVersions()
		if err != nil {
			return err
		}
		versions := make([]int, 0, len(applied))
		for v := range applied {
			versions = append(versions, v)
		}
		sort.Ints(versions)
		fmt.Fprintf(out, "applied versions: %v\n", versions)
		return nil
	}

	n, err := migrator.RunMigrations(container.MigrationSource(cfg.Database.MigrationsDir))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "applied %d migration(s)\n", n)
	return nil
}
