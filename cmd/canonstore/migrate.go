package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"canonstore/internal/config"
	"canonstore/internal/store"
)

func newMigrateCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect metadata schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun {
				return printMigrationPlan(cfg, out)
			}

			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if err := st.Close(); err != nil {
				return err
			}

			if out.structured() {
				return printMigrationPlan(cfg, out)
			}
			return writePlain("migrations applied to %s\n", cfg.DBPath)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show pending migrations without applying")
	return cmd
}

func printMigrationPlan(cfg *config.Config, out *outputFlags) error {
	db, err := store.OpenRaw(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	plan, err := store.MigrationPlan(db)
	if err != nil {
		return fmt.Errorf("inspect migrations: %w", err)
	}
	if out.structured() {
		return writeStructured(plan)
	}

	_ = writePlain("current version: %d\n", plan.CurrentVersion)
	_ = writePlain("available version: %d\n", plan.AvailableVersion)
	if len(plan.Pending) == 0 {
		return writePlain("no pending migrations\n")
	}
	_ = writePlain("pending migrations: %d\n", len(plan.Pending))
	for _, m := range plan.Pending {
		_ = writePlain("  %d: %s\n", m.Version, m.Description)
	}
	return nil
}
