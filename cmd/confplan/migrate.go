package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/confplan-io/confplan/migrations"
)

// newMigrateCmd groups the schema management subcommands. The service applies
// migrations automatically on open; this command exists for operators who
// manage the schema out of band.
func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the conference database schema",
		Long: `Apply, roll back and inspect the embedded schema migrations against the
database named by DATABASE_URL.`,
	}

	cmd.AddCommand(
		migrateSubcommand("up", "Apply all pending migrations", (*migrations.Runner).Up),
		migrateSubcommand("down", "Roll back the last migration", (*migrations.Runner).Down),
		migrateSubcommand("status", "Show migration status and schema compatibility", (*migrations.Runner).Status),
		migrateSubcommand("version", "Show the current schema version", (*migrations.Runner).Version),
		migrateSubcommand("drop", "Drop all tables (destructive)", (*migrations.Runner).Drop),
	)

	return cmd
}

// migrateSubcommand builds one runner-backed subcommand.
func migrateSubcommand(use, short string, run func(*migrations.Runner) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := migrations.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading migration config: %w", err)
			}

			runner, err := migrations.NewRunner(cfg)
			if err != nil {
				return fmt.Errorf("creating migration runner: %w", err)
			}

			defer func() {
				_ = runner.Close()
			}()

			return run(runner)
		},
	}
}
