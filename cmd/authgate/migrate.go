// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package main

import (
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authgate/authgate/internal/config"
	"github.com/authgate/authgate/internal/store"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Apply, roll back, and inspect schema migrations against the PostgreSQL database.`,
	}

	cmd.AddCommand(newMigrateUpCmd())
	cmd.AddCommand(newMigrateDownCmd())
	cmd.AddCommand(newMigrateStatusCmd())
	cmd.AddCommand(newMigrateForceCmd())

	return cmd
}

// withMigrator loads configuration, opens a migrator, and runs fn with it.
func withMigrator(fn func(m *store.Migrator, cmd *cobra.Command) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configFile, nil)
		if err != nil {
			return err
		}
		if cfg.Database.URL == "" {
			return oops.Code("CONFIG_INVALID").Errorf("database.url is required")
		}

		m, err := store.NewMigrator(cfg.Database.URL)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := m.Close(); closeErr != nil {
				cmd.PrintErrln("warning: failed to close migrator:", closeErr)
			}
		}()

		return fn(m, cmd)
	}
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(m *store.Migrator, cmd *cobra.Command) error {
			if err := m.Up(); err != nil {
				return err
			}
			cmd.Println("migrations applied")
			return nil
		}),
	}
}

func newMigrateDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		Long: `Roll back every applied migration, dropping all tables and data.
Destructive; intended for development databases only.`,
		Args: cobra.NoArgs,
		RunE: withMigrator(func(m *store.Migrator, cmd *cobra.Command) error {
			if err := m.Down(); err != nil {
				return err
			}
			cmd.Println("migrations rolled back")
			return nil
		}),
	}
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current migration version",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(m *store.Migrator, cmd *cobra.Command) error {
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			if version == 0 {
				cmd.Println("no migrations applied")
				return nil
			}
			if dirty {
				cmd.Printf("version %d (dirty)\n", version)
				return nil
			}
			cmd.Printf("version %d\n", version)
			return nil
		}),
	}
}

func newMigrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force VERSION",
		Short: "Force the migration version without running migrations",
		Long: `Force the recorded migration version without running any migrations.
Use this to recover from a failed migration after fixing the database by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("CONFIG_INVALID").With("version", args[0]).
					Wrapf(err, "version must be an integer")
			}
			return withMigrator(func(m *store.Migrator, cmd *cobra.Command) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("forced version %d\n", version)
				return nil
			})(cmd, nil)
		},
	}
}
