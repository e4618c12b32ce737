package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"meritlog.org/internal/migrate"
	migrations "meritlog.org/ops/migrations"
)

func newMigrateCmd(opts *options) *cobra.Command {
	var migrationsDir, seedsDir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back and inspect schema migrations",
		Long: `Manage the Postgres schema.

Migrations and seeds are embedded in the binary; --migrations and --seeds
read them from directories instead.`,
	}
	cmd.PersistentFlags().StringVar(&migrationsDir, "migrations", os.Getenv("MERITLOG_MIGRATIONS_DIR"), "directory of *.up.sql/*.down.sql files (default: embedded)")
	cmd.PersistentFlags().StringVar(&seedsDir, "seeds", os.Getenv("MERITLOG_SEEDS_DIR"), "directory of seed *.sql files (default: embedded)")

	withManager := func(run func(cmd *cobra.Command, m *migrate.Manager) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if migrationsDir != "" || seedsDir != "" {
				return run(cmd, migrate.NewDirManager(store.DB(), migrationsDir, seedsDir))
			}
			return run(cmd, migrate.NewManager(store.DB(), migrations.SQL(), migrations.Seeds()))
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: withManager(func(cmd *cobra.Command, m *migrate.Manager) error {
				ctx, cancel := opts.context(cmd)
				defer cancel()
				applied, err := m.Up(ctx)
				for _, name := range applied {
					fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
				}
				if err == nil && len(applied) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				}
				return err
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			Args:  cobra.NoArgs,
			RunE: withManager(func(cmd *cobra.Command, m *migrate.Manager) error {
				ctx, cancel := opts.context(cmd)
				defer cancel()
				name, err := m.Down(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s\n", name)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Apply pending seed files",
			Args:  cobra.NoArgs,
			RunE: withManager(func(cmd *cobra.Command, m *migrate.Manager) error {
				ctx, cancel := opts.context(cmd)
				defer cancel()
				applied, err := m.Seed(ctx)
				for _, name := range applied {
					fmt.Fprintf(cmd.OutOrStdout(), "seeded %s\n", name)
				}
				return err
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: withManager(func(cmd *cobra.Command, m *migrate.Manager) error {
				ctx, cancel := opts.context(cmd)
				defer cancel()
				entries, err := m.Status(ctx)
				if err != nil {
					return err
				}
				printStatus(cmd, entries)
				return nil
			}),
		},
	)
	return cmd
}

func printStatus(cmd *cobra.Command, entries []migrate.Entry) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MIGRATION\tSTATE\tAPPLIED")
	for _, e := range entries {
		state, when := "pending", "-"
		if e.Applied {
			state, when = "applied", humanize.Time(e.AppliedAt)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Name, state, when)
	}
	_ = w.Flush()
}
