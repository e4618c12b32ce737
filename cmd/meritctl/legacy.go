package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"meritlog.org/internal/auth"
	"meritlog.org/internal/legacy"
)

func newLegacyCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "legacy",
		Short: "Seed and migrate the pre-account achievement cache",
	}

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Store a JSON achievement array as the legacy cache entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			cache, err := legacy.OpenSQLite(opts.cachePath)
			if err != nil {
				return err
			}
			defer cache.Close()
			ctx, cancel := opts.context(cmd)
			defer cancel()
			n, err := legacy.Import(ctx, cache, raw)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d legacy records into %s\n", n, opts.cachePath)
			return nil
		},
	}

	runCmd := &cobra.Command{
		Use:   "run <user-id>",
		Short: "Migrate the legacy cache into a user's records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			cache, err := legacy.OpenSQLite(opts.cachePath)
			if err != nil {
				return err
			}
			defer cache.Close()

			ctx, cancel := opts.context(cmd)
			defer cancel()
			ctx = auth.ContextWithUser(ctx, args[0])
			res := legacy.NewMigrator(cache, store).Run(ctx, args[0])
			if res.Err != nil {
				return fmt.Errorf("legacy migration: %w", res.Err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "found %d, inserted %d, skipped %d\n", res.Found, res.Inserted, res.Skipped)
			return nil
		},
	}

	cmd.AddCommand(importCmd, runCmd)
	return cmd
}
