package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"meritlog.org/internal/auth"
)

// newTokenCmd issues HS256 session tokens for local development.
func newTokenCmd() *cobra.Command {
	var (
		email  string
		ttl    time.Duration
		issuer string
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a development session token signed with MERITLOG_AUTH_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := auth.NewVerifier(os.Getenv("MERITLOG_AUTH_SECRET"), auth.WithIssuer(issuer))
			if err != nil {
				return err
			}
			tok, err := v.GenerateToken(args[0], email, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.Flags().StringVar(&issuer, "issuer", envOr("MERITLOG_AUTH_ISSUER", "meritlog"), "issuer claim")
	return cmd
}
