// Command meritctl is the operator CLI: schema migrations, legacy cache import and
// migration, year metrics and development tokens.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"meritlog.org/internal/obs"
	"meritlog.org/internal/store/pg"
)

type options struct {
	dsn       string
	cachePath string
	timeout   time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "meritctl",
		Short:         "Operate the meritlog record store",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.dsn, "dsn", os.Getenv("MERITLOG_PG_DSN"), "PostgreSQL DSN")
	root.PersistentFlags().StringVar(&opts.cachePath, "cache", envOr("MERITLOG_LEGACY_CACHE_PATH", "meritlog-legacy.db"), "legacy cache database file")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-command timeout")

	root.AddCommand(
		newMigrateCmd(opts),
		newLegacyCmd(opts),
		newMetricsCmd(opts),
		newTokenCmd(),
	)
	return root
}

func (o *options) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

func (o *options) openStore() (*pg.Store, error) {
	if o.dsn == "" {
		return nil, errors.New("missing DSN: provide via --dsn or MERITLOG_PG_DSN")
	}
	s, err := pg.Open(o.dsn, pg.WithPublicBaseURL(envOr("MERITLOG_PUBLIC_BASE_URL", "http://localhost:8080")))
	if err != nil {
		return nil, err
	}
	obs.Logger().Debug().Msg("postgres opened")
	return s, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
