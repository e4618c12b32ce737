package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"meritlog.org/internal/auth"
	"meritlog.org/internal/config"
	"meritlog.org/internal/entity"
	"meritlog.org/internal/httpapi"
	"meritlog.org/internal/legacy"
	"meritlog.org/internal/obs"
	"meritlog.org/internal/session"
	"meritlog.org/internal/store/pg"
	"meritlog.org/internal/tracker"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	log := obs.Logger()
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	// Remote store: Postgres when a DSN is configured, in-memory otherwise
	var (
		remote tracker.Remote
		db     *sql.DB
	)
	if cfg.PGDSN != "" {
		store, err := pg.Open(cfg.PGDSN, pg.WithPublicBaseURL(cfg.PublicBaseURL))
		if err != nil {
			log.Fatal().Err(err).Msg("open postgres")
		}
		defer store.Close()
		remote, db = store, store.DB()
	} else {
		log.Warn().Msg("MERITLOG_PG_DSN not set; records are kept in memory")
		remote = tracker.NewInMemory()
	}

	cache, err := legacy.OpenSQLite(cfg.LegacyCachePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.LegacyCachePath).Msg("open legacy cache")
	}
	defer cache.Close()

	verifier, err := auth.NewVerifier(cfg.AuthSecret, auth.WithIssuer(cfg.AuthIssuer))
	if err != nil {
		log.Fatal().Err(err).Msg("auth verifier")
	}

	provider := session.NewTokenProvider(verifier)
	store := entity.New(remote)
	sessions := session.NewManager(provider, store, legacy.NewMigrator(cache, remote))

	probe := httpapi.ReadyProbe{DB: db, Sessions: sessions}
	api := httpapi.New(probe, version, httpapi.Services{
		Remote:   remote,
		Store:    store,
		Sessions: sessions,
		Provider: provider,
		Verifier: verifier,
	},
		httpapi.WithRateLimit(cfg.RateBurst, cfg.RatePerSec),
		// base64 inflates uploads by a third; leave room for the JSON envelope
		httpapi.WithMaxBody(cfg.MaxUploadBytes*4/3+64<<10),
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	health := httpapi.NewHealthService(probe)
	grpcSrv := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, health)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sessions.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		health.Watch(gctx, 5*time.Second)
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		log.Info().Str("addr", cfg.GRPCAddr).Msg("grpc listening")
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		grpcSrv.GracefulStop()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("stopped")
}
