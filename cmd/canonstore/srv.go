package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"canonstore/internal/auth"
	"canonstore/internal/blobstore"
	"canonstore/internal/config"
	"canonstore/internal/digest"
	"canonstore/internal/metrics"
	"canonstore/internal/scheduler"
	"canonstore/internal/server"
	"canonstore/internal/store"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the canonstore API server and the orphan sweep scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			if cfg.DBPath == "" {
				return fmt.Errorf("db path is required")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, slog.Default())
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	addr, err := server.ListenAddr(cfg.APIURL)
	if err != nil {
		return err
	}
	alg, err := digest.Parse(cfg.Storage.Digest)
	if err != nil {
		return err
	}

	logger.Info("opening database", "path", cfg.DBPath)
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	objects, err := openObjectStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	m := metrics.New()
	retrying := blobstore.NewRetrying(objects, blobstore.RetryPolicy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval.Duration,
		MaxInterval:     cfg.Retry.MaxInterval.Duration,
	}, m, logger)

	svc := server.NewStorageService(st, retrying, server.ServiceConfig{
		Digest:        alg,
		MaxBatchItems: cfg.Limits.MaxBatchItems,
		MaxFileBytes:  cfg.Limits.MaxFileBytes,
		CommitTimeout: cfg.Limits.CommitTimeout.Duration,
		Fetch: server.FetchConfig{
			Timeout:   cfg.Fetch.Timeout.Duration,
			UserAgent: cfg.Fetch.UserAgent,
		},
		Sweep: server.SweepConfig{
			BatchSize:        cfg.Reconciler.BatchSize,
			DeletesPerSecond: cfg.Reconciler.DeletesPerSecond,
			Stray:            cfg.Reconciler.SweepStrayObjects,
			StrayGrace:       cfg.Reconciler.StrayObjectGrace.Duration,
		},
	}, m, logger)

	sweeper, err := startSweeper(ctx, cfg, svc, logger)
	if err != nil {
		return err
	}
	if sweeper != nil {
		defer sweeper.Stop()
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSigningKey, cfg.Auth.TokenTTL.Duration)
	if !tokens.Enabled() {
		logger.Warn("no jwt signing key configured; writes are only open on loopback listeners")
	}

	srv := server.New(addr, svc, server.Options{
		Tokens:         tokens,
		AdminTokenHash: cfg.Auth.AdminTokenHash,
		Metrics:        m,
		Sweeper:        sweeper,
		Limits: server.Limits{
			MaxFileBytes:       cfg.Limits.MaxFileBytes,
			MaxFormBytes:       cfg.Limits.MaxFormBytes,
			MultipartMaxMemory: cfg.Limits.MultipartMaxMemory,
		},
		Logger: logger,
	})
	return srv.ListenAndServe(ctx)
}

func openObjectStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (blobstore.ObjectStore, error) {
	switch cfg.Storage.Backend {
	case "s3":
		logger.Info("using s3 object store", "endpoint", cfg.Storage.Endpoint, "bucket", cfg.Storage.Bucket)
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return blobstore.NewS3Store(connectCtx, blobstore.S3Config{
			Endpoint:  cfg.Storage.Endpoint,
			Region:    cfg.Storage.Region,
			Bucket:    cfg.Storage.Bucket,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			PathStyle: cfg.Storage.PathStyle,
		})
	default:
		logger.Info("using local object store", "root", cfg.Storage.LocalRoot)
		return blobstore.NewLocalStore(cfg.Storage.LocalRoot)
	}
}

func startSweeper(ctx context.Context, cfg *config.Config, svc *server.StorageService, logger *slog.Logger) (*scheduler.Scheduler[server.SweepResult], error) {
	if !cfg.Reconciler.Enabled {
		logger.Info("scheduled orphan sweep disabled")
		return nil, nil
	}
	loc, err := time.LoadLocation(cfg.Reconciler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("reconciler.timezone: %w", err)
	}

	sweeper, err := scheduler.New(func(ctx context.Context) (server.SweepResult, error) {
		return svc.SweepOrphans(ctx, svc.DefaultSweepOptions())
	}, scheduler.Options{
		DailyAt:  cfg.Reconciler.DailyAt,
		Location: loc,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	if err := sweeper.Start(ctx); err != nil {
		return nil, err
	}
	logger.Info("scheduled orphan sweep enabled", "daily_at", cfg.Reconciler.DailyAt, "timezone", loc.String())
	return sweeper, nil
}
