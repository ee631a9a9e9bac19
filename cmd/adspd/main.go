package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glizzus/adsp-host/internal/addonmgr"
	"github.com/glizzus/adsp-host/internal/adsp"
	"github.com/glizzus/adsp-host/internal/builtin"
	"github.com/glizzus/adsp-host/internal/config"
	"github.com/glizzus/adsp-host/internal/datalayer"
	"github.com/glizzus/adsp-host/internal/loader"
	"github.com/glizzus/adsp-host/internal/repository"
)

func newLoader(ctx context.Context, hostConfig *config.HostConfig) (adsp.Loader, error) {
	registry := loader.NewRegistry()
	builtin.Register(registry)

	if os.Getenv("MINIO_ENDPOINT") == "" {
		slog.Warn("MINIO_ENDPOINT is not set, loading addons from the addon directory only")
		return loader.Chain{registry, loader.SharedObject{}}, nil
	}

	storage, err := datalayer.NewMinioStorageFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create minio storage: %w", err)
	}
	if err := storage.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure minio bucket: %w", err)
	}
	return loader.Chain{
		registry,
		&loader.Blob{Storage: storage, Prefix: hostConfig.BlobPrefix, Next: loader.SharedObject{}},
	}, nil
}

func runHost() error {
	if err := config.LoadEnv(); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No .env file found, continuing without it")
		} else {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	hostConfig, err := config.NewHostConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load host config: %w", err)
	}
	level, _ := hostConfig.Level()
	slog.SetLogLoggerLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := datalayer.NewPostgresPoolFromEnv(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := datalayer.MigratePostgres(pool); err != nil {
		return fmt.Errorf("failed to migrate postgres: %w", err)
	}

	redisConfig, err := config.NewRedisConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load redis config: %w", err)
	}
	rdb, err := redisConfig.NewClient(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			slog.Error("failed to close redis client", "error", err)
		}
	}()

	addonLoader, err := newLoader(ctx, hostConfig)
	if err != nil {
		return err
	}

	manager := addonmgr.NewManager(
		addonmgr.Config{
			Addons:              hostConfig.Addons,
			AddonDir:            hostConfig.AddonDir,
			ProfileDir:          hostConfig.ProfileDir,
			CollaboratorTimeout: hostConfig.CollaboratorTimeout,
		},
		addonLoader,
		addonmgr.WithModeStore(repository.NewPostgresModeRepository(pool)),
		addonmgr.WithAddonRepository(repository.NewPostgresAddonRepository(pool)),
		addonmgr.WithStateStore(addonmgr.NewRedisStateStore(rdb)),
		addonmgr.WithEventPublisher(addonmgr.NewRedisEventPublisher(rdb)),
		addonmgr.WithNotifier(addonmgr.NewRedisNotifier(rdb)),
	)

	if err := manager.Activate(ctx); err != nil {
		// Failing addons are already disabled; the host keeps serving the rest.
		slog.Error("some addons failed to start", slog.Any("error", err))
	}
	defer manager.Deactivate(context.Background())

	for _, a := range manager.Addons() {
		slog.Info("addon running",
			slog.String("addonID", a.Info().ID),
			slog.Int("clientID", a.GetID()),
			slog.String("name", a.GetFriendlyName()),
		)
	}

	rescan, err := hostConfig.Rescan()
	if err != nil {
		return err
	}
	slog.Info("next addon rescan", slog.String("cron", rescan.String()), slog.Time("at", rescan.Next(time.Now())))
	err = rescan.Run(ctx, func(ctx context.Context) {
		if err := manager.UpdateAddons(ctx); err != nil {
			slog.Error("failed to rescan addons", slog.Any("error", err))
		}
	})
	if errors.Is(err, context.Canceled) {
		slog.Info("shutting down")
		return nil
	}
	return err
}

func main() {
	if err := runHost(); err != nil {
		slog.Error("Host encountered an error", slog.Any("error", err))
		os.Exit(1)
	}
}
