package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/withObsrvr/obsrvr-catalog-mirror/internal/artifact"
	"github.com/withObsrvr/obsrvr-catalog-mirror/internal/catalog"
	"github.com/withObsrvr/obsrvr-catalog-mirror/internal/config"
	"github.com/withObsrvr/obsrvr-catalog-mirror/internal/journal"
	"github.com/withObsrvr/obsrvr-catalog-mirror/internal/logging"
	"github.com/withObsrvr/obsrvr-catalog-mirror/internal/metrics"
	"github.com/withObsrvr/obsrvr-catalog-mirror/internal/migrate"
	"github.com/withObsrvr/obsrvr-catalog-mirror/internal/transfer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	cleanup := logging.Setup(logging.Config{
		Format: cfg.Logging.Format,
		Level:  cfg.Logging.Level,
		File:   cfg.Logging.File,
	})
	defer cleanup()

	log := logging.Component("main")
	log.Info("catalog mirror starting", "version", migrate.Version, "git_sha", migrate.GitSHA)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown handler
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-ch
		log.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	if cfg.Metrics.Enabled {
		metrics.Init("catalog_mirror")
		go func() {
			log.Info("metrics server listening", "address", cfg.Metrics.Address)
			if err := metrics.StartServer(cfg.Metrics.Address); err != nil {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	src, err := catalog.NewSource(catalog.Config{
		Mode:      cfg.Catalog.Mode,
		IndexURL:  cfg.Catalog.IndexURL,
		BucketURL: cfg.Catalog.BucketURL,
		IndexKey:  cfg.Catalog.IndexKey,
	})
	if err != nil {
		log.Error("failed to create catalog source", "error", err)
		os.Exit(1)
	}
	defer src.Close()

	store := artifact.NewHTTPStore(cfg.Store.Endpoint, cfg.Store.Token)
	defer store.Close()

	jm, err := journal.NewManager(journal.Config{
		Enabled:    cfg.Journal.Enabled,
		Dir:        cfg.Journal.Dir,
		Collection: cfg.Migration.CollectionAlias,
	})
	if err != nil {
		log.Error("failed to create journal manager", "error", err)
		os.Exit(1)
	}

	exec := transfer.NewExecutor(store, transfer.RetryPolicy{
		MaxAttempts:    cfg.Transfer.MaxRetries,
		RateLimitDelay: cfg.Transfer.RetryDelay,
		Backoff:        transfer.LinearBackoff(cfg.Transfer.RetryDelay),
	}, cfg.Transfer.HTTPTimeout)

	orch := migrate.New(src, store, exec, jm, migrate.Options{
		CollectionAlias:      cfg.Migration.CollectionAlias,
		ParentID:             cfg.Migration.ParentID,
		MaxConcurrentRecords: cfg.Migration.MaxConcurrentRecords,
		SkipMigrated:         cfg.Migration.SkipMigrated,
	})

	report, err := orch.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("shutdown complete")
			return
		}
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}

	log.Info("catalog mirror finished",
		"total", report.Total,
		"migrated", report.Migrated,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	if report.Failed > 0 {
		os.Exit(1)
	}
}
