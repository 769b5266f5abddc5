// Command worker runs the standalone Task Manager background worker:
// it claims queued import_jobs rows and drives them
// through the Import Executor independently of the API process, so async
// imports keep progressing even while the HTTP server is restarting.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/rowforge/ingest/internal/config"
	"github.com/rowforge/ingest/internal/logging"
	"github.com/rowforge/ingest/internal/pipeline"
	"github.com/rowforge/ingest/internal/store"
	"github.com/rowforge/ingest/internal/taskmanager"
)

func main() {
	if err := godotenv.Overload(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.MustLoad()
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		slog.Error("connect to database", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("ping database", "err", err)
		os.Exit(1)
	}

	db := store.New(pool)
	if err := db.EnsureSystemTables(ctx); err != nil {
		slog.Error("ensure system tables", "err", err)
		os.Exit(1)
	}

	executor := pipeline.New(db)
	tasks := taskmanager.New(db, executor, cfg.Task.PollInterval)

	// Workers are stateless: any job a prior crashed worker left
	// "processing" is reverted to "pending" before this one starts claiming.
	tasks.ReclaimStaleProcessingJobs(ctx)

	// Abandoned multipart upload sessions are swept on a slow cadence.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := db.SweepAbandonedUploadSessions(ctx, cfg.Storage.AbandonedSessionAge); err != nil {
					slog.Error("sweeping abandoned upload sessions", "err", err)
				} else if n > 0 {
					slog.Info("swept abandoned upload sessions", "count", n)
				}
			}
		}
	}()

	slog.Info("task worker starting", "poll_interval", cfg.Task.PollInterval)
	tasks.Run(ctx)
	slog.Info("task worker stopped")
}
